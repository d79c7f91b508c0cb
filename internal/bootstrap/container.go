// Package bootstrap wires repositories and services from configuration. Both
// the API server and storectl build on it.
package bootstrap

import (
	"context"
	"fmt"

	"storefront/internal/database"
	"storefront/internal/model"
	"storefront/internal/repository"
	"storefront/internal/service"
	ws "storefront/internal/websocket"
	"storefront/pkg/config"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Container holds the shared infrastructure and services.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *gorm.DB
	Hub     *ws.Hub
	Metrics *service.MetricsService
	Cache   *service.CacheService

	Users      service.UserService
	Approvals  service.ApprovalService
	Ledger     service.LedgerService
	Products   service.ProductService
	Orders     service.OrderService
	Audit      service.AuditService
	Statistics service.StatisticsService
	Revenue    service.RevenueService

	redis *redis.Client
	nats  *nats.Conn
}

// New connects to postgres, and to redis and NATS when configured. Redis or
// NATS being unreachable degrades to no cache / no notifications.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Metrics: service.NewMetricsService(),
		Hub:     ws.NewHub(logger, cfg.CORS.AllowedOrigins, model.RoleAdmin, model.RoleSale, model.RoleStocker),
	}

	var cacheRepo service.CacheRepository
	if cfg.Redis.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		client, err := repository.NewRedisClient(ctx, addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("redis unavailable, cache disabled", zap.String("addr", addr), zap.Error(err))
		} else {
			c.redis = client
			cacheRepo = repository.NewCacheRepository(client, logger)
		}
	}
	c.Cache = service.NewCacheService(cacheRepo, c.Metrics, cfg.Redis.CacheTTL, logger, cacheRepo != nil)

	var notifier service.Notifier = service.NopNotifier{}
	if cfg.NATS.URL != "" {
		conn, err := service.ConnectNATS(cfg.NATS.URL, logger)
		if err != nil {
			logger.Warn("nats unavailable, notifications disabled", zap.String("url", cfg.NATS.URL), zap.Error(err))
		} else {
			c.nats = conn
			notifier = service.NewNATSNotifier(conn, cfg.NATS.SubjectPrefix, c.Metrics, logger)
		}
	}

	// Repositories
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	movementRepo := repository.NewStockMovementRepository(db)
	reconciliationRepo := repository.NewReconciliationRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	revalidator := service.Revalidators{
		service.NewWebsocketRevalidator(c.Hub, logger),
		c.Cache,
	}

	c.Ledger = service.NewLedgerService(txManager, movementRepo, productRepo, reconciliationRepo, auditRepo, c.Metrics, logger, cfg.Ledger.ReconcileConcurrency)
	applier := service.NewMutationApplier(productRepo, orderRepo, c.Ledger, cfg.Ledger.TrackStockEdits)
	c.Approvals = service.NewApprovalService(txManager, approvalRepo, auditRepo, applier, revalidator, notifier, c.Metrics, logger)
	c.Products = service.NewProductService(productRepo, c.Approvals, c.Cache)
	c.Orders = service.NewOrderService(txManager, orderRepo, productRepo, auditRepo, c.Approvals, revalidator, logger)
	c.Users = service.NewUserService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	c.Audit = service.NewAuditService(auditRepo)
	c.Statistics = service.NewStatisticsService(repository.NewStatisticsRepository(db))
	c.Revenue = service.NewRevenueService(repository.NewRevenueRepository(db))

	return c, nil
}

// Close releases external connections.
func (c *Container) Close() {
	if c.nats != nil {
		if err := c.nats.Drain(); err != nil {
			c.Logger.Warn("nats drain failed", zap.Error(err))
		}
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if sqlDB, err := c.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
