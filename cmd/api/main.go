package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "storefront/api/swagger" // swagger docs
	"storefront/internal/bootstrap"
	"storefront/internal/database"
	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/websocket"
	"storefront/pkg/config"
	"storefront/pkg/logger"
	"storefront/pkg/middleware/requestid"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Storefront Back Office API
// @version         1.0
// @description     Approval workflow and stock ledger for the storefront back office.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("bootstrap failed", zap.Error(err))
	}
	defer app.Close()

	if err := database.Migrate(app.DB, zl); err != nil {
		zl.Fatal("migration failed", zap.Error(err))
	}

	go app.Hub.Run(ctx)

	secret := []byte(cfg.JWT.Secret)
	guard := middleware.NewGuard(secret)
	submitLimit := middleware.RateLimitPerUser(cfg.RateLimit.SubmissionsPerMinute, cfg.RateLimit.Burst)
	secureCookie := cfg.Env == config.EnvProduction

	// Initialize Handlers
	userHandler := handler.NewUserHandler(app.Users, guard, cfg.JWT.Expiration, secureCookie)
	approvalHandler := handler.NewApprovalHandler(app.Approvals, guard, submitLimit)
	productHandler := handler.NewProductHandler(app.Products, app.Approvals, guard, submitLimit)
	orderHandler := handler.NewOrderHandler(app.Orders, app.Approvals, guard, submitLimit)
	stockHandler := handler.NewStockHandler(app.Ledger, guard)
	auditHandler := handler.NewAuditHandler(app.Audit, guard)
	statisticsHandler := handler.NewStatisticsHandler(app.Statistics, app.Revenue, guard)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestid.Middleware(), logger.GinMiddleware(zl), middleware.Metrics(app.Metrics))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", requestid.HeaderKey}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(app.Metrics.Handler()))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		db := "up"
		if sqlDB, err := app.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = http.StatusServiceUnavailable
			db = "down"
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "database": db, "websocket_clients": app.Hub.ClientCount()})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(app.Hub, c, middleware.RoleFromToken(secret))
	})

	// API Routing
	root := router.Group("")
	userHandler.RegisterRoutes(root)
	approvalHandler.RegisterRoutes(root)
	productHandler.RegisterRoutes(root)
	orderHandler.RegisterRoutes(root)
	stockHandler.RegisterRoutes(root)
	auditHandler.RegisterRoutes(root)
	statisticsHandler.RegisterRoutes(root)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("server listening", zap.Int("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
}
