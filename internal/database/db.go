package database

import (
	"fmt"
	"time"

	"storefront/internal/model"
	"storefront/pkg/config"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// pendingLockIndex allows at most one pending approval request per lock key.
const pendingLockIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_approval_pending_lock
	ON approval_requests (lock_key) WHERE status = 'pending'`

// NewConnection initializes a new connection pool using GORM
func NewConnection(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	logger.Info("connected to postgres", zap.String("host", cfg.Host), zap.String("database", cfg.Name))
	return db, nil
}

// Migrate creates or updates the schema, including the pending-lock index.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	err := db.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.Order{},
		&model.OrderItem{},
		&model.ApprovalRequest{},
		&model.StockMovement{},
		&model.ReconciliationReport{},
		&model.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	if err := db.Exec(pendingLockIndex).Error; err != nil {
		return fmt.Errorf("create pending lock index: %w", err)
	}

	logger.Info("database schema migrated")
	return nil
}
