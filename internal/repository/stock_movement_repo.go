package repository

import (
	"context"
	"time"

	"storefront/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MovementFilter narrows ledger listings.
type MovementFilter struct {
	ProductID *uuid.UUID
	Type      string
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

// StockMovementRepository is append-only and exposes no Update or Delete.
type StockMovementRepository interface {
	Create(ctx context.Context, movement *model.StockMovement) error
	List(ctx context.Context, filter MovementFilter) ([]model.StockMovement, int64, error)
	SumByProduct(ctx context.Context, productID uuid.UUID) (int, error)
}

type stockMovementRepository struct {
	db *gorm.DB
}

func NewStockMovementRepository(db *gorm.DB) StockMovementRepository {
	return &stockMovementRepository{db: db}
}

func (r *stockMovementRepository) Create(ctx context.Context, movement *model.StockMovement) error {
	return GetDB(ctx, r.db).Create(movement).Error
}

func (r *stockMovementRepository) List(ctx context.Context, filter MovementFilter) ([]model.StockMovement, int64, error) {
	var movements []model.StockMovement
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		if filter.ProductID != nil {
			q = q.Where("product_id = ?", *filter.ProductID)
		}
		if filter.Type != "" {
			q = q.Where("type = ?", filter.Type)
		}
		if filter.From != nil {
			q = q.Where("created_at >= ?", *filter.From)
		}
		if filter.To != nil {
			q = q.Where("created_at <= ?", *filter.To)
		}
		return q
	}

	if err := db.Model(&model.StockMovement{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := db.Scopes(scope).
		Preload("Product", func(q *gorm.DB) *gorm.DB { return q.Select("id", "name", "slug") }).
		Preload("Initiator", func(q *gorm.DB) *gorm.DB { return q.Unscoped().Select("id", "name") }).
		Order("created_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&movements).Error; err != nil {
		return nil, 0, err
	}

	return movements, total, nil
}

// SumByProduct returns Σ(stock_in - stock_out) over every movement of the product.
func (r *stockMovementRepository) SumByProduct(ctx context.Context, productID uuid.UUID) (int, error) {
	var sum int
	err := GetDB(ctx, r.db).Model(&model.StockMovement{}).
		Select("COALESCE(SUM(stock_in - stock_out), 0)").
		Where("product_id = ?", productID).
		Scan(&sum).Error
	return sum, err
}
