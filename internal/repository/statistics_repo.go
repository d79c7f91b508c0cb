package repository

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type StatisticsRepository interface {
	GetMovementTotals(ctx context.Context, start, end time.Time) ([]model.MovementTotal, error)
	GetPaidOrderStatistics(ctx context.Context, start, end time.Time) (revenue decimal.Decimal, count int, err error)
	GetTopSellingProducts(ctx context.Context, start, end time.Time, limit int) ([]model.ProductRanking, error)
}

type statisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

func (r *statisticsRepository) GetMovementTotals(ctx context.Context, start, end time.Time) ([]model.MovementTotal, error) {
	var totals []model.MovementTotal
	if err := GetDB(ctx, r.db).Model(&model.StockMovement{}).
		Select("type, COUNT(*) AS count, COALESCE(SUM(stock_in), 0) AS stock_in, COALESCE(SUM(stock_out), 0) AS stock_out").
		Where("created_at >= ? AND created_at <= ?", start, end).
		Group("type").
		Order("type").
		Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("failed to query movement totals: %w", err)
	}
	return totals, nil
}

func (r *statisticsRepository) GetPaidOrderStatistics(ctx context.Context, start, end time.Time) (decimal.Decimal, int, error) {
	var result struct {
		Value decimal.Decimal
		Count int
	}
	if err := GetDB(ctx, r.db).Model(&model.Order{}).
		Select("COALESCE(SUM(total_price), 0) AS value, COUNT(*) AS count").
		Where("is_paid = ? AND paid_at >= ? AND paid_at <= ?", true, start, end).
		Scan(&result).Error; err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to query paid orders: %w", err)
	}
	return result.Value, result.Count, nil
}

// GetTopSellingProducts ranks products by SALE ledger volume, so it reflects captured payments only.
func (r *statisticsRepository) GetTopSellingProducts(ctx context.Context, start, end time.Time, limit int) ([]model.ProductRanking, error) {
	var rankings []model.ProductRanking
	if err := GetDB(ctx, r.db).Table("stock_movements").
		Select("products.id AS product_id, products.name AS product_name, products.slug AS product_slug, SUM(stock_movements.stock_out) AS total_quantity").
		Joins("JOIN products ON products.id = stock_movements.product_id").
		Where("stock_movements.type = ? AND stock_movements.created_at >= ? AND stock_movements.created_at <= ?", model.MovementSale, start, end).
		Group("products.id, products.name, products.slug").
		Order("total_quantity DESC").
		Limit(limit).
		Scan(&rankings).Error; err != nil {
		return nil, fmt.Errorf("failed to query top products: %w", err)
	}
	return rankings, nil
}
