package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RevenueDataRow struct {
	Period       string          `gorm:"column:period" json:"period"`
	Orders       int             `gorm:"column:orders" json:"orders"`
	ItemsRevenue decimal.Decimal `gorm:"column:items_revenue" json:"items_revenue"`
	ShippingFees decimal.Decimal `gorm:"column:shipping_fees" json:"shipping_fees"`
	TaxCollected decimal.Decimal `gorm:"column:tax_collected" json:"tax_collected"`
	TotalRevenue decimal.Decimal `gorm:"column:total_revenue" json:"total_revenue"`
	UnitsSold    int             `gorm:"column:units_sold" json:"units_sold"`
}

type RevenueRepository interface {
	GetRevenueStatistics(ctx context.Context, groupBy, startDate, endDate string) ([]RevenueDataRow, error)
}

type revenueRepository struct {
	db *gorm.DB
}

func NewRevenueRepository(db *gorm.DB) RevenueRepository {
	return &revenueRepository{db: db}
}

// GetRevenueStatistics buckets paid orders by DATE_TRUNC(groupBy, paid_at).
// Units sold come from SALE ledger rows of the same orders.
func (r *revenueRepository) GetRevenueStatistics(ctx context.Context, groupBy, startDate, endDate string) ([]RevenueDataRow, error) {
	query := `
		SELECT
			TO_CHAR(DATE_TRUNC($1, o.paid_at), 'YYYY-MM-DD') AS period,
			COUNT(o.id) AS orders,
			COALESCE(SUM(o.items_price), 0) AS items_revenue,
			COALESCE(SUM(o.shipping_price), 0) AS shipping_fees,
			COALESCE(SUM(o.tax_price), 0) AS tax_collected,
			COALESCE(SUM(o.total_price), 0) AS total_revenue,
			COALESCE(SUM(sm.units), 0) AS units_sold
		FROM orders o
		LEFT JOIN (
			SELECT order_id, SUM(stock_out) AS units
			FROM stock_movements
			WHERE type = 'SALE'
			GROUP BY order_id
		) sm ON sm.order_id = o.id
		WHERE o.is_paid = TRUE
		  AND o.paid_at >= $2::timestamptz
		  AND o.paid_at <= $3::timestamptz
		GROUP BY DATE_TRUNC($1, o.paid_at)
		ORDER BY period
	`

	var rows []RevenueDataRow
	if err := GetDB(ctx, r.db).Raw(query, groupBy, startDate, endDate).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query revenue statistics: %w", err)
	}

	return rows, nil
}
