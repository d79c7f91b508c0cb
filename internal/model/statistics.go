package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerSummary aggregates stock movements and paid orders over a time range
type LedgerSummary struct {
	Movements          []MovementTotal  `json:"movements"`
	PaidOrders         int              `json:"paid_orders"`
	Revenue            decimal.Decimal  `json:"revenue" swaggertype:"string"`
	TopSellingItems    []ProductRanking `json:"top_selling_items"`
	TimeRangeStartDate time.Time        `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time        `json:"time_range_end_date"`
}

// MovementTotal sums ledger rows of one movement type
type MovementTotal struct {
	Type     string `json:"type"`
	Count    int    `json:"count"`
	StockIn  int    `json:"stock_in"`
	StockOut int    `json:"stock_out"`
}

// ProductRanking represents a ranked product based on accumulated quantities
type ProductRanking struct {
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	ProductSlug   string `json:"product_slug"`
	TotalQuantity int    `json:"total_quantity"`
}
