package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/repository"
)

// --- DTOs ---

type RevenueDataPoint struct {
	Period       string `json:"period"`
	Orders       int    `json:"orders"`
	ItemsRevenue string `json:"items_revenue"`
	ShippingFees string `json:"shipping_fees"`
	TaxCollected string `json:"tax_collected"`
	TotalRevenue string `json:"total_revenue"`
	UnitsSold    int    `json:"units_sold"`
}

type RevenueFilter struct {
	GroupBy   string // day, week, month, quarter, year
	StartDate string // RFC3339
	EndDate   string // RFC3339
}

// --- Interface ---

type RevenueService interface {
	GetRevenueStatistics(ctx context.Context, filter RevenueFilter) ([]RevenueDataPoint, error)
}

type revenueService struct {
	repo repository.RevenueRepository
}

func NewRevenueService(repo repository.RevenueRepository) RevenueService {
	return &revenueService{repo: repo}
}

// --- Implementation ---

func (s *revenueService) GetRevenueStatistics(ctx context.Context, filter RevenueFilter) ([]RevenueDataPoint, error) {
	groupBy := filter.GroupBy
	switch groupBy {
	case "day", "week", "month", "quarter", "year":
	default:
		groupBy = "month"
	}

	// Default window: the trailing twelve months
	now := time.Now()
	startDate, endDate := filter.StartDate, filter.EndDate
	if startDate == "" {
		startDate = now.AddDate(-1, 0, 0).Format(time.RFC3339)
	}
	if endDate == "" {
		endDate = now.Format(time.RFC3339)
	}

	rows, err := s.repo.GetRevenueStatistics(ctx, groupBy, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load revenue statistics: %w", err)
	}

	result := make([]RevenueDataPoint, 0, len(rows))
	for _, r := range rows {
		result = append(result, RevenueDataPoint{
			Period:       r.Period,
			Orders:       r.Orders,
			ItemsRevenue: r.ItemsRevenue.StringFixed(2),
			ShippingFees: r.ShippingFees.StringFixed(2),
			TaxCollected: r.TaxCollected.StringFixed(2),
			TotalRevenue: r.TotalRevenue.StringFixed(2),
			UnitsSold:    r.UnitsSold,
		})
	}

	return result, nil
}
