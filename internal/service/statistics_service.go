package service

import (
	"context"
	"time"

	"storefront/internal/model"
	"storefront/internal/repository"
)

type StatisticsService interface {
	GetLedgerSummary(ctx context.Context, startDate, endDate time.Time) (model.LedgerSummary, error)
}

type statisticsService struct {
	repo repository.StatisticsRepository
}

func NewStatisticsService(repo repository.StatisticsRepository) StatisticsService {
	return &statisticsService{repo: repo}
}

// GetLedgerSummary totals ledger movements per type and paid-order revenue within [startDate, endDate].
func (s *statisticsService) GetLedgerSummary(ctx context.Context, startDate, endDate time.Time) (model.LedgerSummary, error) {
	summary := model.LedgerSummary{
		TimeRangeStartDate: startDate,
		TimeRangeEndDate:   endDate,
	}

	movements, err := s.repo.GetMovementTotals(ctx, startDate, endDate)
	if err != nil {
		return summary, err
	}
	summary.Movements = movements

	revenue, count, err := s.repo.GetPaidOrderStatistics(ctx, startDate, endDate)
	if err != nil {
		return summary, err
	}
	summary.Revenue = revenue
	summary.PaidOrders = count

	top, err := s.repo.GetTopSellingProducts(ctx, startDate, endDate, 5)
	if err != nil {
		return summary, err
	}
	summary.TopSellingItems = top

	if summary.Movements == nil {
		summary.Movements = []model.MovementTotal{}
	}
	if summary.TopSellingItems == nil {
		summary.TopSellingItems = []model.ProductRanking{}
	}
	return summary, nil
}
