package repository

import (
	"context"

	"storefront/internal/model"

	"gorm.io/gorm"
)

type ReconciliationRepository interface {
	CreateBatch(ctx context.Context, reports []model.ReconciliationReport) error
	ListByCorrelation(ctx context.Context, correlationID string) ([]model.ReconciliationReport, error)
	ListLatest(ctx context.Context, limit int) ([]model.ReconciliationReport, error)
}

type reconciliationRepository struct {
	db *gorm.DB
}

func NewReconciliationRepository(db *gorm.DB) ReconciliationRepository {
	return &reconciliationRepository{db: db}
}

func (r *reconciliationRepository) CreateBatch(ctx context.Context, reports []model.ReconciliationReport) error {
	if len(reports) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).CreateInBatches(reports, 100).Error
}

func (r *reconciliationRepository) ListByCorrelation(ctx context.Context, correlationID string) ([]model.ReconciliationReport, error) {
	var reports []model.ReconciliationReport
	if err := GetDB(ctx, r.db).Where("correlation_id = ?", correlationID).
		Order("product_slug").Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *reconciliationRepository) ListLatest(ctx context.Context, limit int) ([]model.ReconciliationReport, error) {
	var reports []model.ReconciliationReport
	if err := GetDB(ctx, r.db).Order("created_at DESC").Limit(limit).Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}
