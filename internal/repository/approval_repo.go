package repository

import (
	"context"
	"time"

	"storefront/internal/model"
	appErrors "storefront/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalFilter narrows approval listings. Zero values mean "any".
type ApprovalFilter struct {
	Status      string
	Type        model.RequestType
	RequestedBy *uuid.UUID
	Page        int
	Limit       int
}

type ApprovalRepository interface {
	Create(ctx context.Context, req *model.ApprovalRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	FindPendingByLockKey(ctx context.Context, lockKey string) (*model.ApprovalRequest, error)
	ListPendingByTargets(ctx context.Context, targetIDs []uuid.UUID) ([]model.ApprovalRequest, error)
	List(ctx context.Context, filter ApprovalFilter) ([]model.ApprovalRequest, int64, error)
	// TransitionStatus moves a pending request to a terminal status. It returns
	// ErrAlreadyResolved when the row is no longer pending.
	TransitionStatus(ctx context.Context, id uuid.UUID, status string, reviewerID uuid.UUID, note string, at time.Time) error
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, req *model.ApprovalRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *approvalRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *approvalRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	if err := GetDB(ctx, r.db).Preload("Requester").Preload("Reviewer").First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *approvalRepository) FindPendingByLockKey(ctx context.Context, lockKey string) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	if err := GetDB(ctx, r.db).
		Where("lock_key = ? AND status = ?", lockKey, model.ApprovalPending).
		First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *approvalRepository) ListPendingByTargets(ctx context.Context, targetIDs []uuid.UUID) ([]model.ApprovalRequest, error) {
	var requests []model.ApprovalRequest
	if len(targetIDs) == 0 {
		return requests, nil
	}
	if err := GetDB(ctx, r.db).
		Where("status = ? AND target_id IN ?", model.ApprovalPending, targetIDs).
		Order("created_at DESC").
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *approvalRepository) List(ctx context.Context, filter ApprovalFilter) ([]model.ApprovalRequest, int64, error) {
	var requests []model.ApprovalRequest
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.Type != "" {
			q = q.Where("type = ?", filter.Type)
		}
		if filter.RequestedBy != nil {
			q = q.Where("requested_by = ?", *filter.RequestedBy)
		}
		return q
	}

	if err := db.Model(&model.ApprovalRequest{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := db.Scopes(scope).
		Preload("Requester").Preload("Reviewer").
		Order("created_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *approvalRepository) TransitionStatus(ctx context.Context, id uuid.UUID, status string, reviewerID uuid.UUID, note string, at time.Time) error {
	result := GetDB(ctx, r.db).Model(&model.ApprovalRequest{}).
		Where("id = ? AND status = ?", id, model.ApprovalPending).
		Updates(map[string]interface{}{
			"status":      status,
			"reviewed_by": reviewerID,
			"reviewed_at": at,
			"note":        note,
			"updated_at":  at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return appErrors.ErrAlreadyResolved
	}
	return nil
}
