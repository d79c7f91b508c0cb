package repository

import (
	"context"
	"time"

	"storefront/internal/model"
	appErrors "storefront/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderFilter narrows order listings.
type OrderFilter struct {
	UserID      *uuid.UUID
	IsPaid      *bool
	IsDelivered *bool
	Page        int
	Limit       int
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	CreateItem(ctx context.Context, item *model.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paymentRef string, at time.Time) error
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter OrderFilter) ([]model.Order, int64, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return GetDB(ctx, r.db).Omit("Items").Create(order).Error
}

func (r *orderRepository) CreateItem(ctx context.Context, item *model.OrderItem) error {
	return GetDB(ctx, r.db).Create(item).Error
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := GetDB(ctx, r.db).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := GetDB(ctx, r.db).
		Preload("Items").
		Preload("User").
		First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkPaid flips an unpaid order to paid. It returns ErrConflict when the order
// was already paid.
func (r *orderRepository) MarkPaid(ctx context.Context, id uuid.UUID, paymentRef string, at time.Time) error {
	updates := map[string]interface{}{"is_paid": true, "paid_at": at}
	if paymentRef != "" {
		updates["payment_ref"] = paymentRef
	}
	result := GetDB(ctx, r.db).Model(&model.Order{}).
		Where("id = ? AND is_paid = ?", id, false).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return appErrors.Clone(appErrors.ErrConflict, "order is already paid")
	}
	return nil
}

// MarkDelivered flips a paid, undelivered order to delivered.
func (r *orderRepository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := GetDB(ctx, r.db).Model(&model.Order{}).
		Where("id = ? AND is_paid = ? AND is_delivered = ?", id, true, false).
		Updates(map[string]interface{}{"is_delivered": true, "delivered_at": at})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return appErrors.Clone(appErrors.ErrConflict, "order is not awaiting delivery")
	}
	return nil
}

// Delete removes the order and its line items. Foreign keys are not created by
// migration, so items are deleted explicitly.
func (r *orderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("order_id = ?", id).Delete(&model.OrderItem{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.Order{}).Error
}

func (r *orderRepository) List(ctx context.Context, filter OrderFilter) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		if filter.UserID != nil {
			q = q.Where("user_id = ?", *filter.UserID)
		}
		if filter.IsPaid != nil {
			q = q.Where("is_paid = ?", *filter.IsPaid)
		}
		if filter.IsDelivered != nil {
			q = q.Where("is_delivered = ?", *filter.IsDelivered)
		}
		return q
	}

	if err := db.Model(&model.Order{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := db.Scopes(scope).
		Preload("Items").
		Preload("User").
		Order("created_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}
