package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront/internal/model"
	"storefront/internal/repository"
	appErrors "storefront/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ApplyResult describes what a replay touched so callers can revalidate views
// and emit notifications after commit.
type ApplyResult struct {
	EntityID     string
	EntityName   string
	ProductSlugs []string
	OrderID      *uuid.UUID
	PaidOrder    *OrderPaidEvent
}

// MutationApplier replays typed mutations against the store. Apply must run
// inside a transaction: every stock change and ledger row it writes commits or
// rolls back together.
type MutationApplier struct {
	products        repository.ProductRepository
	orders          repository.OrderRepository
	ledger          LedgerService
	trackStockEdits bool
	now             func() time.Time
}

func NewMutationApplier(
	products repository.ProductRepository,
	orders repository.OrderRepository,
	ledger LedgerService,
	trackStockEdits bool,
) *MutationApplier {
	return &MutationApplier{
		products:        products,
		orders:          orders,
		ledger:          ledger,
		trackStockEdits: trackStockEdits,
		now:             time.Now,
	}
}

// CheckTarget verifies that the entity a request points at exists. Soft-deleted
// products only accept DELETE_PRODUCT, so they can still be purged.
func (a *MutationApplier) CheckTarget(ctx context.Context, t model.RequestType, targetID *uuid.UUID) error {
	switch {
	case t.TargetsProduct():
		if targetID == nil {
			return appErrors.Clone(appErrors.ErrValidation, "target_id is required")
		}
		product, err := a.products.FindByID(ctx, *targetID)
		if err != nil {
			return lookupErr(err, "product")
		}
		if product.IsDeleted && t != model.ReqDeleteProduct {
			return errProductDeleted(product)
		}
		return nil
	case t.TargetsOrder():
		if targetID == nil {
			return appErrors.Clone(appErrors.ErrValidation, "target_id is required")
		}
		_, err := a.orders.FindByID(ctx, *targetID)
		return lookupErr(err, "order")
	}
	return nil
}

// Apply dispatches m to its replay. actorID is recorded as the initiator of any
// ledger rows.
func (a *MutationApplier) Apply(ctx context.Context, actorID uuid.UUID, targetID *uuid.UUID, m Mutation) (ApplyResult, error) {
	if m.RequestType() != model.ReqCreateProduct && targetID == nil {
		return ApplyResult{}, appErrors.Clone(appErrors.ErrValidation, "target_id is required")
	}

	switch v := m.(type) {
	case *CreateProductMutation:
		return a.createProduct(ctx, v)
	case *UpdateProductMutation:
		return a.updateProduct(ctx, actorID, *targetID, v)
	case *UpdateProductStockMutation:
		return a.updateProductStock(ctx, actorID, *targetID, v)
	case *UpdateOrderStatusMutation:
		if v.Status == "paid" {
			return a.markAsPaid(ctx, actorID, *targetID, &MarkAsPaidMutation{PaymentRef: v.PaymentRef})
		}
		return a.markAsDelivered(ctx, *targetID)
	case *MarkAsPaidMutation:
		return a.markAsPaid(ctx, actorID, *targetID, v)
	case *MarkAsDeliveredMutation:
		return a.markAsDelivered(ctx, *targetID)
	case *DeleteOrderMutation:
		return a.deleteOrder(ctx, *targetID)
	case *DeleteProductMutation:
		return a.deleteProduct(ctx, *targetID, v)
	case *RequestRestockMutation:
		return a.requestRestock(ctx, actorID, *targetID, v)
	}
	return ApplyResult{}, fmt.Errorf("no replay for mutation %T", m)
}

func (a *MutationApplier) createProduct(ctx context.Context, m *CreateProductMutation) (ApplyResult, error) {
	if err := a.ensureSlugFree(ctx, m.Slug, uuid.Nil); err != nil {
		return ApplyResult{}, err
	}

	product := &model.Product{
		Name:         m.Name,
		Slug:         m.Slug,
		Category:     m.Category,
		Brand:        m.Brand,
		Description:  m.Description,
		Image:        m.Image,
		Price:        m.Price,
		CountInStock: m.CountInStock,
		InitialStock: m.CountInStock,
		IsPublished:  true,
	}
	if err := a.products.Create(ctx, product); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ApplyResult{}, appErrors.Clone(appErrors.ErrDuplicateSlug, fmt.Sprintf("slug %q is already in use", m.Slug))
		}
		return ApplyResult{}, fmt.Errorf("failed to create product: %w", err)
	}

	return ApplyResult{EntityID: product.ID.String(), EntityName: product.Name, ProductSlugs: []string{product.Slug}}, nil
}

func (a *MutationApplier) updateProduct(ctx context.Context, actorID, id uuid.UUID, m *UpdateProductMutation) (ApplyResult, error) {
	product, err := a.lockLiveProduct(ctx, id)
	if err != nil {
		return ApplyResult{}, err
	}

	slugs := []string{product.Slug}
	if m.Slug != nil && *m.Slug != product.Slug {
		if err := a.ensureSlugFree(ctx, *m.Slug, product.ID); err != nil {
			return ApplyResult{}, err
		}
		product.Slug = *m.Slug
		slugs = append(slugs, product.Slug)
	}
	if m.Name != nil {
		product.Name = *m.Name
	}
	if m.Category != nil {
		product.Category = *m.Category
	}
	if m.Brand != nil {
		product.Brand = *m.Brand
	}
	if m.Description != nil {
		product.Description = *m.Description
	}
	if m.Image != nil {
		product.Image = *m.Image
	}
	if m.Price != nil {
		product.Price = *m.Price
	}
	if m.IsPublished != nil {
		product.IsPublished = *m.IsPublished
	}

	if err := a.products.Update(ctx, product); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ApplyResult{}, appErrors.Clone(appErrors.ErrDuplicateSlug, fmt.Sprintf("slug %q is already in use", product.Slug))
		}
		return ApplyResult{}, fmt.Errorf("failed to update product: %w", err)
	}

	if m.CountInStock != nil {
		if err := a.ledger.AdjustTo(ctx, product, *m.CountInStock, &actorID, m.Reason); err != nil {
			return ApplyResult{}, err
		}
	}

	return ApplyResult{EntityID: product.ID.String(), EntityName: product.Name, ProductSlugs: slugs}, nil
}

func (a *MutationApplier) updateProductStock(ctx context.Context, actorID, id uuid.UUID, m *UpdateProductStockMutation) (ApplyResult, error) {
	product, err := a.lockLiveProduct(ctx, id)
	if err != nil {
		return ApplyResult{}, err
	}

	// LEDGER_TRACK_STOCK_EDITS=false keeps direct stock edits out of the ledger.
	if a.trackStockEdits {
		if err := a.ledger.AdjustTo(ctx, product, m.CountInStock, &actorID, m.Reason); err != nil {
			return ApplyResult{}, err
		}
	} else if err := a.products.UpdateStock(ctx, product.ID, m.CountInStock); err != nil {
		return ApplyResult{}, fmt.Errorf("failed to update stock: %w", err)
	}

	return ApplyResult{EntityID: product.ID.String(), EntityName: product.Name, ProductSlugs: []string{product.Slug}}, nil
}

func (a *MutationApplier) markAsPaid(ctx context.Context, actorID, id uuid.UUID, m *MarkAsPaidMutation) (ApplyResult, error) {
	order, err := a.orders.FindByIDWithItems(ctx, id)
	if err != nil {
		return ApplyResult{}, lookupErr(err, "order")
	}
	if order.IsPaid {
		return ApplyResult{}, appErrors.Clone(appErrors.ErrConflict, "order is already paid")
	}

	paidAt := a.now()
	if err := a.orders.MarkPaid(ctx, order.ID, m.PaymentRef, paidAt); err != nil {
		return ApplyResult{}, err
	}

	// Lock products in a stable order so concurrent captures cannot deadlock.
	items := make([]model.OrderItem, len(order.Items))
	copy(items, order.Items)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ProductID.String() < items[j].ProductID.String()
	})

	slugs := make([]string, 0, len(items))
	for _, item := range items {
		product, err := a.products.FindByIDForUpdate(ctx, item.ProductID)
		if err != nil {
			return ApplyResult{}, lookupErr(err, "product "+item.Name)
		}
		if product.CountInStock < item.Quantity {
			return ApplyResult{}, appErrors.Clone(appErrors.ErrInsufficientStock,
				fmt.Sprintf("insufficient stock for %s (current: %d, requested: %d)", product.Slug, product.CountInStock, item.Quantity))
		}

		stockAfter := product.CountInStock - item.Quantity
		if err := a.products.UpdateStock(ctx, product.ID, stockAfter); err != nil {
			return ApplyResult{}, fmt.Errorf("failed to update stock for %s: %w", product.Slug, err)
		}

		orderID := order.ID
		if _, err := a.ledger.Record(ctx, LedgerEntry{
			ProductID:   product.ID,
			Type:        model.MovementSale,
			Delta:       -item.Quantity,
			StockAfter:  stockAfter,
			OrderID:     &orderID,
			InitiatedBy: &actorID,
		}); err != nil {
			return ApplyResult{}, err
		}
		slugs = append(slugs, product.Slug)
	}

	event := &OrderPaidEvent{
		OrderID:    order.ID.String(),
		UserID:     order.UserID.String(),
		TotalPrice: order.TotalPrice.StringFixed(2),
		PaymentRef: m.PaymentRef,
		PaidAt:     paidAt,
		Items:      make([]OrderPaidItem, 0, len(order.Items)),
	}
	if order.User != nil {
		event.Email = order.User.Email
		event.Name = order.User.Name
	}
	for _, item := range order.Items {
		event.Items = append(event.Items, OrderPaidItem{
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))).StringFixed(2),
		})
	}

	return ApplyResult{
		EntityID:     order.ID.String(),
		EntityName:   "order " + order.ID.String(),
		ProductSlugs: slugs,
		OrderID:      &order.ID,
		PaidOrder:    event,
	}, nil
}

func (a *MutationApplier) markAsDelivered(ctx context.Context, id uuid.UUID) (ApplyResult, error) {
	order, err := a.orders.FindByID(ctx, id)
	if err != nil {
		return ApplyResult{}, lookupErr(err, "order")
	}
	if !order.IsPaid {
		return ApplyResult{}, appErrors.Clone(appErrors.ErrConflict, "order is not paid")
	}
	if order.IsDelivered {
		return ApplyResult{}, appErrors.Clone(appErrors.ErrConflict, "order is already delivered")
	}

	if err := a.orders.MarkDelivered(ctx, order.ID, a.now()); err != nil {
		return ApplyResult{}, err
	}
	return ApplyResult{EntityID: order.ID.String(), EntityName: "order " + order.ID.String(), OrderID: &order.ID}, nil
}

func (a *MutationApplier) deleteOrder(ctx context.Context, id uuid.UUID) (ApplyResult, error) {
	order, err := a.orders.FindByID(ctx, id)
	if err != nil {
		return ApplyResult{}, lookupErr(err, "order")
	}
	if err := a.orders.Delete(ctx, order.ID); err != nil {
		return ApplyResult{}, fmt.Errorf("failed to delete order: %w", err)
	}
	return ApplyResult{EntityID: order.ID.String(), EntityName: "order " + order.ID.String(), OrderID: &order.ID}, nil
}

func (a *MutationApplier) deleteProduct(ctx context.Context, id uuid.UUID, m *DeleteProductMutation) (ApplyResult, error) {
	product, err := a.products.FindByID(ctx, id)
	if err != nil {
		return ApplyResult{}, lookupErr(err, "product")
	}

	if m.Soft {
		if product.IsDeleted {
			return ApplyResult{}, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("product %s is already deleted", product.Slug))
		}
		err = a.products.SoftDelete(ctx, product.ID, a.now())
	} else {
		err = a.products.Delete(ctx, product.ID)
	}
	if err != nil {
		return ApplyResult{}, fmt.Errorf("failed to delete product: %w", err)
	}

	return ApplyResult{EntityID: product.ID.String(), EntityName: product.Name, ProductSlugs: []string{product.Slug}}, nil
}

func (a *MutationApplier) requestRestock(ctx context.Context, actorID, id uuid.UUID, m *RequestRestockMutation) (ApplyResult, error) {
	product, err := a.lockLiveProduct(ctx, id)
	if err != nil {
		return ApplyResult{}, err
	}

	stockAfter := product.CountInStock + m.Quantity
	if err := a.products.UpdateStock(ctx, product.ID, stockAfter); err != nil {
		return ApplyResult{}, fmt.Errorf("failed to update stock: %w", err)
	}

	if _, err := a.ledger.Record(ctx, LedgerEntry{
		ProductID:   product.ID,
		Type:        model.MovementRestock,
		Delta:       m.Quantity,
		StockAfter:  stockAfter,
		Reason:      m.Reason,
		InitiatedBy: &actorID,
	}); err != nil {
		return ApplyResult{}, err
	}

	return ApplyResult{EntityID: product.ID.String(), EntityName: product.Name, ProductSlugs: []string{product.Slug}}, nil
}

// lockLiveProduct loads the product for update and treats a soft-deleted row as gone.
func (a *MutationApplier) lockLiveProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	product, err := a.products.FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "product")
	}
	if product.IsDeleted {
		return nil, errProductDeleted(product)
	}
	return product, nil
}

func errProductDeleted(p *model.Product) error {
	return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("product %s has been deleted", p.Slug))
}

// ensureSlugFree fails with DuplicateSlug when a product other than self owns slug.
func (a *MutationApplier) ensureSlugFree(ctx context.Context, slug string, self uuid.UUID) error {
	existing, err := a.products.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("failed to check slug: %w", err)
	}
	if existing.ID != self {
		return appErrors.Clone(appErrors.ErrDuplicateSlug, fmt.Sprintf("slug %q is already in use", slug))
	}
	return nil
}

func lookupErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
