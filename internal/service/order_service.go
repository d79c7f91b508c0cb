package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/model"
	"storefront/internal/repository"
	appErrors "storefront/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Pricing rules applied at checkout.
var (
	freeShippingOver = decimal.NewFromInt(100)
	flatShippingFee  = decimal.NewFromInt(10)
	taxRate          = decimal.NewFromFloat(0.15)
)

// DTOs
type OrderItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required" swaggertype:"string"`
	Quantity  int       `json:"quantity" binding:"required,gt=0"`
}

type CreateOrderRequest struct {
	Items           []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	ShippingAddress string             `json:"shipping_address" binding:"required"`
	PaymentMethod   string             `json:"payment_method" binding:"required"`
}

type OrderItemResponse struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

type OrderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	UserName        string              `json:"user_name"`
	Items           []OrderItemResponse `json:"items"`
	ShippingAddress string              `json:"shipping_address"`
	PaymentMethod   string              `json:"payment_method"`
	PaymentRef      string              `json:"payment_ref"`
	ItemsPrice      string              `json:"items_price"`
	ShippingPrice   string              `json:"shipping_price"`
	TaxPrice        string              `json:"tax_price"`
	TotalPrice      string              `json:"total_price"`
	IsPaid          bool                `json:"is_paid"`
	PaidAt          *string             `json:"paid_at"`
	IsDelivered     bool                `json:"is_delivered"`
	DeliveredAt     *string             `json:"delivered_at"`
	Pending         *PendingSummary     `json:"pending_approval,omitempty"`
	CreatedAt       string              `json:"created_at"`
}

// OrderTotals is the price breakdown of a checkout.
type OrderTotals struct {
	Items    decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

type OrderService interface {
	CreateOrder(ctx context.Context, actor Actor, req CreateOrderRequest) (OrderResponse, error)
	ListOrders(ctx context.Context, actor Actor, filter repository.OrderFilter) ([]OrderResponse, int64, error)
	GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (OrderResponse, error)
}

type orderService struct {
	txManager   repository.TransactionManager
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	auditRepo   repository.AuditRepository
	approvals   ApprovalService
	revalidator Revalidator
	logger      *zap.Logger
}

func NewOrderService(
	txManager repository.TransactionManager,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	auditRepo repository.AuditRepository,
	approvals ApprovalService,
	revalidator Revalidator,
	logger *zap.Logger,
) OrderService {
	if revalidator == nil {
		revalidator = Revalidators{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &orderService{
		txManager:   txManager,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		auditRepo:   auditRepo,
		approvals:   approvals,
		revalidator: revalidator,
		logger:      logger,
	}
}

// ComputeTotals prices a cart: shipping is free when items exceed 100, tax is 15% of items.
func ComputeTotals(items decimal.Decimal) OrderTotals {
	items = items.Round(2)
	shipping := flatShippingFee
	if items.GreaterThan(freeShippingOver) {
		shipping = decimal.Zero
	}
	tax := items.Mul(taxRate).Round(2)
	return OrderTotals{
		Items:    items,
		Shipping: shipping,
		Tax:      tax,
		Total:    items.Add(shipping).Add(tax),
	}
}

// CreateOrder snapshots product prices into a new unpaid order. Stock is not
// touched until payment is captured.
func (s *orderService) CreateOrder(ctx context.Context, actor Actor, req CreateOrderRequest) (OrderResponse, error) {
	if len(req.Items) == 0 {
		return OrderResponse{}, appErrors.Clone(appErrors.ErrValidation, "order must contain at least one item")
	}

	order := &model.Order{
		UserID:          actor.ID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		items := make([]model.OrderItem, 0, len(req.Items))
		subtotal := decimal.Zero
		for _, it := range req.Items {
			if it.Quantity <= 0 {
				return appErrors.Clone(appErrors.ErrValidation, "quantity must be positive")
			}
			product, err := s.productRepo.FindByID(txCtx, it.ProductID)
			if err != nil {
				return lookupErr(err, "product")
			}
			if !product.IsPublished || product.IsDeleted {
				return appErrors.Clone(appErrors.ErrNotFound, "product not found")
			}
			if product.CountInStock < it.Quantity {
				return appErrors.Clone(appErrors.ErrInsufficientStock,
					fmt.Sprintf("only %d of %s left in stock", product.CountInStock, product.Name))
			}

			items = append(items, model.OrderItem{
				ProductID: product.ID,
				Name:      product.Name,
				Slug:      product.Slug,
				Quantity:  it.Quantity,
				Price:     product.Price,
			})
			subtotal = subtotal.Add(product.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}

		totals := ComputeTotals(subtotal)
		order.ItemsPrice = totals.Items
		order.ShippingPrice = totals.Shipping
		order.TaxPrice = totals.Tax
		order.TotalPrice = totals.Total

		if err := s.orderRepo.Create(txCtx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		for i := range items {
			items[i].OrderID = order.ID
			if err := s.orderRepo.CreateItem(txCtx, &items[i]); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}
		order.Items = items

		details, _ := json.Marshal(map[string]interface{}{
			"items": len(items),
			"total": order.TotalPrice.StringFixed(2),
		})
		audit := &model.AuditLog{
			UserID:     &actor.ID,
			Action:     model.ActionCreateOrder,
			EntityID:   order.ID.String(),
			EntityName: "order",
			Details:    string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return OrderResponse{}, err
	}

	s.revalidator.Revalidate(ctx, PathOrders)
	s.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", actor.ID.String()),
		zap.String("total", order.TotalPrice.StringFixed(2)),
	)

	return toOrderResponse(*order), nil
}

// ListOrders returns a page of orders. Customers only ever see their own; staff
// additionally get the pending-approval marker per order.
func (s *orderService) ListOrders(ctx context.Context, actor Actor, filter repository.OrderFilter) ([]OrderResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	staff := model.IsStaff(actor.Role)
	if !staff {
		id := actor.ID
		filter.UserID = &id
	}

	orders, total, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	result := make([]OrderResponse, 0, len(orders))
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		result = append(result, toOrderResponse(o))
		ids = append(ids, o.ID)
	}

	if staff {
		index, err := s.approvals.PendingIndex(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		for i := range result {
			if p, ok := index[result[i].ID]; ok {
				result[i].Pending = &p
			}
		}
	}

	return result, total, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (OrderResponse, error) {
	order, err := s.orderRepo.FindByIDWithItems(ctx, id)
	if err != nil {
		return OrderResponse{}, lookupErr(err, "order")
	}

	staff := model.IsStaff(actor.Role)
	if !staff && order.UserID != actor.ID {
		return OrderResponse{}, appErrors.Clone(appErrors.ErrNotFound, "order not found")
	}

	resp := toOrderResponse(*order)
	if staff {
		index, err := s.approvals.PendingIndex(ctx, []uuid.UUID{order.ID})
		if err != nil {
			return OrderResponse{}, err
		}
		if p, ok := index[resp.ID]; ok {
			resp.Pending = &p
		}
	}
	return resp, nil
}

func toOrderResponse(o model.Order) OrderResponse {
	resp := OrderResponse{
		ID:              o.ID.String(),
		UserID:          o.UserID.String(),
		Items:           make([]OrderItemResponse, 0, len(o.Items)),
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		PaymentRef:      o.PaymentRef,
		ItemsPrice:      o.ItemsPrice.StringFixed(2),
		ShippingPrice:   o.ShippingPrice.StringFixed(2),
		TaxPrice:        o.TaxPrice.StringFixed(2),
		TotalPrice:      o.TotalPrice.StringFixed(2),
		IsPaid:          o.IsPaid,
		IsDelivered:     o.IsDelivered,
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
	}
	if o.User != nil {
		resp.UserName = o.User.Name
	}
	if o.PaidAt != nil {
		t := o.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &t
	}
	if o.DeliveredAt != nil {
		t := o.DeliveredAt.Format(time.RFC3339)
		resp.DeliveredAt = &t
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ProductID: it.ProductID.String(),
			Name:      it.Name,
			Slug:      it.Slug,
			Quantity:  it.Quantity,
			Price:     it.Price.StringFixed(2),
		})
	}
	return resp
}
