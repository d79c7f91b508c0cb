package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"storefront/internal/model"
	appErrors "storefront/pkg/errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mutation is the typed payload of an approval request. Each request type has
// exactly one variant; the replay dispatcher switches over them.
type Mutation interface {
	RequestType() model.RequestType
}

// CreateProductMutation creates a published product.
type CreateProductMutation struct {
	Name         string          `json:"name" validate:"required,max=255"`
	Slug         string          `json:"slug" validate:"required,max=255,slug"`
	Category     string          `json:"category" validate:"max=100"`
	Brand        string          `json:"brand" validate:"max=100"`
	Description  string          `json:"description"`
	Image        string          `json:"image"`
	Price        decimal.Decimal `json:"price" swaggertype:"string"`
	CountInStock int             `json:"count_in_stock" validate:"gte=0"`
}

// UpdateProductMutation merges the non-nil fields onto the product. A changed
// CountInStock is recorded as an ADJUSTMENT.
type UpdateProductMutation struct {
	Name         *string          `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Slug         *string          `json:"slug,omitempty" validate:"omitempty,max=255,slug"`
	Category     *string          `json:"category,omitempty" validate:"omitempty,max=100"`
	Brand        *string          `json:"brand,omitempty" validate:"omitempty,max=100"`
	Description  *string          `json:"description,omitempty"`
	Image        *string          `json:"image,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty" swaggertype:"string"`
	CountInStock *int             `json:"count_in_stock,omitempty" validate:"omitempty,gte=0"`
	IsPublished  *bool            `json:"is_published,omitempty"`
	Reason       string           `json:"reason,omitempty" validate:"max=500"`
}

// UpdateProductStockMutation sets the stock count directly.
type UpdateProductStockMutation struct {
	CountInStock int    `json:"count_in_stock" validate:"gte=0"`
	Reason       string `json:"reason,omitempty" validate:"max=500"`
}

// UpdateOrderStatusMutation is the generic order status form; it replays as
// MARK_AS_PAID or MARK_AS_DELIVERED.
type UpdateOrderStatusMutation struct {
	Status     string `json:"status" validate:"required,oneof=paid delivered"`
	PaymentRef string `json:"payment_ref,omitempty" validate:"max=255"`
}

type MarkAsPaidMutation struct {
	PaymentRef string `json:"payment_ref,omitempty" validate:"max=255"`
}

type MarkAsDeliveredMutation struct{}

type DeleteOrderMutation struct{}

// DeleteProductMutation removes the product row, or only flags it when Soft is set.
type DeleteProductMutation struct {
	Soft bool `json:"soft"`
}

type RequestRestockMutation struct {
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	Reason   string `json:"reason,omitempty" validate:"max=500"`
}

func (CreateProductMutation) RequestType() model.RequestType      { return model.ReqCreateProduct }
func (UpdateProductMutation) RequestType() model.RequestType      { return model.ReqUpdateProduct }
func (UpdateProductStockMutation) RequestType() model.RequestType { return model.ReqUpdateProductStock }
func (UpdateOrderStatusMutation) RequestType() model.RequestType  { return model.ReqUpdateOrderStatus }
func (MarkAsPaidMutation) RequestType() model.RequestType         { return model.ReqMarkAsPaid }
func (MarkAsDeliveredMutation) RequestType() model.RequestType    { return model.ReqMarkAsDelivered }
func (DeleteOrderMutation) RequestType() model.RequestType        { return model.ReqDeleteOrder }
func (DeleteProductMutation) RequestType() model.RequestType      { return model.ReqDeleteProduct }
func (RequestRestockMutation) RequestType() model.RequestType     { return model.ReqRequestRestock }

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var payloadValidator = newPayloadValidator()

func newPayloadValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return v
}

// newMutation returns an empty variant for t.
func newMutation(t model.RequestType) (Mutation, error) {
	switch t {
	case model.ReqCreateProduct:
		return &CreateProductMutation{}, nil
	case model.ReqUpdateProduct:
		return &UpdateProductMutation{}, nil
	case model.ReqUpdateProductStock:
		return &UpdateProductStockMutation{}, nil
	case model.ReqUpdateOrderStatus:
		return &UpdateOrderStatusMutation{}, nil
	case model.ReqMarkAsPaid:
		return &MarkAsPaidMutation{}, nil
	case model.ReqMarkAsDelivered:
		return &MarkAsDeliveredMutation{}, nil
	case model.ReqDeleteOrder:
		return &DeleteOrderMutation{}, nil
	case model.ReqDeleteProduct:
		return &DeleteProductMutation{}, nil
	case model.ReqRequestRestock:
		return &RequestRestockMutation{}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown request type %q", t))
}

// DecodeMutation parses and validates raw as the payload variant of t. Unknown
// fields are rejected. An empty payload decodes as "{}".
func DecodeMutation(t model.RequestType, raw json.RawMessage) (Mutation, error) {
	m, err := newMutation(t)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(m); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
			fmt.Sprintf("invalid %s payload", t))
	}

	if err := validateMutation(m); err != nil {
		return nil, err
	}

	return m, nil
}

func validateMutation(m Mutation) error {
	if err := payloadValidator.Struct(m); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
			fmt.Sprintf("invalid %s payload: %s", m.RequestType(), err.Error()))
	}

	switch v := m.(type) {
	case *CreateProductMutation:
		if v.Price.IsNegative() {
			return appErrors.Clone(appErrors.ErrValidation, "price must not be negative")
		}
	case *UpdateProductMutation:
		if v.Price != nil && v.Price.IsNegative() {
			return appErrors.Clone(appErrors.ErrValidation, "price must not be negative")
		}
		if v.empty() {
			return appErrors.Clone(appErrors.ErrValidation, "update changes no fields")
		}
	}
	return nil
}

func (m *UpdateProductMutation) empty() bool {
	return m.Name == nil && m.Slug == nil && m.Category == nil && m.Brand == nil &&
		m.Description == nil && m.Image == nil && m.Price == nil && m.CountInStock == nil &&
		m.IsPublished == nil
}

// LockKey names the resource a pending request holds. At most one pending
// request may exist per key.
func LockKey(m Mutation, targetID *uuid.UUID) string {
	if create, ok := m.(*CreateProductMutation); ok {
		return "slug:" + create.Slug
	}
	if targetID == nil {
		return ""
	}
	if m.RequestType().TargetsOrder() {
		return "order:" + targetID.String()
	}
	return "product:" + targetID.String()
}
