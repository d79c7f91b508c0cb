package model

import (
	"time"

	"github.com/google/uuid"
)

// RequestType enumerates the privileged mutations gated by approval.
type RequestType string

const (
	ReqCreateProduct      RequestType = "CREATE_PRODUCT"
	ReqUpdateProduct      RequestType = "UPDATE_PRODUCT"
	ReqUpdateProductStock RequestType = "UPDATE_PRODUCT_STOCK"
	ReqUpdateOrderStatus  RequestType = "UPDATE_ORDER_STATUS"
	ReqMarkAsPaid         RequestType = "MARK_AS_PAID"
	ReqMarkAsDelivered    RequestType = "MARK_AS_DELIVERED"
	ReqDeleteOrder        RequestType = "DELETE_ORDER"
	ReqDeleteProduct      RequestType = "DELETE_PRODUCT"
	ReqRequestRestock     RequestType = "REQUEST_RESTOCK"
)

// AllRequestTypes lists every request type in declaration order
var AllRequestTypes = []RequestType{
	ReqCreateProduct,
	ReqUpdateProduct,
	ReqUpdateProductStock,
	ReqUpdateOrderStatus,
	ReqMarkAsPaid,
	ReqMarkAsDelivered,
	ReqDeleteOrder,
	ReqDeleteProduct,
	ReqRequestRestock,
}

// Valid reports whether t is a known request type
func (t RequestType) Valid() bool {
	for _, known := range AllRequestTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TargetsProduct reports whether the request mutates an existing product
func (t RequestType) TargetsProduct() bool {
	switch t {
	case ReqUpdateProduct, ReqUpdateProductStock, ReqDeleteProduct, ReqRequestRestock:
		return true
	}
	return false
}

// TargetsOrder reports whether the request mutates an existing order
func (t RequestType) TargetsOrder() bool {
	switch t {
	case ReqUpdateOrderStatus, ReqMarkAsPaid, ReqMarkAsDelivered, ReqDeleteOrder:
		return true
	}
	return false
}

// ApprovalStatus values. A request leaves pending exactly once.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// ApprovalRequest records an intended privileged mutation awaiting admin review.
// LockKey carries a partial unique index over pending rows so a target can only have
// one outstanding request.
type ApprovalRequest struct {
	ID          uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Type        RequestType `gorm:"type:varchar(30);not null;index" json:"type"`
	TargetID    *uuid.UUID  `gorm:"type:uuid;index" json:"target_id"` // nil for CREATE_PRODUCT
	LockKey     string      `gorm:"type:varchar(300);not null;index" json:"lock_key"`
	Payload     string      `gorm:"type:jsonb;not null" json:"payload"` // typed per Type, see service.Mutation
	Status      string      `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	RequestedBy uuid.UUID   `gorm:"type:uuid;not null;index" json:"requested_by"`
	Requester   *User       `gorm:"foreignKey:RequestedBy" json:"requester,omitempty"`
	ReviewedBy  *uuid.UUID  `gorm:"type:uuid" json:"reviewed_by"`
	Reviewer    *User       `gorm:"foreignKey:ReviewedBy" json:"reviewer,omitempty"`
	ReviewedAt  *time.Time  `json:"reviewed_at"`
	Note        string      `gorm:"type:text" json:"note"`
	CreatedAt   time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
