package service

import (
	"storefront/internal/model"

	"github.com/google/uuid"
)

// Actor is the authenticated caller as resolved by the auth middleware.
type Actor struct {
	ID   uuid.UUID
	Role string
}

var proposable = map[string]map[model.RequestType]bool{
	model.RoleStocker: {
		model.ReqCreateProduct:      true,
		model.ReqUpdateProduct:      true,
		model.ReqUpdateProductStock: true,
		model.ReqDeleteProduct:      true,
		model.ReqRequestRestock:     true,
	},
	model.RoleSale: {
		model.ReqUpdateOrderStatus: true,
		model.ReqMarkAsPaid:        true,
		model.ReqMarkAsDelivered:   true,
		model.ReqDeleteOrder:       true,
	},
}

// CanApplyDirectly reports whether the role may apply privileged mutations without review.
func CanApplyDirectly(role string) bool {
	return role == model.RoleAdmin
}

// CanPropose reports whether the role may queue a request of type t for review.
// Admins never propose: their mutations apply directly.
func CanPropose(role string, t model.RequestType) bool {
	return proposable[role][t]
}

// CanReview reports whether the role may approve or reject pending requests.
func CanReview(role string) bool {
	return role == model.RoleAdmin
}

// ProposableTypes lists the request types the role may queue, in declaration order.
func ProposableTypes(role string) []model.RequestType {
	types := make([]model.RequestType, 0, len(proposable[role]))
	for _, t := range model.AllRequestTypes {
		if CanPropose(role, t) {
			types = append(types, t)
		}
	}
	return types
}
