package service

import (
	"testing"

	"storefront/internal/model"

	"github.com/stretchr/testify/require"
)

func TestPolicyMatrix(t *testing.T) {
	productTypes := []model.RequestType{
		model.ReqCreateProduct, model.ReqUpdateProduct, model.ReqUpdateProductStock,
		model.ReqDeleteProduct, model.ReqRequestRestock,
	}
	orderTypes := []model.RequestType{
		model.ReqUpdateOrderStatus, model.ReqMarkAsPaid, model.ReqMarkAsDelivered, model.ReqDeleteOrder,
	}

	require.True(t, CanApplyDirectly(model.RoleAdmin))
	require.True(t, CanReview(model.RoleAdmin))
	for _, role := range []string{model.RoleSale, model.RoleStocker, model.RoleUser, ""} {
		require.False(t, CanApplyDirectly(role), role)
		require.False(t, CanReview(role), role)
	}

	for _, rt := range productTypes {
		require.True(t, CanPropose(model.RoleStocker, rt), rt)
		require.False(t, CanPropose(model.RoleSale, rt), rt)
	}
	for _, rt := range orderTypes {
		require.True(t, CanPropose(model.RoleSale, rt), rt)
		require.False(t, CanPropose(model.RoleStocker, rt), rt)
	}
	for _, rt := range model.AllRequestTypes {
		require.False(t, CanPropose(model.RoleUser, rt), rt)
		require.False(t, CanPropose(model.RoleAdmin, rt), rt)
	}
}

func TestProposableTypesKeepsDeclarationOrder(t *testing.T) {
	require.Equal(t, []model.RequestType{
		model.ReqUpdateOrderStatus, model.ReqMarkAsPaid, model.ReqMarkAsDelivered, model.ReqDeleteOrder,
	}, ProposableTypes(model.RoleSale))
	require.Len(t, ProposableTypes(model.RoleStocker), 5)
	require.Empty(t, ProposableTypes(model.RoleUser))
}
