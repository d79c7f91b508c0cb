package service

import (
	"encoding/json"
	"testing"

	"storefront/internal/model"
	appErrors "storefront/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestDecodeMutationVariants(t *testing.T) {
	m, err := DecodeMutation(model.ReqCreateProduct, json.RawMessage(`{"name":"Oak Desk","slug":"oak-desk","price":"99.5","count_in_stock":2}`))
	require.NoError(t, err)
	create, ok := m.(*CreateProductMutation)
	require.True(t, ok)
	require.Equal(t, "oak-desk", create.Slug)
	require.Equal(t, "99.5", create.Price.String())

	m, err = DecodeMutation(model.ReqUpdateProduct, json.RawMessage(`{"count_in_stock":0,"reason":"damaged"}`))
	require.NoError(t, err)
	update := m.(*UpdateProductMutation)
	require.NotNil(t, update.CountInStock)
	require.Zero(t, *update.CountInStock)
	require.Nil(t, update.Name)

	for _, raw := range []string{"", "null", "{}"} {
		m, err = DecodeMutation(model.ReqMarkAsDelivered, json.RawMessage(raw))
		require.NoError(t, err, raw)
		require.Equal(t, model.ReqMarkAsDelivered, m.RequestType())
	}
}

func TestDecodeMutationRejectsBadPayloads(t *testing.T) {
	cases := []struct {
		reqType model.RequestType
		raw     string
	}{
		{model.ReqCreateProduct, `{"name":"Desk","slug":"Oak Desk"}`},
		{model.ReqCreateProduct, `{"name":"","slug":"desk"}`},
		{model.ReqCreateProduct, `{"name":"Desk","slug":"desk","price":"-1"}`},
		{model.ReqCreateProduct, `{"name":"Desk","slug":"desk","count_in_stock":-4}`},
		{model.ReqUpdateProduct, `{}`},
		{model.ReqUpdateProduct, `{"reason":"only a reason"}`},
		{model.ReqUpdateProductStock, `{"count_in_stock":-1}`},
		{model.ReqUpdateOrderStatus, `{"status":"shipped"}`},
		{model.ReqRequestRestock, `{"quantity":-3}`},
		{model.ReqRequestRestock, `{"quantity":"three"}`},
		{model.ReqDeleteOrder, `{"force":true}`},
		{"TELEPORT", `{}`},
	}
	for _, tc := range cases {
		_, err := DecodeMutation(tc.reqType, json.RawMessage(tc.raw))
		require.ErrorIs(t, err, appErrors.ErrValidation, "%s %s", tc.reqType, tc.raw)
	}
}

func TestLockKey(t *testing.T) {
	id := uuid.MustParse("5b0c7f5e-8f1e-4b53-9d59-7c2f51d0c9a1")

	require.Equal(t, "slug:oak-desk", LockKey(&CreateProductMutation{Slug: "oak-desk"}, nil))
	require.Equal(t, "product:"+id.String(), LockKey(&RequestRestockMutation{Quantity: 1}, &id))
	require.Equal(t, "product:"+id.String(), LockKey(&DeleteProductMutation{}, &id))
	require.Equal(t, "order:"+id.String(), LockKey(&MarkAsPaidMutation{}, &id))
	require.Equal(t, "order:"+id.String(), LockKey(&UpdateOrderStatusMutation{Status: "paid"}, &id))
	require.Empty(t, LockKey(&DeleteOrderMutation{}, nil))
}
