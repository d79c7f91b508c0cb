package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"storefront/internal/model"
	"storefront/internal/repository"
	appErrors "storefront/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func rawPayload(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func submitPending(t *testing.T, f *workflowFixture, actor Actor, reqType model.RequestType, targetID *uuid.UUID, payload interface{}) uuid.UUID {
	t.Helper()
	res, err := f.approvals.Submit(context.Background(), actor, SubmitRequest{
		Type:     reqType,
		TargetID: targetID,
		Payload:  rawPayload(t, payload),
	})
	require.NoError(t, err)
	require.Equal(t, OutcomePending, res.Outcome)
	require.NotNil(t, res.Request)
	return uuid.MustParse(res.Request.ID)
}

func TestSubmitAdminAppliesDirectly(t *testing.T) {
	f := newWorkflowFixture(true)
	p := f.seedProduct("desk-lamp", 10)

	res, err := f.approvals.Submit(context.Background(), f.admin, SubmitRequest{
		Type:     model.ReqRequestRestock,
		TargetID: &p.ID,
		Payload:  rawPayload(t, map[string]interface{}{"quantity": 5, "reason": "supplier delivery"}),
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeDirect, res.Outcome)
	require.Nil(t, res.Request)
	require.Equal(t, p.ID.String(), res.Entity)

	require.Equal(t, 15, f.product(p.ID).CountInStock)
	require.Empty(t, f.store.approvals)

	movements := f.movementsFor(p.ID)
	require.Len(t, movements, 1)
	require.Equal(t, model.MovementRestock, movements[0].Type)
	require.Equal(t, 5, movements[0].StockIn)
	require.Equal(t, 15, movements[0].StockAfter)
	require.Equal(t, f.admin.ID, *movements[0].InitiatedBy)

	require.Equal(t, []string{model.ActionDirectMutation}, f.auditActions())
	require.Contains(t, f.revalidator.paths, ProductPath("desk-lamp"))
	require.Contains(t, f.revalidator.paths, PathStock)
}

func TestSubmitStaffQueuesRequestWithoutMutating(t *testing.T) {
	f := newWorkflowFixture(true)
	p := f.seedProduct("desk-lamp", 10)

	id := submitPending(t, f, f.stocker, model.ReqUpdateProductStock, &p.ID, map[string]interface{}{"count_in_stock": 4})

	stored := f.approval(id)
	require.Equal(t, model.ApprovalPending, stored.Status)
	require.Equal(t, "product:"+p.ID.String(), stored.LockKey)
	require.Equal(t, f.stocker.ID, stored.RequestedBy)
	require.Nil(t, stored.ReviewedBy)

	require.Equal(t, 10, f.product(p.ID).CountInStock)
	require.Empty(t, f.movementsFor(p.ID))
	require.Equal(t, []string{model.ActionSubmitApproval}, f.auditActions())
	require.Equal(t, []string{EventApprovalSubmitted}, f.notifier.approvals)
}

func TestSubmitRejectsRolesOutsidePolicy(t *testing.T) {
	f := newWorkflowFixture(true)
	p := f.seedProduct("desk-lamp", 10)
	o := f.seedOrder(f.user.ID)

	cases := []struct {
		name  string
		actor Actor
		req   SubmitRequest
	}{
		{"customer creates product", f.user, SubmitRequest{Type: model.ReqCreateProduct, Payload: rawPayload(t, map[string]interface{}{"name": "x", "slug": "x"})}},
		{"sale restocks", f.sale, SubmitRequest{Type: model.ReqRequestRestock, TargetID: &p.ID, Payload: rawPayload(t, map[string]interface{}{"quantity": 1})}},
		{"stocker marks paid", f.stocker, SubmitRequest{Type: model.ReqMarkAsPaid, TargetID: &o.ID}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.approvals.Submit(context.Background(), tc.actor, tc.req)
			require.ErrorIs(t, err, appErrors.ErrNotAuthorized)
		})
	}
	require.Empty(t, f.store.approvals)
	require.Empty(t, f.store.audits)
}

func TestSubmitValidatesPayloadAndTarget(t *testing.T) {
	f := newWorkflowFixture(true)
	p := f.seedProduct("desk-lamp", 10)
	missing := uuid.New()

	cases := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"unknown type", SubmitRequest{Type: "SELL_EVERYTHING"}, appErrors.ErrValidation},
		{"zero restock", SubmitRequest{Type: model.ReqRequestRestock, TargetID: &p.ID, Payload: rawPayload(t, map[string]interface{}{"quantity": 0})}, appErrors.ErrValidation},
		{"unknown field", SubmitRequest{Type: model.ReqUpdateProductStock, TargetID: &p.ID, Payload: json.RawMessage(`{"count_in_stock":1,"colour":"red"}`)}, appErrors.ErrValidation},
		{"missing target", SubmitRequest{Type: model.ReqUpdateProductStock, Payload: rawPayload(t, map[string]interface{}{"count_in_stock": 1})}, appErrors.ErrValidation},
		{"target does not exist", SubmitRequest{Type: model.ReqUpdateProductStock, TargetID: &missing, Payload: rawPayload(t, map[string]interface{}{"count_in_stock": 1})}, appErrors.ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.approvals.Submit(context.Background(), f.stocker, tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.Empty(t, f.store.approvals)
}

func TestSubmitRefusesSecondPendingRequestForSameTarget(t *testing.T) {
	f := newWorkflowFixture(true)
	p := f.seedProduct("desk-lamp", 10)

	first := submitPending(t, f, f.stocker, model.ReqUpdateProductStock, &p.ID, map[string]interface{}{"count_in_stock": 4})

	_, err := f.approvals.Submit(context.Background(), f.stocker, SubmitRequest{
		Type:     model.ReqRequestRestock,
		TargetID: &p.ID,
		Payload:  rawPayload(t, map[string]interface{}{"quantity": 3}),
	})
	require.ErrorIs(t, err, appErrors.ErrDuplicatePending)

	_, err = f.approvals.Resolve(context.Background(), f.admin, first, DecisionReject, "wrong count")
	require.NoError(t, err)

	submitPending(t, f, f.stocker, model.ReqRequestRestock, &p.ID, map[string]interface{}{"quantity": 3})
}

func TestSubmitCreateProductLocksSlug(t *testing.T) {
	f := newWorkflowFixture(true)
	payload := map[string]interface{}{"name": "Oak Desk", "slug": "oak-desk", "price": "129.90", "count_in_stock": 3}

	id := submitPending(t, f, f.stocker, model.ReqCreateProduct, nil, payload)
	require.Equal(t, "slug:oak-desk", f.approval(id).LockKey)
	require.Nil(t, f.approval(id).TargetID)

	_, err := f.approvals.Submit(context.Background(), f.stocker, SubmitRequest{
		Type:    model.ReqCreateProduct,
		Payload: rawPayload(t, payload),
	})
	require.ErrorIs(t, err, appErrors.ErrDuplicatePending)
}

func TestSubmitMapsUniqueIndexRaceToDuplicatePending(t *testing.T) {
	f := newWorkflowFixture(true)
	p := f.seedProduct("desk-lamp", 10)

	// A racing submission commits after our lookup ran.
	f.store.hideLockLookups = true
	repo := fakeApprovalRepo{f.store}
	require.NoError(t, repo.Create(context.Background(), &model.ApprovalRequest{
		Type:        model.ReqRequestRestock,
		TargetID:    &p.ID,
		LockKey:     "product:" + p.ID.String(),
		Payload:     `{"quantity":1}`,
		Status:      model.ApprovalPending,
		RequestedBy: f.stocker.ID,
	}))

	_, err := f.approvals.Submit(context.Background(), f.stocker, SubmitRequest{
		Type:     model.ReqUpdateProductStock,
		TargetID: &p.ID,
		Payload:  rawPayload(t, map[string]interface{}{"count_in_stock": 2}),
	})
	require.ErrorIs(t, err, appErrors.ErrDuplicatePending)
	require.Len(t, f.store.approvals, 1)
}

func TestResolveApproveReplaysCreateProduct(t *testing.T) {
	f := newWorkflowFixture(true)
	id := submitPending(t, f, f.stocker, model.ReqCreateProduct, nil, map[string]interface{}{
		"name": "Oak Desk", "slug": "oak-desk", "price": "129.90", "count_in_stock": 3,
	})

	resp, err := f.approvals.Resolve(context.Background(), f.admin, id, DecisionApprove, "ok")
	require.NoError(t, err)
	require.Equal(t, model.ApprovalApproved, resp.Status)
	require.Equal(t, "admin person", resp.ReviewerName)
	require.Equal(t, "stocker person", resp.RequesterName)
	require.Equal(t, "ok", resp.Note)
	require.NotNil(t, resp.ReviewedAt)

	created, err := fakeProductRepo{f.store}.FindBySlug(context.Background(), "oak-desk")
	require.NoError(t, err)
	require.True(t, created.IsPublished)
	require.Equal(t, 3, created.CountInStock)
	require.Equal(t, 3, created.InitialStock)
	require.True(t, created.Price.Equal(decimal.RequireFromString("129.90")))
	require.Empty(t, f.store.movements)

	require.Equal(t, []string{model.ActionSubmitApproval, model.ActionApproveRequest}, f.auditActions())
	require.Equal(t, []string{EventApprovalSubmitted, EventApprovalResolved}, f.notifier.approvals)
}

func TestResolveApproveMarkAsPaidWritesSaleRows(t *testing.T) {
	f := newWorkflowFixture(true)
	lamp := f.seedProduct("desk-lamp", 10)
	chair := f.seedProduct("chair", 4)
	o := f.seedOrder(f.user.ID,
		model.OrderItem{ProductID: lamp.ID, Name: "desk-lamp", Quantity: 2, Price: decimal.NewFromInt(20)},
		model.OrderItem{ProductID: chair.ID, Name: "chair", Quantity: 4, Price: decimal.NewFromInt(50)},
	)

	id := submitPending(t, f, f.sale, model.ReqMarkAsPaid, &o.ID, map[string]interface{}{"payment_ref": "pi_123"})
	require.Equal(t, "order:"+o.ID.String(), f.approval(id).LockKey)

	_, err := f.approvals.Resolve(context.Background(), f.admin, id, DecisionApprove, "")
	require.NoError(t, err)

	paid := f.order(o.ID)
	require.True(t, paid.IsPaid)
	require.NotNil(t, paid.PaidAt)
	require.Equal(t, "pi_123", paid.PaymentRef)

	require.Equal(t, 8, f.product(lamp.ID).CountInStock)
	require.Equal(t, 0, f.product(chair.ID).CountInStock)

	for _, tc := range []struct {
		product model.Product
		out     int
		after   int
	}{{lamp, 2, 8}, {chair, 4, 0}} {
		rows := f.movementsFor(tc.product.ID)
		require.Len(t, rows, 1)
		require.Equal(t, model.MovementSale, rows[0].Type)
		require.Equal(t, tc.out, rows[0].StockOut)
		require.Zero(t, rows[0].StockIn)
		require.Equal(t, tc.after, rows[0].StockAfter)
		require.Equal(t, o.ID, *rows[0].OrderID)
		require.Equal(t, f.sale.ID, *rows[0].InitiatedBy)
	}

	require.Len(t, f.notifier.paid, 1)
	require.Equal(t, o.ID.String(), f.notifier.paid[0].OrderID)
	require.Equal(t, "user@example.com", f.notifier.paid[0].Email)
	require.Len(t, f.notifier.paid[0].Items, 2)
}

func TestResolveReplayFailureLeavesRequestPending(t *testing.T) {
	f := newWorkflowFixture(true)
	lamp := f.seedProduct("desk-lamp", 10)
	chair := f.seedProduct("chair", 1)
	o := f.seedOrder(f.user.ID,
		model.OrderItem{ProductID: lamp.ID, Name: "desk-lamp", Quantity: 2, Price: decimal.NewFromInt(20)},
		model.OrderItem{ProductID: chair.ID, Name: "chair", Quantity: 3, Price: decimal.NewFromInt(50)},
	)
	id := submitPending(t, f, f.sale, model.ReqMarkAsPaid, &o.ID, map[string]interface{}{})

	_, err := f.approvals.Resolve(context.Background(), f.admin, id, DecisionApprove, "")
	require.ErrorIs(t, err, appErrors.ErrInsufficientStock)

	require.Equal(t, model.ApprovalPending, f.approval(id).Status)
	require.Nil(t, f.approval(id).ReviewedBy)
	require.False(t, f.order(o.ID).IsPaid)
	require.Equal(t, 10, f.product(lamp.ID).CountInStock)
	require.Equal(t, 1, f.product(chair.ID).CountInStock)
	require.Empty(t, f.store.movements)
	require.Empty(t, f.notifier.paid)
	require.Equal(t, []string{model.ActionSubmitApproval}, f.auditActions())

	// Once stock arrives the same request can still be approved.
	_, err = f.approvals.Submit(context.Background(), f.admin, SubmitRequest{
		Type:     model.ReqRequestRestock,
		TargetID: &chair.ID,
		Payload:  rawPayload(t, map[string]interface{}{"quantity": 5}),
	})
	require.NoError(t, err)

	_, err = f.approvals.Resolve(context.Background(), f.admin, id, DecisionApprove, "")
	require.NoError(t, err)
	require.Equal(t, 3, f.product(chair.ID).CountInStock)
}

func TestResolveRejectDoesNotMutate(t *testing.T) {
	f := newWorkflowFixture(true)
	p := f.seedProduct("desk-lamp", 10)
	id := submitPending(t, f, f.stocker, model.ReqRequestRestock, &p.ID, map[string]interface{}{"quantity": 7})

	resp, err := f.approvals.Resolve(context.Background(), f.admin, id, DecisionReject, "not needed")
	require.NoError(t, err)
	require.Equal(t, model.ApprovalRejected, resp.Status)
	require.Equal(t, "not needed", resp.Note)

	require.Equal(t, 10, f.product(p.ID).CountInStock)
	require.Empty(t, f.store.movements)
	require.Equal(t, []string{model.ActionSubmitApproval, model.ActionRejectRequest}, f.auditActions())
}

func TestResolveIsOnlyAllowedOnce(t *testing.T) {
	f := newWorkflowFixture(true)
	p := f.seedProduct("desk-lamp", 10)
	id := submitPending(t, f, f.stocker, model.ReqRequestRestock, &p.ID, map[string]interface{}{"quantity": 5})

	_, err := f.approvals.Resolve(context.Background(), f.admin, id, DecisionApprove, "")
	require.NoError(t, err)

	_, err = f.approvals.Resolve(context.Background(), f.admin, id, DecisionApprove, "")
	require.ErrorIs(t, err, appErrors.ErrAlreadyResolved)
	_, err = f.approvals.Resolve(context.Background(), f.admin, id, DecisionReject, "")
	require.ErrorIs(t, err, appErrors.ErrAlreadyResolved)

	require.Equal(t, 15, f.product(p.ID).CountInStock)
	require.Len(t, f.movementsFor(p.ID), 1)
}

func TestResolveConcurrentApprovalsApplyOnce(t *testing.T) {
	f := newWorkflowFixture(true)
	p := f.seedProduct("desk-lamp", 10)
	id := submitPending(t, f, f.stocker, model.ReqRequestRestock, &p.ID, map[string]interface{}{"quantity": 5})

	const reviewers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		resolved  int
	)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.approvals.Resolve(context.Background(), f.admin, id, DecisionApprove, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case appErrors.FromError(err).Code == appErrors.ErrAlreadyResolved.Code:
				resolved++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, succeeded)
	require.Equal(t, reviewers-1, resolved)
	require.Equal(t, 15, f.product(p.ID).CountInStock)
	require.Len(t, f.movementsFor(p.ID), 1)
}

func TestResolveLosesRaceToConditionalUpdate(t *testing.T) {
	f := newWorkflowFixture(true)
	p := f.seedProduct("desk-lamp", 10)
	id := submitPending(t, f, f.stocker, model.ReqRequestRestock, &p.ID, map[string]interface{}{"quantity": 5})

	// Another reviewer flips the row between our read and our update.
	f.store.beforeTransition = func(target uuid.UUID) {
		f.store.mu.Lock()
		defer f.store.mu.Unlock()
		a := f.store.approvals[target]
		a.Status = model.ApprovalRejected
		f.store.approvals[target] = a
	}

	_, err := f.approvals.Resolve(context.Background(), f.admin, id, DecisionApprove, "")
	require.ErrorIs(t, err, appErrors.ErrAlreadyResolved)
	require.Equal(t, 10, f.product(p.ID).CountInStock)
	require.Empty(t, f.store.movements)
}

func TestResolveRequiresReviewer(t *testing.T) {
	f := newWorkflowFixture(true)
	p := f.seedProduct("desk-lamp", 10)
	id := submitPending(t, f, f.stocker, model.ReqRequestRestock, &p.ID, map[string]interface{}{"quantity": 5})

	_, err := f.approvals.Resolve(context.Background(), f.stocker, id, DecisionApprove, "")
	require.ErrorIs(t, err, appErrors.ErrNotAuthorized)

	_, err = f.approvals.Resolve(context.Background(), f.admin, id, Decision("maybe"), "")
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.approvals.Resolve(context.Background(), f.admin, uuid.New(), DecisionApprove, "")
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	require.Equal(t, model.ApprovalPending, f.approval(id).Status)
}

func TestResolveStockEditHonoursLedgerTracking(t *testing.T) {
	for _, track := range []bool{true, false} {
		f := newWorkflowFixture(track)
		p := f.seedProduct("desk-lamp", 10)
		id := submitPending(t, f, f.stocker, model.ReqUpdateProductStock, &p.ID, map[string]interface{}{"count_in_stock": 6, "reason": "cycle count"})

		_, err := f.approvals.Resolve(context.Background(), f.admin, id, DecisionApprove, "")
		require.NoError(t, err)
		require.Equal(t, 6, f.product(p.ID).CountInStock)

		rows := f.movementsFor(p.ID)
		if !track {
			require.Empty(t, rows)
			continue
		}
		require.Len(t, rows, 1)
		require.Equal(t, model.MovementAdjustment, rows[0].Type)
		require.Equal(t, 4, rows[0].StockOut)
		require.Equal(t, 6, rows[0].StockAfter)
		require.Equal(t, "cycle count", rows[0].Reason)
		require.Equal(t, f.stocker.ID, *rows[0].InitiatedBy)
	}
}

func TestResolveUpdateProductRejectsTakenSlug(t *testing.T) {
	f := newWorkflowFixture(true)
	p := f.seedProduct("desk-lamp", 10)
	f.seedProduct("floor-lamp", 2)

	id := submitPending(t, f, f.stocker, model.ReqUpdateProduct, &p.ID, map[string]interface{}{"slug": "floor-lamp"})

	_, err := f.approvals.Resolve(context.Background(), f.admin, id, DecisionApprove, "")
	require.ErrorIs(t, err, appErrors.ErrDuplicateSlug)
	require.Equal(t, "desk-lamp", f.product(p.ID).Slug)
	require.Equal(t, model.ApprovalPending, f.approval(id).Status)
}

func TestResolveOrderStatusDelegates(t *testing.T) {
	f := newWorkflowFixture(true)
	lamp := f.seedProduct("desk-lamp", 10)
	o := f.seedOrder(f.user.ID, model.OrderItem{ProductID: lamp.ID, Name: "desk-lamp", Quantity: 1, Price: decimal.NewFromInt(20)})

	deliver := submitPending(t, f, f.sale, model.ReqUpdateOrderStatus, &o.ID, map[string]interface{}{"status": "delivered"})
	_, err := f.approvals.Resolve(context.Background(), f.admin, deliver, DecisionApprove, "")
	require.ErrorIs(t, err, appErrors.ErrConflict)
	_, err = f.approvals.Resolve(context.Background(), f.admin, deliver, DecisionReject, "pay first")
	require.NoError(t, err)

	pay := submitPending(t, f, f.sale, model.ReqUpdateOrderStatus, &o.ID, map[string]interface{}{"status": "paid"})
	_, err = f.approvals.Resolve(context.Background(), f.admin, pay, DecisionApprove, "")
	require.NoError(t, err)
	require.True(t, f.order(o.ID).IsPaid)
	require.Len(t, f.movementsFor(lamp.ID), 1)

	deliver = submitPending(t, f, f.sale, model.ReqUpdateOrderStatus, &o.ID, map[string]interface{}{"status": "delivered"})
	_, err = f.approvals.Resolve(context.Background(), f.admin, deliver, DecisionApprove, "")
	require.NoError(t, err)
	require.True(t, f.order(o.ID).IsDelivered)
}

func TestSubmitDirectDeleteProductSoft(t *testing.T) {
	f := newWorkflowFixture(true)
	p := f.seedProduct("desk-lamp", 10)

	_, err := f.approvals.Submit(context.Background(), f.admin, SubmitRequest{
		Type:     model.ReqDeleteProduct,
		TargetID: &p.ID,
		Payload:  rawPayload(t, map[string]interface{}{"soft": true}),
	})
	require.NoError(t, err)

	deleted := f.product(p.ID)
	require.True(t, deleted.IsDeleted)
	require.False(t, deleted.IsPublished)
	require.NotNil(t, deleted.DeletedAt)
}

func TestPendingIndexAndList(t *testing.T) {
	f := newWorkflowFixture(true)
	lamp := f.seedProduct("desk-lamp", 10)
	chair := f.seedProduct("chair", 4)

	id := submitPending(t, f, f.stocker, model.ReqRequestRestock, &lamp.ID, map[string]interface{}{"quantity": 5})

	index, err := f.approvals.PendingIndex(context.Background(), []uuid.UUID{lamp.ID, chair.ID})
	require.NoError(t, err)
	require.Len(t, index, 1)
	require.Equal(t, id.String(), index[lamp.ID.String()].RequestID)
	require.Equal(t, model.ReqRequestRestock, index[lamp.ID.String()].Type)

	empty, err := f.approvals.PendingIndex(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, empty)

	stockerID := f.stocker.ID
	items, total, err := f.approvals.List(context.Background(), repository.ApprovalFilter{
		Status:      model.ApprovalPending,
		RequestedBy: &stockerID,
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, id.String(), items[0].ID)

	_, total, err = f.approvals.List(context.Background(), repository.ApprovalFilter{Status: model.ApprovalApproved})
	require.NoError(t, err)
	require.Zero(t, total)
}
