package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func TestNATSNotifierPublishesOrderPaid(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNATSNotifier(pub, "notifications.test", nil, nil)

	paidAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n.OrderPaid(context.Background(), OrderPaidEvent{
		OrderID:    "order-1",
		UserID:     "user-1",
		Email:      "buyer@example.com",
		TotalPrice: "56.00",
		PaidAt:     paidAt,
		Items:      []OrderPaidItem{{Name: "lamp", Quantity: 2, Price: "40.00"}},
	})

	require.Equal(t, []string{"notifications.test.order_paid"}, pub.subjects)

	var event NotificationEvent
	require.NoError(t, json.Unmarshal(pub.payloads[0], &event))
	require.Equal(t, EventOrderPaid, event.EventType)
	require.Equal(t, "order", event.ResourceType)
	require.Equal(t, "order-1", event.ResourceID)
	require.True(t, paidAt.Equal(event.OccurredAt))
}

func TestNATSNotifierSwallowsFailures(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection closed")}
	n := NewNATSNotifier(pub, "", nil, nil)

	require.NotPanics(t, func() {
		n.ApprovalEvent(context.Background(), EventApprovalSubmitted, "actor-1", ApprovalRequestResponse{ID: "req-1", Status: "pending"})
	})
	require.Equal(t, []string{"notifications.store.approval_submitted"}, pub.subjects)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.OrderPaid(ctx, OrderPaidEvent{OrderID: "order-2"})
	require.Len(t, pub.subjects, 1, "cancelled context publishes nothing")

	var nilNotifier *NATSNotifier
	require.NotPanics(t, func() { nilNotifier.OrderPaid(context.Background(), OrderPaidEvent{}) })
}
