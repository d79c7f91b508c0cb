package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Notification event types
const (
	EventOrderPaid         = "order_paid"
	EventApprovalSubmitted = "approval_submitted"
	EventApprovalResolved  = "approval_resolved"
)

// OrderPaidEvent carries what the receipt mailer needs. The mailer itself lives
// outside this service.
type OrderPaidEvent struct {
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	Email      string          `json:"email"`
	Name       string          `json:"name"`
	TotalPrice string          `json:"total_price"`
	PaymentRef string          `json:"payment_ref,omitempty"`
	PaidAt     time.Time       `json:"paid_at"`
	Items      []OrderPaidItem `json:"items"`
}

type OrderPaidItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

// NotificationEvent is the envelope published on every subject.
type NotificationEvent struct {
	EventType    string      `json:"event_type"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id"`
	ActorID      string      `json:"actor_id,omitempty"`
	OccurredAt   time.Time   `json:"occurred_at"`
	Payload      interface{} `json:"payload,omitempty"`
}

// Notifier is fire-and-forget: failures are logged and never returned, so a
// notification problem cannot roll back or fail a committed mutation.
type Notifier interface {
	OrderPaid(ctx context.Context, event OrderPaidEvent)
	ApprovalEvent(ctx context.Context, eventType string, actorID string, req ApprovalRequestResponse)
}

// publisher is the subset of *nats.Conn the notifier uses.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes events on <prefix>.<event_type>.
type NATSNotifier struct {
	conn    publisher
	prefix  string
	metrics *MetricsService
	logger  *zap.Logger
}

func NewNATSNotifier(conn publisher, prefix string, metrics *MetricsService, logger *zap.Logger) *NATSNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "notifications.store"
	}
	return &NATSNotifier{conn: conn, prefix: prefix, metrics: metrics, logger: logger}
}

// ConnectNATS dials the server with reconnects enabled.
func ConnectNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("storefront-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
}

func (n *NATSNotifier) OrderPaid(ctx context.Context, event OrderPaidEvent) {
	n.publish(ctx, EventOrderPaid, NotificationEvent{
		EventType:    EventOrderPaid,
		ResourceType: "order",
		ResourceID:   event.OrderID,
		ActorID:      event.UserID,
		OccurredAt:   event.PaidAt,
		Payload:      event,
	})
}

func (n *NATSNotifier) ApprovalEvent(ctx context.Context, eventType string, actorID string, req ApprovalRequestResponse) {
	n.publish(ctx, eventType, NotificationEvent{
		EventType:    eventType,
		ResourceType: "approval_request",
		ResourceID:   req.ID,
		ActorID:      actorID,
		OccurredAt:   time.Now(),
		Payload: map[string]interface{}{
			"type":         req.Type,
			"status":       req.Status,
			"target_id":    req.TargetID,
			"requested_by": req.RequestedBy,
		},
	})
}

func (n *NATSNotifier) publish(ctx context.Context, eventType string, event NotificationEvent) {
	if n == nil || n.conn == nil {
		return
	}
	if ctx.Err() != nil {
		return
	}

	subject := fmt.Sprintf("%s.%s", n.prefix, eventType)
	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("notification: failed to marshal event", zap.String("event_type", eventType), zap.Error(err))
		return
	}

	err = n.conn.Publish(subject, data)
	n.metrics.RecordNotification(subject, err)
	if err != nil {
		n.logger.Warn("notification: failed to publish event (non-fatal)",
			zap.String("subject", subject),
			zap.String("resource_id", event.ResourceID),
			zap.Error(err),
		)
		return
	}

	n.logger.Debug("notification: event published", zap.String("subject", subject), zap.String("resource_id", event.ResourceID))
}

// NopNotifier discards every event. Used when NATS is not configured.
type NopNotifier struct{}

func (NopNotifier) OrderPaid(context.Context, OrderPaidEvent) {}

func (NopNotifier) ApprovalEvent(context.Context, string, string, ApprovalRequestResponse) {}
