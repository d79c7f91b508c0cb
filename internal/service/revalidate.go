package service

import (
	"context"
	"encoding/json"

	ws "storefront/internal/websocket"

	"go.uber.org/zap"
)

// View paths whose cached renderings go stale after workflow transitions.
const (
	PathApprovals = "/admin/approvals"
	PathOrders    = "/admin/orders"
	PathProducts  = "/products"
	PathStock     = "/admin/stock"
)

// ProductPath is the detail view of one product.
func ProductPath(slug string) string {
	return PathProducts + "/" + slug
}

// Revalidator signals that cached views of the given paths are stale. It never
// fails the caller.
type Revalidator interface {
	Revalidate(ctx context.Context, paths ...string)
}

// Revalidators fans a signal out to every member.
type Revalidators []Revalidator

func (rs Revalidators) Revalidate(ctx context.Context, paths ...string) {
	for _, r := range rs {
		if r != nil {
			r.Revalidate(ctx, paths...)
		}
	}
}

// RevalidateEvent is broadcast to connected back-office clients.
type RevalidateEvent struct {
	Event string              `json:"event"`
	Data  RevalidateEventData `json:"data"`
}

type RevalidateEventData struct {
	Paths []string `json:"paths"`
}

// WebsocketRevalidator pushes revalidation events to back-office clients so open
// listings refresh their "Pending Approval" state.
type WebsocketRevalidator struct {
	hub    *ws.Hub
	logger *zap.Logger
}

func NewWebsocketRevalidator(hub *ws.Hub, logger *zap.Logger) *WebsocketRevalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebsocketRevalidator{hub: hub, logger: logger}
}

func (w *WebsocketRevalidator) Revalidate(_ context.Context, paths ...string) {
	if w == nil || w.hub == nil || len(paths) == 0 {
		return
	}
	msg, err := json.Marshal(RevalidateEvent{Event: "revalidate", Data: RevalidateEventData{Paths: paths}})
	if err != nil {
		w.logger.Warn("failed to marshal revalidate event", zap.Error(err))
		return
	}
	w.hub.Publish(msg)
}

func dedupePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
