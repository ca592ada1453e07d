package ports

import (
	"context"
	"time"
)

// Event types emitted by the checkout flow
const (
	EventOrderCreated        = "order.created"
	EventPushAccepted        = "payment.push_accepted"
	EventPaymentSucceeded    = "payment.succeeded"
	EventPaymentFailed       = "payment.failed"
	EventPersistenceDegraded = "payment.persistence_degraded"
	EventDoubleCharge        = "payment.double_charge_suspected"
)

// Event is a notification about an order, consumed by kitchen displays and staff alerts
type Event struct {
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Type       string                 `json:"type"`
	OrderID    string                 `json:"order_id"`
}

// EventPublisher delivers events. Publishing is best effort: callers log
// failures and never fail the payment flow on them.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
