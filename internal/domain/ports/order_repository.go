package ports

import (
	"context"
	"time"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
)

// PaymentUpdate describes a gateway-driven payment outcome.
// OrderStatus is optional; when nil the kitchen lifecycle is left untouched.
type PaymentUpdate struct {
	Receipt       *string
	OrderStatus   *domain.OrderStatus
	OrderID       string
	PaymentStatus domain.PaymentStatus
}

// OrderFilter narrows List results
type OrderFilter struct {
	PaymentStatus *domain.PaymentStatus
	OrderStatus   *domain.OrderStatus
	Limit         int32
	Offset        int32
}

// OrderRepository is the order-record store shared by checkout, the push
// initiator, the callback receiver and the status poller.
type OrderRepository interface {
	// Create inserts the order and its lines in one transaction and assigns
	// ID, OrderNumber and timestamps on the passed order.
	Create(ctx context.Context, order *domain.Order, lines []domain.OrderLine) error

	// GetByID returns domain.ErrOrderNotFound when no row matches
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// GetByCorrelationID looks an order up by the gateway CheckoutRequestID
	GetByCorrelationID(ctx context.Context, checkoutRequestID string) (*domain.Order, error)

	// UpdateCorrelation stores the latest CheckoutRequestID, replacing any previous one.
	// Only pending and failed orders are updated; a settled order returns ErrOrderAlreadyPaid.
	// A failed order is moved back to pending because a fresh attempt is now outstanding.
	UpdateCorrelation(ctx context.Context, id, checkoutRequestID string) error

	// UpdatePayment applies a gateway outcome. It only changes orders that are
	// still pending and reports whether a row was changed.
	UpdatePayment(ctx context.Context, update PaymentUpdate) (bool, error)

	// UpdateOrderStatus moves the kitchen lifecycle
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error

	// MarkRefunded moves a paid order to refunded
	MarkRefunded(ctx context.Context, id string) error

	// List returns orders newest first
	List(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)

	// ListDegraded returns pending orders created before cutoff that never
	// received a CheckoutRequestID
	ListDegraded(ctx context.Context, cutoff time.Time) ([]*domain.Order, error)
}
