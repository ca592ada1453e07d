package order

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/mpesa-checkout/internal/adapters/mpesa"
	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
	"github.com/kevin07696/mpesa-checkout/pkg/observability"
	"github.com/kevin07696/mpesa-checkout/pkg/resilience"
)

// LineRequest is one cart line at checkout
type LineRequest struct {
	MenuItemID   string `json:"menu_item_id"`
	MenuItemName string `json:"menu_item_name"`
	Quantity     int32  `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"`
}

// CreateOrderRequest is the checkout form
type CreateOrderRequest struct {
	CustomerName    string        `json:"customer_name"`
	CustomerPhone   string        `json:"customer_phone"`
	CustomerEmail   string        `json:"customer_email,omitempty"`
	DeliveryAddress string        `json:"delivery_address,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	Items           []LineRequest `json:"items"`
}

// Service owns order creation and the staff-driven parts of the order lifecycle
type Service struct {
	store    ports.OrderRepository
	events   ports.EventPublisher
	timeouts *resilience.TimeoutConfig
	logger   *zap.Logger
}

// NewService creates a new order service
func NewService(store ports.OrderRepository, events ports.EventPublisher, timeouts *resilience.TimeoutConfig, logger *zap.Logger) *Service {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Service{
		store:    store,
		events:   events,
		timeouts: timeouts,
		logger:   logger,
	}
}

// Create validates the checkout, prices it from its lines and stores the
// order with its lines in one transaction.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	order, lines, err := buildOrder(req)
	if err != nil {
		return nil, err
	}

	dbCtx, cancel := s.timeouts.DatabaseContext(ctx)
	defer cancel()

	if err := s.store.Create(dbCtx, order, lines); err != nil {
		s.logger.Error("Failed to create order", zap.Error(err))
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to create order", err)
	}

	observability.RecordOrderCreated()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total_amount", order.TotalAmount),
		zap.Int("lines", len(lines)),
	)

	// replaces the kitchen notification webhook
	if s.events != nil {
		address := "Walk-in / Pick-up"
		if order.DeliveryAddress != nil {
			address = *order.DeliveryAddress
		}
		err := s.events.Publish(dbCtx, ports.Event{
			Type:       ports.EventOrderCreated,
			OrderID:    order.ID,
			OccurredAt: time.Now().UTC(),
			Data: map[string]interface{}{
				"order_number":     order.OrderNumber,
				"customer_name":    order.CustomerName,
				"customer_phone":   order.CustomerPhone,
				"total_amount":     order.TotalAmount,
				"payment_status":   string(order.PaymentStatus),
				"delivery_address": address,
			},
		})
		if err != nil {
			s.logger.Warn("Failed to publish order.created", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	return order, nil
}

func buildOrder(req CreateOrderRequest) (*domain.Order, []domain.OrderLine, error) {
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		return nil, nil, missing("customer_name")
	}
	if strings.TrimSpace(req.CustomerPhone) == "" {
		return nil, nil, missing("customer_phone")
	}
	phone := mpesa.NormalizePhone(req.CustomerPhone)
	if !mpesa.ValidKenyanMSISDN(phone) {
		return nil, nil, domain.NewDomainError(domain.ErrorCodeValidationFailed,
			"please enter a valid Kenyan phone number (e.g., 0712345678 or 254712345678)").
			WithDetail("field", "customer_phone")
	}
	if len(req.Items) == 0 {
		return nil, nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "order must contain at least one item").
			WithDetail("field", "items")
	}

	order := &domain.Order{
		CustomerName:    name,
		CustomerPhone:   phone,
		CustomerEmail:   optional(req.CustomerEmail),
		DeliveryAddress: optional(req.DeliveryAddress),
		Notes:           optional(req.Notes),
		PaymentStatus:   domain.PaymentStatusPending,
		OrderStatus:     domain.OrderStatusNew,
	}
	if order.CustomerEmail != nil {
		if _, err := mail.ParseAddress(*order.CustomerEmail); err != nil {
			return nil, nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "invalid email address").
				WithDetail("field", "customer_email")
		}
	}

	lines := make([]domain.OrderLine, 0, len(req.Items))
	for i, item := range req.Items {
		switch {
		case item.MenuItemID == "" || strings.TrimSpace(item.MenuItemName) == "":
			return nil, nil, missing("items.menu_item").WithDetail("index", i)
		case item.Quantity <= 0:
			return nil, nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "quantity must be positive").
				WithDetail("index", i)
		case item.UnitPrice <= 0:
			return nil, nil, domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "unit price must be positive").
				WithDetail("index", i)
		}
		lines = append(lines, domain.NewOrderLine(item.MenuItemID, strings.TrimSpace(item.MenuItemName), item.Quantity, item.UnitPrice))
	}
	order.TotalAmount = domain.SumSubtotals(lines)

	return order, lines, nil
}

// Get returns an order with its lines
func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	dbCtx, cancel := s.timeouts.DatabaseContext(ctx)
	defer cancel()

	order, err := s.store.GetByID(dbCtx, id)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load order")
	}
	return order, nil
}

// List returns orders for the staff dashboard
func (s *Service) List(ctx context.Context, filter ports.OrderFilter) ([]*domain.Order, error) {
	if filter.PaymentStatus != nil && !filter.PaymentStatus.IsValid() {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "unknown payment_status").
			WithDetail("payment_status", string(*filter.PaymentStatus))
	}
	if filter.OrderStatus != nil && !filter.OrderStatus.IsValid() {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "unknown order_status").
			WithDetail("order_status", string(*filter.OrderStatus))
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}

	dbCtx, cancel := s.timeouts.DatabaseContext(ctx)
	defer cancel()

	orders, err := s.store.List(dbCtx, filter)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "failed to list orders", err)
	}
	return orders, nil
}

// UpdateOrderStatus moves the kitchen lifecycle
func (s *Service) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	dbCtx, cancel := s.timeouts.DatabaseContext(ctx)
	defer cancel()

	order, err := s.store.GetByID(dbCtx, id)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load order")
	}
	if !order.CanTransitionOrder(status) {
		return nil, domain.NewDomainError(domain.ErrorCodeInvalidStatusTransition, "order status cannot change").
			WithDetail("from", string(order.OrderStatus)).
			WithDetail("to", string(status))
	}

	if err := s.store.UpdateOrderStatus(dbCtx, id, status); err != nil {
		return nil, wrapStoreErr(err, "failed to update order status")
	}
	s.logger.Info("Order status updated",
		zap.String("order_id", id),
		zap.String("from", string(order.OrderStatus)),
		zap.String("to", string(status)),
	)

	order.OrderStatus = status
	return order, nil
}

// MarkRefunded records a refund made outside the system (paid -> refunded)
func (s *Service) MarkRefunded(ctx context.Context, id string) (*domain.Order, error) {
	dbCtx, cancel := s.timeouts.DatabaseContext(ctx)
	defer cancel()

	order, err := s.store.GetByID(dbCtx, id)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load order")
	}
	if !order.CanBeRefunded() {
		return nil, domain.NewDomainError(domain.ErrorCodeInvalidStatusTransition, "only paid orders can be refunded").
			WithDetail("payment_status", string(order.PaymentStatus))
	}

	if err := s.store.MarkRefunded(dbCtx, id); err != nil {
		return nil, wrapStoreErr(err, "failed to mark order refunded")
	}
	s.logger.Info("Order marked refunded",
		zap.String("order_id", id),
		zap.String("receipt", order.GetReceipt()),
	)

	order.PaymentStatus = domain.PaymentStatusRefunded
	return order, nil
}

func wrapStoreErr(err error, msg string) error {
	if errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, domain.ErrInvalidStatusTransition) {
		return err
	}
	return domain.WrapError(domain.ErrorCodeDatabaseError, msg, err)
}

func missing(field string) *domain.DomainError {
	return domain.NewDomainError(domain.ErrorCodeValidationMissingField, field+" is required").
		WithDetail("field", field)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
