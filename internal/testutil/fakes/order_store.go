// Package fakes provides in-memory implementations of the domain ports with
// the same state-machine guarantees as the Postgres adapter.
package fakes

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
)

// OrderStore is an in-memory ports.OrderRepository.
// The Err fields inject failures into the matching method.
type OrderStore struct {
	UpdateCorrelationErr error
	UpdatePaymentErr     error
	Now                  func() time.Time

	orders map[string]*domain.Order
	seq    int
	writes int
	mu     sync.Mutex
}

var _ ports.OrderRepository = (*OrderStore)(nil)

// NewOrderStore creates an empty store
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders: make(map[string]*domain.Order),
		Now:    time.Now,
	}
}

// Put inserts an order as-is, bypassing Create
func (s *OrderStore) Put(order *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = clone(order)
}

// Writes returns the number of successful mutations since the store was created
func (s *OrderStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *OrderStore) Create(_ context.Context, order *domain.Order, lines []domain.OrderLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	s.seq++
	order.ID = uuid.NewString()
	order.OrderNumber = fmt.Sprintf("MO-%s-%04d", now.Format("060102"), s.seq)
	order.CreatedAt = now
	order.UpdatedAt = now
	order.Items = make([]domain.OrderLine, len(lines))
	for i, l := range lines {
		l.ID = uuid.NewString()
		l.OrderID = order.ID
		l.CreatedAt = now
		order.Items[i] = l
	}
	s.orders[order.ID] = clone(order)
	s.writes++
	return nil
}

func (s *OrderStore) GetByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return clone(o), nil
}

func (s *OrderStore) GetByCorrelationID(_ context.Context, checkoutRequestID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.GetCheckoutID() == checkoutRequestID {
			return clone(o), nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (s *OrderStore) UpdateCorrelation(_ context.Context, id, checkoutRequestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateCorrelationErr != nil {
		return s.UpdateCorrelationErr
	}
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if !o.CanAcceptPush() {
		return domain.NewDomainError(domain.ErrorCodeOrderAlreadyPaid, "order is already settled").
			WithDetail("payment_status", string(o.PaymentStatus))
	}
	o.CheckoutID = &checkoutRequestID
	if o.PaymentStatus == domain.PaymentStatusFailed {
		o.PaymentStatus = domain.PaymentStatusPending
	}
	o.UpdatedAt = s.Now()
	s.writes++
	return nil
}

func (s *OrderStore) UpdatePayment(_ context.Context, update ports.PaymentUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdatePaymentErr != nil {
		return false, s.UpdatePaymentErr
	}
	o, ok := s.orders[update.OrderID]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if o.PaymentStatus != domain.PaymentStatusPending {
		return false, nil
	}
	o.PaymentStatus = update.PaymentStatus
	if update.Receipt != nil {
		r := *update.Receipt
		o.Receipt = &r
	}
	if update.OrderStatus != nil {
		o.OrderStatus = *update.OrderStatus
	}
	o.UpdatedAt = s.Now()
	s.writes++
	return true, nil
}

func (s *OrderStore) UpdateOrderStatus(_ context.Context, id string, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.OrderStatus = status
	o.UpdatedAt = s.Now()
	s.writes++
	return nil
}

func (s *OrderStore) MarkRefunded(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if !o.CanBeRefunded() {
		return domain.ErrInvalidStatusTransition
	}
	o.PaymentStatus = domain.PaymentStatusRefunded
	o.UpdatedAt = s.Now()
	s.writes++
	return nil
}

func (s *OrderStore) List(_ context.Context, filter ports.OrderFilter) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Order
	for _, o := range s.orders {
		if filter.PaymentStatus != nil && o.PaymentStatus != *filter.PaymentStatus {
			continue
		}
		if filter.OrderStatus != nil && o.OrderStatus != *filter.OrderStatus {
			continue
		}
		out = append(out, clone(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if int(filter.Offset) >= len(out) {
		return []*domain.Order{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && int(filter.Limit) < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *OrderStore) ListDegraded(_ context.Context, cutoff time.Time) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Order
	for _, o := range s.orders {
		if o.PaymentStatus == domain.PaymentStatusPending && o.CheckoutID == nil && o.CreatedAt.Before(cutoff) {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func clone(o *domain.Order) *domain.Order {
	c := *o
	if o.Items != nil {
		c.Items = append([]domain.OrderLine(nil), o.Items...)
	}
	return &c
}
