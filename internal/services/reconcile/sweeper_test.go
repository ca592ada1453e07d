package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/testutil/fakes"
	"github.com/kevin07696/mpesa-checkout/internal/testutil/fixtures"
	"github.com/kevin07696/mpesa-checkout/internal/testutil/mocks"
	"github.com/kevin07696/mpesa-checkout/pkg/resilience"
)

func TestSweeper_Run(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := fakes.NewOrderStore()

	stale := fixtures.NewOrder().WithCreatedAt(now.Add(-10 * time.Minute)).Build()
	fresh := fixtures.NewOrder().WithCreatedAt(now.Add(-30 * time.Second)).Build()
	correlated := fixtures.NewOrder().WithCheckoutID("ws_CO_1").WithCreatedAt(now.Add(-time.Hour)).Build()
	paid := fixtures.NewOrder().WithPaymentStatus(domain.PaymentStatusPaid).WithCreatedAt(now.Add(-time.Hour)).Build()
	for _, o := range []*domain.Order{stale, fresh, correlated, paid} {
		store.Put(o)
	}

	core, logs := observer.New(zap.WarnLevel)
	s := NewSweeper(store, 2*time.Minute, resilience.TestTimeoutConfig(), zap.New(core))
	s.now = func() time.Time { return now }

	orders, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, stale.ID, orders[0].ID)

	entries := logs.FilterMessage("Order awaiting reconciliation").All()
	require.Len(t, entries, 1)
	assert.Equal(t, stale.ID, entries[0].ContextMap()["order_id"])
}

func TestSweeper_StoreError(t *testing.T) {
	store := &mocks.MockOrderRepository{}
	store.On("ListDegraded", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	s := NewSweeper(store, time.Minute, resilience.TestTimeoutConfig(), zap.NewNop())
	_, err := s.Run(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestSweeper_Schedule(t *testing.T) {
	s := NewSweeper(fakes.NewOrderStore(), time.Minute, nil, zap.NewNop())

	c, err := s.Schedule("@every 5m")
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	_, err = s.Schedule("not a schedule")
	assert.Error(t, err)
}
