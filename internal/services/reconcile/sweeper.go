// Package reconcile surfaces orders whose push outcome can no longer be
// matched automatically, so staff can settle them against the M-Pesa statement.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
	"github.com/kevin07696/mpesa-checkout/pkg/observability"
	"github.com/kevin07696/mpesa-checkout/pkg/resilience"
)

// Sweeper lists pending orders that never received a CheckoutRequestID
type Sweeper struct {
	store     ports.OrderRepository
	timeouts  *resilience.TimeoutConfig
	logger    *zap.Logger
	now       func() time.Time
	threshold time.Duration
}

// NewSweeper creates a sweeper. Orders younger than threshold are skipped
// because their push may still be in flight.
func NewSweeper(store ports.OrderRepository, threshold time.Duration, timeouts *resilience.TimeoutConfig, logger *zap.Logger) *Sweeper {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Sweeper{
		store:     store,
		timeouts:  timeouts,
		logger:    logger,
		now:       time.Now,
		threshold: threshold,
	}
}

// Run performs one sweep and returns the orders awaiting reconciliation
func (s *Sweeper) Run(ctx context.Context) ([]*domain.Order, error) {
	ctx, cancel := s.timeouts.CronContext(ctx)
	defer cancel()

	cutoff := s.now().Add(-s.threshold)
	orders, err := s.store.ListDegraded(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to list orders awaiting reconciliation", zap.Error(err))
		return nil, fmt.Errorf("list degraded orders: %w", err)
	}

	observability.SetOrdersAwaitingReconciliation(len(orders))
	for _, o := range orders {
		s.logger.Warn("Order awaiting reconciliation",
			zap.String("order_id", o.ID),
			zap.String("order_number", o.OrderNumber),
			zap.String("customer_phone", o.CustomerPhone),
			zap.Int64("total_amount", o.TotalAmount),
			zap.Time("created_at", o.CreatedAt),
		)
	}
	if len(orders) > 0 {
		s.logger.Info("Reconciliation sweep finished", zap.Int("awaiting", len(orders)))
	}
	return orders, nil
}

// Schedule registers the sweep on a cron scheduler using spec
// (standard five-field syntax or descriptors such as "@every 5m").
// The caller starts and stops the returned scheduler.
func (s *Sweeper) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() {
		_, _ = s.Run(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}
	return c, nil
}
