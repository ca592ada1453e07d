// Package poller watches an order's payment status from the payer's side
// until the gateway outcome lands or the wait window closes.
package poller

import (
	"context"
	"time"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/pkg/resilience"
)

const (
	DefaultInterval    = time.Second
	DefaultMaxAttempts = 60
)

// Outcome is the terminal result of a poll
type Outcome string

const (
	OutcomePaid     Outcome = "paid"
	OutcomeFailed   Outcome = "failed"
	OutcomeTimedOut Outcome = "timed_out"
)

// StatusReader reads the current payment status of an order
type StatusReader interface {
	ReadStatus(ctx context.Context, orderID string) (domain.PaymentStatus, error)
}

// Result reports how a poll ended
type Result struct {
	LastErr  error
	Outcome  Outcome
	Attempts int
}

// Poller is a bounded, single-threaded status watcher. It never writes.
type Poller struct {
	Reader      StatusReader
	OnAttempt   func(attempt int, status domain.PaymentStatus, err error)
	Interval    time.Duration
	MaxAttempts int
}

// New creates a poller with the default 1s interval and 60 attempts
func New(reader StatusReader) *Poller {
	return &Poller{
		Reader:      reader,
		Interval:    DefaultInterval,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Poll waits one interval before every read. It stops on the first paid or
// failed observation; a read error uses up the attempt and polling continues.
// Cancelling ctx abandons the poll and returns ctx.Err().
func (p *Poller) Poll(ctx context.Context, orderID string) (Result, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var res Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := resilience.Sleep(ctx, interval); err != nil {
			return res, err
		}
		res.Attempts = attempt

		status, err := p.Reader.ReadStatus(ctx, orderID)
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, status, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.LastErr = err
			continue
		}
		res.LastErr = nil

		switch status {
		case domain.PaymentStatusPaid:
			res.Outcome = OutcomePaid
			return res, nil
		case domain.PaymentStatusFailed:
			res.Outcome = OutcomeFailed
			return res, nil
		}
	}

	res.Outcome = OutcomeTimedOut
	return res, nil
}
