package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestManager_ShutsDownInReverseOrder(t *testing.T) {
	m := NewManager(zap.NewNop(), time.Second)

	var order []string
	m.RegisterNoErr("database", func() { order = append(order, "database") })
	m.Register("broker", func(context.Context) error {
		order = append(order, "broker")
		return errors.New("connection already closed")
	})
	m.RegisterNoErr("http", func() { order = append(order, "http") })

	errs := m.Shutdown()
	assert.Equal(t, []string{"http", "broker", "database"}, order)
	assert.Len(t, errs, 1)
	assert.Contains(t, errs, "broker")

	// idempotent
	m.Shutdown()
	assert.Len(t, order, 3)
}

func TestManager_SharedDeadline(t *testing.T) {
	m := NewManager(zap.NewNop(), 20*time.Millisecond)

	var deadline time.Time
	m.Register("server", func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	})

	errs := m.Shutdown()
	assert.False(t, deadline.IsZero())
	assert.ErrorIs(t, errs["server"], context.DeadlineExceeded)
}

func TestManager_WaitForShutdownOnContext(t *testing.T) {
	m := NewManager(zap.NewNop(), time.Second)
	called := false
	m.RegisterNoErr("cron", func() { called = true })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.WaitForShutdown(ctx)
	assert.True(t, called)
}
