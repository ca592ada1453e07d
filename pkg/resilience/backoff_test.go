package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBackoff_Schedule(t *testing.T) {
	b := TokenBackoff()

	assert.Equal(t, 1*time.Second, b.NextDelay(0))
	assert.Equal(t, 2*time.Second, b.NextDelay(1))
	assert.Equal(t, 4*time.Second, b.NextDelay(2))
	assert.Equal(t, 8*time.Second, b.NextDelay(5), "capped at MaxDelay")
}

func TestExponentialBackoff_NegativeAttempt(t *testing.T) {
	b := TokenBackoff()
	assert.Equal(t, b.BaseDelay, b.NextDelay(-1))
}

func TestExponentialBackoff_JitterWithinBounds(t *testing.T) {
	b := EventBackoff()

	for i := 0; i < 50; i++ {
		d := b.NextDelay(1)
		assert.GreaterOrEqual(t, d, 360*time.Millisecond)
		assert.LessOrEqual(t, d, 440*time.Millisecond)
	}
}

func TestSleep_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleep_Elapses(t *testing.T) {
	err := Sleep(context.Background(), 5*time.Millisecond)
	require.NoError(t, err)
}
