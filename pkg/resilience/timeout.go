package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines the timeout layers of the checkout service
//
// Timeout Hierarchy (from outermost to innermost):
//
//	HTTP Handler (45s)
//	  ↓
//	Push initiation (35s, token fetch + retries + push)
//	  ↓
//	Single gateway call (10s)
//	  ↓
//	Database Query (5s)
//
// The 60s client poll window is a separate business-outcome wait and is not part of this chain.
type TimeoutConfig struct {
	HTTPHandler time.Duration
	Push        time.Duration
	GatewayCall time.Duration
	Database    time.Duration
	CronJob     time.Duration
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler: 45 * time.Second,
		Push:        35 * time.Second,
		GatewayCall: 10 * time.Second,
		Database:    5 * time.Second,
		CronJob:     2 * time.Minute,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler: 5 * time.Second,
		Push:        4 * time.Second,
		GatewayCall: 1 * time.Second,
		Database:    500 * time.Millisecond,
		CronJob:     10 * time.Second,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// PushContext bounds one push initiation including its token fetch retries
func (tc *TimeoutConfig) PushContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Push)
}

// DatabaseContext creates a context for a single store operation
func (tc *TimeoutConfig) DatabaseContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Database)
}

// CronContext creates a context with timeout for scheduled jobs
func (tc *TimeoutConfig) CronContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.CronJob)
}
