package resilience

import (
	"context"
	"testing"
	"time"
)

func TestDefaultTimeoutConfig(t *testing.T) {
	config := DefaultTimeoutConfig()

	if config.HTTPHandler <= config.Push {
		t.Errorf("HTTPHandler (%v) must be > Push (%v)", config.HTTPHandler, config.Push)
	}

	if config.Push <= config.GatewayCall {
		t.Errorf("Push (%v) must be > GatewayCall (%v)", config.Push, config.GatewayCall)
	}

	if config.GatewayCall <= config.Database {
		t.Errorf("GatewayCall (%v) must be > Database (%v)", config.GatewayCall, config.Database)
	}

	// Token retries (1s + 2s) plus two gateway calls must fit in the push budget
	if config.Push < 3*time.Second+2*config.GatewayCall {
		t.Errorf("Push (%v) too short for token retries and push call", config.Push)
	}
}

func TestTestTimeoutConfig(t *testing.T) {
	config := TestTimeoutConfig()

	if config.HTTPHandler >= 10*time.Second {
		t.Errorf("Test timeouts should be < 10s, got %v", config.HTTPHandler)
	}

	if config.HTTPHandler <= config.Push {
		t.Errorf("HTTPHandler (%v) must be > Push (%v)", config.HTTPHandler, config.Push)
	}
}

func TestPushContext_HasDeadline(t *testing.T) {
	config := TestTimeoutConfig()

	ctx, cancel := config.PushContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected deadline to be set")
	}

	remaining := time.Until(deadline)
	if remaining > config.Push || remaining < config.Push-time.Second {
		t.Errorf("unexpected remaining time %v", remaining)
	}
}
