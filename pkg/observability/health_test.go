package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthChecker_Healthy(t *testing.T) {
	h := NewHealthChecker(fakePinger{})
	h.AddCheck("broker", func(context.Context) error { return nil })

	status := h.Check(context.Background())
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["database"])
	assert.Equal(t, "healthy", status.Checks["broker"])
}

func TestHealthChecker_BrokerDownIsDegraded(t *testing.T) {
	h := NewHealthChecker(fakePinger{})
	h.AddCheck("broker", func(context.Context) error { return errors.New("connection closed") })

	status := h.Check(context.Background())
	assert.Equal(t, "degraded", status.Status)
	assert.Contains(t, status.Checks["broker"], "connection closed")
}

func TestHealthHandler_DatabaseDown(t *testing.T) {
	h := NewHealthChecker(fakePinger{err: errors.New("dial tcp: refused")})

	rec := httptest.NewRecorder()
	h.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body.Status)
}

func TestHealthChecker_NoDatabase(t *testing.T) {
	status := NewHealthChecker(nil).Check(context.Background())
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "not configured", status.Checks["database"])
}

func TestWatchGRPC_ReflectsDatabase(t *testing.T) {
	srv := health.NewServer()
	h := NewHealthChecker(fakePinger{err: errors.New("down")})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.WatchGRPC(ctx, srv, time.Hour)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
