package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestProxyResolver_ClientIP(t *testing.T) {
	proxies := NewProxyResolver([]string{"10.0.0.0/8"}, zap.NewNop())

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		realIP     string
		want       string
	}{
		{name: "no headers", remoteAddr: "10.0.0.7:51234", want: "10.0.0.7"},
		{name: "real ip from proxy", remoteAddr: "10.0.0.7:51234", realIP: "196.201.214.200", want: "196.201.214.200"},
		{name: "forwarded from proxy", remoteAddr: "10.0.0.7:51234", xff: "196.201.214.206, 10.0.0.1", want: "196.201.214.206"},
		{name: "spoofed left hop skipped", remoteAddr: "10.0.0.7:51234", xff: "196.201.214.200, 203.0.113.9", want: "203.0.113.9"},
		{name: "untrusted peer headers ignored", remoteAddr: "203.0.113.9:443", xff: "196.201.214.200", realIP: "196.201.214.200", want: "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, proxies.ClientIP(r))
		})
	}

	var none *ProxyResolver
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:443"
	r.Header.Set("X-Forwarded-For", "196.201.214.200")
	assert.Equal(t, "203.0.113.9", none.ClientIP(r))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	defer rl.Shutdown()
	h := rl.Middleware(ok)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/mpesa/stk-push", nil)
		r.RemoteAddr = "41.90.1.1:1000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// a different client has its own bucket
	r := httptest.NewRequest(http.MethodPost, "/api/v1/mpesa/stk-push", nil)
	r.RemoteAddr = "41.90.1.2:1000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 2, rl.cleanup(time.Now().Add(time.Hour)))
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	NewSecurityHeaders(false).Middleware(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))

	w = httptest.NewRecorder()
	NewSecurityHeaders(true).Middleware(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestRequireAdminPIN(t *testing.T) {
	h := RequireAdminPIN("4821", zap.NewNop())(ok)

	tests := []struct {
		name string
		pin  string
		want int
	}{
		{"correct", "4821", http.StatusOK},
		{"wrong", "0000", http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
			if tt.pin != "" {
				r.Header.Set(AdminPINHeader, tt.pin)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	w := httptest.NewRecorder()
	RequireAdminPIN("", zap.NewNop())(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCallbackAllowlist(t *testing.T) {
	a := NewCallbackAllowlist([]string{"196.201.214.200", "196.201.213.0/24", "bogus", ""}, nil, zap.NewNop())
	assert.True(t, a.Enabled())
	assert.True(t, a.Allowed("196.201.214.200"))
	assert.True(t, a.Allowed("196.201.213.44"))
	assert.False(t, a.Allowed("8.8.8.8"))
	assert.False(t, a.Allowed("not-an-ip"))

	r := httptest.NewRequest(http.MethodPost, "/api/v1/mpesa/callback", nil)
	r.RemoteAddr = "8.8.8.8:443"
	w := httptest.NewRecorder()
	a.Middleware(ok).ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)

	open := NewCallbackAllowlist(nil, nil, zap.NewNop())
	assert.False(t, open.Enabled())
	assert.True(t, open.Allowed("8.8.8.8"))
}

func TestCallbackAllowlist_ForwardedHeaders(t *testing.T) {
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	send := func(a *CallbackAllowlist, remoteAddr string) int {
		reached = false
		r := httptest.NewRequest(http.MethodPost, "/api/v1/mpesa/callback", nil)
		r.RemoteAddr = remoteAddr
		r.Header.Set("X-Forwarded-For", "196.201.214.200")
		r.Header.Set("X-Real-IP", "196.201.214.200")
		w := httptest.NewRecorder()
		a.Middleware(next).ServeHTTP(w, r)
		return w.Code
	}

	direct := NewCallbackAllowlist([]string{"196.201.214.200"}, nil, zap.NewNop())
	assert.Equal(t, http.StatusForbidden, send(direct, "203.0.113.9:40000"))
	assert.False(t, reached)

	proxied := NewCallbackAllowlist([]string{"196.201.214.200"},
		NewProxyResolver([]string{"10.0.0.5"}, zap.NewNop()), zap.NewNop())
	assert.Equal(t, http.StatusForbidden, send(proxied, "203.0.113.9:40000"))
	assert.False(t, reached)
	assert.Equal(t, http.StatusOK, send(proxied, "10.0.0.5:40000"))
	assert.True(t, reached)
}

func TestRateLimiter_IgnoresSpoofedForwardedFor(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	defer rl.Shutdown()
	h := rl.Middleware(ok)

	codes := make([]int, 0, 2)
	for _, xff := range []string{"1.1.1.1", "2.2.2.2"} {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
		r.RemoteAddr = "41.90.1.1:1000"
		r.Header.Set("X-Forwarded-For", xff)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{200, 429}, codes)
}
