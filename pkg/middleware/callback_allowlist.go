package middleware

import (
	"net/http"

	"go.uber.org/zap"
)

// CallbackAllowlist restricts the gateway callback to known source addresses.
// Entries may be single IPs or CIDR ranges.
type CallbackAllowlist struct {
	logger  *zap.Logger
	allowed *IPSet
	proxies *ProxyResolver
}

// NewCallbackAllowlist parses entries. The source address comes from proxies,
// so forwarding headers only count when they arrive through a trusted proxy.
func NewCallbackAllowlist(entries []string, proxies *ProxyResolver, logger *zap.Logger) *CallbackAllowlist {
	return &CallbackAllowlist{
		logger:  logger,
		allowed: ParseIPSet(entries, logger),
		proxies: proxies,
	}
}

// Enabled reports whether any entry was configured
func (a *CallbackAllowlist) Enabled() bool {
	return !a.allowed.Empty()
}

// Allowed reports whether ip may deliver callbacks
func (a *CallbackAllowlist) Allowed(ip string) bool {
	if !a.Enabled() {
		return true
	}
	return a.allowed.Contains(ip)
}

// Middleware returns 403 for callbacks from unlisted addresses
func (a *CallbackAllowlist) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := a.proxies.ClientIP(r)
		if !a.Allowed(ip) {
			a.logger.Warn("Gateway callback from unauthorized IP",
				zap.String("ip", ip),
				zap.String("peer", r.RemoteAddr),
				zap.String("forwarded_for", r.Header.Get("X-Forwarded-For")),
				zap.String("path", r.URL.Path),
			)
			writeJSONError(w, http.StatusForbidden, "Forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
