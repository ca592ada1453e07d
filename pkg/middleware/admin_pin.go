package middleware

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"
)

// AdminPINHeader carries the staff dashboard PIN
const AdminPINHeader = "X-Admin-PIN"

// RequireAdminPIN guards staff routes with a static PIN.
// An empty pin disables the routes entirely.
func RequireAdminPIN(pin string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if pin == "" {
				writeJSONError(w, http.StatusServiceUnavailable, "Admin access is not configured")
				return
			}

			given := r.Header.Get(AdminPINHeader)
			if subtle.ConstantTimeCompare([]byte(given), []byte(pin)) != 1 {
				logger.Warn("Rejected admin request",
					zap.String("ip", PeerIP(r)),
					zap.String("path", r.URL.Path),
				)
				writeJSONError(w, http.StatusUnauthorized, "Invalid admin PIN")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
