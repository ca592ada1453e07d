package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/handlers/admin"
	"github.com/kevin07696/mpesa-checkout/internal/handlers/order"
	"github.com/kevin07696/mpesa-checkout/internal/handlers/payment"
	ordersvc "github.com/kevin07696/mpesa-checkout/internal/services/order"
	paymentsvc "github.com/kevin07696/mpesa-checkout/internal/services/payment"
	"github.com/kevin07696/mpesa-checkout/internal/testutil/fakes"
	"github.com/kevin07696/mpesa-checkout/internal/testutil/fixtures"
	"github.com/kevin07696/mpesa-checkout/pkg/middleware"
	"github.com/kevin07696/mpesa-checkout/pkg/resilience"
)

func newTestRouter(t *testing.T, allowed []string) (http.Handler, *fakes.OrderStore) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := fakes.NewOrderStore()
	timeouts := resilience.TestTimeoutConfig()

	orders := ordersvc.NewService(store, nil, timeouts, logger)
	payments := paymentsvc.NewService(store, nil, nil, nil, timeouts, logger)

	return NewRouter(RouterDeps{
		Payments:  payment.NewHandler(payments, logger),
		Orders:    order.NewHandler(orders, payments, logger),
		Admin:     admin.NewHandler(orders, logger),
		Allowlist: middleware.NewCallbackAllowlist(allowed, nil, logger),
		Logger:    logger,
		AdminPIN:  "4321",
	}), store
}

func serve(h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_AdminRequiresPIN(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	rec := serve(r, http.MethodGet, "/api/v1/admin/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(r, http.MethodGet, "/api/v1/admin/orders", "", map[string]string{middleware.AdminPINHeader: "0000"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(r, http.MethodGet, "/api/v1/admin/orders", "", map[string]string{middleware.AdminPINHeader: "4321"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_PublicRoutes(t *testing.T) {
	r, store := newTestRouter(t, nil)
	o := fixtures.NewOrder().WithPaymentStatus(domain.PaymentStatusFailed).Build()
	store.Put(o)

	rec := serve(r, http.MethodGet, "/api/v1/orders/"+o.ID+"/payment-status", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"payment_status":"failed"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = serve(r, http.MethodGet, "/api/v1/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(r, http.MethodDelete, "/api/v1/orders/"+o.ID, "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_CallbackAllowlist(t *testing.T) {
	r, _ := newTestRouter(t, []string{"196.201.214.0/24"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/mpesa/callback", strings.NewReader(`{}`))
	req.RemoteAddr = "10.0.0.9:5555"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/mpesa/callback", strings.NewReader(`{}`))
	req.RemoteAddr = "196.201.214.200:5555"
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
