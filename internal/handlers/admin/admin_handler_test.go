package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
	ordersvc "github.com/kevin07696/mpesa-checkout/internal/services/order"
	"github.com/kevin07696/mpesa-checkout/internal/testutil/fakes"
	"github.com/kevin07696/mpesa-checkout/internal/testutil/fixtures"
	"github.com/kevin07696/mpesa-checkout/pkg/resilience"
)

func newRouter(t *testing.T) (http.Handler, *fakes.OrderStore) {
	t.Helper()
	store := fakes.NewOrderStore()
	logger := zaptest.NewLogger(t)
	h := NewHandler(ordersvc.NewService(store, nil, resilience.TestTimeoutConfig(), logger), logger)

	r := chi.NewRouter()
	r.Get("/api/v1/admin/orders", h.List)
	r.Patch("/api/v1/admin/orders/{id}/status", h.UpdateStatus)
	r.Post("/api/v1/admin/orders/{id}/refund", h.Refund)
	return r, store
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestList_FiltersAndPages(t *testing.T) {
	r, store := newRouter(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		store.Put(fixtures.NewOrder().WithPaymentStatus(domain.PaymentStatusPaid).WithCreatedAt(base.Add(time.Duration(i) * time.Minute)).Build())
	}
	store.Put(fixtures.NewOrder().Build())

	rec, body := do(t, r, http.MethodGet, "/api/v1/admin/orders?payment_status=paid&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["orders"], 2)
	assert.EqualValues(t, 2, body["limit"])

	rec, body = do(t, r, http.MethodGet, "/api/v1/admin/orders?payment_status=paid&limit=2&offset=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["orders"], 1)

	rec, body = do(t, r, http.MethodGet, "/api/v1/admin/orders?payment_status=refunded", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["orders"])
}

func TestList_BadQuery(t *testing.T) {
	r, _ := newRouter(t)

	for _, target := range []string{
		"/api/v1/admin/orders?limit=ten",
		"/api/v1/admin/orders?offset=-1",
		"/api/v1/admin/orders?payment_status=settled",
	} {
		rec, _ := do(t, r, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestUpdateStatus(t *testing.T) {
	r, store := newRouter(t)
	order := fixtures.NewOrder().WithOrderStatus(domain.OrderStatusPreparing).Build()
	closed := fixtures.NewOrder().WithOrderStatus(domain.OrderStatusCompleted).Build()
	store.Put(order)
	store.Put(closed)

	rec, body := do(t, r, http.MethodPatch, "/api/v1/admin/orders/"+order.ID+"/status", `{"order_status":"ready"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["order_status"])

	rec, body = do(t, r, http.MethodPatch, "/api/v1/admin/orders/"+closed.ID+"/status", `{"order_status":"preparing"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(domain.ErrorCodeInvalidStatusTransition), body["code"])

	rec, _ = do(t, r, http.MethodPatch, "/api/v1/admin/orders/"+order.ID+"/status", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, r, http.MethodPatch, "/api/v1/admin/orders/missing/status", `{"order_status":"ready"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefund(t *testing.T) {
	r, store := newRouter(t)
	paid := fixtures.NewOrder().WithPaymentStatus(domain.PaymentStatusPaid).WithReceipt("NLJ7RT61SV").Build()
	pending := fixtures.NewOrder().Build()
	store.Put(paid)
	store.Put(pending)

	rec, body := do(t, r, http.MethodPost, "/api/v1/admin/orders/"+paid.ID+"/refund", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "refunded", body["payment_status"])

	rec, _ = do(t, r, http.MethodPost, "/api/v1/admin/orders/"+paid.ID+"/refund", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, r, http.MethodPost, "/api/v1/admin/orders/"+pending.ID+"/refund", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
