package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
)

// HTTPStatusReader reads GET {base}/api/v1/orders/{id}/payment-status
type HTTPStatusReader struct {
	client  ports.HTTPClient
	baseURL string
}

// NewHTTPStatusReader creates a reader against the checkout API at baseURL
func NewHTTPStatusReader(baseURL string, client ports.HTTPClient) *HTTPStatusReader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStatusReader{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type statusResponse struct {
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
}

func (r *HTTPStatusReader) ReadStatus(ctx context.Context, orderID string) (domain.PaymentStatus, error) {
	endpoint := fmt.Sprintf("%s/api/v1/orders/%s/payment-status", r.baseURL, url.PathEscape(orderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", domain.ErrOrderNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out statusResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode status: %w", err)
	}
	if !out.PaymentStatus.IsValid() {
		return "", fmt.Errorf("unknown payment status %q", out.PaymentStatus)
	}
	return out.PaymentStatus, nil
}
