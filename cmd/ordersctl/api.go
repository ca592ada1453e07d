package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
	httpclient "github.com/kevin07696/mpesa-checkout/pkg/http"
)

// apiClient talks to the public checkout routes the way the storefront does
type apiClient struct {
	http    ports.HTTPClient
	baseURL string
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		http:    httpclient.NewHTTPClient(httpclient.DefaultClientConfig(), 45*time.Second),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type pushResponse struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
	MerchantRequestID string `json:"merchantRequestId"`
	CustomerMessage   string `json:"customerMessage"`
	Success           bool   `json:"success"`
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (c *apiClient) getOrder(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	if err := c.do(ctx, http.MethodGet, "/api/v1/orders/"+id, nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *apiClient) push(ctx context.Context, orderID, phone string, amount int64) (*pushResponse, error) {
	body := map[string]interface{}{
		"order_id":     orderID,
		"phone_number": phone,
		"amount":       amount,
	}
	var out pushResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/mpesa/stk-push", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var ae apiError
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&ae)
		if ae.Code != "" {
			return fmt.Errorf("%s %s: %d %s: %s", method, path, resp.StatusCode, ae.Code, ae.Error)
		}
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, ae.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
