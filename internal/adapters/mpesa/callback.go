package mpesa

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Metadata item names sent on a successful callback
const (
	MetaReceiptNumber   = "MpesaReceiptNumber"
	MetaAmount          = "Amount"
	MetaTransactionDate = "TransactionDate"
	MetaPhoneNumber     = "PhoneNumber"
)

// ErrMalformedCallback is returned when the body is not a usable STK callback
var ErrMalformedCallback = errors.New("mpesa: malformed stk callback")

// CallbackEnvelope is the body Daraja POSTs to the callback URL
type CallbackEnvelope struct {
	Body struct {
		STKCallback *STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback is the result of one push attempt
type STKCallback struct {
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
	ResultCode        *ResultCode       `json:"ResultCode"`
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultDesc        string            `json:"ResultDesc"`
}

// CallbackMetadata carries the name/value list present on success
type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem is one name/value pair. Value is a JSON string or number, or absent.
type MetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// ResultCode accepts both numeric and quoted codes; Daraja has sent both.
type ResultCode int

func (c *ResultCode) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid ResultCode %s: %w", b, err)
	}
	*c = ResultCode(n)
	return nil
}

// ParseCallback decodes and validates a callback body
func ParseCallback(body []byte) (*STKCallback, error) {
	var env CallbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	cb := env.Body.STKCallback
	switch {
	case cb == nil:
		return nil, fmt.Errorf("%w: missing Body.stkCallback", ErrMalformedCallback)
	case cb.CheckoutRequestID == "":
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrMalformedCallback)
	}
	return cb, nil
}

// Code returns the result code. A missing code reads as -1, which is a failure.
func (c *STKCallback) Code() int {
	if c.ResultCode == nil {
		return -1
	}
	return int(*c.ResultCode)
}

// Succeeded reports whether the payer completed the payment
func (c *STKCallback) Succeeded() bool {
	return c.Code() == ResultSuccess
}

// Metadata returns the named item's value as text
func (c *STKCallback) Metadata(name string) (string, bool) {
	if c.CallbackMetadata == nil {
		return "", false
	}
	for _, item := range c.CallbackMetadata.Item {
		if item.Name != name {
			continue
		}
		if len(item.Value) == 0 {
			return "", false
		}
		dec := json.NewDecoder(bytes.NewReader(item.Value))
		dec.UseNumber()
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return "", false
		}
		switch val := v.(type) {
		case string:
			return val, true
		case json.Number:
			return val.String(), true
		default:
			return "", false
		}
	}
	return "", false
}

// Receipt returns the M-Pesa receipt number, or "" when absent
func (c *STKCallback) Receipt() string {
	r, _ := c.Metadata(MetaReceiptNumber)
	return r
}
