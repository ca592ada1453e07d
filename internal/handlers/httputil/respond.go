// Package httputil holds the JSON response helpers shared by the HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
)

// MaxBodyBytes bounds every JSON request body
const MaxBodyBytes = 64 << 10

// GenericRetryMessage is shown when the gateway could not be reached or authenticated
const GenericRetryMessage = "Failed to initiate payment. Please try again."

// ErrorResponse is the error body used on every route
type ErrorResponse struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
}

// WriteJSON encodes v with status
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a plain error message
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// DecodeJSON reads a bounded JSON body into v
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.UseNumber()
	return dec.Decode(v)
}

// StatusFor maps a domain error code to an HTTP status
func StatusFor(code domain.ErrorCode) int {
	switch code {
	case domain.ErrorCodeValidationFailed,
		domain.ErrorCodeValidationAmountInvalid,
		domain.ErrorCodeValidationMissingField,
		domain.ErrorCodeGatewayRejected,
		domain.ErrorCodeCallbackMalformed:
		return http.StatusBadRequest
	case domain.ErrorCodeOrderNotFound, domain.ErrorCodeCallbackUnmatched:
		return http.StatusNotFound
	case domain.ErrorCodeOrderAlreadyPaid, domain.ErrorCodeInvalidStatusTransition:
		return http.StatusConflict
	case domain.ErrorCodeGatewayAuthFailed, domain.ErrorCodeGatewayError:
		return http.StatusBadGateway
	case domain.ErrorCodeConfigMissing:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteDomainError renders err for the caller.
// Gateway rejections carry the gateway's own description; transport and
// auth failures get a generic retry message; internal faults never leak detail.
func WriteDomainError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		logger.Error("Unhandled error", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	status := StatusFor(de.Code)
	resp := ErrorResponse{Error: de.Message, Code: string(de.Code)}

	switch {
	case de.Code == domain.ErrorCodeGatewayAuthFailed || de.Code == domain.ErrorCodeGatewayError:
		resp.Error = GenericRetryMessage
	case de.Code == domain.ErrorCodeConfigMissing:
		resp.Error = "Payments are temporarily unavailable"
	case status == http.StatusInternalServerError:
		logger.Error("Internal error", zap.Error(err))
		resp.Error = "Internal server error"
	default:
		if len(de.Details) > 0 {
			resp.Details = de.Details
		}
	}

	WriteJSON(w, status, resp)
}
