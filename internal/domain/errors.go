package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Configuration Errors
	ErrorCodeConfigMissing ErrorCode = "CONFIG_MISSING"

	// Payment Gateway Errors (GATEWAY_*)
	ErrorCodeGatewayAuthFailed ErrorCode = "GATEWAY_AUTH_FAILED"
	ErrorCodeGatewayRejected   ErrorCode = "GATEWAY_REJECTED"
	ErrorCodeGatewayError      ErrorCode = "GATEWAY_ERROR"

	// Reconciliation Errors
	ErrorCodePersistenceDegraded ErrorCode = "PERSISTENCE_DEGRADED"
	ErrorCodeCallbackMalformed   ErrorCode = "CALLBACK_MALFORMED"
	ErrorCodeCallbackUnmatched   ErrorCode = "CALLBACK_UNMATCHED"

	// Order Errors (ORDER_*)
	ErrorCodeOrderNotFound           ErrorCode = "ORDER_NOT_FOUND"
	ErrorCodeOrderAlreadyPaid        ErrorCode = "ORDER_ALREADY_PAID"
	ErrorCodeInvalidStatusTransition ErrorCode = "INVALID_STATUS_TRANSITION"

	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError by code, so sentinel values work with errors.Is
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationAmountInvalid ||
		code == ErrorCodeValidationMissingField
}

// IsGatewayError checks if an error came from the payment gateway
func IsGatewayError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeGatewayAuthFailed ||
		code == ErrorCodeGatewayRejected ||
		code == ErrorCodeGatewayError
}

var (
	ErrOrderNotFound           = NewDomainError(ErrorCodeOrderNotFound, "order not found")
	ErrOrderAlreadyPaid        = NewDomainError(ErrorCodeOrderAlreadyPaid, "order is already paid")
	ErrInvalidStatusTransition = NewDomainError(ErrorCodeInvalidStatusTransition, "invalid status transition")

	ErrCallbackMalformed = NewDomainError(ErrorCodeCallbackMalformed, "invalid callback data")
	ErrCallbackUnmatched = NewDomainError(ErrorCodeCallbackUnmatched, "no order matches callback")

	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "invalid amount")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
)
