package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the checkout error taxonomy.
// Use errors.Is() to check against these.
var (
	ErrNotFound                   = errors.New("not found")
	ErrInvalidRequest             = errors.New("invalid request")
	ErrSessionNotFound            = errors.New("session not found")
	ErrInvalidAmount              = errors.New("invalid amount")
	ErrNoActiveAccount            = errors.New("no active processor account")
	ErrInvalidSignature           = errors.New("invalid webhook signature")
	ErrNoWebhookSecretsConfigured = errors.New("no webhook secrets configured")
	ErrOrderCreationFailed        = errors.New("order creation failed")
	ErrUpstreamUnavailable        = errors.New("upstream unavailable")
	ErrAlreadyProcessed           = errors.New("already processed")
	ErrConflict                   = errors.New("conflict")
	ErrPaymentFailed              = errors.New("payment failed")
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: http.StatusBadRequest,
		Err:        ErrInvalidRequest,
	}
}

// NewSessionNotFoundError creates a 404 error for an unknown checkout session.
func NewSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:       "SESSION_NOT_FOUND",
		Message:    fmt.Sprintf("checkout session %q not found", sessionID),
		StatusCode: http.StatusNotFound,
		Err:        ErrSessionNotFound,
	}
}

// NewInvalidAmountError creates a 400 error for non-positive totals.
func NewInvalidAmountError(cents int64) *APIError {
	return &APIError{
		Code:       "INVALID_AMOUNT",
		Message:    fmt.Sprintf("amount must be a positive number of cents, got %d", cents),
		StatusCode: http.StatusBadRequest,
		Err:        ErrInvalidAmount,
	}
}

// NewNoActiveAccountError creates a 503 error when no processor account is usable.
func NewNoActiveAccountError() *APIError {
	return &APIError{
		Code:       "NO_ACTIVE_ACCOUNT",
		Message:    "no active payment account is configured",
		StatusCode: http.StatusServiceUnavailable,
		Err:        ErrNoActiveAccount,
	}
}

// NewInvalidSignatureError creates a 400 error for webhook payloads no secret verifies.
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:       "INVALID_SIGNATURE",
		Message:    "webhook signature verification failed",
		StatusCode: http.StatusBadRequest,
		Err:        ErrInvalidSignature,
	}
}

// NewNoWebhookSecretsError creates a 500 error when no account can verify webhooks.
func NewNoWebhookSecretsError() *APIError {
	return &APIError{
		Code:       "NO_WEBHOOK_SECRETS",
		Message:    "no webhook secrets configured",
		StatusCode: http.StatusInternalServerError,
		Err:        ErrNoWebhookSecretsConfigured,
	}
}

// NewOrderCreationError creates a 502 error for orders the commerce platform did not accept.
func NewOrderCreationError(reason string, err error) *APIError {
	wrapped := ErrOrderCreationFailed
	if err != nil {
		wrapped = fmt.Errorf("%w: %v", ErrOrderCreationFailed, err)
	}
	return &APIError{
		Code:       "ORDER_CREATION_FAILED",
		Message:    reason,
		StatusCode: http.StatusBadGateway,
		Err:        wrapped,
	}
}

// NewUpstreamError creates a 502 error for backend failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_UNAVAILABLE",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: http.StatusBadGateway,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err),
	}
}

// NewAlreadyProcessedError marks an idempotent no-op. Handlers answer it with 200.
func NewAlreadyProcessedError(what string) *APIError {
	return &APIError{
		Code:       "ALREADY_PROCESSED",
		Message:    fmt.Sprintf("%s already processed", what),
		StatusCode: http.StatusOK,
		Err:        ErrAlreadyProcessed,
	}
}

// NewConflictError creates a 409 error for state transitions that are not allowed.
func NewConflictError(reason string) *APIError {
	return &APIError{
		Code:       "CONFLICT",
		Message:    reason,
		StatusCode: http.StatusConflict,
		Err:        ErrConflict,
	}
}

// NewPaymentError creates a 402 error for declined charges.
func NewPaymentError(reason string) *APIError {
	return &APIError{
		Code:       "PAYMENT_ERROR",
		Message:    reason,
		StatusCode: http.StatusPaymentRequired,
		Err:        ErrPaymentFailed,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
