package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes shared by the client and the sandbox backend.
const (
	CodeValidation  = "VALIDATION_FAILED"
	CodeAuth        = "UNAUTHORIZED"
	CodeNotFound    = "NOT_FOUND"
	CodeNetwork     = "NETWORK_ERROR"
	CodeRateLimited = "RATE_LIMITED"
	CodeServer      = "SERVER_ERROR"
	CodeInternal    = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	RetryAfter time.Duration
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeAuth, message, http.StatusUnauthorized, nil)
}

// NewNetworkError wraps a transport failure (including timeouts).
func NewNetworkError(err error) error {
	return &DomainError{
		Code:       CodeNetwork,
		Message:    "network unavailable",
		HTTPStatus: 0,
		Err:        err,
	}
}

// NewRateLimited signals throttling; retryAfter is zero when the server gave no hint.
func NewRateLimited(retryAfter time.Duration) error {
	return &DomainError{
		Code:       CodeRateLimited,
		Message:    "rate limited",
		HTTPStatus: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	}
}

func NewServerError(status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &DomainError{
		Code:       CodeServer,
		Message:    message,
		HTTPStatus: status,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// FromHTTPStatus maps a non-2xx response onto the client error taxonomy.
func FromHTTPStatus(status int, message string, retryAfter time.Duration) error {
	if message == "" {
		message = http.StatusText(status)
	}
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return NewDomainError(CodeValidation, message, status, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewDomainError(CodeAuth, message, status, nil)
	case status == http.StatusNotFound:
		return NewDomainError(CodeNotFound, message, status, nil)
	case status == http.StatusTooManyRequests:
		return NewRateLimited(retryAfter)
	default:
		return NewServerError(status, message)
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if de, ok := NewNetworkError(err).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// CodeOf returns the DomainError code in err's chain, or "".
func CodeOf(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

func IsValidation(err error) bool  { return CodeOf(err) == CodeValidation }
func IsAuth(err error) bool        { return CodeOf(err) == CodeAuth }
func IsNotFound(err error) bool    { return CodeOf(err) == CodeNotFound }
func IsNetwork(err error) bool     { return CodeOf(err) == CodeNetwork }
func IsRateLimited(err error) bool { return CodeOf(err) == CodeRateLimited }
func IsServer(err error) bool      { return CodeOf(err) == CodeServer }

// IsTransient reports whether retrying err later may succeed.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case CodeNetwork, CodeRateLimited, CodeServer:
		return true
	}
	return false
}

// RetryAfterOf returns the server-indicated delay carried by a rate-limit error.
func RetryAfterOf(err error) time.Duration {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.RetryAfter
	}
	return 0
}
