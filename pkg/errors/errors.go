// Package errors defines the failure taxonomy shared by every pipeline stage
// and the HTTP layer. Upstream failures are classified into a small set of
// sentinels so that callers can decide between serving cache and passing data
// through without inspecting transport details.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrAuth              = errors.New("upstream rejected credentials")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrTransient         = errors.New("transient upstream failure")
	ErrMalformedResponse = errors.New("malformed upstream response")
	ErrClassifierFailure = errors.New("classifier failure")
	ErrCircuitOpen       = errors.New("circuit breaker is open")
	ErrNotConfigured     = errors.New("not configured")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnavailable       = errors.New("service unavailable")
	ErrInternal          = errors.New("internal error")

	// ErrBudgetExhausted is a rate limit imposed by a local budget; the
	// upstream itself was never called. It matches ErrRateLimited.
	ErrBudgetExhausted = fmt.Errorf("local budget exhausted: %w", ErrRateLimited)
)

// Reason strings reported in response metadata. They are stable and
// consumed by dashboards, so treat them as part of the API.
const (
	KindNone              = ""
	KindAuth              = "auth"
	KindRateLimited       = "rate_limited"
	KindTransient         = "transient"
	KindMalformedResponse = "malformed_response"
	KindClassifierFailure = "classifier_failure"
	KindCircuitOpen       = "circuit_open"
	KindNotConfigured     = "not_configured"
	KindInternal          = "internal"
)

// UpstreamError describes a failed call to an external service.
type UpstreamError struct {
	Upstream   string
	StatusCode int
	Err        error
	Detail     string
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Upstream, e.Err.Error())
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// FromStatus classifies a non-2xx upstream status code.
func FromStatus(upstream string, status int, detail string) *UpstreamError {
	var sentinel error
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		sentinel = ErrAuth
	case status == http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	case status == http.StatusRequestTimeout, status >= 500:
		sentinel = ErrTransient
	default:
		// Any other 4xx means the request or the payload did not match what
		// the upstream expects; retrying the same request will not help.
		sentinel = ErrMalformedResponse
	}
	return &UpstreamError{
		Upstream:   upstream,
		StatusCode: status,
		Err:        sentinel,
		Detail:     detail,
	}
}

// FromTransport classifies an error returned before any HTTP status was
// received: dial failures, resets and deadline expiry are all transient.
func FromTransport(upstream string, err error) *UpstreamError {
	detail := err.Error()
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		detail = "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		detail = "timeout"
	}
	return &UpstreamError{
		Upstream: upstream,
		Err:      ErrTransient,
		Detail:   detail,
	}
}

// Malformed wraps a decoding failure for a payload that cannot be used at all.
func Malformed(upstream string, err error) *UpstreamError {
	return &UpstreamError{
		Upstream: upstream,
		Err:      ErrMalformedResponse,
		Detail:   err.Error(),
	}
}

// Kind maps err to one of the Kind* reason strings.
func Kind(err error) string {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformedResponse
	case errors.Is(err, ErrClassifierFailure):
		return KindClassifierFailure
	case errors.Is(err, ErrNotConfigured):
		return KindNotConfigured
	case errors.Is(err, ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindTransient
	default:
		return KindInternal
	}
}

// StatusOf returns the upstream status code carried by err, or 0.
func StatusOf(err error) int {
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.StatusCode
	}
	return 0
}

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps err to the status the API layer should answer with.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrAuth):
		return http.StatusBadGateway
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTransient), errors.Is(err, ErrCircuitOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
