// Package results holds the value types that carry remote call outcomes through
// the synthesis loader: ErrorResult, the Result sum type and deferred handles.
package results

import (
	"fmt"
	"net/http"
)

// Kind classifies an ErrorResult for the view layer.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindValidation         Kind = "validation"
	KindRateLimited        Kind = "rate_limited_or_too_large"
	KindCanceled           Kind = "canceled"
	KindNetworkUnreachable Kind = "network_unreachable"
	KindUnknown            Kind = "unknown"
)

// Error codes carried by ErrorResult.Code.
const (
	CodeCanceled    = "ERR_CANCELED"
	CodeNetwork     = "ERR_NETWORK"
	CodeTimeout     = "ECONNABORTED"
	CodeBadRequest  = "ERR_BAD_REQUEST"
	CodeBadResponse = "ERR_BAD_RESPONSE"
	CodeInternal    = "ERR_INTERNAL"
)

// DefaultStatus is used when a failure carries no HTTP status.
const DefaultStatus = http.StatusServiceUnavailable

// ErrorResult is the uniform description of a failed remote call. It is a
// value, never thrown across the loader boundary.
type ErrorResult struct {
	IsError          bool           `json:"isError"`
	Kind             Kind           `json:"kind"`
	Code             string         `json:"code"`
	Status           *int           `json:"status,omitempty"`
	Message          string         `json:"message"`
	LocalizedMessage string         `json:"localizedMessage,omitempty"`
	ErrorType        string         `json:"type,omitempty"`
	Context          map[string]any `json:"context,omitempty"`
}

// Error lets an ErrorResult travel through APIs that expect an error.
func (e *ErrorResult) Error() string {
	if e.Status != nil {
		return fmt.Sprintf("%s (%d): %s", e.Code, *e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StatusOrDefault returns the carried status, or DefaultStatus when absent.
func (e *ErrorResult) StatusOrDefault() int {
	if e.Status == nil {
		return DefaultStatus
	}
	return *e.Status
}

// IsCanceled reports whether the failure comes from a cancellation.
func (e *ErrorResult) IsCanceled() bool {
	return e != nil && e.Kind == KindCanceled
}

// StatusPtr is a helper for building ErrorResult literals.
func StatusPtr(status int) *int {
	return &status
}

// NewCanceled builds the ErrorResult every canceled call settles with.
func NewCanceled(message string) *ErrorResult {
	if message == "" {
		message = "canceled"
	}
	return &ErrorResult{
		IsError: true,
		Kind:    KindCanceled,
		Code:    CodeCanceled,
		Message: message,
	}
}

// NewUnknown wraps an unexpected failure that never reached the transport.
func NewUnknown(err error) *ErrorResult {
	message := "unknown error"
	if err != nil {
		message = err.Error()
	}
	return &ErrorResult{
		IsError: true,
		Kind:    KindUnknown,
		Code:    CodeInternal,
		Status:  StatusPtr(DefaultStatus),
		Message: message,
	}
}

// PageError is returned by the loader when identity resolution fails. The
// whole page becomes an error view showing Status and StatusText.
type PageError struct {
	Status     int
	StatusText string
	Cause      *ErrorResult
}

func (e *PageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("page error %d %s: %s", e.Status, e.StatusText, e.Cause.Message)
	}
	return fmt.Sprintf("page error %d %s", e.Status, e.StatusText)
}

func (e *PageError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}
