package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/SocialGouv/champollion-go/internal/domain/results"
)

// Error types the declarations API puts in the "type" field of error bodies.
const (
	TypeNotFound   = "not_found"
	TypeValidation = "validation"
	TypeTooLarge   = "too_large"
	TypeRateLimit  = "rate_limited"
)

type errorEnvelope struct {
	Message string         `json:"message"`
	Type    string         `json:"type"`
	Context map[string]any `json:"context"`
}

// MapResponseError turns a non-2xx response into an ErrorResult. Bodies that
// are not the API error envelope still produce a result from the status.
func MapResponseError(status int, body []byte) *results.ErrorResult {
	var envelope errorEnvelope
	_ = json.Unmarshal(body, &envelope)

	message := strings.TrimSpace(envelope.Message)
	if message == "" {
		message = http.StatusText(status)
	}

	code := results.CodeBadResponse
	if status >= 400 && status < 500 {
		code = results.CodeBadRequest
	}

	return &results.ErrorResult{
		IsError:   true,
		Kind:      classify(status, envelope.Type),
		Code:      code,
		Status:    results.StatusPtr(status),
		Message:   message,
		ErrorType: envelope.Type,
		Context:   envelope.Context,
	}
}

func classify(status int, errorType string) results.Kind {
	switch errorType {
	case TypeNotFound:
		return results.KindNotFound
	case TypeValidation:
		return results.KindValidation
	case TypeTooLarge, TypeRateLimit:
		return results.KindRateLimited
	}
	switch status {
	case http.StatusNotFound:
		return results.KindNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return results.KindValidation
	case http.StatusRequestEntityTooLarge, http.StatusTooManyRequests:
		return results.KindRateLimited
	}
	return results.KindUnknown
}

// MapTransportError turns a failure that produced no response into an
// ErrorResult. Cancellation of ctx wins over whatever err says.
func MapTransportError(ctx context.Context, err error) *results.ErrorResult {
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return results.NewCanceled("request canceled")
	}

	message := "network error"
	if err != nil {
		message = err.Error()
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &results.ErrorResult{
			IsError: true,
			Kind:    results.KindNetworkUnreachable,
			Code:    results.CodeTimeout,
			Status:  results.StatusPtr(results.DefaultStatus),
			Message: message,
		}
	}

	return &results.ErrorResult{
		IsError: true,
		Kind:    results.KindNetworkUnreachable,
		Code:    results.CodeNetwork,
		Status:  results.StatusPtr(results.DefaultStatus),
		Message: message,
	}
}
