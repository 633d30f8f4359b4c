// Package api is the typed client for the declarations REST API. Response and
// error mapping are plain functions applied to every call.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SocialGouv/champollion-go/internal/domain/results"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/i18n"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/performance"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/SocialGouv/champollion-go/internal/infrastructure/api"

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 1 << 20

// Client calls the declarations API. It holds no per-load state and is safe
// for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	tracer     trace.Tracer
	logger     *logging.ChanneledLogger
	perf       *performance.Tracker
	localizer  *i18n.Localizer
}

// Option configures the client.
type Option func(*Client)

// WithToken sets the bearer token sent to the API.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit bounds outgoing calls to rps requests per second. A burst
// below 1 is raised to 1, otherwise every Wait would fail.
func WithRateLimit(rps float64, burst int) Option {
	if burst < 1 {
		burst = 1
	}
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithTracerProvider sets where spans go. The global provider is the default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// WithLogger sets the channeled logger.
func WithLogger(logger *logging.ChanneledLogger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTracker records one performance marker per call.
func WithTracker(perf *performance.Tracker) Option {
	return func(c *Client) { c.perf = perf }
}

// WithLocalizer sets the language of ErrorResult.LocalizedMessage.
func WithLocalizer(l *i18n.Localizer) Option {
	return func(c *Client) { c.localizer = l }
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Inf, 0),
		tracer:     otel.Tracer(tracerName),
		logger:     logging.NewDiscardLogger(),
		localizer:  i18n.French(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// call performs one request and decodes a 2xx JSON body into out. Every
// failure comes back as an ErrorResult, never as a panic or a Go error.
func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, body, out any) *results.ErrorResult {
	ctx, span := c.tracer.Start(ctx, "api."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		))
	defer span.End()

	var marker *performance.Marker
	if c.perf != nil {
		marker = c.perf.StartOperation("api:"+op, "")
		defer c.perf.CompleteOperation(marker)
	}

	errResult := c.roundTrip(ctx, method, path, query, body, out, span)
	if errResult != nil {
		c.localizer.Localize(errResult)
		span.SetStatus(codes.Error, errResult.Message)
		span.SetAttributes(attribute.String("champollion.error.code", errResult.Code))
		if marker != nil {
			marker.SetError(errResult)
		}
		if errResult.IsCanceled() {
			c.logger.WithContext(logging.ChannelAPI, ctx).Debug("API call canceled", "operation", op, "path", path)
		} else {
			c.logger.WithContext(logging.ChannelAPI, ctx).Warn("API call failed",
				"operation", op, "path", path, "code", errResult.Code, "status", errResult.StatusOrDefault(), "message", errResult.Message)
		}
		return errResult
	}

	c.logger.WithContext(logging.ChannelAPI, ctx).Debug("API call completed", "operation", op, "path", path)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body, out any, span trace.Span) *results.ErrorResult {
	if err := c.limiter.Wait(ctx); err != nil {
		return MapTransportError(ctx, err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return results.NewUnknown(fmt.Errorf("api: encode request: %w", err))
		}
		reader = bytes.NewReader(b)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return results.NewUnknown(fmt.Errorf("api: build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if requestID, ok := ctx.Value(logging.RequestIDKey).(string); ok && requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return MapTransportError(ctx, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return MapResponseError(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return MapTransportError(ctx, err)
		}
		return &results.ErrorResult{
			IsError: true,
			Kind:    results.KindUnknown,
			Code:    results.CodeBadResponse,
			Status:  results.StatusPtr(http.StatusBadGateway),
			Message: fmt.Sprintf("malformed response: %v", err),
		}
	}
	return nil
}
