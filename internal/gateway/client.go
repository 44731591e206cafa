// Package gateway is the typed HTTP client for the EasyDeploy control plane
// API. It performs no retries; callers decide on retry policy.
package gateway

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

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/alvesdmateus/easydeploy/internal/observability"
)

// Defaults applied by New.
const (
	DefaultBaseURL       = "http://localhost:8000/api/v1"
	DefaultTimeout       = 30 * time.Second
	DefaultHealthTimeout = 10 * time.Second
	DefaultUserAgent     = "easydeploy-cli"

	maxResponseBody = 10 << 20
)

// Client provides typed access to the EasyDeploy API. The API key is bound
// at construction and sent with every request.
type Client struct {
	baseURL       string
	apiKey        string
	httpClient    *http.Client
	timeout       time.Duration
	healthTimeout time.Duration
	userAgent     string
	limiter       *rate.Limiter
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	logger        zerolog.Logger
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeout bounds every request except health checks.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHealthTimeout bounds health check requests.
func WithHealthTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.healthTimeout = d
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithMetrics records request counts and latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracer overrides the process-wide tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithLogger sets the logger used for request debug output.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "gateway").Logger()
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.userAgent = ua
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base, apiKey string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}

	c := &Client{
		baseURL:       strings.TrimRight(trimmed, "/"),
		apiKey:        strings.TrimSpace(apiKey),
		httpClient:    &http.Client{},
		timeout:       DefaultTimeout,
		healthTimeout: DefaultHealthTimeout,
		userAgent:     DefaultUserAgent,
		tracer:        observability.GetGlobalTracer(),
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    any
	timeout time.Duration
}

// do sends r and decodes a 2xx JSON body into v (if non-nil). A *[]byte
// target receives the raw body undecoded. Every failure
// is returned as an *APIError. The HTTP status is returned when a response
// was received.
func (c *Client) do(ctx context.Context, r request, v any) (int, error) {
	start := time.Now()
	status, err := c.send(ctx, r, v)

	outcome := "ok"
	if err != nil {
		if apiErr, ok := err.(*APIError); ok {
			outcome = apiErr.Kind.String()
		} else {
			outcome = "error"
		}
	}
	c.metrics.RecordAPIRequest(r.op, outcome, time.Since(start))

	c.logger.Debug().
		Str("op", r.op).
		Str("method", r.method).
		Str("path", r.path).
		Int("status", status).
		Str("outcome", outcome).
		Dur("duration", time.Since(start)).
		Msg("API request")

	return status, err
}

func (c *Client) send(ctx context.Context, r request, v any) (int, error) {
	if c == nil {
		return 0, fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	timeout := r.timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := c.tracer.StartSpan(ctx, "easydeploy.api."+r.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(observability.APISpanAttributes(r.op, r.method, r.path)...),
	)
	defer span.End()

	fail := func(apiErr *APIError) (int, error) {
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, apiErr.Kind.String())
		span.SetAttributes(observability.AttrErrorKind.String(apiErr.Kind.String()))
		return apiErr.StatusCode, apiErr
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(&APIError{Kind: KindNetworkUnreachable, Op: r.op, Err: err})
		}
	}

	endpoint := c.baseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	var reader io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return 0, fmt.Errorf("%s: encode request body: %w", r.op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("%s: create request: %w", r.op, err)
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	c.tracer.Inject(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(&APIError{Kind: KindNetworkUnreachable, Op: r.op, Err: err})
	}
	defer resp.Body.Close()

	span.SetAttributes(observability.AttrHTTPStatus.Int(resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fail(&APIError{
			Kind:       KindUnexpectedShape,
			Op:         r.op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("read response body: %w", err),
		})
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fail(&APIError{
			Kind:       kindForStatus(resp.StatusCode),
			Op:         r.op,
			StatusCode: resp.StatusCode,
			Message:    extractMessage(data),
		})
	}

	if v == nil {
		return resp.StatusCode, nil
	}
	if raw, ok := v.(*[]byte); ok {
		*raw = data
		return resp.StatusCode, nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fail(&APIError{
			Kind:       KindUnexpectedShape,
			Op:         r.op,
			StatusCode: resp.StatusCode,
			Message:    "empty response body",
		})
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fail(&APIError{
			Kind:       KindUnexpectedShape,
			Op:         r.op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", err),
		})
	}
	return resp.StatusCode, nil
}

func shapeError(op string, status int, msg string) *APIError {
	return &APIError{Kind: KindUnexpectedShape, Op: op, StatusCode: status, Message: msg}
}
