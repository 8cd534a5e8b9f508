package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"proposal-prepper/internal/shared/metrics"
	"proposal-prepper/internal/shared/telemetry"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultHealthCacheTTL = 30 * time.Second
	maxErrorDetail        = 256
)

// Options configures a Client.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HealthCacheTTL time.Duration
	HTTPClient     *http.Client
	Now            func() time.Time
}

// Client issues JSON requests to the analysis engine.
type Client struct {
	baseURL string
	opts    Options
	http    *http.Client
	now     func() time.Time
	health  healthCache
}

// New builds a client, filling zero options with defaults.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.HealthCacheTTL <= 0 {
		opts.HealthCacheTTL = defaultHealthCacheTTL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		opts:    opts,
		http:    httpClient,
		now:     now,
	}
}

// BaseURL returns the engine base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestOption adjusts a single request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	timeout     time.Duration
	maxAttempts int
	headers     http.Header
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxAttempts overrides the total attempt count.
func WithMaxAttempts(n int) RequestOption {
	return func(o *requestOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithoutRetry limits the request to a single attempt.
func WithoutRetry() RequestOption {
	return WithMaxAttempts(1)
}

// WithHeader adds a header to every attempt.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if value != "" {
			o.headers.Set(key, value)
		}
	}
}

func (c *Client) requestOptions(opts []RequestOption) requestOptions {
	ro := requestOptions{
		timeout:     c.opts.Timeout,
		maxAttempts: c.opts.MaxAttempts,
		headers:     http.Header{},
	}
	for _, opt := range opts {
		opt(&ro)
	}
	return ro
}

// Request performs method against path, retrying transient failures, and
// decodes the unwrapped payload into T.
func Request[T any](ctx context.Context, c *Client, method, path string, body any, opts ...RequestOption) Result[T] {
	raw := c.do(ctx, method, path, body, opts...)
	if !raw.Success {
		return Fail[T](raw.Code, raw.Error)
	}
	var out T
	if len(raw.Data) == 0 || isJSONNull(raw.Data) {
		return OK(out)
	}
	if err := json.Unmarshal(raw.Data, &out); err != nil {
		return Fail[T](CodeParse, "decode response: "+err.Error())
	}
	return OK(out)
}

func (c *Client) do(ctx context.Context, method, path string, body any, opts ...RequestOption) Result[json.RawMessage] {
	ro := c.requestOptions(opts)

	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return Fail[json.RawMessage](CodeValidation, "encode request: "+err.Error())
		}
		payload = encoded
	}
	url := c.baseURL + path

	attempts := 0
	var data json.RawMessage
	operation := func() error {
		attempts++
		if attempts > 1 {
			metrics.IncTransportRetry()
		}
		d, aerr := c.attempt(ctx, method, url, payload, ro)
		if aerr != nil {
			metrics.IncTransportRequest(method, string(aerr.code))
			if !aerr.retryable() {
				return backoff.Permanent(aerr)
			}
			telemetry.Warn("transport.attempt_failed", map[string]any{
				"method":  method,
				"path":    path,
				"attempt": attempts,
				"code":    aerr.code,
				"error":   aerr.msg,
			})
			return aerr
		}
		metrics.IncTransportRequest(method, "ok")
		data = d
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.opts.InitialBackoff
	exp.MaxInterval = c.opts.MaxBackoff
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(ro.maxAttempts-1)), ctx)

	err := backoff.Retry(operation, policy)
	if err == nil {
		return OK(data)
	}
	var aerr *attemptError
	if errors.As(err, &aerr) {
		return Fail[json.RawMessage](aerr.code, aerr.msg)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Fail[json.RawMessage](CodeTimeout, fmt.Sprintf("request aborted after %d attempt(s): %v", attempts, ctxErr))
	}
	return Fail[json.RawMessage](CodeNetwork, err.Error())
}

func (c *Client) attempt(ctx context.Context, method, url string, payload []byte, ro requestOptions) (json.RawMessage, *attemptError) {
	attemptCtx, cancel := context.WithTimeout(ctx, ro.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, url, reader)
	if err != nil {
		return nil, &attemptError{code: CodeValidation, msg: "build request: " + err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range ro.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyError(err)
	}
	return decodeBody(resp.StatusCode, body)
}

// decodeBody turns a status code and raw body into the unwrapped payload.
func decodeBody(status int, body []byte) (json.RawMessage, *attemptError) {
	if status >= 400 {
		return nil, statusError(status, errorDetail(body))
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, &attemptError{code: CodeParse, msg: "malformed JSON response"}
	}
	return unwrapEnvelope(trimmed)
}

// errorDetail extracts a short message from an error response body.
func errorDetail(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > maxErrorDetail {
		detail = detail[:maxErrorDetail]
	}
	return detail
}
