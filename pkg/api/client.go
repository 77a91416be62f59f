package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"opportunity-engine/pkg/logger"
	"opportunity-engine/pkg/metrics"
)

// Config controls timeouts and retry behaviour of Client.
type Config struct {
	Timeout           time.Duration
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	RetryAfterDefault time.Duration
	MaxRateLimitWaits int
	UserAgent         string
	Connection        ConnectionConfig
}

func DefaultConfig() Config {
	return Config{
		Timeout:           10 * time.Second,
		MaxAttempts:       3,
		RetryBaseDelay:    1 * time.Second,
		RetryAfterDefault: 60 * time.Second,
		MaxRateLimitWaits: 10,
		UserAgent:         "opportunity-engine/1.0",
		Connection:        DefaultConnectionConfig(),
	}
}

// Client is the single entry point for ranking API traffic. Every attempt,
// including retries, first waits on the limiter.
type Client struct {
	config      Config
	limiter     Waiter
	retry       *SimpleRetry
	connManager *ConnectionManager
	log         *logger.Logger

	totalRequests  uint64
	failedRequests uint64
	totalAttempts  uint64
	lastError      atomic.Value
}

type Option func(*Client)

// WithSleep replaces the backoff/retry-after sleeper.
func WithSleep(sleep SleepFunc) Option {
	return func(c *Client) {
		c.retry.WithSleep(sleep)
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		c.log = l.WithField("component", "api_client")
	}
}

func NewClient(config Config, limiter Waiter, opts ...Option) *Client {
	defaults := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.RetryAfterDefault <= 0 {
		config.RetryAfterDefault = defaults.RetryAfterDefault
	}
	if config.Connection == (ConnectionConfig{}) {
		config.Connection = defaults.Connection
	}

	c := &Client{
		config:  config,
		limiter: limiter,
		retry: NewSimpleRetry(config.MaxAttempts, config.RetryBaseDelay).
			WithRateLimit(config.RetryAfterDefault, config.MaxRateLimitWaits),
		connManager: NewConnectionManager(config.Connection, config.UserAgent),
		log:         logger.GetLogger().WithField("component", "api_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs req with rate limiting, retry and backoff. Non-2xx outcomes
// end as *RequestFailedError; an undecodable 2xx body as *MalformedResponseError.
func (c *Client) Do(ctx context.Context, req Request) (interface{}, error) {
	method := req.Method
	switch method {
	case "":
		method = fasthttp.MethodGet
	case fasthttp.MethodGet, fasthttp.MethodPost, fasthttp.MethodDelete:
	default:
		return nil, fmt.Errorf("unsupported method %q", req.Method)
	}

	fullURL, err := buildURL(req.URL, req.Params)
	if err != nil {
		return nil, err
	}

	var body []byte
	if req.Body != nil {
		if body, err = json.Marshal(req.Body); err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	atomic.AddUint64(&c.totalRequests, 1)
	start := time.Now()
	attempts := 0

	var payload interface{}
	err = c.retry.Execute(ctx, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		attempts++
		atomic.AddUint64(&c.totalAttempts, 1)

		p, err := c.doAttempt(ctx, method, fullURL, req.Headers, body)
		if err != nil {
			return err
		}
		payload = p
		return nil
	})

	if err == nil {
		c.log.WithFields(map[string]interface{}{
			"method":      method,
			"attempts":    attempts,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("Provider request completed")
		return payload, nil
	}

	atomic.AddUint64(&c.failedRequests, 1)
	c.lastError.Store(err.Error())

	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return nil, err
	}

	failed := &RequestFailedError{
		Method:   method,
		URL:      req.URL,
		Attempts: attempts,
		Err:      err,
	}
	var se *statusError
	var rl *rateLimitedError
	switch {
	case errors.As(err, &se):
		failed.StatusCode = se.StatusCode
		failed.Body = se.Body
	case errors.As(err, &rl):
		failed.StatusCode = fasthttp.StatusTooManyRequests
		failed.Body = rl.Body
	}

	c.log.WithError(err).WithFields(map[string]interface{}{
		"method":   method,
		"status":   failed.StatusCode,
		"attempts": attempts,
	}).Error("Provider request failed")
	return nil, failed
}

func (c *Client) doAttempt(ctx context.Context, method, fullURL string, headers map[string]string, body []byte) (interface{}, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fullURL)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	timeout := c.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	start := time.Now()
	if err := c.connManager.GetFastHTTPClient().DoTimeout(req, resp, timeout); err != nil {
		metrics.RecordProviderRequest(method, 0, time.Since(start))
		return nil, fmt.Errorf("request failed: %w", err)
	}

	status := resp.StatusCode()
	metrics.RecordProviderRequest(method, status, time.Since(start))
	respBody := append([]byte(nil), resp.Body()...)

	if status == fasthttp.StatusTooManyRequests {
		retryAfter, ok := parseRetryAfter(resp.Header.Peek(fasthttp.HeaderRetryAfter), time.Now())
		return nil, &rateLimitedError{
			RetryAfter:    retryAfter,
			HasRetryAfter: ok,
			Body:          string(respBody),
		}
	}
	if status < 200 || status >= 300 {
		return nil, &statusError{StatusCode: status, Body: string(respBody)}
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}

	var payload interface{}
	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, &MalformedResponseError{URL: fullURL, Body: truncate(string(respBody), 512), Err: err}
	}
	return payload, nil
}

// GetMetrics returns client counters.
func (c *Client) GetMetrics() ClientMetrics {
	var lastErr string
	if v := c.lastError.Load(); v != nil {
		lastErr = v.(string)
	}
	return ClientMetrics{
		TotalRequests:  atomic.LoadUint64(&c.totalRequests),
		FailedRequests: atomic.LoadUint64(&c.failedRequests),
		TotalAttempts:  atomic.LoadUint64(&c.totalAttempts),
		LastError:      lastErr,
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.connManager.Close()
}

// ClientMetrics represents API client counters
type ClientMetrics struct {
	TotalRequests  uint64 `json:"total_requests"`
	FailedRequests uint64 `json:"failed_requests"`
	TotalAttempts  uint64 `json:"total_attempts"`
	LastError      string `json:"last_error,omitempty"`
}

func buildURL(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid request URL: %w", err)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("request URL must be absolute: %q", rawURL)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// parseRetryAfter accepts delta-seconds or an HTTP-date. ok is false when the
// header is absent or unparseable, in which case the configured default applies.
func parseRetryAfter(value []byte, now time.Time) (d time.Duration, ok bool) {
	v := string(bytes.TrimSpace(value))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := fasthttp.ParseHTTPDate([]byte(v)); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}
