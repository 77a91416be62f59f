package api

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// ErrMissingCredential is returned before any network call when no provider API key is configured.
var ErrMissingCredential = errors.New("provider API credential is not configured")

// RequestFailedError is returned once a request has exhausted its retries or
// hit a non-retryable HTTP status.
type RequestFailedError struct {
	Method     string
	URL        string
	StatusCode int // 0 when no response was received
	Body       string
	Attempts   int
	Err        error
}

func (e *RequestFailedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed after %d attempt(s): HTTP %d: %s",
			e.Method, e.URL, e.Attempts, e.StatusCode, truncate(e.Body, 512))
	}
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *RequestFailedError) Unwrap() error {
	return e.Err
}

// MalformedResponseError reports a 2xx response whose body is not valid JSON
// or does not have the expected shape.
type MalformedResponseError struct {
	URL  string
	Body string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.URL, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// statusError is a single attempt that got a non-2xx, non-429 response.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, truncate(e.Body, 512))
}

// rateLimitedError is a single attempt that got HTTP 429. It is recovered by
// sleeping RetryAfter (or the configured default when the header was absent)
// and retrying.
type rateLimitedError struct {
	RetryAfter    time.Duration
	HasRetryAfter bool
	Body          string
}

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (429), retry after %v", e.RetryAfter)
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var rf *RequestFailedError
	if errors.As(err, &rf) {
		return rf.StatusCode
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	var rl *rateLimitedError
	if errors.As(err, &rl) {
		return 429
	}
	return 0
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
