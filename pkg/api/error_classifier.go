package api

import (
	"context"
	"errors"
	"strings"
)

// ErrorSeverity represents how a failed attempt should be handled
type ErrorSeverity int

const (
	ErrorSeverityRetryable   ErrorSeverity = iota // transport errors, timeouts, 5xx
	ErrorSeverityRateLimited                      // 429: sleep Retry-After, not counted
	ErrorSeverityFatal                            // 4xx, malformed body, cancellation
)

func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityRetryable:
		return "retryable"
	case ErrorSeverityRateLimited:
		return "rate_limited"
	case ErrorSeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ErrorClassifier decides whether a failed attempt is retried
type ErrorClassifier interface {
	ClassifyError(err error) ErrorSeverity
	ShouldStopProcessing(err error) bool
}

// HTTPErrorClassifier classifies attempt errors produced by Client.
type HTTPErrorClassifier struct{}

func NewHTTPErrorClassifier() ErrorClassifier {
	return &HTTPErrorClassifier{}
}

// ClassifyError classifies error by severity level
func (c *HTTPErrorClassifier) ClassifyError(err error) ErrorSeverity {
	if err == nil {
		return ErrorSeverityRetryable
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorSeverityFatal
	}
	if errors.Is(err, ErrMissingCredential) {
		return ErrorSeverityFatal
	}

	var rl *rateLimitedError
	if errors.As(err, &rl) {
		return ErrorSeverityRateLimited
	}

	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return ErrorSeverityFatal
	}

	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode >= 500, se.StatusCode == 408:
			return ErrorSeverityRetryable
		default:
			return ErrorSeverityFatal
		}
	}

	// Untyped errors come from the transport.
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "unsupported protocol") ||
		strings.Contains(errStr, "missing required host") {
		return ErrorSeverityFatal
	}
	return ErrorSeverityRetryable
}

// ShouldStopProcessing determines if retrying is pointless
func (c *HTTPErrorClassifier) ShouldStopProcessing(err error) bool {
	return c.ClassifyError(err) == ErrorSeverityFatal
}
