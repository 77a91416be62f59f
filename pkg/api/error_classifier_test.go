package api

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestHTTPErrorClassifier_ClassifyError(t *testing.T) {
	classifier := NewHTTPErrorClassifier()

	tests := []struct {
		name     string
		err      error
		expected ErrorSeverity
	}{
		{
			name:     "transport error",
			err:      errors.New("request failed: dial tcp: connection refused"),
			expected: ErrorSeverityRetryable,
		},
		{
			name:     "timeout",
			err:      errors.New("request failed: timeout"),
			expected: ErrorSeverityRetryable,
		},
		{
			name:     "HTTP 500",
			err:      &statusError{StatusCode: 500},
			expected: ErrorSeverityRetryable,
		},
		{
			name:     "HTTP 503 wrapped",
			err:      fmt.Errorf("page 2: %w", &statusError{StatusCode: 503}),
			expected: ErrorSeverityRetryable,
		},
		{
			name:     "HTTP 408",
			err:      &statusError{StatusCode: 408},
			expected: ErrorSeverityRetryable,
		},
		{
			name:     "HTTP 429",
			err:      &rateLimitedError{},
			expected: ErrorSeverityRateLimited,
		},
		{
			name:     "HTTP 401",
			err:      &statusError{StatusCode: 401},
			expected: ErrorSeverityFatal,
		},
		{
			name:     "HTTP 403",
			err:      &statusError{StatusCode: 403},
			expected: ErrorSeverityFatal,
		},
		{
			name:     "HTTP 404",
			err:      &statusError{StatusCode: 404},
			expected: ErrorSeverityFatal,
		},
		{
			name:     "malformed body",
			err:      &MalformedResponseError{Err: errors.New("invalid character")},
			expected: ErrorSeverityFatal,
		},
		{
			name:     "context canceled",
			err:      context.Canceled,
			expected: ErrorSeverityFatal,
		},
		{
			name:     "missing credential",
			err:      ErrMissingCredential,
			expected: ErrorSeverityFatal,
		},
		{
			name:     "bad scheme",
			err:      errors.New("unsupported protocol \"ftp\""),
			expected: ErrorSeverityFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classifier.ClassifyError(tt.err)
			if result != tt.expected {
				t.Errorf("ClassifyError() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestHTTPErrorClassifier_ShouldStopProcessing(t *testing.T) {
	classifier := NewHTTPErrorClassifier()

	if classifier.ShouldStopProcessing(&rateLimitedError{}) {
		t.Error("rate limiting should not stop processing")
	}
	if classifier.ShouldStopProcessing(&statusError{StatusCode: 502}) {
		t.Error("5xx should not stop processing")
	}
	if !classifier.ShouldStopProcessing(&statusError{StatusCode: 400}) {
		t.Error("4xx should stop processing")
	}
}

func BenchmarkHTTPErrorClassifier_ClassifyError(b *testing.B) {
	classifier := NewHTTPErrorClassifier()
	testError := fmt.Errorf("wrapped: %w", &statusError{StatusCode: 503})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		classifier.ClassifyError(testError)
	}
}
