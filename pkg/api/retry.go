package api

import (
	"context"
	"errors"
	"math"
	"time"

	"opportunity-engine/pkg/logger"
	"opportunity-engine/pkg/metrics"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SimpleRetry retries an operation with exponential backoff. HTTP 429 is
// handled separately: the retry-after sleep does not consume an attempt and
// is bounded by its own budget.
type SimpleRetry struct {
	maxAttempts       int
	retryDelay        time.Duration
	backoffMultiplier float64
	maxRateLimitWaits int
	defaultRetryAfter time.Duration
	classifier        ErrorClassifier
	sleep             SleepFunc
	log               *logger.Logger
}

// NewSimpleRetry creates a retry policy making at most maxAttempts attempts,
// sleeping retryDelay * 2^attempt between them.
func NewSimpleRetry(maxAttempts int, retryDelay time.Duration) *SimpleRetry {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &SimpleRetry{
		maxAttempts:       maxAttempts,
		retryDelay:        retryDelay,
		backoffMultiplier: 2.0,
		maxRateLimitWaits: 10,
		defaultRetryAfter: 60 * time.Second,
		classifier:        NewHTTPErrorClassifier(),
		sleep:             sleepContext,
		log:               logger.GetLogger().WithField("component", "retry"),
	}
}

// WithRateLimit sets the Retry-After fallback and how many 429 waits are
// tolerated per operation (0 means unbounded).
func (sr *SimpleRetry) WithRateLimit(defaultRetryAfter time.Duration, maxWaits int) *SimpleRetry {
	sr.defaultRetryAfter = defaultRetryAfter
	sr.maxRateLimitWaits = maxWaits
	return sr
}

// WithSleep replaces the sleeper, mainly for tests.
func (sr *SimpleRetry) WithSleep(sleep SleepFunc) *SimpleRetry {
	if sleep != nil {
		sr.sleep = sleep
	}
	return sr
}

// Execute runs fn until it succeeds, a non-retryable error occurs, or the
// attempt budget is spent. The last error is returned.
func (sr *SimpleRetry) Execute(ctx context.Context, fn func() error) error {
	var lastErr error
	rateLimitWaits := 0

	for attempt := 0; attempt < sr.maxAttempts; {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		switch sr.classifier.ClassifyError(err) {
		case ErrorSeverityFatal:
			return err

		case ErrorSeverityRateLimited:
			rateLimitWaits++
			if sr.maxRateLimitWaits > 0 && rateLimitWaits > sr.maxRateLimitWaits {
				return err
			}
			wait := sr.defaultRetryAfter
			var rl *rateLimitedError
			if errors.As(err, &rl) && rl.HasRetryAfter {
				wait = rl.RetryAfter
			}
			sr.log.WithFields(map[string]interface{}{
				"retry_after": wait.String(),
				"waits":       rateLimitWaits,
			}).Warn("Provider rate limit hit, sleeping before retry")
			metrics.RecordProviderRetry("rate_limited")
			if err := sr.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		attempt++
		if attempt >= sr.maxAttempts {
			return err
		}

		delay := sr.backoff(attempt - 1)
		sr.log.WithError(err).WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Debug("Retrying after error")
		metrics.RecordProviderRetry("backoff")
		if err := sr.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// backoff returns retryDelay * multiplier^attempt.
func (sr *SimpleRetry) backoff(attempt int) time.Duration {
	return time.Duration(float64(sr.retryDelay) * math.Pow(sr.backoffMultiplier, float64(attempt)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
