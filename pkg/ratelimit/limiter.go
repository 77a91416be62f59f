package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"opportunity-engine/pkg/logger"
)

// Limiter spaces calls at least 1/callsPerSecond apart. The first call never
// blocks. Safe for concurrent use; concurrent callers are queued.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration
	log      *logger.Logger

	totalWaits   int64
	delayedWaits int64
	waitedNanos  int64
}

// New creates a limiter for callsPerSecond. Non-positive rates fall back to 1/s.
func New(callsPerSecond float64) *Limiter {
	if callsPerSecond <= 0 {
		callsPerSecond = 1
	}
	interval := time.Duration(float64(time.Second) / callsPerSecond)
	return &Limiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
		log:      logger.GetLogger().WithField("component", "rate_limiter"),
	}
}

// Wait blocks until the next call is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	atomic.AddInt64(&l.totalWaits, 1)
	start := time.Now()

	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	if waited := time.Since(start); waited > time.Millisecond {
		atomic.AddInt64(&l.delayedWaits, 1)
		atomic.AddInt64(&l.waitedNanos, int64(waited))
		l.log.WithField("waited_ms", waited.Milliseconds()).Debug("Rate limiter delayed call")
	}
	return nil
}

// Interval is the enforced minimum spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// GetStats returns counters for monitoring.
func (l *Limiter) GetStats() Stats {
	return Stats{
		Interval:     l.interval,
		TotalWaits:   atomic.LoadInt64(&l.totalWaits),
		DelayedWaits: atomic.LoadInt64(&l.delayedWaits),
		TotalWaited:  time.Duration(atomic.LoadInt64(&l.waitedNanos)),
	}
}

// Stats holds limiter counters.
type Stats struct {
	Interval     time.Duration `json:"interval"`
	TotalWaits   int64         `json:"total_waits"`
	DelayedWaits int64         `json:"delayed_waits"`
	TotalWaited  time.Duration `json:"total_waited"`
}

// Unlimited never blocks. Useful in tests and for providers without quotas.
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}
