package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressReporter logs fractional progress of a long-running operation.
// Report has the (fraction, message) shape of an analysis progress callback,
// so it can be passed where one is expected.
type ProgressReporter struct {
	mu          sync.RWMutex
	description string
	fraction    float64
	stage       string
	startTime   time.Time
	lastUpdate  time.Time
	minInterval time.Duration
	logger      *Logger
}

// NewProgressReporter creates a new progress reporter
func NewProgressReporter(description string) *ProgressReporter {
	now := time.Now()
	return &ProgressReporter{
		description: description,
		startTime:   now,
		lastUpdate:  now,
		minInterval: 5 * time.Second,
		logger:      GetLogger().WithField("component", "progress"),
	}
}

// WithLogger swaps the destination logger.
func (pr *ProgressReporter) WithLogger(l *Logger) *ProgressReporter {
	pr.mu.Lock()
	pr.logger = l.WithField("component", "progress")
	pr.mu.Unlock()
	return pr
}

// Report records progress. A line is logged whenever the stage label changes,
// the operation completes, or minInterval has passed since the last line.
func (pr *ProgressReporter) Report(fraction float64, stage string) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if fraction < pr.fraction {
		fraction = pr.fraction
	}
	if fraction > 1 {
		fraction = 1
	}
	changed := stage != pr.stage
	pr.fraction = fraction
	pr.stage = stage

	now := time.Now()
	if changed || fraction >= 1 || now.Sub(pr.lastUpdate) >= pr.minInterval {
		pr.reportProgress()
		pr.lastUpdate = now
	}
}

// Complete marks the operation as finished.
func (pr *ProgressReporter) Complete() {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	pr.fraction = 1
	pr.reportProgress()
}

// reportProgress must be called with the lock held.
func (pr *ProgressReporter) reportProgress() {
	elapsed := time.Since(pr.startTime)

	var eta string
	if pr.fraction > 0 && pr.fraction < 1 {
		remaining := time.Duration(float64(elapsed) * (1 - pr.fraction) / pr.fraction)
		eta = fmt.Sprintf(" (ETA: %s)", remaining.Round(time.Second))
	}

	pr.logger.WithFields(map[string]interface{}{
		"progress":    fmt.Sprintf("%.0f%%", pr.fraction*100),
		"stage":       pr.stage,
		"elapsed":     elapsed.Round(time.Millisecond).String(),
		"description": pr.description,
	}).Info(fmt.Sprintf("%s: %s (%.0f%%)%s", pr.description, pr.stage, pr.fraction*100, eta))
}

// GetProgress returns the last reported fraction and stage.
func (pr *ProgressReporter) GetProgress() (fraction float64, stage string) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return pr.fraction, pr.stage
}
