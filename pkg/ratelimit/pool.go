package ratelimit

import (
	"sync"
)

// Pool shares one Limiter per key, so concurrent analyses that use the same
// provider credential draw from a single request budget.
type Pool struct {
	limiters map[string]*Limiter
	mu       sync.RWMutex
}

func NewPool() *Pool {
	return &Pool{
		limiters: make(map[string]*Limiter),
	}
}

// GetOrCreate returns the limiter registered for key, creating it at
// callsPerSecond on first use. Later rates for the same key are ignored.
func (p *Pool) GetOrCreate(key string, callsPerSecond float64) *Limiter {
	p.mu.RLock()
	if limiter, exists := p.limiters[key]; exists {
		p.mu.RUnlock()
		return limiter
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if limiter, exists := p.limiters[key]; exists {
		return limiter
	}

	limiter := New(callsPerSecond)
	p.limiters[key] = limiter
	return limiter
}

// Count returns the number of limiters in the pool.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.limiters)
}
