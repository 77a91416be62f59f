package storage

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"opportunity-engine/pkg/analyzer"
)

// ErrJobNotFound is returned for unknown or evicted job ids.
var ErrJobNotFound = errors.New("analysis job not found")

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job tracks one analysis submitted to the server.
type Job struct {
	ID          string           `json:"id"`
	Status      JobStatus        `json:"status"`
	Prospect    string           `json:"prospect_domain"`
	Competitors []string         `json:"competitor_domains"`
	Progress    float64          `json:"progress"`
	Stage       string           `json:"stage,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Result      *analyzer.Result `json:"result,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (j Job) Done() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

type jobItem struct {
	job     Job
	element *list.Element
}

// ResultStore is a bounded LRU of analysis jobs with optional TTL. Jobs are
// handed out by value; results are never mutated after completion.
type ResultStore struct {
	maxSize int
	ttl     time.Duration
	items   map[string]*jobItem
	lruList *list.List
	mu      sync.Mutex
	now     func() time.Time
}

// NewResultStore keeps at most maxSize jobs; ttl of 0 disables expiry.
func NewResultStore(maxSize int, ttl time.Duration) *ResultStore {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &ResultStore{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*jobItem),
		lruList: list.New(),
		now:     time.Now,
	}
}

// Put adds or replaces a job and evicts the least recently used finished job
// when full. Unfinished jobs are never evicted, so the store may briefly hold
// more than maxSize jobs while they run.
func (s *ResultStore) Put(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	if item, exists := s.items[job.ID]; exists {
		item.job = job
		s.lruList.MoveToFront(item.element)
		return
	}

	item := &jobItem{job: job}
	item.element = s.lruList.PushFront(item)
	s.items[job.ID] = item

	s.expireLocked(now)
	for len(s.items) > s.maxSize && s.evictOldest() {
	}
}

func (s *ResultStore) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[id]
	if !exists {
		return Job{}, false
	}
	if s.expired(item, s.now()) {
		s.deleteItem(item)
		return Job{}, false
	}
	s.lruList.MoveToFront(item.element)
	return item.job, true
}

// Update applies fn to a stored job under the store lock.
func (s *ResultStore) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[id]
	if !exists {
		return ErrJobNotFound
	}
	fn(&item.job)
	item.job.UpdatedAt = s.now()
	s.lruList.MoveToFront(item.element)
	return nil
}

func (s *ResultStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item, exists := s.items[id]; exists {
		s.deleteItem(item)
	}
}

// Size returns the current number of jobs.
func (s *ResultStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Stats returns store statistics.
func (s *ResultStore) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := StoreStats{Size: len(s.items), MaxSize: s.maxSize, TTL: s.ttl.String()}
	for _, item := range s.items {
		if !item.job.Done() {
			stats.Active++
		}
	}
	return stats
}

// StoreStats represents result store statistics
type StoreStats struct {
	Size    int    `json:"size"`
	MaxSize int    `json:"max_size"`
	Active  int    `json:"active"`
	TTL     string `json:"ttl"`
}

// evictOldest removes the least recently used finished job. It reports false
// when every stored job is still pending or running.
func (s *ResultStore) evictOldest() bool {
	for element := s.lruList.Back(); element != nil; element = element.Prev() {
		if item := element.Value.(*jobItem); item.job.Done() {
			s.deleteItem(item)
			return true
		}
	}
	return false
}

func (s *ResultStore) expireLocked(now time.Time) {
	if s.ttl == 0 {
		return
	}
	for element := s.lruList.Back(); element != nil; {
		prev := element.Prev()
		if item := element.Value.(*jobItem); s.expired(item, now) {
			s.deleteItem(item)
		}
		element = prev
	}
}

// Only finished jobs expire; running ones are kept until they finish.
func (s *ResultStore) expired(item *jobItem, now time.Time) bool {
	return s.ttl > 0 && item.job.Done() && now.Sub(item.job.UpdatedAt) > s.ttl
}

func (s *ResultStore) deleteItem(item *jobItem) {
	delete(s.items, item.job.ID)
	s.lruList.Remove(item.element)
}
