package storage

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity-engine/pkg/analyzer"
)

func TestResultStore_PutGet(t *testing.T) {
	store := NewResultStore(10, 0)

	store.Put(Job{ID: "a", Status: JobPending, Prospect: "p.com"})

	job, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, "p.com", job.Prospect)
	assert.False(t, job.CreatedAt.IsZero())

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestResultStore_Update(t *testing.T) {
	store := NewResultStore(10, 0)
	store.Put(Job{ID: "a", Status: JobRunning})

	result := &analyzer.Result{ID: "a"}
	err := store.Update("a", func(j *Job) {
		j.Status = JobCompleted
		j.Progress = 1
		j.Result = result
	})
	require.NoError(t, err)

	job, _ := store.Get("a")
	assert.True(t, job.Done())
	assert.Same(t, result, job.Result)

	assert.ErrorIs(t, store.Update("nope", func(*Job) {}), ErrJobNotFound)
}

func TestResultStore_EvictsLeastRecentlyUsed(t *testing.T) {
	store := NewResultStore(3, 0)
	for i := 0; i < 3; i++ {
		store.Put(Job{ID: fmt.Sprintf("job-%d", i), Status: JobCompleted})
	}

	// touch job-0 so job-1 becomes the oldest
	_, ok := store.Get("job-0")
	require.True(t, ok)

	store.Put(Job{ID: "job-3", Status: JobCompleted})

	assert.Equal(t, 3, store.Size())
	_, ok = store.Get("job-1")
	assert.False(t, ok)
	for _, id := range []string{"job-0", "job-2", "job-3"} {
		_, ok := store.Get(id)
		assert.True(t, ok, id)
	}
}

func TestResultStore_NeverEvictsUnfinishedJobs(t *testing.T) {
	store := NewResultStore(2, 0)
	store.Put(Job{ID: "running-1", Status: JobRunning})
	store.Put(Job{ID: "done", Status: JobCompleted})
	store.Put(Job{ID: "running-2", Status: JobPending})

	_, ok := store.Get("done")
	assert.False(t, ok, "the finished job should make room first")

	store.Put(Job{ID: "running-3", Status: JobRunning})
	assert.Equal(t, 3, store.Size())

	for _, id := range []string{"running-1", "running-2", "running-3"} {
		require.NoError(t, store.Update(id, func(j *Job) { j.Progress = 0.5 }), id)
	}

	require.NoError(t, store.Update("running-1", func(j *Job) { j.Status = JobCompleted }))
	store.Put(Job{ID: "running-4", Status: JobRunning})
	assert.Equal(t, 3, store.Size())
	_, ok = store.Get("running-1")
	assert.False(t, ok)
}

func TestResultStore_TTLOnlyExpiresFinishedJobs(t *testing.T) {
	store := NewResultStore(10, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Put(Job{ID: "done", Status: JobCompleted})
	store.Put(Job{ID: "running", Status: JobRunning})

	now = now.Add(2 * time.Minute)

	_, ok := store.Get("done")
	assert.False(t, ok)
	_, ok = store.Get("running")
	assert.True(t, ok)
	assert.Equal(t, 1, store.Size())
}

func TestResultStore_Stats(t *testing.T) {
	store := NewResultStore(5, 0)
	store.Put(Job{ID: "a", Status: JobRunning})
	store.Put(Job{ID: "b", Status: JobFailed})

	stats := store.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 5, stats.MaxSize)
	assert.Equal(t, 1, stats.Active)
}

func TestResultStore_ConcurrentAccess(t *testing.T) {
	store := NewResultStore(50, 0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("job-%d", i)
			store.Put(Job{ID: id, Status: JobRunning})
			_ = store.Update(id, func(j *Job) { j.Progress = 0.5 })
			_, _ = store.Get(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, store.Size())
}
