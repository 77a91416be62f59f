package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity-engine/internal/config"
	"opportunity-engine/internal/db"
	"opportunity-engine/pkg/analyzer"
	"opportunity-engine/pkg/export"
	"opportunity-engine/pkg/keyword"
	"opportunity-engine/pkg/storage"
)

type stubFetcher struct {
	data  map[string][]keyword.Record
	block bool
}

func (f *stubFetcher) Fetch(ctx context.Context, domain string) ([]keyword.Record, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.data[domain], nil
}

type recordingSink struct {
	mu      sync.Mutex
	results []*analyzer.Result
	err     error
}

func (s *recordingSink) SaveAnalysis(ctx context.Context, result *analyzer.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return s.err
}

func (s *recordingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

type stubExporter struct{ calls int }

func (e *stubExporter) Export(ctx context.Context, result *analyzer.Result) (export.Files, error) {
	e.calls++
	return export.Files{Report: "r.json", Keywords: "k.csv"}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Provider: config.ProviderConfig{CallsPerSecond: 1},
		Analysis: config.AnalysisConfig{
			HighOpportunityThreshold: 0.7,
			TopN:                     10,
			ScoringPolicy:            "v1",
			BrandedTerms:             []string{"acme"},
		},
		Server: config.ServerConfig{MaxJobs: 10},
	}
}

func fixtures() *stubFetcher {
	return &stubFetcher{data: map[string][]keyword.Record{
		"p.com": {{Keyword: "acme boots", SearchVolume: 100, Position: 3}, {Keyword: "boots", SearchVolume: 50, Position: 9}},
		"c.com": {{Keyword: "boots", SearchVolume: 50, Position: 1}, {Keyword: "laces", SearchVolume: 500, Position: 4}},
	}}
}

func TestRunner_AnalyzeInline(t *testing.T) {
	sink := &recordingSink{}
	exp := &stubExporter{}
	r, err := NewRunner(testConfig(), nil, WithFetcher(fixtures()), WithSinks(sink), WithExporter(exp))
	require.NoError(t, err)

	res, err := r.Analyze(context.Background(), AnalysisRequest{Prospect: "p.com", Competitors: []string{"c.com"}}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Summary.TotalKeywords)
	assert.Equal(t, 1, res.Summary.BrandedKeywords, "configured branded terms apply")
	assert.Equal(t, 1, sink.Count())
	assert.Equal(t, 1, exp.calls)
}

func TestRunner_RequestBrandedTermsOverrideConfig(t *testing.T) {
	r, err := NewRunner(testConfig(), nil, WithFetcher(fixtures()))
	require.NoError(t, err)

	res, err := r.Analyze(context.Background(), AnalysisRequest{
		Prospect:     "p.com",
		Competitors:  []string{"c.com"},
		BrandedTerms: []string{"laces"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.BrandedKeywords)
	assert.True(t, res.Keywords[3].Branded)
}

func TestRunner_SinkFailureIsReported(t *testing.T) {
	sink := &recordingSink{err: errors.New("db down")}
	r, err := NewRunner(testConfig(), nil, WithFetcher(fixtures()), WithSinks(sink))
	require.NoError(t, err)

	res, err := r.Analyze(context.Background(), AnalysisRequest{Prospect: "p.com"}, nil)
	assert.Error(t, err)
	assert.NotNil(t, res, "the computed result is still returned")
}

func TestRunner_SubmitCompletes(t *testing.T) {
	sink := &recordingSink{}
	r, err := NewRunner(testConfig(), nil, WithFetcher(fixtures()), WithSinks(sink))
	require.NoError(t, err)

	job, err := r.Submit(AnalysisRequest{Prospect: "p.com", Competitors: []string{"c.com"}})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	require.Eventually(t, func() bool {
		j, ok := r.Job(context.Background(), job.ID)
		return ok && j.Done()
	}, 2*time.Second, 10*time.Millisecond)

	done, _ := r.Job(context.Background(), job.ID)
	assert.Equal(t, storage.JobCompleted, done.Status)
	assert.Equal(t, 1.0, done.Progress)
	require.NotNil(t, done.Result)
	assert.Equal(t, job.ID, done.Result.ID, "the job id doubles as the analysis id")
	assert.Equal(t, 1, sink.Count())

	require.NoError(t, r.Shutdown(context.Background()))
}

func TestRunner_SubmitValidation(t *testing.T) {
	r, err := NewRunner(testConfig(), nil, WithFetcher(fixtures()))
	require.NoError(t, err)

	_, err = r.Submit(AnalysisRequest{Prospect: " "})
	assert.ErrorIs(t, err, analyzer.ErrInvalidInput)
	assert.Equal(t, 0, r.Stats().Size)
}

func TestRunner_ShutdownCancelsJobs(t *testing.T) {
	r, err := NewRunner(testConfig(), nil, WithFetcher(&stubFetcher{block: true}))
	require.NoError(t, err)

	job, err := r.Submit(AnalysisRequest{Prospect: "p.com"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	j, ok := r.Job(context.Background(), job.ID)
	require.True(t, ok)
	assert.Equal(t, storage.JobFailed, j.Status)
	assert.Contains(t, j.Error, "context canceled")

	_, err = r.Submit(AnalysisRequest{Prospect: "p.com"})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestRunner_SubmitRacingShutdown(t *testing.T) {
	r, err := NewRunner(testConfig(), nil, WithFetcher(&stubFetcher{block: true}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Submit(AnalysisRequest{Prospect: "p.com"})
			if err != nil {
				assert.ErrorIs(t, err, ErrShuttingDown)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
	wg.Wait()

	// every accepted job was waited for, so none is left running
	assert.Equal(t, 0, r.Stats().Active)
}

func TestRunner_JobOutlivingStoreIsLogged(t *testing.T) {
	store := storage.NewResultStore(1, 0)
	r, err := NewRunner(testConfig(), nil, WithFetcher(fixtures()), WithStore(store))
	require.NoError(t, err)

	store.Put(storage.Job{ID: "gone", Status: storage.JobRunning})
	store.Delete("gone")

	assert.NotPanics(t, func() {
		r.updateJob("gone", func(j *storage.Job) { j.Progress = 1 })
	})
	_, ok := r.Job(context.Background(), "gone")
	assert.False(t, ok)
}

type fakeArchive struct {
	results map[string]*analyzer.Result
	ids     []string
	err     error
	listed  string
}

func (a *fakeArchive) GetAnalysis(ctx context.Context, id string) (*analyzer.Result, error) {
	if a.err != nil {
		return nil, a.err
	}
	if res, ok := a.results[id]; ok {
		return res, nil
	}
	return nil, db.ErrAnalysisNotFound
}

func (a *fakeArchive) ListAnalyses(ctx context.Context, prospect string, limit int) ([]string, error) {
	a.listed = prospect
	return a.ids, a.err
}

func TestRunner_JobFallsBackToArchive(t *testing.T) {
	stamp := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	archive := &fakeArchive{results: map[string]*analyzer.Result{
		"old": {ID: "old", ProspectDomain: "p.com", CompetitorDomains: []string{"c.com"}, Timestamp: stamp},
	}}
	r, err := NewRunner(testConfig(), nil, WithFetcher(fixtures()), WithArchive(archive))
	require.NoError(t, err)

	job, ok := r.Job(context.Background(), "old")
	require.True(t, ok)
	assert.Equal(t, storage.JobCompleted, job.Status)
	assert.Equal(t, "p.com", job.Prospect)
	assert.Equal(t, []string{"c.com"}, job.Competitors)
	assert.Equal(t, stamp, job.UpdatedAt)
	require.NotNil(t, job.Result)

	_, ok = r.Job(context.Background(), "unknown")
	assert.False(t, ok)

	archive.err = errors.New("connection refused")
	_, ok = r.Job(context.Background(), "old")
	assert.False(t, ok)
}

func TestRunner_History(t *testing.T) {
	r, err := NewRunner(testConfig(), nil, WithFetcher(fixtures()))
	require.NoError(t, err)
	_, err = r.History(context.Background(), "p.com", 5)
	assert.ErrorIs(t, err, ErrNoArchive)

	archive := &fakeArchive{ids: []string{"b", "a"}}
	r, err = NewRunner(testConfig(), nil, WithFetcher(fixtures()), WithArchive(archive))
	require.NoError(t, err)
	ids, err := r.History(context.Background(), " P.com ", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids)
	assert.Equal(t, "p.com", archive.listed)
}

func TestNewRunner_UnknownPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.ScoringPolicy = "v0"
	_, err := NewRunner(cfg, nil, WithFetcher(fixtures()))
	assert.Error(t, err)
}
