package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"opportunity-engine/internal/config"
	"opportunity-engine/internal/db"
	"opportunity-engine/pkg/analyzer"
	"opportunity-engine/pkg/api"
	"opportunity-engine/pkg/logger"
	"opportunity-engine/pkg/provider"
	"opportunity-engine/pkg/ratelimit"
	"opportunity-engine/pkg/scoring"
	"opportunity-engine/pkg/storage"
)

var (
	// ErrShuttingDown is returned by Submit once Shutdown has been called.
	ErrShuttingDown = errors.New("analysis runner is shutting down")
	// ErrNoArchive is returned by History when no warehouse is configured.
	ErrNoArchive = errors.New("no analysis archive configured")
)

type RunnerOption func(*Runner)

// WithRequester replaces the provider HTTP client, mainly for tests.
func WithRequester(r api.Requester) RunnerOption {
	return func(rn *Runner) { rn.requester = r }
}

// WithFetcher replaces the keyword fetcher entirely.
func WithFetcher(f provider.Fetcher) RunnerOption {
	return func(rn *Runner) { rn.fetcher = f }
}

func WithStore(store *storage.ResultStore) RunnerOption {
	return func(rn *Runner) { rn.store = store }
}

func WithSinks(sinks ...ResultSink) RunnerOption {
	return func(rn *Runner) { rn.sinks = append(rn.sinks, sinks...) }
}

func WithExporter(e Exporter) RunnerOption {
	return func(rn *Runner) { rn.exporter = e }
}

// WithArchive lets Job and History fall back to stored analyses.
func WithArchive(a ReportArchive) RunnerOption {
	return func(rn *Runner) { rn.archive = a }
}

// Runner wires configuration into the analysis pipeline and runs analyses
// either inline (CLI) or as background jobs (server).
type Runner struct {
	cfg       *config.Config
	client    *api.Client
	requester api.Requester
	fetcher   provider.Fetcher
	policy    scoring.Policy
	store     *storage.ResultStore
	sinks     []ResultSink
	exporter  Exporter
	archive   ReportArchive
	log       *logger.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	shutdown bool
}

// NewRunner builds the provider client from cfg. The limiter comes from pool,
// keyed by credential, so runners sharing a pool share the provider budget.
func NewRunner(cfg *config.Config, pool *ratelimit.Pool, opts ...RunnerOption) (*Runner, error) {
	policy, err := scoring.Lookup(cfg.Analysis.ScoringPolicy)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		cfg:    cfg,
		policy: policy,
		log:    logger.GetLogger().WithField("component", "analysis_runner"),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.fetcher == nil {
		if r.requester == nil {
			if pool == nil {
				pool = ratelimit.NewPool()
			}
			key := "key#" + logger.GetSecurityLogger().GenerateHash(cfg.Provider.APIKey)
			limiter := pool.GetOrCreate(key, cfg.Provider.CallsPerSecond)
			r.client = api.NewClient(cfg.Provider.ClientConfig(), limiter)
			r.requester = r.client
		}
		if r.fetcher, err = provider.New(cfg.Provider.FetcherConfig(), r.requester); err != nil {
			cancel()
			return nil, err
		}
	}
	if r.store == nil {
		r.store = storage.NewResultStore(cfg.Server.MaxJobs, cfg.Server.JobTTL)
	}

	logger.GetSecurityLogger().SafeInfo("Analysis runner configured", map[string]interface{}{
		"provider_base_url": cfg.Provider.BaseURL,
		"region":            cfg.Provider.Region,
		"strategy":          cfg.Provider.Strategy,
		"api_key":           logger.GetSecurityLogger().MaskSecret(cfg.Provider.APIKey),
		"calls_per_second":  cfg.Provider.CallsPerSecond,
		"scoring_policy":    policy.Version,
	})
	return r, nil
}

func (r *Runner) newAnalyzer(req AnalysisRequest, id string) *analyzer.Analyzer {
	terms := req.BrandedTerms
	if len(terms) == 0 {
		terms = r.cfg.Analysis.BrandedTerms
	}
	opts := []analyzer.Option{
		analyzer.WithPolicy(r.policy),
		analyzer.WithThreshold(r.cfg.Analysis.HighOpportunityThreshold),
		analyzer.WithTopN(r.cfg.Analysis.TopN),
		analyzer.WithBrandedTerms(terms),
	}
	if id != "" {
		opts = append(opts, analyzer.WithIDGenerator(func() string { return id }))
	}
	return analyzer.New(r.fetcher, opts...)
}

// Analyze runs one analysis inline and hands the result to every sink.
func (r *Runner) Analyze(ctx context.Context, req AnalysisRequest, progress analyzer.ProgressFunc) (*analyzer.Result, error) {
	return r.run(ctx, req, "", progress)
}

func (r *Runner) run(ctx context.Context, req AnalysisRequest, id string, progress analyzer.ProgressFunc) (*analyzer.Result, error) {
	result, err := r.newAnalyzer(req, id).Analyze(ctx, req.Prospect, req.Competitors, progress)
	if err != nil {
		return nil, err
	}
	if err := r.persist(ctx, result); err != nil {
		return result, err
	}
	return result, nil
}

// persist writes result to the exporter and all sinks; failures are joined.
func (r *Runner) persist(ctx context.Context, result *analyzer.Result) error {
	var errs []error
	if r.exporter != nil {
		if _, err := r.exporter.Export(ctx, result); err != nil {
			errs = append(errs, fmt.Errorf("export: %w", err))
		}
	}
	for _, sink := range r.sinks {
		if err := sink.SaveAnalysis(ctx, result); err != nil {
			errs = append(errs, fmt.Errorf("save analysis: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		r.log.WithError(err).WithField("analysis_id", result.ID).Error("Failed to persist analysis")
		return err
	}
	return nil
}

// Submit validates req and starts it as a background job.
func (r *Runner) Submit(req AnalysisRequest) (storage.Job, error) {
	if strings.TrimSpace(req.Prospect) == "" {
		return storage.Job{}, fmt.Errorf("%w: prospect_domain is required", analyzer.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return storage.Job{}, ErrShuttingDown
	}

	job := storage.Job{
		ID:          uuid.NewString(),
		Status:      storage.JobPending,
		Prospect:    req.Prospect,
		Competitors: req.Competitors,
	}
	r.store.Put(job)

	r.wg.Add(1)
	go r.runJob(job.ID, req)

	stored, _ := r.store.Get(job.ID)
	return stored, nil
}

func (r *Runner) runJob(id string, req AnalysisRequest) {
	defer r.wg.Done()
	log := r.log.WithField("job_id", id)

	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("Panic during analysis job")
			r.updateJob(id, func(j *storage.Job) {
				j.Status = storage.JobFailed
				j.Error = fmt.Sprintf("internal error: %v", p)
			})
		}
	}()

	r.updateJob(id, func(j *storage.Job) { j.Status = storage.JobRunning })

	reporter := logger.NewProgressReporter("analysis " + id).WithLogger(log)
	progress := func(fraction float64, stage string) {
		reporter.Report(fraction, stage)
		r.updateJob(id, func(j *storage.Job) {
			j.Progress = fraction
			j.Stage = stage
		})
	}

	start := time.Now()
	result, err := r.run(r.ctx, req, id, progress)
	r.updateJob(id, func(j *storage.Job) {
		j.Result = result
		if err != nil {
			j.Status = storage.JobFailed
			j.Error = err.Error()
			return
		}
		j.Status = storage.JobCompleted
		j.Progress = 1
	})

	if err != nil {
		log.WithError(err).Warn("Analysis job failed")
		return
	}
	log.WithField("duration", time.Since(start).String()).Info("Analysis job completed")
}

// updateJob applies fn to a stored job; a job that left the store is logged.
func (r *Runner) updateJob(id string, fn func(*storage.Job)) {
	if err := r.store.Update(id, fn); err != nil {
		r.log.WithError(err).WithField("job_id", id).Warn("Job state update dropped")
	}
}

// Job returns a tracked job, or a completed job rebuilt from the archive once
// the in-memory entry has expired or been evicted.
func (r *Runner) Job(ctx context.Context, id string) (storage.Job, bool) {
	if job, ok := r.store.Get(id); ok {
		return job, true
	}
	if r.archive == nil {
		return storage.Job{}, false
	}

	result, err := r.archive.GetAnalysis(ctx, id)
	if err != nil {
		if !errors.Is(err, db.ErrAnalysisNotFound) {
			r.log.WithError(err).WithField("analysis_id", id).Warn("Failed to load archived analysis")
		}
		return storage.Job{}, false
	}
	return storage.Job{
		ID:          id,
		Status:      storage.JobCompleted,
		Prospect:    result.ProspectDomain,
		Competitors: result.CompetitorDomains,
		Progress:    1,
		CreatedAt:   result.Timestamp,
		UpdatedAt:   result.Timestamp,
		Result:      result,
	}, true
}

// History lists archived analysis ids for prospect, newest first.
func (r *Runner) History(ctx context.Context, prospect string, limit int) ([]string, error) {
	if r.archive == nil {
		return nil, ErrNoArchive
	}
	return r.archive.ListAnalyses(ctx, strings.ToLower(strings.TrimSpace(prospect)), limit)
}

func (r *Runner) Stats() storage.StoreStats {
	return r.store.Stats()
}

// Shutdown cancels running jobs and waits for them until ctx expires.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.shutdown = true
	r.mu.Unlock()
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	defer func() {
		if r.client != nil {
			r.client.Close()
		}
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
