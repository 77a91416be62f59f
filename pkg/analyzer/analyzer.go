// Package analyzer compares a prospect domain's organic keywords against its
// competitors and reports scored opportunities, overlap and gaps.
package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"opportunity-engine/pkg/keyword"
	"opportunity-engine/pkg/logger"
	"opportunity-engine/pkg/metrics"
	"opportunity-engine/pkg/provider"
	"opportunity-engine/pkg/scoring"
)

const (
	DefaultHighOpportunityThreshold = 0.7
	DefaultTopN                     = 10
)

// ProgressFunc receives a fraction in [0,1] that never decreases, and a
// human-readable stage label. It is called synchronously.
type ProgressFunc func(fraction float64, stage string)

type Option func(*Analyzer)

func WithThreshold(threshold float64) Option {
	return func(a *Analyzer) { a.threshold = threshold }
}

func WithTopN(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.topN = n
		}
	}
}

// WithBrandedTerms flags rows whose keyword contains any of terms.
func WithBrandedTerms(terms []string) Option {
	return func(a *Analyzer) { a.brands = keyword.NewBrandMatcher(terms) }
}

func WithPolicy(p scoring.Policy) Option {
	return func(a *Analyzer) { a.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(a *Analyzer) { a.newID = newID }
}

func WithLogger(l *logger.Logger) Option {
	return func(a *Analyzer) { a.log = l.WithField("component", "analyzer") }
}

// Analyzer holds no per-analysis state and may be reused.
type Analyzer struct {
	fetcher   provider.Fetcher
	policy    scoring.Policy
	threshold float64
	topN      int
	brands    *keyword.BrandMatcher
	now       func() time.Time
	newID     func() string
	log       *logger.Logger
}

func New(fetcher provider.Fetcher, opts ...Option) *Analyzer {
	a := &Analyzer{
		fetcher:   fetcher,
		policy:    scoring.PolicyV1,
		threshold: DefaultHighOpportunityThreshold,
		topN:      DefaultTopN,
		now:       time.Now,
		newID:     uuid.NewString,
		log:       logger.GetLogger().WithField("component", "analyzer"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze fetches the prospect then each competitor in order, scores every
// row and derives the report. Any fetch failure aborts with *AnalysisError.
func (a *Analyzer) Analyze(ctx context.Context, prospect string, competitors []string, progress ProgressFunc) (result *Result, err error) {
	start := time.Now()
	defer func() { metrics.RecordAnalysis(err, time.Since(start)) }()

	if progress == nil {
		progress = func(float64, string) {}
	}

	prospect = normalizeDomain(prospect)
	if prospect == "" {
		return nil, &AnalysisError{Stage: StageValidate, Err: fmt.Errorf("%w: prospect domain is required", ErrInvalidInput)}
	}
	competitors = a.cleanCompetitors(prospect, competitors)

	log := a.log.WithFields(map[string]interface{}{
		"prospect":    prospect,
		"competitors": len(competitors),
	})
	log.Info("Starting market opportunity analysis")

	progress(0, "Fetching prospect data...")
	prospectRecords, err := a.fetcher.Fetch(ctx, prospect)
	if err != nil {
		return nil, &AnalysisError{Stage: StageFetchProspect, Domain: prospect, Err: err}
	}

	progress(0.1, "Fetching competitor data...")
	competitorRecords := make([][]keyword.Record, len(competitors))
	for i, domain := range competitors {
		records, err := a.fetcher.Fetch(ctx, domain)
		if err != nil {
			return nil, &AnalysisError{Stage: StageFetchCompetitor, Domain: domain, Err: err}
		}
		competitorRecords[i] = records
		progress(0.1+0.2*float64(i+1)/float64(len(competitors)), fmt.Sprintf("Fetched competitor data for %s", domain))
	}

	progress(0.3, "Combining data...")
	prospectRows := a.score(keyword.WithDomain(prospectRecords, prospect))
	byDomain := map[string][]ScoredKeyword{prospect: prospectRows}
	all := append([]ScoredKeyword(nil), prospectRows...)
	var competitorRows []ScoredKeyword
	for i, domain := range competitors {
		rows := a.score(keyword.WithDomain(competitorRecords[i], domain))
		byDomain[domain] = rows
		all = append(all, rows...)
		competitorRows = append(competitorRows, rows...)
	}

	progress(0.4, "Calculating opportunity scores...")
	progress(0.6, "Generating analysis results...")
	result = &Result{
		ProspectDomain:    prospect,
		CompetitorDomains: competitors,
		ScoringPolicy:     a.policy.Version,
		Summary:           summarize(all, a.threshold),
		TopOpportunities:  topN(all, a.topN),
		Keywords:          all,
	}

	progress(0.7, "Calculating domain-specific metrics...")
	result.DomainMetrics = make(map[string]DomainMetrics, len(competitors)+1)
	for _, domain := range append([]string{prospect}, competitors...) {
		result.DomainMetrics[domain] = domainMetrics(byDomain[domain])
	}

	progress(0.8, "Calculating keyword overlap...")
	prospectSet := keywordsOf(prospectRows)
	result.KeywordOverlap = make(map[string]KeywordOverlap, len(competitors))
	for _, domain := range competitors {
		o, err := overlap(prospectSet, keywordsOf(byDomain[domain]))
		if err != nil {
			log.WithError(err).WithField("competitor", domain).Warn("Prospect has no keywords, reporting 0% overlap")
		}
		result.KeywordOverlap[domain] = o
	}

	progress(0.9, "Finding competitive gaps...")
	result.CompetitiveGaps = gaps(competitorRows, prospectSet, a.topN, log)

	result.ID = a.newID()
	result.Timestamp = a.now().UTC()
	progress(1, "Analysis complete!")

	log.WithFields(map[string]interface{}{
		"analysis_id":    result.ID,
		"keywords":       result.Summary.TotalKeywords,
		"rows":           len(all),
		"high":           result.Summary.HighOpportunityKeywords,
		"gaps":           len(result.CompetitiveGaps),
		"duration_ms":    time.Since(start).Milliseconds(),
		"scoring_policy": result.ScoringPolicy,
	}).Info("Market opportunity analysis complete")
	return result, nil
}

func (a *Analyzer) score(records []keyword.Record) []ScoredKeyword {
	rows := make([]ScoredKeyword, len(records))
	for i, r := range records {
		if !a.brands.Empty() {
			r.Branded = a.brands.Match(r.Keyword)
		}
		rows[i] = ScoredKeyword{Record: r, OpportunityScore: a.policy.Score(r)}
	}
	return rows
}

// cleanCompetitors drops blanks, duplicates and the prospect itself, keeping order.
func (a *Analyzer) cleanCompetitors(prospect string, competitors []string) []string {
	seen := map[string]struct{}{prospect: {}}
	out := make([]string, 0, len(competitors))
	for _, c := range competitors {
		c = normalizeDomain(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			a.log.WithField("domain", c).Warn("Ignoring duplicate competitor domain")
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}
