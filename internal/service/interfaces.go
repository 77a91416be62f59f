package service

import (
	"context"

	"opportunity-engine/pkg/analyzer"
	"opportunity-engine/pkg/export"
	"opportunity-engine/pkg/storage"
)

// AnalysisRequest is what consumers submit; branded terms override the
// configured ones when set.
type AnalysisRequest struct {
	Prospect     string   `json:"prospect_domain"`
	Competitors  []string `json:"competitor_domains"`
	BrandedTerms []string `json:"branded_terms,omitempty"`
}

type AnalysisService interface {
	Analyze(ctx context.Context, req AnalysisRequest, progress analyzer.ProgressFunc) (*analyzer.Result, error)
	Submit(req AnalysisRequest) (storage.Job, error)
	Job(ctx context.Context, id string) (storage.Job, bool)
	History(ctx context.Context, prospect string, limit int) ([]string, error)
	Stats() storage.StoreStats
}

// ResultSink persists a finished analysis, e.g. to the warehouse.
type ResultSink interface {
	SaveAnalysis(ctx context.Context, result *analyzer.Result) error
}

// ReportArchive serves analyses that have left the in-memory job store.
type ReportArchive interface {
	GetAnalysis(ctx context.Context, id string) (*analyzer.Result, error)
	ListAnalyses(ctx context.Context, prospect string, limit int) ([]string, error)
}

type Exporter interface {
	Export(ctx context.Context, result *analyzer.Result) (export.Files, error)
}
