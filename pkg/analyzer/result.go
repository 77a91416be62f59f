package analyzer

import (
	"time"

	"opportunity-engine/pkg/keyword"
)

// Result is the outcome of one analysis. It is not modified after Analyze returns.
type Result struct {
	ID                string                    `json:"id"`
	Timestamp         time.Time                 `json:"timestamp"`
	ProspectDomain    string                    `json:"prospect_domain"`
	CompetitorDomains []string                  `json:"competitor_domains"`
	ScoringPolicy     string                    `json:"scoring_policy"`
	Summary           Summary                   `json:"summary"`
	DomainMetrics     map[string]DomainMetrics  `json:"domain_metrics"`
	TopOpportunities  []ScoredKeyword           `json:"top_opportunities"`
	KeywordOverlap    map[string]KeywordOverlap `json:"keyword_overlap"`
	CompetitiveGaps   []ScoredKeyword           `json:"competitive_gaps"`

	// Keywords is the full scored working set, prospect rows first.
	Keywords []ScoredKeyword `json:"-"`
}

type Summary struct {
	TotalKeywords           int      `json:"total_keywords"`
	AvgOpportunityScore     *float64 `json:"avg_opportunity_score"`
	HighOpportunityKeywords int      `json:"high_opportunity_keywords"`
	BrandedKeywords         int      `json:"branded_keywords"`
	TotalTraffic            float64  `json:"total_traffic"`
	TotalTrafficCost        float64  `json:"total_traffic_cost"`
}

// DomainMetrics aggregates one domain's rows. Means are nil for a domain
// without rows.
type DomainMetrics struct {
	TotalKeywords int      `json:"total_keywords"`
	AvgPosition   *float64 `json:"avg_position"`
	TotalTraffic  float64  `json:"total_traffic"`
	AvgDifficulty *float64 `json:"avg_difficulty"`
}

type KeywordOverlap struct {
	OverlapCount      int     `json:"overlap_count"`
	OverlapPercentage float64 `json:"overlap_percentage"`
}

type ScoredKeyword struct {
	keyword.Record
	OpportunityScore float64 `json:"opportunity_score"`
}
