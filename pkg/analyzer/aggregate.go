package analyzer

import (
	"sort"

	"opportunity-engine/pkg/logger"
)

type keywordSet map[string]struct{}

func keywordsOf(rows []ScoredKeyword) keywordSet {
	set := make(keywordSet, len(rows))
	for _, r := range rows {
		set[r.Keyword] = struct{}{}
	}
	return set
}

func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	m := sum / float64(len(values))
	return &m
}

func summarize(rows []ScoredKeyword, threshold float64) Summary {
	s := Summary{TotalKeywords: len(keywordsOf(rows))}
	scores := make([]float64, 0, len(rows))
	for _, r := range rows {
		scores = append(scores, r.OpportunityScore)
		if r.OpportunityScore > threshold {
			s.HighOpportunityKeywords++
		}
		if r.Branded {
			s.BrandedKeywords++
		}
		s.TotalTraffic += r.Traffic
		s.TotalTrafficCost += r.TrafficCost
	}
	s.AvgOpportunityScore = mean(scores)
	return s
}

func domainMetrics(rows []ScoredKeyword) DomainMetrics {
	positions := make([]float64, 0, len(rows))
	difficulties := make([]float64, 0, len(rows))
	var traffic float64
	for _, r := range rows {
		positions = append(positions, float64(r.Position))
		difficulties = append(difficulties, r.Difficulty)
		traffic += r.Traffic
	}
	return DomainMetrics{
		TotalKeywords: len(rows),
		AvgPosition:   mean(positions),
		TotalTraffic:  traffic,
		AvgDifficulty: mean(difficulties),
	}
}

// overlap of a competitor's keyword set with the prospect's. An empty
// prospect set yields 0% and ErrDivisionUndefined.
func overlap(prospect, competitor keywordSet) (KeywordOverlap, error) {
	count := 0
	for k := range competitor {
		if _, ok := prospect[k]; ok {
			count++
		}
	}
	if len(prospect) == 0 {
		return KeywordOverlap{OverlapCount: count}, ErrDivisionUndefined
	}
	return KeywordOverlap{
		OverlapCount:      count,
		OverlapPercentage: float64(count) / float64(len(prospect)) * 100,
	}, nil
}

// topN returns the n highest-scored rows; ties keep input order. It never
// returns nil, so empty results encode as [].
func topN(rows []ScoredKeyword, n int) []ScoredKeyword {
	sorted := append([]ScoredKeyword{}, rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OpportunityScore > sorted[j].OpportunityScore
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// gaps returns competitor rows whose keyword the prospect does not rank for.
func gaps(competitorRows []ScoredKeyword, prospect keywordSet, n int, log *logger.Logger) []ScoredKeyword {
	var candidates []ScoredKeyword
	for _, r := range competitorRows {
		if _, ok := prospect[r.Keyword]; !ok {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return []ScoredKeyword{}
	}
	log.WithFields(map[string]interface{}{
		"gap_rows":     len(candidates),
		"gap_keywords": len(keywordsOf(candidates)),
	}).Debug("Competitive gaps found")
	return topN(candidates, n)
}
