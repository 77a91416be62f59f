package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"opportunity-engine/pkg/analyzer"
)

var keywordColumns = []string{
	"analysis_id", "keyword", "domain", "search_volume", "position",
	"previous_position", "traffic", "traffic_cost", "difficulty", "cpc",
	"url", "branded", "opportunity_score",
}

// SaveAnalysis stores the report and every scored row in one transaction.
func (db *DB) SaveAnalysis(ctx context.Context, result *analyzer.Result) error {
	if result == nil {
		return ErrNilResult
	}

	report, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	competitors := result.CompetitorDomains
	if competitors == nil {
		competitors = []string{}
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO analyses (id, analyzed_at, prospect_domain, competitor_domains,
			scoring_policy, total_keywords, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		result.ID, result.Timestamp, result.ProspectDomain, competitors,
		result.ScoringPolicy, result.Summary.TotalKeywords, report,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateAnalysis
		}
		return fmt.Errorf("insert analysis: %w", err)
	}

	rows := result.Keywords
	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"analysis_keywords"}, keywordColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			k := rows[i]
			return []any{
				result.ID, k.Keyword, k.Domain, k.SearchVolume, k.Position,
				k.PreviousPosition, k.Traffic, k.TrafficCost, k.Difficulty, k.CPC,
				k.URL, k.Branded, k.OpportunityScore,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy keywords: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	db.log.WithFields(map[string]interface{}{
		"analysis_id": result.ID,
		"prospect":    result.ProspectDomain,
		"rows":        copied,
	}).Info("Analysis stored")
	return nil
}

// GetAnalysis loads a stored report. The scored working set is not restored.
func (db *DB) GetAnalysis(ctx context.Context, id string) (*analyzer.Result, error) {
	var report []byte
	err := db.Pool.QueryRow(ctx, `SELECT report FROM analyses WHERE id = $1`, id).Scan(&report)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load analysis: %w", err)
	}

	var result analyzer.Result
	if err := json.Unmarshal(report, &result); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &result, nil
}

// ListAnalyses returns the ids of a prospect's analyses, newest first.
func (db *DB) ListAnalyses(ctx context.Context, prospect string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT id FROM analyses
		WHERE prospect_domain = $1
		ORDER BY analyzed_at DESC
		LIMIT $2`, prospect, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return ids, nil
}
