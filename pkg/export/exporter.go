package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"opportunity-engine/pkg/analyzer"
	"opportunity-engine/pkg/logger"
)

// CSVHeader is the column order of the keyword export.
var CSVHeader = []string{
	"Keyword", "Search_Volume", "Position", "Previous_Position", "CPC",
	"Competition", "URL", "Traffic", "Traffic_Cost", "Competitor",
	"Branded", "Opportunity_Score",
}

// Files lists where an export was written.
type Files struct {
	Report   string `json:"report"`
	Keywords string `json:"keywords"`
}

// Exporter writes the JSON report and the scored keyword CSV for a result.
type Exporter struct {
	sink Sink
	log  *logger.Logger
}

func NewExporter(sink Sink) *Exporter {
	return &Exporter{
		sink: sink,
		log:  logger.GetLogger().WithField("component", "exporter"),
	}
}

func (e *Exporter) Export(ctx context.Context, result *analyzer.Result) (Files, error) {
	var files Files
	base := baseName(result)

	report, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return files, fmt.Errorf("failed to marshal report: %w", err)
	}
	if files.Report, err = e.sink.Put(ctx, base+".json", "application/json", report); err != nil {
		return files, fmt.Errorf("failed to export report: %w", err)
	}

	keywords, err := KeywordsCSV(result.Keywords)
	if err != nil {
		return files, err
	}
	if files.Keywords, err = e.sink.Put(ctx, base+"_keywords.csv", "text/csv", keywords); err != nil {
		return files, fmt.Errorf("failed to export keywords: %w", err)
	}

	e.log.WithFields(map[string]interface{}{
		"analysis_id": result.ID,
		"report":      files.Report,
		"keywords":    files.Keywords,
		"rows":        len(result.Keywords),
	}).Info("Analysis exported")
	return files, nil
}

// KeywordsCSV renders the scored working set, one row per fetched keyword.
func KeywordsCSV(rows []analyzer.ScoredKeyword) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVHeader); err != nil {
		return nil, err
	}
	for _, r := range rows {
		branded := "0"
		if r.Branded {
			branded = "1"
		}
		if err := w.Write([]string{
			r.Keyword,
			strconv.Itoa(r.SearchVolume),
			strconv.Itoa(r.Position),
			strconv.Itoa(r.PreviousPosition),
			formatFloat(r.CPC),
			formatFloat(r.Difficulty),
			r.URL,
			formatFloat(r.Traffic),
			formatFloat(r.TrafficCost),
			r.Domain,
			branded,
			strconv.FormatFloat(r.OpportunityScore, 'f', 4, 64),
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write keywords CSV: %w", err)
	}
	return buf.Bytes(), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func baseName(result *analyzer.Result) string {
	domain := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, strings.ToLower(result.ProspectDomain))
	return fmt.Sprintf("moe_%s_%s", domain, result.Timestamp.UTC().Format("20060102T150405Z"))
}
