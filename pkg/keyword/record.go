// Package keyword holds the ranked-keyword record shared by the fetcher,
// the scorer and the analyzer.
package keyword

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/text/unicode/norm"
)

// Record is one ranked keyword for one domain. Position 0 means the provider
// reported no ranking.
type Record struct {
	Keyword          string  `json:"keyword"`
	Domain           string  `json:"domain"`
	SearchVolume     int     `json:"search_volume"`
	Position         int     `json:"position"`
	Traffic          float64 `json:"traffic"`
	Difficulty       float64 `json:"difficulty"`
	CPC              float64 `json:"cpc"`
	PreviousPosition int     `json:"previous_position"`
	URL              string  `json:"url"`
	TrafficCost      float64 `json:"traffic_cost"`
	Branded          bool    `json:"branded"`
}

// Provider column names of the fixed keyword projection.
const (
	ColKeyword     = "keyword"
	ColPosition    = "position"
	ColPrevPos     = "prev_pos"
	ColVolume      = "volume"
	ColCPC         = "cpc"
	ColCompetition = "competition"
	ColURL         = "url"
	ColTraffic     = "traffic"
	ColPrice       = "price"
)

// Columns is the projection requested from the provider, in request order.
var Columns = []string{
	ColKeyword, ColPosition, ColPrevPos, ColVolume, ColCPC,
	ColCompetition, ColURL, ColTraffic, ColPrice,
}

// FromRow maps one provider row onto a Record. It never fails: missing or
// unparseable numbers become 0 and missing text becomes "".
func FromRow(row map[string]interface{}, domain string) Record {
	return Record{
		Keyword:          text(row[ColKeyword]),
		Domain:           domain,
		SearchVolume:     nonNegativeInt(row[ColVolume]),
		Position:         nonNegativeInt(row[ColPosition]),
		Traffic:          nonNegative(row[ColTraffic]),
		Difficulty:       number(row[ColCompetition]),
		CPC:              nonNegative(row[ColCPC]),
		PreviousPosition: nonNegativeInt(row[ColPrevPos]),
		URL:              strings.TrimSpace(cast.ToString(row[ColURL])),
		TrafficCost:      nonNegative(row[ColPrice]),
	}
}

// FromRows maps every object in rows, skipping anything that is not an object.
func FromRows(rows []interface{}, domain string) []Record {
	records := make([]Record, 0, len(rows))
	for _, raw := range rows {
		row, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		records = append(records, FromRow(row, domain))
	}
	return records
}

// WithDomain returns a copy of records tagged with domain.
func WithDomain(records []Record, domain string) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		r.Domain = domain
		out[i] = r
	}
	return out
}

func text(v interface{}) string {
	return norm.NFC.String(strings.TrimSpace(cast.ToString(v)))
}

func number(v interface{}) float64 {
	if n, ok := v.(json.Number); ok {
		v = n.String()
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func nonNegative(v interface{}) float64 {
	if f := number(v); f > 0 {
		return f
	}
	return 0
}

// nonNegativeInt rounds to an int in [0, math.MaxInt32].
func nonNegativeInt(v interface{}) int {
	f := math.Round(nonNegative(v))
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}
