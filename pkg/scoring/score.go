// Package scoring computes the opportunity score of a ranked keyword.
package scoring

import (
	"fmt"
	"math"

	"opportunity-engine/pkg/keyword"
)

// Policy is a versioned set of scoring weights. Results carry the version so
// scores from different policies are never compared by accident.
type Policy struct {
	Version          string
	VolumeWeight     float64
	PositionWeight   float64
	DifficultyWeight float64
	CPCWeight        float64
	VolumeLogDivisor float64
	CPCCap           float64
}

// PolicyV1 is the original weighting.
var PolicyV1 = Policy{
	Version:          "v1",
	VolumeWeight:     0.3,
	PositionWeight:   0.25,
	DifficultyWeight: 0.25,
	CPCWeight:        0.2,
	VolumeLogDivisor: 10,
	CPCCap:           5,
}

var policies = map[string]Policy{
	PolicyV1.Version: PolicyV1,
}

// Lookup returns the registered policy for version.
func Lookup(version string) (Policy, error) {
	if version == "" {
		return PolicyV1, nil
	}
	p, ok := policies[version]
	if !ok {
		return Policy{}, fmt.Errorf("unknown scoring policy %q", version)
	}
	return p, nil
}

// Components are the per-signal sub-scores before weighting.
type Components struct {
	Volume     float64 `json:"volume"`
	Position   float64 `json:"position"`
	Difficulty float64 `json:"difficulty"`
	CPC        float64 `json:"cpc"`
}

// Components splits a record into its sub-scores. Values are not clamped:
// difficulty above 100 yields a negative sub-score. A negative volume counts
// as 0 so the logarithm stays defined.
func (p Policy) Components(r keyword.Record) Components {
	return Components{
		Volume:     math.Log1p(math.Max(float64(r.SearchVolume), 0)) / p.VolumeLogDivisor,
		Position:   (100 - float64(r.Position)) / 100,
		Difficulty: (100 - r.Difficulty) / 100,
		CPC:        math.Min(r.CPC/p.CPCCap, 1),
	}
}

// Score is a pure function of the record's volume, position, difficulty and cpc.
func (p Policy) Score(r keyword.Record) float64 {
	c := p.Components(r)
	return p.VolumeWeight*c.Volume +
		p.PositionWeight*c.Position +
		p.DifficultyWeight*c.Difficulty +
		p.CPCWeight*c.CPC
}

// Score scores r under PolicyV1.
func Score(r keyword.Record) float64 {
	return PolicyV1.Score(r)
}
