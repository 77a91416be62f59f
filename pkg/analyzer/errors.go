package analyzer

import (
	"errors"
	"fmt"

	"opportunity-engine/pkg/api"
)

// ErrDivisionUndefined marks an overlap percentage against an empty prospect
// keyword set. Analyze reports such overlaps as 0%.
var ErrDivisionUndefined = errors.New("overlap percentage undefined for empty prospect keyword set")

// ErrInvalidInput is returned for an empty prospect domain.
var ErrInvalidInput = errors.New("invalid analysis input")

const (
	StageValidate        = "validate"
	StageFetchProspect   = "fetch_prospect"
	StageFetchCompetitor = "fetch_competitor"
)

// AnalysisError carries the stage and domain at which an analysis aborted.
type AnalysisError struct {
	Stage  string
	Domain string
	Err    error
}

func (e *AnalysisError) Error() string {
	msg := fmt.Sprintf("analysis failed at %s", e.Stage)
	if e.Domain != "" {
		msg += fmt.Sprintf(" for %s", e.Domain)
	}
	if status := api.StatusCode(e.Err); status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", status)
	}
	return msg + ": " + e.Err.Error()
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}
