package db

import "errors"

var (
	ErrAnalysisNotFound  = errors.New("analysis not found")
	ErrDuplicateAnalysis = errors.New("analysis already stored")
	ErrNilResult         = errors.New("nil analysis result")
)
