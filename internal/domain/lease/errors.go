package lease

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySelection     = errors.New("no files selected")
	ErrTooManyPages       = errors.New("too many files selected")
	ErrPageTooLarge       = errors.New("file too large")
	ErrNoSelection        = errors.New("no pages to analyze")
	ErrNoIdentity         = errors.New("identity not resolved")
	ErrAnalysisInProgress = errors.New("analysis already in progress")
	ErrNoClauses          = errors.New("no clauses extracted from any page")

	// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
	ErrQuotaExceeded = errors.New("ai quota exceeded")
)

// RejectedError is a page the analyzer refused. The batch continues without it.
type RejectedError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("page rejected (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("page rejected (status %d)", e.StatusCode)
}

func (e *RejectedError) Unwrap() error { return e.Err }
