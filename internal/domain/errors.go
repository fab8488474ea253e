package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no record exists for a report ID.
var ErrNotFound = errors.New("record not found")

// ConcurrencyError is an optimistic-lock failure on the save path. The
// caller's observed version no longer matches the stored version; the save
// is retryable only after re-reading and re-validating against fresh state.
type ConcurrencyError struct {
	ReportID string
	Observed int
	Current  int
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("stale save of %s: observed version %d, current version %d",
		e.ReportID, e.Observed, e.Current)
}
