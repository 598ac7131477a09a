package models

import (
	"fmt"
)

// InterpretationError reports that the interpretation call was unreachable
// or returned an unparsable result. Retryable up to the configured attempt
// count, then fatal for the request.
type InterpretationError struct {
	Err error
}

func (e *InterpretationError) Error() string {
	return fmt.Sprintf("interpretation failed: %v", e.Err)
}

func (e *InterpretationError) Unwrap() error { return e.Err }

// SourceFetchError reports the failure of a single research source. It is
// recorded on the candidate store and never aborts the research pass.
type SourceFetchError struct {
	Source string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// AllSourcesFailedError reports that every configured research source
// failed. Fatal for the researching stage; retried with backoff before the
// request fails.
type AllSourcesFailedError struct {
	Errors []SourceError
}

func (e *AllSourcesFailedError) Error() string {
	return fmt.Sprintf("all %d research sources failed", len(e.Errors))
}

// PolicyUnavailableError reports that the compliance rule set could not be
// loaded. Fatal: no purchase order may be generated without an evaluated
// policy.
type PolicyUnavailableError struct {
	Err error
}

func (e *PolicyUnavailableError) Error() string {
	return fmt.Sprintf("compliance policy unavailable: %v", e.Err)
}

func (e *PolicyUnavailableError) Unwrap() error { return e.Err }

// InvalidSelectionError reports a selection outside the shown shortlist.
// Recoverable: the user is re-prompted, the pipeline stays suspended.
type InvalidSelectionError struct {
	Rank      int
	Shortlist int
}

func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("selection %d outside shortlist of %d items", e.Rank, e.Shortlist)
}

// InvalidQuantityError reports a non-positive quantity at purchase-order
// generation. Recoverable by re-selection.
type InvalidQuantityError struct {
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %d: must be positive", e.Quantity)
}

// StaleStateError reports that a persisted pipeline state was modified by
// a concurrent writer between load and save.
type StaleStateError struct {
	RequestID string
	Version   int
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("stale pipeline state for request %s at version %d", e.RequestID, e.Version)
}

// InvalidTransitionError reports an attempted state-machine transition
// that the stage graph does not allow.
type InvalidTransitionError struct {
	From Stage
	To   Stage
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}
