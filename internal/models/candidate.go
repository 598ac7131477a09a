package models

import (
	"time"
)

// CandidateItem is one scraped listing. Produced only by the research
// stage and never mutated after insertion into a CandidateStore.
type CandidateItem struct {
	Source      string    `json:"source"`
	NativeID    string    `json:"native_id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	Vendor      string    `json:"vendor"`
	RawSpecText string    `json:"raw_spec_text"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Key returns the de-duplication key for a candidate: the same listing
// fetched twice from the same source collapses to one row.
func (c CandidateItem) Key() string {
	return c.Source + "/" + c.NativeID
}

// SourceError records a non-fatal failure of one research source.
type SourceError struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// CandidateStore holds the scraped candidates for one request. Rows are
// append-only and insertion order is preserved so ranking tie-breaks are
// stable. Version increments once per research pass; ranked results carry
// the version they were computed from so stale shortlists are detectable.
type CandidateStore struct {
	Version int             `json:"version"`
	Items   []CandidateItem `json:"items"`
	Errors  []SourceError   `json:"errors,omitempty"`

	seen map[string]bool
}

// NewCandidateStore creates an empty store at the given snapshot version.
func NewCandidateStore(version int) *CandidateStore {
	return &CandidateStore{
		Version: version,
		seen:    make(map[string]bool),
	}
}

// Add inserts a candidate unless a row with the same (source, native id)
// key is already present. Returns true if the row was inserted.
func (s *CandidateStore) Add(item CandidateItem) bool {
	if s.seen == nil {
		s.seen = make(map[string]bool, len(s.Items))
		for _, it := range s.Items {
			s.seen[it.Key()] = true
		}
	}
	if s.seen[item.Key()] {
		return false
	}
	s.seen[item.Key()] = true
	s.Items = append(s.Items, item)
	return true
}

// Len returns the number of stored candidates.
func (s *CandidateStore) Len() int {
	return len(s.Items)
}

// Truncate drops rows past max, keeping the first max rows in insertion
// order. Truncation is deterministic for identical input order.
func (s *CandidateStore) Truncate(max int) {
	if max > 0 && len(s.Items) > max {
		s.Items = s.Items[:max]
	}
}

// RecordError records a per-source failure without aborting the pass.
func (s *CandidateStore) RecordError(source, reason string) {
	s.Errors = append(s.Errors, SourceError{Source: source, Reason: reason})
}
