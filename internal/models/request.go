package models

import (
	"time"
)

// Requester identifies the employee a pipeline runs on behalf of.
// Role drives the per-role budget ceilings in the compliance policy.
type Requester struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ClarificationTurn is one question/answer exchange recorded on a request.
type ClarificationTurn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"asked_at"`
}

// Constraints is the structured form of a free-text procurement request.
type Constraints struct {
	Category      string   `json:"category"`
	Quantity      int      `json:"quantity"`
	BudgetCeiling float64  `json:"budget_ceiling"`
	Currency      string   `json:"currency"`
	RequiredSpecs []string `json:"required_specs,omitempty"`
}

// ProcurementRequest is the structured request a pipeline executes.
// It is mutated only by appending clarification turns and is frozen once
// constraints are judged complete; after Frozen is set no further
// interpretation round may change it.
type ProcurementRequest struct {
	ID            string              `json:"id"`
	Requester     Requester           `json:"requester"`
	RawText       string              `json:"raw_text"`
	Constraints   Constraints         `json:"constraints"`
	Clarification []ClarificationTurn `json:"clarification,omitempty"`
	Frozen        bool                `json:"frozen"`
	CreatedAt     time.Time           `json:"created_at"`
}

// AppendTurn records a completed clarification round. It is the only
// permitted mutation on an unfrozen request.
func (r *ProcurementRequest) AppendTurn(question, answer string, askedAt time.Time) {
	r.Clarification = append(r.Clarification, ClarificationTurn{
		Question: question,
		Answer:   answer,
		AskedAt:  askedAt,
	})
}

// ClarificationRounds returns how many question/answer exchanges have
// completed so far.
func (r *ProcurementRequest) ClarificationRounds() int {
	return len(r.Clarification)
}
