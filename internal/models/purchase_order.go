package models

import (
	"time"
)

// PurchaseOrder is the finished document handed to the persistence and
// delivery collaborators. Created exactly once per request, only after an
// approved verdict or an explicit manager override.
type PurchaseOrder struct {
	ID          string        `json:"id"`
	RequestID   string        `json:"request_id"`
	Item        CandidateItem `json:"item"`
	Requester   Requester     `json:"requester"`
	Quantity    int           `json:"quantity"`
	UnitPrice   float64       `json:"unit_price"`
	TotalCost   float64       `json:"total_cost"`
	Currency    string        `json:"currency"`
	ApprovedBy  string        `json:"approved_by"`
	CreatedAt   time.Time     `json:"created_at"`
}
