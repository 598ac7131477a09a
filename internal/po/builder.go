// Package po assembles purchase orders for approved selections.
package po

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

// Builder materializes a purchase order from a cleared selection. It is
// the last gate before money moves, so it re-checks the compliance
// outcome instead of trusting callers to have done so.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Build creates the purchase order. The verdict must be approved, or
// escalated with a recorded manager approval; anything else is refused.
// The approver is the manager when one decided, the requester otherwise.
func (b *Builder) Build(requestID string, item models.CandidateItem, requester models.Requester, quantity int, verdict *models.ComplianceVerdict, decision *models.ManagerDecision) (*models.PurchaseOrder, error) {
	if quantity <= 0 {
		return nil, &models.InvalidQuantityError{Quantity: quantity}
	}

	approvedBy := requester.ID
	switch {
	case verdict == nil:
		return nil, errors.New("no compliance verdict for selection")
	case verdict.Status == models.VerdictApproved:
	case verdict.Status == models.VerdictNeedsManagerApproval && decision != nil && decision.Approved:
		approvedBy = decision.ManagerID
	default:
		return nil, fmt.Errorf("verdict %s does not permit a purchase order", verdict.Status)
	}

	total := math.Round(item.Price*float64(quantity)*100) / 100

	return &models.PurchaseOrder{
		ID:         uuid.New().String(),
		RequestID:  requestID,
		Item:       item,
		Requester:  requester,
		Quantity:   quantity,
		UnitPrice:  item.Price,
		TotalCost:  total,
		Currency:   item.Currency,
		ApprovedBy: approvedBy,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
