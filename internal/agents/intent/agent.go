// Package intent interprets free-text procurement requests into structured
// constraints, deciding when another clarification round is needed.
package intent

import (
	"context"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

// Result is the outcome of one interpretation round.
type Result struct {
	Constraints        models.Constraints
	NeedsClarification bool
	ClarifyingQuestion string
}

// Agent interprets raw text plus prior clarification history. It is
// stateless: history accumulation is the orchestrator's responsibility.
type Agent interface {
	Interpret(ctx context.Context, rawText string, history []models.ClarificationTurn) (*Result, error)
}
