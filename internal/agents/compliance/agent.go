// Package compliance evaluates a selected candidate against the
// procurement policy. Evaluation is deterministic: every rule runs,
// every result is recorded, and the verdict depends only on the item,
// the requester and the policy version in force.
package compliance

import (
	"time"

	"github.com/procurehub/procurement-orchestrator/internal/models"
	"github.com/procurehub/procurement-orchestrator/internal/policy"
)

// Agent runs the policy rule set over a selection.
type Agent struct {
	pol *policy.Policy
}

func NewAgent(pol *policy.Policy) *Agent {
	return &Agent{pol: pol}
}

// Check evaluates every rule and folds the results into a verdict. Any
// hard failure rejects outright; otherwise any soft failure escalates
// to manager approval; otherwise the selection is approved. The policy
// version is stamped on the verdict so later audits see which rules
// were in force.
func (a *Agent) Check(item models.CandidateItem, requester models.Requester) models.ComplianceVerdict {
	results := make([]models.RuleResult, 0, len(a.pol.Rules))
	hardFail := false
	softFail := false

	for _, rule := range a.pol.Rules {
		res := rule.Evaluate(item, requester)
		results = append(results, res)
		if res.Pass {
			continue
		}
		switch res.Severity {
		case models.SeverityHard:
			hardFail = true
		case models.SeveritySoft:
			softFail = true
		}
	}

	status := models.VerdictApproved
	if hardFail {
		status = models.VerdictRejected
	} else if softFail {
		status = models.VerdictNeedsManagerApproval
	}

	return models.ComplianceVerdict{
		Status:        status,
		Results:       results,
		PolicyVersion: a.pol.Version,
		EvaluatedAt:   time.Now().UTC(),
	}
}
