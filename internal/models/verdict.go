package models

import (
	"time"
)

// VerdictStatus is the outcome of a compliance evaluation.
type VerdictStatus string

const (
	VerdictApproved             VerdictStatus = "approved"
	VerdictRejected             VerdictStatus = "rejected"
	VerdictNeedsManagerApproval VerdictStatus = "needs_manager_approval"
)

// RuleSeverity classifies a compliance rule. A hard rule failure is
// unconditionally disqualifying; a soft rule failure escalates to manager
// approval instead.
type RuleSeverity string

const (
	SeverityHard RuleSeverity = "hard"
	SeveritySoft RuleSeverity = "soft"
)

// RuleResult is the outcome of evaluating one policy rule.
type RuleResult struct {
	RuleID      string       `json:"rule_id"`
	Pass        bool         `json:"pass"`
	Severity    RuleSeverity `json:"severity"`
	Explanation string       `json:"explanation"`
}

// ComplianceVerdict is the evaluation of one selected item against the
// active policy. Never retroactively changed; PolicyVersion snapshots the
// rule set in use so later policy updates cannot alter it.
type ComplianceVerdict struct {
	Status        VerdictStatus `json:"status"`
	Results       []RuleResult  `json:"results"`
	PolicyVersion string        `json:"policy_version"`
	EvaluatedAt   time.Time     `json:"evaluated_at"`
}

// Reasons returns the explanations of all failed rules, for the
// user-facing approval and rejection messages.
func (v ComplianceVerdict) Reasons() []string {
	var reasons []string
	for _, r := range v.Results {
		if !r.Pass {
			reasons = append(reasons, r.Explanation)
		}
	}
	return reasons
}

// ManagerDecision is the explicit approval record a manager supplies when
// a verdict escalated.
type ManagerDecision struct {
	ManagerID string    `json:"manager_id"`
	Approved  bool      `json:"approved"`
	Reason    string    `json:"reason,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}
