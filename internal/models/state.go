package models

import (
	"time"
)

// Stage is the current position of a pipeline in its state machine.
type Stage string

const (
	StageIntake                  Stage = "intake"
	StageClarifying              Stage = "clarifying"
	StageResearching             Stage = "researching"
	StageRanking                 Stage = "ranking"
	StageAwaitingSelection       Stage = "awaiting_selection"
	StageCheckingCompliance      Stage = "checking_compliance"
	StageAwaitingManagerApproval Stage = "awaiting_manager_approval"
	StageGeneratingPO            Stage = "generating_po"
	StageCompleted               Stage = "completed"
	StageFailed                  Stage = "failed"
	StageCancelled               Stage = "cancelled"
)

// ValidTransitions maps each stage to the stages reachable from it.
// Cancelled is additionally reachable from every non-terminal stage.
var ValidTransitions = map[Stage][]Stage{
	StageIntake:                  {StageClarifying, StageResearching, StageFailed},
	StageClarifying:              {StageClarifying, StageResearching, StageFailed},
	StageResearching:             {StageRanking, StageFailed},
	StageRanking:                 {StageAwaitingSelection, StageFailed},
	StageAwaitingSelection:       {StageCheckingCompliance},
	StageCheckingCompliance:      {StageGeneratingPO, StageAwaitingManagerApproval, StageFailed},
	StageAwaitingManagerApproval: {StageGeneratingPO, StageFailed},
	StageGeneratingPO:            {StageCompleted, StageFailed},
	StageCompleted:               {},
	StageFailed:                  {},
	StageCancelled:               {},
}

// IsTerminal reports whether no further transition can leave the stage.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCancelled
}

// CanTransition reports whether moving from s to next is allowed.
func (s Stage) CanTransition(next Stage) bool {
	if next == StageCancelled {
		return !s.IsTerminal()
	}
	for _, allowed := range ValidTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsSuspension reports whether the stage waits on external human input.
// State is always persisted before entering a suspension stage.
func (s Stage) IsSuspension() bool {
	switch s {
	case StageClarifying, StageAwaitingSelection, StageAwaitingManagerApproval:
		return true
	}
	return false
}

// PipelineState is the orchestrator's per-request record. It is owned
// exclusively by the orchestration instance for its request; collaborators
// receive read access to the inputs they need and return fresh derived
// entities. Version increases on every persisted transition and detects
// stale resumption.
type PipelineState struct {
	RequestID       string              `json:"request_id"`
	Stage           Stage               `json:"stage"`
	Version         int                 `json:"version"`
	Request         *ProcurementRequest `json:"request,omitempty"`
	PendingQuestion string              `json:"pending_question,omitempty"`
	Candidates      *CandidateStore     `json:"candidates,omitempty"`
	Shortlist       []RankedItem        `json:"shortlist,omitempty"`
	Selected        *RankedItem         `json:"selected,omitempty"`
	Quantity        int                 `json:"quantity,omitempty"`
	Verdict         *ComplianceVerdict  `json:"verdict,omitempty"`
	Decision        *ManagerDecision    `json:"decision,omitempty"`
	POID            string              `json:"po_id,omitempty"`
	RetryCounts     map[Stage]int       `json:"retry_counts,omitempty"`
	FailureReason   string              `json:"failure_reason,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Retries returns the retry count recorded for a stage.
func (p *PipelineState) Retries(stage Stage) int {
	return p.RetryCounts[stage]
}

// BumpRetry increments the retry counter for a stage and returns the new
// count.
func (p *PipelineState) BumpRetry(stage Stage) int {
	if p.RetryCounts == nil {
		p.RetryCounts = make(map[Stage]int)
	}
	p.RetryCounts[stage]++
	return p.RetryCounts[stage]
}
