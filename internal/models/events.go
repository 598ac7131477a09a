package models

import (
	"time"
)

// PipelineEvent is a checkpoint message emitted by the orchestrator when a
// request needs human input or reaches a terminal stage. The transport
// renders it; the orchestrator only emits structured data.
type PipelineEvent struct {
	RequestID string                 `json:"request_id"`
	EventType string                 `json:"event_type"`
	Stage     Stage                  `json:"stage"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Event types
const (
	EventClarificationNeeded = "pipeline.clarification_needed"
	EventShortlistReady      = "pipeline.shortlist_ready"
	EventApprovalNeeded      = "pipeline.approval_needed"
	EventCompleted           = "pipeline.completed"
	EventFailed              = "pipeline.failed"
	EventCancelled           = "pipeline.cancelled"
)
