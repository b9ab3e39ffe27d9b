package domain

import "time"

type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusExpired        RunStatus = "expired"
	RunStatusIncomplete     RunStatus = "incomplete"

	// RunStatusAbandoned is set locally when the caller's context ends
	// before the remote job settles. The job itself may still be running.
	RunStatusAbandoned RunStatus = "abandoned"
)

// Terminal reports whether no further polling can change the status.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired, RunStatusIncomplete, RunStatusAbandoned:
		return true
	default:
		return false
	}
}

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

type Run struct {
	ID        string     `json:"id"`
	ThreadID  string     `json:"thread_id"`
	Status    RunStatus  `json:"status"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// RunHandle identifies a started run.
type RunHandle struct {
	ThreadID  string    `json:"thread_id"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

type ResponseStatus string

const (
	ResponseGatheringRequired ResponseStatus = "GATHERING_REQUIRED"
	ResponseGatheringOptional ResponseStatus = "GATHERING_OPTIONAL"
	ResponseCompleted         ResponseStatus = "COMPLETED"
)

// ClaimResponse is the structured reply the assistant must produce.
type ClaimResponse struct {
	ClaimData map[string]any `json:"claim_data"`
	Status    ResponseStatus `json:"status"`
	Message   string         `json:"message"`
}

// AssistantReply is the outcome of one conversational turn.
type AssistantReply struct {
	ThreadID   string         `json:"thread_id"`
	RunID      string         `json:"run_id"`
	RunStatus  RunStatus      `json:"run_status"`
	Raw        string         `json:"raw,omitempty"`
	Response   *ClaimResponse `json:"response,omitempty"`
	ParseError string         `json:"parse_error,omitempty"`
	RunError   string         `json:"run_error,omitempty"`
}
