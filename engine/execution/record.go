package execution

import (
	"time"

	"github.com/compozy/blockgate/engine/block"
	"github.com/compozy/blockgate/engine/core"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Record is the durable log entry for one execution id.
type Record struct {
	ID                core.ID         `db:"id"`
	ExecutionID       string          `db:"execution_id"`
	WorkflowID        *string         `db:"workflow_id"`
	BlockType         string          `db:"block_type"`
	BlockVersion      string          `db:"block_version"`
	CallerService     string          `db:"caller_service"`
	CallerUserID      string          `db:"caller_user_id"`
	CallerWorkspaceID string          `db:"caller_workspace_id"`
	CallerWorkflowID  string          `db:"caller_workflow_id"`
	CallerNodeID      string          `db:"caller_node_id"`
	Level             string          `db:"level"`
	StartedAt         time.Time       `db:"started_at"`
	EndedAt           *time.Time      `db:"ended_at"`
	TotalDurationMs   *int64          `db:"total_duration_ms"`
	Payload           Payload         `db:"payload"`
	APICalls          int64           `db:"api_calls"`
	CreditsConsumed   decimal.Decimal `db:"credits_consumed"`
}

// Status derives the lifecycle state: no end time means running, and the
// level separates failures from completions.
func (r *Record) Status() Status {
	switch {
	case r.EndedAt == nil:
		return StatusRunning
	case r.Level == LevelError:
		return StatusFailed
	default:
		return StatusCompleted
	}
}

// Payload is stored as JSON alongside the record.
type Payload struct {
	Request  RequestSnapshot   `json:"request"`
	Response *ResponseSnapshot `json:"response,omitempty"`
	Progress *AsyncStatus      `json:"progress,omitempty"`
}

// RequestSnapshot holds the sanitized request; credential-like parameters
// are redacted before it is stored.
type RequestSnapshot struct {
	BlockType      string         `json:"blockType"`
	Action         string         `json:"action"`
	Params         map[string]any `json:"params"`
	TimeoutMs      int64          `json:"timeoutMs"`
	RetryOnFailure bool           `json:"retryOnFailure"`
	RequestID      string         `json:"requestId,omitempty"`
	UserID         core.ID        `json:"userId"`
	WorkspaceID    core.ID        `json:"workspaceId"`
}

type ResponseSnapshot struct {
	Output   map[string]any `json:"output,omitempty"`
	Error    *Failure       `json:"error,omitempty"`
	Usage    block.Usage    `json:"usage"`
	Timing   Timing         `json:"timing"`
	Attempts int            `json:"attempts"`
}

type Timing struct {
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	DurationMs  int64     `json:"durationMs"`
}

// Terminal is the single update that moves a record out of running.
type Terminal struct {
	Level      string
	EndedAt    time.Time
	DurationMs int64
	Response   *ResponseSnapshot
	APICalls   int64
	Credits    decimal.Decimal
}
