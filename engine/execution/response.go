package execution

import (
	"github.com/compozy/blockgate/engine/block"
	"github.com/compozy/blockgate/engine/infra/server/router"
)

const PollPathPrefix = "/api/v1/gateway/executions/"

type UsagePayload struct {
	TokensUsed      int64   `json:"tokensUsed"`
	APICallsMade    int64   `json:"apiCallsMade"`
	CreditsConsumed float64 `json:"creditsConsumed"`
}

func usagePayload(u block.Usage) UsagePayload {
	return UsagePayload{
		TokensUsed:      u.TokensUsed,
		APICallsMade:    u.APICallsMade,
		CreditsConsumed: u.CreditsConsumed.InexactFloat64(),
	}
}

type CompletedPayload struct {
	ExecutionID string         `json:"executionId"`
	BlockType   string         `json:"blockType"`
	Status      Status         `json:"status"`
	Output      map[string]any `json:"output"`
	Timing      Timing         `json:"timing"`
	Usage       UsagePayload   `json:"usage"`
}

type RunningPayload struct {
	ExecutionID           string   `json:"executionId"`
	BlockType             string   `json:"blockType"`
	Status                Status   `json:"status"`
	Progress              *float64 `json:"progress,omitempty"`
	CurrentStep           string   `json:"currentStep,omitempty"`
	PollURL               string   `json:"pollUrl"`
	EstimatedCompletionMs *int64   `json:"estimatedCompletionMs,omitempty"`
}

// Reply carries exactly one of Completed or Running.
type Reply struct {
	Completed *CompletedPayload
	Running   *RunningPayload
}

func PollURL(executionID string) string {
	return PollPathPrefix + executionID
}

func runningReply(executionID, blockType string, st *AsyncStatus) *Reply {
	p := &RunningPayload{
		ExecutionID: executionID,
		BlockType:   blockType,
		Status:      StatusRunning,
		PollURL:     PollURL(executionID),
	}
	if st != nil {
		p.Progress = st.Progress
		p.CurrentStep = st.CurrentStep
		p.EstimatedCompletionMs = st.EstimatedCompletionMs
	}
	return &Reply{Running: p}
}

func completedReply(executionID, blockType string, resp *ResponseSnapshot) *Reply {
	output := resp.Output
	if output == nil {
		output = map[string]any{}
	}
	return &Reply{Completed: &CompletedPayload{
		ExecutionID: executionID,
		BlockType:   blockType,
		Status:      StatusCompleted,
		Output:      output,
		Timing:      resp.Timing,
		Usage:       usagePayload(resp.Usage),
	}}
}

// replyFromRecord rebuilds the response a stored record stands for. Failed
// records return their stored failure as the error.
func replyFromRecord(rec *Record) (*Reply, error) {
	switch rec.Status() {
	case StatusRunning:
		return runningReply(rec.ExecutionID, rec.BlockType, rec.Payload.Progress), nil
	case StatusFailed:
		if rec.Payload.Response != nil && rec.Payload.Response.Error != nil {
			return nil, rec.Payload.Response.Error
		}
		return nil, fail(router.ErrExecutionFailedCode, "Block execution failed")
	default:
		resp := rec.Payload.Response
		if resp == nil {
			resp = &ResponseSnapshot{}
		}
		return completedReply(rec.ExecutionID, rec.BlockType, resp), nil
	}
}
