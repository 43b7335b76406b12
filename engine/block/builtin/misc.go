package builtin

import (
	"context"
	"fmt"

	"github.com/compozy/blockgate/engine/block"
	"github.com/compozy/blockgate/engine/core"
	"github.com/shopspring/decimal"
)

const (
	actionBatchSubmit = "batch_submit"
	actionEcho        = "echo"
	actionSchedule    = "schedule_trigger"
)

// batchDescriptor accepts work and answers with a job handle; the job itself
// runs elsewhere and reports completion through the execution record.
func batchDescriptor() *block.Descriptor {
	return &block.Descriptor{
		Type:        "batch_job",
		Name:        "Batch Job",
		Description: "Queue a batch of items for background processing",
		Category:    "blocks",
		Icon:        "layers",
		Version:     "1.0.0",
		Inputs: []block.Param{
			{Name: "items", Type: block.TypeArray, Required: true, Description: "Items to process"},
			{Name: "label", Type: block.TypeString, Description: "Job label", Default: block.Computed(
				func(params map[string]any) (any, error) {
					items, ok := params["items"].([]any)
					if !ok {
						return "batch", nil
					}
					return fmt.Sprintf("batch of %d", len(items)), nil
				},
			)},
		},
		Outputs: []block.Output{
			{Name: "status", Type: block.TypeString},
			{Name: "jobId", Type: block.TypeString},
			{Name: "message", Type: block.TypeString},
		},
		Action:  actionBatchSubmit,
		Actions: []string{actionBatchSubmit},
	}
}

func batchAction() block.Action {
	return block.ActionFunc{Name: actionBatchSubmit, Fn: func(
		_ context.Context,
		params map[string]any,
		_ *block.ExecContext,
	) (*block.Result, error) {
		id, err := core.NewID()
		if err != nil {
			return nil, err
		}
		items, _ := params["items"].([]any)
		return &block.Result{
			Success: true,
			Output: map[string]any{
				"status":   "queued",
				"jobId":    id.String(),
				"message":  fmt.Sprintf("%s queued for processing", params["label"]),
				"progress": 0,
				"total":    len(items),
			},
			Usage: block.Usage{CreditsConsumed: decimal.NewFromFloat(0.01).Mul(decimal.NewFromInt(int64(len(items))))},
		}, nil
	}}
}

func echoDescriptor() *block.Descriptor {
	return &block.Descriptor{
		Type:        "echo",
		Name:        "Echo",
		Description: "Return the hydrated parameters unchanged",
		Category:    "blocks",
		Version:     "1.0.0",
		Hidden:      true,
		Inputs: []block.Param{
			{Name: "message", Type: block.TypeString, Description: "Anything"},
			{Name: "payload", Type: block.TypeJSON, Description: "Structured value"},
		},
		Outputs: []block.Output{{Name: "params", Type: block.TypeObject}},
		Action:  actionEcho,
	}
}

func echoAction() block.Action {
	return block.ActionFunc{Name: actionEcho, Fn: func(
		_ context.Context,
		params map[string]any,
		ec *block.ExecContext,
	) (*block.Result, error) {
		return &block.Result{
			Success: true,
			Output:  map[string]any{"params": params, "workflowId": ec.WorkflowID},
		}, nil
	}}
}

func scheduleDescriptor() *block.Descriptor {
	return &block.Descriptor{
		Type:        "schedule",
		Name:        "Schedule",
		Description: "Start a workflow on a cron schedule",
		Category:    "triggers",
		Icon:        "clock",
		Version:     "1.0.0",
		TriggerOnly: true,
		Inputs: []block.Param{
			{Name: "cron", Type: block.TypeString, Required: true, Description: "Cron expression"},
		},
		Action: actionSchedule,
	}
}

func scheduleAction() block.Action {
	return block.ActionFunc{Name: actionSchedule, Fn: func(
		context.Context,
		map[string]any,
		*block.ExecContext,
	) (*block.Result, error) {
		return &block.Result{Error: "schedule is a trigger and cannot be executed directly"}, nil
	}}
}
