package interfaces

import (
	"context"
	"errors"
)

// ErrWorkflowNotFound is returned when executing an unknown workflow
var ErrWorkflowNotFound = errors.New("workflow not found")

// ExecutionResult reports one workflow execution
type ExecutionResult struct {
	WorkflowID string   `json:"workflow_id"`
	RunID      string   `json:"run_id"`
	JobIDs     []string `json:"job_ids"`
}

// ExecutionService expands a workflow into job instances at execution time
// and publishes them to the global pending queue. Per-job payload errors are
// tolerated: the offending spec is logged and skipped, the execution
// continues.
type ExecutionService interface {
	ExecuteWorkflow(ctx context.Context, workflowID string) (*ExecutionResult, error)
}
