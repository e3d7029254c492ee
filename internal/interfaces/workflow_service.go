package interfaces

import (
	"context"

	"github.com/bamtlabs/wsiflow/internal/models"
)

// WorkflowService manages workflow definitions
type WorkflowService interface {
	// Create registers a workflow; returns false when the id already exists
	Create(ctx context.Context, workflow *models.Workflow) (bool, error)

	// Get returns the workflow, or nil without error when absent
	Get(ctx context.Context, workflowID string) (*models.Workflow, error)

	Exists(ctx context.Context, workflowID string) (bool, error)

	// Delete removes the workflow and its branches; returns false when absent
	Delete(ctx context.Context, workflowID string) (bool, error)

	List(ctx context.Context) ([]*models.Workflow, error)
	ListByOwner(ctx context.Context, userID string) ([]*models.Workflow, error)
}

// BranchService manages the ordered job-spec lists under a workflow
type BranchService interface {
	// Create registers a branch; returns false when it already exists
	Create(ctx context.Context, workflowID, branchID string) (bool, error)

	// AddJobSpec appends a spec to the branch's ordered list; returns false
	// when the branch does not exist
	AddJobSpec(ctx context.Context, workflowID, branchID string, spec models.JobSpec) (bool, error)

	// JobSpecs returns the branch's specs in insertion order. Legacy bare
	// template entries decode to specs with empty payloads.
	JobSpecs(ctx context.Context, workflowID, branchID string) ([]models.JobSpec, error)

	// RemoveJobSpecAt deletes the spec at a zero-based position
	RemoveJobSpecAt(ctx context.Context, workflowID, branchID string, index int) (bool, error)

	List(ctx context.Context, workflowID string) ([]string, error)

	// Delete removes the branch from the workflow's branch set and destroys
	// its job list; returns false when absent
	Delete(ctx context.Context, workflowID, branchID string) (bool, error)
}
