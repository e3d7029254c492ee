package interfaces

import (
	"context"

	"github.com/bamtlabs/wsiflow/internal/models"
)

// CreateJobParams carries the owning tuple assigned to a job at creation
type CreateJobParams struct {
	UserID       string
	WorkflowID   string
	RunID        string
	BranchID     string
	TemplateID   string
	InputPayload map[string]interface{}
}

// JobService owns the job-instance lifecycle: creation, state transitions,
// progress, outputs. It is the only writer of job hashes and the global
// progress hash.
type JobService interface {
	// Create persists a new PENDING instance and returns its job id
	Create(ctx context.Context, params CreateJobParams) (string, error)

	// Get returns the instance, or nil without error when absent
	Get(ctx context.Context, jobID string) (*models.JobInstance, error)

	// MarkRunning transitions to RUNNING, stamping started_at and scheduled_at
	MarkRunning(ctx context.Context, jobID string) error

	// MarkSuccess transitions to the terminal SUCCESS state with the output
	MarkSuccess(ctx context.Context, jobID string, output map[string]interface{}) error

	// MarkFailed transitions to the terminal FAILED state with the error text
	MarkFailed(ctx context.Context, jobID string, errorMessage string) error

	// UpdateProgress writes local progress onto the job hash and the derived
	// global progress record. userID may be empty; it is then resolved from
	// the job hash.
	UpdateProgress(ctx context.Context, jobID, userID string, update models.ProgressUpdate) error

	// WriteProgressRecord writes a lifecycle progress record (RUNNING at
	// start, SUCCESS/FAILED at completion) to the global progress hash.
	WriteProgressRecord(ctx context.Context, record *models.ProgressRecord) error
}
