package interfaces

import (
	"context"

	"github.com/bamtlabs/wsiflow/internal/models"
)

// GlobalStatus is the read-only composition served by the status surface
type GlobalStatus struct {
	RunningJobs []string                          `json:"running_jobs"`
	ActiveUsers []string                          `json:"active_users"`
	PendingJobs []string                          `json:"pending_jobs"`
	Progress    map[string]*models.ProgressRecord `json:"progress"`
}

// SchedulerService exposes control over the admission loop and the global
// status aggregation. Pausing ceases admission only; workers keep draining
// their queues.
type SchedulerService interface {
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	State(ctx context.Context) (string, error)
	GlobalStatus(ctx context.Context) (*GlobalStatus, error)
}
