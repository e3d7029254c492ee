package scheduler

import (
	"context"
	"errors"

	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/models"
)

// Start enables admission. Workers pick up admitted jobs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	return s.store.Set(ctx, models.KeySchedulerState, models.SchedulerRunning)
}

// Pause ceases admission. Jobs already on user queues keep draining.
func (s *Scheduler) Pause(ctx context.Context) error {
	return s.store.Set(ctx, models.KeySchedulerState, models.SchedulerPaused)
}

// State returns the current control state, defaulting to paused
func (s *Scheduler) State(ctx context.Context) (string, error) {
	state, err := s.store.Get(ctx, models.KeySchedulerState)
	if err != nil {
		if errors.Is(err, interfaces.ErrNil) {
			return models.SchedulerPaused, nil
		}
		return "", err
	}
	return state, nil
}

// GlobalStatus composes the read-only status surface: running jobs,
// active users, pending queue, and decoded progress records.
func (s *Scheduler) GlobalStatus(ctx context.Context) (*interfaces.GlobalStatus, error) {
	running, err := s.store.SMembers(ctx, models.KeyRunningJobs)
	if err != nil {
		return nil, err
	}
	activeUsers, err := s.store.SMembers(ctx, models.KeyActiveUsers)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.LRange(ctx, models.KeyPendingJobs, 0, -1)
	if err != nil {
		return nil, err
	}
	rawProgress, err := s.store.HGetAll(ctx, models.KeyJobProgress)
	if err != nil {
		return nil, err
	}

	progress := make(map[string]*models.ProgressRecord, len(rawProgress))
	for jobID, encoded := range rawProgress {
		record, err := models.DecodeProgressRecord(encoded)
		if err != nil {
			// Surface a placeholder instead of hiding the job
			record = &models.ProgressRecord{JobID: jobID, Status: "UNKNOWN"}
		}
		progress[jobID] = record
	}

	return &interfaces.GlobalStatus{
		RunningJobs: running,
		ActiveUsers: activeUsers,
		PendingJobs: pending,
		Progress:    progress,
	}, nil
}
