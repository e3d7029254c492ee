// -----------------------------------------------------------------------
// Job lifecycle service - the only writer of job hashes and the global
// progress hash. Terminal states are never re-entered.
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/common"
	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/models"
)

// Service implements interfaces.JobService
type Service struct {
	store  interfaces.StateStore
	logger arbor.ILogger
}

// NewService creates a new job lifecycle service
func NewService(store interfaces.StateStore, logger arbor.ILogger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Create persists a new PENDING job instance and returns its id
func (s *Service) Create(ctx context.Context, params interfaces.CreateJobParams) (string, error) {
	jobID := common.NewJobID()

	instance := &models.JobInstance{
		JobID:        jobID,
		WorkflowID:   params.WorkflowID,
		RunID:        params.RunID,
		BranchID:     params.BranchID,
		TemplateID:   params.TemplateID,
		UserID:       params.UserID,
		Status:       models.JobStatusPending,
		CreatedAt:    time.Now(),
		InputPayload: params.InputPayload,
	}

	if err := s.store.HSet(ctx, models.JobKey(jobID), instance.Fields()); err != nil {
		return "", fmt.Errorf("failed to persist job instance: %w", err)
	}

	s.logger.Debug().
		Str("job_id", jobID).
		Str("template", params.TemplateID).
		Str("user_id", params.UserID).
		Msg("Job instance created")

	return jobID, nil
}

// Get returns the instance, or nil when absent
func (s *Service) Get(ctx context.Context, jobID string) (*models.JobInstance, error) {
	fields, err := s.store.HGetAll(ctx, models.JobKey(jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return models.JobInstanceFromFields(fields), nil
}

// MarkRunning transitions the job to RUNNING
func (s *Service) MarkRunning(ctx context.Context, jobID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.store.HSet(ctx, models.JobKey(jobID), map[string]interface{}{
		"status":       string(models.JobStatusRunning),
		"started_at":   now,
		"scheduled_at": now,
	})
}

// MarkSuccess transitions the job to the terminal SUCCESS state
func (s *Service) MarkSuccess(ctx context.Context, jobID string, output map[string]interface{}) error {
	if output == nil {
		output = map[string]interface{}{}
	}
	encoded, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to encode output payload for %s: %w", jobID, err)
	}
	return s.store.HSet(ctx, models.JobKey(jobID), map[string]interface{}{
		"status":         string(models.JobStatusSuccess),
		"finished_at":    time.Now().UTC().Format(time.RFC3339Nano),
		"output_payload": string(encoded),
		"progress":       "100",
		"stage":          "completed",
	})
}

// MarkFailed transitions the job to the terminal FAILED state
func (s *Service) MarkFailed(ctx context.Context, jobID string, errorMessage string) error {
	return s.store.HSet(ctx, models.JobKey(jobID), map[string]interface{}{
		"status":           string(models.JobStatusFailed),
		"finished_at":      time.Now().UTC().Format(time.RFC3339Nano),
		"progress_message": errorMessage,
		"stage":            "failed",
		"progress":         "100",
	})
}

// UpdateProgress writes local job progress and the derived global record.
// Concurrent calls for the same job are last-write-wins per field.
func (s *Service) UpdateProgress(ctx context.Context, jobID, userID string, update models.ProgressUpdate) error {
	fields := map[string]interface{}{
		"progress":         update.Progress,
		"progress_message": update.Message,
	}
	if update.Stage != "" {
		fields["stage"] = update.Stage
	}
	if update.ETA > 0 {
		fields["eta_seconds"] = update.ETA
	}

	if err := s.store.HSet(ctx, models.JobKey(jobID), fields); err != nil {
		return fmt.Errorf("failed to update progress for %s: %w", jobID, err)
	}

	// The global panel needs the owning user; resolve it when the caller
	// did not provide one.
	if userID == "" {
		owner, err := s.store.HGet(ctx, models.JobKey(jobID), "user_id")
		if err != nil || owner == "" {
			owner = "unknown"
		}
		userID = owner
	}

	current, total := update.Current, update.Total
	if total == 0 {
		current, total = update.Progress, 100
	}

	record := &models.ProgressRecord{
		JobID:      jobID,
		UserID:     userID,
		Status:     models.JobStatusRunning,
		Current:    current,
		Total:      total,
		Percent:    update.GlobalPercent(),
		Message:    update.Message,
		Stage:      update.Stage,
		ETASeconds: update.ETA,
		UpdatedAt:  time.Now().UTC(),
	}

	return s.WriteProgressRecord(ctx, record)
}

// WriteProgressRecord writes a record to the global progress hash
func (s *Service) WriteProgressRecord(ctx context.Context, record *models.ProgressRecord) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	return s.store.HSetField(ctx, models.KeyJobProgress, record.JobID, record.Encode())
}
