// -----------------------------------------------------------------------
// Per-user worker - drains the user's admitted queue one job at a time.
// Every picked job reaches a terminal state; handler failures never kill
// the loop.
// -----------------------------------------------------------------------

package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/models"
	"github.com/bamtlabs/wsiflow/internal/registry"
)

// Worker owns one user's queue
type Worker struct {
	userID    string
	store     interfaces.StateStore
	jobs      interfaces.JobService
	registry  *registry.Registry
	idleSleep time.Duration
	logger    arbor.ILogger
}

func newWorker(userID string, store interfaces.StateStore, jobs interfaces.JobService, reg *registry.Registry, idleSleep time.Duration, logger arbor.ILogger) *Worker {
	return &Worker{
		userID:    userID,
		store:     store,
		jobs:      jobs,
		registry:  reg,
		idleSleep: idleSleep,
		logger:    logger,
	}
}

// run is the worker loop. It exits only when ctx is cancelled.
func (w *Worker) run(ctx context.Context) {
	queue := models.UserQueueKey(w.userID)
	w.logger.Debug().Str("user_id", w.userID).Str("queue", queue).Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug().Str("user_id", w.userID).Msg("Worker stopped")
			return
		default:
		}

		jobID, err := w.store.LPop(ctx, queue)
		if err != nil {
			if err != interfaces.ErrNil && ctx.Err() == nil {
				w.logger.Warn().Err(err).Str("user_id", w.userID).Msg("Failed to pop user queue")
			}
			w.sleep(ctx, w.idleSleep)
			continue
		}

		w.process(ctx, jobID)
	}
}

// process executes one job end to end
func (w *Worker) process(ctx context.Context, jobID string) {
	jobLogger := w.logger.WithCorrelationId(jobID)
	jobLogger.Info().Str("user_id", w.userID).Msg("Worker picked job")

	jobData, err := w.store.HGetAll(ctx, models.JobKey(jobID))
	if err != nil {
		// Head re-queue keeps the job ahead of anything admitted after it
		jobLogger.Warn().Err(err).Msg("Failed to load job metadata, re-queueing at head")
		if err := w.store.LPush(ctx, models.UserQueueKey(w.userID), jobID); err != nil {
			jobLogger.Error().Err(err).Msg("Failed to re-queue job")
		}
		w.sleep(ctx, w.idleSleep)
		return
	}
	if len(jobData) == 0 {
		jobLogger.Warn().Msg("Missing job metadata, skipping")
		return
	}

	template := jobData["job_template_id"]
	payload := models.DecodePayload(jobData["input_payload"])

	// Transition to RUNNING and register globally before dispatch
	if err := w.jobs.MarkRunning(ctx, jobID); err != nil {
		jobLogger.Warn().Err(err).Msg("Failed to mark job running")
	}
	if err := w.store.SAdd(ctx, models.KeyRunningJobs, jobID); err != nil {
		jobLogger.Warn().Err(err).Msg("Failed to add job to running set")
	}
	if err := w.store.SAdd(ctx, models.KeyActiveUsers, w.userID); err != nil {
		jobLogger.Warn().Err(err).Msg("Failed to add user to active set")
	}
	if err := w.store.HSetField(ctx, models.UserKey(w.userID), "status", "running"); err != nil {
		jobLogger.Warn().Err(err).Msg("Failed to update user status")
	}
	w.writeLifecycleRecord(ctx, jobID, models.JobStatusRunning, 0.0)

	defer w.cleanup(ctx, jobID, jobLogger)

	handler, ok := w.registry.Resolve(template)
	if !ok {
		msg := fmt.Sprintf("NotRegistered: unknown job template: %s", template)
		jobLogger.Warn().Str("template", template).Msg("Unknown job template")
		w.fail(ctx, jobID, msg, jobLogger)
		return
	}

	reporter := &jobProgressReporter{jobs: w.jobs, jobID: jobID, userID: w.userID}
	output, err := w.invoke(ctx, handler, jobID, payload, reporter)
	if err != nil {
		w.fail(ctx, jobID, fmt.Sprintf("HandlerError: %s", err.Error()), jobLogger)
		return
	}

	if err := w.jobs.MarkSuccess(ctx, jobID, output); err != nil {
		jobLogger.Error().Err(err).Msg("Failed to mark job success")
	}
	w.writeLifecycleRecord(ctx, jobID, models.JobStatusSuccess, 1.0)
	jobLogger.Info().Str("user_id", w.userID).Msg("Job completed")
}

// invoke runs the handler, converting panics into errors so a misbehaving
// handler cannot take the worker down.
func (w *Worker) invoke(ctx context.Context, handler registry.Handler, jobID string, payload map[string]interface{}, reporter registry.ProgressReporter) (output map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Run(ctx, jobID, payload, reporter)
}

func (w *Worker) fail(ctx context.Context, jobID, message string, jobLogger arbor.ILogger) {
	jobLogger.Warn().Str("error", message).Msg("Job failed")
	if err := w.jobs.MarkFailed(ctx, jobID, message); err != nil {
		jobLogger.Error().Err(err).Msg("Failed to mark job failed")
	}
	// The error also lands in the output payload for API consumers
	if err := w.store.HSetField(ctx, models.JobKey(jobID), "output_payload", fmt.Sprintf(`{"error":%q}`, message)); err != nil {
		jobLogger.Warn().Err(err).Msg("Failed to store error output")
	}
	w.writeLifecycleRecord(ctx, jobID, models.JobStatusFailed, 1.0)
}

// cleanup removes the job from the running set and retires the user from
// the active set when no other running job belongs to them.
func (w *Worker) cleanup(ctx context.Context, jobID string, jobLogger arbor.ILogger) {
	if err := w.store.SRem(ctx, models.KeyRunningJobs, jobID); err != nil {
		jobLogger.Warn().Err(err).Msg("Failed to remove job from running set")
	}

	hasOthers, err := w.userHasOtherRunningJobs(ctx, jobID)
	if err != nil {
		// Leave the user active; the maintenance sweep converges it
		jobLogger.Warn().Err(err).Msg("Failed to check running jobs for user")
		return
	}
	if hasOthers {
		return
	}

	if err := w.store.SRem(ctx, models.KeyActiveUsers, w.userID); err != nil {
		jobLogger.Warn().Err(err).Msg("Failed to remove user from active set")
		return
	}
	if err := w.store.HSetField(ctx, models.UserKey(w.userID), "status", "idle"); err != nil {
		jobLogger.Warn().Err(err).Msg("Failed to update user status")
	}
	jobLogger.Debug().Str("user_id", w.userID).Msg("User has no running jobs, removed from active set")
}

func (w *Worker) userHasOtherRunningJobs(ctx context.Context, currentJobID string) (bool, error) {
	runningIDs, err := w.store.SMembers(ctx, models.KeyRunningJobs)
	if err != nil {
		return false, err
	}
	for _, jid := range runningIDs {
		if jid == currentJobID {
			continue
		}
		owner, err := w.store.HGet(ctx, models.JobKey(jid), "user_id")
		if err != nil {
			if err == interfaces.ErrNil {
				continue
			}
			return false, err
		}
		if owner == w.userID {
			return true, nil
		}
	}
	return false, nil
}

func (w *Worker) writeLifecycleRecord(ctx context.Context, jobID string, status models.JobStatus, percent float64) {
	record := &models.ProgressRecord{
		JobID:     jobID,
		UserID:    w.userID,
		Status:    status,
		Percent:   percent,
		UpdatedAt: time.Now().UTC(),
	}
	if err := w.jobs.WriteProgressRecord(ctx, record); err != nil {
		w.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to write progress record")
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// jobProgressReporter binds handler progress calls to one job. It is safe
// to call from handler background goroutines; the store client underneath
// is thread-safe.
type jobProgressReporter struct {
	jobs   interfaces.JobService
	jobID  string
	userID string
}

// Report implements registry.ProgressReporter
func (r *jobProgressReporter) Report(ctx context.Context, update models.ProgressUpdate) error {
	return r.jobs.UpdateProgress(ctx, r.jobID, r.userID, update)
}
