// -----------------------------------------------------------------------
// Global admission scheduler - single loop draining the global pending
// queue. Admits a job onto its user's queue when the distinct-active-user
// cap allows, otherwise defers it to the tail of the pending queue.
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/common"
	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/models"
)

// Scheduler owns the admission loop and the control/status surface
type Scheduler struct {
	store  interfaces.StateStore
	config common.SchedulerConfig
	logger arbor.ILogger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler bound to the store
func New(store interfaces.StateStore, config common.SchedulerConfig, logger arbor.ILogger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:  store,
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Run starts the admission loop in a goroutine
func (s *Scheduler) Run() {
	go s.loop()
}

// Stop cancels the loop and waits for it to exit
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.done
}

func (s *Scheduler) loop() {
	defer close(s.done)

	s.logger.Info().
		Int("max_active_users", s.config.MaxActiveUsers).
		Msg("Scheduler loop started")

	// First boot: control key defaults to paused
	if _, err := s.store.SetNX(s.ctx, models.KeySchedulerState, models.SchedulerPaused); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to initialize scheduler state")
	}

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info().Msg("Scheduler loop stopped")
			return
		default:
		}

		state, err := s.store.Get(s.ctx, models.KeySchedulerState)
		if err != nil && !errors.Is(err, interfaces.ErrNil) {
			s.logger.Warn().Err(err).Msg("Failed to read scheduler state")
			s.sleep(s.config.PausedPause())
			continue
		}
		if state != models.SchedulerRunning {
			s.sleep(s.config.PausedPause())
			continue
		}

		jobID, err := s.store.BLPop(s.ctx, s.config.PopTimeout(), models.KeyPendingJobs)
		if err != nil {
			if errors.Is(err, interfaces.ErrNil) || errors.Is(err, context.Canceled) {
				continue
			}
			s.logger.Warn().Err(err).Msg("Failed to pop pending job")
			s.sleep(s.config.DeferPause())
			continue
		}

		s.dispatch(jobID)
	}
}

// dispatch routes one popped job id: admit onto its user's queue or defer
// it back to the tail of the pending queue.
func (s *Scheduler) dispatch(jobID string) {
	jobData, err := s.store.HGetAll(s.ctx, models.JobKey(jobID))
	if err != nil {
		// Transient store failure: put the job back rather than losing it
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to load job metadata, re-queueing")
		if err := s.store.RPush(s.ctx, models.KeyPendingJobs, jobID); err != nil {
			s.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to re-queue job")
		}
		s.sleep(s.config.DeferPause())
		return
	}
	if len(jobData) == 0 {
		s.logger.Warn().Str("job_id", jobID).Msg("Missing metadata for pending job, dropping")
		return
	}

	userID := jobData["user_id"]
	if userID == "" {
		s.logger.Warn().Str("job_id", jobID).Msg("Missing user_id for pending job, dropping")
		return
	}

	activeUsers, err := s.store.SMembers(s.ctx, models.KeyActiveUsers)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to read active users, deferring")
		if err := s.store.RPush(s.ctx, models.KeyPendingJobs, jobID); err != nil {
			s.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to re-queue job")
		}
		s.sleep(s.config.DeferPause())
		return
	}

	if !contains(activeUsers, userID) && len(activeUsers) >= s.config.MaxActiveUsers {
		// Too many distinct active users: defer to the tail and pause
		// briefly to avoid tight cycling on a full system.
		s.logger.Debug().
			Str("job_id", jobID).
			Str("user_id", userID).
			Int("active_users", len(activeUsers)).
			Msg("Deferring job, active-user cap reached")
		if err := s.store.RPush(s.ctx, models.KeyPendingJobs, jobID); err != nil {
			s.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to defer job")
		}
		s.sleep(s.config.DeferPause())
		return
	}

	// Admission. The worker adds the user to the active set at RUNNING time.
	if err := s.store.RPush(s.ctx, models.UserQueueKey(userID), jobID); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to push job onto user queue")
		if err := s.store.RPush(s.ctx, models.KeyPendingJobs, jobID); err != nil {
			s.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to re-queue job after push failure")
		}
		return
	}

	s.logger.Debug().
		Str("job_id", jobID).
		Str("user_id", userID).
		Msg("Job admitted to user queue")
}

func (s *Scheduler) sleep(d time.Duration) {
	select {
	case <-s.ctx.Done():
	case <-time.After(d):
	}
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
