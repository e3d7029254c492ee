// -----------------------------------------------------------------------
// Cron maintenance - periodic sweeps that keep the shared state tidy:
// terminal progress records are pruned after a retention window, and the
// active-user set is reconciled against the running set so a transient
// superset converges.
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/common"
	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/models"
)

// Maintenance runs scheduled housekeeping sweeps
type Maintenance struct {
	store     interfaces.StateStore
	config    common.MaintenanceConfig
	logger    arbor.ILogger
	cron      *cron.Cron
	running   bool
}

// NewMaintenance creates the maintenance runner
func NewMaintenance(store interfaces.StateStore, config common.MaintenanceConfig, logger arbor.ILogger) *Maintenance {
	return &Maintenance{
		store:  store,
		config: config,
		logger: logger,
		cron:   cron.New(),
	}
}

// Start schedules the sweeps
func (m *Maintenance) Start() error {
	if m.running {
		return nil
	}

	schedule := m.config.Schedule
	if schedule == "" {
		schedule = "*/1 * * * *"
	}

	if _, err := m.cron.AddFunc(schedule, m.sweep); err != nil {
		return err
	}

	m.cron.Start()
	m.running = true
	m.logger.Info().Str("schedule", schedule).Msg("Maintenance sweeps scheduled")
	return nil
}

// Stop halts the cron scheduler
func (m *Maintenance) Stop() {
	if !m.running {
		return
	}
	m.cron.Stop()
	m.running = false
}

func (m *Maintenance) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m.pruneProgressRecords(ctx)
	m.reconcileActiveUsers(ctx)
}

// pruneProgressRecords drops terminal progress records older than the
// retention window so the dashboard hash does not grow without bound.
func (m *Maintenance) pruneProgressRecords(ctx context.Context) {
	raw, err := m.store.HGetAll(ctx, models.KeyJobProgress)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Progress prune: failed to read progress hash")
		return
	}

	cutoff := time.Now().Add(-m.config.Retention())
	pruned := 0
	for jobID, encoded := range raw {
		record, err := models.DecodeProgressRecord(encoded)
		if err != nil {
			continue
		}
		if !record.Status.IsTerminal() || record.UpdatedAt.After(cutoff) {
			continue
		}
		if err := m.store.HDel(ctx, models.KeyJobProgress, jobID); err != nil {
			m.logger.Warn().Err(err).Str("job_id", jobID).Msg("Progress prune: delete failed")
			continue
		}
		pruned++
	}

	if pruned > 0 {
		m.logger.Debug().Int("pruned", pruned).Msg("Pruned terminal progress records")
	}
}

// reconcileActiveUsers removes users from the active set that own no job
// in the running set. Workers normally do this cleanup themselves; the
// sweep covers worker crashes between finish and cleanup.
func (m *Maintenance) reconcileActiveUsers(ctx context.Context) {
	activeUsers, err := m.store.SMembers(ctx, models.KeyActiveUsers)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Active-user reconcile: failed to read active set")
		return
	}
	if len(activeUsers) == 0 {
		return
	}

	runningJobs, err := m.store.SMembers(ctx, models.KeyRunningJobs)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Active-user reconcile: failed to read running set")
		return
	}

	owners := make(map[string]bool, len(runningJobs))
	for _, jobID := range runningJobs {
		owner, err := m.store.HGet(ctx, models.JobKey(jobID), "user_id")
		if err != nil {
			// Absent metadata means the job cannot pin its user active, but
			// transport errors must not trigger removal.
			if err == interfaces.ErrNil {
				continue
			}
			return
		}
		owners[owner] = true
	}

	for _, userID := range activeUsers {
		if owners[userID] {
			continue
		}
		if err := m.store.SRem(ctx, models.KeyActiveUsers, userID); err != nil {
			m.logger.Warn().Err(err).Str("user_id", userID).Msg("Active-user reconcile: remove failed")
			continue
		}
		m.logger.Debug().Str("user_id", userID).Msg("Removed stale active user")
	}
}
