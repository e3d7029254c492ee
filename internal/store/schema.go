package store

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/models"
)

// InitSchema ensures the base keys exist at startup. The scheduler control
// key is initialized to paused on first boot and never overwritten here.
func InitSchema(ctx context.Context, st interfaces.StateStore, logger arbor.ILogger) error {
	// Touch the base sets so EXISTS-based checks behave on a fresh store
	for _, key := range []string{models.KeyUsers, models.KeyActiveUsersLegacy} {
		exists, err := st.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("schema init failed on %s: %w", key, err)
		}
		if !exists {
			if err := st.SAdd(ctx, key, "__init__"); err != nil {
				return err
			}
			if err := st.SRem(ctx, key, "__init__"); err != nil {
				return err
			}
			logger.Debug().Str("key", key).Msg("Initialized base set")
		}
	}

	created, err := st.SetNX(ctx, models.KeySchedulerState, models.SchedulerPaused)
	if err != nil {
		return fmt.Errorf("schema init failed on %s: %w", models.KeySchedulerState, err)
	}
	if created {
		logger.Info().Msg("Scheduler state initialized to paused")
	}

	logger.Info().Msg("State store schema initialized")
	return nil
}
