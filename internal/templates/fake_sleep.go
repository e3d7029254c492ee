package templates

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/models"
	"github.com/bamtlabs/wsiflow/internal/registry"
)

// fakeSleep is the demo template: it ticks through a fixed number of
// steps, reporting progress each step. Payload may override "steps" and
// "step_millis" so callers can shorten the run.
type fakeSleep struct {
	logger arbor.ILogger
}

func newFakeSleep(logger arbor.ILogger) registry.Handler {
	return &fakeSleep{logger: logger}
}

// Run implements registry.Handler
func (h *fakeSleep) Run(ctx context.Context, jobID string, payload map[string]interface{}, progress registry.ProgressReporter) (map[string]interface{}, error) {
	steps := payloadInt(payload, "steps", 5)
	if steps <= 0 {
		steps = 5
	}
	stepDelay := time.Duration(payloadInt(payload, "step_millis", 1000)) * time.Millisecond

	for step := 0; step < steps; step++ {
		update := models.ProgressUpdate{
			Progress: int(float64(step) / float64(steps) * 100),
			Message:  fmt.Sprintf("Fake job running... (%d/%d)", step+1, steps),
			Stage:    "fake",
		}
		if err := progress.Report(ctx, update); err != nil {
			h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Progress report failed")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(stepDelay):
		}
	}

	if err := progress.Report(ctx, models.ProgressUpdate{
		Progress: 100,
		Message:  "Fake job completed.",
		Stage:    "fake",
	}); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Progress report failed")
	}

	return map[string]interface{}{"result": "fake job success!"}, nil
}
