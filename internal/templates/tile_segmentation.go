package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/models"
	"github.com/bamtlabs/wsiflow/internal/registry"
)

// tileSegmentation runs the segmentation pass over a tile manifest
// produced by wsi_initialize. The tile loop runs in a background
// goroutine; the handler goroutine forwards (current, total) batch
// progress until the loop signals completion.
type tileSegmentation struct {
	workDir string
	logger  arbor.ILogger
}

func newTileSegmentation(workDir string, logger arbor.ILogger) registry.Handler {
	return &tileSegmentation{workDir: workDir, logger: logger}
}

// Run implements registry.Handler
func (h *tileSegmentation) Run(ctx context.Context, jobID string, payload map[string]interface{}, progress registry.ProgressReporter) (map[string]interface{}, error) {
	tilesPath := payloadString(payload, "tiles_path")
	if tilesPath == "" {
		return nil, fmt.Errorf("tile_segmentation requires tiles_path")
	}

	manifest, err := os.ReadFile(tilesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile manifest %s: %w", tilesPath, err)
	}
	var tiles []tile
	if err := json.Unmarshal(manifest, &tiles); err != nil {
		return nil, fmt.Errorf("failed to decode tile manifest %s: %w", tilesPath, err)
	}
	if len(tiles) == 0 {
		return nil, fmt.Errorf("tile manifest %s is empty", tilesPath)
	}

	batchSize := payloadInt(payload, "batch_size", 8)
	if batchSize <= 0 {
		batchSize = 8
	}
	tileMillis := payloadInt(payload, "tile_millis", 20)

	total := len(tiles)
	batches := make(chan int, 1)
	done := make(chan error, 1)

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer close(batches)
		processed := 0
		for processed < total {
			n := batchSize
			if remaining := total - processed; remaining < n {
				n = remaining
			}
			select {
			case <-workCtx.Done():
				done <- workCtx.Err()
				return
			case <-time.After(time.Duration(n*tileMillis) * time.Millisecond):
			}
			processed += n
			batches <- processed
		}
		done <- nil
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case current, ok := <-batches:
			if !ok {
				continue
			}
			update := models.ProgressUpdate{
				Message: fmt.Sprintf("Segmented %d/%d tiles", current, total),
				Stage:   "segmentation",
				Current: current,
				Total:   total,
			}
			if err := progress.Report(ctx, update); err != nil {
				h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Progress report failed")
			}
		case err := <-done:
			if err != nil {
				return nil, err
			}
			return h.finish(ctx, jobID, tilesPath, total, progress)
		}
	}
}

// finish writes the mask placeholder and reports the terminal update
func (h *tileSegmentation) finish(ctx context.Context, jobID, tilesPath string, total int, progress registry.ProgressReporter) (map[string]interface{}, error) {
	if err := os.MkdirAll(h.workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	maskPath := filepath.Join(h.workDir, jobID+"_mask.json")
	mask := map[string]interface{}{
		"job_id":      jobID,
		"tiles_path":  tilesPath,
		"num_tiles":   total,
		"finished_at": time.Now().UTC().Format(time.RFC3339),
	}
	encoded, err := json.Marshal(mask)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mask summary: %w", err)
	}
	if err := os.WriteFile(maskPath, encoded, 0644); err != nil {
		return nil, fmt.Errorf("failed to write mask summary: %w", err)
	}

	if err := progress.Report(ctx, models.ProgressUpdate{
		Message: fmt.Sprintf("Segmentation complete, %d tiles", total),
		Stage:   "segmentation",
		Current: total,
		Total:   total,
	}); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Progress report failed")
	}

	return map[string]interface{}{
		"num_tiles": total,
		"mask_path": maskPath,
	}, nil
}
