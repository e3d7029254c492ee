package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"

	_ "image/jpeg"
	_ "image/png"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/models"
	"github.com/bamtlabs/wsiflow/internal/registry"
)

// tile is one entry of the tiling manifest
type tile struct {
	X    int `json:"x"`
	Y    int `json:"y"`
	Size int `json:"size"`
}

// wsiInitialize computes the tile grid for a slide and writes the tiling
// manifest downstream templates consume. Slide dimensions come from the
// payload when present, otherwise from the image header.
type wsiInitialize struct {
	workDir string
	logger  arbor.ILogger
}

func newWSIInitialize(workDir string, logger arbor.ILogger) registry.Handler {
	return &wsiInitialize{workDir: workDir, logger: logger}
}

// Run implements registry.Handler
func (h *wsiInitialize) Run(ctx context.Context, jobID string, payload map[string]interface{}, progress registry.ProgressReporter) (map[string]interface{}, error) {
	slideID := payloadString(payload, "slide_id")
	slidePath := payloadString(payload, "slide_path")
	if slideID == "" || slidePath == "" {
		return nil, fmt.Errorf("wsi_initialize requires slide_id and slide_path")
	}

	tileSize := payloadInt(payload, "tile_size", 1024)
	overlap := payloadInt(payload, "overlap", 128)
	minTile := payloadInt(payload, "min_tile", 512)
	maxTile := payloadInt(payload, "max_tile", 1536)
	if overlap >= tileSize {
		return nil, fmt.Errorf("overlap %d must be smaller than tile_size %d", overlap, tileSize)
	}

	width, height, err := h.slideDimensions(payload, slidePath)
	if err != nil {
		return nil, err
	}

	if err := progress.Report(ctx, models.ProgressUpdate{
		Progress: 10,
		Message:  fmt.Sprintf("Slide loaded: %dx%d", width, height),
		Stage:    "tiling",
	}); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Progress report failed")
	}

	tiles := generateTileGrid(width, height, tileSize, overlap, minTile, maxTile)

	if err := os.MkdirAll(h.workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	tilesPath := filepath.Join(h.workDir, jobID+"_tiles.json")
	manifest, err := json.Marshal(tiles)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tile manifest: %w", err)
	}
	if err := os.WriteFile(tilesPath, manifest, 0644); err != nil {
		return nil, fmt.Errorf("failed to write tile manifest: %w", err)
	}

	if err := progress.Report(ctx, models.ProgressUpdate{
		Progress: 100,
		Message:  fmt.Sprintf("Generated %d tiles", len(tiles)),
		Stage:    "tiling",
	}); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Progress report failed")
	}

	return map[string]interface{}{
		"slide_id":   slideID,
		"width":      width,
		"height":     height,
		"num_tiles":  len(tiles),
		"tiles_path": tilesPath,
	}, nil
}

// slideDimensions resolves the slide's level-0 dimensions. Payload values
// win; otherwise the image header is decoded (PNG/JPEG pyramids exported
// by the ingest step carry the full-resolution size).
func (h *wsiInitialize) slideDimensions(payload map[string]interface{}, slidePath string) (int, int, error) {
	width := payloadInt(payload, "width", 0)
	height := payloadInt(payload, "height", 0)
	if width > 0 && height > 0 {
		return width, height, nil
	}

	f, err := os.Open(slidePath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open slide %s: %w", slidePath, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read slide dimensions from %s: %w", slidePath, err)
	}
	return cfg.Width, cfg.Height, nil
}

// generateTileGrid steps a fixed stride across the level-0 plane. Edge
// tiles shrink to the remaining extent, clamped to [minTile, maxTile].
func generateTileGrid(width, height, tileSize, overlap, minTile, maxTile int) []tile {
	stride := tileSize - overlap
	tiles := []tile{}

	for y := 0; y < height; y += stride {
		for x := 0; x < width; x += stride {
			size := tileSize
			if remaining := min(width-x, height-y); remaining < size {
				size = remaining
			}
			if size < minTile {
				// Too small to be worth processing on its own; the previous
				// overlapping tile already covers this strip.
				if x > 0 || y > 0 {
					continue
				}
				size = minTile
			}
			if size > maxTile {
				size = maxTile
			}
			tiles = append(tiles, tile{X: x, Y: y, Size: size})
		}
	}
	return tiles
}
