// -----------------------------------------------------------------------
// Built-in job templates. Heavy CV inference lives outside this process;
// these handlers cover the demo template plus the tiling geometry the
// pipeline front-ends consume.
// -----------------------------------------------------------------------

package templates

import (
	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/registry"
)

// Config carries the handler runtime settings
type Config struct {
	WorkDir string // scratch directory for manifests and masks
}

// RegisterBuiltins registers every built-in template. Called once during
// startup, before the registry is frozen.
func RegisterBuiltins(reg *registry.Registry, cfg Config, logger arbor.ILogger) error {
	builtins := map[string]registry.Handler{
		"fake_sleep":        newFakeSleep(logger),
		"init_wsi":          newWSIInitialize(cfg.WorkDir, logger),
		"wsi_initialize":    newWSIInitialize(cfg.WorkDir, logger),
		"tile_segmentation": newTileSegmentation(cfg.WorkDir, logger),
	}

	for name, handler := range builtins {
		if err := reg.Register(name, handler); err != nil {
			return err
		}
		logger.Debug().Str("template", name).Msg("Registered job template")
	}
	return nil
}

// payloadInt reads a numeric payload value, tolerating JSON float typing
func payloadInt(payload map[string]interface{}, key string, fallback int) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func payloadString(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}
