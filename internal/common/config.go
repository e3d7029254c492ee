package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Redis       RedisConfig       `toml:"redis"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
	Workers     WorkersConfig     `toml:"workers"`
	Workflows   WorkflowsConfig   `toml:"workflows"`
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
	WebSocket   WebSocketConfig   `toml:"websocket"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// RedisConfig describes the shared state store connection
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PoolSize int    `toml:"pool_size"` // prevents connection explosion under high QPS
}

// SchedulerConfig controls the global admission loop
type SchedulerConfig struct {
	MaxActiveUsers    int    `toml:"max_active_users"`    // distinct users allowed to run concurrently
	PendingPopTimeout string `toml:"pending_pop_timeout"` // e.g. "1s" - blocking pop timeout on the global pending queue
	DeferSleep        string `toml:"defer_sleep"`         // e.g. "200ms" - pause after deferring a job back to the tail
	PausedSleep       string `toml:"paused_sleep"`        // e.g. "500ms" - poll interval while paused
}

// WorkersConfig controls per-user worker loops
type WorkersConfig struct {
	IdleSleep string `toml:"idle_sleep"` // e.g. "500ms" - sleep when the user queue is empty
}

// WorkflowsConfig contains configuration for workflow definition files
type WorkflowsConfig struct {
	DefinitionsDir string `toml:"definitions_dir"` // Directory containing workflow definition files (TOML/YAML)
}

type StorageConfig struct {
	UploadsDir string `toml:"uploads_dir"` // Slide blob uploads
	WorkDir    string `toml:"work_dir"`    // Handler scratch output (tile manifests, masks)
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// WebSocketConfig controls the live status stream
type WebSocketConfig struct {
	PushInterval  string  `toml:"push_interval"`   // e.g. "1s" - status snapshot cadence
	MaxPushPerSec float64 `toml:"max_push_per_sec"` // rate cap on outbound frames
}

// MaintenanceConfig controls cron sweeps
type MaintenanceConfig struct {
	Schedule          string `toml:"schedule"`           // Cron schedule for sweeps
	ProgressRetention string `toml:"progress_retention"` // e.g. "1h" - keep terminal progress records this long
}

// NewDefaultConfig returns configuration defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 50,
		},
		Scheduler: SchedulerConfig{
			MaxActiveUsers:    3,
			PendingPopTimeout: "1s",
			DeferSleep:        "200ms",
			PausedSleep:       "500ms",
		},
		Workers: WorkersConfig{
			IdleSleep: "500ms",
		},
		Workflows: WorkflowsConfig{
			DefinitionsDir: "", // empty = no definition files loaded
		},
		Storage: StorageConfig{
			UploadsDir: "./uploads",
			WorkDir:    "./tmp",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		WebSocket: WebSocketConfig{
			PushInterval:  "1s",
			MaxPushPerSec: 4,
		},
		Maintenance: MaintenanceConfig{
			Schedule:          "*/1 * * * *",
			ProgressRetention: "1h",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files. Later files override
// earlier ones; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("WSIFLOW_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("WSIFLOW_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("WSIFLOW_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// REDIS_ADDR / REDIS_URL kept for compatibility with the legacy deployment
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	} else if url := os.Getenv("REDIS_URL"); url != "" {
		config.Redis.Addr = strings.TrimPrefix(url, "redis://")
	}
	if password := os.Getenv("WSIFLOW_REDIS_PASSWORD"); password != "" {
		config.Redis.Password = password
	}
	if db := os.Getenv("WSIFLOW_REDIS_DB"); db != "" {
		if d, err := strconv.Atoi(db); err == nil {
			config.Redis.DB = d
		}
	}

	if maxUsers := os.Getenv("MAX_ACTIVE_USERS"); maxUsers != "" {
		if m, err := strconv.Atoi(maxUsers); err == nil && m > 0 {
			config.Scheduler.MaxActiveUsers = m
		}
	}
	if timeout := os.Getenv("WSIFLOW_SCHEDULER_POP_TIMEOUT"); timeout != "" {
		config.Scheduler.PendingPopTimeout = timeout
	}
	if sleep := os.Getenv("WSIFLOW_SCHEDULER_DEFER_SLEEP"); sleep != "" {
		config.Scheduler.DeferSleep = sleep
	}
	if sleep := os.Getenv("WSIFLOW_WORKER_IDLE_SLEEP"); sleep != "" {
		config.Workers.IdleSleep = sleep
	}

	if dir := os.Getenv("WSIFLOW_WORKFLOW_DEFINITIONS_DIR"); dir != "" {
		config.Workflows.DefinitionsDir = dir
	}
	if dir := os.Getenv("WSIFLOW_UPLOADS_DIR"); dir != "" {
		config.Storage.UploadsDir = dir
	}
	if dir := os.Getenv("WSIFLOW_WORK_DIR"); dir != "" {
		config.Storage.WorkDir = dir
	}

	if level := os.Getenv("WSIFLOW_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("WSIFLOW_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// parseDurationOr parses a duration string, falling back to a default
func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// PendingPopTimeout returns the blocking-pop timeout as a duration
func (c *SchedulerConfig) PopTimeout() time.Duration {
	return parseDurationOr(c.PendingPopTimeout, 1*time.Second)
}

// DeferPause returns the post-deferral sleep as a duration
func (c *SchedulerConfig) DeferPause() time.Duration {
	return parseDurationOr(c.DeferSleep, 200*time.Millisecond)
}

// PausedPause returns the paused-state poll interval as a duration
func (c *SchedulerConfig) PausedPause() time.Duration {
	return parseDurationOr(c.PausedSleep, 500*time.Millisecond)
}

// IdlePause returns the worker idle sleep as a duration
func (c *WorkersConfig) IdlePause() time.Duration {
	return parseDurationOr(c.IdleSleep, 500*time.Millisecond)
}

// PushPause returns the websocket push interval as a duration
func (c *WebSocketConfig) PushPause() time.Duration {
	return parseDurationOr(c.PushInterval, 1*time.Second)
}

// Retention returns the progress record retention window as a duration
func (c *MaintenanceConfig) Retention() time.Duration {
	return parseDurationOr(c.ProgressRetention, time.Hour)
}
