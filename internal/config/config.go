package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"scanbridge/internal/lockedfile"
)

// Config holds all scanbridge settings.
type Config struct {
	// Well-known file names inside the config and dump directories
	Files FilesConfig `yaml:"files"`

	// Locked file retry budget
	Lock LockConfig `yaml:"lock"`

	// Dump directory aggregation
	Aggregate AggregateConfig `yaml:"aggregate"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// FilesConfig names the documents exchanged with the build step.
type FilesConfig struct {
	AnalysisConfig string `yaml:"analysis_config"` // Run configuration inside the config dir
	ProjectInfo    string `yaml:"project_info"`    // Descriptor inside each project folder
}

// LockConfig configures retries against locked files.
type LockConfig struct {
	Timeout       string `yaml:"timeout"`
	RetryInterval string `yaml:"retry_interval"`
}

// AggregateConfig configures the directory aggregator.
type AggregateConfig struct {
	Workers  int    `yaml:"workers"`  // Project folders loaded in parallel
	Debounce string `yaml:"debounce"` // Quiet period before a watched dump dir is re-aggregated
}

const (
	DefaultAnalysisConfigFile = "SonarQubeAnalysisConfig.xml"
	DefaultProjectInfoFile    = "ProjectInfo.xml"
)

// DefaultConfig returns the settings used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Files: FilesConfig{
			AnalysisConfig: DefaultAnalysisConfigFile,
			ProjectInfo:    DefaultProjectInfoFile,
		},
		Lock: LockConfig{
			Timeout:       lockedfile.DefaultTimeout.String(),
			RetryInterval: lockedfile.DefaultRetryInterval.String(),
		},
		Aggregate: AggregateConfig{
			Workers:  4,
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the yaml file at path over the defaults and applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const fileHeader = "# scanbridge tool settings. Durations use Go syntax (500ms, 2s).\n"

// Save validates the settings and writes them to path as yaml, creating
// parent directories. The file is replaced atomically.
func (c *Config) Save(ctx context.Context, path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append([]byte(fileHeader), data...)

	if err := lockedfile.WriteFile(ctx, path, data, 0644, c.LockOptions()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SCANBRIDGE_LOCK_TIMEOUT"); v != "" {
		c.Lock.Timeout = v
	}
	if v := os.Getenv("SCANBRIDGE_LOCK_RETRY_INTERVAL"); v != "" {
		c.Lock.RetryInterval = v
	}
	if v := os.Getenv("SCANBRIDGE_AGGREGATE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Aggregate.Workers = n
		}
	}
	if v := os.Getenv("SCANBRIDGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	if c.Files.AnalysisConfig == "" {
		return fmt.Errorf("files.analysis_config must not be empty")
	}
	if c.Files.ProjectInfo == "" {
		return fmt.Errorf("files.project_info must not be empty")
	}
	if filepath.Base(c.Files.ProjectInfo) != c.Files.ProjectInfo {
		return fmt.Errorf("files.project_info must be a bare file name, got %q", c.Files.ProjectInfo)
	}
	if c.Aggregate.Workers < 1 {
		return fmt.Errorf("aggregate.workers must be at least 1, got %d", c.Aggregate.Workers)
	}
	return nil
}

// GetLockTimeout returns the lock timeout as a duration.
func (c *Config) GetLockTimeout() time.Duration {
	d, err := time.ParseDuration(c.Lock.Timeout)
	if err != nil || d <= 0 {
		return lockedfile.DefaultTimeout
	}
	return d
}

// GetLockRetryInterval returns the delay between lock attempts.
func (c *Config) GetLockRetryInterval() time.Duration {
	d, err := time.ParseDuration(c.Lock.RetryInterval)
	if err != nil || d <= 0 {
		return lockedfile.DefaultRetryInterval
	}
	return d
}

// GetDebounce returns the watcher quiet period.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Aggregate.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// LockOptions builds the retry options handed to the stores.
func (c *Config) LockOptions() lockedfile.Options {
	return lockedfile.Options{
		Timeout:       c.GetLockTimeout(),
		RetryInterval: c.GetLockRetryInterval(),
	}
}
