package config

import "scanbridge/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level,omitempty"` // debug, info, warn, error
	JSON  bool   `yaml:"json" json:"json,omitempty"`   // JSON lines instead of console output
}

// Options converts the config to logger construction options.
func (c LoggingConfig) Options(verbose bool) logging.Options {
	return logging.Options{
		Level:   c.Level,
		JSON:    c.JSON,
		Verbose: verbose,
	}
}
