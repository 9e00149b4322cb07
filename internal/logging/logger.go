// Package logging builds the zap loggers used across scanbridge.
// Every subsystem logs through a child logger tagged with its Category so
// output from a parallel build can be filtered per concern.
package logging

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryConfig     Category = "config"     // Run configuration load/save
	CategoryDescriptor Category = "descriptor" // Project descriptor load/save
	CategoryLock       Category = "lock"       // Locked file retries
	CategoryClassify   Category = "classify"   // Test file classification
	CategoryAggregate  Category = "aggregate"  // Dump directory aggregation
	CategoryWatch      Category = "watch"      // Dump directory watcher
)

// Options mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type Options struct {
	Level   string // debug, info, warn, error
	JSON    bool
	Verbose bool // forces debug level
}

// New builds a production zap logger from opts.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if !opts.JSON {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// ParseLevel maps a config level name to a zap level. Empty means info.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// For returns a child of log tagged with category.
// A nil log yields a no-op logger so library callers never need nil checks.
func For(log *zap.Logger, category Category) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log.With(zap.String("category", string(category)))
}

// Timer helps measure operation duration
type Timer struct {
	log   *zap.Logger
	op    string
	start time.Time
}

// StartTimer begins timing an operation
func StartTimer(log *zap.Logger, operation string) *Timer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Timer{
		log:   log,
		op:    operation,
		start: time.Now(),
	}
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		t.log.Warn(t.op+" was slow",
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", threshold))
	} else {
		t.log.Debug(t.op+" completed", zap.Duration("elapsed", elapsed))
	}
	return elapsed
}
