// Package classifier decides whether a file belongs to test code by matching
// its file name against the pattern configured for the analysis run.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"scanbridge/internal/analysisconfig"
	"scanbridge/internal/config"
	"scanbridge/internal/lockedfile"
	"scanbridge/internal/logging"
)

// TestProjectPatternSettingID is the local setting holding the pattern.
const TestProjectPatternSettingID = "sonar.msbuild.testProjectPattern"

// DefaultTestPattern matches any file name containing "test".
// Matching is always case-insensitive.
const DefaultTestPattern = `[^\\/]*test[^\\/]*$`

var (
	// ErrMalformedPattern is matched by every *PatternError.
	ErrMalformedPattern = errors.New("invalid test file name pattern")

	// ErrMissingConfig means no run configuration exists in the config dir.
	ErrMissingConfig = errors.New("analysis config not found")
)

// PatternError reports a configured pattern that is not a valid regular expression.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("%v %q: %v", ErrMalformedPattern, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() []error { return []error{ErrMalformedPattern, e.Err} }

// Result is the outcome of one classification.
type Result struct {
	IsTest         bool
	FileName       string // Final path segment that was matched
	Pattern        string // Effective pattern
	DefaultPattern bool   // Pattern came from DefaultTestPattern
}

// ResolvePattern returns the configured pattern, or the default when the
// setting is absent or blank.
func ResolvePattern(cfg *analysisconfig.AnalysisConfig) (pattern string, isDefault bool) {
	if cfg != nil {
		if v, ok := cfg.LocalSettings.TryGetValue(TestProjectPatternSettingID); ok && strings.TrimSpace(v) != "" {
			return v, false
		}
	}
	return DefaultTestPattern, true
}

// Compile compiles pattern for unanchored, case-insensitive matching.
func Compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, &PatternError{Pattern: pattern, Err: err}
	}
	return re, nil
}

// FileName returns the final segment of path. Both / and \ separate
// segments, whatever the host OS, because paths come from Windows builds too.
func FileName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Evaluate classifies filePath against cfg without any I/O.
func Evaluate(cfg *analysisconfig.AnalysisConfig, filePath string) (Result, error) {
	pattern, isDefault := ResolvePattern(cfg)
	re, err := Compile(pattern)
	if err != nil {
		return Result{}, err
	}
	name := FileName(filePath)
	return Result{
		IsTest:         re.MatchString(name),
		FileName:       name,
		Pattern:        pattern,
		DefaultPattern: isDefault,
	}, nil
}

// Classifier loads the run configuration for each decision.
type Classifier struct {
	ConfigFileName string
	Lock           lockedfile.Options
	log            *zap.Logger
}

// New builds a Classifier from the tool settings.
func New(cfg *config.Config, log *zap.Logger) *Classifier {
	log = logging.For(log, logging.CategoryClassify)
	lock := cfg.LockOptions()
	lock.Logger = log
	return &Classifier{
		ConfigFileName: cfg.Files.AnalysisConfig,
		Lock:           lock,
		log:            log,
	}
}

// Classify reads the run configuration in configDir and classifies filePath.
// It fails with ErrMissingConfig when the configuration does not exist,
// lockedfile.ErrLockTimeout when it stays locked, and ErrMalformedPattern
// when the configured pattern does not compile.
func (c *Classifier) Classify(ctx context.Context, filePath, configDir string) (Result, error) {
	if err := lockedfile.CheckPath(filePath); err != nil {
		return Result{}, fmt.Errorf("classify: file path: %w", err)
	}
	if err := lockedfile.CheckPath(configDir); err != nil {
		return Result{}, fmt.Errorf("classify: config dir: %w", err)
	}

	cfg, err := analysisconfig.LoadFromDir(ctx, configDir, c.ConfigFileName, c.Lock)
	if errors.Is(err, fs.ErrNotExist) {
		return Result{}, fmt.Errorf("%w in %s", ErrMissingConfig, configDir)
	}
	if err != nil {
		return Result{}, err
	}

	res, err := Evaluate(cfg, filePath)
	if err != nil {
		return Result{}, err
	}

	c.log.Debug("classified file",
		zap.String("path", filePath),
		zap.Bool("isTest", res.IsTest),
		zap.String("pattern", res.Pattern),
		zap.Bool("defaultPattern", res.DefaultPattern))
	return res, nil
}
