package lockedfile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"scanbridge/internal/logging"
)

// ErrLockTimeout indicates a file stayed locked for the whole retry budget.
var ErrLockTimeout = errors.New("timed out waiting for file lock")

// errLocked is returned by a single attempt when a conflicting lock is held.
var errLocked = errors.New("file is locked")

// LockTimeoutError reports which file stayed locked and for how long.
type LockTimeoutError struct {
	Path     string
	Waited   time.Duration
	Attempts int
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("%v: %s (waited %v over %d attempts)", ErrLockTimeout, e.Path, e.Waited.Round(time.Millisecond), e.Attempts)
}

func (e *LockTimeoutError) Unwrap() error { return ErrLockTimeout }

// retryLocked runs fn until it stops reporting errLocked or the budget in
// opts runs out. Any other error from fn is returned as is.
func retryLocked(ctx context.Context, path string, opts Options, fn func() error) error {
	log := logging.For(opts.Logger, logging.CategoryLock)
	start := time.Now()
	deadline := start.Add(opts.Timeout)

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Debug("lock acquired after retry",
					zap.String("path", path),
					zap.Int("attempt", attempt),
					zap.Duration("waited", time.Since(start)))
			}
			return nil
		}
		if !errors.Is(err, errLocked) {
			return err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			log.Warn("gave up waiting for file lock",
				zap.String("path", path),
				zap.Int("attempts", attempt),
				zap.Duration("timeout", opts.Timeout))
			return &LockTimeoutError{Path: path, Waited: time.Since(start), Attempts: attempt}
		}

		wait := opts.RetryInterval
		if wait > remaining {
			wait = remaining
		}
		log.Debug("file is locked, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
