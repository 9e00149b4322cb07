// Package lockedfile reads and writes files that other processes of a
// parallel build may hold locked.
//
// Readers take a shared lock, so any number of them proceed together. When a
// writer holds the file exclusively, Open and ReadFile retry on a fixed
// interval until the lock clears or Options.Timeout elapses, at which point
// they fail with a *LockTimeoutError. WriteFile never locks the target: it
// writes a sibling temp file and renames it into place, so readers holding
// the old file keep a consistent snapshot.
package lockedfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Mode selects the kind of lock taken by Open.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

const (
	DefaultTimeout       = 2500 * time.Millisecond
	DefaultRetryInterval = 500 * time.Millisecond
)

// Options configures lock retries.
type Options struct {
	Timeout       time.Duration // Total time to wait for a contended lock
	RetryInterval time.Duration // Fixed delay between attempts
	Logger        *zap.Logger
}

// DefaultOptions returns the retry budget used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Timeout:       DefaultTimeout,
		RetryInterval: DefaultRetryInterval,
	}
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	return o
}

// ErrBlankPath is returned, before any I/O, for an empty or all-whitespace path.
var ErrBlankPath = errors.New("file path must not be empty or whitespace")

// CheckPath rejects blank paths.
func CheckPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrBlankPath
	}
	return nil
}

// File is an open file holding a lock. Close releases both.
type File struct {
	*os.File
	mode Mode
}

// Mode reports the lock held on f.
func (f *File) Mode() Mode { return f.mode }

// Close unlocks and closes the file.
func (f *File) Close() error {
	unlockErr := unlock(f.File)
	closeErr := f.File.Close()
	if closeErr != nil {
		return closeErr
	}
	return unlockErr
}

// Open opens path and acquires a lock of the given mode, retrying while
// another handle holds a conflicting lock. A missing file is reported
// immediately with an error satisfying errors.Is(err, fs.ErrNotExist).
func Open(ctx context.Context, path string, mode Mode, opts Options) (*File, error) {
	if err := CheckPath(path); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	flag := os.O_RDONLY
	if mode == Exclusive {
		flag = os.O_RDWR
	}

	var locked *File
	err := retryLocked(ctx, path, opts, func() error {
		f, err := os.OpenFile(path, flag, 0)
		if err != nil {
			if isLockedOpenError(err) {
				return errLocked
			}
			return err
		}
		if err := tryLock(f, mode); err != nil {
			f.Close()
			if errors.Is(err, errLocked) {
				return errLocked
			}
			return &os.PathError{Op: "lock", Path: path, Err: err}
		}
		locked = &File{File: f, mode: mode}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return locked, nil
}

// ReadFile reads the whole file under a shared lock.
func ReadFile(ctx context.Context, path string, opts Options) ([]byte, error) {
	f, err := Open(ctx, path, Shared, opts)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadLines reads a UTF-8 text file and returns its non-blank lines in order.
// A leading byte order mark and CRLF line endings are handled.
func ReadLines(ctx context.Context, path string, opts Options) ([]string, error) {
	data, err := ReadFile(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// WriteFile atomically replaces path with data. The new content is written
// to a uniquely named temp file in the same directory, then renamed over
// path. On Windows the rename fails while another handle has path open;
// that is retried like a lock and ends in a *LockTimeoutError.
func WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode, opts Options) (err error) {
	if err := CheckPath(path); err != nil {
		return err
	}
	opts = opts.withDefaults()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if err := writeTemp(tmp, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return retryLocked(ctx, path, opts, func() error {
		return replaceFile(tmpName, path)
	})
}

func writeTemp(tmp *os.File, data []byte, perm os.FileMode) error {
	_, werr := tmp.Write(data)
	if werr == nil {
		werr = tmp.Sync()
	}
	if werr == nil {
		werr = tmp.Chmod(perm)
	}
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	return werr
}
