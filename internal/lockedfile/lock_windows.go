//go:build windows

package lockedfile

import (
	"errors"
	"math"
	"os"

	"golang.org/x/sys/windows"
)

const lockingSupported = true

func tryLock(f *os.File, mode Mode) error {
	var flags uint32 = windows.LOCKFILE_FAIL_IMMEDIATELY
	if mode == Exclusive {
		flags |= windows.LOCKFILE_EXCLUSIVE_LOCK
	}
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, math.MaxUint32, math.MaxUint32, ol)
	if errors.Is(err, windows.ERROR_LOCK_VIOLATION) || errors.Is(err, windows.ERROR_IO_PENDING) {
		return errLocked
	}
	return err
}

func unlock(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, math.MaxUint32, math.MaxUint32, ol)
}

func isLockedOpenError(err error) bool {
	return errors.Is(err, windows.ERROR_SHARING_VIOLATION) || errors.Is(err, windows.ERROR_LOCK_VIOLATION)
}

// replaceFile renames over dst. Windows refuses while another handle has dst
// open, which is reported as errLocked so the caller retries.
func replaceFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err != nil && (isLockedOpenError(err) || errors.Is(err, windows.ERROR_ACCESS_DENIED)) {
		return errLocked
	}
	return err
}
