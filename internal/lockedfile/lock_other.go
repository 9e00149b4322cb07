//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd || windows)

package lockedfile

import "os"

// No advisory locking on this platform; reads and writes never contend.
const lockingSupported = false

func tryLock(*os.File, Mode) error { return nil }

func unlock(*os.File) error { return nil }

func isLockedOpenError(error) bool { return false }

func replaceFile(src, dst string) error {
	return os.Rename(src, dst)
}
