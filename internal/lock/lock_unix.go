//go:build unix

package lock

import (
	"fmt"
	"os"
	"syscall"
)

// Acquire takes an exclusive, non-blocking advisory lock guarding the
// store at path.
//
// On Unix systems this places flock(2) on a sibling "<path>.lock" file.
// If the lock cannot be acquired, the store is assumed to be open in
// another process.
//
// The returned file handle must remain open for the duration of the
// lock.
func Acquire(path string) (*os.File, error) {
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("unable to open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("store %s already in use by another process", path)
	}

	return f, nil
}

// Release drops a lock acquired via Acquire.
func Release(f *os.File) {
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	f.Close()
}
