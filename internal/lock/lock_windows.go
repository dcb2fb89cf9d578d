//go:build windows

package lock

import (
	"fmt"
	"os"
)

// Acquire takes an exclusive lock guarding the store at path.
//
// On Windows this is implemented by atomically creating a sibling
// "<path>.lock" file. If the file already exists, the store is assumed
// to be open in another process.
//
// The returned file handle must be kept open for the duration of the
// lock.
func Acquire(path string) (*os.File, error) {
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("store %s already in use by another process", path)
	}

	return f, nil
}

// Release drops a lock acquired via Acquire. It should be called exactly
// once for each successful Acquire.
func Release(f *os.File) {
	name := f.Name()
	f.Close()
	os.Remove(name)
}
