// Package logfile owns the file handles of a single append-only log:
// one write handle holding the append position and one independent
// read handle for random access.
package logfile

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// File is an append-only log file. Appends go through the write handle
// at a tracked end-of-file offset; reads go through a separate handle so
// they never disturb the append position.
type File struct {
	path   string
	w      *os.File
	r      *os.File
	offset int64 // next append offset
}

// Open opens (creating if missing) the log file at path.
func Open(path string) (*File, error) {
	f := &File{path: path}
	if err := f.open(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) open() error {
	w, err := os.OpenFile(f.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return errors.Wrap(err, "open log for append")
	}

	end, err := w.Seek(0, io.SeekEnd)
	if err != nil {
		w.Close()
		return errors.Wrap(err, "seek log end")
	}

	r, err := os.OpenFile(f.path, os.O_RDONLY, 0644)
	if err != nil {
		w.Close()
		return errors.Wrap(err, "open log for reads")
	}

	f.w = w
	f.r = r
	f.offset = end
	return nil
}

// Append writes data at the end of the log and returns the offset of its
// first byte.
func (f *File) Append(data []byte) (int64, error) {
	n, err := f.w.WriteAt(data, f.offset)
	if err != nil {
		return 0, errors.Wrap(err, "append to log")
	}

	off := f.offset
	f.offset += int64(n)
	return off, nil
}

// ReadAt reads exactly length bytes starting at off.
func (f *File) ReadAt(off int64, length int) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := f.r.ReadAt(buf, off); err != nil {
		return nil, errors.Wrapf(err, "read %d bytes at offset %d", length, off)
	}
	return buf, nil
}

// Reader rewinds the read handle to the start of the log and returns it
// for a sequential scan. The caller must not interleave ReadAt calls
// with the scan.
func (f *File) Reader() (io.Reader, error) {
	if _, err := f.r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "rewind log")
	}
	return f.r, nil
}

// Sync flushes the write handle to stable storage.
func (f *File) Sync() error {
	return f.w.Sync()
}

// Size returns the current file size in bytes.
func (f *File) Size() (int64, error) {
	info, err := f.w.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat log")
	}
	return info.Size(), nil
}

// Truncate cuts the file at off and syncs, so subsequent appends begin
// there. Used to drop a torn tail found during recovery.
func (f *File) Truncate(off int64) error {
	if err := f.w.Truncate(off); err != nil {
		return errors.Wrapf(err, "truncate log at %d", off)
	}
	if err := f.w.Sync(); err != nil {
		return errors.Wrap(err, "sync truncated log")
	}
	f.offset = off
	return nil
}

// Replace atomically swaps the log's contents with the file at tmpPath
// and reopens both handles against the new file. An interrupted replace
// leaves either the old or the new complete file on disk.
func (f *File) Replace(tmpPath string) error {
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return errors.Wrap(err, "replace log")
	}
	return f.open()
}

// Path returns the log's file path.
func (f *File) Path() string {
	return f.path
}

// Close closes both handles. It is safe to call more than once.
func (f *File) Close() error {
	var firstErr error

	if f.w != nil {
		if err := f.w.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "close append handle")
		}
		f.w = nil
	}
	if f.r != nil {
		if err := f.r.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "close read handle")
		}
		f.r = nil
	}

	return firstErr
}
