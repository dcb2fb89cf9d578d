package logfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *File {
	t.Helper()

	f, err := Open(filepath.Join(t.TempDir(), "data.log"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestOpenCreatesEmptyFile(t *testing.T) {
	f := openTemp(t)

	size, err := f.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestAppendReturnsOffsets(t *testing.T) {
	f := openTemp(t)

	off1, err := f.Append([]byte("hello"))
	require.NoError(t, err)
	off2, err := f.Append([]byte("world"))
	require.NoError(t, err)

	assert.Equal(t, int64(0), off1)
	assert.Equal(t, int64(5), off2)

	size, err := f.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)
}

func TestAppendResumesAtEndOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.log")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0644))

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	off, err := f.Append([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), off)
}

func TestReadAt(t *testing.T) {
	f := openTemp(t)

	_, err := f.Append([]byte("hello world"))
	require.NoError(t, err)

	b, err := f.ReadAt(6, 5)
	require.NoError(t, err)
	assert.Equal(t, "world", string(b))
}

func TestReadAtPastEndFails(t *testing.T) {
	f := openTemp(t)

	_, err := f.Append([]byte("abc"))
	require.NoError(t, err)

	_, err = f.ReadAt(1, 10)
	require.Error(t, err)
}

func TestTruncate(t *testing.T) {
	f := openTemp(t)

	_, err := f.Append([]byte("keepdrop"))
	require.NoError(t, err)
	require.NoError(t, f.Truncate(4))

	size, err := f.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)

	// Appends continue at the truncation point.
	off, err := f.Append([]byte("!"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), off)
}

func TestReader(t *testing.T) {
	f := openTemp(t)

	_, err := f.Append([]byte("abc"))
	require.NoError(t, err)

	r, err := f.Reader()
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf))
}

func TestReplaceSwapsContents(t *testing.T) {
	f := openTemp(t)

	_, err := f.Append([]byte("old old old"))
	require.NoError(t, err)

	tmpPath := f.Path() + ".compact"
	require.NoError(t, os.WriteFile(tmpPath, []byte("new"), 0644))

	require.NoError(t, f.Replace(tmpPath))

	size, err := f.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	b, err := f.ReadAt(0, 3)
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))

	// The temp file is gone and appends land after the new contents.
	_, err = os.Stat(tmpPath)
	assert.True(t, os.IsNotExist(err))

	off, err := f.Append([]byte("!"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), off)
}

func TestCloseIsIdempotent(t *testing.T) {
	f := openTemp(t)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
}
