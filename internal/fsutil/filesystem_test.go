package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystem(t *testing.T) {
	var fsys FileSystem = OSFileSystem{}
	path := filepath.Join(t.TempDir(), "beacon.txt")

	require.NoError(t, fsys.WriteFile(path, []byte("hello"), 0o600))
	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	w, err := fsys.Create(path)
	require.NoError(t, err)
	_, err = w.Write([]byte("replaced"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	info, err := fsys.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(8), info.Size())

	_, err = fsys.ReadFile(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestMemoryFileSystem_ReadWrite(t *testing.T) {
	m := NewMemoryFileSystem()
	m.AddFile("/proc/uptime", "350735.47 234388.90\n")

	data, err := m.ReadFile("/proc/../proc/uptime")
	require.NoError(t, err)
	assert.Equal(t, "350735.47 234388.90\n", string(data))

	// Returned data is a copy.
	data[0] = 'X'
	again, _ := m.ReadFile("/proc/uptime")
	assert.Equal(t, byte('3'), again[0])

	require.NoError(t, m.WriteFile("/tmp/out", []byte("abc"), 0o600))
	info, err := m.Stat("/tmp/out")
	require.NoError(t, err)
	assert.Equal(t, "out", info.Name())
	assert.Equal(t, int64(3), info.Size())
	assert.Equal(t, fs.FileMode(0o600), info.Mode())
	assert.False(t, info.IsDir())

	assert.Equal(t, []string{"/proc/uptime", "/tmp/out"}, m.Files())
}

func TestMemoryFileSystem_Create(t *testing.T) {
	m := NewMemoryFileSystem()
	w, err := m.Create("/tmp/stdout.log")
	require.NoError(t, err)

	_, err = w.Write([]byte("line 1\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("line 2\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := m.ReadFile("/tmp/stdout.log")
	require.NoError(t, err)
	assert.Equal(t, "line 1\nline 2\n", string(data))
}

func TestMemoryFileSystem_Errors(t *testing.T) {
	m := NewMemoryFileSystem()

	_, err := m.ReadFile("/nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = m.Stat("/nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	m.ReadOnly["/boot/kernel"] = true
	assert.ErrorIs(t, m.WriteFile("/boot/kernel", nil, 0o644), fs.ErrPermission)
	_, err = m.Create("/boot/kernel")
	assert.ErrorIs(t, err, fs.ErrPermission)
}
