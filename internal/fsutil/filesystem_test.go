package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystem_WriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.csv")
	fsys := OSFileSystem{}

	require.NoError(t, fsys.WriteFileAtomic(path, []byte("a,b\n"), 0o644))
	require.NoError(t, fsys.WriteFileAtomic(path, []byte("a,b\n1,2\n"), 0o644))

	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	// No temp files are left behind.
	names, err := fsys.ReadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"results.csv"}, names)
}

func TestOSFileSystem_AppendFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epochs.log")
	fsys := OSFileSystem{}

	require.NoError(t, fsys.AppendFile(path, []byte("one\n"), 0o644))
	require.NoError(t, fsys.AppendFile(path, []byte("two\n"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
	assert.True(t, fsys.Exists(path))
	assert.False(t, fsys.Exists(path+".missing"))
}

func TestOSFileSystem_MkdirAllRemoveAll(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	fsys := OSFileSystem{}

	require.NoError(t, fsys.MkdirAll(nested, 0o755))
	require.NoError(t, fsys.WriteFile(filepath.Join(nested, "x.txt"), []byte("x"), 0o644))
	require.NoError(t, fsys.RemoveAll(filepath.Join(root, "a")))
	assert.False(t, fsys.Exists(nested))
}

func TestMemoryFileSystem(t *testing.T) {
	mfs := NewMemoryFileSystem()

	_, err := mfs.ReadFile("missing.csv")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	require.NoError(t, mfs.MkdirAll("exp/run", 0o755))
	require.NoError(t, mfs.WriteFile("exp/run/a.csv", []byte("1"), 0o644))
	require.NoError(t, mfs.WriteFileAtomic("exp/run/a.csv", []byte("2"), 0o644))
	require.NoError(t, mfs.AppendFile("exp/run/b.log", []byte("x"), 0o644))
	require.NoError(t, mfs.AppendFile("exp/run/b.log", []byte("y"), 0o644))

	data, err := mfs.ReadFile("exp/run/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))
	assert.Equal(t, 2, mfs.Writes["exp/run/a.csv"])

	data, err = mfs.ReadFile("exp/run/b.log")
	require.NoError(t, err)
	assert.Equal(t, "xy", string(data))

	names, err := mfs.ReadDir("exp")
	require.NoError(t, err)
	assert.Equal(t, []string{"run"}, names)

	names, err = mfs.ReadDir("exp/run")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv", "b.log"}, names)

	assert.True(t, mfs.Exists("exp"))
	require.NoError(t, mfs.RemoveAll("exp/run"))
	assert.False(t, mfs.Exists("exp/run/a.csv"))
	assert.False(t, mfs.Exists("exp/run"))
	assert.True(t, mfs.Exists("exp"))
}

func TestMemoryFileSystem_ReturnsCopies(t *testing.T) {
	mfs := NewMemoryFileSystem()
	buf := []byte("abc")
	require.NoError(t, mfs.WriteFile("f", buf, 0o644))
	buf[0] = 'z'

	got, err := mfs.ReadFile("f")
	require.NoError(t, err)
	got[1] = 'z'

	again, err := mfs.ReadFile("f")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}
