//go:build !windows

package recyclebin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTrash(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := filepath.Join(dir, "files")
	info := filepath.Join(dir, "info")
	require.NoError(t, os.MkdirAll(filepath.Join(files, "folder"), 0o755))
	require.NoError(t, os.MkdirAll(info, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(files, "a.txt"), make([]byte, 100), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(files, "folder", "b.bin"), make([]byte, 250), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(info, "a.txt.trashinfo"), []byte("[Trash Info]\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(info, "folder.trashinfo"), []byte("[Trash Info]\n"), 0o644))
	return dir
}

func TestBin_QueryAndEmpty(t *testing.T) {
	dir := seedTrash(t)
	b := New(WithDir(dir))

	info, err := b.Query(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Info{Items: 2, Size: 350}, info)

	before, err := b.Empty(context.Background())
	require.NoError(t, err)
	assert.Equal(t, info, before)

	for _, sub := range []string{"files", "info"} {
		entries, err := os.ReadDir(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.Empty(t, entries, sub)
	}

	_, err = b.Empty(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyEmpty)
}

func TestBin_MissingTrashIsEmpty(t *testing.T) {
	b := New(WithDir(filepath.Join(t.TempDir(), "never-created")))

	info, err := b.Query(context.Background())
	require.NoError(t, err)
	assert.Zero(t, info)

	_, err = b.Empty(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyEmpty)
}

func TestBin_FlatDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x"), []byte("xyz"), 0o644))

	before, err := New(WithDir(dir)).Empty(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Info{Items: 1, Size: 3}, before)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
