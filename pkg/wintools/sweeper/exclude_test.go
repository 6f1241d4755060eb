package sweeper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

func TestCompileExclude(t *testing.T) {
	e, err := CompileExclude()
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.False(t, e.Match("anything"), "nil matches nothing")

	e, err = CompileExclude("*.lock", "~$*")
	require.NoError(t, err)
	assert.True(t, e.Match(filepath.Join("a", "b", "app.LOCK")))
	assert.True(t, e.Match("~$report.docx"))
	assert.False(t, e.Match("lock.txt"))
	assert.Equal(t, []string{"*.lock", "~$*"}, e.Patterns())

	_, err = CompileExclude("[")
	assert.Error(t, err)
}

func TestSweep_ExcludeKeepsMatches(t *testing.T) {
	root := t.TempDir()
	writeAged(t, filepath.Join(root, "old.tmp"), 10, 48*types.Day)
	writeAged(t, filepath.Join(root, "keep.lock"), 10, 48*types.Day)
	writeAged(t, filepath.Join(root, "held", "a.tmp"), 10, 30*types.Day)
	writeAged(t, filepath.Join(root, "held", "b.lock"), 10, 30*types.Day)

	e, err := CompileExclude("*.lock")
	require.NoError(t, err)
	res := newTestSweeper(WithExclude(e)).Sweep(context.Background(), temp(root), DefaultTempAge)

	assert.NoFileExists(t, filepath.Join(root, "old.tmp"))
	assert.FileExists(t, filepath.Join(root, "keep.lock"))
	assert.FileExists(t, filepath.Join(root, "held", "a.tmp"), "subdir with an excluded file is kept whole")
	assert.Equal(t, 1, res.ItemsRemoved)
	assert.Equal(t, 0, res.DirsRemoved)
	assert.Equal(t, 2, res.Excluded)
	assert.Empty(t, res.Skipped)
}

func TestSweep_ExcludeRecursive(t *testing.T) {
	root := t.TempDir()
	writeAged(t, filepath.Join(root, "x", "a.bin"), 10, time.Minute)
	writeAged(t, filepath.Join(root, "x", "y", "pinned.lock"), 10, time.Minute)

	e, err := CompileExclude("*.lock")
	require.NoError(t, err)
	res := newTestSweeper(WithExclude(e)).Sweep(context.Background(),
		[]types.SweepTarget{{Path: root, Recursive: true}}, 0)

	assert.NoFileExists(t, filepath.Join(root, "x", "a.bin"))
	assert.FileExists(t, filepath.Join(root, "x", "y", "pinned.lock"))
	assert.Equal(t, 1, res.ItemsRemoved)
	assert.Equal(t, 1, res.Excluded)
}
