//go:build !windows

package instance

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_RecordsOwnerPid(t *testing.T) {
	dir := t.TempDir()
	name := uniqueName()

	g := New(name, WithLockDir(dir))
	_, err := g.Acquire()
	require.NoError(t, err)

	data, err := os.ReadFile(lockPath(name, dir))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	// The owner never reports itself.
	assert.Empty(t, ownerFromLock(name, dir))

	require.NoError(t, os.WriteFile(lockPath(name, dir), []byte("424242\n"), 0o600))
	assert.Equal(t, []int32{424242}, ownerFromLock(name, dir))

	require.NoError(t, g.Release())
	data, err = os.ReadFile(lockPath(name, dir))
	require.NoError(t, err)
	assert.Empty(t, data, "release clears the pid")
}

func TestContend_OwnerFromLockFile(t *testing.T) {
	dir := t.TempDir()
	name := uniqueName()
	require.NoError(t, os.WriteFile(lockPath(name, dir), []byte("4242"), 0o600))

	var asked []int32
	finder := FinderFunc(func(_ context.Context, owners []int32) ([]Process, error) {
		asked = owners
		return nil, nil
	})
	g := New(name, WithLockDir(dir), WithFinder(finder))
	g.Contend(context.Background())

	assert.Equal(t, []int32{4242}, asked)
}

func TestLockPath_SanitisesName(t *testing.T) {
	assert.Equal(t, "/run/wintools/Global_x.lock", lockPath(`Global\x`, "/run/wintools"))
}
