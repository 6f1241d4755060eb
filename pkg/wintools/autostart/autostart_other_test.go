//go:build !windows

package autostart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_EnableStatusDisable(t *testing.T) {
	dir := t.TempDir()
	m, err := New([]string{"--minimized"}, WithDir(dir), WithExecutable("/opt/win tools/wintools"))
	require.NoError(t, err)

	st, err := m.Status()
	require.NoError(t, err)
	assert.False(t, st.Enabled)
	assert.Equal(t, filepath.Join(dir, "wintools.desktop"), st.Location)

	require.NoError(t, m.Enable())
	st, err = m.Status()
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.Equal(t, `"/opt/win tools/wintools" --minimized`, st.Command)

	data, err := os.ReadFile(st.Location)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Type=Application")

	require.NoError(t, m.Enable(), "enable is idempotent")

	require.NoError(t, m.Disable())
	require.NoError(t, m.Disable(), "disable when absent is a no-op")
	st, err = m.Status()
	require.NoError(t, err)
	assert.False(t, st.Enabled)
}
