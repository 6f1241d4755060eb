package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, types.DefaultThresholds(), cfg.Thresholds())
	assert.Equal(t, types.Day, cfg.TempMinAge())
	assert.Equal(t, 7*types.Day, cfg.DirRetention())
	assert.Equal(t, time.Second, cfg.DashboardInterval())
	assert.Equal(t, 2*time.Second, cfg.WidgetInterval())
	assert.Equal(t, 3*time.Second, cfg.CloseTimeout())
	assert.Equal(t, 30*types.Day, cfg.HistoryRetention())
	assert.Equal(t, DefaultGuardName, cfg.Guard.Name)
	assert.True(t, cfg.Memory.Settle)
	assert.True(t, cfg.History.Enabled)
	assert.Nil(t, cfg.TempExclude())
	assert.False(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.Schedule)

	require.Len(t, cfg.UpdateCacheTargets(), 1)
	assert.True(t, cfg.UpdateCacheTargets()[0].Recursive)
	assert.Equal(t, DefaultUpdateCacheDir, cfg.UpdateCacheTargets()[0].Path)

	targets := cfg.TempTargets()
	require.NotEmpty(t, targets)
	for _, tt := range targets {
		assert.False(t, tt.Recursive)
	}

	lc := cfg.LoggingConfig()
	assert.Equal(t, int64(10*types.MiB), lc.Rotation.MaxSize)
	assert.Equal(t, "info", lc.Level)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
memory:
  significant: 100MiB
  moderate: 20MiB
  settle: false
temp:
  dirs:
    - ` + dir + `/a
    - ` + dir + `/b
    - ` + dir + `/a
  min_age: 12h
  dir_retention: 3d
  exclude: ["*.lock"]
update_cache:
  dir: ""
monitor:
  dashboard_interval: 500ms
schedule:
  - kind: temp
    spec: "@daily"
  - kind: ram
    spec: "0 */4 * * *"
metrics:
  enabled: true
  addr: 127.0.0.1:9999
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, types.Thresholds{Significant: 100 * types.MiB, Moderate: 20 * types.MiB}, cfg.Thresholds())
	assert.False(t, cfg.Memory.Settle)
	assert.Equal(t, 12*time.Hour, cfg.TempMinAge())
	assert.Equal(t, 3*types.Day, cfg.DirRetention())
	require.NotNil(t, cfg.TempExclude())
	assert.True(t, cfg.TempExclude().Match("app.lock"))
	assert.Equal(t, 500*time.Millisecond, cfg.DashboardInterval())
	assert.Equal(t, []types.SweepTarget{{Path: dir + "/a"}, {Path: dir + "/b"}}, cfg.TempTargets(), "duplicates dropped")
	assert.Empty(t, cfg.UpdateCacheTargets())
	require.Len(t, cfg.Schedule, 2)
	assert.Equal(t, "ram", cfg.Schedule[1].Kind)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9999", cfg.Metrics.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WINTOOLS_TEMP_MIN_AGE", "2d")
	t.Setenv("WINTOOLS_GUARD_TITLE", "Custom")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2*types.Day, cfg.TempMinAge())
	assert.Equal(t, "Custom", cfg.Guard.Title)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad size":       "memory:\n  significant: lots\n",
		"inverted":       "memory:\n  significant: 1MiB\n  moderate: 2MiB\n",
		"bad duration":   "temp:\n  min_age: yesterday\n",
		"zero interval":  "monitor:\n  widget_interval: 0s\n",
		"bad level":      "logging:\n  level: chatty\n",
		"bad kind":       "schedule:\n  - kind: defrag\n    spec: '@daily'\n",
		"bad cron":       "schedule:\n  - kind: temp\n    spec: 'every tuesday'\n",
		"bad exclude":    "temp:\n  exclude: ['[']\n",
		"malformed yaml": "memory: [\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_InvalidWrapsSentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("temp:\n  dir_retention: nope\n"), 0o644))
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestWriteDefault_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wintools", "config.yaml")

	created, err := WriteDefault(path)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = WriteDefault(path)
	require.NoError(t, err)
	assert.False(t, created, "existing file is left alone")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Thresholds(), cfg.Thresholds())
	assert.Equal(t, Default().TempMinAge(), cfg.TempMinAge())
	assert.NotEmpty(t, cfg.TempTargets(), "empty dirs list falls back to the defaults")
}

func TestMarshal(t *testing.T) {
	data, err := Marshal(Default())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, yaml.Unmarshal(data, &m))
	assert.Contains(t, m, "update_cache")
	assert.Contains(t, m, "memory")
	assert.NotContains(t, m, "thresholds", "parsed fields are not rendered")
}

func TestExpandPath(t *testing.T) {
	t.Setenv("WINTOOLS_TEST_DIR", "/opt/x")

	assert.Equal(t, "/opt/x/cache", ExpandPath("%WINTOOLS_TEST_DIR%/cache"))
	assert.Equal(t, "/opt/x/cache", ExpandPath("$WINTOOLS_TEST_DIR/cache"))
	assert.Equal(t, "%NOT_SET_ANYWHERE%/x", ExpandPath("%NOT_SET_ANYWHERE%/x"))
	assert.Equal(t, "100%", ExpandPath("100%"))
	assert.NotContains(t, ExpandPath("~/foo"), "~")
}

func TestDefaultTempDirs(t *testing.T) {
	t.Setenv("TEMP", "")
	assert.Len(t, DefaultTempDirs(), 1)

	other := t.TempDir()
	t.Setenv("TEMP", other)
	dirs := DefaultTempDirs()
	if samePath(os.TempDir(), other) {
		assert.Len(t, dirs, 1)
	} else {
		assert.Equal(t, other, dirs[len(dirs)-1])
	}
}
