package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/wintools/pkg/wintools/logging"
)

// These tests share the package-level registry and must not run in parallel.

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logging.Level
		wantErr bool
	}{
		{"debug", logging.LevelDebug, false},
		{"INFO", logging.LevelInfo, false},
		{"warning", logging.LevelWarn, false},
		{" error ", logging.LevelError, false},
		{"verbose", logging.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := logging.ParseLevel(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, logging.ErrInvalidLevel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInit_WritesComponentPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wintools.log")
	require.NoError(t, logging.Init(logging.Config{Level: "debug", Path: path}))
	t.Cleanup(func() { _ = logging.Close() })

	logging.Get(logging.ComponentSweeper).Info("sweep finished", "removed", 3)
	require.NoError(t, logging.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sweeper")
	assert.Contains(t, string(data), "sweep finished")
	assert.Contains(t, string(data), "removed=3")
}

func TestInit_ComponentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wintools.log")
	require.NoError(t, logging.Init(logging.Config{
		Level:      "info",
		Path:       path,
		Components: map[string]string{logging.ComponentGuard: "error"},
	}))

	logging.Get(logging.ComponentGuard).Warn("suppressed")
	logging.Get(logging.ComponentSampler).Info("kept")
	require.NoError(t, logging.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "suppressed")
	assert.Contains(t, string(data), "kept")
}

func TestInit_InvalidLevel(t *testing.T) {
	err := logging.Init(logging.Config{Level: "loud", Path: filepath.Join(t.TempDir(), "x.log")})
	assert.ErrorIs(t, err, logging.ErrInvalidLevel)
}

func TestSubscribe(t *testing.T) {
	require.NoError(t, logging.Init(logging.Config{Level: "info", Path: filepath.Join(t.TempDir(), "w.log")}))
	t.Cleanup(func() { _ = logging.Close() })

	ch := logging.Subscribe()
	logging.Get(logging.ComponentSession).Info("memory session completed")

	select {
	case e := <-ch:
		assert.Equal(t, logging.ComponentSession, e.Component)
		assert.Equal(t, logging.LevelInfo, e.Level)
		assert.Equal(t, "memory session completed", e.Message)
	case <-time.After(time.Second):
		t.Fatal("no entry delivered")
	}

	logging.Unsubscribe(ch)
	logging.Get(logging.ComponentSession).Info("after unsubscribe")
	select {
	case e := <-ch:
		t.Fatalf("unexpected entry after unsubscribe: %+v", e)
	default:
	}
}

func TestDashboardModeKeepsRecent(t *testing.T) {
	require.NoError(t, logging.Init(logging.Config{
		Level:     "info",
		Path:      filepath.Join(t.TempDir(), "w.log"),
		Console:   "info",
		Dashboard: true,
	}))
	t.Cleanup(func() { _ = logging.Close() })

	logging.Get(logging.ComponentReclaimer).Info("stage done")

	ring := logging.Recent()
	require.NotNil(t, ring)
	last := ring.Last(1)
	require.Len(t, last, 1)
	assert.Equal(t, "stage done", last[0].Message)
}

func TestRotatingWriter_RollsAndPrunes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wintools.log")
	w, err := logging.NewRotatingWriter(path, logging.RotationConfig{MaxSize: 64, MaxBackups: 2})
	require.NoError(t, err)

	line := []byte(strings.Repeat("x", 40) + "\n")
	for range 6 {
		_, err := w.Write(line)
		require.NoError(t, err)
		// Rolled names carry millisecond timestamps.
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	rolled := 0
	for _, e := range entries {
		if e.Name() != "wintools.log" {
			rolled++
		}
	}
	assert.Equal(t, 2, rolled)
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := logging.NewRotatingWriter(filepath.Join(t.TempDir(), "a.log"), logging.RotationConfig{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestRing(t *testing.T) {
	r := logging.NewRing(3)
	for _, m := range []string{"a", "b", "c", "d"} {
		r.Add(logging.Entry{Message: m})
	}
	assert.Equal(t, 3, r.Len())

	msgs := func(es []logging.Entry) []string {
		out := make([]string, len(es))
		for i, e := range es {
			out[i] = e.Message
		}
		return out
	}
	assert.Equal(t, []string{"b", "c", "d"}, msgs(r.All()))
	assert.Equal(t, []string{"c", "d"}, msgs(r.Last(2)))
	assert.Equal(t, []string{"b", "c", "d"}, msgs(r.Last(10)))
}
