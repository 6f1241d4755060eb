package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nested", FileName))
	assert.Equal(t, Widget{Enabled: false, Left: 0, Top: 0}, s.Load())
}

func TestLoad_CorruptFileGivesDefaults(t *testing.T) {
	tests := map[string]string{
		"truncated":  `{"enabled": tr`,
		"wrong type": `{"enabled": "yes", "left": 10}`,
		"garbage":    "\x00\x01binary",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			assert.Equal(t, Defaults(), NewStore(path).Load())
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", FileName)
	s := NewStore(path)

	want := Widget{Enabled: true, Left: 1630.5, Top: 48}
	require.NoError(t, s.Save(want))
	assert.Equal(t, want, s.Load())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"enabled": true`)
	assert.Contains(t, string(data), `"left": 1630.5`)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestUpdate(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, s.Save(Widget{Left: 10, Top: 20}))

	got, err := s.Update(func(w *Widget) { w.Enabled = true })
	require.NoError(t, err)
	assert.Equal(t, Widget{Enabled: true, Left: 10, Top: 20}, got)
	assert.Equal(t, got, s.Load())
}

func TestWatch_ReportsChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s := NewStore(path)
	require.NoError(t, s.Save(Defaults()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Widget, 4)
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, func(w Widget) { changes <- w }) }()

	want := Widget{Enabled: true, Left: 5, Top: 6}
	// The watcher may not be registered yet; keep writing until it sees one.
	deadline := time.After(3 * time.Second)
	for {
		require.NoError(t, NewStore(path).Save(want))
		select {
		case got := <-changes:
			assert.Equal(t, want, got)
			cancel()
			require.NoError(t, <-done)
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("no change observed")
		}
	}
}
