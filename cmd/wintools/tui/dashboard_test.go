package tui

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/wintools/pkg/wintools/metrics"
	"github.com/jamesainslie/wintools/pkg/wintools/session"
	"github.com/jamesainslie/wintools/pkg/wintools/settings"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

func newTestRegistry(t *testing.T, runners map[types.Kind]session.Runner) *session.Registry {
	t.Helper()
	reg := session.NewRegistry(session.NewDispatcher())
	for kind, r := range runners {
		reg.Register(kind, r)
	}
	t.Cleanup(reg.Wait)
	return reg
}

func newTestModel(t *testing.T, opts Options) Model {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m := NewModel(ctx, opts)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func press(m Model, key string) Model {
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next.(Model)
}

func drain(m Model) Model {
	next, _ := m.Update(dispatchMsg{})
	return next.(Model)
}

func TestDashboard_StartSessionUpdatesBoard(t *testing.T) {
	reg := newTestRegistry(t, map[types.Kind]session.Runner{
		types.KindMemory: session.RunnerFunc(func(_ context.Context, report session.Reporter) (session.Outcome, error) {
			report(types.Progress{Message: "trimming", Done: 1, Total: 3})
			return session.Outcome{Summary: "Memory cleanup: 100 B freed", BytesFreed: 100}, nil
		}),
	})
	m := newTestModel(t, Options{Registry: reg})

	m = press(m, "m")
	reg.Wait()
	m = drain(m)

	assert.Equal(t, int64(100), m.board.freed)
	assert.Equal(t, "Memory cleanup: 100 B freed", m.board.notice)
	assert.False(t, m.board.noticeErr)
	assert.Empty(t, m.board.progress, "progress cleared on completion")

	rec, ok := reg.Last(types.KindMemory)
	require.True(t, ok)
	assert.Equal(t, Trigger, rec.Trigger)
	assert.Contains(t, m.View(), "Memory cleanup")
}

func TestDashboard_FailedSessionIsAnError(t *testing.T) {
	reg := newTestRegistry(t, map[types.Kind]session.Runner{
		types.KindDNS: session.RunnerFunc(func(context.Context, session.Reporter) (session.Outcome, error) {
			return session.Outcome{}, assert.AnError
		}),
	})
	m := newTestModel(t, Options{Registry: reg})

	m = press(m, "d")
	reg.Wait()
	m = drain(m)

	assert.True(t, m.board.noticeErr)
	assert.Zero(t, m.board.freed)
}

func TestDashboard_BusyIsReported(t *testing.T) {
	release := make(chan struct{})
	reg := newTestRegistry(t, map[types.Kind]session.Runner{
		types.KindTemp: session.RunnerFunc(func(ctx context.Context, _ session.Reporter) (session.Outcome, error) {
			<-release
			return session.Outcome{Summary: "done"}, nil
		}),
	})
	m := newTestModel(t, Options{Registry: reg})

	m = press(m, "t")
	assert.Equal(t, types.StateRunning, reg.State(types.KindTemp))
	assert.Equal(t, "starting", m.board.progress[types.KindTemp])

	m = press(m, "t")
	assert.True(t, m.board.noticeErr)
	assert.Contains(t, m.board.notice, "already running")

	close(release)
	reg.Wait()
	m = drain(m)
	assert.Equal(t, "done", m.board.notice)
}

func TestDashboard_RecycleBinNeedsConfirmation(t *testing.T) {
	var emptied atomic.Int32
	reg := newTestRegistry(t, map[types.Kind]session.Runner{
		types.KindRecycleBin: session.RunnerFunc(func(context.Context, session.Reporter) (session.Outcome, error) {
			emptied.Add(1)
			return session.Outcome{Summary: "Recycle bin emptied"}, nil
		}),
	})
	m := newTestModel(t, Options{Registry: reg})

	m = press(m, "r")
	require.True(t, m.confirm)
	assert.Contains(t, m.View(), "Empty Recycle Bin")

	m = press(m, "n")
	assert.False(t, m.confirm)
	assert.NotContains(t, m.View(), "Empty Recycle Bin")

	// Enter on the default button cancels.
	m = press(m, "r")
	m = press(m, "enter")
	assert.False(t, m.confirm)
	reg.Wait()
	assert.Zero(t, emptied.Load())

	m = press(m, "r")
	m = press(m, "tab")
	m = press(m, "enter")
	reg.Wait()
	_ = drain(m)
	assert.Equal(t, int32(1), emptied.Load())
}

func TestDashboard_WidgetToggle(t *testing.T) {
	store := settings.NewStore(filepath.Join(t.TempDir(), settings.FileName))
	reg := newTestRegistry(t, nil)
	m := newTestModel(t, Options{Registry: reg, Settings: store})

	m = press(m, "w")
	assert.True(t, m.board.widget.Enabled)
	assert.True(t, store.Load().Enabled, "toggle is persisted")
	assert.Contains(t, m.View(), "full")
	assert.NotContains(t, m.View(), "Sessions")

	m = press(m, "w")
	assert.False(t, store.Load().Enabled)
	assert.Contains(t, m.View(), "Sessions")
}

func TestDashboard_WidgetWithoutStore(t *testing.T) {
	m := newTestModel(t, Options{Registry: newTestRegistry(t, nil)})
	m = press(m, "w")
	assert.False(t, m.board.widget.Enabled)
	assert.True(t, m.board.noticeErr)
}

func TestDashboard_SnapshotRendersGauges(t *testing.T) {
	m := newTestModel(t, Options{Registry: newTestRegistry(t, nil), Title: "WinTools Test"})
	assert.Contains(t, m.View(), "Waiting for the first sample")

	now := time.Now()
	snap := metrics.Snapshot{
		Memory:     types.NewMemorySnapshot(16*uint64(types.GiB), 4*uint64(types.GiB), now),
		CPUPercent: 42.5,
		Disk:       metrics.DiskUsage{Used: 50, Total: 200},
		Processes:  1234,
		TakenAt:    now,
	}
	next, _ := m.Update(snapshotMsg(snap))
	m = next.(Model)

	view := m.View()
	assert.Contains(t, view, "WinTools Test")
	assert.Contains(t, view, "42.5%")
	assert.Contains(t, view, "75.0%")
	assert.Contains(t, view, "25.0%")
	assert.Contains(t, view, "1,234")
	assert.Contains(t, view, "LIVE")
}

func TestDashboard_ActivationShowsNotice(t *testing.T) {
	m := newTestModel(t, Options{Registry: newTestRegistry(t, nil)})
	next, _ := m.Update(activateMsg{})
	m = next.(Model)
	assert.Contains(t, m.board.notice, "another launch")
}

func TestDashboard_Quit(t *testing.T) {
	m := newTestModel(t, Options{Registry: newTestRegistry(t, nil)})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestProgressText(t *testing.T) {
	assert.Equal(t, "scanning", progressText(types.Progress{Message: "scanning"}))
	assert.Equal(t, "trimming (2/5)", progressText(types.Progress{Message: "trimming", Done: 2, Total: 5}))
	assert.Equal(t, "1,200 removed, 1.0 KiB freed",
		progressText(types.Progress{Sweep: &types.SweepProgress{ItemsRemoved: 1200, BytesFreed: 1024}}))
}
