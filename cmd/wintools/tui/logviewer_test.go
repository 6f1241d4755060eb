package tui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/wintools/pkg/wintools/logging"
)

func entry(level logging.Level, msg string) logging.Entry {
	return logging.Entry{
		Time:      time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Level:     level,
		Component: "session",
		Message:   msg,
	}
}

func TestFilterEntriesByLevel(t *testing.T) {
	entries := []logging.Entry{
		entry(logging.LevelDebug, "d"),
		entry(logging.LevelInfo, "i"),
		entry(logging.LevelWarn, "w"),
		entry(logging.LevelError, "e"),
	}
	tests := []struct {
		level logging.Level
		want  int
	}{
		{logging.LevelDebug, 4},
		{logging.LevelInfo, 3},
		{logging.LevelWarn, 2},
		{logging.LevelError, 1},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			assert.Len(t, filterEntriesByLevel(entries, tt.level), tt.want)
		})
	}
}

func TestClampLogScroll(t *testing.T) {
	tests := []struct {
		name                   string
		offset, total, visible int
		want                   int
	}{
		{"fits", 5, 3, 10, 0},
		{"negative", -1, 30, 10, 0},
		{"in range", 7, 30, 10, 7},
		{"past end", 25, 30, 10, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clampLogScroll(tt.offset, tt.total, tt.visible))
		})
	}
}

func TestRenderLogEntry(t *testing.T) {
	line := renderLogEntry(entry(logging.LevelWarn, "session failed"), 80)
	assert.Contains(t, line, "09:30:00")
	assert.Contains(t, line, "[W]")
	assert.Contains(t, line, "session: session failed")

	long := renderLogEntry(entry(logging.LevelInfo, strings.Repeat("x", 200)), 60)
	assert.Contains(t, long, "...")
}

func TestRenderLogViewer_RowCount(t *testing.T) {
	var entries []logging.Entry
	for i := range 20 {
		entries = append(entries, entry(logging.LevelInfo, fmt.Sprintf("message %d", i)))
	}
	out := renderLogViewer(entries, logging.LevelDebug, 0, 80, 8)
	assert.Len(t, strings.Split(out, "\n"), 8)
	assert.Contains(t, out, "message 0")
	assert.NotContains(t, out, "message 6")

	assert.Empty(t, renderLogViewer(entries, logging.LevelDebug, 0, 80, 2))
}

func TestLogViewerState_FollowsTail(t *testing.T) {
	s := &LogViewerState{Buffer: logging.NewRing(50)}
	for i := range 10 {
		s.AddEntry(entry(logging.LevelInfo, fmt.Sprintf("m%d", i)), 4)
	}
	assert.Equal(t, 6, s.ScrollOffset, "pinned to the newest entries")

	s.ScrollUp()
	s.ScrollUp()
	s.AddEntry(entry(logging.LevelInfo, "m10"), 4)
	assert.Equal(t, 4, s.ScrollOffset, "scrolled-back pane stays put")

	s.SetFilterLevel(logging.LevelError)
	assert.Equal(t, 0, s.ScrollOffset)
	assert.Equal(t, 0, s.FilteredEntryCount())

	s.ScrollDown(4)
	assert.Equal(t, 0, s.ScrollOffset)
}

func TestLogViewerState_Toggle(t *testing.T) {
	s := NewLogViewerState()
	require.NotNil(t, s.Buffer)
	assert.False(t, s.Open)
	s.Toggle()
	assert.True(t, s.Open)
}
