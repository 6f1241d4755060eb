package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/wintools/pkg/wintools/logging"
)

// logPaneSize is how many entries the pane keeps.
const logPaneSize = 100

// filterEntriesByLevel returns entries at or above the specified level.
func filterEntriesByLevel(entries []logging.Entry, minLevel logging.Level) []logging.Entry {
	result := make([]logging.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Level >= minLevel {
			result = append(result, e)
		}
	}
	return result
}

// clampLogScroll ensures the scroll offset stays within valid bounds.
func clampLogScroll(offset, totalEntries, visibleRows int) int {
	if totalEntries <= visibleRows {
		return 0
	}
	maxOffset := totalEntries - visibleRows
	if offset < 0 {
		return 0
	}
	if offset > maxOffset {
		return maxOffset
	}
	return offset
}

func logLevelStyle(level logging.Level) lipgloss.Style {
	switch level {
	case logging.LevelDebug:
		return logDebugStyle
	case logging.LevelWarn:
		return logWarnStyle
	case logging.LevelError:
		return logErrorStyle
	default:
		return logInfoStyle
	}
}

func logLevelChar(level logging.Level) string {
	switch level {
	case logging.LevelDebug:
		return "D"
	case logging.LevelInfo:
		return "I"
	case logging.LevelWarn:
		return "W"
	case logging.LevelError:
		return "E"
	default:
		return "?"
	}
}

// renderLogViewer renders the log pane into height rows.
func renderLogViewer(entries []logging.Entry, filterLevel logging.Level, scrollOffset, width, height int) string {
	if height < 3 {
		return ""
	}

	var b strings.Builder
	title := titleStyle.Render(fmt.Sprintf(" Logs [%s] ", filterLevel))
	b.WriteString(title + mutedTextStyle.Render("[1-4] filter  [↑/↓] scroll  [l] close"))
	b.WriteString("\n")
	b.WriteString(renderDivider(width))
	b.WriteString("\n")

	visibleRows := max(height-2, 1)
	filtered := filterEntriesByLevel(entries, filterLevel)
	scrollOffset = clampLogScroll(scrollOffset, len(filtered), visibleRows)

	end := min(scrollOffset+visibleRows, len(filtered))
	visible := filtered[scrollOffset:end]
	for _, entry := range visible {
		b.WriteString(renderLogEntry(entry, width))
		b.WriteString("\n")
	}
	for i := len(visible); i < visibleRows; i++ {
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// renderLogEntry renders "HH:MM:SS [L] component: message".
func renderLogEntry(entry logging.Entry, width int) string {
	comp := truncate(entry.Component, 10)
	prefixWidth := 8 + 1 + 3 + 1 + len(comp) + 2
	msg := truncate(entry.Message, max(width-prefixWidth, 10))

	return fmt.Sprintf("%s %s %s: %s",
		logTimeStyle.Render(entry.Time.Format("15:04:05")),
		logLevelStyle(entry.Level).Render("["+logLevelChar(entry.Level)+"]"),
		logComponentStyle.Render(comp),
		msg)
}

// LogViewerState holds the state for the log pane.
type LogViewerState struct {
	Open         bool
	Buffer       *logging.Ring
	FilterLevel  logging.Level
	ScrollOffset int
}

// NewLogViewerState creates a closed pane showing every level. Entries
// already kept by the logging package are copied in.
func NewLogViewerState() *LogViewerState {
	s := &LogViewerState{
		Buffer:      logging.NewRing(logPaneSize),
		FilterLevel: logging.LevelDebug,
	}
	if recent := logging.Recent(); recent != nil {
		for _, e := range recent.Last(logPaneSize) {
			s.Buffer.Add(e)
		}
	}
	return s
}

func (s *LogViewerState) Toggle() { s.Open = !s.Open }

// SetFilterLevel sets the filter level and resets the scroll position.
func (s *LogViewerState) SetFilterLevel(level logging.Level) {
	s.FilterLevel = level
	s.ScrollOffset = 0
}

func (s *LogViewerState) ScrollUp() {
	if s.ScrollOffset > 0 {
		s.ScrollOffset--
	}
}

func (s *LogViewerState) ScrollDown(visibleRows int) {
	maxOffset := max(s.FilteredEntryCount()-visibleRows, 0)
	if s.ScrollOffset < maxOffset {
		s.ScrollOffset++
	}
}

// AddEntry appends an entry. A pane scrolled to the bottom follows new
// entries.
func (s *LogViewerState) AddEntry(entry logging.Entry, visibleRows int) {
	following := s.ScrollOffset >= max(s.FilteredEntryCount()-visibleRows, 0)
	s.Buffer.Add(entry)
	if following {
		s.ScrollOffset = max(s.FilteredEntryCount()-visibleRows, 0)
	}
}

// FilteredEntryCount returns the number of entries at or above the filter.
func (s *LogViewerState) FilteredEntryCount() int {
	return len(filterEntriesByLevel(s.Buffer.All(), s.FilterLevel))
}
