package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/wintools/pkg/wintools/metrics"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// renderAppHeader renders the title line with a memory summary, the bytes
// reclaimed since start, and a live indicator when samples are fresh.
func renderAppHeader(title string, snap metrics.Snapshot, freed int64, live bool) string {
	name := titleStyle.Render(title)

	stats := ""
	if snap.Memory.Total > 0 {
		stats = mutedTextStyle.Render(fmt.Sprintf("  %s / %s RAM  •  %s processes",
			types.FormatSize(int64(snap.Memory.Used)),
			types.FormatSize(int64(snap.Memory.Total)),
			humanize.Comma(int64(snap.Processes))))
	}

	header := " " + name + stats
	if freed > 0 {
		freedStyle := lipgloss.NewStyle().Foreground(successColor).Bold(true)
		header += freedStyle.Render(fmt.Sprintf("  ✓ Reclaimed %s", types.FormatSize(freed)))
	}
	if live {
		header += successTextStyle.Render("  ● LIVE")
	}
	return header
}

// isLive reports whether a sample taken at taken is recent enough, given
// the sampling interval, for the live indicator.
func isLive(taken, now time.Time, interval time.Duration) bool {
	if taken.IsZero() {
		return false
	}
	return now.Sub(taken) <= 3*interval
}
