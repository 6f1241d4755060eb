package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/wintools/pkg/wintools/history"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// PrettyFormatter writes each record as a status line followed by indented
// details, with a totals line when there is more than one record.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, rec := range r.Records {
		f.formatRecord(w, rec)
	}
	if len(r.Records) > 1 {
		f.formatFooter(w, r)
	}
	return nil
}

func (f *PrettyFormatter) formatRecord(w *bytes.Buffer, rec types.SessionRecord) {
	mark := SuccessStyle.Render("✓")
	if rec.State == types.StateFailed {
		mark = ErrorStyle.Render("✗")
	}
	fmt.Fprintf(w, "%s %s\n", mark, SummaryStyle.Render(rec.Summary))

	detail := func(label, format string, args ...any) {
		fmt.Fprintf(w, "  %s %s\n", LabelStyle.Render(fmt.Sprintf("%-9s", label+":")), fmt.Sprintf(format, args...))
	}

	if rec.ID != "" {
		detail("id", "%s", history.ShortID(rec.ID))
	}
	if rec.Elapsed > 0 {
		detail("elapsed", "%s", rec.Elapsed.Round(time.Millisecond))
	}
	if m := rec.Memory; m != nil {
		detail("before", "%s available of %s", SizeStyle.Render(types.FormatSize(int64(m.Before.Available))), types.FormatSize(int64(m.Before.Total)))
		detail("after", "%s available", SizeStyle.Render(types.FormatSize(int64(m.After.Available))))
		detail("trimmed", "%s processes, %s skipped", humanize.Comma(int64(m.ProcessesTrimmed)), humanize.Comma(int64(m.ProcessesSkipped)))
		for _, st := range types.AllStages() {
			if msg, ok := m.StageErrors[st]; ok {
				detail(string(st), "%s", WarningStyle.Render(msg))
			}
		}
	}
	if s := rec.Sweep; s != nil {
		detail("removed", "%s files, %s directories", humanize.Comma(int64(s.ItemsRemoved)), humanize.Comma(int64(s.DirsRemoved)))
		if len(s.Skipped) > 0 {
			detail("skipped", "%s (%s)", humanize.Comma(int64(len(s.Skipped))), skipBreakdown(s.Skipped))
		}
		if s.Excluded > 0 {
			detail("excluded", "%s kept by exclude patterns", humanize.Comma(int64(s.Excluded)))
		}
		if s.Cancelled {
			fmt.Fprintf(w, "  %s\n", WarningStyle.Render("cancelled before finishing"))
		}
	}
	if rec.Error != "" && !strings.Contains(rec.Summary, rec.Error) {
		detail("error", "%s", ErrorStyle.Render(rec.Error))
	}
	if rec.Output != "" {
		detail("output", "%s", strings.TrimSpace(rec.Output))
	}
}

func (f *PrettyFormatter) formatFooter(w *bytes.Buffer, r *Result) {
	line := fmt.Sprintf("%d sessions, %s freed", len(r.Records), types.FormatSize(r.BytesFreed()))
	if failed := r.Failed(); failed > 0 {
		line += ErrorStyle.Render(fmt.Sprintf(", %d failed", failed))
	}
	fmt.Fprintf(w, "\n%s\n", MutedStyle.Render(line))
}

// skipBreakdown renders skip counts by reason, e.g. "in-use 3, permission 1".
func skipBreakdown(items []types.SkippedItem) string {
	counts := make(map[types.SkipReason]int)
	var order []types.SkipReason
	for _, it := range items {
		if counts[it.Reason] == 0 {
			order = append(order, it.Reason)
		}
		counts[it.Reason]++
	}
	parts := make([]string, 0, len(order))
	for _, r := range order {
		parts = append(parts, fmt.Sprintf("%s %d", r, counts[r]))
	}
	return strings.Join(parts, ", ")
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
