package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/wintools/pkg/wintools/reclaimer"
	"github.com/jamesainslie/wintools/pkg/wintools/recyclebin"
	"github.com/jamesainslie/wintools/pkg/wintools/sweeper"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// MemoryRunner runs the reclamation pipeline.
type MemoryRunner struct {
	Source     reclaimer.MemorySource
	Trimmer    reclaimer.Trimmer
	Lister     reclaimer.ProcessLister
	Options    []reclaimer.Option
	Thresholds types.Thresholds
}

func (m MemoryRunner) Run(ctx context.Context, report Reporter) (Outcome, error) {
	opts := append([]reclaimer.Option{}, m.Options...)
	opts = append(opts, reclaimer.WithProgress(func(st types.Stage, done, total int) {
		report(types.Progress{Message: string(st), Done: done, Total: total})
	}))

	res, err := reclaimer.New(m.Source, m.Trimmer, m.Lister, opts...).Reclaim(ctx)
	if err != nil {
		return Outcome{}, err
	}

	th := m.Thresholds
	if th == (types.Thresholds{}) {
		th = types.DefaultThresholds()
	}
	var freed int64
	if d := res.Delta(); d > 0 {
		freed = d
	}
	return Outcome{
		Summary:    MemorySummary(res, th),
		BytesFreed: freed,
		Memory:     res,
	}, nil
}

// MemorySummary describes a reclamation result in one line.
func MemorySummary(res *types.ReclamationResult, th types.Thresholds) string {
	delta := res.Delta()
	switch res.Classify(th) {
	case types.ImprovementSignificant:
		return fmt.Sprintf("Significant improvement: %s freed (%d processes trimmed)", types.FormatSize(delta), res.ProcessesTrimmed)
	case types.ImprovementModerate:
		return fmt.Sprintf("Moderate improvement: %s freed (%d processes trimmed)", types.FormatSize(delta), res.ProcessesTrimmed)
	case types.ImprovementMinor:
		return fmt.Sprintf("Minor improvement: %s freed", types.FormatSize(delta))
	default:
		return fmt.Sprintf("Memory optimized (%d processes trimmed)", res.ProcessesTrimmed)
	}
}

// SweepRunner deletes aged files from Targets.
type SweepRunner struct {
	Kind    types.Kind
	Targets []types.SweepTarget
	MinAge  time.Duration
	Options []sweeper.Option
}

func (s SweepRunner) Run(ctx context.Context, report Reporter) (Outcome, error) {
	opts := append([]sweeper.Option{}, s.Options...)
	opts = append(opts, sweeper.WithProgress(func(p types.SweepProgress) {
		pp := p
		report(types.Progress{
			Message: fmt.Sprintf("%s: %s removed, %s freed", p.Target, humanize.Comma(int64(p.ItemsRemoved)), types.FormatSize(p.BytesFreed)),
			Sweep:   &pp,
		})
	}))

	res := sweeper.New(opts...).Sweep(ctx, s.Targets, s.MinAge)
	out := Outcome{
		Summary:    SweepSummary(s.Kind, &res),
		BytesFreed: res.BytesFreed,
		Sweep:      &res,
	}
	if res.Cancelled {
		return out, fmt.Errorf("%s cancelled: %w", strings.ToLower(s.Kind.Title()), context.Cause(ctx))
	}
	return out, nil
}

// SweepSummary describes a sweep result in one line.
func SweepSummary(kind types.Kind, res *types.SweepResult) string {
	if res.ItemsRemoved == 0 && res.DirsRemoved == 0 {
		if len(res.Skipped) > 0 {
			return fmt.Sprintf("%s: nothing removed, %d items in use or protected", kind.Title(), len(res.Skipped))
		}
		return fmt.Sprintf("%s: nothing to remove", kind.Title())
	}
	msg := fmt.Sprintf("%s: %s files removed, %s freed", kind.Title(),
		humanize.Comma(int64(res.ItemsRemoved)), types.FormatSize(res.BytesFreed))
	if res.DirsRemoved > 0 {
		msg += fmt.Sprintf(", %s folders", humanize.Comma(int64(res.DirsRemoved)))
	}
	if n := len(res.Skipped); n > 0 {
		msg += fmt.Sprintf(" (%d skipped)", n)
	}
	return msg
}

// DefaultCommandTimeout bounds external commands.
const DefaultCommandTimeout = 30 * time.Second

// CommandError is a non-zero exit. Stderr is kept verbatim.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Command, e.ExitCode, e.Stderr)
}

// CommandRunner runs an external program and captures its output.
type CommandRunner struct {
	Name    string
	Args    []string
	Timeout time.Duration

	// Success is the summary on a zero exit.
	Success string
}

// DNSFlushRunner flushes the resolver cache with the platform's tool.
func DNSFlushRunner() CommandRunner {
	name, args := dnsFlushCommand()
	return CommandRunner{
		Name:    name,
		Args:    args,
		Timeout: DefaultCommandTimeout,
		Success: "DNS resolver cache flushed",
	}
}

func dnsFlushCommand() (string, []string) {
	switch runtime.GOOS {
	case "windows":
		return "ipconfig", []string{"/flushdns"}
	case "darwin":
		return "dscacheutil", []string{"-flushcache"}
	default:
		return "resolvectl", []string{"flush-caches"}
	}
}

func (c CommandRunner) Run(ctx context.Context, report Reporter) (Outcome, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	line := strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
	report(types.Progress{Message: "running " + line, Total: 1})

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	hideWindow(cmd)

	err := cmd.Run()
	out := Outcome{Output: stdout.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return out, &CommandError{Command: line, ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return out, fmt.Errorf("running %s: %w", line, err)
	}

	report(types.Progress{Message: "done", Done: 1, Total: 1})
	out.Summary = c.Success
	if out.Summary == "" {
		out.Summary = line + " completed"
	}
	return out, nil
}

// Emptier empties the recycle bin.
type Emptier interface {
	Empty(ctx context.Context) (recyclebin.Info, error)
}

// RecycleBinRunner empties the recycle bin. An already empty bin is a
// completed session, not a failure.
type RecycleBinRunner struct {
	Bin Emptier
}

func (r RecycleBinRunner) Run(ctx context.Context, report Reporter) (Outcome, error) {
	bin := r.Bin
	if bin == nil {
		bin = recyclebin.New()
	}
	report(types.Progress{Message: "emptying recycle bin", Total: 1})

	info, err := bin.Empty(ctx)
	if errors.Is(err, recyclebin.ErrAlreadyEmpty) {
		return Outcome{Summary: "Recycle bin was already empty or some items could not be removed"}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("emptying recycle bin: %w", err)
	}

	report(types.Progress{Message: "done", Done: 1, Total: 1})
	summary := "Recycle bin emptied"
	if info.Items > 0 {
		summary = fmt.Sprintf("Recycle bin emptied: %s items, %s", humanize.Comma(info.Items), types.FormatSize(info.Size))
	}
	return Outcome{Summary: summary, BytesFreed: info.Size}, nil
}
