// Package reclaimer runs the memory reclamation pipeline: trim the own
// working set, force garbage collection, return freed heap to the OS, then
// trim every other process that can be opened. Each stage is best-effort;
// only the before and after memory readings can fail a run.
package reclaimer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/jamesainslie/wintools/pkg/wintools/logging"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

var (
	// ErrSnapshot wraps a failed before or after memory reading.
	ErrSnapshot = errors.New("memory snapshot failed")

	// ErrTrimUnsupported is returned by OSTrimmer where the platform has no
	// working-set trim.
	ErrTrimUnsupported = errors.New("working-set trim not supported on this platform")
)

// MemorySource reads physical memory without falling back to cached
// values.
type MemorySource interface {
	MemoryStrict(ctx context.Context) (types.MemorySnapshot, error)
}

// Trimmer evicts resident pages from a process.
type Trimmer interface {
	TrimSelf() error
	Trim(pid int32) error
}

// ProcessLister lists running process ids.
type ProcessLister interface {
	Pids(ctx context.Context) ([]int32, error)
}

// Settle holds the pauses inserted before each stage and before the after
// reading. They give the OS time to update its counters.
type Settle struct {
	TrimSelf time.Duration
	Collect  time.Duration
	Compact  time.Duration
	TrimAll  time.Duration
	Final    time.Duration
}

// DefaultSettle matches the pacing of the desktop tool.
func DefaultSettle() Settle {
	return Settle{
		TrimSelf: 300 * time.Millisecond,
		Collect:  300 * time.Millisecond,
		Compact:  300 * time.Millisecond,
		TrimAll:  500 * time.Millisecond,
		Final:    time.Second,
	}
}

// ProgressFunc is called after each stage with its 1-based position.
type ProgressFunc func(stage types.Stage, done, total int)

// Reclaimer executes the pipeline.
type Reclaimer struct {
	mem      MemorySource
	trimmer  Trimmer
	procs    ProcessLister
	settle   Settle
	progress ProgressFunc
	selfPID  int32
	log      *logging.Logger

	// collect and compact are swapped in tests.
	collect func()
	compact func()
}

// Option configures a Reclaimer.
type Option func(*Reclaimer)

// WithSettle overrides the stage pauses. Zero values disable a pause.
func WithSettle(s Settle) Option {
	return func(r *Reclaimer) { r.settle = s }
}

// WithProgress registers a per-stage callback.
func WithProgress(fn ProgressFunc) Option {
	return func(r *Reclaimer) { r.progress = fn }
}

// WithSelfPID sets the pid excluded from the cross-process stage.
func WithSelfPID(pid int32) Option {
	return func(r *Reclaimer) { r.selfPID = pid }
}

// New creates a Reclaimer. Nil trimmer or lister select the OS
// implementations.
func New(mem MemorySource, trimmer Trimmer, procs ProcessLister, opts ...Option) *Reclaimer {
	if trimmer == nil {
		trimmer = OSTrimmer{}
	}
	if procs == nil {
		procs = GopsutilLister{}
	}
	r := &Reclaimer{
		mem:     mem,
		trimmer: trimmer,
		procs:   procs,
		settle:  DefaultSettle(),
		selfPID: int32(os.Getpid()),
		log:     logging.Get(logging.ComponentReclaimer),
		collect: fullCollect,
		compact: debug.FreeOSMemory,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// fullCollect collects twice with a yield in between. The yield gives the
// finalizer goroutine a chance to run but does not wait for it, so memory
// freed by finalizers may only be reclaimed on a later cycle.
func fullCollect() {
	runtime.GC()
	runtime.Gosched()
	runtime.GC()
}

type stage struct {
	id     types.Stage
	settle time.Duration
	run    func(ctx context.Context, res *types.ReclamationResult) error
}

func (r *Reclaimer) pipeline() []stage {
	return []stage{
		{types.StageTrimSelf, r.settle.TrimSelf, r.trimSelf},
		{types.StageCollect, r.settle.Collect, func(context.Context, *types.ReclamationResult) error {
			r.collect()
			return nil
		}},
		{types.StageCompact, r.settle.Compact, func(context.Context, *types.ReclamationResult) error {
			r.compact()
			return nil
		}},
		{types.StageTrimAll, r.settle.TrimAll, r.trimAll},
	}
}

// Reclaim runs every stage in order and reports the memory delta.
// Cancelling ctx shortens the settle pauses but every stage still runs.
func (r *Reclaimer) Reclaim(ctx context.Context) (*types.ReclamationResult, error) {
	start := time.Now()

	before, err := r.mem.MemoryStrict(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: before: %w", ErrSnapshot, err)
	}

	res := &types.ReclamationResult{Before: before}
	stages := r.pipeline()
	for i, st := range stages {
		pause(ctx, st.settle)
		if err := r.runStage(ctx, st, res); err != nil {
			if res.StageErrors == nil {
				res.StageErrors = make(map[types.Stage]string)
			}
			res.StageErrors[st.id] = err.Error()
			r.log.Warn("stage failed, continuing", "stage", st.id, "error", err)
		}
		res.Stages = append(res.Stages, st.id)
		if r.progress != nil {
			r.progress(st.id, i+1, len(stages))
		}
	}

	pause(ctx, r.settle.Final)
	after, err := r.mem.MemoryStrict(context.WithoutCancel(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: after: %w", ErrSnapshot, err)
	}
	res.After = after
	res.Elapsed = time.Since(start)

	r.log.Info("memory reclaimed",
		"delta", types.FormatSize(res.Delta()),
		"trimmed", res.ProcessesTrimmed,
		"skipped", res.ProcessesSkipped,
		"elapsed", res.Elapsed.Round(time.Millisecond))
	return res, nil
}

// runStage converts a panic into a stage error.
func (r *Reclaimer) runStage(ctx context.Context, st stage, res *types.ReclamationResult) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("stage %s panicked: %v", st.id, p)
		}
	}()
	return st.run(ctx, res)
}

func (r *Reclaimer) trimSelf(context.Context, *types.ReclamationResult) error {
	if err := r.trimmer.TrimSelf(); err != nil {
		return fmt.Errorf("trimming own working set: %w", err)
	}
	return nil
}

// trimAll visits every listed process except this one. Failures on
// individual processes are counted, never returned.
func (r *Reclaimer) trimAll(ctx context.Context, res *types.ReclamationResult) error {
	pids, err := r.procs.Pids(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("listing processes: %w", err)
	}
	for _, pid := range pids {
		if pid == r.selfPID {
			continue
		}
		if err := r.trimOne(pid); err != nil {
			res.ProcessesSkipped++
			r.log.Debug("process not trimmed", "pid", pid, "error", err)
			continue
		}
		res.ProcessesTrimmed++
	}
	return nil
}

func (r *Reclaimer) trimOne(pid int32) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("trim panicked: %v", p)
		}
	}()
	return r.trimmer.Trim(pid)
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
