// Package session runs reclamation work off the caller's goroutine.
//
// A Registry maps each kind to a Runner. At most one session per kind is in
// flight; a second request while one runs is rejected with ErrBusy. Progress
// and completion callbacks are posted to a Dispatcher and run by whoever
// drains it. Every session ends with exactly one completion callback.
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/wintools/pkg/wintools/logging"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

var (
	// ErrBusy is returned when a session of the same kind is in flight.
	ErrBusy = errors.New("session already running")

	// ErrUnknownKind wraps types.ErrUnknownKind for kinds with no runner.
	ErrUnknownKind = types.ErrUnknownKind
)

// Reporter receives intermediate progress from a runner.
type Reporter func(types.Progress)

// Outcome is what a runner produced. The registry fills in the record's
// identity, timing and state.
type Outcome struct {
	Summary    string
	BytesFreed int64
	Memory     *types.ReclamationResult
	Sweep      *types.SweepResult
	Output     string
}

// Runner performs one kind of reclamation. An error marks the session as
// failed; Outcome may still carry partial data.
type Runner interface {
	Run(ctx context.Context, report Reporter) (Outcome, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, report Reporter) (Outcome, error)

func (f RunnerFunc) Run(ctx context.Context, report Reporter) (Outcome, error) {
	return f(ctx, report)
}

// Recorder persists terminal outcomes.
type Recorder interface {
	Append(types.SessionRecord) error
}

// Telemetry counts sessions.
type Telemetry interface {
	SessionFinished(kind types.Kind, state string, elapsed time.Duration, freed int64)
	SessionBusy(kind types.Kind)
}

type slot struct {
	runner Runner
	busy   atomic.Bool
	state  atomic.Value // types.SessionState
	last   atomic.Pointer[types.SessionRecord]
}

// Registry owns the runners and their in-flight flags.
type Registry struct {
	slots      map[types.Kind]*slot
	dispatcher *Dispatcher
	recorder   Recorder
	telemetry  Telemetry
	now        func() time.Time
	log        *logging.Logger
	wg         sync.WaitGroup
}

// Option configures a Registry.
type Option func(*Registry)

// WithRecorder appends every outcome to r.
func WithRecorder(r Recorder) Option {
	return func(reg *Registry) { reg.recorder = r }
}

// WithTelemetry reports outcomes and rejections to t.
func WithTelemetry(t Telemetry) Option {
	return func(reg *Registry) { reg.telemetry = t }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(reg *Registry) { reg.now = now }
}

// NewRegistry creates a registry that posts callbacks to d.
func NewRegistry(d *Dispatcher, opts ...Option) *Registry {
	if d == nil {
		d = NewDispatcher()
	}
	r := &Registry{
		slots:      make(map[types.Kind]*slot),
		dispatcher: d,
		now:        time.Now,
		log:        logging.Get(logging.ComponentSession),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds runner to kind. Registration must finish before the
// first RunAsync.
func (r *Registry) Register(kind types.Kind, runner Runner) {
	s := &slot{runner: runner}
	s.state.Store(types.StateIdle)
	r.slots[kind] = s
}

// Dispatcher returns the callback queue.
func (r *Registry) Dispatcher() *Dispatcher { return r.dispatcher }

// Kinds lists the registered kinds in display order.
func (r *Registry) Kinds() []types.Kind {
	var out []types.Kind
	for _, k := range types.Kinds() {
		if _, ok := r.slots[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// State reports where kind is in its lifecycle. Unregistered kinds are
// idle.
func (r *Registry) State(kind types.Kind) types.SessionState {
	s, ok := r.slots[kind]
	if !ok {
		return types.StateIdle
	}
	return s.state.Load().(types.SessionState)
}

// Busy reports whether a session of kind is in flight.
func (r *Registry) Busy(kind types.Kind) bool {
	s, ok := r.slots[kind]
	return ok && s.busy.Load()
}

// Last returns the most recent terminal record for kind.
func (r *Registry) Last(kind types.Kind) (types.SessionRecord, bool) {
	s, ok := r.slots[kind]
	if !ok {
		return types.SessionRecord{}, false
	}
	rec := s.last.Load()
	if rec == nil {
		return types.SessionRecord{}, false
	}
	return *rec, true
}

// RunAsync starts a session of kind and returns immediately. onProgress and
// onComplete may be nil; when set they run on the dispatcher. Cancelling
// ctx asks the runner to stop early.
func (r *Registry) RunAsync(ctx context.Context, kind types.Kind, onProgress func(types.Progress), onComplete func(types.SessionRecord)) error {
	_, err := r.start(ctx, kind, "", onProgress, onComplete)
	return err
}

// Start is RunAsync with a trigger label recorded in history. It returns
// the session id.
func (r *Registry) Start(ctx context.Context, kind types.Kind, trigger string, onProgress func(types.Progress), onComplete func(types.SessionRecord)) (string, error) {
	return r.start(ctx, kind, trigger, onProgress, onComplete)
}

func (r *Registry) start(ctx context.Context, kind types.Kind, trigger string, onProgress func(types.Progress), onComplete func(types.SessionRecord)) (string, error) {
	s, ok := r.slots[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if !s.busy.CompareAndSwap(false, true) {
		if r.telemetry != nil {
			r.telemetry.SessionBusy(kind)
		}
		r.log.Debug("session rejected, already running", "kind", kind)
		return "", fmt.Errorf("%w: %s", ErrBusy, kind)
	}
	s.state.Store(types.StateRunning)

	rec := types.SessionRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     types.StateRunning,
		Trigger:   trigger,
		StartedAt: r.now(),
	}
	r.log.Info("session started", "kind", kind, "id", rec.ID, "trigger", trigger)

	r.wg.Add(1)
	go r.work(ctx, s, rec, onProgress, onComplete)
	return rec.ID, nil
}

func (r *Registry) work(ctx context.Context, s *slot, rec types.SessionRecord, onProgress func(types.Progress), onComplete func(types.SessionRecord)) {
	defer r.wg.Done()

	report := func(p types.Progress) {
		if onProgress == nil {
			return
		}
		p.Kind = rec.Kind
		r.dispatcher.Post(func() { onProgress(p) })
	}

	out, err := invoke(ctx, s.runner, report)

	rec.FinishedAt = r.now()
	rec.Elapsed = rec.FinishedAt.Sub(rec.StartedAt)
	rec.Summary = out.Summary
	rec.BytesFreed = out.BytesFreed
	rec.Memory = out.Memory
	rec.Sweep = out.Sweep
	rec.Output = out.Output
	if err != nil {
		rec.State = types.StateFailed
		rec.Error = err.Error()
		if rec.Summary == "" {
			rec.Summary = fmt.Sprintf("%s failed: %v", rec.Kind.Title(), err)
		}
		r.log.Warn("session failed", "kind", rec.Kind, "id", rec.ID, "error", err)
	} else {
		rec.State = types.StateCompleted
		r.log.Info("session completed", "kind", rec.Kind, "id", rec.ID,
			"summary", rec.Summary, "elapsed", rec.Elapsed.Round(time.Millisecond))
	}

	if r.recorder != nil {
		if err := r.recorder.Append(rec); err != nil {
			r.log.Warn("recording session failed", "id", rec.ID, "error", err)
		}
	}
	if r.telemetry != nil {
		r.telemetry.SessionFinished(rec.Kind, string(rec.State), rec.Elapsed, rec.BytesFreed)
	}

	final := rec
	s.last.Store(&final)
	s.state.Store(rec.State)
	s.busy.Store(false)

	if onComplete != nil {
		r.dispatcher.Post(func() { onComplete(final) })
	}
}

// invoke turns a runner panic into an error.
func invoke(ctx context.Context, runner Runner, report Reporter) (out Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			logging.Get(logging.ComponentSession).Error("runner panicked", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("runner panicked: %v", p)
		}
	}()
	return runner.Run(ctx, report)
}

// Wait blocks until every started session has finished.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// RunSync starts a session and drains the dispatcher on the calling
// goroutine until it completes. It is meant for one-shot command-line use
// where no other loop owns the dispatcher.
func (r *Registry) RunSync(ctx context.Context, kind types.Kind, trigger string, onProgress func(types.Progress)) (types.SessionRecord, error) {
	var (
		rec  types.SessionRecord
		done bool
	)
	_, err := r.start(ctx, kind, trigger, onProgress, func(got types.SessionRecord) {
		rec = got
		done = true
	})
	if err != nil {
		return rec, err
	}
	for !done {
		<-r.dispatcher.Ready()
		r.dispatcher.Drain()
	}
	return rec, nil
}
