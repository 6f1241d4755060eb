// Package schedule triggers reclamation sessions on cron specs. A tick
// that lands while the same kind is still running is skipped, not queued.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jamesainslie/wintools/pkg/wintools/logging"
	"github.com/jamesainslie/wintools/pkg/wintools/session"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// Trigger is the label scheduled sessions carry in history.
const Trigger = "schedule"

// Parser accepts standard five-field specs and descriptors like @daily.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Starter launches sessions. *session.Registry satisfies it.
type Starter interface {
	Start(ctx context.Context, kind types.Kind, trigger string, onProgress func(types.Progress), onComplete func(types.SessionRecord)) (string, error)
}

// Entry runs Kind whenever Spec fires.
type Entry struct {
	Kind types.Kind
	Spec string
}

// Upcoming describes the next run of an entry.
type Upcoming struct {
	Kind types.Kind
	Spec string
	Next time.Time
}

// Scheduler owns a cron instance bound to a Starter.
type Scheduler struct {
	starter  Starter
	cron     *cron.Cron
	entries  map[cron.EntryID]Entry
	ctx      atomic.Pointer[context.Context]
	fired    atomic.Int64
	skipped  atomic.Int64
	complete func(types.SessionRecord)
	loc      *time.Location
	log      *logging.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithOnComplete receives every scheduled session's final record on the
// registry's dispatcher.
func WithOnComplete(fn func(types.SessionRecord)) Option {
	return func(s *Scheduler) { s.complete = fn }
}

// WithLocation evaluates specs in loc instead of the local zone.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

// New validates entries and binds them to starter. Nothing fires until Run.
func New(starter Starter, entries []Entry, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		starter: starter,
		entries: make(map[cron.EntryID]Entry),
		loc:     time.Local,
		log:     logging.Get(logging.ComponentSchedule),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(cron.WithParser(Parser), cron.WithLocation(s.loc))

	for _, e := range entries {
		id, err := s.cron.AddFunc(e.Spec, func() { s.fire(e) })
		if err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", e.Kind, e.Spec, err)
		}
		s.entries[id] = e
	}
	return s, nil
}

// ParseEntry resolves a kind name or alias and checks spec.
func ParseEntry(kind, spec string) (Entry, error) {
	k, err := types.ParseKind(kind)
	if err != nil {
		return Entry{}, err
	}
	if _, err := Parser.Parse(spec); err != nil {
		return Entry{}, fmt.Errorf("cron spec %q: %w", spec, err)
	}
	return Entry{Kind: k, Spec: spec}, nil
}

// Run starts the cron loop and blocks until ctx is done. Sessions started
// by the scheduler inherit ctx, so cancelling it also stops them.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx.Store(&ctx)
	if len(s.entries) == 0 {
		<-ctx.Done()
		return nil
	}

	s.cron.Start()
	s.log.Info("scheduler started", "entries", len(s.entries))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped", "fired", s.fired.Load(), "skipped", s.skipped.Load())
	return nil
}

func (s *Scheduler) fire(e Entry) {
	ctx := context.Background()
	if p := s.ctx.Load(); p != nil {
		ctx = *p
	}
	if ctx.Err() != nil {
		return
	}

	id, err := s.starter.Start(ctx, e.Kind, Trigger, nil, s.complete)
	switch {
	case errors.Is(err, session.ErrBusy):
		s.skipped.Add(1)
		s.log.Info("scheduled session skipped, already running", "kind", e.Kind)
	case err != nil:
		s.skipped.Add(1)
		s.log.Warn("scheduled session failed to start", "kind", e.Kind, "error", err)
	default:
		s.fired.Add(1)
		s.log.Debug("scheduled session started", "kind", e.Kind, "id", id)
	}
}

// Upcoming lists entries by next fire time. Before Run the times are zero.
func (s *Scheduler) Upcoming() []Upcoming {
	var out []Upcoming
	for _, ce := range s.cron.Entries() {
		e, ok := s.entries[ce.ID]
		if !ok {
			continue
		}
		out = append(out, Upcoming{Kind: e.Kind, Spec: e.Spec, Next: ce.Next})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Next.Before(out[j].Next) })
	return out
}

// Fired counts sessions the scheduler started.
func (s *Scheduler) Fired() int64 { return s.fired.Load() }

// Skipped counts ticks that did not start a session.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }
