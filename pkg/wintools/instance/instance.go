// Package instance keeps a single copy of wintools running per session.
//
// The first process to Acquire the named token becomes the Owner and holds
// it until Release. Later processes are Contenders: they either ask the
// owner to come to the foreground (ActivateExisting) or, when launched with
// --close, shut it down (Contend) and exit.
package instance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/jamesainslie/wintools/pkg/wintools/logging"
)

// Role is the outcome of Acquire.
type Role int

const (
	Owner Role = iota + 1
	Contender
)

func (r Role) String() string {
	switch r {
	case Owner:
		return "owner"
	case Contender:
		return "contender"
	}
	return "unknown"
}

// Defaults mirror the desktop tool.
const (
	DefaultName         = "WinTools_SingleInstance_Mutex"
	DefaultTitle        = "WinTools"
	DefaultCloseTimeout = 3 * time.Second
)

// ErrNotHeld is returned by Owner-only operations on a guard that does
// not hold the token.
var ErrNotHeld = errors.New("instance token not held")

// Remote reaches a running owner over the control channel.
type Remote interface {
	Activate(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// OwnerLocator is implemented by remotes that can report the owner's pid.
type OwnerLocator interface {
	OwnerPID(ctx context.Context) (int32, error)
}

// Guard owns the exclusivity token for one process. Construct one at
// start-up and pass it to whatever needs to know about ownership.
type Guard struct {
	name         string
	title        string
	lockDir      string
	closeTimeout time.Duration
	poll         time.Duration
	finder       Finder
	remote       Remote
	log          *logging.Logger

	mu   sync.Mutex
	lock *token
}

// Option configures a Guard.
type Option func(*Guard)

// WithTitle sets the window title used to find the owner.
func WithTitle(title string) Option {
	return func(g *Guard) { g.title = title }
}

// WithLockDir sets where the lock file lives on platforms without named
// mutexes.
func WithLockDir(dir string) Option {
	return func(g *Guard) { g.lockDir = dir }
}

// WithCloseTimeout bounds how long Contend waits for a graceful exit.
func WithCloseTimeout(d time.Duration) Option {
	return func(g *Guard) { g.closeTimeout = d }
}

// WithFinder replaces the OS process lookup.
func WithFinder(f Finder) Option {
	return func(g *Guard) { g.finder = f }
}

// WithRemote lets Contend and ActivateExisting talk to the owner directly.
func WithRemote(r Remote) Option {
	return func(g *Guard) { g.remote = r }
}

// New creates a guard for name. Nothing is acquired until Acquire.
func New(name string, opts ...Option) *Guard {
	if name == "" {
		name = DefaultName
	}
	g := &Guard{
		name:         name,
		title:        DefaultTitle,
		lockDir:      defaultLockDir(),
		closeTimeout: DefaultCloseTimeout,
		poll:         100 * time.Millisecond,
		log:          logging.Get(logging.ComponentGuard),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.finder == nil {
		g.finder = newOSFinder()
	}
	return g
}

// Acquire tries to take the token. Calling it again while holding the
// token returns Owner without side effects.
func (g *Guard) Acquire() (Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lock != nil {
		return Owner, nil
	}

	t, held, err := acquireToken(g.name, g.lockDir)
	if err != nil {
		return 0, fmt.Errorf("acquiring instance token %q: %w", g.name, err)
	}
	if held {
		g.log.Info("another instance holds the token", "name", g.name)
		return Contender, nil
	}
	g.lock = t
	g.log.Debug("instance token acquired", "name", g.name, "pid", os.Getpid())
	return Owner, nil
}

// Held reports whether this guard currently owns the token.
func (g *Guard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lock != nil
}

// Release gives the token up. Releasing twice, or without holding the
// token, is a no-op.
func (g *Guard) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lock == nil {
		return nil
	}
	t := g.lock
	g.lock = nil
	if err := t.release(); err != nil {
		return fmt.Errorf("releasing instance token: %w", err)
	}
	g.log.Debug("instance token released", "name", g.name)
	return nil
}

// Outcome summarises a Contend call.
type Outcome struct {
	Found  int
	Closed int
	Killed int
}

// Contend shuts down the instance holding the token: a graceful request
// first, a bounded wait, then a forced kill. The owner is identified by
// the pid it reports over the control channel or records in the lock file.
// Only when neither is available are all processes of the same executable
// targeted. Every failure is logged and skipped; the caller exits
// afterwards regardless.
func (g *Guard) Contend(ctx context.Context) Outcome {
	var out Outcome

	owners := g.ownerPIDs(ctx)
	if g.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, g.closeTimeout)
		if err := g.remote.Shutdown(rctx); err != nil {
			g.log.Debug("remote shutdown failed", "error", err)
		}
		cancel()
	}

	procs, err := g.finder.Find(ctx, owners)
	if err != nil {
		g.log.Debug("finding running instances failed", "error", err)
		return out
	}
	if len(owners) > 0 {
		procs = onlyOwners(procs, owners)
	}
	out.Found = len(procs)

	for _, p := range procs {
		if err := p.RequestClose(ctx); err != nil {
			g.log.Debug("close request failed", "pid", p.Pid(), "error", err)
		}
	}

	deadline := time.Now().Add(g.closeTimeout)
	for _, p := range procs {
		if g.waitExit(ctx, p, deadline) {
			out.Closed++
			continue
		}
		if err := p.Kill(ctx); err != nil {
			g.log.Debug("kill failed", "pid", p.Pid(), "error", err)
			continue
		}
		out.Killed++
		g.log.Warn("instance did not close in time, killed", "pid", p.Pid())
	}
	return out
}

// ownerPIDs returns the pids known to hold the token, without this process.
func (g *Guard) ownerPIDs(ctx context.Context) []int32 {
	self := int32(os.Getpid())
	var pids []int32
	add := func(pid int32) {
		if pid > 0 && pid != self && !slices.Contains(pids, pid) {
			pids = append(pids, pid)
		}
	}

	if loc, ok := g.remote.(OwnerLocator); ok {
		rctx, cancel := context.WithTimeout(ctx, g.closeTimeout)
		pid, err := loc.OwnerPID(rctx)
		cancel()
		if err != nil {
			g.log.Debug("owner pid unavailable over control channel", "error", err)
		} else {
			add(pid)
		}
	}
	for _, pid := range ownerFromLock(g.name, g.lockDir) {
		add(pid)
	}
	return pids
}

func onlyOwners(procs []Process, owners []int32) []Process {
	out := procs[:0:0]
	for _, p := range procs {
		if slices.Contains(owners, p.Pid()) {
			out = append(out, p)
		}
	}
	return out
}

func (g *Guard) waitExit(ctx context.Context, p Process, deadline time.Time) bool {
	for {
		if !p.Running(ctx) {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(g.poll):
		}
	}
}

// ActivateExisting asks the running owner to show itself: its window is
// restored if minimised and raised. Nothing is reported back.
func (g *Guard) ActivateExisting(ctx context.Context) {
	if err := activateWindow(g.title); err != nil {
		g.log.Debug("window activation failed", "title", g.title, "error", err)
	}
	if g.remote == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := g.remote.Activate(rctx); err != nil {
		g.log.Debug("remote activation failed", "error", err)
	}
}
