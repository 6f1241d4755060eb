package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jamesainslie/wintools/cmd/wintools/tui"
	"github.com/jamesainslie/wintools/pkg/wintools/control"
	"github.com/jamesainslie/wintools/pkg/wintools/logging"
	"github.com/jamesainslie/wintools/pkg/wintools/metrics"
	"github.com/jamesainslie/wintools/pkg/wintools/schedule"
	"github.com/jamesainslie/wintools/pkg/wintools/settings"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// controlTrigger labels sessions requested over the control channel.
const controlTrigger = "control"

// owner is the running instance. It answers the control channel and keeps
// the latest snapshot for Status.
type owner struct {
	ctx       context.Context
	cancel    context.CancelFunc
	svc       *services
	minimized bool
	startedAt time.Time

	last     atomic.Pointer[metrics.Snapshot]
	activate chan struct{}
	log      *logging.Logger
}

var _ control.Handler = (*owner)(nil)

func newOwner(ctx context.Context, svc *services, minimized bool) *owner {
	ctx, cancel := context.WithCancel(ctx)
	return &owner{
		ctx:       ctx,
		cancel:    cancel,
		svc:       svc,
		minimized: minimized,
		startedAt: time.Now(),
		activate:  make(chan struct{}, 1),
		log:       logging.Get(logging.ComponentControl),
	}
}

// Observe keeps the latest snapshot.
func (o *owner) Observe(s metrics.Snapshot) {
	o.last.Store(&s)
}

func (o *owner) Activate(context.Context) error {
	if o.minimized {
		o.log.Info("activation requested while running minimized")
	}
	select {
	case o.activate <- struct{}{}:
	default:
	}
	return nil
}

func (o *owner) Shutdown(context.Context) error {
	o.log.Info("shutting down on request")
	o.cancel()
	return nil
}

func (o *owner) Status(context.Context) (control.Status, error) {
	st := control.Status{
		PID:       os.Getpid(),
		Version:   version,
		StartedAt: o.startedAt,
		Minimized: o.minimized,
		Sessions:  make(map[types.Kind]types.SessionState),
	}
	if s := o.last.Load(); s != nil {
		st.Snapshot = *s
	}
	for _, k := range o.svc.registry.Kinds() {
		st.Sessions[k] = o.svc.registry.State(k)
	}
	return st, nil
}

// Reclaim starts a session bound to the owner's lifetime, not the
// request's. With Wait it blocks until the record is delivered.
func (o *owner) Reclaim(ctx context.Context, req control.ReclaimRequest) (types.SessionRecord, error) {
	done := make(chan types.SessionRecord, 1)
	id, err := o.svc.registry.Start(o.ctx, req.Kind, controlTrigger, nil, func(rec types.SessionRecord) {
		done <- rec
	})
	if err != nil {
		return types.SessionRecord{}, err
	}
	if !req.Wait {
		return types.SessionRecord{
			ID:        id,
			Kind:      req.Kind,
			State:     types.StateRunning,
			Trigger:   controlTrigger,
			StartedAt: time.Now(),
		}, nil
	}
	select {
	case rec := <-done:
		return rec, nil
	case <-ctx.Done():
		return types.SessionRecord{}, ctx.Err()
	}
}

// runOwner runs every background service, then the dashboard or, when
// minimized, the callback loop, until ctx is done or the user quits.
func runOwner(ctx context.Context, minimized bool) error {
	svc := newServices(cfg, true)
	defer svc.Close()

	sched, err := newScheduler(svc)
	if err != nil {
		return err
	}

	o := newOwner(ctx, svc, minimized)
	defer o.cancel()
	ctx = o.ctx

	var wg sync.WaitGroup
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				o.log.Warn(name+" stopped", "error", err)
			}
		}()
	}

	snapshots := make(chan metrics.Snapshot, 1)
	forward := metrics.ObserverFunc(func(s metrics.Snapshot) {
		select {
		case snapshots <- s:
		default:
		}
	})
	interval := cfg.DashboardInterval()
	if minimized {
		interval = cfg.WidgetInterval()
	}
	monitor := metrics.NewMonitor(svc.sampler, interval, o, svc.telemetry, forward)
	run("monitor", func() error { return monitor.Run(ctx) })

	var srv *control.Server
	if cfg.Control.Enabled {
		srv, err = control.Listen(cfg.SocketPath(), o)
		if err != nil {
			o.log.Warn("control channel unavailable", "error", err)
		} else {
			run("control channel", srv.Serve)
		}
	}

	if cfg.Metrics.Enabled {
		run("metrics endpoint", func() error { return svc.telemetry.Serve(ctx, cfg.Metrics.Addr) })
	}

	run("scheduler", func() error { return sched.Run(ctx) })

	defer func() {
		o.cancel()
		if srv != nil {
			if err := srv.Close(); err != nil {
				o.log.Warn("closing control channel failed", "error", err)
			}
		}
		wg.Wait()
		svc.registry.Wait()
		svc.registry.Dispatcher().Drain()
	}()

	if minimized {
		printVerbose("running minimized, sampling every %s", interval)
		svc.registry.Dispatcher().Run(ctx)
		return nil
	}

	lc := cfg.LoggingConfig()
	lc.Dashboard = true
	if err := logging.Init(lc); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}

	return tui.Run(ctx, tui.Options{
		Title:       cfg.Guard.Title,
		Registry:    svc.registry,
		Snapshots:   snapshots,
		Activations: o.activate,
		Settings:    settings.NewStore(cfg.WidgetPath()),
		Interval:    interval,
	})
}

func newScheduler(svc *services) (*schedule.Scheduler, error) {
	entries := make([]schedule.Entry, 0, len(cfg.Schedule))
	for _, se := range cfg.Schedule {
		e, err := schedule.ParseEntry(se.Kind, se.Spec)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return schedule.New(svc.registry, entries)
}
