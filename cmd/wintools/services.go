package main

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jamesainslie/wintools/pkg/wintools/config"
	"github.com/jamesainslie/wintools/pkg/wintools/history"
	"github.com/jamesainslie/wintools/pkg/wintools/metrics"
	"github.com/jamesainslie/wintools/pkg/wintools/reclaimer"
	"github.com/jamesainslie/wintools/pkg/wintools/recyclebin"
	"github.com/jamesainslie/wintools/pkg/wintools/session"
	"github.com/jamesainslie/wintools/pkg/wintools/sweeper"
	"github.com/jamesainslie/wintools/pkg/wintools/telemetry"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// services holds the subsystems shared by the owner and one-shot commands.
type services struct {
	sampler   *metrics.Sampler
	registry  *session.Registry
	telemetry *telemetry.Metrics
	history   *history.Store
}

// newServices builds the sampler and a registry with every session kind.
// History is opened only when withHistory is set and enabled in config;
// failing to open it is logged and the session still runs.
func newServices(c *config.Config, withHistory bool) *services {
	s := &services{
		sampler:   metrics.NewSampler(metrics.GopsutilSource{}, metrics.WithDiskPath(diskPath(c))),
		telemetry: telemetry.New(prometheus.NewRegistry()),
	}

	opts := []session.Option{session.WithTelemetry(s.telemetry)}
	if withHistory && c.History.Enabled {
		store, err := history.Open(c.HistoryPath(), history.WithRetention(c.HistoryRetention()))
		if err != nil {
			printVerbose("history unavailable: %v", err)
		} else {
			s.history = store
			opts = append(opts, session.WithRecorder(store))
		}
	}

	s.registry = session.NewRegistry(session.NewDispatcher(), opts...)
	registerRunners(s.registry, s.sampler, c)
	return s
}

func registerRunners(r *session.Registry, sampler *metrics.Sampler, c *config.Config) {
	var memOpts []reclaimer.Option
	if !c.Memory.Settle {
		memOpts = append(memOpts, reclaimer.WithSettle(reclaimer.Settle{}))
	}
	r.Register(types.KindMemory, session.MemoryRunner{
		Source:     sampler,
		Options:    memOpts,
		Thresholds: c.Thresholds(),
	})

	r.Register(types.KindTemp, session.SweepRunner{
		Kind:    types.KindTemp,
		Targets: c.TempTargets(),
		MinAge:  c.TempMinAge(),
		Options: []sweeper.Option{
			sweeper.WithDirRetention(c.DirRetention()),
			sweeper.WithExclude(c.TempExclude()),
		},
	})
	r.Register(types.KindUpdateCache, session.SweepRunner{
		Kind:    types.KindUpdateCache,
		Targets: c.UpdateCacheTargets(),
	})

	dns := session.DNSFlushRunner()
	if c.DNS.Command != "" {
		dns.Name = c.DNS.Command
		dns.Args = c.DNS.Args
	}
	dns.Timeout = c.DNSTimeout()
	r.Register(types.KindDNS, dns)

	r.Register(types.KindRecycleBin, session.RecycleBinRunner{Bin: recyclebin.New()})
}

func diskPath(c *config.Config) string {
	if c.Monitor.DiskPath != "" {
		return config.ExpandPath(c.Monitor.DiskPath)
	}
	return metrics.DefaultDiskPath()
}

func (s *services) Close() {
	if s.history == nil {
		return
	}
	if err := s.history.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "closing history: %v\n", err)
	}
}

// openHistory opens the store for the history subcommands.
func openHistory() (*history.Store, error) {
	store, err := history.Open(cfg.HistoryPath(), history.WithRetention(cfg.HistoryRetention()))
	if err != nil {
		return nil, fmt.Errorf("opening history at %s (is wintools running?): %w", cfg.HistoryPath(), err)
	}
	return store, nil
}

// shortTimeout bounds control channel calls that should answer at once.
const shortTimeout = 5 * time.Second
