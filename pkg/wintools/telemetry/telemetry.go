// Package telemetry exposes sampler readings and session outcomes as
// Prometheus metrics.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jamesainslie/wintools/pkg/wintools/metrics"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// Namespace prefixes every metric name.
const Namespace = "wintools"

// Metrics holds the registered collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	memTotal     prometheus.Gauge
	memAvailable prometheus.Gauge
	cpuPercent   prometheus.Gauge
	diskUsed     prometheus.Gauge
	diskTotal    prometheus.Gauge
	processes    prometheus.Gauge

	sessions        *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	bytesReclaimed  *prometheus.CounterVec
	busyRejections  *prometheus.CounterVec
}

var _ metrics.Observer = (*Metrics)(nil)

// New registers the collectors with reg. A nil reg creates a private
// registry, which keeps tests independent of the global one.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: Namespace, Name: name, Help: help})
	}

	m := &Metrics{
		gatherer:     reg,
		memTotal:     gauge("memory_total_bytes", "Installed physical memory"),
		memAvailable: gauge("memory_available_bytes", "Validated available physical memory"),
		cpuPercent:   gauge("cpu_percent", "Machine-wide CPU utilisation"),
		diskUsed:     gauge("disk_used_bytes", "Used bytes on the system drive"),
		diskTotal:    gauge("disk_total_bytes", "Size of the system drive"),
		processes:    gauge("processes", "Running process count"),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_total",
			Help:      "Reclamation sessions by kind and terminal state",
		}, []string{"kind", "state"}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time of reclamation sessions",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"kind"}),
		bytesReclaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reclaimed_bytes_total",
			Help:      "Bytes freed by sweeps and positive memory deltas",
		}, []string{"kind"}),
		busyRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "busy_rejections_total",
			Help:      "Session requests rejected because the kind was already running",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.memTotal, m.memAvailable, m.cpuPercent,
		m.diskUsed, m.diskTotal, m.processes,
		m.sessions, m.sessionDuration, m.bytesReclaimed, m.busyRejections,
	)
	return m
}

// Observe records a sampler snapshot.
func (m *Metrics) Observe(s metrics.Snapshot) {
	m.memTotal.Set(float64(s.Memory.Total))
	m.memAvailable.Set(float64(s.Memory.Available))
	m.cpuPercent.Set(s.CPUPercent)
	m.diskUsed.Set(float64(s.Disk.Used))
	m.diskTotal.Set(float64(s.Disk.Total))
	m.processes.Set(float64(s.Processes))
}

// SessionFinished records a terminal session. freed is ignored when not
// positive.
func (m *Metrics) SessionFinished(kind types.Kind, state string, elapsed time.Duration, freed int64) {
	m.sessions.WithLabelValues(string(kind), state).Inc()
	m.sessionDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	if freed > 0 {
		m.bytesReclaimed.WithLabelValues(string(kind)).Add(float64(freed))
	}
}

// SessionBusy records a rejected duplicate request.
func (m *Metrics) SessionBusy(kind types.Kind) {
	m.busyRejections.WithLabelValues(string(kind)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves /metrics until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving metrics: %w", err)
	}
	return nil
}
