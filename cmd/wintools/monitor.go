package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/wintools/pkg/wintools/metrics"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print resource samples",
	Long: `Print CPU, memory, disk and process samples without the dashboard.

Runs until interrupted unless --count is given. Works alongside a running
instance; each sampler reads the counters independently.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

var (
	monitorInterval time.Duration
	monitorCount    int
	monitorJSON     bool
)

func init() {
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", 0, "sampling interval (default: monitor.widget_interval)")
	monitorCmd.Flags().IntVarP(&monitorCount, "count", "n", 0, "stop after this many samples (0 = until interrupted)")
	monitorCmd.Flags().BoolVarP(&monitorJSON, "json", "j", false, "print one JSON object per sample")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	interval := monitorInterval
	if interval <= 0 {
		interval = cfg.WidgetInterval()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sampler := metrics.NewSampler(metrics.GopsutilSource{}, metrics.WithDiskPath(diskPath(cfg)))
	out := cmd.OutOrStdout()
	if !monitorJSON {
		printSampleHeader(out)
	}

	n := 0
	var writeErr error
	obs := metrics.ObserverFunc(func(s metrics.Snapshot) {
		if monitorJSON {
			writeErr = json.NewEncoder(out).Encode(s)
		} else {
			printSample(out, s)
		}
		n++
		if writeErr != nil || (monitorCount > 0 && n >= monitorCount) {
			cancel()
		}
	})

	err := metrics.NewMonitor(sampler, interval, obs).Run(ctx)
	if writeErr != nil {
		return writeErr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printSampleHeader(w io.Writer) {
	fmt.Fprintf(w, "%-8s  %6s  %6s  %-21s  %6s  %s\n", "TIME", "CPU", "RAM", "AVAILABLE", "DISK", "PROCS")
}

func printSample(w io.Writer, s metrics.Snapshot) {
	fmt.Fprintf(w, "%-8s  %5.1f%%  %5.1f%%  %-21s  %5.1f%%  %s\n",
		s.TakenAt.Format("15:04:05"),
		s.CPUPercent,
		s.Memory.UsedPercent(),
		types.FormatSize(int64(s.Memory.Available))+" of "+types.FormatSize(int64(s.Memory.Total)),
		s.Disk.UsedPercent(),
		humanize.Comma(int64(s.Processes)))
}
