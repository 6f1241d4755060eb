package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/wintools/pkg/wintools/history"
	"github.com/jamesainslie/wintools/pkg/wintools/output"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View session history",
	Long: `View the history of reclamation sessions.

Every session that reaches a terminal state is recorded, whether it was
started from the dashboard, the schedule, or the reclaim command. The
database is locked while wintools runs; stop it or use the dashboard.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of a session",
	Long:  `Display a session record. Any unique prefix of the id is accepted.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old history entries",
	Long:  `Remove entries older than --older-than, or every entry with --all.`,
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var (
	historyLimit     int
	historyKind      string
	historyFailed    bool
	historySince     string
	historyOutput    outputFlags
	historyShowOut   outputFlags
	historyOlderThan string
	historyAll       bool
)

func init() {
	for _, c := range []*cobra.Command{historyCmd, historyListCmd} {
		c.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")
		c.Flags().StringVarP(&historyKind, "kind", "k", "", "only sessions of this kind")
		c.Flags().BoolVar(&historyFailed, "failed", false, "only failed sessions")
		c.Flags().StringVar(&historySince, "since", "", "only sessions started within this duration, e.g. 7d")
		// "table" is the summary view below, not a registered formatter.
		historyOutput.register(c, "table")
	}

	historyShowOut.register(historyShowCmd, "pretty")

	historyCleanCmd.Flags().StringVar(&historyOlderThan, "older-than", "", "remove entries older than this (default: history.retention)")
	historyCleanCmd.Flags().BoolVar(&historyAll, "all", false, "remove every entry")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

func historyFilter() (history.Filter, error) {
	f := history.Filter{Limit: historyLimit}
	if historyKind != "" {
		k, err := types.ParseKind(historyKind)
		if err != nil {
			return f, err
		}
		f.Kind = k
	}
	if historyFailed {
		f.State = types.StateFailed
	}
	if historySince != "" {
		d, err := types.ParseDuration(historySince)
		if err != nil {
			return f, err
		}
		f.Since = time.Now().Add(-d)
	}
	return f, nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	f, err := historyFilter()
	if err != nil {
		return err
	}

	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(f)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	out := cmd.OutOrStdout()
	if historyOutput.format() != "table" {
		return historyOutput.write(out, output.NewResult("history", records))
	}

	if len(records) == 0 {
		printInfo("No history entries found.")
		printInfo("Run 'wintools reclaim <kind>' or start a session from the dashboard.")
		return nil
	}

	now := time.Now()
	fmt.Fprintf(out, "\n%-8s  %-12s  %-10s  %-9s  %-10s  %s\n", "ID", "KIND", "STATE", "FREED", "TRIGGER", "WHEN")
	fmt.Fprintln(out, strings.Repeat("-", 72))
	for _, rec := range records {
		fmt.Fprintf(out, "%-8s  %-12s  %-10s  %-9s  %-10s  %s\n",
			history.ShortID(rec.ID),
			rec.Kind,
			rec.State,
			types.FormatSize(rec.BytesFreed),
			rec.Trigger,
			humanize.RelTime(rec.StartedAt, now, "ago", "from now"))
	}
	fmt.Fprintln(out, strings.Repeat("-", 72))

	totals := history.Totals(records)
	kinds := make([]types.Kind, 0, len(totals))
	for k := range totals {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		t := totals[k]
		fmt.Fprintf(out, "%-22s %3d sessions, %d failed, %s freed\n", k.Title()+":", t.Sessions, t.Failed, types.FormatSize(t.BytesFreed))
	}

	fmt.Fprintf(out, "\nShowing %d entries. Use --limit to see more.\n", len(records))
	fmt.Fprintln(out, "Use 'wintools history show <id>' for details on a specific entry.")
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}

	out := cmd.OutOrStdout()
	result := output.NewResult("history", []types.SessionRecord{rec})
	if historyShowOut.format() != "pretty" {
		return historyShowOut.write(out, result)
	}

	fmt.Fprintln(out, "\nSession Details")
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "ID:        %s\n", rec.ID)
	fmt.Fprintf(out, "Kind:      %s\n", rec.Kind.Title())
	fmt.Fprintf(out, "Trigger:   %s\n", rec.Trigger)
	fmt.Fprintf(out, "Started:   %s\n", rec.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintln(out)
	if err := historyShowOut.write(out, result); err != nil {
		return err
	}

	if s := rec.Sweep; s != nil && len(s.Skipped) > 0 {
		const limit = 50
		fmt.Fprintln(out, "\nSkipped:")
		fmt.Fprintln(out, strings.Repeat("-", 60))
		for i, it := range s.Skipped {
			if i == limit {
				fmt.Fprintf(out, "... and %d more\n", len(s.Skipped)-limit)
				break
			}
			fmt.Fprintf(out, "%-12s  %s\n", it.Reason, it.Path)
		}
	}
	return nil
}

func runHistoryClean(_ *cobra.Command, _ []string) error {
	var cutoff time.Time
	if !historyAll {
		retention := cfg.HistoryRetention()
		if historyOlderThan != "" {
			d, err := types.ParseDuration(historyOlderThan)
			if err != nil {
				return err
			}
			retention = d
		}
		cutoff = time.Now().Add(-retention)
	}

	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Clean(cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}
	printInfo("Removed %d history entries", n)
	return nil
}
