package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/wintools/pkg/wintools/control"
	"github.com/jamesainslie/wintools/pkg/wintools/output"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// cliTrigger labels sessions run by the reclaim command without an owner.
const cliTrigger = "cli"

var reclaimCmd = &cobra.Command{
	Use:   "reclaim <kind>...",
	Short: "Run reclamation sessions",
	Long: `Run one or more reclamation sessions and print their outcome.

Kinds:
  memory        trim process working sets (aliases: ram, mem)
  temp          remove old files from the temp directories (alias: tmp)
  update-cache  clear the Windows Update download cache (alias: updates)
  dns           flush the DNS resolver cache
  recycle-bin   empty the recycle bin (aliases: trash, bin)

When wintools is already running, the session runs inside it so the
dashboard and history see it. Otherwise it runs in this process.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReclaim,
}

var (
	reclaimOutput outputFlags
	reclaimLocal  bool
)

func init() {
	reclaimOutput.register(reclaimCmd, "pretty")
	reclaimCmd.Flags().BoolVar(&reclaimLocal, "local", false, "run here even if an instance is running")
	rootCmd.AddCommand(reclaimCmd)
}

func runReclaim(cmd *cobra.Command, args []string) error {
	kinds, err := parseKinds(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := "owner"
	records, usedOwner := tryOwnerReclaim(ctx, kinds)
	if !usedOwner {
		source = "local"
		records, err = localReclaim(ctx, kinds)
		if err != nil {
			return err
		}
	}

	result := output.NewResult(source, records)
	if err := reclaimOutput.write(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if failed := result.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d sessions failed", failed, len(records))
	}
	return nil
}

// parseKinds resolves aliases and drops repeats.
func parseKinds(args []string) ([]types.Kind, error) {
	seen := make(map[types.Kind]bool, len(args))
	var kinds []types.Kind
	for _, a := range args {
		k, err := types.ParseKind(a)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// tryOwnerReclaim runs the sessions in the running instance. It reports
// false when there is none, so the caller can run them here.
func tryOwnerReclaim(ctx context.Context, kinds []types.Kind) ([]types.SessionRecord, bool) {
	if reclaimLocal || !cfg.Control.Enabled {
		return nil, false
	}
	c, err := control.Dial(cfg.SocketPath())
	if err != nil {
		printVerbose("no running instance: %v", err)
		return nil, false
	}
	defer c.Close()

	records := make([]types.SessionRecord, 0, len(kinds))
	for i, k := range kinds {
		printVerbose("requesting %s from the running instance", k)
		rec, err := c.Reclaim(ctx, k, true)
		switch {
		case errors.Is(err, control.ErrNoOwner) && i == 0:
			printVerbose("running instance did not answer: %v", err)
			return nil, false
		case err != nil:
			rec = failedRecord(k, err)
		}
		records = append(records, rec)
	}
	return records, true
}

func localReclaim(ctx context.Context, kinds []types.Kind) ([]types.SessionRecord, error) {
	svc := newServices(cfg, true)
	defer svc.Close()

	records := make([]types.SessionRecord, 0, len(kinds))
	for _, k := range kinds {
		if ctx.Err() != nil {
			break
		}
		if !quiet && reclaimOutput.format() == "pretty" {
			printInfo("%s...", k.Title())
		}
		rec, err := svc.registry.RunSync(ctx, k, cliTrigger, func(p types.Progress) {
			printVerbose("%s: %s", k, progressLine(p))
		})
		if err != nil {
			rec = failedRecord(k, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func failedRecord(k types.Kind, err error) types.SessionRecord {
	now := time.Now()
	return types.SessionRecord{
		Kind:       k,
		State:      types.StateFailed,
		StartedAt:  now,
		FinishedAt: now,
		Summary:    fmt.Sprintf("%s not started: %v", k.Title(), err),
		Error:      err.Error(),
	}
}

func progressLine(p types.Progress) string {
	switch {
	case p.Sweep != nil:
		return fmt.Sprintf("%s: %d removed, %s freed", p.Sweep.Target, p.Sweep.ItemsRemoved, types.FormatSize(p.Sweep.BytesFreed))
	case p.Total > 0:
		return fmt.Sprintf("%s (%d/%d)", p.Message, p.Done, p.Total)
	}
	return p.Message
}
