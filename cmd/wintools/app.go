package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/wintools/pkg/wintools/control"
	"github.com/jamesainslie/wintools/pkg/wintools/instance"
)

// runApp is the root command: close the running instance, hand over to
// it, or become the owner.
func runApp(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	guard := newGuard()

	if closeFlag {
		out := guard.Contend(ctx)
		printVerbose("instances found: %d, closed: %d, killed: %d", out.Found, out.Closed, out.Killed)
		if out.Found == 0 {
			printInfo("No running instance")
		}
		return nil
	}

	role, err := guard.Acquire()
	if err != nil {
		return err
	}
	printVerbose("instance role: %s", role)

	if role == instance.Contender {
		guard.ActivateExisting(ctx)
		reportOwner(ctx)
		return nil
	}

	defer func() {
		if err := guard.Release(); err != nil {
			printVerbose("releasing instance token: %v", err)
		}
	}()
	return runOwner(ctx, minimized)
}

func newGuard() *instance.Guard {
	opts := []instance.Option{
		instance.WithTitle(cfg.Guard.Title),
		instance.WithCloseTimeout(cfg.CloseTimeout()),
	}
	if cfg.Guard.LockDir != "" {
		opts = append(opts, instance.WithLockDir(cfg.Guard.LockDir))
	}
	if cfg.Control.Enabled {
		opts = append(opts, instance.WithRemote(control.Remote{SocketPath: cfg.SocketPath()}))
	}
	return instance.New(cfg.Guard.Name, opts...)
}

// reportOwner tells a second launch what the owner is doing. A minimized
// owner has no terminal of its own to come forward in.
func reportOwner(ctx context.Context) {
	printInfo("WinTools is already running")
	if !cfg.Control.Enabled {
		return
	}

	c, err := control.Dial(cfg.SocketPath())
	if err != nil {
		printVerbose("owner not reachable: %v", err)
		return
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, shortTimeout)
	defer cancel()
	st, err := c.Status(ctx)
	if err != nil {
		printVerbose("owner status unavailable: %v", err)
		return
	}
	printVerbose("owner pid %d, version %s", st.PID, st.Version)
	if st.Minimized {
		printInfo("It is running minimized; use 'wintools monitor' to watch it or 'wintools --close' to stop it")
	}
}
