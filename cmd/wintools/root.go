package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/wintools/pkg/wintools/config"
	"github.com/jamesainslie/wintools/pkg/wintools/logging"
)

var (
	cfgFile   string
	minimized bool
	closeFlag bool
	verbose   bool
	quiet     bool

	// cfg is loaded before any command runs.
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "wintools",
		Short: "Monitor resource usage and reclaim memory and disk space",
		Long: `WinTools shows live CPU, memory, disk and process counts and runs
reclamation sessions: working-set trimming, temp and update-cache cleanup,
DNS cache flush and recycle bin emptying.

Only one instance runs at a time. Starting wintools again brings the running
instance forward; --close shuts it down.

Examples:
  wintools                   # Start with the dashboard
  wintools --minimized       # Start in the background (used by autostart)
  wintools --close           # Close the running instance
  wintools reclaim memory    # Trim working sets now
  wintools reclaim temp      # Remove old temp files
  wintools history           # View past sessions`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initConfig,
		RunE:              runApp,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: "+config.ConfigPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug output on stderr")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "minimal output")

	rootCmd.Flags().BoolVar(&minimized, "minimized", false, "start without the dashboard")
	rootCmd.Flags().BoolVar(&closeFlag, "close", false, "close the running instance and exit")
	rootCmd.MarkFlagsMutuallyExclusive("minimized", "close")
}

// initConfig loads configuration and starts logging for every command.
func initConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	lc := cfg.LoggingConfig()
	if verbose {
		lc.Console = "debug"
	} else if quiet {
		lc.Console = ""
	}
	if err := logging.Init(lc); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	defer func() { _ = logging.Close() }()
	err := rootCmd.Execute()
	if err != nil {
		printError("%v", err)
	}
	return err
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
