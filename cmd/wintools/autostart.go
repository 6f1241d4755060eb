package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/wintools/pkg/wintools/autostart"
)

var autostartCmd = &cobra.Command{
	Use:   "autostart",
	Short: "Start wintools minimized at sign-in",
	Long: `Manage starting wintools minimized when you sign in.

On Windows this is a value under the per-user Run registry key. On other
systems an autostart desktop entry (or a LaunchAgent on macOS) is written.`,
	Args: cobra.NoArgs,
	RunE: runAutostartStatus,
}

var autostartEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Start at sign-in",
	Args:  cobra.NoArgs,
	RunE:  runAutostartEnable,
}

var autostartDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Do not start at sign-in",
	Args:  cobra.NoArgs,
	RunE:  runAutostartDisable,
}

func init() {
	autostartCmd.AddCommand(autostartEnableCmd)
	autostartCmd.AddCommand(autostartDisableCmd)
	rootCmd.AddCommand(autostartCmd)
}

// autostartArgs are the arguments the sign-in launch passes.
func autostartArgs() []string {
	args := []string{"--minimized"}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	return args
}

func runAutostartStatus(cmd *cobra.Command, _ []string) error {
	m, err := autostart.New(autostartArgs())
	if err != nil {
		return err
	}
	st, err := m.Status()
	if err != nil {
		return fmt.Errorf("reading autostart registration: %w", err)
	}

	out := cmd.OutOrStdout()
	if !st.Enabled {
		fmt.Fprintln(out, "Autostart: disabled")
		return nil
	}
	fmt.Fprintln(out, "Autostart: enabled")
	fmt.Fprintf(out, "Command:   %s\n", st.Command)
	fmt.Fprintf(out, "Location:  %s\n", st.Location)
	if st.Command != m.Command() {
		fmt.Fprintf(out, "\nThe registered command differs from this executable; run 'wintools autostart enable' to update it.\n")
	}
	return nil
}

func runAutostartEnable(_ *cobra.Command, _ []string) error {
	m, err := autostart.New(autostartArgs())
	if err != nil {
		return err
	}
	if err := m.Enable(); err != nil {
		return fmt.Errorf("enabling autostart: %w", err)
	}
	printInfo("Autostart enabled: %s", m.Command())
	return nil
}

func runAutostartDisable(_ *cobra.Command, _ []string) error {
	m, err := autostart.New(autostartArgs())
	if err != nil {
		return err
	}
	if err := m.Disable(); err != nil {
		return fmt.Errorf("disabling autostart: %w", err)
	}
	printInfo("Autostart disabled")
	return nil
}
