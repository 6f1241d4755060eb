package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/wintools/pkg/wintools/settings"
)

var widgetCmd = &cobra.Command{
	Use:   "widget",
	Short: "Show or change the widget settings",
	Long: `Show or change the compact widget settings.

The settings live in widget.json next to the config file. A running
instance picks up changes immediately.`,
	Args: cobra.NoArgs,
	RunE: runWidgetStatus,
}

var widgetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the widget settings",
	Args:  cobra.NoArgs,
	RunE:  runWidgetStatus,
}

var widgetShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Enable the widget",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return updateWidget(cmd, func(w *settings.Widget) { w.Enabled = true })
	},
}

var widgetHideCmd = &cobra.Command{
	Use:   "hide",
	Short: "Disable the widget",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return updateWidget(cmd, func(w *settings.Widget) { w.Enabled = false })
	},
}

var widgetMoveCmd = &cobra.Command{
	Use:   "move <left> <top>",
	Short: "Set the widget position",
	Args:  cobra.ExactArgs(2),
	RunE:  runWidgetMove,
}

func init() {
	widgetCmd.AddCommand(widgetStatusCmd)
	widgetCmd.AddCommand(widgetShowCmd)
	widgetCmd.AddCommand(widgetHideCmd)
	widgetCmd.AddCommand(widgetMoveCmd)
	rootCmd.AddCommand(widgetCmd)
}

func widgetStore() *settings.Store {
	return settings.NewStore(cfg.WidgetPath())
}

func runWidgetStatus(cmd *cobra.Command, _ []string) error {
	store := widgetStore()
	printWidget(cmd, store.Path(), store.Load())
	return nil
}

func runWidgetMove(cmd *cobra.Command, args []string) error {
	left, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid left %q: %w", args[0], err)
	}
	top, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid top %q: %w", args[1], err)
	}
	return updateWidget(cmd, func(w *settings.Widget) {
		w.Left = left
		w.Top = top
	})
}

func updateWidget(cmd *cobra.Command, fn func(*settings.Widget)) error {
	store := widgetStore()
	w, err := store.Update(fn)
	if err != nil {
		return fmt.Errorf("saving widget settings: %w", err)
	}
	printWidget(cmd, store.Path(), w)
	return nil
}

func printWidget(cmd *cobra.Command, path string, w settings.Widget) {
	out := cmd.OutOrStdout()
	state := "hidden"
	if w.Enabled {
		state = "shown"
	}
	fmt.Fprintf(out, "Widget:   %s\n", state)
	fmt.Fprintf(out, "Position: %g, %g\n", w.Left, w.Top)
	printVerbose("settings file: %s", path)
}
