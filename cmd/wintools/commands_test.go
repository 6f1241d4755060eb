package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/wintools/pkg/wintools/config"
	"github.com/jamesainslie/wintools/pkg/wintools/metrics"
	"github.com/jamesainslie/wintools/pkg/wintools/output"
	"github.com/jamesainslie/wintools/pkg/wintools/settings"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

func TestParseKinds(t *testing.T) {
	kinds, err := parseKinds([]string{"ram", "tmp", "memory", "DNS"})
	require.NoError(t, err)
	assert.Equal(t, []types.Kind{types.KindMemory, types.KindTemp, types.KindDNS}, kinds)

	_, err = parseKinds([]string{"temp", "defrag"})
	assert.ErrorIs(t, err, types.ErrUnknownKind)
}

func TestOutputFlags(t *testing.T) {
	rec := types.SessionRecord{ID: "0b7c1f6e-1111", Kind: types.KindDNS, State: types.StateCompleted, Summary: "DNS flush: done"}
	result := output.NewResult("local", []types.SessionRecord{rec})

	var buf bytes.Buffer
	f := outputFlags{name: "pretty"}
	require.NoError(t, f.write(&buf, result))
	assert.Contains(t, buf.String(), "✓ DNS flush: done")

	buf.Reset()
	f.json = true
	assert.Equal(t, "json", f.format())
	require.NoError(t, f.write(&buf, result))
	assert.Contains(t, buf.String(), `"kind": "dns"`)

	buf.Reset()
	f = outputFlags{name: "template", template: "{{range .Records}}{{.Kind}}{{end}}"}
	require.NoError(t, f.write(&buf, result))
	assert.Equal(t, "dns", buf.String())

	assert.Error(t, (&outputFlags{name: "xml"}).write(&buf, result))
}

func TestFailedRecord(t *testing.T) {
	rec := failedRecord(types.KindDNS, errors.New("busy"))
	assert.Equal(t, types.StateFailed, rec.State)
	assert.Equal(t, "busy", rec.Error)
	assert.Contains(t, rec.Summary, "DNS flush")
}

func TestProgressLine(t *testing.T) {
	assert.Equal(t, "trimming (1/4)", progressLine(types.Progress{Message: "trimming", Done: 1, Total: 4}))
	assert.Equal(t, "/tmp: 5 removed, 2.0 KiB freed",
		progressLine(types.Progress{Sweep: &types.SweepProgress{Target: "/tmp", ItemsRemoved: 5, BytesFreed: 2048}}))
}

func TestPrintSample(t *testing.T) {
	var buf bytes.Buffer
	printSample(&buf, metrics.Snapshot{
		Memory:     types.NewMemorySnapshot(8*uint64(types.GiB), 2*uint64(types.GiB), time.Now()),
		CPUPercent: 7.3,
		Disk:       metrics.DiskUsage{Used: 1, Total: 4},
		Processes:  2048,
		TakenAt:    time.Date(2026, 5, 1, 14, 3, 9, 0, time.Local),
	})

	out := buf.String()
	assert.Contains(t, out, "14:03:09")
	assert.Contains(t, out, "7.3%")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "2.0 GiB of 8.0 GiB")
	assert.Contains(t, out, "25.0%")
	assert.Contains(t, out, "2,048")
}

func withConfig(t *testing.T) {
	t.Helper()
	prev := cfg
	cfg = config.Default()
	cfg.Widget.Path = filepath.Join(t.TempDir(), settings.FileName)
	t.Cleanup(func() { cfg = prev })
}

func TestWidgetCommands(t *testing.T) {
	withConfig(t)

	var buf bytes.Buffer
	widgetMoveCmd.SetOut(&buf)
	require.NoError(t, runWidgetMove(widgetMoveCmd, []string{"120", "48.5"}))
	assert.Contains(t, buf.String(), "Position: 120, 48.5")

	buf.Reset()
	widgetShowCmd.SetOut(&buf)
	require.NoError(t, widgetShowCmd.RunE(widgetShowCmd, nil))
	assert.Contains(t, buf.String(), "Widget:   shown")

	w := settings.NewStore(cfg.WidgetPath()).Load()
	assert.Equal(t, settings.Widget{Enabled: true, Left: 120, Top: 48.5}, w)

	assert.Error(t, runWidgetMove(widgetMoveCmd, []string{"left", "0"}))
}

func TestAutostartArgs(t *testing.T) {
	prev := cfgFile
	t.Cleanup(func() { cfgFile = prev })

	cfgFile = ""
	assert.Equal(t, []string{"--minimized"}, autostartArgs())

	cfgFile = "/etc/wintools.yaml"
	assert.Equal(t, []string{"--minimized", "--config", "/etc/wintools.yaml"}, autostartArgs())
}

func TestRootCommandTree(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"reclaim", "monitor", "widget", "history", "autostart", "config", "version"} {
		assert.True(t, names[want], "missing %s command", want)
	}

	require.NotNil(t, rootCmd.Flags().Lookup("minimized"))
	require.NotNil(t, rootCmd.Flags().Lookup("close"))
}
