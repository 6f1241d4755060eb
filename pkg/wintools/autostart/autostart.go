// Package autostart registers wintools to start, minimized, when the user
// signs in. On Windows this is a value under the per-user Run key; elsewhere
// it is a desktop-entry file (or a LaunchAgent on macOS).
package autostart

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValueName is the Run key value and the base name of autostart files.
const ValueName = "WinTools"

// Status reports the current registration.
type Status struct {
	Enabled  bool
	Command  string
	Location string
}

// Manager enables and disables autostart for one executable.
type Manager struct {
	name string
	exe  string
	args []string
	dir  string
}

// Option configures a Manager.
type Option func(*Manager)

// WithDir overrides where autostart files are written. It has no effect on
// Windows, where the registry is used.
func WithDir(dir string) Option {
	return func(m *Manager) { m.dir = dir }
}

// WithExecutable sets the program path. It defaults to os.Executable.
func WithExecutable(path string) Option {
	return func(m *Manager) { m.exe = path }
}

// New returns a Manager that launches the current executable with args.
func New(args []string, opts ...Option) (*Manager, error) {
	m := &Manager{name: ValueName, args: args}
	for _, opt := range opts {
		opt(m)
	}
	if m.exe == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating executable: %w", err)
		}
		m.exe = exe
	}
	if abs, err := filepath.Abs(m.exe); err == nil {
		m.exe = abs
	}
	return m, nil
}

// Command is the command line that autostart runs. The executable is always
// quoted.
func (m *Manager) Command() string {
	parts := []string{`"` + m.exe + `"`}
	for _, a := range m.args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

// Enable registers the command. It overwrites an existing registration.
func (m *Manager) Enable() error { return m.enable() }

// Disable removes the registration. Disabling when not enabled is not an
// error.
func (m *Manager) Disable() error { return m.disable() }

// Status reads the registration back.
func (m *Manager) Status() (Status, error) { return m.status() }

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}
