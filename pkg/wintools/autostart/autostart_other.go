//go:build !windows

package autostart

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"github.com/adrg/xdg"
)

var desktopEntry = template.Must(template.New("desktop").Parse(`[Desktop Entry]
Type=Application
Name={{.Name}}
Comment=Resource reclamation and monitoring
Exec={{.Command}}
Terminal=false
X-GNOME-Autostart-enabled=true
`))

var launchAgent = template.Must(template.New("plist").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
{{- range .Argv}}
		<string>{{.}}</string>
{{- end}}
	</array>
	<key>RunAtLoad</key>
	<true/>
</dict>
</plist>
`))

func (m *Manager) launchd() bool { return runtime.GOOS == "darwin" && m.dir == "" }

func (m *Manager) location() string {
	if m.launchd() {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "LaunchAgents", m.label()+".plist")
	}
	dir := m.dir
	if dir == "" {
		dir = filepath.Join(xdg.ConfigHome, "autostart")
	}
	return filepath.Join(dir, strings.ToLower(m.name)+".desktop")
}

func (m *Manager) label() string { return "io.wintools." + strings.ToLower(m.name) }

func (m *Manager) render() ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if m.launchd() {
		err = launchAgent.Execute(&buf, struct {
			Label string
			Argv  []string
		}{m.label(), append([]string{m.exe}, m.args...)})
	} else {
		err = desktopEntry.Execute(&buf, struct{ Name, Command string }{m.name, m.Command()})
	}
	return buf.Bytes(), err
}

func (m *Manager) enable() error {
	data, err := m.render()
	if err != nil {
		return fmt.Errorf("rendering autostart entry: %w", err)
	}
	path := m.location()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating autostart directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (m *Manager) disable() error {
	if err := os.Remove(m.location()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", m.location(), err)
	}
	return nil
}

func (m *Manager) status() (Status, error) {
	st := Status{Location: m.location()}
	data, err := os.ReadFile(st.Location)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("reading %s: %w", st.Location, err)
	}
	st.Enabled = true
	if m.launchd() {
		st.Command = m.Command()
		return st, nil
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if cmd, ok := strings.CutPrefix(sc.Text(), "Exec="); ok {
			st.Command = cmd
		}
	}
	return st, nil
}
