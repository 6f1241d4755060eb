package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Marshal renders cfg as YAML in the config file layout.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// WriteDefault writes a commented default config to path, or to
// ConfigPath() when path is empty. It reports false without touching the
// file if one already exists.
func WriteDefault(path string) (bool, error) {
	if path == "" {
		path = ConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to check config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# WinTools configuration

memory:
  # Delta thresholds for the improvement label
  significant: %s
  moderate: %s
  # Pause between pipeline stages so the OS can settle
  settle: true

temp:
  # Empty list means the system temp directory plus %%TEMP%%
  dirs: []
  # Top-level files younger than this are kept
  min_age: %s
  # A subdirectory is removed only if every file in it is older than this
  dir_retention: %s

update_cache:
  dir: '%s'

dns:
  # Empty command uses the platform default (ipconfig /flushdns on Windows)
  command: ""
  args: []
  timeout: %s

monitor:
  dashboard_interval: %s
  widget_interval: %s
  # Drive to report; empty means the system drive
  disk_path: ""

guard:
  name: %s
  title: %s
  close_timeout: %s

logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means $XDG_STATE_HOME/wintools/wintools.log)
  path: ""
  # Mirror entries at or above this level to stderr; empty disables
  console: ""
  rotation:
    max_size: 10MiB
    max_age: 14       # days
    max_backups: 3
  components:
    sampler: warn
    sweeper: info
    session: info
    control: info
    schedule: info

history:
  enabled: true
  # Empty means $XDG_DATA_HOME/wintools/history
  path: ""
  retention: %s

control:
  enabled: true
  # Empty means $XDG_RUNTIME_DIR/wintools/control.sock
  socket_path: ""

metrics:
  enabled: false
  addr: %s

# Timed sessions, standard five-field cron specs or descriptors
schedule: []
#  - kind: temp
#    spec: "@daily"
#  - kind: memory
#    spec: "0 */4 * * *"

widget:
  # Empty means widget.json next to this file
  path: ""
`, DefaultSignificant, DefaultModerate, DefaultTempMinAge, DefaultDirRetention,
		DefaultUpdateCacheDir, DefaultDNSTimeout, DefaultDashboardRefresh, DefaultWidgetRefresh,
		DefaultGuardName, DefaultWindowTitle, DefaultCloseTimeout,
		DefaultHistoryRetention, DefaultMetricsAddr)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to write default config: %w", err)
	}
	return true, nil
}
