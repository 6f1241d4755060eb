// Package config provides configuration management for wintools.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Default configuration values.
const (
	DefaultSignificant = "50MiB"
	DefaultModerate    = "10MiB"

	DefaultTempMinAge       = "1d"
	DefaultDirRetention     = "7d"
	DefaultUpdateCacheDir   = `C:\Windows\SoftwareDistribution\Download`
	DefaultDNSTimeout       = "30s"
	DefaultDashboardRefresh = "1s"
	DefaultWidgetRefresh    = "2s"

	DefaultGuardName    = "WinTools_SingleInstance_Mutex"
	DefaultWindowTitle  = "WinTools"
	DefaultCloseTimeout = "3s"

	DefaultHistoryRetention = "30d"
	DefaultMetricsAddr      = "127.0.0.1:9182"
)

// DefaultTempDirs returns the system temp directory plus %TEMP% when the two
// differ.
func DefaultTempDirs() []string {
	dirs := []string{os.TempDir()}
	if env := os.Getenv("TEMP"); env != "" && !samePath(env, dirs[0]) {
		dirs = append(dirs, env)
	}
	return dirs
}

func samePath(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}
