package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/jamesainslie/wintools/pkg/wintools/logging"
	"github.com/jamesainslie/wintools/pkg/wintools/sweeper"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level" yaml:"level"`
	Path       string            `mapstructure:"path" yaml:"path"`
	Console    string            `mapstructure:"console" yaml:"console"`
	Rotation   RotationConfig    `mapstructure:"rotation" yaml:"rotation"`
	Components map[string]string `mapstructure:"components" yaml:"components"`
}

// MemoryConfig configures memory reclamation.
type MemoryConfig struct {
	Significant string `mapstructure:"significant" yaml:"significant"`
	Moderate    string `mapstructure:"moderate" yaml:"moderate"`

	// Settle disables the pauses between stages when false.
	Settle bool `mapstructure:"settle" yaml:"settle"`
}

// TempConfig configures temp cleanup.
type TempConfig struct {
	Dirs         []string `mapstructure:"dirs" yaml:"dirs"`
	MinAge       string   `mapstructure:"min_age" yaml:"min_age"`
	DirRetention string   `mapstructure:"dir_retention" yaml:"dir_retention"`

	// Exclude lists file name globs that are never deleted, e.g. "*.lock".
	Exclude []string `mapstructure:"exclude" yaml:"exclude"`
}

// UpdateCacheConfig configures update cache cleanup.
type UpdateCacheConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// DNSConfig overrides the resolver flush command.
type DNSConfig struct {
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args"`
	Timeout string   `mapstructure:"timeout" yaml:"timeout"`
}

// MonitorConfig configures sampling.
type MonitorConfig struct {
	DashboardInterval string `mapstructure:"dashboard_interval" yaml:"dashboard_interval"`
	WidgetInterval    string `mapstructure:"widget_interval" yaml:"widget_interval"`
	DiskPath          string `mapstructure:"disk_path" yaml:"disk_path"`
}

// GuardConfig configures the single-instance guard.
type GuardConfig struct {
	Name         string `mapstructure:"name" yaml:"name"`
	Title        string `mapstructure:"title" yaml:"title"`
	CloseTimeout string `mapstructure:"close_timeout" yaml:"close_timeout"`
	LockDir      string `mapstructure:"lock_dir" yaml:"lock_dir"`
}

// HistoryConfig configures the session history store.
type HistoryConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Path      string `mapstructure:"path" yaml:"path"`
	Retention string `mapstructure:"retention" yaml:"retention"`
}

// ControlConfig configures the local control channel.
type ControlConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	SocketPath string `mapstructure:"socket_path" yaml:"socket_path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// ScheduleEntry triggers a session kind on a cron spec.
type ScheduleEntry struct {
	Kind string `mapstructure:"kind" yaml:"kind"`
	Spec string `mapstructure:"spec" yaml:"spec"`
}

// WidgetConfig locates the widget settings file.
type WidgetConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// Config represents the application configuration.
type Config struct {
	Memory      MemoryConfig      `mapstructure:"memory" yaml:"memory"`
	Temp        TempConfig        `mapstructure:"temp" yaml:"temp"`
	UpdateCache UpdateCacheConfig `mapstructure:"update_cache" yaml:"update_cache"`
	DNS         DNSConfig         `mapstructure:"dns" yaml:"dns"`
	Monitor     MonitorConfig     `mapstructure:"monitor" yaml:"monitor"`
	Guard       GuardConfig       `mapstructure:"guard" yaml:"guard"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	History     HistoryConfig     `mapstructure:"history" yaml:"history"`
	Control     ControlConfig     `mapstructure:"control" yaml:"control"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Schedule    []ScheduleEntry   `mapstructure:"schedule" yaml:"schedule"`
	Widget      WidgetConfig      `mapstructure:"widget" yaml:"widget"`

	// Parsed by validate.
	thresholds        types.Thresholds
	tempMinAge        time.Duration
	tempExclude       *sweeper.Exclude
	dirRetention      time.Duration
	dnsTimeout        time.Duration
	dashboardInterval time.Duration
	widgetInterval    time.Duration
	closeTimeout      time.Duration
	historyRetention  time.Duration
	logMaxSize        int64
}

// Load loads configuration from file and environment variables.
// The file is $XDG_CONFIG_HOME/wintools/config.yaml; an explicit path
// overrides it. Environment variables use the WINTOOLS_ prefix, for example
// WINTOOLS_TEMP_MIN_AGE.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(ConfigDir())
	}

	v.SetEnvPrefix("WINTOOLS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or environment
// overrides exist.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not unmarshal: %v", err))
	}
	if err := cfg.validate(); err != nil {
		panic(fmt.Sprintf("config defaults are invalid: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("memory.significant", DefaultSignificant)
	v.SetDefault("memory.moderate", DefaultModerate)
	v.SetDefault("memory.settle", true)

	v.SetDefault("temp.dirs", DefaultTempDirs())
	v.SetDefault("temp.min_age", DefaultTempMinAge)
	v.SetDefault("temp.dir_retention", DefaultDirRetention)
	v.SetDefault("temp.exclude", []string{})

	v.SetDefault("update_cache.dir", DefaultUpdateCacheDir)

	v.SetDefault("dns.command", "")
	v.SetDefault("dns.args", []string{})
	v.SetDefault("dns.timeout", DefaultDNSTimeout)

	v.SetDefault("monitor.dashboard_interval", DefaultDashboardRefresh)
	v.SetDefault("monitor.widget_interval", DefaultWidgetRefresh)
	v.SetDefault("monitor.disk_path", "")

	v.SetDefault("guard.name", DefaultGuardName)
	v.SetDefault("guard.title", DefaultWindowTitle)
	v.SetDefault("guard.close_timeout", DefaultCloseTimeout)
	v.SetDefault("guard.lock_dir", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.console", "")
	v.SetDefault("logging.rotation.max_size", "10MiB")
	v.SetDefault("logging.rotation.max_age", 14)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.components", map[string]string{
		logging.ComponentSampler:  "warn",
		logging.ComponentSweeper:  "info",
		logging.ComponentSession:  "info",
		logging.ComponentControl:  "info",
		logging.ComponentSchedule: "info",
	})

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("history.retention", DefaultHistoryRetention)

	v.SetDefault("control.enabled", true)
	v.SetDefault("control.socket_path", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", DefaultMetricsAddr)

	v.SetDefault("schedule", []ScheduleEntry{})

	v.SetDefault("widget.path", "")
}

func (c *Config) validate() error {
	var errs []error
	size := func(key, s string) int64 {
		n, err := types.ParseSize(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return n
	}
	dur := func(key, s string) time.Duration {
		d, err := types.ParseDuration(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}

	c.thresholds = types.Thresholds{
		Significant: size("memory.significant", c.Memory.Significant),
		Moderate:    size("memory.moderate", c.Memory.Moderate),
	}
	if c.thresholds.Moderate > c.thresholds.Significant {
		errs = append(errs, errors.New("memory.moderate exceeds memory.significant"))
	}
	c.tempMinAge = dur("temp.min_age", c.Temp.MinAge)
	c.dirRetention = dur("temp.dir_retention", c.Temp.DirRetention)
	if ex, err := sweeper.CompileExclude(c.Temp.Exclude...); err != nil {
		errs = append(errs, fmt.Errorf("temp.exclude: %w", err))
	} else {
		c.tempExclude = ex
	}
	c.dnsTimeout = dur("dns.timeout", c.DNS.Timeout)
	c.dashboardInterval = dur("monitor.dashboard_interval", c.Monitor.DashboardInterval)
	c.widgetInterval = dur("monitor.widget_interval", c.Monitor.WidgetInterval)
	c.closeTimeout = dur("guard.close_timeout", c.Guard.CloseTimeout)
	c.historyRetention = dur("history.retention", c.History.Retention)
	c.logMaxSize = size("logging.rotation.max_size", c.Logging.Rotation.MaxSize)

	if c.dashboardInterval <= 0 || c.widgetInterval <= 0 {
		errs = append(errs, errors.New("monitor intervals must be positive"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for i, e := range c.Schedule {
		if _, err := types.ParseKind(e.Kind); err != nil {
			errs = append(errs, fmt.Errorf("schedule[%d].kind: %w", i, err))
		}
		if _, err := parser.Parse(e.Spec); err != nil {
			errs = append(errs, fmt.Errorf("schedule[%d].spec %q: %w", i, e.Spec, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Thresholds returns the parsed improvement thresholds.
func (c *Config) Thresholds() types.Thresholds { return c.thresholds }

// TempMinAge is the minimum age for top-level temp files.
func (c *Config) TempMinAge() time.Duration { return c.tempMinAge }

// TempExclude matches temp files that are never deleted. It is nil when
// no patterns are configured.
func (c *Config) TempExclude() *sweeper.Exclude { return c.tempExclude }

// DirRetention is the age every file in a temp subdirectory must exceed.
func (c *Config) DirRetention() time.Duration { return c.dirRetention }

// DNSTimeout bounds the flush command.
func (c *Config) DNSTimeout() time.Duration { return c.dnsTimeout }

// DashboardInterval is the dashboard sampling cadence.
func (c *Config) DashboardInterval() time.Duration { return c.dashboardInterval }

// WidgetInterval is the widget and background sampling cadence.
func (c *Config) WidgetInterval() time.Duration { return c.widgetInterval }

// CloseTimeout is how long --close waits before killing.
func (c *Config) CloseTimeout() time.Duration { return c.closeTimeout }

// HistoryRetention is the TTL for history records.
func (c *Config) HistoryRetention() time.Duration { return c.historyRetention }

// TempTargets returns the temp directories as non-recursive targets,
// skipping duplicates. An empty list selects DefaultTempDirs.
func (c *Config) TempTargets() []types.SweepTarget {
	dirs := c.Temp.Dirs
	if len(dirs) == 0 {
		dirs = DefaultTempDirs()
	}
	var out []types.SweepTarget
	for _, d := range dirs {
		d = ExpandPath(d)
		if d == "" {
			continue
		}
		dup := false
		for _, t := range out {
			if samePath(t.Path, d) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, types.SweepTarget{Path: d})
		}
	}
	return out
}

// UpdateCacheTargets returns the update download cache as a recursive
// target.
func (c *Config) UpdateCacheTargets() []types.SweepTarget {
	if c.UpdateCache.Dir == "" {
		return nil
	}
	return []types.SweepTarget{{Path: ExpandPath(c.UpdateCache.Dir), Recursive: true}}
}

// LoggingConfig converts the logging section for logging.Init.
func (c *Config) LoggingConfig() logging.Config {
	path := c.Logging.Path
	if path == "" {
		path = DefaultLogPath()
	}
	return logging.Config{
		Level:      c.Logging.Level,
		Path:       ExpandPath(path),
		Console:    c.Logging.Console,
		Components: c.Logging.Components,
		Rotation: logging.RotationConfig{
			MaxSize:    c.logMaxSize,
			MaxAge:     c.Logging.Rotation.MaxAge,
			MaxBackups: c.Logging.Rotation.MaxBackups,
		},
	}
}

// HistoryPath returns the history database directory.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return ExpandPath(c.History.Path)
	}
	return DefaultHistoryPath()
}

// SocketPath returns the control socket path.
func (c *Config) SocketPath() string {
	if c.Control.SocketPath != "" {
		return ExpandPath(c.Control.SocketPath)
	}
	return DefaultSocketPath()
}

// WidgetPath returns the widget settings file.
func (c *Config) WidgetPath() string {
	if c.Widget.Path != "" {
		return ExpandPath(c.Widget.Path)
	}
	return filepath.Join(ConfigDir(), "widget.json")
}

// ConfigDir returns $XDG_CONFIG_HOME/wintools.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "wintools")
}

// ConfigPath returns the default config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns $XDG_DATA_HOME/wintools for the history database.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "wintools")
}

// StateDir returns $XDG_STATE_HOME/wintools for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "wintools")
}

// DefaultSocketPath returns the control socket in the runtime directory.
func DefaultSocketPath() string {
	return filepath.Join(xdg.RuntimeDir, "wintools", "control.sock")
}

// DefaultHistoryPath returns the default history database directory.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), "wintools.log")
}

// ExpandPath expands a leading ~ and environment variables such as %TEMP%
// or $TMPDIR.
func ExpandPath(path string) string {
	path = expandPercent(path)
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		return filepath.Join(xdg.Home, path[1:])
	}
	return path
}

// expandPercent replaces Windows-style %VAR% references.
func expandPercent(s string) string {
	var b strings.Builder
	for {
		i := strings.IndexByte(s, '%')
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i+1:], '%')
		if j <= 0 {
			break
		}
		name := s[i+1 : i+1+j]
		val, ok := os.LookupEnv(name)
		if !ok {
			b.WriteString(s[:i+2+j])
			s = s[i+2+j:]
			continue
		}
		b.WriteString(s[:i])
		b.WriteString(val)
		s = s[i+2+j:]
	}
	b.WriteString(s)
	return b.String()
}

// EnsureDirs creates the config, data and state directories.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), DataDir(), StateDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
