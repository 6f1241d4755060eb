// Package logging is the shared logger for the wintools binary. Every
// subsystem asks for a component logger by name; output goes to a rotating
// file, optionally to stderr, and to in-process subscribers such as the
// dashboard log panel.
//
//	if err := logging.Init(logging.DefaultConfig()); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	log := logging.Get(logging.ComponentSweeper)
//	log.Info("sweep finished", "removed", 12)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Component names used across the module.
const (
	ComponentGuard     = "guard"
	ComponentSampler   = "sampler"
	ComponentReclaimer = "reclaimer"
	ComponentSweeper   = "sweeper"
	ComponentSession   = "session"
	ComponentControl   = "control"
	ComponentSchedule  = "schedule"
	ComponentSettings  = "settings"
	ComponentHistory   = "history"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "unknown"
	}
	return levelNames[l]
}

func (l Level) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned by ParseLevel for unknown names.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel maps a level name to a Level. "warning" is accepted as warn.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		name = "warn"
	}
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
}

// Config configures Init.
type Config struct {
	// Level applies to components without an override.
	Level string

	// Path of the log file. Empty means DefaultLogPath().
	Path string

	Rotation RotationConfig

	// Components holds per-component level overrides.
	Components map[string]string

	// Console mirrors entries at or above this level to stderr.
	// Empty disables console output.
	Console string

	// Dashboard keeps recent entries in memory and disables console
	// output, since the dashboard owns the terminal.
	Dashboard bool
}

// Entry is a single log record delivered to subscribers.
type Entry struct {
	Time      time.Time
	Level     Level
	Component string
	Message   string
}

// Logger writes records for one component.
type Logger struct {
	component string
	file      *log.Logger
	console   *log.Logger
}

func (l *Logger) Debug(msg string, kv ...any) { l.emit(LevelDebug, msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { l.emit(LevelInfo, msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { l.emit(LevelWarn, msg, kv) }
func (l *Logger) Error(msg string, kv ...any) { l.emit(LevelError, msg, kv) }

// With returns a child logger carrying the extra key/value pairs.
func (l *Logger) With(kv ...any) *Logger {
	child := &Logger{component: l.component, file: l.file.With(kv...)}
	if l.console != nil {
		child.console = l.console.With(kv...)
	}
	return child
}

func (l *Logger) emit(level Level, msg string, kv []any) {
	write(l.file, level, msg, kv)
	if l.console != nil {
		write(l.console, level, msg, kv)
	}
	std.publish(Entry{Time: time.Now(), Level: level, Component: l.component, Message: msg})
}

func write(dst *log.Logger, level Level, msg string, kv []any) {
	switch level {
	case LevelDebug:
		dst.Debug(msg, kv...)
	case LevelInfo:
		dst.Info(msg, kv...)
	case LevelWarn:
		dst.Warn(msg, kv...)
	case LevelError:
		dst.Error(msg, kv...)
	}
}

type registry struct {
	mu        sync.RWMutex
	ready     bool
	out       *RotatingWriter
	level     Level
	overrides map[string]Level
	loggers   map[string]*Logger
	subs      map[chan Entry]struct{}

	console      bool
	consoleLevel Level
	recent       *Ring
}

var std = &registry{
	overrides: map[string]Level{},
	loggers:   map[string]*Logger{},
	subs:      map[chan Entry]struct{}{},
}

// Init configures the logging system. Loggers handed out before Init
// discard their output until Init rebuilds them.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	overrides := make(map[string]Level, len(cfg.Components))
	for name, v := range cfg.Components {
		lvl, err := ParseLevel(v)
		if err != nil {
			return fmt.Errorf("parsing level for %s: %w", name, err)
		}
		overrides[name] = lvl
	}

	var consoleLevel Level
	console := cfg.Console != "" && !cfg.Dashboard
	if console {
		if consoleLevel, err = ParseLevel(cfg.Console); err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	out, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	std.mu.Lock()
	defer std.mu.Unlock()

	if std.out != nil {
		_ = std.out.Close()
	}
	std.out = out
	std.level = level
	std.overrides = overrides
	std.console = console
	std.consoleLevel = consoleLevel
	std.recent = nil
	if cfg.Dashboard {
		std.recent = NewRing(DefaultRingSize)
	}
	std.ready = true

	// Update in place so loggers already handed out pick up the new sinks.
	for name, l := range std.loggers {
		*l = *std.build(name)
	}
	return nil
}

// Get returns the logger for component, creating it on first use.
func Get(component string) *Logger {
	std.mu.RLock()
	l, ok := std.loggers[component]
	std.mu.RUnlock()
	if ok {
		return l
	}

	std.mu.Lock()
	defer std.mu.Unlock()
	if l, ok := std.loggers[component]; ok {
		return l
	}
	l = std.build(component)
	std.loggers[component] = l
	return l
}

// build must be called with mu held.
func (r *registry) build(component string) *Logger {
	level := r.level
	if o, ok := r.overrides[component]; ok {
		level = o
	}

	if !r.ready {
		return &Logger{
			component: component,
			file:      log.NewWithOptions(io.Discard, log.Options{Level: level.charm(), Prefix: component}),
		}
	}

	l := &Logger{
		component: component,
		file: log.NewWithOptions(r.out, log.Options{
			Level:           level.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		}),
	}
	if r.console {
		l.console = log.NewWithOptions(os.Stderr, log.Options{
			Level:           r.consoleLevel.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
			Prefix:          component,
		})
	}
	return l
}

// Close flushes the log file and closes every subscription.
func Close() error {
	std.mu.Lock()
	defer std.mu.Unlock()

	if !std.ready {
		return nil
	}
	for ch := range std.subs {
		close(ch)
		delete(std.subs, ch)
	}

	var err error
	if std.out != nil {
		err = std.out.Close()
		std.out = nil
	}
	std.ready = false
	std.loggers = map[string]*Logger{}
	std.overrides = map[string]Level{}
	if err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// Subscribe returns a buffered channel of new entries. Slow readers lose
// entries rather than blocking writers.
func Subscribe() <-chan Entry {
	std.mu.Lock()
	defer std.mu.Unlock()
	ch := make(chan Entry, 128)
	std.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe stops delivery to ch. The channel is left open.
func Unsubscribe(ch <-chan Entry) {
	std.mu.Lock()
	defer std.mu.Unlock()
	for c := range std.subs {
		if c == ch {
			delete(std.subs, c)
			return
		}
	}
}

func (r *registry) publish(e Entry) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.recent != nil {
		r.recent.Add(e)
	}
	for ch := range r.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Recent returns the in-memory ring, or nil outside dashboard mode.
func Recent() *Ring {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.recent
}

// DefaultLogPath is $XDG_STATE_HOME/wintools/wintools.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "wintools", "wintools.log")
}

func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}
