// Package settings persists the overlay widget state: whether it is shown
// and where. The file is advisory; a missing or unreadable file yields the
// defaults and never stops start-up.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/wintools/pkg/wintools/logging"
)

// FileName is the settings file inside the config directory.
const FileName = "widget.json"

// Widget is the persisted overlay state.
type Widget struct {
	Enabled bool    `json:"enabled"`
	Left    float64 `json:"left"`
	Top     float64 `json:"top"`
}

// Defaults is the hidden widget at the origin.
func Defaults() Widget {
	return Widget{}
}

// DefaultPath is $XDG_CONFIG_HOME/wintools/widget.json.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "wintools", FileName)
}

// Store reads and writes one settings file.
type Store struct {
	path string
	mu   sync.Mutex
	log  *logging.Logger
}

// NewStore returns a store for path. Empty path selects DefaultPath.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path, log: logging.Get(logging.ComponentSettings)}
}

// Path returns the file location.
func (s *Store) Path() string { return s.path }

// Load returns the stored settings, or Defaults when the file is missing
// or cannot be decoded.
func (s *Store) Load() Widget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() Widget {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("reading widget settings failed, using defaults", "path", s.path, "error", err)
		}
		return Defaults()
	}
	var w Widget
	if err := json.Unmarshal(data, &w); err != nil {
		s.log.Warn("widget settings corrupt, using defaults", "path", s.path, "error", err)
		return Defaults()
	}
	return w
}

// Save writes w atomically: a temp file in the same directory is renamed
// over the target.
func (s *Store) Save(w Widget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(w)
}

func (s *Store) save(w Widget) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding widget settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+FileName+".*")
	if err != nil {
		return fmt.Errorf("creating temp settings file: %w", err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing temp settings file: %w", errors.Join(werr, cerr))
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replacing settings file: %w", err)
	}
	return nil
}

// Update applies fn to the current settings and saves the result.
func (s *Store) Update(fn func(*Widget)) (Widget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.load()
	fn(&w)
	if err := s.save(w); err != nil {
		return w, err
	}
	return w, nil
}

// Watch calls fn with the new settings whenever the file changes on disk,
// until ctx is done. The directory is watched rather than the file so that
// atomic replacements are seen.
func (s *Store) Watch(ctx context.Context, fn func(Widget)) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	last := s.Load()
	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			cur := s.Load()
			if cur == last {
				continue
			}
			last = cur
			fn(cur)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("settings watcher error", "error", err)
		}
	}
}
