// Package sweeper deletes aged files from temp and cache directories.
//
// A non-recursive target is swept in two passes. Top-level files older than
// the sweep's minimum age are deleted. Each immediate subdirectory is then
// either removed entirely, when every file under it is older than the
// directory retention, or left untouched. Recursive targets delete every
// file under the root and prune the directories left empty.
//
// Failures on individual items never stop a sweep. They are recorded as
// skipped items and contribute nothing to the removed counts or bytes.
package sweeper

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jamesainslie/wintools/pkg/wintools/logging"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// DefaultDirRetention is the age every file in a subdirectory must exceed
// before the subdirectory is removed.
const DefaultDirRetention = 7 * types.Day

// DefaultTempAge is the minimum file age for temp cleanup.
const DefaultTempAge = types.Day

// RemoveFunc deletes a single file or empty directory.
type RemoveFunc func(path string) error

// ProgressFunc receives running totals.
type ProgressFunc func(types.SweepProgress)

// Sweeper deletes files according to the retention rules.
type Sweeper struct {
	dirRetention time.Duration
	now          func() time.Time
	remove       RemoveFunc
	progress     ProgressFunc
	exclude      *Exclude
	log          *logging.Logger
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithDirRetention sets the subdirectory age threshold.
func WithDirRetention(d time.Duration) Option {
	return func(s *Sweeper) { s.dirRetention = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithRemover replaces os.Remove.
func WithRemover(fn RemoveFunc) Option {
	return func(s *Sweeper) { s.remove = fn }
}

// WithProgress registers a callback invoked after each top-level item.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Sweeper) { s.progress = fn }
}

func New(opts ...Option) *Sweeper {
	s := &Sweeper{
		dirRetention: DefaultDirRetention,
		now:          time.Now,
		remove:       os.Remove,
		log:          logging.Get(logging.ComponentSweeper),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run carries the state of one Sweep call. Targets are processed one after
// another, so nothing here is shared between goroutines.
type run struct {
	*Sweeper
	ctx    context.Context
	start  time.Time
	minAge time.Duration
	res    types.SweepResult
	target string
}

// Sweep processes targets in order. When ctx is cancelled the sweep stops
// before the next deletion and returns what it has done so far with
// Cancelled set.
func (s *Sweeper) Sweep(ctx context.Context, targets []types.SweepTarget, minAge time.Duration) types.SweepResult {
	r := &run{Sweeper: s, ctx: ctx, start: s.now(), minAge: minAge}

	for _, t := range targets {
		if r.cancelled() {
			break
		}
		r.res.Targets = append(r.res.Targets, t)
		r.target = t.Path

		root, err := resolveRoot(t.Path)
		if err != nil {
			s.log.Debug("target unavailable", "path", t.Path, "error", err)
			r.skip(t.Path, err)
			continue
		}
		if t.Recursive {
			r.sweepRecursive(root)
		} else {
			r.sweepTopLevel(root)
		}
	}

	s.log.Info("sweep finished",
		"targets", len(r.res.Targets),
		"removed", r.res.ItemsRemoved,
		"dirs", r.res.DirsRemoved,
		"freed", types.FormatSize(r.res.BytesFreed),
		"skipped", len(r.res.Skipped),
		"excluded", r.res.Excluded,
		"cancelled", r.res.Cancelled)
	return r.res
}

// resolveRoot returns the absolute, link-free form of a target root.
func resolveRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", &fs.PathError{Op: "sweep", Path: path, Err: errNotDir}
	}
	return resolved, nil
}

var errNotDir = errors.New("not a directory")

func (r *run) sweepTopLevel(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		r.skip(root, err)
		return
	}

	var subdirs []string
	for _, e := range entries {
		if r.cancelled() {
			return
		}
		path := filepath.Join(root, e.Name())
		switch {
		case isLink(e.Type()):
			r.skipReason(path, types.SkipLink, nil)
		case e.IsDir():
			subdirs = append(subdirs, path)
		case e.Type().IsRegular() && r.excluded(path):
			// kept
		case e.Type().IsRegular():
			info, err := e.Info()
			if err != nil {
				r.skip(path, err)
				continue
			}
			if r.oldEnough(info.ModTime(), r.minAge) {
				r.removeFile(root, path, info.Size())
			}
		}
		r.report()
	}

	for _, dir := range subdirs {
		if r.cancelled() {
			return
		}
		r.sweepSubdir(root, dir)
		r.report()
	}
}

// sweepSubdir removes dir only when nothing under it is younger than the
// directory retention. A tree holding links is left alone.
func (r *run) sweepSubdir(root, dir string) {
	tree, err := scan(r.ctx, dir)
	if err != nil {
		if r.cancelled() {
			return
		}
		r.skip(dir, err)
		return
	}
	if tree.links > 0 {
		r.skipReason(dir, types.SkipLink, nil)
		return
	}

	if len(tree.files) == 0 {
		if r.pruneDirs(root, tree.dirs) {
			r.res.DirsRemoved++
		}
		return
	}

	for _, f := range tree.files {
		if r.excluded(f.path) {
			return
		}
		if !r.oldEnough(f.mod, r.dirRetention) {
			return
		}
	}

	for _, f := range tree.files {
		if r.cancelled() {
			return
		}
		r.removeFile(root, f.path, f.size)
	}
	if r.pruneDirs(root, tree.dirs) {
		r.res.DirsRemoved++
	}
}

func (r *run) sweepRecursive(root string) {
	tree, err := scan(r.ctx, root)
	if err != nil && !r.cancelled() {
		r.skip(root, err)
	}
	for _, l := range tree.linkPaths {
		r.skipReason(l, types.SkipLink, nil)
	}
	for _, f := range tree.files {
		if r.cancelled() {
			return
		}
		if !r.excluded(f.path) && r.oldEnough(f.mod, r.minAge) {
			r.removeFile(root, f.path, f.size)
		}
		r.report()
	}
	// The root itself stays; only its descendants are pruned.
	dirs := slices.DeleteFunc(slices.Clone(tree.dirs), func(d string) bool { return d == root })
	r.pruneDirs(root, dirs)
}

// pruneDirs removes dirs deepest first and reports whether the shallowest
// one was removed. Failures, typically "directory not empty", are ignored.
func (r *run) pruneDirs(root string, dirs []string) bool {
	if len(dirs) == 0 {
		return false
	}
	sorted := slices.Clone(dirs)
	slices.SortFunc(sorted, func(a, b string) int {
		return strings.Count(b, string(filepath.Separator)) - strings.Count(a, string(filepath.Separator))
	})

	var err error
	for _, d := range sorted {
		if r.cancelled() {
			return false
		}
		if !within(root, d) {
			r.skipReason(d, types.SkipOutside, nil)
			return false
		}
		err = r.remove(d)
	}
	return err == nil
}

// removeFile deletes path and counts size only on success.
func (r *run) removeFile(root, path string, size int64) {
	if !within(root, path) {
		r.skipReason(path, types.SkipOutside, nil)
		return
	}
	if err := r.remove(path); err != nil {
		r.skip(path, err)
		return
	}
	r.res.ItemsRemoved++
	r.res.BytesFreed += size
}

// excluded reports whether path is kept by the exclude patterns and counts
// it when so.
func (r *run) excluded(path string) bool {
	if !r.exclude.Match(path) {
		return false
	}
	r.res.Excluded++
	return true
}

// oldEnough reports whether mod lies more than age before the sweep start.
// A zero or negative age disables the filter, so files stamped at the start
// or in the future still qualify.
func (r *run) oldEnough(mod time.Time, age time.Duration) bool {
	if age <= 0 {
		return true
	}
	return r.start.Sub(mod) > age
}

func (r *run) cancelled() bool {
	if r.res.Cancelled {
		return true
	}
	if r.ctx.Err() != nil {
		r.res.Cancelled = true
		return true
	}
	return false
}

func (r *run) skip(path string, err error) {
	r.skipReason(path, classify(err), err)
}

func (r *run) skipReason(path string, reason types.SkipReason, err error) {
	item := types.SkippedItem{Path: path, Reason: reason}
	if err != nil {
		item.Err = err.Error()
	}
	r.res.Skipped = append(r.res.Skipped, item)
}

func (r *run) report() {
	if r.progress == nil {
		return
	}
	r.progress(types.SweepProgress{
		Target:       r.target,
		ItemsRemoved: r.res.ItemsRemoved,
		BytesFreed:   r.res.BytesFreed,
		Skipped:      len(r.res.Skipped),
	})
}

// classify maps an OS error to a skip reason.
func classify(err error) types.SkipReason {
	switch {
	case err == nil:
		return types.SkipOther
	case isInUse(err):
		return types.SkipInUse
	case errors.Is(err, fs.ErrPermission):
		return types.SkipPermission
	case errors.Is(err, fs.ErrNotExist):
		return types.SkipMissing
	}
	return types.SkipOther
}

// within reports whether path lies strictly below root.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func isLink(m fs.FileMode) bool {
	return m&(fs.ModeSymlink|fs.ModeIrregular) != 0
}
