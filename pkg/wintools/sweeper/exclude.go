package sweeper

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Exclude keeps files whose base name matches one of a set of glob
// patterns such as "*.lock" or "~$*". Matching ignores case.
type Exclude struct {
	patterns []string
	globs    []glob.Glob
}

// CompileExclude compiles patterns. An empty list yields nil, which
// matches nothing.
func CompileExclude(patterns ...string) (*Exclude, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	e := &Exclude{patterns: patterns}
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
		e.globs = append(e.globs, g)
	}
	return e, nil
}

// Match reports whether the base name of path matches any pattern.
func (e *Exclude) Match(path string) bool {
	if e == nil {
		return false
	}
	name := strings.ToLower(filepath.Base(path))
	for _, g := range e.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Patterns returns the source patterns.
func (e *Exclude) Patterns() []string {
	if e == nil {
		return nil
	}
	return e.patterns
}

// WithExclude keeps files matched by e. A subdirectory holding a matched
// file is never removed.
func WithExclude(e *Exclude) Option {
	return func(s *Sweeper) { s.exclude = e }
}
