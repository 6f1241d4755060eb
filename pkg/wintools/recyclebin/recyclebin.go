// Package recyclebin empties the system recycle bin for every drive.
// On Windows the shell API does the work; elsewhere the user's trash
// directory stands in so the session can run on any machine.
package recyclebin

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyEmpty is reported when there was nothing to remove or the shell
// declined. The original shell API does not distinguish the two.
var ErrAlreadyEmpty = errors.New("recycle bin is already empty or some items could not be removed")

// commandTimeout bounds helper tools such as gio or osascript.
const commandTimeout = 30 * time.Second

// Info describes the bin contents.
type Info struct {
	Items int64 `json:"items"`
	Size  int64 `json:"size"`
}

// Bin empties the recycle bin.
type Bin struct {
	dir      string
	useTools bool
}

// Option configures a Bin.
type Option func(*Bin)

// WithDir points a non-Windows Bin at a freedesktop-style trash directory
// and disables external helper tools. Ignored on Windows.
func WithDir(dir string) Option {
	return func(b *Bin) {
		b.dir = dir
		b.useTools = false
	}
}

// New returns a Bin for the current user.
func New(opts ...Option) *Bin {
	b := &Bin{dir: defaultDir(), useTools: true}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Query reports what the bin currently holds.
func (b *Bin) Query(ctx context.Context) (Info, error) {
	return b.query(ctx)
}

// Empty removes everything in the bin without confirmation and returns what
// was there beforehand. ErrAlreadyEmpty is returned when nothing was
// removed.
func (b *Bin) Empty(ctx context.Context) (Info, error) {
	before, err := b.query(ctx)
	if err != nil {
		// Size is informational only.
		before = Info{}
	}
	if err := b.empty(ctx, before); err != nil {
		return Info{}, err
	}
	return before, nil
}
