package instance

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// Process is a running instance seen from a contender.
type Process interface {
	Pid() int32
	RequestClose(ctx context.Context) error
	Running(ctx context.Context) bool
	Kill(ctx context.Context) error
}

// Finder locates candidate instances. owners holds the pids known to hold
// the token; a Finder returns those processes along with any others it
// matches, and Contend narrows the list.
type Finder interface {
	Find(ctx context.Context, owners []int32) ([]Process, error)
}

// FinderFunc adapts a function to Finder.
type FinderFunc func(ctx context.Context, owners []int32) ([]Process, error)

func (f FinderFunc) Find(ctx context.Context, owners []int32) ([]Process, error) {
	return f(ctx, owners)
}

type osProcess struct {
	p *process.Process
}

func (o osProcess) Pid() int32 { return o.p.Pid }

func (o osProcess) RequestClose(ctx context.Context) error {
	return requestClose(ctx, o.p)
}

func (o osProcess) Running(ctx context.Context) bool {
	ok, err := o.p.IsRunningWithContext(ctx)
	return err == nil && ok
}

func (o osProcess) Kill(ctx context.Context) error {
	return o.p.KillWithContext(ctx)
}

// imageFinder looks up the owner pids and, when none are known, every
// process running the same executable. This process is never returned.
type imageFinder struct {
	image string
	self  int32
}

func newOSFinder() Finder {
	exe, err := os.Executable()
	image := DefaultTitle
	if err == nil {
		image = filepath.Base(exe)
	}
	return &imageFinder{image: image, self: int32(os.Getpid())}
}

func (f *imageFinder) Find(ctx context.Context, owners []int32) ([]Process, error) {
	seen := map[int32]bool{f.self: true}
	var out []Process
	add := func(p *process.Process) {
		if seen[p.Pid] {
			return
		}
		seen[p.Pid] = true
		out = append(out, osProcess{p})
	}

	if len(owners) > 0 {
		for _, pid := range owners {
			if p, err := process.NewProcessWithContext(ctx, pid); err == nil {
				add(p)
			}
		}
		return out, nil
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || !sameImage(name, f.image) {
			continue
		}
		add(p)
	}
	return out, nil
}

func sameImage(name, image string) bool {
	trim := func(s string) string { return strings.TrimSuffix(strings.ToLower(s), ".exe") }
	return trim(name) == trim(image)
}
