//go:build !windows

package recyclebin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/adrg/xdg"
	"github.com/charlievieth/fastwalk"
)

func defaultDir() string {
	if runtime.GOOS == "darwin" {
		return filepath.Join(xdg.Home, ".Trash")
	}
	return filepath.Join(xdg.DataHome, "Trash")
}

// contentDir is where trashed items live. The freedesktop layout keeps
// them under files/ with metadata in info/.
func (b *Bin) contentDir() string {
	files := filepath.Join(b.dir, "files")
	if st, err := os.Stat(files); err == nil && st.IsDir() {
		return files
	}
	return b.dir
}

func (b *Bin) query(ctx context.Context) (Info, error) {
	root := b.contentDir()
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, nil
	}
	if err != nil {
		return Info{}, fmt.Errorf("reading trash: %w", err)
	}

	var size atomic.Int64
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || !d.Type().IsRegular() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size.Add(info.Size())
		}
		return nil
	})
	if err != nil {
		return Info{}, err
	}
	return Info{Items: int64(len(entries)), Size: size.Load()}, nil
}

func (b *Bin) empty(ctx context.Context, before Info) error {
	if before.Items == 0 {
		return ErrAlreadyEmpty
	}
	if b.useTools && emptyWithTool(ctx) == nil {
		return nil
	}

	var failed int
	for _, sub := range []string{b.contentDir(), filepath.Join(b.dir, "info")} {
		entries, err := os.ReadDir(sub)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(sub, e.Name())); err != nil {
				failed++
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d entries remain", ErrAlreadyEmpty, failed)
	}
	return nil
}

// emptyWithTool lets the desktop empty its own trash so that its views stay
// consistent.
func emptyWithTool(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch runtime.GOOS {
	case "darwin":
		return exec.CommandContext(ctx, "osascript", "-e", `tell application "Finder" to empty trash`).Run()
	case "linux":
		gio, err := exec.LookPath("gio")
		if err != nil {
			return err
		}
		return exec.CommandContext(ctx, gio, "trash", "--empty").Run()
	}
	return errors.ErrUnsupported
}
