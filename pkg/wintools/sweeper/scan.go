package sweeper

import (
	"context"
	"errors"
	"io/fs"
	"slices"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
)

type fileEntry struct {
	path string
	size int64
	mod  time.Time
}

// tree is the flattened content of a directory. Links are counted but
// never descended into.
type tree struct {
	files     []fileEntry
	dirs      []string
	links     int
	linkPaths []string
}

// scan walks root in parallel. Entries that cannot be stat'ed are treated
// as links so that their directory is not considered fully aged.
func scan(ctx context.Context, root string) (tree, error) {
	var (
		mu sync.Mutex
		t  tree
	)
	conf := fastwalk.Config{Follow: false}

	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		mu.Lock()
		defer mu.Unlock()

		if err != nil {
			if path == root {
				return err
			}
			t.links++
			t.linkPaths = append(t.linkPaths, path)
			if d != nil && d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		switch {
		case isLink(d.Type()):
			t.links++
			t.linkPaths = append(t.linkPaths, path)
		case d.IsDir():
			t.dirs = append(t.dirs, path)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				t.links++
				t.linkPaths = append(t.linkPaths, path)
				return nil
			}
			t.files = append(t.files, fileEntry{path: path, size: info.Size(), mod: info.ModTime()})
		}
		return nil
	})
	if err != nil && !errors.Is(err, fastwalk.ErrSkipFiles) {
		return t, err
	}

	// fastwalk reports in nondeterministic order.
	slices.SortFunc(t.files, func(a, b fileEntry) int {
		switch {
		case a.path < b.path:
			return -1
		case a.path > b.path:
			return 1
		}
		return 0
	})
	slices.Sort(t.dirs)
	slices.Sort(t.linkPaths)
	return t, nil
}
