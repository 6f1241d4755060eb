//go:build !windows

package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"golang.org/x/sys/unix"
)

// token is an flock'ed file holding the owner's pid. The kernel drops the
// lock when the owner exits, however it exits.
type token struct {
	f *os.File
}

func lockPath(name, dir string) string {
	clean := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' {
			return '_'
		}
		return r
	}, name)
	return filepath.Join(dir, clean+".lock")
}

func acquireToken(name, dir string) (*token, bool, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, false, fmt.Errorf("creating lock directory: %w", err)
	}
	f, err := os.OpenFile(lockPath(name, dir), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, false, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, true, nil
		}
		return nil, false, err
	}

	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
	}
	return &token{f: f}, false, nil
}

func (t *token) release() error {
	_ = t.f.Truncate(0)
	_ = unix.Flock(int(t.f.Fd()), unix.LOCK_UN)
	return t.f.Close()
}

// ownerFromLock returns the pid recorded by the current owner, if any.
func ownerFromLock(name, dir string) []int32 {
	data, err := os.ReadFile(lockPath(name, dir))
	if err != nil {
		return nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 || pid == os.Getpid() {
		return nil
	}
	return []int32{int32(pid)}
}

func defaultLockDir() string {
	return filepath.Join(xdg.RuntimeDir, "wintools")
}
