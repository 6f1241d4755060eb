//go:build windows

package instance

import (
	"errors"

	"golang.org/x/sys/windows"
)

// token is a named mutex. Its existence, not its ownership, is the signal,
// so the handle is created without initial ownership.
type token struct {
	h windows.Handle
}

func acquireToken(name, _ string) (*token, bool, error) {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, false, err
	}
	h, err := windows.CreateMutex(nil, false, p)
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		if h != 0 {
			_ = windows.CloseHandle(h)
		}
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &token{h: h}, false, nil
}

func (t *token) release() error {
	return windows.CloseHandle(t.h)
}

// The mutex carries no pid; instances are found by image name.
func ownerFromLock(string, string) []int32 { return nil }

func defaultLockDir() string { return "" }
