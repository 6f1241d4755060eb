//go:build windows

package reclaimer

import (
	"fmt"

	"golang.org/x/sys/windows"
)

var (
	modpsapi            = windows.NewLazySystemDLL("psapi.dll")
	procEmptyWorkingSet = modpsapi.NewProc("EmptyWorkingSet")
)

// OSTrimmer calls EmptyWorkingSet.
type OSTrimmer struct{}

func (OSTrimmer) TrimSelf() error {
	return emptyWorkingSet(windows.CurrentProcess())
}

func (OSTrimmer) Trim(pid int32) error {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION|windows.PROCESS_SET_QUOTA, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("opening process %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)
	return emptyWorkingSet(h)
}

func emptyWorkingSet(h windows.Handle) error {
	if err := procEmptyWorkingSet.Find(); err != nil {
		return err
	}
	r1, _, e1 := procEmptyWorkingSet.Call(uintptr(h))
	if r1 == 0 {
		return e1
	}
	return nil
}
