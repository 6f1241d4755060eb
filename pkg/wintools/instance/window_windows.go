//go:build windows

package instance

import (
	"context"
	"errors"
	"sync"
	"unsafe"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/windows"
)

var (
	moduser32                    = windows.NewLazySystemDLL("user32.dll")
	procFindWindowW              = moduser32.NewProc("FindWindowW")
	procIsIconic                 = moduser32.NewProc("IsIconic")
	procShowWindow               = moduser32.NewProc("ShowWindow")
	procSetForegroundWindow      = moduser32.NewProc("SetForegroundWindow")
	procPostMessageW             = moduser32.NewProc("PostMessageW")
	procEnumWindows              = moduser32.NewProc("EnumWindows")
	procGetWindowThreadProcessId = moduser32.NewProc("GetWindowThreadProcessId")
)

const (
	swRestore = 9
	wmClose   = 0x0010
)

var (
	errWindowNotFound = errors.New("window not found")
	errNoWindows      = errors.New("process has no top-level windows")
)

func activateWindow(title string) error {
	t, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return err
	}
	hwnd, _, _ := procFindWindowW.Call(0, uintptr(unsafe.Pointer(t)))
	if hwnd == 0 {
		return errWindowNotFound
	}
	if iconic, _, _ := procIsIconic.Call(hwnd); iconic != 0 {
		procShowWindow.Call(hwnd, swRestore)
	}
	if ok, _, e := procSetForegroundWindow.Call(hwnd); ok == 0 {
		return e
	}
	return nil
}

// EnumWindows callbacks are a scarce resource; one is created and shared.
var (
	enumMu    sync.Mutex
	enumPID   uint32
	enumFound []uintptr
	enumProc  = windows.NewCallback(func(hwnd, _ uintptr) uintptr {
		var pid uint32
		procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
		if pid == enumPID {
			enumFound = append(enumFound, hwnd)
		}
		return 1
	})
)

func windowsOf(pid uint32) []uintptr {
	enumMu.Lock()
	defer enumMu.Unlock()
	enumPID, enumFound = pid, nil
	procEnumWindows.Call(enumProc, 0)
	return enumFound
}

// requestClose posts WM_CLOSE to every top-level window of p.
func requestClose(_ context.Context, p *process.Process) error {
	hwnds := windowsOf(uint32(p.Pid))
	if len(hwnds) == 0 {
		return errNoWindows
	}
	for _, h := range hwnds {
		procPostMessageW.Call(h, wmClose, 0, 0)
	}
	return nil
}
