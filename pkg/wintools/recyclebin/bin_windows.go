//go:build windows

package recyclebin

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modshell32             = windows.NewLazySystemDLL("shell32.dll")
	procSHEmptyRecycleBinW = modshell32.NewProc("SHEmptyRecycleBinW")
	procSHQueryRecycleBinW = modshell32.NewProc("SHQueryRecycleBinW")
)

const (
	sherbNoConfirmation = 0x00000001
	sherbNoProgressUI   = 0x00000002
	sherbNoSound        = 0x00000004
)

type shQueryRBInfo struct {
	cbSize      uint32
	i64Size     int64
	i64NumItems int64
}

func defaultDir() string { return "" }

// query asks the shell for totals across all drives.
func (b *Bin) query(context.Context) (Info, error) {
	if err := procSHQueryRecycleBinW.Find(); err != nil {
		return Info{}, err
	}
	info := shQueryRBInfo{}
	info.cbSize = uint32(unsafe.Sizeof(info))
	hr, _, _ := procSHQueryRecycleBinW.Call(0, uintptr(unsafe.Pointer(&info)))
	if hr != 0 {
		return Info{}, fmt.Errorf("SHQueryRecycleBinW: HRESULT 0x%08x", uint32(hr))
	}
	return Info{Items: info.i64NumItems, Size: info.i64Size}, nil
}

// empty calls SHEmptyRecycleBinW with a null root, which covers every drive.
func (b *Bin) empty(_ context.Context, _ Info) error {
	if err := procSHEmptyRecycleBinW.Find(); err != nil {
		return err
	}
	hr, _, _ := procSHEmptyRecycleBinW.Call(0, 0, sherbNoConfirmation|sherbNoProgressUI|sherbNoSound)
	if hr != 0 {
		return fmt.Errorf("%w (HRESULT 0x%08x)", ErrAlreadyEmpty, uint32(hr))
	}
	return nil
}
