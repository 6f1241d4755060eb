//go:build !windows

package instance

import (
	"context"
	"errors"

	"github.com/shirou/gopsutil/v3/process"
)

var errNoWindowSystem = errors.New("window activation unsupported; use the control channel")

func activateWindow(string) error { return errNoWindowSystem }

// requestClose sends SIGTERM.
func requestClose(ctx context.Context, p *process.Process) error {
	return p.TerminateWithContext(ctx)
}
