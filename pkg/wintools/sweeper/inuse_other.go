//go:build !windows

package sweeper

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isInUse(err error) bool {
	return errors.Is(err, unix.EBUSY) || errors.Is(err, unix.ETXTBSY)
}
