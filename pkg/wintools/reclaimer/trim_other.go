//go:build !windows

package reclaimer

// OSTrimmer reports ErrTrimUnsupported; the pipeline records the stage as
// a soft failure and moves on.
type OSTrimmer struct{}

func (OSTrimmer) TrimSelf() error { return ErrTrimUnsupported }

func (OSTrimmer) Trim(int32) error { return ErrTrimUnsupported }
