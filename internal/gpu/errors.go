package gpu

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDeviceLost is fatal: the device stopped answering or produced
	// output that cannot be trusted.
	ErrDeviceLost = errors.New("gpu: device lost")
	// ErrFenceBusy is returned when work is submitted on a fence that has
	// not been waited on and reset.
	ErrFenceBusy = errors.New("gpu: fence still in flight")
	// ErrUnknownFence is returned for fences the device did not create.
	ErrUnknownFence = errors.New("gpu: unknown fence")
	// ErrForeignBuffer is returned when a buffer from another device is passed in.
	ErrForeignBuffer = errors.New("gpu: buffer belongs to another device")
)

// SubmitError reports a failed command submission. The chunk being worked
// on is abandoned; the device itself is still usable.
type SubmitError struct {
	Op  string
	Err error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("gpu: %s submit failed: %v", e.Op, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// FenceTimeout builds the error returned when a fence wait expires.
func FenceTimeout(f Fence, timeout time.Duration) error {
	return fmt.Errorf("%w: fence %d not signaled after %s", ErrDeviceLost, f, timeout)
}

// IsFatal reports whether err must stop the process.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceLost)
}
