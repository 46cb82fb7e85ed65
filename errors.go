package vkframe

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
)

// Transient: the presentation target must be rebuilt.
var ErrOutOfDate = errors.New("vkframe: presentation target out of date")

var (
	ErrZeroExtent       = errors.New("vkframe: zero drawable extent")
	ErrNoSurfaceFormats = errors.New("vkframe: surface reports no formats")
)

// Device failures. The core never recovers from these; they end the frame
// loop and re-initialization is the caller's job.
var (
	ErrTimeout           = errors.New("vkframe: timed out waiting for fence")
	ErrDeviceLost        = errors.New("vkframe: device lost")
	ErrOutOfHostMemory   = errors.New("vkframe: out of host memory")
	ErrOutOfDeviceMemory = errors.New("vkframe: out of device memory")
	ErrSurfaceLost       = errors.New("vkframe: surface lost")
	ErrCompileFailed     = errors.New("vkframe: pipeline compilation failed")
)

var deviceFailures = []error{
	ErrTimeout,
	ErrDeviceLost,
	ErrOutOfHostMemory,
	ErrOutOfDeviceMemory,
	ErrSurfaceLost,
	ErrCompileFailed,
}

// IsDeviceFailure reports whether err is a resource exhaustion or device
// loss error.
func IsDeviceFailure(err error) bool {
	for _, target := range deviceFailures {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ContractError is a broken caller contract inside the engine. Continuing
// after one would operate on inconsistent GPU state, so callers escalate it
// with Fatal.
type ContractError struct {
	Op  string
	Msg string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("vkframe: contract violation in %s: %s", e.Op, e.Msg)
}

func contractf(op, format string, args ...interface{}) *ContractError {
	return &ContractError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsContractViolation reports whether err wraps a *ContractError.
func IsContractViolation(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}

// Fatal runs the finalizers, logs err and panics with it. It does nothing
// for a nil error.
func Fatal(err error, finalizers ...func()) {
	if err == nil {
		return
	}
	for _, fn := range finalizers {
		fn()
	}
	slog.Error("vkframe: fatal", "err", err)
	panic(err)
}
