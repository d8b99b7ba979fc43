// ABOUTME: Session error kinds and sentinel errors
// ABOUTME: Failures are latched as *Error values and read back through the handle
package session

import (
	"errors"
	"fmt"
)

// ErrorKind classifies session failures
type ErrorKind int

const (
	// KindDeviceOpen: the backend is unavailable or the platform rejected
	// initialization or start. Retry play, possibly with another backend.
	KindDeviceOpen ErrorKind = iota + 1

	// KindInvalidOperation: the operation does not apply in the current state
	KindInvalidOperation

	// KindResourceRelease: the platform failed while tearing a device down.
	// The binding is dropped regardless.
	KindResourceRelease

	// KindDeviceControl: the platform rejected stopping a running device
	KindDeviceControl
)

func (k ErrorKind) String() string {
	switch k {
	case KindDeviceOpen:
		return "device_open"
	case KindInvalidOperation:
		return "invalid_operation"
	case KindResourceRelease:
		return "resource_release"
	case KindDeviceControl:
		return "device_control"
	default:
		return "unknown"
	}
}

var (
	// ErrNoSession is reported for the zero handle
	ErrNoSession = errors.New("no audio session")

	// ErrStaleHandle is reported for a handle whose session was deleted
	ErrStaleHandle = errors.New("stale audio session handle")

	// ErrSessionLimit is reported when play cannot allocate a session
	ErrSessionLimit = errors.New("audio session limit reached")

	// ErrNoDevice is the cause of pausing a session without a device
	ErrNoDevice = errors.New("trying to pause audio, but there is no device")

	// ErrNoDriver is returned when no driver is configured for a backend
	ErrNoDriver = errors.New("no driver configured for backend")

	// ErrEngineClosed is reported for the zero handle once the engine is closed
	ErrEngineClosed = errors.New("audio engine closed")

	// ErrOpenTimeout is returned when a driver does not open in time
	ErrOpenTimeout = errors.New("device open timed out")
)

// Error is a failure latched in a session
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a session Error of kind k
func IsKind(err error, k ErrorKind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == k
}
