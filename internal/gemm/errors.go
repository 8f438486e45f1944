package gemm

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Kind classifies engine failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindPlatform covers device discovery and platform object creation.
	KindPlatform
	// KindAllocation covers device buffer creation.
	KindAllocation
	// KindBuild covers kernel source loading and compilation.
	KindBuild
	// KindDispatch covers argument binding, transfers, launches and
	// synchronization.
	KindDispatch
	// KindInvalidArgument reports a malformed workload or option set.
	KindInvalidArgument
	// KindInvalidState reports a call that the session lifecycle forbids.
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindPlatform:
		return "PlatformError"
	case KindAllocation:
		return "AllocationError"
	case KindBuild:
		return "BuildError"
	case KindDispatch:
		return "DispatchError"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindInvalidState:
		return "InvalidState"
	default:
		return "UnknownError"
	}
}

var (
	ErrNoDevices          = errors.New("no usable devices")
	ErrNotInitialized     = errors.New("session not initialized")
	ErrAlreadyInitialized = errors.New("session already initialized")
	ErrFinalized          = errors.New("session finalized")
	ErrDimensionMismatch  = errors.New("workload dimensions differ from initialized dimensions")
)

// Error is returned by every fallible engine operation. Loc is the file:line
// of the engine call that failed and Device is the device ordinal, or -1 when
// the failure is not tied to one device.
type Error struct {
	Kind   Kind
	Op     string
	Device int
	Loc    string
	Err    error
}

func (e *Error) Error() string {
	if e.Device >= 0 {
		return fmt.Sprintf("[%s] %s in %s (device %d): %v", e.Loc, e.Kind, e.Op, e.Device, e.Err)
	}
	return fmt.Sprintf("[%s] %s in %s: %v", e.Loc, e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, device int, err error) *Error {
	loc := "unknown"
	if _, file, line, ok := runtime.Caller(1); ok {
		loc = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return &Error{Kind: kind, Op: op, Device: device, Loc: loc, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries an *Error of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
