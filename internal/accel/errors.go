package accel

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Platform error conditions. Implementations wrap these so callers can match
// them with errors.Is regardless of the platform in use.
var (
	ErrPlatformUnavailable  = errors.New("platform not available")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrInvalidDevice        = errors.New("invalid device")
	ErrOutOfResources       = errors.New("out of resources")
	ErrInvalidBufferSize    = errors.New("invalid buffer size")
	ErrInvalidBufferRange   = errors.New("invalid buffer range")
	ErrBuildProgramFailure  = errors.New("build program failure")
	ErrInvalidKernelName    = errors.New("invalid kernel name")
	ErrInvalidArgIndex      = errors.New("invalid kernel argument index")
	ErrInvalidArgValue      = errors.New("invalid kernel argument value")
	ErrInvalidKernelArgs    = errors.New("kernel arguments not set")
	ErrInvalidWorkDimension = errors.New("invalid work dimension")
	ErrInvalidWorkGroupSize = errors.New("invalid work group size")
	ErrReleased             = errors.New("object already released")
)

// BuildError is returned by Context.BuildProgram when the source fails to
// compile. Logs holds the build log of every device keyed by device name.
type BuildError struct {
	Logs map[string]string
}

func (e *BuildError) Error() string {
	names := make([]string, 0, len(e.Logs))
	for name := range e.Logs {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(ErrBuildProgramFailure.Error())
	for _, name := range names {
		fmt.Fprintf(&sb, "\n[%s]\n%s", name, strings.TrimRight(e.Logs[name], "\n"))
	}
	return sb.String()
}

func (e *BuildError) Unwrap() error {
	return ErrBuildProgramFailure
}
