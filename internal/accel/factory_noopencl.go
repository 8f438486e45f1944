//go:build !opencl
// +build !opencl

package accel

import (
	"fmt"

	"go.uber.org/zap"
)

// tryCreateOpenCLPlatform reports the OpenCL platform as unavailable when the
// opencl build tag is NOT present
func tryCreateOpenCLPlatform(logger *zap.Logger) (Platform, error) {
	return nil, fmt.Errorf("compiled without OpenCL support: %w", ErrPlatformUnavailable)
}
