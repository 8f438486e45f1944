//go:build opencl
// +build opencl

package accel

import "go.uber.org/zap"

// tryCreateOpenCLPlatform binds the first OpenCL platform when the opencl build
// tag is present
func tryCreateOpenCLPlatform(logger *zap.Logger) (Platform, error) {
	return NewOpenCLPlatform(logger)
}
