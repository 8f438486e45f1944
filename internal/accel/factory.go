package accel

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Platform names accepted by NewPlatform.
const (
	PlatformAuto   = "auto"
	PlatformHost   = HostPlatformName
	PlatformOpenCL = "opencl"
)

// NewPlatform returns the platform called name. "auto" (or an empty name)
// prefers OpenCL when the binary was built with it and a platform is
// installed, and falls back to the host platform otherwise.
func NewPlatform(name string, host HostOptions, logger *zap.Logger) (Platform, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PlatformHost:
		return NewHostPlatform(host, logger), nil
	case PlatformOpenCL:
		p, err := tryCreateOpenCLPlatform(logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "", PlatformAuto:
		p, err := tryCreateOpenCLPlatform(logger)
		if err == nil {
			logger.Info("Using OpenCL platform", zap.String("platform", p.Name()))
			return p, nil
		}
		logger.Info("Using host platform", zap.NamedError("opencl", err))
		return NewHostPlatform(host, logger), nil
	default:
		return nil, fmt.Errorf("unknown platform %q", name)
	}
}
