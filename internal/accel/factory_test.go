//go:build !opencl

package accel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewPlatform(t *testing.T) {
	logger := zaptest.NewLogger(t)

	p, err := NewPlatform("host", HostOptions{Devices: 2}, logger)
	require.NoError(t, err)
	assert.Equal(t, PlatformHost, p.Name())

	// without the opencl build tag auto selection falls back to the host
	p, err = NewPlatform("", HostOptions{Devices: 1}, logger)
	require.NoError(t, err)
	assert.Equal(t, PlatformHost, p.Name())

	_, err = NewPlatform("OpenCL", HostOptions{}, logger)
	assert.ErrorIs(t, err, ErrPlatformUnavailable)

	_, err = NewPlatform("cuda", HostOptions{}, logger)
	assert.Error(t, err)
}

func TestParseDeviceType(t *testing.T) {
	for _, want := range []DeviceType{DeviceTypeGPU, DeviceTypeCPU, DeviceTypeAccelerator, DeviceTypeAll} {
		got, err := ParseDeviceType(want.String())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := ParseDeviceType(" GPU ")
	require.NoError(t, err)
	assert.Equal(t, DeviceTypeGPU, got)

	_, err = ParseDeviceType("fpga")
	assert.Error(t, err)
}
