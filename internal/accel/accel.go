// Package accel defines the accelerator platform API used by the GEMM engine.
//
// The interfaces mirror the OpenCL object model: a Platform enumerates Devices,
// a Context groups devices and owns Buffers and Programs, and every device is
// driven through its own in-order Queue. Two platforms implement the API:
//   - the host platform, which simulates a configurable number of devices in
//     process and is always available
//   - the OpenCL platform (build tag "opencl"), which binds the system ICD loader
//
// Implementations are not required to be safe for concurrent use of a single
// Queue or Kernel from several goroutines. Different queues may be driven
// concurrently.
package accel

import (
	"fmt"
	"strings"
)

// DeviceType selects the class of devices returned by Platform.Devices.
type DeviceType int

const (
	DeviceTypeGPU DeviceType = iota
	DeviceTypeCPU
	DeviceTypeAccelerator
	DeviceTypeAll
)

// String returns the lowercase name used in configuration files.
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeGPU:
		return "gpu"
	case DeviceTypeCPU:
		return "cpu"
	case DeviceTypeAccelerator:
		return "accelerator"
	case DeviceTypeAll:
		return "all"
	default:
		return fmt.Sprintf("DeviceType(%d)", int(t))
	}
}

// ParseDeviceType converts a configuration value into a DeviceType.
// An empty string selects GPUs.
func ParseDeviceType(s string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gpu":
		return DeviceTypeGPU, nil
	case "cpu":
		return DeviceTypeCPU, nil
	case "accelerator":
		return DeviceTypeAccelerator, nil
	case "all":
		return DeviceTypeAll, nil
	default:
		return 0, fmt.Errorf("unknown device type %q", s)
	}
}

// DeviceInfo contains information about an accelerator device
type DeviceInfo struct {
	Name             string `json:"name"`
	Vendor           string `json:"vendor"`
	Type             string `json:"type"`
	GlobalMemory     int64  `json:"globalMemory"` // in bytes
	MaxWorkGroupSize int    `json:"maxWorkGroupSize"`
	ComputeUnits     int    `json:"computeUnits"`
	DriverVersion    string `json:"driverVersion"`
}

// NDRange describes the global or local size of a kernel launch, one entry
// per dimension.
type NDRange []int

// Size returns the number of work items covered by the range.
func (r NDRange) Size() int {
	if len(r) == 0 {
		return 0
	}
	n := 1
	for _, d := range r {
		n *= d
	}
	return n
}

// Platform is the entry point of an accelerator API.
type Platform interface {
	// Name identifies the platform, e.g. "NVIDIA CUDA" or "host".
	Name() string

	// Devices returns the devices of the requested class in ordinal order.
	// It returns ErrDeviceNotFound when no device of that class exists.
	Devices(t DeviceType) ([]Device, error)

	// CreateContext groups devices so they can share programs and buffers.
	CreateContext(devices []Device) (Context, error)
}

// Device is a handle to one accelerator.
type Device interface {
	Ordinal() int
	Info() DeviceInfo
}

// Context owns the queues, buffers and programs of a set of devices.
type Context interface {
	// CreateQueue creates an in-order command queue on a device of the context.
	CreateQueue(device Device) (Queue, error)

	// CreateBuffer allocates a device resident float32 buffer of elems
	// elements. Contents are zero-initialized by the platform.
	CreateBuffer(elems int) (Buffer, error)

	// BuildProgram compiles source for every listed device using the given
	// compiler options (e.g. "-DITEMS=8"). A compile failure is reported as a
	// *BuildError carrying one log per device.
	BuildProgram(source []byte, devices []Device, options string) (Program, error)

	Release() error
}

// Buffer is an opaque handle to device memory.
type Buffer interface {
	// Len returns the buffer size in float32 elements.
	Len() int
	Release() error
}

// Program is a compiled kernel source.
type Program interface {
	// CreateKernel instantiates the entry point called name.
	CreateKernel(name string) (Kernel, error)
	Release() error
}

// Kernel is an entry point instance with its argument slots.
// Arguments are either a Buffer or an int32 scalar.
type Kernel interface {
	Name() string
	SetArg(index int, value any) error
	Release() error
}

// Queue is an in-order command stream bound to a single device. Commands
// execute in submission order relative to each other. A blocking enqueue
// returns after its command has completed; a non-blocking enqueue returns once
// the command is queued and the caller must not touch the host slice until
// Finish returns.
type Queue interface {
	Device() Device
	EnqueueWriteBuffer(buf Buffer, blocking bool, offset int, src []float32) error
	EnqueueReadBuffer(buf Buffer, blocking bool, offset int, dst []float32) error
	// EnqueueNDRangeKernel launches kernel with the arguments bound at the
	// time of the call.
	EnqueueNDRangeKernel(kernel Kernel, global, local NDRange) error
	// Finish blocks until every command enqueued so far has completed. It
	// reports the first failure of a non-blocking command, if any.
	Finish() error
	Release() error
}
