package gemm

import (
	"fmt"
	"os"

	"github.com/fxnlabs/multigemm/internal/accel"
	"github.com/fxnlabs/multigemm/kernel"
)

const (
	// DefaultMaxDevices bounds the number of devices a session drives.
	DefaultMaxDevices = 4
	// DefaultBlockSize is the row extent of a work group.
	DefaultBlockSize = 56
	// DefaultItemsPerThread is the number of output columns per work item.
	DefaultItemsPerThread = 8
)

// Options configures a Session.
type Options struct {
	DeviceType     accel.DeviceType
	MaxDevices     int
	BlockSize      int
	ItemsPerThread int

	// KernelSource is the program compiled at Initialize. It must declare
	// KernelName with the argument list (A, B, C, rows, N, K).
	KernelSource []byte
	KernelName   string

	// BlockingTransfers makes every upload and download wait for completion
	// before the next command is issued. When false, transfers are queued and
	// only the final barrier of Compute waits for them.
	BlockingTransfers bool

	// RebindEachCompute sets the kernel arguments again before every launch
	// instead of only once at Initialize.
	RebindEachCompute bool
}

// DefaultOptions returns options matching the embedded kernel.
func DefaultOptions() Options {
	return Options{
		DeviceType:        accel.DeviceTypeGPU,
		MaxDevices:        DefaultMaxDevices,
		BlockSize:         DefaultBlockSize,
		ItemsPerThread:    DefaultItemsPerThread,
		KernelSource:      kernel.GetSource(),
		KernelName:        kernel.EntryPoint,
		BlockingTransfers: true,
	}
}

// Validate checks that the launch geometry is usable.
func (o Options) Validate() error {
	if o.MaxDevices <= 0 {
		return fmt.Errorf("max devices must be positive, got %d", o.MaxDevices)
	}
	if o.BlockSize <= 0 || o.ItemsPerThread <= 0 {
		return fmt.Errorf("block size %d and items per thread %d must be positive", o.BlockSize, o.ItemsPerThread)
	}
	if o.BlockSize%o.ItemsPerThread != 0 {
		return fmt.Errorf("block size %d is not a multiple of items per thread %d", o.BlockSize, o.ItemsPerThread)
	}
	if len(o.KernelSource) == 0 {
		return fmt.Errorf("kernel source is empty")
	}
	if o.KernelName == "" {
		return fmt.Errorf("kernel name is empty")
	}
	return nil
}

// LoadKernel replaces KernelSource with the contents of the file at path.
func (o *Options) LoadKernel(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return newError(KindBuild, "load kernel", -1, fmt.Errorf("failed to open %s: %w", path, err))
	}
	if len(src) == 0 {
		return newError(KindBuild, "load kernel", -1, fmt.Errorf("kernel source %s is empty", path))
	}
	o.KernelSource = src
	return nil
}

// buildOptions passes the launch geometry to the kernel compiler.
func (o Options) buildOptions() string {
	return fmt.Sprintf("-D%s=%d -DBS=%d", accel.SGEMMItemsDefine, o.ItemsPerThread, o.BlockSize)
}
