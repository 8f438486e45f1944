package accel

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/mem"
	"go.uber.org/zap"
)

const (
	// HostPlatformName is the name reported by the in-process platform.
	HostPlatformName = "host"

	defaultHostMemoryBytes      = 1 << 30
	defaultHostMaxWorkGroupSize = 1024
)

// HostOptions configures the in-process platform.
type HostOptions struct {
	// Devices is the number of simulated devices. Zero means the platform
	// reports no devices at all.
	Devices int
	// Type is the device class the simulated devices report.
	Type DeviceType
	// MemoryBytes is the global memory of every device. A single buffer may
	// not exceed it and the context may not allocate more than the sum over
	// its devices. Zero splits the physical memory of the machine evenly
	// between the devices.
	MemoryBytes int64
	// MaxWorkGroupSize bounds the product of the local range of a launch.
	MaxWorkGroupSize int
	// Workers is the number of goroutines a device uses to execute the work
	// groups of one launch.
	Workers int
}

// HostPlatform implements Platform in process. Each device owns a goroutine
// that executes its queue, and kernels are resolved against a registry of Go
// implementations by entry point name.
type HostPlatform struct {
	opts    HostOptions
	logger  *zap.Logger
	devices []*hostDevice
	kernels map[string]HostKernelFunc
}

// NewHostPlatform creates a host platform with the builtin kernels registered.
func NewHostPlatform(opts HostOptions, logger *zap.Logger) *HostPlatform {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MemoryBytes <= 0 {
		opts.MemoryBytes = systemMemoryShare(opts.Devices, logger)
	}
	if opts.MaxWorkGroupSize <= 0 {
		opts.MaxWorkGroupSize = defaultHostMaxWorkGroupSize
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	p := &HostPlatform{
		opts:    opts,
		logger:  logger.Named("host"),
		kernels: make(map[string]HostKernelFunc),
	}
	for i := 0; i < opts.Devices; i++ {
		p.devices = append(p.devices, &hostDevice{platform: p, ordinal: i})
	}
	for name, fn := range builtinHostKernels {
		p.kernels[name] = fn
	}
	return p
}

// systemMemoryShare returns the physical memory of the machine divided by
// devices, or defaultHostMemoryBytes when it cannot be determined.
func systemMemoryShare(devices int, logger *zap.Logger) int64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Total == 0 {
		logger.Debug("Falling back to default device memory", zap.Error(err))
		return defaultHostMemoryBytes
	}
	return int64(vm.Total) / int64(max(devices, 1))
}

// RegisterKernel makes fn available to programs declaring an entry point
// called name. Registering an existing name replaces it.
func (p *HostPlatform) RegisterKernel(name string, fn HostKernelFunc) {
	p.kernels[name] = fn
}

func (p *HostPlatform) Name() string {
	return HostPlatformName
}

func (p *HostPlatform) Devices(t DeviceType) ([]Device, error) {
	if len(p.devices) == 0 || (t != DeviceTypeAll && t != p.opts.Type) {
		return nil, fmt.Errorf("%s platform has no %s devices: %w", p.Name(), t, ErrDeviceNotFound)
	}
	devices := make([]Device, len(p.devices))
	for i, d := range p.devices {
		devices[i] = d
	}
	return devices, nil
}

func (p *HostPlatform) CreateContext(devices []Device) (Context, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("context needs at least one device: %w", ErrInvalidDevice)
	}
	members := make([]*hostDevice, 0, len(devices))
	for _, d := range devices {
		hd, err := p.ownDevice(d)
		if err != nil {
			return nil, err
		}
		members = append(members, hd)
	}
	return &hostContext{
		platform: p,
		devices:  members,
		capacity: p.opts.MemoryBytes * int64(len(members)),
	}, nil
}

func (p *HostPlatform) ownDevice(d Device) (*hostDevice, error) {
	hd, ok := d.(*hostDevice)
	if !ok || hd.platform != p {
		return nil, fmt.Errorf("device %v does not belong to the %s platform: %w", d, p.Name(), ErrInvalidDevice)
	}
	return hd, nil
}

type hostDevice struct {
	platform *HostPlatform
	ordinal  int
}

func (d *hostDevice) Ordinal() int {
	return d.ordinal
}

func (d *hostDevice) Info() DeviceInfo {
	return DeviceInfo{
		Name:             fmt.Sprintf("Host Device %d", d.ordinal),
		Vendor:           "fxnlabs",
		Type:             d.platform.opts.Type.String(),
		GlobalMemory:     d.platform.opts.MemoryBytes,
		MaxWorkGroupSize: d.platform.opts.MaxWorkGroupSize,
		ComputeUnits:     d.platform.opts.Workers,
		DriverVersion:    runtime.Version(),
	}
}

func (d *hostDevice) String() string {
	return d.Info().Name
}

type hostContext struct {
	platform *HostPlatform
	devices  []*hostDevice

	mu        sync.Mutex
	allocated int64
	capacity  int64
	released  bool
}

func (c *hostContext) member(d Device) (*hostDevice, error) {
	hd, err := c.platform.ownDevice(d)
	if err != nil {
		return nil, err
	}
	for _, m := range c.devices {
		if m == hd {
			return hd, nil
		}
	}
	return nil, fmt.Errorf("%s is not part of the context: %w", hd, ErrInvalidDevice)
}

func (c *hostContext) CreateQueue(device Device) (Queue, error) {
	hd, err := c.member(device)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, fmt.Errorf("create queue: %w", ErrReleased)
	}
	return newHostQueue(hd), nil
}

func (c *hostContext) CreateBuffer(elems int) (Buffer, error) {
	size := int64(elems) * 4
	if elems <= 0 || size > c.platform.opts.MemoryBytes {
		return nil, fmt.Errorf("buffer of %d bytes (device limit %d): %w", size, c.platform.opts.MemoryBytes, ErrInvalidBufferSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, fmt.Errorf("create buffer: %w", ErrReleased)
	}
	if c.allocated+size > c.capacity {
		return nil, fmt.Errorf("buffer of %d bytes with %d of %d bytes in use: %w", size, c.allocated, c.capacity, ErrOutOfResources)
	}
	c.allocated += size
	return &hostBuffer{ctx: c, data: make([]float32, elems)}, nil
}

func (c *hostContext) free(size int64) {
	c.mu.Lock()
	c.allocated -= size
	c.mu.Unlock()
}

// Allocated returns the number of bytes currently held by live buffers.
func (c *hostContext) Allocated() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocated
}

func (c *hostContext) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return fmt.Errorf("release context: %w", ErrReleased)
	}
	c.released = true
	return nil
}

type hostBuffer struct {
	ctx      *hostContext
	data     []float32
	released atomic.Bool
}

func (b *hostBuffer) Len() int {
	return len(b.data)
}

func (b *hostBuffer) Release() error {
	if !b.released.CompareAndSwap(false, true) {
		return fmt.Errorf("release buffer: %w", ErrReleased)
	}
	b.ctx.free(int64(len(b.data)) * 4)
	return nil
}

func asHostBuffer(buf Buffer) (*hostBuffer, error) {
	hb, ok := buf.(*hostBuffer)
	if !ok || hb == nil {
		return nil, fmt.Errorf("buffer %T is not a host buffer: %w", buf, ErrInvalidArgValue)
	}
	if hb.released.Load() {
		return nil, fmt.Errorf("buffer: %w", ErrReleased)
	}
	return hb, nil
}
