// Package gemm distributes single-precision matrix multiplication over the
// devices of an accelerator platform.
//
// A Session owns every device resource. Initialize discovers devices, splits
// the rows of A between them, allocates per-device buffers and builds the
// kernel once; Compute then runs upload, launch, download and a final barrier
// as often as needed; Finalize drains the queues and releases everything.
//
//	s, err := gemm.NewSession(platform, gemm.DefaultOptions(), log)
//	w := gemm.Workload{A: a, B: b, C: c, M: m, N: n, K: k}
//	err = s.Initialize(w)
//	err = s.Compute(w) // C now holds A·B
//	err = s.Finalize(w)
package gemm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fxnlabs/multigemm/internal/accel"
	"github.com/fxnlabs/multigemm/internal/metrics"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// device is the per-device state created by Initialize.
type device struct {
	ordinal   int
	info      accel.DeviceInfo
	handle    accel.Device
	queue     accel.Queue
	kernel    accel.Kernel
	buffers   DeviceBuffers
	rows      int
	rowOffset int
	grid      Grid
}

// DeviceStatus describes one device of a ready session.
type DeviceStatus struct {
	Ordinal   int
	Name      string
	Rows      int
	RowOffset int
	Grid      Grid
}

// Session is the lifecycle controller. Its methods may be called from
// several goroutines; calls are serialised.
type Session struct {
	platform accel.Platform
	opts     Options
	logger   *zap.Logger

	mu        sync.Mutex
	state     State
	m, n, k   int
	partition Partition
	ctx       accel.Context
	program   accel.Program
	devices   []*device
}

// NewSession creates an uninitialized session on platform.
func NewSession(platform accel.Platform, opts Options, logger *zap.Logger) (*Session, error) {
	if platform == nil {
		return nil, newError(KindInvalidArgument, "new session", -1, errors.New("platform is nil"))
	}
	if err := opts.Validate(); err != nil {
		return nil, newError(KindInvalidArgument, "new session", -1, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		platform: platform,
		opts:     opts,
		logger:   logger.Named("session"),
	}, nil
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Partition returns a copy of the row assignment, or nil before Initialize.
func (s *Session) Partition() Partition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(Partition(nil), s.partition...)
}

// Devices describes the devices of a ready session.
func (s *Session) Devices() []DeviceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.devices, func(d *device, _ int) DeviceStatus {
		return DeviceStatus{
			Ordinal:   d.ordinal,
			Name:      d.info.Name,
			Rows:      d.rows,
			RowOffset: d.rowOffset,
			Grid:      d.grid,
		}
	})
}

// Initialize prepares the session for workloads shaped like w: device
// discovery, row partition, queues, buffers, program build and argument
// binding, followed by a drain of every queue. On failure every resource
// created so far is released and the session stays uninitialized.
func (s *Session) Initialize(w Workload) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.observeError(err) }()

	switch s.state {
	case StateReady:
		return newError(KindInvalidState, "initialize", -1, ErrAlreadyInitialized)
	case StateFinalized:
		return newError(KindInvalidState, "initialize", -1, ErrFinalized)
	}
	if err := w.Validate(); err != nil {
		return newError(KindInvalidArgument, "initialize", -1, err)
	}

	if err := s.setup(w); err != nil {
		if rerr := s.release(); rerr != nil {
			s.logger.Warn("Failed to release partially initialized session", zap.Error(rerr))
		}
		s.reset()
		return err
	}

	s.state = StateReady
	s.m, s.n, s.k = w.M, w.N, w.K
	metrics.DevicesInUse.Set(float64(len(s.devices)))
	metrics.DeviceMemoryBytes.Set(float64(s.bufferBytes()))
	s.logger.Info("GEMM session initialized",
		zap.Int("devices", len(s.devices)),
		zap.Ints("rows", s.partition),
		zap.Int("m", w.M), zap.Int("n", w.N), zap.Int("k", w.K))
	return nil
}

func (s *Session) setup(w Workload) error {
	handles, err := Discover(s.platform, s.opts.DeviceType, w.M, s.opts.MaxDevices, s.logger.Named("roster"))
	if err != nil {
		return err
	}

	s.partition, err = NewPartition(w.M, len(handles))
	if err != nil {
		return err
	}

	s.ctx, err = s.platform.CreateContext(handles)
	if err != nil {
		return newError(KindPlatform, "create context", -1, err)
	}

	for i, h := range handles {
		d := &device{
			ordinal:   i,
			info:      h.Info(),
			handle:    h,
			rows:      s.partition[i],
			rowOffset: s.partition.Offset(i),
		}
		d.grid = NewGrid(d.rows, w.N, s.opts.BlockSize, s.opts.ItemsPerThread)
		s.devices = append(s.devices, d)

		d.queue, err = s.ctx.CreateQueue(h)
		if err != nil {
			return newError(KindPlatform, "create queue", i, err)
		}
	}

	for _, d := range s.devices {
		d.buffers, err = allocateBuffers(s.ctx, d.rows, w.N, w.K, s.logger)
		if err != nil {
			return newError(KindAllocation, "allocate buffers", d.ordinal, err)
		}
	}

	s.program, err = s.ctx.BuildProgram(s.opts.KernelSource, handles, s.opts.buildOptions())
	if err != nil {
		var buildErr *accel.BuildError
		if errors.As(err, &buildErr) {
			for name, log := range buildErr.Logs {
				s.logger.Error("Compile error", zap.String("device", name), zap.String("log", log))
			}
		}
		return newError(KindBuild, "build program", -1, err)
	}

	for _, d := range s.devices {
		d.kernel, err = s.program.CreateKernel(s.opts.KernelName)
		if err != nil {
			return newError(KindBuild, "create kernel", d.ordinal, err)
		}
		if err := bindKernel(d.kernel, d.buffers, d.rows, w.N, w.K); err != nil {
			return newError(KindDispatch, "bind kernel", d.ordinal, err)
		}
	}

	return s.finishAll("initialize")
}

// Compute writes A·B into w.C. w must have the dimensions given to
// Initialize. When Compute returns an error the contents of w.C are
// unspecified.
func (s *Session) Compute(w Workload) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.observeError(err) }()

	if err := s.checkReady("compute", w); err != nil {
		return err
	}
	return s.dispatch(w)
}

// Finalize waits for all outstanding device work and releases every device
// resource. The session cannot be used afterwards.
func (s *Session) Finalize(w Workload) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.observeError(err) }()

	if err := s.checkReady("finalize", w); err != nil {
		return err
	}

	drainErr := s.finishAll("finalize")
	releaseErr := s.release()
	s.reset()
	s.state = StateFinalized
	metrics.DevicesInUse.Set(0)
	metrics.DeviceMemoryBytes.Set(0)

	if drainErr != nil {
		return drainErr
	}
	if releaseErr != nil {
		return newError(KindPlatform, "release", -1, releaseErr)
	}
	s.logger.Info("GEMM session finalized")
	return nil
}

func (s *Session) checkReady(op string, w Workload) error {
	switch s.state {
	case StateUninitialized:
		return newError(KindInvalidState, op, -1, ErrNotInitialized)
	case StateFinalized:
		return newError(KindInvalidState, op, -1, ErrFinalized)
	}
	if w.M != s.m || w.N != s.n || w.K != s.k {
		return newError(KindInvalidArgument, op, -1,
			fmt.Errorf("%w: got %dx%dx%d, initialized with %dx%dx%d", ErrDimensionMismatch, w.M, w.N, w.K, s.m, s.n, s.k))
	}
	if err := w.Validate(); err != nil {
		return newError(KindInvalidArgument, op, -1, err)
	}
	return nil
}

// finishAll drains every queue, returning the first failure after all
// queues have been drained.
func (s *Session) finishAll(op string) error {
	var first error
	for _, d := range s.devices {
		if d.queue == nil {
			continue
		}
		if err := d.queue.Finish(); err != nil && first == nil {
			first = newError(KindDispatch, op+": finish", d.ordinal, err)
		}
	}
	return first
}

// release frees device objects in reverse order of creation.
func (s *Session) release() error {
	var errs []error
	for _, d := range s.devices {
		if d.kernel != nil {
			errs = append(errs, d.kernel.Release())
		}
		errs = append(errs, d.buffers.release())
	}
	if s.program != nil {
		errs = append(errs, s.program.Release())
	}
	for _, d := range s.devices {
		if d.queue != nil {
			errs = append(errs, d.queue.Release())
		}
	}
	if s.ctx != nil {
		errs = append(errs, s.ctx.Release())
	}
	return errors.Join(errs...)
}

func (s *Session) reset() {
	s.devices = nil
	s.partition = nil
	s.program = nil
	s.ctx = nil
	s.m, s.n, s.k = 0, 0, 0
}

func (s *Session) bufferBytes() int64 {
	var total int64
	for _, d := range s.devices {
		total += int64(d.buffers.A.Len()+d.buffers.B.Len()+d.buffers.C.Len()) * 4
	}
	return total
}

func (s *Session) observeError(err error) {
	if err != nil {
		metrics.DispatchErrors.WithLabelValues(KindOf(err).String()).Inc()
	}
}
