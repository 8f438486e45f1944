package accel

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// hostQueue executes commands on a dedicated goroutine in submission order.
type hostQueue struct {
	device *hostDevice
	tasks  chan func() error
	done   chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	err      error
	released atomic.Bool
}

func newHostQueue(d *hostDevice) *hostQueue {
	q := &hostQueue{
		device: d,
		tasks:  make(chan func() error, 64),
		done:   make(chan struct{}),
	}
	go q.worker()
	return q
}

func (q *hostQueue) worker() {
	for task := range q.tasks {
		if err := task(); err != nil {
			q.mu.Lock()
			if q.err == nil {
				q.err = err
			}
			q.mu.Unlock()
		}
		q.wg.Done()
	}
	close(q.done)
}

// submit queues task. A blocking submit waits for the task and returns its
// error directly instead of deferring it to Finish.
func (q *hostQueue) submit(task func() error, blocking bool) error {
	if q.released.Load() {
		return fmt.Errorf("queue on %s: %w", q.device, ErrReleased)
	}
	if !blocking {
		q.wg.Add(1)
		q.tasks <- task
		return nil
	}
	res := make(chan error, 1)
	q.wg.Add(1)
	q.tasks <- func() error {
		res <- task()
		return nil
	}
	return <-res
}

func (q *hostQueue) Device() Device {
	return q.device
}

func (q *hostQueue) EnqueueWriteBuffer(buf Buffer, blocking bool, offset int, src []float32) error {
	hb, err := asHostBuffer(buf)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(src) > hb.Len() {
		return fmt.Errorf("write of %d elements at %d into buffer of %d: %w", len(src), offset, hb.Len(), ErrInvalidBufferRange)
	}
	return q.submit(func() error {
		copy(hb.data[offset:], src)
		return nil
	}, blocking)
}

func (q *hostQueue) EnqueueReadBuffer(buf Buffer, blocking bool, offset int, dst []float32) error {
	hb, err := asHostBuffer(buf)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(dst) > hb.Len() {
		return fmt.Errorf("read of %d elements at %d from buffer of %d: %w", len(dst), offset, hb.Len(), ErrInvalidBufferRange)
	}
	return q.submit(func() error {
		copy(dst, hb.data[offset:offset+len(dst)])
		return nil
	}, blocking)
}

func (q *hostQueue) EnqueueNDRangeKernel(kernel Kernel, global, local NDRange) error {
	hk, ok := kernel.(*hostKernel)
	if !ok || hk.program.platform != q.device.platform {
		return fmt.Errorf("kernel %T is not a host kernel: %w", kernel, ErrInvalidKernelArgs)
	}
	if hk.released.Load() {
		return fmt.Errorf("launch %q: %w", hk.name, ErrReleased)
	}
	if err := q.validateRange(global, local); err != nil {
		return fmt.Errorf("launch %q: %w", hk.name, err)
	}
	args, err := hk.snapshot()
	if err != nil {
		return err
	}

	launch := &HostLaunch{
		Args:    args,
		Global:  append(NDRange(nil), global...),
		Local:   append(NDRange(nil), local...),
		Defines: hk.program.defines,
		Workers: q.device.platform.opts.Workers,
	}
	return q.submit(func() error {
		if err := hk.fn(launch); err != nil {
			return fmt.Errorf("kernel %q on %s: %w", hk.name, q.device, err)
		}
		return nil
	}, false)
}

// validateRange enforces the launch geometry rules of the device API: the
// global size must be a positive multiple of the local size in every
// dimension and a work group may not exceed the device limit.
func (q *hostQueue) validateRange(global, local NDRange) error {
	if len(global) == 0 || len(global) > 3 || len(global) != len(local) {
		return fmt.Errorf("global %v, local %v: %w", global, local, ErrInvalidWorkDimension)
	}
	for d := range global {
		if local[d] <= 0 || global[d] <= 0 || global[d]%local[d] != 0 {
			return fmt.Errorf("global %v is not a multiple of local %v: %w", global, local, ErrInvalidWorkGroupSize)
		}
	}
	if limit := q.device.platform.opts.MaxWorkGroupSize; local.Size() > limit {
		return fmt.Errorf("work group of %d items exceeds device limit %d: %w", local.Size(), limit, ErrInvalidWorkGroupSize)
	}
	return nil
}

func (q *hostQueue) Finish() error {
	if q.released.Load() {
		return fmt.Errorf("finish queue on %s: %w", q.device, ErrReleased)
	}
	q.wg.Wait()
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.err
	q.err = nil
	return err
}

func (q *hostQueue) Release() error {
	if !q.released.CompareAndSwap(false, true) {
		return fmt.Errorf("release queue on %s: %w", q.device, ErrReleased)
	}
	q.wg.Wait()
	close(q.tasks)
	<-q.done
	return nil
}
