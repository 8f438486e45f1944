package gemm

import (
	"fmt"
	"sync"

	"github.com/fxnlabs/multigemm/internal/accel"
)

// recorder wraps a platform and logs every device command so tests can
// check what the engine issued. fail makes the named operation return an
// error on the given device ordinal.
type recorder struct {
	accel.Platform

	mu       sync.Mutex
	writes   []transfer
	reads    []transfer
	launches []launch
	finishes map[int]int
	buffers  int
	released int
	fail     map[string]int
}

type transfer struct {
	device   int
	elems    int
	blocking bool
}

type launch struct {
	device int
	global accel.NDRange
	local  accel.NDRange
}

var errInjected = fmt.Errorf("injected failure")

func newRecorder(p accel.Platform) *recorder {
	return &recorder{Platform: p, finishes: make(map[int]int), fail: make(map[string]int)}
}

func (r *recorder) failAt(op string, device int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[op] = device
}

func (r *recorder) shouldFail(op string, device int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.fail[op]
	return ok && d == device
}

func (r *recorder) CreateContext(devices []accel.Device) (accel.Context, error) {
	ctx, err := r.Platform.CreateContext(devices)
	if err != nil {
		return nil, err
	}
	return &recordingContext{Context: ctx, r: r}, nil
}

type recordingContext struct {
	accel.Context
	r *recorder
}

func (c *recordingContext) CreateQueue(d accel.Device) (accel.Queue, error) {
	q, err := c.Context.CreateQueue(d)
	if err != nil {
		return nil, err
	}
	return &recordingQueue{Queue: q, r: c.r, ordinal: d.Ordinal()}, nil
}

func (c *recordingContext) CreateBuffer(elems int) (accel.Buffer, error) {
	buf, err := c.Context.CreateBuffer(elems)
	if err != nil {
		return nil, err
	}
	c.r.mu.Lock()
	c.r.buffers++
	c.r.mu.Unlock()
	return &recordingBuffer{Buffer: buf, r: c.r}, nil
}

func (c *recordingContext) BuildProgram(source []byte, devices []accel.Device, options string) (accel.Program, error) {
	p, err := c.Context.BuildProgram(source, devices, options)
	if err != nil {
		return nil, err
	}
	return &recordingProgram{Program: p}, nil
}

type recordingProgram struct {
	accel.Program
}

func (p *recordingProgram) CreateKernel(name string) (accel.Kernel, error) {
	k, err := p.Program.CreateKernel(name)
	if err != nil {
		return nil, err
	}
	return &recordingKernel{Kernel: k}, nil
}

type recordingKernel struct {
	accel.Kernel
}

func (k *recordingKernel) SetArg(index int, value any) error {
	if buf, ok := value.(accel.Buffer); ok {
		value = unwrap(buf)
	}
	return k.Kernel.SetArg(index, value)
}

type recordingBuffer struct {
	accel.Buffer
	r *recorder
}

func (b *recordingBuffer) Release() error {
	b.r.mu.Lock()
	b.r.released++
	b.r.mu.Unlock()
	return b.Buffer.Release()
}

type recordingQueue struct {
	accel.Queue
	r       *recorder
	ordinal int
}

func unwrap(buf accel.Buffer) accel.Buffer {
	if rb, ok := buf.(*recordingBuffer); ok {
		return rb.Buffer
	}
	return buf
}

func (q *recordingQueue) EnqueueWriteBuffer(buf accel.Buffer, blocking bool, offset int, src []float32) error {
	if q.r.shouldFail("write", q.ordinal) {
		return errInjected
	}
	q.r.mu.Lock()
	q.r.writes = append(q.r.writes, transfer{device: q.ordinal, elems: len(src), blocking: blocking})
	q.r.mu.Unlock()
	return q.Queue.EnqueueWriteBuffer(unwrap(buf), blocking, offset, src)
}

func (q *recordingQueue) EnqueueReadBuffer(buf accel.Buffer, blocking bool, offset int, dst []float32) error {
	if q.r.shouldFail("read", q.ordinal) {
		return errInjected
	}
	q.r.mu.Lock()
	q.r.reads = append(q.r.reads, transfer{device: q.ordinal, elems: len(dst), blocking: blocking})
	q.r.mu.Unlock()
	return q.Queue.EnqueueReadBuffer(unwrap(buf), blocking, offset, dst)
}

func (q *recordingQueue) EnqueueNDRangeKernel(k accel.Kernel, global, local accel.NDRange) error {
	if q.r.shouldFail("launch", q.ordinal) {
		return errInjected
	}
	q.r.mu.Lock()
	q.r.launches = append(q.r.launches, launch{device: q.ordinal, global: global, local: local})
	q.r.mu.Unlock()
	if rk, ok := k.(*recordingKernel); ok {
		k = rk.Kernel
	}
	return q.Queue.EnqueueNDRangeKernel(k, global, local)
}

func (q *recordingQueue) Finish() error {
	q.r.mu.Lock()
	q.r.finishes[q.ordinal]++
	q.r.mu.Unlock()
	return q.Queue.Finish()
}
