//go:build opencl
// +build opencl

package accel

/*
#cgo linux LDFLAGS: -lOpenCL
#cgo windows LDFLAGS: -lOpenCL
#cgo darwin LDFLAGS: -framework OpenCL

#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif
#include <stdlib.h>

static cl_int set_mem_arg(cl_kernel k, cl_uint index, cl_mem mem) {
	return clSetKernelArg(k, index, sizeof(cl_mem), &mem);
}

static cl_int set_int_arg(cl_kernel k, cl_uint index, cl_int v) {
	return clSetKernelArg(k, index, sizeof(cl_int), &v);
}
*/
import "C"

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"go.uber.org/zap"
)

const maxOpenCLDevices = 64

// OpenCLPlatform implements Platform on top of the system OpenCL ICD loader.
type OpenCLPlatform struct {
	id     C.cl_platform_id
	name   string
	logger *zap.Logger
}

// NewOpenCLPlatform binds the first OpenCL platform of the system.
func NewOpenCLPlatform(logger *zap.Logger) (*OpenCLPlatform, error) {
	var id C.cl_platform_id
	var n C.cl_uint
	if err := clError(C.clGetPlatformIDs(1, &id, &n)); err != nil {
		return nil, fmt.Errorf("clGetPlatformIDs: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("no OpenCL platform installed: %w", ErrPlatformUnavailable)
	}
	name, err := platformString(id, C.CL_PLATFORM_NAME)
	if err != nil {
		return nil, err
	}
	return &OpenCLPlatform{id: id, name: name, logger: logger.Named("opencl")}, nil
}

func (p *OpenCLPlatform) Name() string {
	return p.name
}

func (p *OpenCLPlatform) Devices(t DeviceType) ([]Device, error) {
	var clType C.cl_device_type
	switch t {
	case DeviceTypeGPU:
		clType = C.CL_DEVICE_TYPE_GPU
	case DeviceTypeCPU:
		clType = C.CL_DEVICE_TYPE_CPU
	case DeviceTypeAccelerator:
		clType = C.CL_DEVICE_TYPE_ACCELERATOR
	default:
		clType = C.CL_DEVICE_TYPE_ALL
	}

	var n C.cl_uint
	if err := clError(C.clGetDeviceIDs(p.id, clType, 0, nil, &n)); err != nil {
		return nil, fmt.Errorf("clGetDeviceIDs(%s): %w", t, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%s platform has no %s devices: %w", p.name, t, ErrDeviceNotFound)
	}
	if n > maxOpenCLDevices {
		n = maxOpenCLDevices
	}
	ids := make([]C.cl_device_id, n)
	if err := clError(C.clGetDeviceIDs(p.id, clType, n, &ids[0], nil)); err != nil {
		return nil, fmt.Errorf("clGetDeviceIDs(%s): %w", t, err)
	}

	devices := make([]Device, n)
	for i, id := range ids {
		d := &openCLDevice{id: id, ordinal: i}
		if err := d.load(t); err != nil {
			return nil, err
		}
		devices[i] = d
	}
	return devices, nil
}

func (p *OpenCLPlatform) CreateContext(devices []Device) (Context, error) {
	ids, err := deviceIDs(devices)
	if err != nil {
		return nil, err
	}
	var status C.cl_int
	ctx := C.clCreateContext(nil, C.cl_uint(len(ids)), &ids[0], nil, nil, &status)
	if err := clError(status); err != nil {
		return nil, fmt.Errorf("clCreateContext: %w", err)
	}
	return &openCLContext{ctx: ctx, logger: p.logger}, nil
}

type openCLDevice struct {
	id      C.cl_device_id
	ordinal int
	info    DeviceInfo
}

func (d *openCLDevice) load(t DeviceType) error {
	name, err := deviceString(d.id, C.CL_DEVICE_NAME)
	if err != nil {
		return err
	}
	vendor, err := deviceString(d.id, C.CL_DEVICE_VENDOR)
	if err != nil {
		return err
	}
	driver, err := deviceString(d.id, C.CL_DRIVER_VERSION)
	if err != nil {
		return err
	}
	var mem C.cl_ulong
	if err := clError(C.clGetDeviceInfo(d.id, C.CL_DEVICE_GLOBAL_MEM_SIZE, C.size_t(unsafe.Sizeof(mem)), unsafe.Pointer(&mem), nil)); err != nil {
		return fmt.Errorf("clGetDeviceInfo(CL_DEVICE_GLOBAL_MEM_SIZE): %w", err)
	}
	var wg C.size_t
	if err := clError(C.clGetDeviceInfo(d.id, C.CL_DEVICE_MAX_WORK_GROUP_SIZE, C.size_t(unsafe.Sizeof(wg)), unsafe.Pointer(&wg), nil)); err != nil {
		return fmt.Errorf("clGetDeviceInfo(CL_DEVICE_MAX_WORK_GROUP_SIZE): %w", err)
	}
	var cu C.cl_uint
	if err := clError(C.clGetDeviceInfo(d.id, C.CL_DEVICE_MAX_COMPUTE_UNITS, C.size_t(unsafe.Sizeof(cu)), unsafe.Pointer(&cu), nil)); err != nil {
		return fmt.Errorf("clGetDeviceInfo(CL_DEVICE_MAX_COMPUTE_UNITS): %w", err)
	}
	d.info = DeviceInfo{
		Name:             name,
		Vendor:           vendor,
		Type:             t.String(),
		GlobalMemory:     int64(mem),
		MaxWorkGroupSize: int(wg),
		ComputeUnits:     int(cu),
		DriverVersion:    driver,
	}
	return nil
}

func (d *openCLDevice) Ordinal() int {
	return d.ordinal
}

func (d *openCLDevice) Info() DeviceInfo {
	return d.info
}

type openCLContext struct {
	ctx    C.cl_context
	logger *zap.Logger
}

func (c *openCLContext) CreateQueue(device Device) (Queue, error) {
	d, ok := device.(*openCLDevice)
	if !ok {
		return nil, fmt.Errorf("device %T is not an OpenCL device: %w", device, ErrInvalidDevice)
	}
	var status C.cl_int
	q := C.clCreateCommandQueue(c.ctx, d.id, 0, &status)
	if err := clError(status); err != nil {
		return nil, fmt.Errorf("clCreateCommandQueue(%s): %w", d.info.Name, err)
	}
	return &openCLQueue{q: q, device: d}, nil
}

func (c *openCLContext) CreateBuffer(elems int) (Buffer, error) {
	if elems <= 0 {
		return nil, fmt.Errorf("buffer of %d elements: %w", elems, ErrInvalidBufferSize)
	}
	var status C.cl_int
	mem := C.clCreateBuffer(c.ctx, C.CL_MEM_READ_WRITE, C.size_t(elems*4), nil, &status)
	if err := clError(status); err != nil {
		return nil, fmt.Errorf("clCreateBuffer(%d bytes): %w", elems*4, err)
	}
	return &openCLBuffer{mem: mem, elems: elems}, nil
}

func (c *openCLContext) BuildProgram(source []byte, devices []Device, options string) (Program, error) {
	ids, err := deviceIDs(devices)
	if err != nil {
		return nil, err
	}

	src := C.CString(string(source))
	defer C.free(unsafe.Pointer(src))
	length := C.size_t(len(source))
	var status C.cl_int
	prog := C.clCreateProgramWithSource(c.ctx, 1, &src, &length, &status)
	if err := clError(status); err != nil {
		return nil, fmt.Errorf("clCreateProgramWithSource: %w", err)
	}

	opts := C.CString(options)
	defer C.free(unsafe.Pointer(opts))
	status = C.clBuildProgram(prog, C.cl_uint(len(ids)), &ids[0], opts, nil, nil)
	if status == C.CL_BUILD_PROGRAM_FAILURE {
		logs := make(map[string]string, len(devices))
		for i, d := range devices {
			log, err := buildLog(prog, ids[i])
			if err != nil {
				C.clReleaseProgram(prog)
				return nil, err
			}
			logs[d.Info().Name] = log
		}
		C.clReleaseProgram(prog)
		return nil, &BuildError{Logs: logs}
	}
	if err := clError(status); err != nil {
		C.clReleaseProgram(prog)
		return nil, fmt.Errorf("clBuildProgram: %w", err)
	}
	return &openCLProgram{prog: prog}, nil
}

func (c *openCLContext) Release() error {
	return clError(C.clReleaseContext(c.ctx))
}

type openCLBuffer struct {
	mem   C.cl_mem
	elems int
}

func (b *openCLBuffer) Len() int {
	return b.elems
}

func (b *openCLBuffer) Release() error {
	return clError(C.clReleaseMemObject(b.mem))
}

type openCLProgram struct {
	prog C.cl_program
}

func (p *openCLProgram) CreateKernel(name string) (Kernel, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	var status C.cl_int
	k := C.clCreateKernel(p.prog, cname, &status)
	if err := clError(status); err != nil {
		return nil, fmt.Errorf("clCreateKernel(%q): %w", name, err)
	}
	return &openCLKernel{k: k, name: name}, nil
}

func (p *openCLProgram) Release() error {
	return clError(C.clReleaseProgram(p.prog))
}

type openCLKernel struct {
	k    C.cl_kernel
	name string
}

func (k *openCLKernel) Name() string {
	return k.name
}

func (k *openCLKernel) SetArg(index int, value any) error {
	var status C.cl_int
	switch v := value.(type) {
	case int32:
		status = C.set_int_arg(k.k, C.cl_uint(index), C.cl_int(v))
	case *openCLBuffer:
		status = C.set_mem_arg(k.k, C.cl_uint(index), v.mem)
	default:
		return fmt.Errorf("argument %d of %q has unsupported type %T: %w", index, k.name, value, ErrInvalidArgValue)
	}
	if err := clError(status); err != nil {
		return fmt.Errorf("clSetKernelArg(%q, %d): %w", k.name, index, err)
	}
	return nil
}

func (k *openCLKernel) Release() error {
	return clError(C.clReleaseKernel(k.k))
}

// openCLQueue pins host slices handed to non-blocking transfers until the
// next Finish so the device may read or write them after the call returns.
type openCLQueue struct {
	q      C.cl_command_queue
	device *openCLDevice

	mu      sync.Mutex
	pinners []*runtime.Pinner
}

func (q *openCLQueue) Device() Device {
	return q.device
}

func (q *openCLQueue) pin(p *float32, blocking bool) {
	if blocking {
		return
	}
	var pinner runtime.Pinner
	pinner.Pin(p)
	q.mu.Lock()
	q.pinners = append(q.pinners, &pinner)
	q.mu.Unlock()
}

func (q *openCLQueue) EnqueueWriteBuffer(buf Buffer, blocking bool, offset int, src []float32) error {
	b, ok := buf.(*openCLBuffer)
	if !ok {
		return fmt.Errorf("buffer %T is not an OpenCL buffer: %w", buf, ErrInvalidArgValue)
	}
	if len(src) == 0 || offset < 0 || offset+len(src) > b.elems {
		return fmt.Errorf("write of %d elements at %d into buffer of %d: %w", len(src), offset, b.elems, ErrInvalidBufferRange)
	}
	q.pin(&src[0], blocking)
	status := C.clEnqueueWriteBuffer(q.q, b.mem, clBool(blocking), C.size_t(offset*4), C.size_t(len(src)*4),
		unsafe.Pointer(&src[0]), 0, nil, nil)
	if err := clError(status); err != nil {
		return fmt.Errorf("clEnqueueWriteBuffer(%s): %w", q.device.info.Name, err)
	}
	return nil
}

func (q *openCLQueue) EnqueueReadBuffer(buf Buffer, blocking bool, offset int, dst []float32) error {
	b, ok := buf.(*openCLBuffer)
	if !ok {
		return fmt.Errorf("buffer %T is not an OpenCL buffer: %w", buf, ErrInvalidArgValue)
	}
	if len(dst) == 0 || offset < 0 || offset+len(dst) > b.elems {
		return fmt.Errorf("read of %d elements at %d from buffer of %d: %w", len(dst), offset, b.elems, ErrInvalidBufferRange)
	}
	q.pin(&dst[0], blocking)
	status := C.clEnqueueReadBuffer(q.q, b.mem, clBool(blocking), C.size_t(offset*4), C.size_t(len(dst)*4),
		unsafe.Pointer(&dst[0]), 0, nil, nil)
	if err := clError(status); err != nil {
		return fmt.Errorf("clEnqueueReadBuffer(%s): %w", q.device.info.Name, err)
	}
	return nil
}

func (q *openCLQueue) EnqueueNDRangeKernel(kernel Kernel, global, local NDRange) error {
	k, ok := kernel.(*openCLKernel)
	if !ok {
		return fmt.Errorf("kernel %T is not an OpenCL kernel: %w", kernel, ErrInvalidKernelArgs)
	}
	if len(global) == 0 || len(global) > 3 || len(global) != len(local) {
		return fmt.Errorf("global %v, local %v: %w", global, local, ErrInvalidWorkDimension)
	}
	var gws, lws [3]C.size_t
	for d := range global {
		gws[d] = C.size_t(global[d])
		lws[d] = C.size_t(local[d])
	}
	status := C.clEnqueueNDRangeKernel(q.q, k.k, C.cl_uint(len(global)), nil, &gws[0], &lws[0], 0, nil, nil)
	if err := clError(status); err != nil {
		return fmt.Errorf("clEnqueueNDRangeKernel(%q on %s): %w", k.name, q.device.info.Name, err)
	}
	return nil
}

func (q *openCLQueue) Finish() error {
	err := clError(C.clFinish(q.q))
	q.mu.Lock()
	for _, p := range q.pinners {
		p.Unpin()
	}
	q.pinners = nil
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("clFinish(%s): %w", q.device.info.Name, err)
	}
	return nil
}

func (q *openCLQueue) Release() error {
	return clError(C.clReleaseCommandQueue(q.q))
}

func deviceIDs(devices []Device) ([]C.cl_device_id, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("no devices: %w", ErrInvalidDevice)
	}
	ids := make([]C.cl_device_id, len(devices))
	for i, d := range devices {
		od, ok := d.(*openCLDevice)
		if !ok {
			return nil, fmt.Errorf("device %T is not an OpenCL device: %w", d, ErrInvalidDevice)
		}
		ids[i] = od.id
	}
	return ids, nil
}

func platformString(id C.cl_platform_id, param C.cl_platform_info) (string, error) {
	var sz C.size_t
	if err := clError(C.clGetPlatformInfo(id, param, 0, nil, &sz)); err != nil {
		return "", fmt.Errorf("clGetPlatformInfo: %w", err)
	}
	buf := make([]byte, sz)
	if sz == 0 {
		return "", nil
	}
	if err := clError(C.clGetPlatformInfo(id, param, sz, unsafe.Pointer(&buf[0]), nil)); err != nil {
		return "", fmt.Errorf("clGetPlatformInfo: %w", err)
	}
	return trimNul(buf), nil
}

func deviceString(id C.cl_device_id, param C.cl_device_info) (string, error) {
	var sz C.size_t
	if err := clError(C.clGetDeviceInfo(id, param, 0, nil, &sz)); err != nil {
		return "", fmt.Errorf("clGetDeviceInfo: %w", err)
	}
	if sz == 0 {
		return "", nil
	}
	buf := make([]byte, sz)
	if err := clError(C.clGetDeviceInfo(id, param, sz, unsafe.Pointer(&buf[0]), nil)); err != nil {
		return "", fmt.Errorf("clGetDeviceInfo: %w", err)
	}
	return trimNul(buf), nil
}

func buildLog(prog C.cl_program, id C.cl_device_id) (string, error) {
	var sz C.size_t
	if err := clError(C.clGetProgramBuildInfo(prog, id, C.CL_PROGRAM_BUILD_LOG, 0, nil, &sz)); err != nil {
		return "", fmt.Errorf("clGetProgramBuildInfo: %w", err)
	}
	if sz == 0 {
		return "", nil
	}
	buf := make([]byte, sz)
	if err := clError(C.clGetProgramBuildInfo(prog, id, C.CL_PROGRAM_BUILD_LOG, sz, unsafe.Pointer(&buf[0]), nil)); err != nil {
		return "", fmt.Errorf("clGetProgramBuildInfo: %w", err)
	}
	return trimNul(buf), nil
}

func trimNul(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func clBool(b bool) C.cl_bool {
	if b {
		return C.CL_TRUE
	}
	return C.CL_FALSE
}

// clError converts an OpenCL status code to an error wrapping the matching
// sentinel of this package.
func clError(status C.cl_int) error {
	switch status {
	case C.CL_SUCCESS:
		return nil
	case C.CL_DEVICE_NOT_FOUND:
		return fmt.Errorf("CL_DEVICE_NOT_FOUND: %w", ErrDeviceNotFound)
	case C.CL_INVALID_DEVICE:
		return fmt.Errorf("CL_INVALID_DEVICE: %w", ErrInvalidDevice)
	case C.CL_MEM_OBJECT_ALLOCATION_FAILURE:
		return fmt.Errorf("CL_MEM_OBJECT_ALLOCATION_FAILURE: %w", ErrOutOfResources)
	case C.CL_OUT_OF_RESOURCES:
		return fmt.Errorf("CL_OUT_OF_RESOURCES: %w", ErrOutOfResources)
	case C.CL_OUT_OF_HOST_MEMORY:
		return fmt.Errorf("CL_OUT_OF_HOST_MEMORY: %w", ErrOutOfResources)
	case C.CL_INVALID_BUFFER_SIZE:
		return fmt.Errorf("CL_INVALID_BUFFER_SIZE: %w", ErrInvalidBufferSize)
	case C.CL_BUILD_PROGRAM_FAILURE:
		return fmt.Errorf("CL_BUILD_PROGRAM_FAILURE: %w", ErrBuildProgramFailure)
	case C.CL_INVALID_KERNEL_NAME:
		return fmt.Errorf("CL_INVALID_KERNEL_NAME: %w", ErrInvalidKernelName)
	case C.CL_INVALID_ARG_INDEX:
		return fmt.Errorf("CL_INVALID_ARG_INDEX: %w", ErrInvalidArgIndex)
	case C.CL_INVALID_ARG_VALUE, C.CL_INVALID_ARG_SIZE, C.CL_INVALID_MEM_OBJECT:
		return fmt.Errorf("OpenCL error %d: %w", int(status), ErrInvalidArgValue)
	case C.CL_INVALID_KERNEL_ARGS:
		return fmt.Errorf("CL_INVALID_KERNEL_ARGS: %w", ErrInvalidKernelArgs)
	case C.CL_INVALID_WORK_DIMENSION:
		return fmt.Errorf("CL_INVALID_WORK_DIMENSION: %w", ErrInvalidWorkDimension)
	case C.CL_INVALID_WORK_GROUP_SIZE, C.CL_INVALID_WORK_ITEM_SIZE:
		return fmt.Errorf("OpenCL error %d: %w", int(status), ErrInvalidWorkGroupSize)
	case -1001: // CL_PLATFORM_NOT_FOUND_KHR from the ICD loader
		return fmt.Errorf("CL_PLATFORM_NOT_FOUND_KHR: %w", ErrPlatformUnavailable)
	default:
		return fmt.Errorf("OpenCL error %d", int(status))
	}
}
