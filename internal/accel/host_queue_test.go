package accel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestHostQueue_Transfers(t *testing.T) {
	_, ctx, devices := newTestContext(t, HostOptions{Devices: 1})
	q, err := ctx.CreateQueue(devices[0])
	require.NoError(t, err)
	defer q.Release()
	assert.Equal(t, devices[0], q.Device())

	buf, err := ctx.CreateBuffer(6)
	require.NoError(t, err)

	for _, blocking := range []bool{true, false} {
		src := []float32{1, 2, 3}
		require.NoError(t, q.EnqueueWriteBuffer(buf, blocking, 2, src))
		dst := make([]float32, 6)
		require.NoError(t, q.EnqueueReadBuffer(buf, blocking, 0, dst))
		require.NoError(t, q.Finish())
		assert.Equal(t, []float32{0, 0, 1, 2, 3, 0}, dst)
	}

	assert.ErrorIs(t, q.EnqueueWriteBuffer(buf, true, 4, []float32{1, 2, 3}), ErrInvalidBufferRange)
	assert.ErrorIs(t, q.EnqueueReadBuffer(buf, true, -1, make([]float32, 1)), ErrInvalidBufferRange)
	assert.ErrorIs(t, q.EnqueueReadBuffer(buf, true, 0, make([]float32, 7)), ErrInvalidBufferRange)
}

func TestHostQueue_InOrder(t *testing.T) {
	_, ctx, devices := newTestContext(t, HostOptions{Devices: 1})
	q, err := ctx.CreateQueue(devices[0])
	require.NoError(t, err)
	defer q.Release()

	buf, err := ctx.CreateBuffer(1)
	require.NoError(t, err)
	dst := make([]float32, 1)
	for i := 1; i <= 100; i++ {
		require.NoError(t, q.EnqueueWriteBuffer(buf, false, 0, []float32{float32(i)}))
	}
	require.NoError(t, q.EnqueueReadBuffer(buf, false, 0, dst))
	require.NoError(t, q.Finish())
	assert.Equal(t, float32(100), dst[0])
}

func TestHostQueue_DeferredErrorReportedByFinish(t *testing.T) {
	p, ctx, devices := newTestContext(t, HostOptions{Devices: 1})
	failure := errors.New("kernel fault")
	p.RegisterKernel("fault", func(*HostLaunch) error { return failure })

	prog, err := ctx.BuildProgram([]byte("__kernel void fault(void) {}"), devices, "")
	require.NoError(t, err)
	k, err := prog.CreateKernel("fault")
	require.NoError(t, err)
	q, err := ctx.CreateQueue(devices[0])
	require.NoError(t, err)

	require.NoError(t, q.EnqueueNDRangeKernel(k, NDRange{1}, NDRange{1}))
	err = q.Finish()
	assert.ErrorIs(t, err, failure)
	assert.Contains(t, err.Error(), "Host Device 0")
	assert.NoError(t, q.Finish(), "errors are reported once")

	require.NoError(t, q.Release())
	assert.ErrorIs(t, q.Release(), ErrReleased)
	assert.ErrorIs(t, q.Finish(), ErrReleased)
	assert.ErrorIs(t, q.EnqueueNDRangeKernel(k, NDRange{1}, NDRange{1}), ErrReleased)
}

func TestHostQueue_ValidateRange(t *testing.T) {
	_, ctx, devices := newTestContext(t, HostOptions{Devices: 1, MaxWorkGroupSize: 256})
	q, err := ctx.CreateQueue(devices[0])
	require.NoError(t, err)
	defer q.Release()
	hq := q.(*hostQueue)

	testCases := []struct {
		name          string
		global, local NDRange
		want          error
	}{
		{name: "valid 2D", global: NDRange{56, 7}, local: NDRange{8, 7}},
		{name: "empty", global: NDRange{}, local: NDRange{}, want: ErrInvalidWorkDimension},
		{name: "4D", global: NDRange{1, 1, 1, 1}, local: NDRange{1, 1, 1, 1}, want: ErrInvalidWorkDimension},
		{name: "rank mismatch", global: NDRange{4, 4}, local: NDRange{4}, want: ErrInvalidWorkDimension},
		{name: "not a multiple", global: NDRange{57, 7}, local: NDRange{56, 7}, want: ErrInvalidWorkGroupSize},
		{name: "zero local", global: NDRange{8}, local: NDRange{0}, want: ErrInvalidWorkGroupSize},
		{name: "group too large", global: NDRange{56, 7}, local: NDRange{56, 7}, want: ErrInvalidWorkGroupSize},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := hq.validateRange(tc.global, tc.local)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSGEMMKernel(t *testing.T) {
	const rows, n, k = 5, 19, 6
	_, ctx, devices := newTestContext(t, HostOptions{Devices: 1, Workers: 3})

	prog, err := ctx.BuildProgram([]byte(sgemmSource), devices, "-DITEMS=4")
	require.NoError(t, err)
	kern, err := prog.CreateKernel("sgemm")
	require.NoError(t, err)
	q, err := ctx.CreateQueue(devices[0])
	require.NoError(t, err)
	defer q.Release()

	a := make([]float32, rows*k)
	b := make([]float32, k*n)
	for i := range a {
		a[i] = float32(i%7) - 3
	}
	for i := range b {
		b[i] = float32(i%5) * 0.5
	}

	bufA, err := ctx.CreateBuffer(len(a))
	require.NoError(t, err)
	bufB, err := ctx.CreateBuffer(len(b))
	require.NoError(t, err)
	bufC, err := ctx.CreateBuffer(rows * n)
	require.NoError(t, err)

	for i, v := range []any{bufA, bufB, bufC, int32(rows), int32(n), int32(k)} {
		require.NoError(t, kern.SetArg(i, v))
	}
	require.NoError(t, q.EnqueueWriteBuffer(bufA, false, 0, a))
	require.NoError(t, q.EnqueueWriteBuffer(bufB, false, 0, b))
	// 2 rows per group and 2 items of 4 columns: groups overhang both edges
	require.NoError(t, q.EnqueueNDRangeKernel(kern, NDRange{6, 6}, NDRange{2, 2}))
	c := make([]float32, rows*n)
	require.NoError(t, q.EnqueueReadBuffer(bufC, false, 0, c))
	require.NoError(t, q.Finish())

	want := make([]float64, rows*n)
	for r := 0; r < rows; r++ {
		for j := 0; j < n; j++ {
			var sum float64
			for x := 0; x < k; x++ {
				sum += float64(a[r*k+x]) * float64(b[x*n+j])
			}
			want[r*n+j] = sum
		}
	}
	got := make([]float64, len(c))
	for i, v := range c {
		got[i] = float64(v)
	}
	assert.True(t, floats.EqualApprox(got, want, 1e-4), "got %v want %v", got, want)
}

func TestSGEMMKernel_BadArguments(t *testing.T) {
	_, ctx, _ := newTestContext(t, HostOptions{Devices: 1})
	small, err := ctx.CreateBuffer(1)
	require.NoError(t, err)

	launch := &HostLaunch{
		Args:    []any{small, small, small, int32(2), int32(2), int32(2)},
		Global:  NDRange{2, 1},
		Local:   NDRange{2, 1},
		Workers: 1,
	}
	assert.ErrorIs(t, sgemmKernel(launch), ErrInvalidBufferRange)

	launch.Global = NDRange{2}
	assert.ErrorIs(t, sgemmKernel(launch), ErrInvalidWorkDimension)

	launch.Global = NDRange{2, 1}
	launch.Defines = map[string]string{SGEMMItemsDefine: "eight"}
	assert.Error(t, sgemmKernel(launch))

	launch.Defines = nil
	launch.Args[3] = int32(0)
	assert.ErrorIs(t, sgemmKernel(launch), ErrInvalidArgValue)

	launch.Args[0] = int32(1)
	assert.ErrorIs(t, sgemmKernel(launch), ErrInvalidArgValue)
}
