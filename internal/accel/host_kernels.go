package accel

import (
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// HostKernelFunc is the Go implementation of a kernel entry point.
type HostKernelFunc func(l *HostLaunch) error

// HostLaunch is the state a host kernel executes with.
type HostLaunch struct {
	Args    []any
	Global  NDRange
	Local   NDRange
	Defines map[string]string
	Workers int
}

// Buffer returns the contents of the buffer bound at index.
func (l *HostLaunch) Buffer(index int) ([]float32, error) {
	if index < 0 || index >= len(l.Args) {
		return nil, fmt.Errorf("argument %d: %w", index, ErrInvalidArgIndex)
	}
	buf, ok := l.Args[index].(Buffer)
	if !ok {
		return nil, fmt.Errorf("argument %d is %T, want buffer: %w", index, l.Args[index], ErrInvalidArgValue)
	}
	hb, err := asHostBuffer(buf)
	if err != nil {
		return nil, err
	}
	return hb.data, nil
}

// Int returns the scalar bound at index.
func (l *HostLaunch) Int(index int) (int, error) {
	if index < 0 || index >= len(l.Args) {
		return 0, fmt.Errorf("argument %d: %w", index, ErrInvalidArgIndex)
	}
	v, ok := l.Args[index].(int32)
	if !ok {
		return 0, fmt.Errorf("argument %d is %T, want int32: %w", index, l.Args[index], ErrInvalidArgValue)
	}
	return int(v), nil
}

// Define returns the integer value of a preprocessor define, or def when the
// program does not define name.
func (l *HostLaunch) Define(name string, def int) (int, error) {
	raw, ok := l.Defines[name]
	if !ok {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("define %s=%q is not an integer: %w", name, raw, err)
	}
	return v, nil
}

// forEachGroup runs fn for every work group of a two dimensional launch on
// up to Workers goroutines.
func (l *HostLaunch) forEachGroup(fn func(g0, g1 int)) error {
	groups0 := l.Global[0] / l.Local[0]
	groups1 := l.Global[1] / l.Local[1]

	var eg errgroup.Group
	eg.SetLimit(l.Workers)
	for g0 := 0; g0 < groups0; g0++ {
		for g1 := 0; g1 < groups1; g1++ {
			eg.Go(func() error {
				fn(g0, g1)
				return nil
			})
		}
	}
	return eg.Wait()
}

// SGEMMItemsDefine names the define that sets how many output columns one
// work item of the sgemm kernel produces.
const SGEMMItemsDefine = "ITEMS"

const defaultSGEMMItems = 8

var builtinHostKernels = map[string]HostKernelFunc{
	"sgemm": sgemmKernel,
}

// sgemmKernel computes C[r][n] = sum_k A[r][k] * B[k][n] for the rows of one
// device slice. Arguments: A slice, B, C slice, rows, N, K. Work item (r, g)
// owns row r and columns [g*ITEMS, (g+1)*ITEMS); items outside the matrix are
// idle, and rows or columns not covered by the global range are left untouched.
func sgemmKernel(l *HostLaunch) error {
	if len(l.Global) != 2 {
		return fmt.Errorf("sgemm needs a 2D range, got %v: %w", l.Global, ErrInvalidWorkDimension)
	}
	a, err := l.Buffer(0)
	if err != nil {
		return err
	}
	b, err := l.Buffer(1)
	if err != nil {
		return err
	}
	c, err := l.Buffer(2)
	if err != nil {
		return err
	}
	rows, err := l.Int(3)
	if err != nil {
		return err
	}
	n, err := l.Int(4)
	if err != nil {
		return err
	}
	k, err := l.Int(5)
	if err != nil {
		return err
	}
	items, err := l.Define(SGEMMItemsDefine, defaultSGEMMItems)
	if err != nil {
		return err
	}
	if rows <= 0 || n <= 0 || k <= 0 || items <= 0 {
		return fmt.Errorf("sgemm rows=%d n=%d k=%d items=%d: %w", rows, n, k, items, ErrInvalidArgValue)
	}
	if len(a) < rows*k || len(b) < k*n || len(c) < rows*n {
		return fmt.Errorf("sgemm buffers too small for %dx%dx%d: %w", rows, n, k, ErrInvalidBufferRange)
	}

	tileRows := l.Local[0]
	tileCols := l.Local[1] * items
	return l.forEachGroup(func(g0, g1 int) {
		r0 := g0 * tileRows
		c0 := g1 * tileCols
		nr := min(tileRows, rows-r0)
		nc := min(tileCols, n-c0)
		if nr <= 0 || nc <= 0 {
			return
		}
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
			blas32.General{Rows: nr, Cols: k, Stride: k, Data: a[r0*k:]},
			blas32.General{Rows: k, Cols: nc, Stride: n, Data: b[c0:]},
			0,
			blas32.General{Rows: nr, Cols: nc, Stride: n, Data: c[r0*n+c0:]},
		)
	})
}
