package gemm

import (
	"fmt"
	"math"
)

// Workload describes one C = A·B problem. A is M×K, B is K×N and C is M×N,
// all row-major. The dimensions must stay the same from Initialize to
// Finalize; the slice contents may change between Compute calls.
type Workload struct {
	A, B, C []float32
	M, N, K int
}

// Validate checks the dimensions against the slice lengths.
func (w Workload) Validate() error {
	if w.M <= 0 || w.N <= 0 || w.K <= 0 {
		return fmt.Errorf("dimensions must be positive, got M=%d N=%d K=%d", w.M, w.N, w.K)
	}
	// Kernel arguments are 32-bit.
	if w.M > math.MaxInt32 || w.N > math.MaxInt32 || w.K > math.MaxInt32 {
		return fmt.Errorf("dimensions must not exceed %d, got M=%d N=%d K=%d", math.MaxInt32, w.M, w.N, w.K)
	}
	if len(w.A) != w.M*w.K {
		return fmt.Errorf("matrix A size mismatch: expected %d, got %d", w.M*w.K, len(w.A))
	}
	if len(w.B) != w.K*w.N {
		return fmt.Errorf("matrix B size mismatch: expected %d, got %d", w.K*w.N, len(w.B))
	}
	if len(w.C) != w.M*w.N {
		return fmt.Errorf("matrix C size mismatch: expected %d, got %d", w.M*w.N, len(w.C))
	}
	return nil
}

// FLOPs returns the floating point operation count of one product.
func (w Workload) FLOPs() float64 {
	return 2 * float64(w.M) * float64(w.N) * float64(w.K)
}
