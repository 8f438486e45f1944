// Package reference computes host-side matrix products used to check device
// results.
package reference

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gonum.org/v1/gonum/mat"
)

// Multiply returns A·B for row-major A (m×k) and B (k×n). The product is
// accumulated in float64.
func Multiply(a, b []float32, m, n, k int) ([]float32, error) {
	if m <= 0 || n <= 0 || k <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got m=%d n=%d k=%d", m, n, k)
	}
	if len(a) != m*k {
		return nil, fmt.Errorf("matrix A size mismatch: expected %d, got %d", m*k, len(a))
	}
	if len(b) != k*n {
		return nil, fmt.Errorf("matrix B size mismatch: expected %d, got %d", k*n, len(b))
	}

	am := mat.NewDense(m, k, Float32ToFloat64(a))
	bm := mat.NewDense(k, n, Float32ToFloat64(b))

	var res mat.Dense
	res.Mul(am, bm)
	return Float64ToFloat32(res.RawMatrix().Data), nil
}

// Mismatch locates the first element outside tolerance.
type Mismatch struct {
	Row, Col  int
	Got, Want float32
}

func (e *Mismatch) Error() string {
	return fmt.Sprintf("C[%d][%d] = %g, want %g", e.Row, e.Col, e.Got, e.Want)
}

// Compare checks got against want element-wise. An element passes when
// |got-want| <= tol * max(1, |want|). It returns a *Mismatch for the first
// element that fails.
func Compare(got, want []float32, n int, tol float64) error {
	if len(got) != len(want) {
		return fmt.Errorf("result size mismatch: expected %d, got %d", len(want), len(got))
	}
	for i := range want {
		w := float64(want[i])
		g := float64(got[i])
		if math.IsNaN(g) || math.Abs(g-w) > tol*math.Max(1, math.Abs(w)) {
			return &Mismatch{Row: i / n, Col: i % n, Got: got[i], Want: want[i]}
		}
	}
	return nil
}

// MaxAbsDiff returns the largest element-wise difference of two equally
// sized slices.
func MaxAbsDiff(a, b []float32) float64 {
	var out float64
	for i := range min(len(a), len(b)) {
		out = math.Max(out, math.Abs(float64(a[i])-float64(b[i])))
	}
	return out
}

// Random returns rows×cols values drawn uniformly from [-1, 1) with a
// deterministic generator seeded by seed.
func Random(rows, cols int, seed uint64) []float32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]float32, rows*cols)
	for i := range out {
		out[i] = rng.Float32()*2 - 1
	}
	return out
}

// Fingerprint returns the Keccak-256 hash of the little-endian IEEE-754
// encoding of c. Two runs produced the same matrix iff their fingerprints are
// equal.
func Fingerprint(c []float32) common.Hash {
	buf := make([]byte, 4*len(c))
	for i, v := range c {
		bits := math.Float32bits(v)
		buf[4*i] = byte(bits)
		buf[4*i+1] = byte(bits >> 8)
		buf[4*i+2] = byte(bits >> 16)
		buf[4*i+3] = byte(bits >> 24)
	}
	return crypto.Keccak256Hash(buf)
}
