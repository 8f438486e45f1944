package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiply(t *testing.T) {
	testCases := []struct {
		name    string
		a, b    []float32
		m, n, k int
		want    []float32
	}{
		{
			name: "2x2",
			a:    []float32{1, 2, 3, 4},
			b:    []float32{5, 6, 7, 8},
			m:    2, n: 2, k: 2,
			want: []float32{19, 22, 43, 50},
		},
		{
			name: "row times column",
			a:    []float32{1, 2, 3},
			b:    []float32{4, 5, 6},
			m:    1, n: 1, k: 3,
			want: []float32{32},
		},
		{
			name: "column times row",
			a:    []float32{1, 2},
			b:    []float32{3, 4, 5},
			m:    2, n: 3, k: 1,
			want: []float32{3, 4, 5, 6, 8, 10},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Multiply(tc.a, tc.b, tc.m, tc.n, tc.k)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tc.want, got, 1e-6)
		})
	}
}

func TestMultiply_Invalid(t *testing.T) {
	_, err := Multiply([]float32{1}, []float32{1}, 0, 1, 1)
	assert.Error(t, err)

	_, err = Multiply([]float32{1, 2}, []float32{1}, 1, 1, 1)
	assert.ErrorContains(t, err, "matrix A size mismatch: expected 1, got 2")

	_, err = Multiply([]float32{1}, []float32{1, 2, 3}, 1, 2, 1)
	assert.ErrorContains(t, err, "matrix B size mismatch")
}

func TestCompare(t *testing.T) {
	want := []float32{1, 200, -3, 0}

	assert.NoError(t, Compare([]float32{1, 200, -3, 0}, want, 2, 1e-6))
	assert.NoError(t, Compare([]float32{1.00001, 200.001, -3, 0.00001}, want, 2, 1e-4),
		"relative tolerance scales with large values")

	err := Compare([]float32{1, 200, -3.1, 0}, want, 2, 1e-4)
	var mismatch *Mismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 1, mismatch.Row)
	assert.Equal(t, 0, mismatch.Col)
	assert.Contains(t, err.Error(), "C[1][0]")

	assert.Error(t, Compare([]float32{1}, want, 2, 1e-4))
}

func TestRandom(t *testing.T) {
	a := Random(16, 8, 1)
	require.Len(t, a, 128)
	for _, v := range a {
		assert.GreaterOrEqual(t, v, float32(-1))
		assert.Less(t, v, float32(1))
	}
	assert.Equal(t, a, Random(16, 8, 1), "same seed, same values")
	assert.NotEqual(t, a, Random(16, 8, 2))
}

func TestFingerprint(t *testing.T) {
	a := []float32{1, 2, 3}
	assert.Equal(t, Fingerprint(a), Fingerprint([]float32{1, 2, 3}))
	assert.NotEqual(t, Fingerprint(a), Fingerprint([]float32{1, 2, 3.0001}))
	assert.Equal(t, 0.0, MaxAbsDiff(a, a))
	assert.InDelta(t, 0.5, MaxAbsDiff(a, []float32{1, 2.5, 3}), 1e-9)
}

func TestFlatten(t *testing.T) {
	data, rows, cols, err := Flatten([][]float64{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, data)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, Unflatten(data, rows, cols))

	_, _, _, err = Flatten([][]float64{{1, 2}, {3}})
	assert.ErrorContains(t, err, "row 1 has 1 columns")
	_, _, _, err = Flatten(nil)
	assert.Error(t, err)

	assert.Nil(t, Unflatten(data, 4, 4))
}
