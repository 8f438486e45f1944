package gemm

import (
	"math"
	"strconv"
	"testing"

	"github.com/fxnlabs/multigemm/internal/accel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWorkload_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		w       Workload
		wantErr string
	}{
		{
			name: "valid",
			w:    Workload{A: make([]float32, 6), B: make([]float32, 12), C: make([]float32, 8), M: 2, N: 4, K: 3},
		},
		{name: "zero rows", w: Workload{M: 0, N: 4, K: 3}, wantErr: "must be positive"},
		{
			name:    "short A",
			w:       Workload{A: make([]float32, 5), B: make([]float32, 12), C: make([]float32, 8), M: 2, N: 4, K: 3},
			wantErr: "matrix A size mismatch",
		},
		{
			name:    "short C",
			w:       Workload{A: make([]float32, 6), B: make([]float32, 12), C: make([]float32, 7), M: 2, N: 4, K: 3},
			wantErr: "matrix C size mismatch",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.w.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestWorkload_ValidateRejectsWideDimensions(t *testing.T) {
	if strconv.IntSize < 64 {
		t.Skip("int cannot hold dimensions above MaxInt32")
	}
	wide := int(int64(math.MaxInt32) + 1)

	for _, w := range []Workload{
		{M: wide, N: 1, K: 1},
		{M: 1, N: wide, K: 1},
		{M: 1, N: 1, K: wide},
	} {
		assert.ErrorContains(t, w.Validate(), "must not exceed")
	}

	s, err := NewSession(accel.NewHostPlatform(accel.HostOptions{Devices: 1}, nil), DefaultOptions(), zap.NewNop())
	require.NoError(t, err)
	err = s.Initialize(Workload{M: 1, N: wide, K: 1})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInvalidArgument))
	assert.Equal(t, StateUninitialized, s.State())
}
