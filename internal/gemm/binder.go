package gemm

import (
	"fmt"

	"github.com/fxnlabs/multigemm/internal/accel"
)

// Kernel argument slots of the sgemm entry point.
const (
	argA = iota
	argB
	argC
	argRows
	argN
	argK
)

// bindKernel sets the six kernel arguments of one device in slot order.
func bindKernel(k accel.Kernel, bufs DeviceBuffers, rows, n, kdim int) error {
	args := []struct {
		index int
		value any
	}{
		{argA, bufs.A},
		{argB, bufs.B},
		{argC, bufs.C},
		{argRows, int32(rows)},
		{argN, int32(n)},
		{argK, int32(kdim)},
	}
	for _, a := range args {
		if err := k.SetArg(a.index, a.value); err != nil {
			return fmt.Errorf("bind argument %d: %w", a.index, err)
		}
	}
	return nil
}
