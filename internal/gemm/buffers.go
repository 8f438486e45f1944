package gemm

import (
	"errors"
	"fmt"

	"github.com/fxnlabs/multigemm/internal/accel"
	"go.uber.org/zap"
)

// DeviceBuffers are the device resident operands of one device: its rows of
// A, a full copy of B and its rows of C.
type DeviceBuffers struct {
	A, B, C accel.Buffer
}

// allocateBuffers creates the buffers for a device that owns rows rows.
// Buffers created before a failure are released again.
func allocateBuffers(ctx accel.Context, rows, n, k int, log *zap.Logger) (DeviceBuffers, error) {
	var bufs DeviceBuffers
	sizes := []struct {
		dst   *accel.Buffer
		elems int
		name  string
	}{
		{&bufs.A, rows * k, "A"},
		{&bufs.B, k * n, "B"},
		{&bufs.C, rows * n, "C"},
	}
	for _, s := range sizes {
		buf, err := ctx.CreateBuffer(s.elems)
		if err != nil {
			if rerr := bufs.release(); rerr != nil {
				log.Warn("Failed to release buffers after allocation failure", zap.Error(rerr))
			}
			return DeviceBuffers{}, fmt.Errorf("buffer %s of %d elements: %w", s.name, s.elems, err)
		}
		*s.dst = buf
	}
	return bufs, nil
}

func (b DeviceBuffers) release() error {
	var errs []error
	for _, buf := range []accel.Buffer{b.A, b.B, b.C} {
		if buf != nil {
			errs = append(errs, buf.Release())
		}
	}
	return errors.Join(errs...)
}
