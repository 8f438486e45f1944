package gemm

import (
	"time"

	"github.com/fxnlabs/multigemm/internal/metrics"
	"go.uber.org/zap"
)

// dispatch runs one product over all devices: upload and launch in device
// order, download every C slice into its rows of w.C, then wait on every
// queue. Only after the final barrier is w.C complete.
func (s *Session) dispatch(w Workload) error {
	start := time.Now()

	for _, d := range s.devices {
		aSlice := w.A[d.rowOffset*w.K : (d.rowOffset+d.rows)*w.K]
		if err := d.queue.EnqueueWriteBuffer(d.buffers.A, s.opts.BlockingTransfers, 0, aSlice); err != nil {
			return s.abort(newError(KindDispatch, "upload A", d.ordinal, err))
		}
		if err := d.queue.EnqueueWriteBuffer(d.buffers.B, s.opts.BlockingTransfers, 0, w.B); err != nil {
			return s.abort(newError(KindDispatch, "upload B", d.ordinal, err))
		}
		metrics.TransferBytes.WithLabelValues(metrics.DirectionUpload).Add(float64(len(aSlice)+len(w.B)) * 4)

		if s.opts.RebindEachCompute {
			if err := bindKernel(d.kernel, d.buffers, d.rows, w.N, w.K); err != nil {
				return s.abort(newError(KindDispatch, "bind kernel", d.ordinal, err))
			}
		}

		if err := d.queue.EnqueueNDRangeKernel(d.kernel, d.grid.Global, d.grid.Local); err != nil {
			return s.abort(newError(KindDispatch, "launch kernel", d.ordinal, err))
		}
	}

	for _, d := range s.devices {
		cSlice := w.C[d.rowOffset*w.N : (d.rowOffset+d.rows)*w.N]
		if err := d.queue.EnqueueReadBuffer(d.buffers.C, s.opts.BlockingTransfers, 0, cSlice); err != nil {
			return s.abort(newError(KindDispatch, "download C", d.ordinal, err))
		}
		metrics.TransferBytes.WithLabelValues(metrics.DirectionDownload).Add(float64(len(cSlice)) * 4)
	}

	if err := s.finishAll("compute"); err != nil {
		return err
	}

	elapsed := time.Since(start)
	metrics.DispatchDuration.Observe(float64(elapsed.Microseconds()) / 1000)
	if secs := elapsed.Seconds(); secs > 0 {
		metrics.DispatchGFLOPS.Set(w.FLOPs() / secs / 1e9)
	}
	s.logger.Debug("Dispatch completed",
		zap.Duration("elapsed", elapsed),
		zap.Int("devices", len(s.devices)))
	return nil
}

// abort drains every queue so no device still touches host memory once the
// failed call returns, then hands back err.
func (s *Session) abort(err *Error) error {
	if ferr := s.finishAll("abort"); ferr != nil {
		s.logger.Warn("Queue drain after failed dispatch reported an error", zap.Error(ferr))
	}
	return err
}
