package gemm

import (
	"fmt"

	"github.com/fxnlabs/multigemm/internal/accel"
	"go.uber.org/zap"
)

// Discover returns the devices a problem with m rows is spread over: the
// first min(available, m, maxDevices) devices of class t in ordinal order, so
// that no selected device is left without rows.
func Discover(p accel.Platform, t accel.DeviceType, m, maxDevices int, log *zap.Logger) ([]accel.Device, error) {
	if m <= 0 || maxDevices <= 0 {
		return nil, newError(KindInvalidArgument, "discover", -1,
			fmt.Errorf("rows %d and device cap %d must be positive", m, maxDevices))
	}
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("Detected platform", zap.String("platform", p.Name()))

	available, err := p.Devices(t)
	if err != nil {
		return nil, newError(KindPlatform, "discover", -1, err)
	}
	ndev := min(len(available), m, maxDevices)
	if ndev == 0 {
		return nil, newError(KindPlatform, "discover", -1,
			fmt.Errorf("%s platform reported no %s devices: %w", p.Name(), t, ErrNoDevices))
	}

	selected := available[:ndev]
	for _, d := range selected {
		info := d.Info()
		log.Info("Detected device",
			zap.Int("ordinal", d.Ordinal()),
			zap.String("device", info.Name),
			zap.String("vendor", info.Vendor),
			zap.Int64("global_memory_mb", info.GlobalMemory/(1024*1024)))
	}
	if ndev < len(available) {
		log.Debug("Device count clamped",
			zap.Int("available", len(available)),
			zap.Int("selected", ndev),
			zap.Int("rows", m),
			zap.Int("max_devices", maxDevices))
	}
	return selected, nil
}
