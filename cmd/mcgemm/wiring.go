package main

import (
	"github.com/fxnlabs/multigemm/internal/accel"
	"github.com/fxnlabs/multigemm/internal/config"
	"github.com/fxnlabs/multigemm/internal/gemm"
	"go.uber.org/zap"
)

func newPlatform(cfg *config.Config, log *zap.Logger) (accel.Platform, error) {
	t, err := accel.ParseDeviceType(cfg.Platform.DeviceType)
	if err != nil {
		return nil, err
	}
	host := accel.HostOptions{
		Devices:          cfg.Platform.Host.Devices,
		Type:             t,
		MemoryBytes:      cfg.Platform.Host.MemoryBytes,
		MaxWorkGroupSize: cfg.Platform.Host.MaxWorkGroupSize,
		Workers:          cfg.Platform.Host.Workers,
	}
	return accel.NewPlatform(cfg.Platform.Name, host, log.Named("platform"))
}

func newOptions(cfg *config.Config) (gemm.Options, error) {
	opts := gemm.DefaultOptions()
	t, err := accel.ParseDeviceType(cfg.Platform.DeviceType)
	if err != nil {
		return opts, err
	}
	opts.DeviceType = t
	opts.MaxDevices = cfg.Engine.MaxDevices
	opts.BlockSize = cfg.Engine.BlockSize
	opts.ItemsPerThread = cfg.Engine.ItemsPerThread
	opts.BlockingTransfers = cfg.Engine.BlockingTransfers
	opts.RebindEachCompute = cfg.Engine.RebindEachCompute
	if cfg.Engine.KernelName != "" {
		opts.KernelName = cfg.Engine.KernelName
	}
	if cfg.Engine.KernelPath != "" {
		if err := opts.LoadKernel(cfg.Engine.KernelPath); err != nil {
			return opts, err
		}
	}
	return opts, opts.Validate()
}

func newSession(platform accel.Platform, opts gemm.Options, log *zap.Logger) (*gemm.Session, error) {
	return gemm.NewSession(platform, opts, log)
}
