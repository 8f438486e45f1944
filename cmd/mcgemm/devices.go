package main

import (
	"github.com/fxnlabs/multigemm/internal/accel"
	"github.com/fxnlabs/multigemm/internal/gemm"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func devicesCommand() *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List the devices of the configured platform",
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			log := appLogger(c)
			platform, err := newPlatform(cfg, log)
			if err != nil {
				return err
			}
			t, err := accel.ParseDeviceType(cfg.Platform.DeviceType)
			if err != nil {
				return err
			}
			infos, err := listDevices(platform, t)
			if err != nil {
				return err
			}

			log.Info("Detected platform", zap.String("platform", platform.Name()), zap.Int("devices", len(infos)))
			for i, info := range infos {
				log.Info("Detected device",
					zap.Int("ordinal", i),
					zap.String("device", info.Name),
					zap.String("vendor", info.Vendor),
					zap.String("type", info.Type),
					zap.Int64("global_memory_mb", info.GlobalMemory/(1024*1024)),
					zap.Int("max_work_group_size", info.MaxWorkGroupSize),
					zap.Int("compute_units", info.ComputeUnits),
					zap.String("driver", info.DriverVersion))
			}
			return nil
		},
	}
}

func listDevices(platform accel.Platform, t accel.DeviceType) ([]accel.DeviceInfo, error) {
	devices, err := platform.Devices(t)
	if err != nil {
		return nil, err
	}
	return lo.Map(devices, func(d accel.Device, _ int) accel.DeviceInfo {
		return d.Info()
	}), nil
}

func partitionCommand() *cli.Command {
	return &cli.Command{
		Name:  "partition",
		Usage: "Show how the rows of an M×N product are spread over the devices",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "m", Required: true, Usage: "rows of A and C"},
			&cli.IntFlag{Name: "n", Required: true, Usage: "columns of B and C"},
			&cli.IntFlag{Name: "devices", Usage: "assume this many devices instead of querying the platform"},
		},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			log := appLogger(c)
			m, n := c.Int("m"), c.Int("n")

			ndev := c.Int("devices")
			if ndev <= 0 {
				platform, err := newPlatform(cfg, log)
				if err != nil {
					return err
				}
				opts, err := newOptions(cfg)
				if err != nil {
					return err
				}
				handles, err := gemm.Discover(platform, opts.DeviceType, m, opts.MaxDevices, log.Named("roster"))
				if err != nil {
					return err
				}
				ndev = len(handles)
			}

			slices, err := describePartition(m, n, ndev, cfg.Engine.MaxDevices, cfg.Engine.BlockSize, cfg.Engine.ItemsPerThread)
			if err != nil {
				return err
			}
			for _, s := range slices {
				log.Info("Device slice",
					zap.Int("ordinal", s.Ordinal),
					zap.Int("rows", s.Rows),
					zap.Int("row_offset", s.RowOffset),
					zap.Ints("global", s.Grid.Global),
					zap.Ints("local", s.Grid.Local))
			}
			log.Info("Partition",
				zap.Int("m", m), zap.Int("n", n),
				zap.Int("devices", len(slices)),
				zap.Int("work_items", lo.SumBy(slices, func(s gemm.DeviceStatus) int {
					return s.Grid.Global.Size()
				})))
			return nil
		},
	}
}

// describePartition computes the row slices and launch grids of m×n output
// rows on ndev devices without touching any device. The device count is
// clamped the same way a session clamps it.
func describePartition(m, n, ndev, maxDevices, blockSize, itemsPerThread int) ([]gemm.DeviceStatus, error) {
	p, err := gemm.NewPartition(m, min(ndev, m, maxDevices))
	if err != nil {
		return nil, err
	}
	return lo.Map(p, func(rows int, i int) gemm.DeviceStatus {
		return gemm.DeviceStatus{
			Ordinal:   i,
			Rows:      rows,
			RowOffset: p.Offset(i),
			Grid:      gemm.NewGrid(rows, n, blockSize, itemsPerThread),
		}
	}), nil
}
