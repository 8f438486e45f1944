package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxnlabs/multigemm/internal/config"
	"github.com/fxnlabs/multigemm/internal/gemm"
	"github.com/fxnlabs/multigemm/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	metadataConfig = "config"
	metadataLogger = "logger"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		if log, ok := app.Metadata[metadataLogger].(*zap.Logger); ok {
			log.Fatal("failed to run app", errorFields(err)...)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "mcgemm",
		Metadata: map[string]interface{}{},
		Usage:    "Multiply single precision matrices across every device of an accelerator platform",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   config.DefaultConfigPath,
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"MCGEMM_CONFIG"},
			},
		},
		Before: func(c *cli.Context) error {
			// config init creates the file, so it may not exist yet
			explicit := c.IsSet("config") && c.Args().First() != "config"
			cfg, err := loadConfig(c.String("config"), explicit)
			if err != nil {
				return err
			}
			zapLogger, err := logger.New(cfg.Logger.Verbosity, cfg.Logger.Format)
			if err != nil {
				return err
			}
			c.App.Metadata[metadataConfig] = cfg
			c.App.Metadata[metadataLogger] = zapLogger.Named("cli")
			return nil
		},
		After: func(c *cli.Context) error {
			if log, ok := c.App.Metadata[metadataLogger].(*zap.Logger); ok {
				_ = log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			runCommand(),
			multiplyCommand(),
			devicesCommand(),
			partitionCommand(),
			configCommand(),
		},
	}
}

// loadConfig reads path. A missing file at the default location yields the
// built-in defaults so the tool works without any setup.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return config.Default(), nil
	}
	return cfg, err
}

func appConfig(c *cli.Context) *config.Config {
	return c.App.Metadata[metadataConfig].(*config.Config)
}

func appLogger(c *cli.Context) *zap.Logger {
	return c.App.Metadata[metadataLogger].(*zap.Logger)
}

// errorFields expands an engine error into the operation, device and source
// location that failed.
func errorFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	var gerr *gemm.Error
	if errors.As(err, &gerr) {
		fields = append(fields,
			zap.Stringer("kind", gerr.Kind),
			zap.String("op", gerr.Op),
			zap.String("loc", gerr.Loc))
		if gerr.Device >= 0 {
			fields = append(fields, zap.Int("device", gerr.Device))
		}
	}
	return fields
}
