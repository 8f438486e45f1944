package main

import (
	"fmt"
	"os"

	"github.com/fxnlabs/multigemm/fixtures"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage the configuration file",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write the default configuration to the --config path",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
				},
				Action: func(c *cli.Context) error {
					path := c.String("config")
					if err := writeConfigTemplate(path, c.Bool("force")); err != nil {
						return err
					}
					appLogger(c).Info("Configuration written", zap.String("path", path))
					return nil
				},
			},
		},
	}
}

func writeConfigTemplate(path string, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%s already exists, use --force to overwrite it", path)
		}
		return err
	}
	if _, err := f.Write(fixtures.ConfigTemplate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
