package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the configuration file read when none is given.
const DefaultConfigPath = "config.yaml"

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
		Format    string `yaml:"format"`
	} `yaml:"logger"`
	Platform struct {
		Name       string `yaml:"name"`
		DeviceType string `yaml:"deviceType"`
		Host       struct {
			Devices          int   `yaml:"devices"`
			MemoryBytes      int64 `yaml:"memoryBytes"`
			MaxWorkGroupSize int   `yaml:"maxWorkGroupSize"`
			Workers          int   `yaml:"workers"`
		} `yaml:"host"`
	} `yaml:"platform"`
	Engine struct {
		MaxDevices        int    `yaml:"maxDevices"`
		BlockSize         int    `yaml:"blockSize"`
		ItemsPerThread    int    `yaml:"itemsPerThread"`
		KernelPath        string `yaml:"kernelPath"`
		KernelName        string `yaml:"kernelName"`
		BlockingTransfers bool   `yaml:"blockingTransfers"`
		RebindEachCompute bool   `yaml:"rebindEachCompute"`
	} `yaml:"engine"`
	Metrics struct {
		ListenAddress string `yaml:"listenAddress"`
	} `yaml:"metrics"`
}

// Default returns the configuration used for keys missing from a file.
func Default() *Config {
	var c Config
	c.Logger.Verbosity = "info"
	c.Logger.Format = "json"
	c.Platform.Name = "auto"
	c.Platform.DeviceType = "gpu"
	c.Platform.Host.Devices = 4
	c.Engine.MaxDevices = 4
	c.Engine.BlockSize = 56
	c.Engine.ItemsPerThread = 8
	c.Engine.KernelName = "sgemm"
	c.Engine.BlockingTransfers = true
	return &c
}

// LoadConfig reads a YAML file on top of Default and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks the values that cannot be caught by the engine later on.
func (c *Config) Validate() error {
	if c.Engine.MaxDevices <= 0 {
		return fmt.Errorf("engine.maxDevices must be positive, got %d", c.Engine.MaxDevices)
	}
	if c.Engine.BlockSize <= 0 || c.Engine.ItemsPerThread <= 0 {
		return fmt.Errorf("engine.blockSize and engine.itemsPerThread must be positive")
	}
	if c.Engine.BlockSize%c.Engine.ItemsPerThread != 0 {
		return fmt.Errorf("engine.blockSize %d is not a multiple of engine.itemsPerThread %d",
			c.Engine.BlockSize, c.Engine.ItemsPerThread)
	}
	if c.Platform.Host.Devices < 0 {
		return fmt.Errorf("platform.host.devices must not be negative, got %d", c.Platform.Host.Devices)
	}
	return nil
}
