package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fxnlabs/multigemm/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, config)

		assert.Equal(t, "debug", config.Logger.Verbosity)
		assert.Equal(t, "console", config.Logger.Format)
		assert.Equal(t, "host", config.Platform.Name)
		assert.Equal(t, "gpu", config.Platform.DeviceType)
		assert.Equal(t, 3, config.Platform.Host.Devices)
		assert.Equal(t, int64(268435456), config.Platform.Host.MemoryBytes)
		assert.Equal(t, 512, config.Platform.Host.MaxWorkGroupSize)
		assert.Equal(t, 2, config.Platform.Host.Workers)
		assert.Equal(t, 2, config.Engine.MaxDevices)
		assert.Equal(t, 32, config.Engine.BlockSize)
		assert.Equal(t, 4, config.Engine.ItemsPerThread)
		assert.Equal(t, "../../kernel/kernel.cl", config.Engine.KernelPath)
		assert.Equal(t, "sgemm", config.Engine.KernelName)
		assert.False(t, config.Engine.BlockingTransfers)
		assert.True(t, config.Engine.RebindEachCompute)
		assert.Equal(t, "127.0.0.1:9100", config.Metrics.ListenAddress)
	})

	t.Run("missing keys keep defaults", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/partial_config.yaml")
		require.NoError(t, err)

		assert.Equal(t, "warn", config.Logger.Verbosity)
		assert.Equal(t, "json", config.Logger.Format)
		assert.Equal(t, "host", config.Platform.Name)
		assert.Equal(t, 4, config.Platform.Host.Devices)
		assert.Equal(t, 4, config.Engine.MaxDevices)
		assert.Equal(t, 56, config.Engine.BlockSize)
		assert.Equal(t, 8, config.Engine.ItemsPerThread)
		assert.True(t, config.Engine.BlockingTransfers)
		assert.False(t, config.Engine.RebindEachCompute)
	})

	t.Run("block size not a multiple of items per thread", func(t *testing.T) {
		_, err := LoadConfig("../../fixtures/tests/config/bad_geometry.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a multiple")
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := LoadConfig("non-existent-file.yaml")
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		dir, err := os.Getwd()
		require.NoError(t, err)

		configPath := filepath.Join(dir, "..", "..", "fixtures", "tests", "invalid_config", "config.yaml")
		_, err = LoadConfig(configPath)
		assert.Error(t, err)
	})

	t.Run("template is loadable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DefaultConfigPath)
		require.NoError(t, os.WriteFile(path, fixtures.ConfigTemplate, 0600))

		config, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, *Default(), *config)
	})
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults"},
		{
			name:    "zero max devices",
			mutate:  func(c *Config) { c.Engine.MaxDevices = 0 },
			wantErr: "maxDevices",
		},
		{
			name:    "zero items per thread",
			mutate:  func(c *Config) { c.Engine.ItemsPerThread = 0 },
			wantErr: "must be positive",
		},
		{
			name:    "negative host devices",
			mutate:  func(c *Config) { c.Platform.Host.Devices = -1 },
			wantErr: "platform.host.devices",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			if tc.mutate != nil {
				tc.mutate(c)
			}
			err := c.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
