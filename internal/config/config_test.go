package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/LynnColeArt/gudamm"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshal(t *testing.T) {
	text := `
[device]
workers = 3
memory_limit = 1048576

[kernel]
strategy = "naive"
tile_width = 8

[log]
debug = true
`
	v := New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(strings.NewReader(text)))
	config, err := Unmarshal(v)
	require.NoError(t, err)

	assert.Equal(t, 3, config.Device.Workers)
	assert.Equal(t, int64(1048576), config.Device.MemoryLimit)
	assert.Equal(t, "naive", config.Kernel.Strategy)
	assert.Equal(t, gudamm.Naive, config.Strategy())
	assert.Equal(t, 8, config.Kernel.TileWidth)
	assert.True(t, config.Log.Debug)
}

func TestDefaultConfig(t *testing.T) {
	v := New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(strings.NewReader("")))
	config, err := Unmarshal(v)
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), config)
	assert.Equal(t, gudamm.Tiled, config.Strategy())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gudamm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kernel:\n  tile_width: 32\n"), 0o644))

	config, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 32, config.Kernel.TileWidth)
	assert.Equal(t, "tiled", config.Kernel.Strategy)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"), nil)
	assert.Error(t, err)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("GUDAMM_KERNEL_TILE_WIDTH", "4")
	t.Setenv("GUDAMM_DEVICE_WORKERS", "2")
	config, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, config.Kernel.TileWidth)
	assert.Equal(t, 2, config.Device.Workers)
}

func TestFlagsOverride(t *testing.T) {
	t.Setenv("GUDAMM_KERNEL_TILE_WIDTH", "4")
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flagSet.Int("tile-width", 16, "")
	flagSet.String("strategy", "tiled", "")
	require.NoError(t, flagSet.Parse([]string{"--tile-width", "8"}))

	config, err := LoadConfig("", flagSet)
	require.NoError(t, err)
	assert.Equal(t, 8, config.Kernel.TileWidth)
	assert.Equal(t, "tiled", config.Kernel.Strategy)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tile width", func(c *Config) { c.Kernel.TileWidth = 0 }},
		{"tile width above 32", func(c *Config) { c.Kernel.TileWidth = 64 }},
		{"unknown strategy", func(c *Config) { c.Kernel.Strategy = "strassen" }},
		{"negative workers", func(c *Config) { c.Device.Workers = -1 }},
		{"negative memory limit", func(c *Config) { c.Device.MemoryLimit = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := GetDefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
	assert.NoError(t, GetDefaultConfig().Validate())
}

func TestNewContext(t *testing.T) {
	config := GetDefaultConfig()
	config.Device.Workers = 2
	config.Device.MemoryLimit = 1 << 20
	ctx := config.NewContext()
	defer ctx.Destroy()

	device := ctx.Device()
	assert.Equal(t, 2, device.Workers)
	assert.Equal(t, uint64(1<<20), device.TotalMem)

	m := gudamm.NewMultiplier(ctx, config.Options()...)
	assert.Equal(t, gudamm.DefaultTileWidth, m.TileWidth())
}
