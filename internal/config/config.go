package config

import (
	"strings"

	"github.com/LynnColeArt/gudamm"
	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "GUDAMM"

// Config is the configuration for the device and the multiplier.
type Config struct {
	Device DeviceConfig `mapstructure:"device"`
	Kernel KernelConfig `mapstructure:"kernel"`
	Log    LogConfig    `mapstructure:"log"`
}

type DeviceConfig struct {
	// Workers is the number of goroutines executing thread blocks. Zero
	// uses one per CPU.
	Workers int `mapstructure:"workers" validate:"gte=0"`
	// MemoryLimit caps device memory in bytes. Zero uses the host memory.
	MemoryLimit int64 `mapstructure:"memory_limit" validate:"gte=0"`
}

type KernelConfig struct {
	Strategy  string `mapstructure:"strategy" validate:"oneof=naive tiled"`
	TileWidth int    `mapstructure:"tile_width" validate:"gte=1,lte=32"`
}

type LogConfig struct {
	Debug bool `mapstructure:"debug"`
}

// GetDefaultConfig returns the configuration used when nothing is set.
func GetDefaultConfig() *Config {
	return &Config{
		Kernel: KernelConfig{
			Strategy:  gudamm.Tiled.String(),
			TileWidth: gudamm.DefaultTileWidth,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	v.SetDefault("device.workers", defaultConfig.Device.Workers)
	v.SetDefault("device.memory_limit", defaultConfig.Device.MemoryLimit)
	v.SetDefault("kernel.strategy", defaultConfig.Kernel.Strategy)
	v.SetDefault("kernel.tile_width", defaultConfig.Kernel.TileWidth)
	v.SetDefault("log.debug", defaultConfig.Log.Debug)
}

// New returns a viper instance with defaults and GUDAMM_ environment
// overrides, e.g. GUDAMM_KERNEL_TILE_WIDTH.
func New() *viper.Viper {
	v := viper.New()
	setDefault(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"workers":      "device.workers",
	"memory-limit": "device.memory_limit",
	"strategy":     "kernel.strategy",
	"tile-width":   "kernel.tile_width",
	"debug":        "log.debug",
}

// BindFlags binds the flags of flagSet that name configuration keys, so
// flags set on the command line take precedence over everything else.
func BindFlags(v *viper.Viper, flagSet *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flagSet.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// LoadConfig reads the file at path, if any, on top of the defaults and
// the environment, then applies flagSet, which may be nil. The file format
// follows its extension.
func LoadConfig(path string, flagSet *pflag.FlagSet) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "read config %s", path)
		}
	}
	if flagSet != nil {
		if err := BindFlags(v, flagSet); err != nil {
			return nil, err
		}
	}
	return Unmarshal(v)
}

// Unmarshal decodes and validates the configuration held by v.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Trace(err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks field ranges.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.Annotate(err, "invalid config")
	}
	return nil
}

// Strategy returns the configured kernel strategy.
func (config *Config) Strategy() gudamm.Strategy {
	strategy, err := gudamm.ParseStrategy(config.Kernel.Strategy)
	if err != nil {
		return gudamm.Tiled
	}
	return strategy
}

// NewContext creates a device context honoring the device section.
func (config *Config) NewContext() *gudamm.Context {
	return gudamm.NewContext(
		gudamm.WithWorkers(config.Device.Workers),
		gudamm.WithMemoryLimit(config.Device.MemoryLimit),
	)
}

// Options returns the multiplier options of the kernel section.
func (config *Config) Options() []gudamm.Option {
	return []gudamm.Option{gudamm.WithTileWidth(config.Kernel.TileWidth)}
}
