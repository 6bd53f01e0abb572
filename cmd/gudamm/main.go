package main

import (
	"github.com/LynnColeArt/gudamm/internal/config"
	"github.com/LynnColeArt/gudamm/internal/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:          "gudamm",
	Short:        "Matrix multiplication on an emulated CUDA device.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
		return nil
	},
}

// loadConfig merges the config file, GUDAMM_ variables and the flags of cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	conf, err := config.LoadConfig(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	log.Logger().Debug("load config", zap.String("config", configPath), zap.Any("device", conf.Device),
		zap.Any("kernel", conf.Kernel))
	return conf, nil
}

func init() {
	flagSet := rootCommand.PersistentFlags()
	log.AddFlags(flagSet)
	flagSet.Bool("debug", false, "use debug log mode")
	flagSet.StringP("config", "c", "", "configuration file path")
	flagSet.Int("workers", 0, "number of goroutines executing thread blocks (0 for one per CPU)")
	flagSet.Int64("memory-limit", 0, "device memory limit in bytes (0 for host memory)")

	rootCommand.AddCommand(multiplyCommand, benchCommand, deviceCommand, versionCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
