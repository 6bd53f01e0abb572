package main

import (
	"fmt"

	"github.com/LynnColeArt/gudamm"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var deviceCommand = &cobra.Command{
	Use:   "device",
	Short: "Show properties of the emulated device",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := conf.NewContext()
		defer ctx.Destroy()
		device := ctx.Device()

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.Header("Property", "Value")
		for _, row := range [][]string{
			{"name", device.Name},
			{"memory", fmt.Sprintf("%d bytes", device.TotalMem)},
			{"cores", fmt.Sprint(device.NumCores)},
			{"workers", fmt.Sprint(device.Workers)},
			{"max threads per block", fmt.Sprint(device.MaxThreadsPerBlock)},
			{"shared memory per block", fmt.Sprintf("%d bytes", device.SharedMemPerBlock)},
			{"default tile width", fmt.Sprint(gudamm.DefaultTileWidth)},
			{"features", device.Features},
		} {
			if err = table.Append(row); err != nil {
				return errors.Trace(err)
			}
		}
		return errors.Trace(table.Render())
	},
}
