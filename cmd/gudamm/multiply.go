package main

import (
	"fmt"

	"github.com/LynnColeArt/gudamm"
	"github.com/LynnColeArt/gudamm/internal/log"
	"github.com/LynnColeArt/gudamm/internal/wbio"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var multiplyCommand = &cobra.Command{
	Use:   "multiply",
	Short: "Multiply two matrices stored in files",
	Example: `  gudamm multiply --a input0.raw --b input1.raw --out output.raw
  gudamm multiply --a input0.raw --b input1.raw --expected output.raw --strategy naive`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		pathA, _ := cmd.Flags().GetString("a")
		pathB, _ := cmd.Flags().GetString("b")
		outPath, _ := cmd.Flags().GetString("out")
		expectedPath, _ := cmd.Flags().GetString("expected")

		a, err := wbio.ImportFile(pathA)
		if err != nil {
			return err
		}
		b, err := wbio.ImportFile(pathB)
		if err != nil {
			return err
		}
		log.Logger().Info("imported operands",
			zap.String("a", fmt.Sprintf("%dx%d", a.Rows, a.Columns)),
			zap.String("b", fmt.Sprintf("%dx%d", b.Rows, b.Columns)))

		ctx := conf.NewContext()
		defer ctx.Destroy()
		multiplier := gudamm.NewMultiplier(ctx, conf.Options()...)
		c, err := multiplier.Multiply(a, b, conf.Strategy())
		if err != nil {
			return err
		}

		if outPath != "" {
			if err = wbio.ExportFile(outPath, c); err != nil {
				return err
			}
		} else if expectedPath == "" {
			if err = wbio.Export(cmd.OutOrStdout(), c); err != nil {
				return err
			}
		}

		if expectedPath != "" {
			expected, err := wbio.ImportFile(expectedPath)
			if err != nil {
				return err
			}
			result, err := gudamm.VerifyMatrix(expected, c, gudamm.RelaxedTolerance())
			if err != nil {
				return errors.Annotate(err, "compare with expected result")
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			if result.NumErrors > 0 {
				return errors.Errorf("result differs from %s", expectedPath)
			}
		}
		return nil
	},
}

func init() {
	flagSet := multiplyCommand.Flags()
	flagSet.String("a", "", "file holding matrix A")
	flagSet.String("b", "", "file holding matrix B")
	flagSet.StringP("out", "o", "", "file to write C to (stdout when neither --out nor --expected is set)")
	flagSet.String("expected", "", "file holding the expected C")
	flagSet.String("strategy", gudamm.Tiled.String(), "kernel strategy (naive or tiled)")
	flagSet.Int("tile-width", gudamm.DefaultTileWidth, "tile width of the tiled kernel")
	_ = multiplyCommand.MarkFlagRequired("a")
	_ = multiplyCommand.MarkFlagRequired("b")
}
