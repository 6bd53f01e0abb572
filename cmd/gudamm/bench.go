package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/LynnColeArt/gudamm"
	"github.com/LynnColeArt/gudamm/internal/log"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// benchResult holds the timings of one implementation.
type benchResult struct {
	name      string
	durations []time.Duration
	product   *gudamm.Matrix
}

var benchCommand = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark the naive and tiled kernels against gonum",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		m, _ := cmd.Flags().GetInt("m")
		n, _ := cmd.Flags().GetInt("n")
		k, _ := cmd.Flags().GetInt("k")
		repeat, _ := cmd.Flags().GetInt("repeat")
		seed, _ := cmd.Flags().GetUint64("seed")
		metricsOut, _ := cmd.Flags().GetString("metrics-out")
		if m < 1 || n < 1 || k < 1 || repeat < 1 {
			return errors.NotValidf("shape %dx%dx%d repeated %d times", m, n, k, repeat)
		}

		rng := rand.New(rand.NewPCG(seed, seed))
		a := gudamm.RandomMatrix(m, k, rng)
		b := gudamm.RandomMatrix(k, n, rng)

		ctx := conf.NewContext()
		defer ctx.Destroy()
		multiplier := gudamm.NewMultiplier(ctx, conf.Options()...)
		var ref gudamm.Reference

		runs := []struct {
			name string
			run  func() (*gudamm.Matrix, error)
		}{
			{"gonum", func() (*gudamm.Matrix, error) { return ref.BLAS(a, b) }},
			{gudamm.Naive.String(), func() (*gudamm.Matrix, error) { return multiplier.Multiply(a, b, gudamm.Naive) }},
			{gudamm.Tiled.String(), func() (*gudamm.Matrix, error) { return multiplier.Multiply(a, b, gudamm.Tiled) }},
		}

		bar := progressbar.NewOptions(len(runs)*repeat,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(fmt.Sprintf("%dx%dx%d", m, n, k)),
			progressbar.OptionClearOnFinish())
		results := make([]benchResult, 0, len(runs))
		for _, r := range runs {
			result := benchResult{name: r.name}
			for i := 0; i < repeat; i++ {
				start := time.Now()
				c, err := r.run()
				if err != nil {
					return errors.Annotatef(err, "run %s", r.name)
				}
				result.durations = append(result.durations, time.Since(start))
				result.product = c
				_ = bar.Add(1)
			}
			results = append(results, result)
		}
		_ = bar.Finish()

		flops := 2 * float64(m) * float64(n) * float64(k)
		expected := results[0].product
		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.Header("Implementation", "Shape", "Tile", "Min", "Mean", "GFLOP/s", "Max Abs Error")
		for _, result := range results {
			fastest := lo.Min(result.durations)
			mean := lo.Sum(result.durations) / time.Duration(len(result.durations))
			check, err := gudamm.VerifyMatrix(expected, result.product, gudamm.RelaxedTolerance())
			if err != nil {
				return err
			}
			tile := "-"
			if result.name == gudamm.Tiled.String() {
				tile = fmt.Sprint(multiplier.TileWidth())
			}
			if err = table.Append([]string{
				result.name,
				fmt.Sprintf("%dx%dx%d", m, n, k),
				tile,
				fastest.String(),
				mean.String(),
				fmt.Sprintf("%.2f", flops/fastest.Seconds()/1e9),
				fmt.Sprintf("%.3g", check.MaxAbsError),
			}); err != nil {
				return errors.Trace(err)
			}
			if !check.IsAcceptable(gudamm.RelaxedTolerance()) {
				log.Logger().Warn("result differs from the gonum reference",
					zap.String("implementation", result.name), zap.Stringer("check", check))
			}
		}
		if err = table.Render(); err != nil {
			return errors.Trace(err)
		}

		if metricsOut != "" {
			if err = prometheus.WriteToTextfile(metricsOut, prometheus.DefaultGatherer); err != nil {
				return errors.Annotatef(err, "write metrics to %s", metricsOut)
			}
			log.Logger().Info("wrote metrics", zap.String("path", metricsOut))
		}
		return nil
	},
}

func init() {
	flagSet := benchCommand.Flags()
	flagSet.Int("m", 256, "rows of A and C")
	flagSet.Int("n", 256, "columns of B and C")
	flagSet.Int("k", 256, "columns of A and rows of B")
	flagSet.Int("repeat", 3, "runs per implementation")
	flagSet.Uint64("seed", 1, "seed of the random operands")
	flagSet.Int("tile-width", gudamm.DefaultTileWidth, "tile width of the tiled kernel")
	flagSet.String("metrics-out", "", "write Prometheus metrics to this file after the run")
}
