package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourusername/quantopia/internal/dataset"
	"github.com/yourusername/quantopia/internal/strategy"
)

var (
	generateOpts  = dataset.DefaultOptions()
	generateSeed  int64
	generateStart float64
	generateEnd   float64
)

func init() {
	f := generateCmd.Flags()
	f.IntVar(&generateOpts.Length, "length", generateOpts.Length, "Number of price points")
	f.Float64Var(&generateOpts.BaseMean, "base-mean", generateOpts.BaseMean, "Mean price of a stable series")
	f.StringVar((*string)(&generateOpts.Trend), "trend", string(generateOpts.Trend), "Trend: up, stable, down")
	f.Float64Var(&generateStart, "start-price", 0, "First price (default: drawn around the base mean)")
	f.Float64Var(&generateEnd, "end-price", 0, "Last price (default: drawn around the base mean)")
	f.Float64Var(&generateOpts.VolatilityProb, "volatility-prob", generateOpts.VolatilityProb, "Chance that a step is a large move")
	f.Float64Var(&generateOpts.VolatilityScale, "volatility-scale", generateOpts.VolatilityScale, "Step standard deviation as a fraction of the base mean")
	f.Int64Var(&generateSeed, "seed", 0, "Random seed (default: random)")
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic price series and store it as a dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := generateOpts
		if cmd.Flags().Changed("seed") {
			opts.Seed = &generateSeed
		}
		if cmd.Flags().Changed("start-price") {
			opts.StartPrice = &generateStart
		}
		if cmd.Flags().Changed("end-price") {
			opts.EndPrice = &generateEnd
		}

		meta, points, err := dataset.NewGenerator().Generate(opts)
		if err != nil {
			return err
		}
		store, err := dataset.NewStore(cfg.Datasets.Directory, appLog)
		if err != nil {
			return err
		}
		saved, err := store.Save(meta, points)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%d points\t%s\n", saved.ID, saved.Length, store.Dir())
		return nil
	},
}

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List the registered strategies and their parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, s := range strategy.DefaultRegistry().List() {
			fmt.Fprintf(w, "%s\t%s\n", s.Name, s.Description)
			params := make([]string, 0, len(s.Params))
			for _, p := range s.Params {
				params = append(params, fmt.Sprintf("%s (%s, default %v)", p.Name, p.Kind, p.Default))
			}
			sort.Strings(params)
			if len(params) > 0 {
				fmt.Fprintf(w, "\t%s\n", strings.Join(params, ", "))
			}
		}
		return w.Flush()
	},
}
