package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/quantopia/internal/backtest"
	"github.com/yourusername/quantopia/internal/dataset"
	"github.com/yourusername/quantopia/internal/models"
	"github.com/yourusername/quantopia/internal/repository"
	"github.com/yourusername/quantopia/internal/strategy"
)

const (
	modeHistorical  = "historical"
	modeMonteCarlo  = "monte-carlo"
	modeWalkForward = "walk-forward"
	modeAll         = "all"
)

// seriesFlags select the replayed series: a stored dataset or a generated one
type seriesFlags struct {
	datasetID string
	length    int
	trend     string
	seed      int64
}

func (f *seriesFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.datasetID, "dataset", "", "Dataset id to replay (default: generate a series)")
	cmd.Flags().IntVar(&f.length, "length", 500, "Generated series length")
	cmd.Flags().StringVar(&f.trend, "trend", string(dataset.TrendStable), "Generated series trend: up, stable, down")
	cmd.Flags().Int64Var(&f.seed, "seed", 42, "Generated series seed")
}

func (f *seriesFlags) load() ([]models.PricePoint, error) {
	if f.datasetID != "" {
		store, err := dataset.NewStore(cfg.Datasets.Directory, appLog)
		if err != nil {
			return nil, err
		}
		_, points, err := store.Load(f.datasetID)
		return points, err
	}
	opts := dataset.DefaultOptions()
	opts.Length = f.length
	opts.Trend = dataset.Trend(f.trend)
	seed := f.seed
	opts.Seed = &seed
	_, points, err := dataset.NewGenerator().Generate(opts)
	return points, err
}

var (
	backtestSeries   seriesFlags
	backtestStrategy string
	backtestParams   map[string]string
	backtestMode     string
	backtestOutput   string
	backtestSave     bool
)

func init() {
	backtestSeries.register(backtestCmd)
	backtestCmd.Flags().StringVarP(&backtestStrategy, "strategy", "s", "ma_crossover", "Strategy name")
	backtestCmd.Flags().StringToStringVarP(&backtestParams, "param", "p", nil, "Strategy parameter, repeatable (name=value)")
	backtestCmd.Flags().StringVar(&backtestMode, "mode", modeHistorical, "Backtest mode: historical, monte-carlo, walk-forward, all")
	backtestCmd.Flags().StringVarP(&backtestOutput, "output", "o", "", "Output directory (default: backtest.output_path)")
	backtestCmd.Flags().BoolVar(&backtestSave, "save", false, "Store the run summary in the configured storage")
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay a price series through a strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBacktest(cmd.Context())
	},
}

func toRaw(params map[string]string) map[string]any {
	raw := make(map[string]any, len(params))
	for k, v := range params {
		raw[k] = v
	}
	return raw
}

func newEngine() (*backtest.Engine, error) {
	btCfg, err := backtest.FromConfig(&cfg.Backtest)
	if err != nil {
		return nil, err
	}
	return backtest.NewEngine(btCfg, appLog)
}

func runBacktest(ctx context.Context) error {
	switch backtestMode {
	case modeHistorical, modeMonteCarlo, modeWalkForward, modeAll:
	default:
		return fmt.Errorf("unsupported mode %q", backtestMode)
	}

	series, err := backtestSeries.load()
	if err != nil {
		return err
	}
	engine, err := newEngine()
	if err != nil {
		return err
	}
	registry := strategy.DefaultRegistry()

	result, err := engine.RunNamed(ctx, series, registry, backtestStrategy, toRaw(backtestParams))
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}
	fmt.Print(backtest.GenerateConsoleReport(result))

	outDir := backtestOutput
	if outDir == "" {
		outDir = cfg.Backtest.OutputPath
	}
	if err := writeResult(outDir, result); err != nil {
		return err
	}

	if backtestMode == modeMonteCarlo || backtestMode == modeAll {
		mc, err := backtest.RunMonteCarlo(ctx, result, backtest.MonteCarloConfig{
			Iterations: cfg.Backtest.MonteCarloIterations,
			Seed:       cfg.Backtest.MonteCarloSeed,
		})
		if err != nil {
			return fmt.Errorf("monte carlo failed: %w", err)
		}
		fmt.Printf("\nMonte Carlo (%d iterations over %d pairs)\n", mc.Iterations, mc.Pairs)
		fmt.Printf("Mean Final Value: %.2f (p5 %.2f, p95 %.2f)\n", mc.MeanFinalValue, mc.Percentile5, mc.Percentile95)
		fmt.Printf("Probability of Loss: %.2f%%\n", mc.ProbabilityOfLoss*100)
		if err := writeJSON(filepath.Join(outDir, "monte_carlo.json"), mc); err != nil {
			return err
		}
	}

	if backtestMode == modeWalkForward || backtestMode == modeAll {
		strat, err := registry.Build(backtestStrategy, toRaw(backtestParams))
		if err != nil {
			return err
		}
		wf, err := engine.RunWalkForward(ctx, series, strat, backtest.WalkForwardConfig{Windows: cfg.Backtest.WalkForwardWindows})
		if err != nil {
			return fmt.Errorf("walk-forward failed: %w", err)
		}
		fmt.Printf("\nWalk-Forward (%d windows)\n", len(wf.Windows))
		fmt.Printf("Mean Return: %.2f%%  Mean Sharpe: %.3f  Consistency: %.2f\n", wf.MeanReturnPct, wf.MeanSharpe, wf.ConsistencyScore)
		if err := writeJSON(filepath.Join(outDir, "walk_forward.json"), wf); err != nil {
			return err
		}
	}

	if backtestSave {
		return saveResult(ctx, result)
	}
	return nil
}

func writeResult(dir string, result *backtest.Result) error {
	if err := backtest.ExportTradesCSV(result, filepath.Join(dir, "trades.csv")); err != nil {
		return fmt.Errorf("failed to export trades: %w", err)
	}
	if err := backtest.GenerateCSVExport(result, filepath.Join(dir, "summary.csv")); err != nil {
		return fmt.Errorf("failed to export summary: %w", err)
	}
	data, err := result.ToJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "result.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	appLog.WithField("dir", dir).Info("Backtest output written")
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func saveResult(ctx context.Context, result *backtest.Result) error {
	store, err := repository.NewStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	record, err := result.ToRecord(backtestSeries.datasetID, time.Now())
	if err != nil {
		return err
	}
	if err := store.SaveBacktest(ctx, record); err != nil {
		return fmt.Errorf("failed to save backtest: %w", err)
	}
	appLog.WithField("id", record.ID).Info("Backtest summary saved")
	return nil
}

var (
	sweepSeries   seriesFlags
	sweepStrategy string
	sweepGrid     string
	sweepTop      int
)

func init() {
	sweepSeries.register(sweepCmd)
	sweepCmd.Flags().StringVarP(&sweepStrategy, "strategy", "s", "ma_crossover", "Strategy name")
	sweepCmd.Flags().StringVarP(&sweepGrid, "grid", "g", "", `Parameter grid as JSON, e.g. '[{"short_window":5,"long_window":20}]'`)
	sweepCmd.Flags().IntVar(&sweepTop, "top", 5, "Number of best parameter sets to print")
	_ = sweepCmd.MarkFlagRequired("grid")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Backtest a strategy across a parameter grid",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd.Context())
	},
}

func runSweep(ctx context.Context) error {
	var grid []map[string]any
	if err := json.Unmarshal([]byte(sweepGrid), &grid); err != nil {
		return fmt.Errorf("invalid grid: %w", err)
	}
	series, err := sweepSeries.load()
	if err != nil {
		return err
	}
	engine, err := newEngine()
	if err != nil {
		return err
	}

	start := time.Now()
	results, err := engine.Sweep(ctx, series, strategy.DefaultRegistry(), sweepStrategy, grid, cfg.Backtest.SweepConcurrency)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	appLog.WithFields(logrus.Fields{
		"strategy": sweepStrategy,
		"sets":     len(results),
		"duration": time.Since(start).String(),
	}).Info("Sweep complete")

	ranked := rankResults(results)
	if sweepTop > 0 && len(ranked) > sweepTop {
		ranked = ranked[:sweepTop]
	}
	for i, r := range ranked {
		fmt.Printf("%d. %s return %.2f%% sharpe %.3f drawdown %.2f%% trades %d\n",
			i+1, formatParamSet(r.Params), r.Stats.TotalReturnPct, r.Stats.SharpeRatio, r.Stats.MaxDrawdownPct, r.Stats.TotalTrades)
	}
	return nil
}

// rankResults orders results by total return, best first, keeping grid order on ties
func rankResults(results []*backtest.Result) []*backtest.Result {
	ranked := make([]*backtest.Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Stats.TotalReturnPct > ranked[j].Stats.TotalReturnPct
	})
	return ranked
}

func formatParamSet(p strategy.Params) string {
	keys := p.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, " ")
}
