package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/quantopia/internal/api"
	"github.com/yourusername/quantopia/internal/backtest"
	"github.com/yourusername/quantopia/internal/broker"
	"github.com/yourusername/quantopia/internal/dataset"
	"github.com/yourusername/quantopia/internal/events"
	"github.com/yourusername/quantopia/internal/health"
	"github.com/yourusername/quantopia/internal/metrics"
	"github.com/yourusername/quantopia/internal/quote"
	"github.com/yourusername/quantopia/internal/repository"
	"github.com/yourusername/quantopia/internal/scheduler"
	"github.com/yourusername/quantopia/internal/session"
	"github.com/yourusername/quantopia/internal/strategy"
	"github.com/yourusername/quantopia/internal/task"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the task engine with its HTTP API and health probes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	appLog.WithFields(logrus.Fields{
		"environment":  cfg.App.Environment,
		"storage":      cfg.Storage.Driver,
		"quotes":       cfg.Quotes.Provider,
		"live_trading": cfg.Features.LiveTradingEnabled,
		"version":      Version,
		"commit":       GitCommit,
	}).Info("Quantopia starting")

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	store, err := repository.NewStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLog.WithError(err).Error("Failed to close store")
		}
	}()

	quotes, err := quote.NewFromConfig(cfg, appLog)
	if err != nil {
		return fmt.Errorf("failed to create quote provider: %w", err)
	}
	orders, err := newOrderProvider()
	if err != nil {
		return err
	}

	publisher, err := events.NewFromConfig(cfg.Events, appLog)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			appLog.WithError(err).Error("Failed to close event publisher")
		}
	}()

	sessions, err := session.NewClassifier(holidays())
	if err != nil {
		return err
	}

	sched := scheduler.NewCronScheduler(appLog)
	registry := strategy.DefaultRegistry()
	manager, err := task.NewManager(task.Dependencies{
		Quotes:     quotes,
		Orders:     orders,
		Strategies: registry,
		Store:      store,
		Publisher:  publisher,
		Scheduler:  sched,
		Sessions:   sessions,
		Logger:     appLog,
	}, task.OptionsFromConfig(cfg.Engine))
	if err != nil {
		return err
	}

	if cfg.Engine.RestoreOnStart {
		if _, err := manager.Restore(ctx); err != nil {
			return fmt.Errorf("failed to restore tasks: %w", err)
		}
	}

	btCfg, err := backtest.FromConfig(&cfg.Backtest)
	if err != nil {
		return err
	}
	datasets, err := dataset.NewStore(cfg.Datasets.Directory, appLog)
	if err != nil {
		return err
	}

	apiServer, err := api.NewServer(api.ConfigFromApp(cfg), api.Dependencies{
		Tasks:      manager,
		History:    store,
		Strategies: registry,
		Backtest:   btCfg,
		Results:    store,
		Datasets:   datasets,
		Logger:     appLog,
	})
	if err != nil {
		return err
	}

	probes := health.NewServer(health.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Port:        cfg.Health.Port,
		GRPCPort:    cfg.Health.GRPCPort,
		Logger:      appLog,
		Checks: map[string]health.Check{
			"store": health.PingCheck(store),
			"scheduler": func(context.Context) error {
				if !sched.IsRunning() {
					return fmt.Errorf("scheduler is not running")
				}
				return nil
			},
		},
	})

	if err := sched.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return apiServer.Run(gctx) })
	g.Go(func() error { return probes.Run(gctx) })
	probes.SetReady(true)

	<-gctx.Done()
	probes.SetReady(false)
	appLog.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.API.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Error("Task manager shutdown incomplete")
	}
	if err := sched.Stop(); err != nil {
		appLog.WithError(err).Error("Scheduler stop incomplete")
	}

	err = g.Wait()
	appLog.Info("Quantopia shut down")
	return err
}

// newOrderProvider returns the Alpaca broker when live trading is enabled and a
// broker that only logs otherwise
func newOrderProvider() (broker.OrderProvider, error) {
	if !cfg.Features.LiveTradingEnabled {
		appLog.Warn("Live trading disabled; live task orders are logged, not submitted")
		return broker.NewLoggingBroker(appLog), nil
	}
	b, err := broker.NewAlpacaBroker(broker.AlpacaConfig{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		BaseURL:   cfg.Alpaca.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create alpaca broker: %w", err)
	}
	return b, nil
}

func holidays() map[session.Market][]string {
	out := make(map[session.Market][]string, len(cfg.Sessions.Holidays))
	// viper lowercases map keys
	for market, dates := range cfg.Sessions.Holidays {
		out[session.Market(strings.ToUpper(market))] = dates
	}
	return out
}
