// Package api exposes the task control surface, backtests, the strategy catalogue and
// datasets over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/quantopia/internal/backtest"
	"github.com/yourusername/quantopia/internal/config"
	"github.com/yourusername/quantopia/internal/dataset"
	"github.com/yourusername/quantopia/internal/metrics"
	"github.com/yourusername/quantopia/internal/models"
	"github.com/yourusername/quantopia/internal/repository"
	"github.com/yourusername/quantopia/internal/strategy"
	"github.com/yourusername/quantopia/internal/task"
)

// TaskService is the task control surface served by the API
type TaskService interface {
	Create(ctx context.Context, cfg models.TaskConfig) (string, error)
	Get(ctx context.Context, id string) (*task.Snapshot, error)
	List(ctx context.Context) ([]task.Snapshot, error)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// DatasetStore persists replayable price series
type DatasetStore interface {
	Save(meta dataset.Metadata, points []models.PricePoint) (dataset.Metadata, error)
	Load(id string) (dataset.Metadata, []models.PricePoint, error)
	List() ([]dataset.Metadata, error)
	Delete(id string) error
}

// Config holds the server settings
type Config struct {
	Address         string
	StreamInterval  time.Duration
	ShutdownTimeout time.Duration
	// MaxSeriesLength bounds the series a single backtest request may replay.
	MaxSeriesLength  int
	SweepConcurrency int
	MetricsEnabled   bool
	MetricsPath      string
}

// ConfigFromApp maps the application config
func ConfigFromApp(cfg *config.Config) Config {
	return Config{
		Address:          cfg.API.Address,
		StreamInterval:   time.Duration(cfg.API.StreamIntervalSeconds) * time.Second,
		ShutdownTimeout:  time.Duration(cfg.API.ShutdownTimeoutSeconds) * time.Second,
		MaxSeriesLength:  cfg.API.MaxBacktestSeriesLength,
		SweepConcurrency: cfg.Backtest.SweepConcurrency,
		MetricsEnabled:   cfg.Metrics.Enabled,
		MetricsPath:      cfg.Metrics.Path,
	}
}

// Dependencies are the services behind the routes. Tasks and Strategies are
// required; routes whose dependency is missing answer 503.
type Dependencies struct {
	Tasks      TaskService
	History    repository.PriceRepository
	Strategies *strategy.Registry
	Backtest   backtest.Config
	Results    repository.BacktestResultRepository
	Datasets   DatasetStore
	Generator  *dataset.Generator
	Logger     *logrus.Logger
}

// Server is the HTTP API server
type Server struct {
	cfg    Config
	deps   Dependencies
	router *gin.Engine
	logger *logrus.Entry
}

// NewServer builds the router
func NewServer(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Tasks == nil {
		return nil, fmt.Errorf("task service is required")
	}
	if deps.Strategies == nil {
		return nil, fmt.Errorf("strategy registry is required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Generator == nil {
		deps.Generator = dataset.NewGenerator()
	}
	if deps.Backtest == (backtest.Config{}) {
		deps.Backtest = backtest.DefaultConfig()
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 2 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if cfg.MaxSeriesLength <= 0 {
		cfg.MaxSeriesLength = 100000
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 1
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: router,
		logger: deps.Logger.WithField("component", "api"),
	}
	router.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.handleIndex)
	if s.cfg.MetricsEnabled {
		s.router.GET(s.cfg.MetricsPath, gin.WrapH(metrics.Handler()))
	}

	api := s.router.Group("/api")

	tasks := api.Group("/tasks")
	tasks.GET("", s.handleListTasks)
	tasks.POST("", s.handleCreateTask)
	tasks.GET("/:id", s.handleGetTask)
	tasks.POST("/:id/pause", s.handlePauseTask)
	tasks.POST("/:id/resume", s.handleResumeTask)
	tasks.POST("/:id/stop", s.handleStopTask)
	tasks.DELETE("/:id", s.handleDeleteTask)
	tasks.GET("/:id/stream", s.handleStreamTask)
	tasks.POST("/:id/export", s.handleExportTask)

	api.GET("/strategies", s.handleListStrategies)

	backtests := api.Group("/backtests")
	backtests.POST("", s.handleRunBacktest)
	backtests.GET("", s.handleListBacktests)
	backtests.GET("/:id", s.handleGetBacktest)
	backtests.DELETE("/:id", s.handleDeleteBacktest)
	backtests.POST("/sweep", s.handleSweep)

	datasets := api.Group("/datasets")
	datasets.GET("", s.handleListDatasets)
	datasets.POST("/generate", s.handleGenerateDataset)
	datasets.GET("/:id", s.handleGetDataset)
	datasets.DELETE("/:id", s.handleDeleteDataset)
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("address", s.cfg.Address).Info("API server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "quantopia",
		"status":  "ok",
	})
}

// requestLogger logs every request and records its latency
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RecordAPIRequest(c.Request.Method, route, status, elapsed.Seconds())

		entry := s.logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"route":       route,
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Warn("Request failed")
		default:
			entry.Debug("Request served")
		}
	}
}
