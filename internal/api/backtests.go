package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/quantopia/internal/backtest"
	"github.com/yourusername/quantopia/internal/models"
)

// seriesRequest names the series to replay: a stored dataset or inline prices
type seriesRequest struct {
	DatasetID string    `json:"dataset_id"`
	Prices    []float64 `json:"prices"`
}

// executionOverrides replace the configured backtest execution rules
type executionOverrides struct {
	InitialCash      *float64           `json:"initial_cash"`
	Commission       *models.Commission `json:"commission"`
	LotSize          *float64           `json:"lot_size"`
	MaxPositionRatio *float64           `json:"max_position_ratio"`
}

type backtestRequest struct {
	seriesRequest
	executionOverrides
	Strategy string         `json:"strategy" binding:"required"`
	Params   map[string]any `json:"params"`
	// Save stores the run summary; defaults to true.
	Save *bool `json:"save"`
}

type sweepRequest struct {
	seriesRequest
	executionOverrides
	Strategy    string           `json:"strategy" binding:"required"`
	Grid        []map[string]any `json:"grid" binding:"required,min=1"`
	Concurrency int              `json:"concurrency"`
}

type sweepEntry struct {
	Params     map[string]any  `json:"params"`
	ParamsHash string          `json:"params_hash"`
	Stats      models.RunStats `json:"stats"`
}

func (s *Server) resolveSeries(req seriesRequest) ([]models.PricePoint, error) {
	switch {
	case req.DatasetID != "" && len(req.Prices) > 0:
		return nil, models.NewConfigurationError("dataset_id", "give either dataset_id or prices, not both")
	case req.DatasetID != "":
		if s.deps.Datasets == nil {
			return nil, fmt.Errorf("dataset store: %w", models.ErrProviderUnavailable)
		}
		_, points, err := s.deps.Datasets.Load(req.DatasetID)
		if err != nil {
			return nil, err
		}
		if len(points) > s.cfg.MaxSeriesLength {
			return nil, models.NewConfigurationError("dataset_id", "series of %d points exceeds the limit of %d", len(points), s.cfg.MaxSeriesLength)
		}
		return points, nil
	case len(req.Prices) > 0:
		if len(req.Prices) > s.cfg.MaxSeriesLength {
			return nil, models.NewConfigurationError("prices", "series of %d points exceeds the limit of %d", len(req.Prices), s.cfg.MaxSeriesLength)
		}
		points := make([]models.PricePoint, len(req.Prices))
		for i, p := range req.Prices {
			if p <= 0 {
				return nil, models.NewConfigurationError("prices", "price %d must be positive, got %v", i, p)
			}
			points[i] = models.PricePoint{Seq: int64(i), Price: p}
		}
		return points, nil
	default:
		return nil, models.NewConfigurationError("prices", "a dataset_id or inline prices are required")
	}
}

func (s *Server) engineFor(o executionOverrides) (*backtest.Engine, error) {
	cfg := s.deps.Backtest
	if o.InitialCash != nil {
		cfg.InitialCash = *o.InitialCash
	}
	if o.Commission != nil {
		cfg.Commission = *o.Commission
	}
	if o.LotSize != nil {
		cfg.LotSize = *o.LotSize
	}
	if o.MaxPositionRatio != nil {
		cfg.MaxPositionRatio = *o.MaxPositionRatio
	}
	return backtest.NewEngine(cfg, s.deps.Logger)
}

func (s *Server) handleRunBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	series, err := s.resolveSeries(req.seriesRequest)
	if err != nil {
		s.fail(c, err)
		return
	}
	engine, err := s.engineFor(req.executionOverrides)
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	result, err := engine.RunNamed(ctx, series, s.deps.Strategies, req.Strategy, req.Params)
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := gin.H{"result": result}
	if s.deps.Results != nil && (req.Save == nil || *req.Save) {
		record, err := result.ToRecord(req.DatasetID, time.Now())
		if err != nil {
			s.fail(c, err)
			return
		}
		if err := s.deps.Results.SaveBacktest(ctx, record); err != nil {
			s.fail(c, fmt.Errorf("failed to save backtest: %w", err))
			return
		}
		resp["id"] = record.ID
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSweep(c *gin.Context) {
	var req sweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	series, err := s.resolveSeries(req.seriesRequest)
	if err != nil {
		s.fail(c, err)
		return
	}
	engine, err := s.engineFor(req.executionOverrides)
	if err != nil {
		s.fail(c, err)
		return
	}

	concurrency := req.Concurrency
	if concurrency <= 0 || concurrency > s.cfg.SweepConcurrency {
		concurrency = s.cfg.SweepConcurrency
	}
	results, err := engine.Sweep(c.Request.Context(), series, s.deps.Strategies, req.Strategy, req.Grid, concurrency)
	if err != nil {
		s.fail(c, err)
		return
	}

	entries := make([]sweepEntry, len(results))
	for i, r := range results {
		entries[i] = sweepEntry{Params: r.Params, ParamsHash: r.ParamsHash, Stats: r.Stats}
	}
	resp := gin.H{"results": entries}
	if best := backtest.Best(results); best != nil {
		resp["best"] = sweepEntry{Params: best.Params, ParamsHash: best.ParamsHash, Stats: best.Stats}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListBacktests(c *gin.Context) {
	if s.deps.Results == nil {
		unavailable(c, "backtest store")
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	results, err := s.deps.Results.ListBacktests(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backtests": results, "count": len(results)})
}

// backtestID parses the :id path parameter; a malformed id cannot name a stored run
func backtestID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("backtest %s: %w", c.Param("id"), models.ErrNotFound)
	}
	return id, nil
}

func (s *Server) handleGetBacktest(c *gin.Context) {
	if s.deps.Results == nil {
		unavailable(c, "backtest store")
		return
	}
	id, err := backtestID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	result, err := s.deps.Results.GetBacktest(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleDeleteBacktest(c *gin.Context) {
	if s.deps.Results == nil {
		unavailable(c, "backtest store")
		return
	}
	id, err := backtestID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.deps.Results.DeleteBacktest(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.deps.Strategies.List()})
}
