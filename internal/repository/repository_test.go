package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quantopia/internal/config"
	"github.com/yourusername/quantopia/internal/database"
	"github.com/yourusername/quantopia/internal/models"
)

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func sampleRecord(id string, started time.Time) *models.TaskRecord {
	cfg := models.TaskConfig{
		Symbol:   "AAPL.US",
		Strategy: "ma_crossover",
		Params:   map[string]any{"short_window": 3.0},
	}
	cfg.ApplyDefaults()
	return &models.TaskRecord{
		State: models.TaskState{
			ID:        id,
			Config:    cfg,
			Status:    models.StatusRunning,
			StartedAt: started,
			UpdatedAt: started,
			Cash:      cfg.InitialCash,
		},
		Stats: models.RunStats{InitialCash: cfg.InitialCash, FinalValue: cfg.InitialCash},
	}
}

// runStoreContract exercises behaviour every Store implementation shares
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("task round trip", func(t *testing.T) {
		s := newStore(t)
		rec := sampleRecord("task-a", t0)
		require.NoError(t, s.SaveTask(ctx, rec))

		got, err := s.GetTask(ctx, "task-a")
		require.NoError(t, err)
		assert.Equal(t, "task-a", got.State.ID)
		assert.Equal(t, models.StatusRunning, got.State.Status)
		assert.True(t, got.State.StartedAt.Equal(t0))
		assert.Equal(t, []models.Session{models.SessionRegular}, got.State.Config.AllowedSessions)
		assert.Equal(t, 3.0, got.State.Config.Params["short_window"])

		rec.State.Status = models.StatusPaused
		rec.Stats.TotalTrades = 4
		require.NoError(t, s.SaveTask(ctx, rec))
		got, err = s.GetTask(ctx, "task-a")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPaused, got.State.Status)
		assert.Equal(t, 4, got.Stats.TotalTrades)
	})

	t.Run("missing task", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetTask(ctx, "nope")
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.ErrorIs(t, s.DeleteTask(ctx, "nope"), models.ErrNotFound)
		assert.ErrorIs(t, s.SaveTask(ctx, &models.TaskRecord{}), models.ErrInvalidID)
	})

	t.Run("list ordered by start", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveTask(ctx, sampleRecord("late", t0.Add(time.Hour))))
		require.NoError(t, s.SaveTask(ctx, sampleRecord("early", t0)))

		records, err := s.ListTasks(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "early", records[0].State.ID)
		assert.Equal(t, "late", records[1].State.ID)
	})

	t.Run("price points", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveTask(ctx, sampleRecord("task-p", t0)))
		for i := int64(1); i <= 5; i++ {
			require.NoError(t, s.AppendPricePoint(ctx, "task-p", models.PricePoint{
				Seq:       i,
				Timestamp: t0.Add(time.Duration(i) * time.Second),
				Price:     100 + float64(i),
				Session:   models.SessionRegular,
			}))
		}
		err := s.AppendPricePoint(ctx, "task-p", models.PricePoint{Seq: 5, Price: 1})
		assert.ErrorIs(t, err, models.ErrDuplicateKey)

		recent, err := s.ListPricePoints(ctx, "task-p", 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, int64(4), recent[0].Seq)
		assert.Equal(t, 105.0, recent[1].Price)
		assert.True(t, recent[1].Timestamp.Equal(t0.Add(5*time.Second)))
		assert.Equal(t, models.SessionRegular, recent[1].Session)

		all, err := s.ListPricePoints(ctx, "task-p", 0)
		require.NoError(t, err)
		assert.Len(t, all, 5)
	})

	t.Run("trades and cascade delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveTask(ctx, sampleRecord("task-t", t0)))
		buy := models.Trade{Index: 3, Timestamp: t0, Kind: models.SignalBuy, Price: 10, Quantity: 5, CashAfter: 50, PositionAfter: 5}
		sell := models.Trade{Index: 7, Kind: models.SignalSell, Price: 12, Quantity: 5, CashAfter: 110, Note: "death cross", OrderID: "ord-1"}
		require.NoError(t, s.AppendTrade(ctx, "task-t", buy))
		require.NoError(t, s.AppendTrade(ctx, "task-t", sell))
		assert.ErrorIs(t, s.AppendTrade(ctx, "task-t", sell), models.ErrDuplicateKey)
		require.NoError(t, s.AppendPricePoint(ctx, "task-t", models.PricePoint{Seq: 1, Price: 10}))

		trades, err := s.ListTrades(ctx, "task-t")
		require.NoError(t, err)
		require.Len(t, trades, 2)
		assert.Equal(t, models.SignalBuy, trades[0].Kind)
		assert.Equal(t, "death cross", trades[1].Note)
		assert.Equal(t, "ord-1", trades[1].OrderID)
		assert.True(t, trades[1].Timestamp.IsZero())

		require.NoError(t, s.DeleteTask(ctx, "task-t"))
		trades, err = s.ListTrades(ctx, "task-t")
		require.NoError(t, err)
		assert.Empty(t, trades)
		points, err := s.ListPricePoints(ctx, "task-t", 0)
		require.NoError(t, err)
		assert.Empty(t, points)
	})

	t.Run("backtests newest first", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, s.SaveBacktest(ctx, &models.BacktestResult{
				ID:          uuid.New(),
				Strategy:    "random",
				ParamsHash:  "abc",
				Params:      json.RawMessage(`{"seed":1}`),
				FullResults: json.RawMessage(`{}`),
				CreatedAt:   t0.Add(time.Duration(i) * time.Minute),
				TotalTrades: i,
			}))
		}
		results, err := s.ListBacktests(ctx, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, 2, results[0].TotalTrades)
		assert.Equal(t, 1, results[1].TotalTrades)
		assert.JSONEq(t, `{"seed":1}`, string(results[0].Params))

		assert.Empty(t, results[0].FullResults, "summaries omit the full payload")

		all, err := s.ListBacktests(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("backtest get and delete", func(t *testing.T) {
		s := newStore(t)
		id := uuid.New()
		require.NoError(t, s.SaveBacktest(ctx, &models.BacktestResult{
			ID:          id,
			Strategy:    "rsi_reversion",
			ParamsHash:  "def",
			Params:      json.RawMessage(`{"period":14}`),
			FullResults: json.RawMessage(`{"trades":[]}`),
			CreatedAt:   t0,
			TotalTrades: 4,
		}))

		got, err := s.GetBacktest(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, "rsi_reversion", got.Strategy)
		assert.Equal(t, 4, got.TotalTrades)
		assert.JSONEq(t, `{"trades":[]}`, string(got.FullResults))
		assert.True(t, got.CreatedAt.Equal(t0))

		_, err = s.GetBacktest(ctx, uuid.New())
		assert.ErrorIs(t, err, models.ErrNotFound)

		require.NoError(t, s.DeleteBacktest(ctx, id))
		_, err = s.GetBacktest(ctx, id)
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.ErrorIs(t, s.DeleteBacktest(ctx, id), models.ErrNotFound)

		all, err := s.ListBacktests(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, newStore(t).Ping(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStoreCopiesRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := sampleRecord("task-c", t0)
	require.NoError(t, s.SaveTask(ctx, rec))

	rec.State.Config.AllowedSessions[0] = models.SessionOvernight
	got, err := s.GetTask(ctx, "task-c")
	require.NoError(t, err)
	assert.Equal(t, models.SessionRegular, got.State.Config.AllowedSessions[0])
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		db, err := database.OpenSQLite(context.Background(), database.MemorySQLite)
		require.NoError(t, err)
		s := NewSQLiteStore(db)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestPostgresStore(t *testing.T) {
	db := database.SetupTestDB(t)
	runStoreContract(t, func(t *testing.T) Store {
		_, err := db.Exec(context.Background(), `TRUNCATE tasks, price_points, trades, backtest_results`)
		require.NoError(t, err)
		return NewPostgresStore(db)
	})
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, &config.Config{Storage: config.StorageConfig{Driver: config.StorageMemory}})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewStore(ctx, &config.Config{Storage: config.StorageConfig{
		Driver:     config.StorageSQLite,
		SQLitePath: t.TempDir() + "/tasks.db",
	}})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	assert.NoError(t, s.Close())

	_, err = NewStore(ctx, &config.Config{Storage: config.StorageConfig{Driver: "mongo"}})
	assert.Error(t, err)
}
