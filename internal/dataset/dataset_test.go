package dataset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quantopia/internal/models"
)

func seeded(seed int64, trend Trend) Options {
	opts := DefaultOptions()
	opts.Seed = &seed
	opts.Trend = trend
	opts.Length = 200
	return opts
}

func TestGenerateIsDeterministicForSeed(t *testing.T) {
	g := NewGenerator()

	metaA, a, err := g.Generate(seeded(11, TrendStable))
	require.NoError(t, err)
	metaB, b, err := g.Generate(seeded(11, TrendStable))
	require.NoError(t, err)
	_, c, err := g.Generate(seeded(12, TrendStable))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, metaA.StartPrice, metaB.StartPrice)
	require.NotNil(t, metaA.Seed)
	assert.Equal(t, int64(11), *metaA.Seed)
	assert.Equal(t, SourceGenerated, metaA.Source)
	assert.Equal(t, 200, metaA.Length)
}

func TestGenerateFollowsTrend(t *testing.T) {
	g := NewGenerator()
	for _, tt := range []struct {
		trend Trend
		check func(t *testing.T, first, last float64)
	}{
		{TrendUp, func(t *testing.T, first, last float64) { assert.Greater(t, last, first) }},
		{TrendDown, func(t *testing.T, first, last float64) { assert.Less(t, last, first) }},
	} {
		t.Run(string(tt.trend), func(t *testing.T) {
			opts := seeded(5, tt.trend)
			start, end := 100.0, 100.0
			if tt.trend == TrendUp {
				end = 150
			} else {
				end = 50
			}
			opts.StartPrice, opts.EndPrice = &start, &end
			opts.VolatilityScale = 0.001

			meta, points, err := g.Generate(opts)
			require.NoError(t, err)
			assert.Equal(t, end, meta.EndPrice)
			tt.check(t, points[0].Price, points[len(points)-1].Price)
			assert.InDelta(t, end, points[len(points)-1].Price, 5)
		})
	}
}

func TestGeneratePricesArePositiveAndSequenced(t *testing.T) {
	opts := seeded(3, TrendDown)
	opts.BaseMean = 1
	opts.VolatilityScale = 2
	opts.VolatilityProb = 1

	_, points, err := NewGenerator().Generate(opts)
	require.NoError(t, err)
	for i, p := range points {
		assert.Equal(t, int64(i), p.Seq)
		assert.GreaterOrEqual(t, p.Price, minPrice)
	}
}

func TestGenerateRejectsInvalidOptions(t *testing.T) {
	negative := -1.0
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"length of one", func(o *Options) { o.Length = 1 }},
		{"negative base mean", func(o *Options) { o.BaseMean = -5 }},
		{"probability above one", func(o *Options) { o.VolatilityProb = 1.5 }},
		{"unknown trend", func(o *Options) { o.Trend = "sideways" }},
		{"negative start", func(o *Options) { o.StartPrice = &negative }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			_, _, err := NewGenerator().Generate(opts)
			assert.True(t, models.IsConfigurationError(err), "got %v", err)
		})
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	meta, points, err := NewGenerator().Generate(seeded(9, TrendUp))
	require.NoError(t, err)
	points[0].Timestamp = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	points[0].Session = models.SessionRegular

	saved, err := store.Save(meta, points)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{8}$`, saved.ID)

	loadedMeta, loaded, err := store.Load(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, loadedMeta.ID)
	assert.Equal(t, saved.Trend, loadedMeta.Trend)
	assert.Equal(t, *saved.Seed, *loadedMeta.Seed)
	assert.True(t, saved.GeneratedAt.Equal(loadedMeta.GeneratedAt))
	assert.Equal(t, points, loaded)
}

func TestStoreReadsFilesWithoutTimeOrSession(t *testing.T) {
	dir := t.TempDir()
	content := `{"file_id":"0badc0de","length":3,"trend":"stable","start_price":10,"end_price":11}
,,10.5
,,10.75

,,11
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0badc0de.txt"), []byte(content), 0o644))
	store, err := NewStore(dir, nil)
	require.NoError(t, err)

	meta, points, err := store.Load("0badc0de")
	require.NoError(t, err)
	assert.Equal(t, 3, meta.Length)
	assert.Equal(t, []float64{10.5, 10.75, 11}, models.Prices(points))
	assert.True(t, points[0].Timestamp.IsZero())
}

func TestStoreListSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, nil)
	require.NoError(t, err)

	pts := []models.PricePoint{{Price: 1}, {Price: 2}}
	older, err := store.Save(Metadata{GeneratedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, pts)
	require.NoError(t, err)
	newer, err := store.Save(Metadata{GeneratedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), Symbol: "AAPL"}, pts)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deadbeef.txt"), []byte("not json\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o644))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)
	assert.Equal(t, SourceImported, list[1].Source)
	assert.Equal(t, 2.0, list[0].EndPrice)
}

func TestStoreErrors(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, _, err = store.Load("../../etc/passwd")
	assert.ErrorIs(t, err, models.ErrInvalidID)
	_, _, err = store.Load("abcdef12")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, store.Delete("abcdef12"), models.ErrNotFound)

	_, err = store.Save(Metadata{}, nil)
	assert.True(t, models.IsConfigurationError(err))

	saved, err := store.Save(Metadata{}, []models.PricePoint{{Price: 3}})
	require.NoError(t, err)
	require.NoError(t, store.Delete(saved.ID))
	_, _, err = store.Load(saved.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
