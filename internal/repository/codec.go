package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yourusername/quantopia/internal/models"
)

func encodeRecord(record *models.TaskRecord) (state, stats []byte, err error) {
	state, err = json.Marshal(record.State)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode task state: %w", err)
	}
	stats, err = json.Marshal(record.Stats)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode task stats: %w", err)
	}
	return state, stats, nil
}

func decodeRecord(state, stats []byte) (*models.TaskRecord, error) {
	rec := &models.TaskRecord{}
	if err := json.Unmarshal(state, &rec.State); err != nil {
		return nil, fmt.Errorf("failed to decode task state: %w", err)
	}
	if err := json.Unmarshal(stats, &rec.Stats); err != nil {
		return nil, fmt.Errorf("failed to decode task stats: %w", err)
	}
	return rec, nil
}

// unixNanos encodes t for integer timestamp columns; the zero time maps to 0
func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// nullableTime maps the zero time to SQL NULL
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func valueOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
