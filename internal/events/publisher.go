// Package events publishes task status changes and trades to downstream consumers.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/quantopia/internal/config"
	"github.com/yourusername/quantopia/internal/models"
)

// Publisher delivers task events. Publish is called outside task locks and its
// failure never affects the task.
type Publisher interface {
	Publish(ctx context.Context, event models.TaskEvent) error
	Close() error
}

// Noop discards every event
type Noop struct{}

// Publish implements Publisher
func (Noop) Publish(context.Context, models.TaskEvent) error { return nil }

// Close implements Publisher
func (Noop) Close() error { return nil }

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []models.TaskEvent
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish implements Publisher
func (r *Recorder) Publish(_ context.Context, event models.TaskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Close implements Publisher
func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far
func (r *Recorder) Events() []models.TaskEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TaskEvent(nil), r.events...)
}

// OfType returns the recorded events of one type for a task
func (r *Recorder) OfType(taskID string, typ models.EventType) []models.TaskEvent {
	var out []models.TaskEvent
	for _, e := range r.Events() {
		if e.TaskID == taskID && e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// NewFromConfig creates the configured publisher
func NewFromConfig(cfg config.EventsConfig, logger *logrus.Logger) (Publisher, error) {
	switch cfg.Driver {
	case "", config.EventsNone:
		return Noop{}, nil
	case config.EventsKafka:
		return NewKafkaPublisher(KafkaConfig{Brokers: cfg.Brokers, Topic: cfg.Topic}, logger)
	default:
		return nil, fmt.Errorf("unsupported events driver: %s", cfg.Driver)
	}
}
