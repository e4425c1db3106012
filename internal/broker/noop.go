package broker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/quantopia/internal/models"
)

// LoggingBroker acknowledges every order without sending it anywhere. It stands in
// for a real broker when live trading is disabled.
type LoggingBroker struct {
	logger *logrus.Entry
	now    func() time.Time
	seq    atomic.Int64
}

// NewLoggingBroker creates a broker that only logs orders
func NewLoggingBroker(logger *logrus.Logger) *LoggingBroker {
	if logger == nil {
		logger = logrus.New()
	}
	return &LoggingBroker{
		logger: logger.WithField("component", "broker"),
		now:    time.Now,
	}
}

// PlaceOrder implements OrderProvider
func (b *LoggingBroker) PlaceOrder(_ context.Context, symbol string, side models.SignalKind, quantity float64) (*Confirmation, error) {
	id := fmt.Sprintf("noop-%d", b.seq.Add(1))
	b.logger.WithFields(logrus.Fields{
		"symbol":   symbol,
		"side":     side,
		"quantity": quantity,
		"order_id": id,
	}).Info("Order acknowledged without submission")
	return &Confirmation{
		OrderID:     id,
		Status:      "accepted",
		FilledQty:   quantity,
		SubmittedAt: b.now(),
	}, nil
}
