package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger provides dedicated audit trail logging for control operations and
// live orders.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogControlAction logs a create, pause, resume, stop or delete request.
func (al *AuditLogger) LogControlAction(action, taskID, source string, err error) {
	entry := al.WithFields(logrus.Fields{
		"action":  action,
		"task_id": taskID,
		"source":  source,
	})
	if err != nil {
		entry.WithError(err).Warn("Control action rejected")
		return
	}
	entry.Info("Control action applied")
}

// LogOrderPlacement logs an order sent to a live broker.
func (al *AuditLogger) LogOrderPlacement(taskID, symbol, side string, quantity float64, orderID string, timestamp time.Time) {
	al.WithFields(logrus.Fields{
		"task_id":   taskID,
		"symbol":    symbol,
		"side":      side,
		"quantity":  quantity,
		"order_id":  orderID,
		"timestamp": timestamp.Unix(),
	}).Info("Order placement recorded")
}

// LogFailureGuardTrip logs a task hitting its consecutive failure threshold.
func (al *AuditLogger) LogFailureGuardTrip(taskID, reason string, failures int) {
	al.WithFields(logrus.Fields{
		"task_id":  taskID,
		"reason":   reason,
		"failures": failures,
	}).Warn("Failure threshold reached")
}
