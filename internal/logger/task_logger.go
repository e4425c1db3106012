package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// TaskLogger provides dedicated logging for live task lifecycle events.
type TaskLogger struct {
	*logrus.Entry
}

// NewTaskLogger creates a new task logger.
func NewTaskLogger(baseLogger *logrus.Logger) *TaskLogger {
	return &TaskLogger{
		Entry: baseLogger.WithField("component", "task"),
	}
}

// ForTask returns a logger scoped to one task
func (tl *TaskLogger) ForTask(taskID, symbol string) *TaskLogger {
	return &TaskLogger{Entry: tl.WithFields(logrus.Fields{
		"task_id": taskID,
		"symbol":  symbol,
	})}
}

// LogStatusChange logs a status transition.
func (tl *TaskLogger) LogStatusChange(oldStatus, newStatus, reason string) {
	tl.WithFields(logrus.Fields{
		"old_status": oldStatus,
		"new_status": newStatus,
		"reason":     reason,
	}).Info("Task status changed")
}

// LogSessionChange logs a trading session boundary.
func (tl *TaskLogger) LogSessionChange(oldSession, newSession string) {
	tl.WithFields(logrus.Fields{
		"old_session": oldSession,
		"new_session": newSession,
	}).Debug("Trading session changed")
}

// LogTrade logs an executed trade.
func (tl *TaskLogger) LogTrade(kind string, price, quantity, cashAfter, positionAfter float64, orderID string) {
	tl.WithFields(logrus.Fields{
		"kind":           kind,
		"price":          price,
		"quantity":       quantity,
		"cash_after":     cashAfter,
		"position_after": positionAfter,
		"order_id":       orderID,
	}).Info("Trade executed")
}

// LogTickFailure logs a failed sampling or decision tick.
func (tl *TaskLogger) LogTickFailure(loop string, consecutive, threshold int, err error) {
	tl.WithFields(logrus.Fields{
		"loop":                 loop,
		"consecutive_failures": consecutive,
		"threshold":            threshold,
	}).WithError(err).Warn("Task tick failed")
}

// LogCompleted logs a task reaching its configured duration.
func (tl *TaskLogger) LogCompleted(elapsed time.Duration, ticks int64) {
	tl.WithFields(logrus.Fields{
		"elapsed_seconds": elapsed.Seconds(),
		"ticks_sampled":   ticks,
	}).Info("Task completed")
}
