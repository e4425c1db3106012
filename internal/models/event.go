package models

import "time"

// EventType names a task event published to downstream consumers
type EventType string

const (
	EventStatusChanged EventType = "status_changed"
	EventTradeExecuted EventType = "trade_executed"
	EventTickFailed    EventType = "tick_failed"
)

// TaskEvent is emitted on every status change and trade
type TaskEvent struct {
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id"`
	Symbol    string    `json:"symbol"`
	Status    Status    `json:"status,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Trade     *Trade    `json:"trade,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
