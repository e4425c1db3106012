package models

// Mode selects where quotes come from and whether orders reach a broker
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// TaskKind distinguishes price-only tasks from trading tasks
type TaskKind string

const (
	TaskKindFetch TaskKind = "fetch"
	TaskKindTrade TaskKind = "trade"
)

// Session is a named trading-hours window
type Session string

const (
	SessionPreMarket  Session = "pre_market"
	SessionRegular    Session = "regular"
	SessionAfterHours Session = "after_hours"
	SessionOvernight  Session = "overnight"
	// SessionClosed is reported when no window is open (weekends, lunch breaks).
	// It can never be allowed.
	SessionClosed Session = "closed"
)

// TradableSessions lists the sessions a task may be restricted to
var TradableSessions = []Session{
	SessionPreMarket,
	SessionRegular,
	SessionAfterHours,
	SessionOvernight,
}

// IsTradable reports whether s can appear in an allowed-sessions list
func (s Session) IsTradable() bool {
	for _, t := range TradableSessions {
		if s == t {
			return true
		}
	}
	return false
}

// SignalKind is the action a strategy asks for
type SignalKind string

const (
	SignalBuy  SignalKind = "buy"
	SignalSell SignalKind = "sell"
	SignalHold SignalKind = "hold"
)

// Status is the lifecycle state of a live task
type Status string

const (
	StatusRunning   Status = "running"
	StatusWaiting   Status = "waiting"
	StatusPaused    Status = "paused"
	StatusStopped   Status = "stopped"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	switch s {
	case StatusStopped, StatusCompleted, StatusError:
		return true
	default:
		return false
	}
}

// IsActive reports whether the task's loops are scheduled
func (s Status) IsActive() bool {
	return s == StatusRunning || s == StatusWaiting
}

// DurationPolicy controls how elapsed time is measured against a finite duration
type DurationPolicy string

const (
	// DurationWallClock counts every second since started_at regardless of status.
	DurationWallClock DurationPolicy = "wall_clock"
	// DurationActiveOnly excludes time spent paused or waiting.
	DurationActiveOnly DurationPolicy = "active_only"
)
