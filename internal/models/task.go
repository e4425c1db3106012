package models

import (
	"fmt"
	"time"
)

// Defaults applied to a TaskConfig when fields are left empty
const (
	DefaultMaxCacheSize           = 1000
	DefaultInitialCash            = 100000.0
	DefaultLotSize                = 1.0
	DefaultMaxPositionRatio       = 1.0
	DefaultMaxConsecutiveFailures = 5
)

// Interval units
const (
	UnitSeconds = "seconds"
	UnitMinutes = "minutes"
	UnitHours   = "hours"
)

// Interval is a period expressed as value and unit
type Interval struct {
	Value int    `json:"value" mapstructure:"value"`
	Unit  string `json:"unit" mapstructure:"unit"`
}

// Duration converts the interval to a time.Duration
func (i Interval) Duration() time.Duration {
	switch i.Unit {
	case UnitMinutes:
		return time.Duration(i.Value) * time.Minute
	case UnitHours:
		return time.Duration(i.Value) * time.Hour
	default:
		return time.Duration(i.Value) * time.Second
	}
}

// Valid reports whether the unit is known and the value is at least one
func (i Interval) Valid() bool {
	switch i.Unit {
	case UnitSeconds, UnitMinutes, UnitHours:
		return i.Value >= 1
	default:
		return false
	}
}

// String renders the interval in a compact form (e.g. "5s")
func (i Interval) String() string {
	return i.Duration().String()
}

// TaskDuration bounds how long a task runs. Permanent tasks never complete on their own.
type TaskDuration struct {
	Permanent bool `json:"permanent"`
	Days      int  `json:"days,omitempty" validate:"gte=0"`
	Hours     int  `json:"hours,omitempty" validate:"gte=0"`
	Minutes   int  `json:"minutes,omitempty" validate:"gte=0"`
	Seconds   int  `json:"seconds,omitempty" validate:"gte=0"`
}

// Total returns the finite bound, or zero for permanent tasks
func (d TaskDuration) Total() time.Duration {
	if d.Permanent {
		return 0
	}
	return time.Duration(d.Days)*24*time.Hour +
		time.Duration(d.Hours)*time.Hour +
		time.Duration(d.Minutes)*time.Minute +
		time.Duration(d.Seconds)*time.Second
}

// Commission describes the fee charged per trade: a flat amount plus a rate on notional
type Commission struct {
	Flat float64 `json:"flat" mapstructure:"flat" validate:"gte=0"`
	Rate float64 `json:"rate" mapstructure:"rate" validate:"gte=0,lt=1"`
}

// TaskConfig is the immutable configuration of a live task
type TaskConfig struct {
	Symbol                 string         `json:"symbol" validate:"required"`
	Mode                   Mode           `json:"mode" validate:"required,oneof=paper live"`
	Kind                   TaskKind       `json:"kind" validate:"required,oneof=fetch trade"`
	Strategy               string         `json:"strategy,omitempty" validate:"required_if=Kind trade"`
	Params                 map[string]any `json:"params,omitempty"`
	SamplingInterval       Interval       `json:"sampling_interval"`
	DecisionInterval       Interval       `json:"decision_interval"`
	AllowedSessions        []Session      `json:"allowed_sessions" validate:"required,min=1,dive,session"`
	Duration               TaskDuration   `json:"duration"`
	LotSize                *float64       `json:"lot_size,omitempty"`
	MaxPositionRatio       *float64       `json:"max_position_ratio,omitempty"`
	Commission             Commission     `json:"commission"`
	MaxCacheSize           int            `json:"max_cache_size" validate:"gte=1"`
	InitialCash            float64        `json:"initial_cash" validate:"gt=0"`
	DurationPolicy         DurationPolicy `json:"duration_policy" validate:"required,oneof=wall_clock active_only"`
	MaxConsecutiveFailures int            `json:"max_consecutive_failures" validate:"gte=1"`
}

// ApplyDefaults fills zero-valued optional fields. Lot size and position ratio are
// only defaulted when absent, so an explicit zero reaches Validate.
func (c *TaskConfig) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = ModePaper
	}
	if c.Kind == "" {
		if c.Strategy != "" {
			c.Kind = TaskKindTrade
		} else {
			c.Kind = TaskKindFetch
		}
	}
	if c.SamplingInterval == (Interval{}) {
		c.SamplingInterval = Interval{Value: 5, Unit: UnitSeconds}
	}
	if c.Kind == TaskKindTrade && c.DecisionInterval == (Interval{}) {
		c.DecisionInterval = Interval{Value: 30, Unit: UnitSeconds}
	}
	if len(c.AllowedSessions) == 0 {
		c.AllowedSessions = []Session{SessionRegular}
	}
	if c.MaxCacheSize == 0 {
		c.MaxCacheSize = DefaultMaxCacheSize
	}
	if c.InitialCash == 0 {
		c.InitialCash = DefaultInitialCash
	}
	if c.LotSize == nil {
		c.LotSize = Float64(DefaultLotSize)
	}
	if c.MaxPositionRatio == nil {
		c.MaxPositionRatio = Float64(DefaultMaxPositionRatio)
	}
	if c.DurationPolicy == "" {
		c.DurationPolicy = DurationWallClock
	}
	if c.MaxConsecutiveFailures == 0 {
		c.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
}

// Clone returns a copy that shares no slices or maps with c
func (c TaskConfig) Clone() TaskConfig {
	out := c
	if c.AllowedSessions != nil {
		out.AllowedSessions = append([]Session(nil), c.AllowedSessions...)
	}
	if c.Params != nil {
		out.Params = make(map[string]any, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	if c.LotSize != nil {
		out.LotSize = Float64(*c.LotSize)
	}
	if c.MaxPositionRatio != nil {
		out.MaxPositionRatio = Float64(*c.MaxPositionRatio)
	}
	return out
}

// Float64 returns a pointer to v
func Float64(v float64) *float64 {
	return &v
}

// Lot returns the lot size, or the default when unset
func (c *TaskConfig) Lot() float64 {
	if c.LotSize == nil {
		return DefaultLotSize
	}
	return *c.LotSize
}

// PositionRatio returns the maximum position ratio, or the default when unset
func (c *TaskConfig) PositionRatio() float64 {
	if c.MaxPositionRatio == nil {
		return DefaultMaxPositionRatio
	}
	return *c.MaxPositionRatio
}

// IsSessionAllowed reports whether s is in the allowed list
func (c *TaskConfig) IsSessionAllowed(s Session) bool {
	if !s.IsTradable() {
		return false
	}
	for _, allowed := range c.AllowedSessions {
		if allowed == s {
			return true
		}
	}
	return false
}

// TaskState is the full mutable state of a task at a point in time
type TaskState struct {
	ID                  string     `json:"task_id"`
	Config              TaskConfig `json:"config"`
	Status              Status     `json:"status"`
	Error               string     `json:"error,omitempty"`
	StartedAt           time.Time  `json:"started_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	CurrentSession      Session    `json:"current_session"`
	Cash                float64    `json:"cash"`
	Position            float64    `json:"position"`
	NextSeq             int64      `json:"next_seq"`
	LastDecisionSeq     int64      `json:"last_decision_seq"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	// LastError is the most recent tick failure; later successes keep it.
	LastError    string `json:"last_error,omitempty"`
	TicksSampled int64  `json:"ticks_sampled"`
	// InactiveFor accumulates time spent paused or waiting, for DurationActiveOnly.
	InactiveFor   time.Duration `json:"inactive_for"`
	InactiveSince *time.Time    `json:"inactive_since,omitempty"`
}

// Elapsed returns the time counted against the task's duration at now
func (s *TaskState) Elapsed(now time.Time) time.Duration {
	elapsed := now.Sub(s.StartedAt)
	if s.Config.DurationPolicy != DurationActiveOnly {
		return elapsed
	}
	elapsed -= s.InactiveFor
	if s.InactiveSince != nil {
		elapsed -= now.Sub(*s.InactiveSince)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// DurationExhausted reports whether a finite duration has been reached at now
func (s *TaskState) DurationExhausted(now time.Time) bool {
	bound := s.Config.Duration.Total()
	if bound <= 0 {
		return false
	}
	return s.Elapsed(now) >= bound
}

// TaskRecord is the persisted form of a task
type TaskRecord struct {
	State TaskState `json:"state"`
	Stats RunStats  `json:"stats"`
}

// String returns a short description used in log lines and errors
func (s *TaskState) String() string {
	return fmt.Sprintf("task %s (%s %s, status=%s)", s.ID, s.Config.Symbol, s.Config.Kind, s.Status)
}
