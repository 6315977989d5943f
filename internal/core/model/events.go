package model

import "time"

// EventKind identifies a pushed backend event.
type EventKind string

const (
	EventPhaseStarted     EventKind = "phase_started"
	EventTick             EventKind = "tick"
	EventPhaseEnded       EventKind = "phase_ended"
	EventPreAlert         EventKind = "pre_alert"
	EventCycleCompleted   EventKind = "cycle_completed"
	EventLongBreakReached EventKind = "long_break_reached"
)

// Event is a pushed update from the authoritative backend.
// Durations and remaining times are whole seconds.
type Event struct {
	Kind       EventKind `json:"kind"`
	Phase      Phase     `json:"phase,omitempty"`
	Duration   int       `json:"duration,omitempty"`
	Remaining  int       `json:"remaining"`
	CycleCount int       `json:"cycle_count,omitempty"`
	Completed  bool      `json:"completed,omitempty"`
	At         time.Time `json:"at"`
}
