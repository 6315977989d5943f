package model

import "time"

// Phase is one step of the focus/break cycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseFocus      Phase = "focus"
	PhaseShortBreak Phase = "short_break"
	PhaseLongBreak  Phase = "long_break"
)

// IsBreak reports whether the phase locks the user out of work.
func (phase Phase) IsBreak() bool {
	return phase == PhaseShortBreak || phase == PhaseLongBreak
}

// BreakType maps a break phase to its break type.
func (phase Phase) BreakType() BreakType {
	if phase == PhaseLongBreak {
		return BreakLong
	}
	return BreakShort
}

// Valid reports whether phase is a known value.
func (phase Phase) Valid() bool {
	switch phase {
	case PhaseIdle, PhaseFocus, PhaseShortBreak, PhaseLongBreak:
		return true
	}
	return false
}

// CycleState is the authoritative cycle snapshot owned by the backend.
// RemainingSeconds is meaningful only when Phase is not idle.
type CycleState struct {
	Phase            Phase      `json:"phase"`
	RemainingSeconds int        `json:"remaining_seconds"`
	CycleCount       int        `json:"cycle_count"`
	IsRunning        bool       `json:"is_running"`
	CanStart         bool       `json:"can_start"`
	SessionID        string     `json:"session_id,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
}

// BreakType distinguishes short and long breaks.
type BreakType string

const (
	BreakShort BreakType = "short"
	BreakLong  BreakType = "long"
)

// BreakSession lives from the start of a break phase until it ends.
type BreakSession struct {
	ID               string    `json:"id"`
	Type             BreakType `json:"type"`
	DurationSeconds  int       `json:"duration"`
	RemainingSeconds int       `json:"remaining"`
	Activity         Activity  `json:"activity"`
	AllowEmergency   bool      `json:"allow_emergency"`
}

// Activity is something to do during a break.
type Activity struct {
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	Checklist   []string  `json:"checklist,omitempty" yaml:"checklist"`
	Category    BreakType `json:"category,omitempty" yaml:"category"`
}

// BypassAttempt records one attempt to escape a strict break.
type BypassAttempt struct {
	SessionID string    `json:"session_id"`
	Method    string    `json:"method"`
	Timestamp time.Time `json:"timestamp"`
}
