// Package inputguard suppresses keyboard and pointer input during a strict
// break, letting through only the configured emergency combination.
package inputguard

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"focusguard/internal/strict/emergency"
)

// ErrArmed is returned when arming a guard that is already armed.
var ErrArmed = errors.New("input guard already armed")

// EventKind is the kind of an input event.
type EventKind string

const (
	KeyDown     EventKind = "keydown"
	KeyUp       EventKind = "keyup"
	PointerMove EventKind = "mousemove"
	PointerDown EventKind = "mousedown"
	PointerUp   EventKind = "mouseup"
	Click       EventKind = "click"
	DoubleClick EventKind = "dblclick"
	ContextMenu EventKind = "contextmenu"
	Wheel       EventKind = "wheel"
)

// Event is a platform-neutral input event.
type Event struct {
	Kind      EventKind
	Key       string
	Modifiers emergency.Modifiers
}

// IsKeyboard reports whether the event came from the keyboard.
func (event Event) IsKeyboard() bool {
	return event.Kind == KeyDown || event.Kind == KeyUp
}

// Verdict tells the input source what to do with an event.
type Verdict int

const (
	// Suppress stops the default action and propagation.
	Suppress Verdict = iota
	// Allow passes the event through unmodified.
	Allow
)

// Handler decides the fate of one event.
type Handler func(Event) Verdict

// Source installs a handler at the highest capture priority the platform
// offers. The returned function uninstalls it.
type Source interface {
	Install(handler Handler) (release func() error, err error)
}

// Recorder receives suppressed events.
type Recorder interface {
	Record(sessionID, method string)
}

// Arming describes one strict break.
type Arming struct {
	SessionID string
	// Combination is nil when no emergency escape is allowed.
	Combination *emergency.Combination
	// OnOverride runs after the matching event has been allowed through.
	OnOverride func()
}

// Guard is armed for exactly one break at a time.
type Guard struct {
	source   Source
	recorder Recorder
	logger   *slog.Logger

	mu      sync.Mutex
	arming  Arming
	release func() error
	armed   bool
	// passed is set once the combination has been let through; the rest of
	// the break's input is allowed while teardown catches up.
	passed  bool
}

// New creates a disarmed guard.
func New(source Source, recorder Recorder, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{source: source, recorder: recorder, logger: logger}
}

// Arm installs the input hook for one break.
func (guard *Guard) Arm(arming Arming) error {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	if guard.armed {
		return ErrArmed
	}
	guard.arming = arming
	guard.armed = true
	guard.passed = false
	release, err := guard.source.Install(guard.handle)
	if err != nil {
		guard.armed = false
		guard.arming = Arming{}
		return fmt.Errorf("install input hook: %w", err)
	}
	guard.release = release
	guard.logger.Info("input guard armed", "session", arming.SessionID)
	return nil
}

// Disarm removes the input hook. It is safe to call more than once.
func (guard *Guard) Disarm() error {
	guard.mu.Lock()
	if !guard.armed {
		guard.mu.Unlock()
		return nil
	}
	release := guard.release
	sessionID := guard.arming.SessionID
	guard.armed = false
	guard.passed = false
	guard.release = nil
	guard.arming = Arming{}
	guard.mu.Unlock()

	guard.logger.Info("input guard disarmed", "session", sessionID)
	if release == nil {
		return nil
	}
	if err := release(); err != nil {
		return fmt.Errorf("release input hook: %w", err)
	}
	return nil
}

// Armed reports whether the hook is installed.
func (guard *Guard) Armed() bool {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	return guard.armed
}

func (guard *Guard) handle(event Event) Verdict {
	if event.Kind == PointerMove {
		return Allow
	}

	guard.mu.Lock()
	if !guard.armed || guard.passed {
		guard.mu.Unlock()
		return Allow
	}
	arming := guard.arming
	if event.Kind == KeyDown && arming.Combination != nil &&
		arming.Combination.Matches(event.Modifiers, event.Key) {
		guard.passed = true
		guard.mu.Unlock()
		if arming.OnOverride != nil {
			arming.OnOverride()
		}
		return Allow
	}
	guard.mu.Unlock()

	guard.recorder.Record(arming.SessionID, Classify(event, arming.Combination))
	return Suppress
}

// Classify maps a suppressed event to its bypass method tag.
func Classify(event Event, combination *emergency.Combination) string {
	if !event.IsKeyboard() {
		return "mouse_blocked_" + string(event.Kind)
	}

	key := emergency.NormalizeKey(event.Key)
	mods := event.Modifiers
	switch {
	case mods.Cmd && key == "q":
		return "cmd_q_blocked"
	case mods.Cmd && key == "w":
		return "cmd_w_blocked"
	case mods.Cmd && key == "tab":
		return "cmd_tab_blocked"
	case mods.Alt && key == "tab":
		return "alt_tab_blocked"
	case mods.Alt && key == "f4":
		return "alt_f4_blocked"
	case key == "esc":
		return "escape_blocked"
	case isFunctionKey(key):
		return "function_key_blocked_" + key
	case combination != nil && combination.MainKey != "" && key == combination.MainKey:
		return "emergency_combination_mismatch"
	}
	if key == "" {
		key = "unknown"
	}
	return "keyboard_blocked_" + key
}

func isFunctionKey(key string) bool {
	if len(key) < 2 || len(key) > 3 || key[0] != 'f' {
		return false
	}
	number := 0
	for _, digit := range key[1:] {
		if digit < '0' || digit > '9' {
			return false
		}
		number = number*10 + int(digit-'0')
	}
	return number >= 1 && number <= 24 && !strings.HasPrefix(key[1:], "0")
}
