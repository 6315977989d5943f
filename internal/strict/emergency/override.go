package emergency

import (
	"errors"
	"log/slog"
	"sync"
)

const (
	MethodOverrideSuccess = "emergency_override_success"
	MethodOverrideFailed  = "emergency_override_failed"
)

var (
	// ErrOverrideNotAllowed is returned when the break disallows escape.
	ErrOverrideNotAllowed = errors.New("emergency override is not allowed for this break")
	// ErrWrongPIN is returned for a PIN that does not match the stored hash.
	ErrWrongPIN = errors.New("emergency PIN does not match")
	// ErrNoPIN is returned when no PIN has been configured.
	ErrNoPIN = errors.New("no emergency PIN configured")
	// ErrOverridden is returned once the override has already succeeded.
	ErrOverridden = errors.New("emergency override already used")
)

// Recorder receives override outcomes.
type Recorder interface {
	Record(sessionID, method string)
}

// OverrideConfig describes the escape policy of one break.
type OverrideConfig struct {
	SessionID string
	Allowed   bool
	PINHash   string
	// OnSuccess runs once, after the first successful override.
	OnSuccess func()
	Logger    *slog.Logger
}

// Override is the single way out of a strict break.
type Override struct {
	recorder Recorder
	config   OverrideConfig

	mu   sync.Mutex
	used bool
}

// NewOverride creates the override path for one break.
func NewOverride(recorder Recorder, config OverrideConfig) *Override {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Override{recorder: recorder, config: config}
}

// TriggerCombination is called once the input guard has let the configured
// combination through.
func (override *Override) TriggerCombination() bool {
	return override.attempt("combination", func() error { return nil })
}

// SubmitPIN checks pin against the configured hash.
func (override *Override) SubmitPIN(pin string) bool {
	return override.attempt("pin", func() error {
		if override.config.PINHash == "" {
			return ErrNoPIN
		}
		if !VerifyPIN(override.config.PINHash, pin) {
			return ErrWrongPIN
		}
		return nil
	})
}

// Used reports whether the override has succeeded.
func (override *Override) Used() bool {
	override.mu.Lock()
	defer override.mu.Unlock()
	return override.used
}

func (override *Override) attempt(via string, check func() error) bool {
	override.mu.Lock()
	err := override.checkLocked(check)
	if err == nil {
		override.used = true
	}
	override.mu.Unlock()

	if errors.Is(err, ErrOverridden) {
		return false
	}
	if err != nil {
		override.config.Logger.Warn("emergency override rejected", "session", override.config.SessionID, "via", via, "error", err)
		override.recorder.Record(override.config.SessionID, MethodOverrideFailed)
		return false
	}

	override.config.Logger.Info("emergency override accepted", "session", override.config.SessionID, "via", via)
	override.recorder.Record(override.config.SessionID, MethodOverrideSuccess)
	if override.config.OnSuccess != nil {
		override.config.OnSuccess()
	}
	return true
}

func (override *Override) checkLocked(check func() error) error {
	if override.used {
		return ErrOverridden
	}
	if !override.config.Allowed {
		return ErrOverrideNotAllowed
	}
	return check()
}
