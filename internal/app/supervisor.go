// Package app turns the backend event stream into one lockdown per break.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"focusguard/internal/backend"
	"focusguard/internal/core/activity"
	"focusguard/internal/core/model"
	"focusguard/internal/core/reconciler"
	"focusguard/internal/strict/controller"
	"focusguard/internal/strict/emergency"

	"github.com/google/uuid"
)

// Notifier shows a desktop notification.
type Notifier interface {
	Notify(title, body string)
}

// Policy is the lockdown policy read at the start of every break, so settings
// changes never apply mid-break.
type Policy struct {
	Strict         bool
	Combination    *emergency.Combination
	PINHash        string
	AllowEmergency bool
}

// Status is what the tray shows.
type Status struct {
	Phase            model.Phase
	RemainingSeconds int
	CycleCount       int
	IsRunning        bool
	InBreak          bool
	Strict           bool
	BypassAttempts   int
	Activity         model.Activity
}

// Options configures a Supervisor.
type Options struct {
	Deps           controller.Deps
	Selector       *activity.Selector
	Policy         func() Policy
	Notifier       Notifier
	Reconciler     reconciler.Options
	FocusInterval  time.Duration
	CommandTimeout time.Duration
	Logger         *slog.Logger
	OnStatus       func(Status)
	OnBreakEnd     func(controller.Outcome)
}

// Supervisor runs a Controller for every break the backend starts.
type Supervisor struct {
	options Options
	logger  *slog.Logger

	mu      sync.Mutex
	current *controller.Controller
	status  Status
}

// New creates a supervisor.
func New(options Options) *Supervisor {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Policy == nil {
		options.Policy = func() Policy { return Policy{} }
	}
	if options.CommandTimeout <= 0 {
		options.CommandTimeout = 3 * time.Second
	}
	if options.Deps.Logger == nil {
		options.Deps.Logger = options.Logger
	}
	return &Supervisor{
		options: options,
		logger:  options.Logger,
		status:  Status{Phase: model.PhaseIdle},
	}
}

// Run follows the event stream until ctx ends or the stream closes. Any
// active break is deactivated on return.
func (supervisor *Supervisor) Run(ctx context.Context) error {
	events, unsubscribe := supervisor.options.Deps.Source.Subscribe(32)
	defer unsubscribe()
	defer supervisor.deactivate(context.Background())

	supervisor.resume(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return fmt.Errorf("event stream: %w", backend.ErrClosed)
			}
			supervisor.handle(ctx, event)
		}
	}
}

// resume picks up a break that was already running when we connected.
func (supervisor *Supervisor) resume(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, supervisor.options.CommandTimeout)
	defer cancel()
	state, err := supervisor.options.Deps.Source.PollState(callCtx)
	if err != nil {
		supervisor.logger.Warn("initial poll failed", "error", err)
		return
	}
	supervisor.updateStatus(func(status *Status) {
		status.Phase = state.Phase
		status.RemainingSeconds = state.RemainingSeconds
		status.CycleCount = state.CycleCount
		status.IsRunning = state.IsRunning
	})
	if state.Phase.IsBreak() && state.RemainingSeconds > 0 {
		supervisor.startBreak(ctx, state.Phase, state.RemainingSeconds)
	}
}

func (supervisor *Supervisor) handle(ctx context.Context, event model.Event) {
	switch event.Kind {
	case model.EventPhaseStarted:
		supervisor.deactivate(ctx)
		supervisor.updateStatus(func(status *Status) {
			status.Phase = event.Phase
			status.RemainingSeconds = event.Duration
			status.IsRunning = event.Phase != model.PhaseIdle
			if event.CycleCount > 0 {
				status.CycleCount = event.CycleCount
			}
		})
		if event.Phase.IsBreak() {
			supervisor.startBreak(ctx, event.Phase, event.Duration)
		}
	case model.EventTick:
		if event.Phase == model.PhaseFocus {
			supervisor.updateStatus(func(status *Status) {
				status.Phase = event.Phase
				status.RemainingSeconds = event.Remaining
			})
		}
	case model.EventCycleCompleted:
		supervisor.updateStatus(func(status *Status) { status.CycleCount = event.CycleCount })
	case model.EventPreAlert:
		supervisor.notify("Break soon", fmt.Sprintf("Your break starts in %d seconds.", event.Remaining))
	case model.EventLongBreakReached:
		supervisor.notify("Long break", fmt.Sprintf("%d focus cycles done. Time for a long break.", event.CycleCount))
	}
}

func (supervisor *Supervisor) startBreak(ctx context.Context, phase model.Phase, duration int) {
	policy := supervisor.options.Policy()
	session := supervisor.buildSession(ctx, phase, duration, policy)

	breakController := controller.New(supervisor.options.Deps, controller.Options{
		Strict:         policy.Strict,
		Combination:    policy.Combination,
		PINHash:        policy.PINHash,
		FocusInterval:  supervisor.options.FocusInterval,
		CommandTimeout: supervisor.options.CommandTimeout,
		Reconciler:     supervisor.options.Reconciler,
		OnChange: func(snapshot reconciler.Snapshot) {
			supervisor.updateStatus(func(status *Status) {
				status.Phase = snapshot.Phase
				status.RemainingSeconds = snapshot.RemainingSeconds
				status.IsRunning = snapshot.IsRunning
				if snapshot.CycleCount > 0 {
					status.CycleCount = snapshot.CycleCount
				}
			})
		},
		OnFinish: supervisor.finished,
	})
	if err := breakController.Activate(ctx, session); err != nil {
		supervisor.logger.Error("activate break failed", "session", session.ID, "error", err)
		return
	}

	supervisor.mu.Lock()
	supervisor.current = breakController
	supervisor.mu.Unlock()
	supervisor.updateStatus(func(status *Status) {
		status.InBreak = true
		status.Strict = policy.Strict
		status.BypassAttempts = 0
		status.Activity = session.Activity
	})
}

func (supervisor *Supervisor) buildSession(ctx context.Context, phase model.Phase, duration int, policy Policy) model.BreakSession {
	session := model.BreakSession{
		Type:             phase.BreakType(),
		DurationSeconds:  duration,
		RemainingSeconds: duration,
		AllowEmergency:   policy.AllowEmergency,
	}

	callCtx, cancel := context.WithTimeout(ctx, supervisor.options.CommandTimeout)
	defer cancel()
	current, err := supervisor.options.Deps.Source.CurrentBreak(callCtx)
	switch {
	case err != nil:
		supervisor.logger.Warn("current break lookup failed", "error", err)
	case current != nil:
		session.ID = current.ID
		session.AllowEmergency = policy.AllowEmergency && current.AllowEmergency
		if current.DurationSeconds > 0 {
			session.DurationSeconds = current.DurationSeconds
		}
		if current.RemainingSeconds > 0 {
			session.RemainingSeconds = min(session.RemainingSeconds, current.RemainingSeconds)
		}
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}

	if supervisor.options.Selector != nil {
		chosen, err := supervisor.options.Selector.SelectFor(session.Type, time.Duration(session.DurationSeconds)*time.Second)
		if err != nil {
			supervisor.logger.Warn("no break activity available", "error", err)
		} else {
			session.Activity = chosen
		}
	}
	return session
}

func (supervisor *Supervisor) finished(outcome controller.Outcome) {
	supervisor.mu.Lock()
	current := supervisor.current
	supervisor.mu.Unlock()
	if current != nil && !current.Active() {
		supervisor.mu.Lock()
		if supervisor.current == current {
			supervisor.current = nil
		}
		supervisor.mu.Unlock()
	}

	supervisor.updateStatus(func(status *Status) {
		status.InBreak = false
		status.BypassAttempts = outcome.BypassAttempts
	})
	if supervisor.options.OnBreakEnd != nil {
		supervisor.options.OnBreakEnd(outcome)
	}
}

func (supervisor *Supervisor) deactivate(ctx context.Context) {
	supervisor.mu.Lock()
	current := supervisor.current
	supervisor.current = nil
	supervisor.mu.Unlock()
	if current == nil {
		return
	}
	if err := current.Deactivate(ctx); err != nil {
		supervisor.logger.Warn("deactivate break", "error", err)
	}
}

// SubmitPIN forwards an emergency PIN to the active break.
func (supervisor *Supervisor) SubmitPIN(pin string) bool {
	supervisor.mu.Lock()
	current := supervisor.current
	supervisor.mu.Unlock()
	if current == nil {
		return false
	}
	return current.SubmitPIN(pin)
}

// Skip ends a non-strict break early. Strict breaks can only be left through
// the emergency override.
func (supervisor *Supervisor) Skip(ctx context.Context) bool {
	supervisor.mu.Lock()
	current := supervisor.current
	strict := supervisor.status.Strict
	supervisor.mu.Unlock()
	if current == nil || strict {
		return false
	}
	callCtx, cancel := context.WithTimeout(ctx, supervisor.options.CommandTimeout)
	defer cancel()
	if err := supervisor.options.Deps.Commands.SetEmergencyExit(callCtx, true); err != nil {
		supervisor.logger.Warn("skip break failed", "error", err)
		return false
	}
	return true
}

// RequestQuit reports whether the application may quit now. A quit during a
// strict break is refused and recorded against the break.
func (supervisor *Supervisor) RequestQuit() bool {
	supervisor.mu.Lock()
	current := supervisor.current
	supervisor.mu.Unlock()
	if current == nil || !current.RefuseQuit() {
		return true
	}
	supervisor.logger.Warn("quit refused during strict break")
	return false
}

// Status returns the latest status.
func (supervisor *Supervisor) Status() Status {
	// Controller callbacks take our lock while holding theirs, so never call
	// into the controller with mu held.
	supervisor.mu.Lock()
	status := supervisor.status
	current := supervisor.current
	supervisor.mu.Unlock()
	if current != nil {
		status.BypassAttempts = current.BypassAttemptCount()
	}
	return status
}

// Snapshot returns the displayed cycle state.
func (supervisor *Supervisor) Snapshot() reconciler.Snapshot {
	status := supervisor.Status()
	return reconciler.Snapshot{
		Phase:            status.Phase,
		RemainingSeconds: status.RemainingSeconds,
		CycleCount:       status.CycleCount,
		IsRunning:        status.IsRunning,
	}
}

// BypassAttemptCount returns attempts recorded in the current or last break.
func (supervisor *Supervisor) BypassAttemptCount() int {
	return supervisor.Status().BypassAttempts
}

func (supervisor *Supervisor) updateStatus(update func(*Status)) {
	supervisor.mu.Lock()
	update(&supervisor.status)
	status := supervisor.status
	supervisor.mu.Unlock()
	if supervisor.options.OnStatus != nil {
		supervisor.options.OnStatus(status)
	}
}

func (supervisor *Supervisor) notify(title, body string) {
	if supervisor.options.Notifier == nil {
		return
	}
	supervisor.options.Notifier.Notify(title, body)
}
