// Package controller runs the lockdown for one break: the displayed
// countdown, the input guard, the focus enforcer and the override path are
// acquired together on Activate and released together, in reverse order, when
// the break ends.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"focusguard/internal/backend"
	"focusguard/internal/core/model"
	"focusguard/internal/core/reconciler"
	"focusguard/internal/strict/bypass"
	"focusguard/internal/strict/emergency"
	"focusguard/internal/strict/focus"
	"focusguard/internal/strict/inputguard"
)

// ErrActive is returned when activating a controller that already runs a break.
var ErrActive = errors.New("break controller already active")

// MethodQuitBlocked tags an application quit refused during a strict break.
const MethodQuitBlocked = "quit_blocked"

// Surface is the lockdown screen.
type Surface interface {
	Show(session model.BreakSession, strict bool) error
	SetRemaining(seconds int)
	SetBypassCount(count int)
	Release() error
}

// Deps are the capabilities a controller drives.
type Deps struct {
	Source   backend.Source
	Commands backend.Commands
	Input    inputguard.Source
	Window   focus.Window
	Surface  Surface
	Logger   *slog.Logger
}

// Options configures a controller.
type Options struct {
	Strict bool
	// Combination is the parsed emergency combination. It only takes effect
	// when the break allows emergency escape.
	Combination    *emergency.Combination
	PINHash        string
	FocusInterval  time.Duration
	CommandTimeout time.Duration
	Reconciler     reconciler.Options
	OnChange       func(reconciler.Snapshot)
	// OnFinish runs once per activation, after every resource is released.
	OnFinish func(Outcome)
}

// Reason says why a break ended.
type Reason string

const (
	ReasonCompleted   Reason = "completed"
	ReasonEndedEarly  Reason = "ended_early"
	ReasonOverride    Reason = "override"
	ReasonDeactivated Reason = "deactivated"
)

// Outcome summarizes a finished break.
type Outcome struct {
	Session        model.BreakSession
	Reason         Reason
	BypassAttempts int
	Err            error
}

type activation struct {
	session    model.BreakSession
	recorder   *bypass.Recorder
	override   *emergency.Override
	reconciler *reconciler.Reconciler
	releases   []func() error
	claimed    bool
}

// Controller owns at most one active break.
type Controller struct {
	deps    Deps
	options Options
	logger  *slog.Logger

	mu      sync.Mutex
	current *activation
	last    *activation
	pending sync.WaitGroup
}

// New creates an idle controller.
func New(deps Deps, options Options) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if options.CommandTimeout <= 0 {
		options.CommandTimeout = 3 * time.Second
	}
	return &Controller{deps: deps, options: options, logger: deps.Logger}
}

// Activate locks the user into session until it ends. A failure to install
// input or focus enforcement is logged and the remaining enforcement stays
// up; only a failure to show the surface or follow the backend is returned.
func (controller *Controller) Activate(ctx context.Context, session model.BreakSession) error {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	if controller.current != nil {
		return ErrActive
	}

	act := &activation{session: session}
	act.recorder = bypass.NewRecorder(controller.deps.Commands, bypass.Options{
		ForwardTimeout: controller.options.CommandTimeout,
		Logger:         controller.logger,
		OnCount:        controller.deps.Surface.SetBypassCount,
	})
	act.override = emergency.NewOverride(act.recorder, emergency.OverrideConfig{
		SessionID: session.ID,
		Allowed:   session.AllowEmergency,
		PINHash:   controller.options.PINHash,
		OnSuccess: func() { controller.finish(act, ReasonOverride) },
		Logger:    controller.logger,
	})

	if err := controller.deps.Surface.Show(session, controller.options.Strict); err != nil {
		return fmt.Errorf("show lockdown: %w", err)
	}
	act.releases = append(act.releases, controller.deps.Surface.Release)

	reconcilerOptions := controller.options.Reconciler
	reconcilerOptions.Logger = controller.logger
	reconcilerOptions.OnChange = func(snapshot reconciler.Snapshot) {
		controller.deps.Surface.SetRemaining(snapshot.RemainingSeconds)
		if controller.options.OnChange != nil {
			controller.options.OnChange(snapshot)
		}
	}
	reconcilerOptions.OnBreakEnd = func(end reconciler.BreakEnd) {
		reason := ReasonCompleted
		if !end.Completed {
			reason = ReasonEndedEarly
		}
		controller.finish(act, reason)
	}
	act.reconciler = reconciler.New(controller.deps.Source, reconcilerOptions)
	act.reconciler.Seed(breakPhase(session.Type), session.RemainingSeconds)
	if err := act.reconciler.Start(ctx); err != nil {
		controller.unwind(act.releases)
		return fmt.Errorf("start reconciler: %w", err)
	}
	act.releases = append(act.releases, func() error {
		act.reconciler.Stop()
		return nil
	})

	if controller.options.Strict {
		controller.armStrict(act)
	}

	controller.current = act
	controller.last = act
	controller.logger.Info("break activated", "session", session.ID, "type", session.Type,
		"strict", controller.options.Strict, "allow_emergency", session.AllowEmergency)
	return nil
}

func (controller *Controller) armStrict(act *activation) {
	var combination *emergency.Combination
	if act.session.AllowEmergency {
		combination = controller.options.Combination
	}
	guard := inputguard.New(controller.deps.Input, act.recorder, controller.logger)
	err := guard.Arm(inputguard.Arming{
		SessionID:   act.session.ID,
		Combination: combination,
		OnOverride:  func() { act.override.TriggerCombination() },
	})
	if err != nil {
		controller.logger.Error("input guard unavailable", "session", act.session.ID, "error", err)
	} else {
		act.releases = append(act.releases, guard.Disarm)
	}

	enforcer := focus.New(controller.deps.Window, act.recorder, focus.Options{
		Interval: controller.options.FocusInterval,
		Logger:   controller.logger,
	})
	if err := enforcer.Start(act.session.ID); err != nil {
		controller.logger.Error("focus enforcer unavailable", "session", act.session.ID, "error", err)
		return
	}
	act.releases = append(act.releases, enforcer.Stop)
}

// Deactivate tears the active break down on external request, such as a mode
// change or shutdown. If the break is already ending it waits for that.
func (controller *Controller) Deactivate(ctx context.Context) error {
	controller.mu.Lock()
	act := controller.current
	controller.mu.Unlock()
	if act == nil || !controller.claim(act) {
		controller.pending.Wait()
		return nil
	}
	return controller.teardown(ctx, act, ReasonDeactivated)
}

// SubmitPIN is the PIN entry point of the override path.
func (controller *Controller) SubmitPIN(pin string) bool {
	controller.mu.Lock()
	act := controller.current
	controller.mu.Unlock()
	if act == nil {
		return false
	}
	return act.override.SubmitPIN(pin)
}

// RefuseQuit reports whether an application quit must be refused because a
// strict break is active. A refused quit is recorded as a bypass attempt.
func (controller *Controller) RefuseQuit() bool {
	controller.mu.Lock()
	act := controller.current
	controller.mu.Unlock()
	if act == nil || !controller.options.Strict {
		return false
	}
	act.recorder.Record(act.session.ID, MethodQuitBlocked)
	return true
}

// Active reports whether a break is locked down.
func (controller *Controller) Active() bool {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	return controller.current != nil
}

// Snapshot returns the displayed state of the current or last break.
func (controller *Controller) Snapshot() reconciler.Snapshot {
	controller.mu.Lock()
	act := controller.last
	controller.mu.Unlock()
	if act == nil {
		return reconciler.Snapshot{Phase: model.PhaseIdle}
	}
	return act.reconciler.Snapshot()
}

// BypassAttemptCount returns the attempts recorded in the current or last break.
func (controller *Controller) BypassAttemptCount() int {
	controller.mu.Lock()
	act := controller.last
	controller.mu.Unlock()
	if act == nil {
		return 0
	}
	return act.recorder.Count()
}

// finish may run on the reconciler loop or an input callback, neither of
// which may wait for teardown.
func (controller *Controller) finish(act *activation, reason Reason) {
	if !controller.claim(act) {
		return
	}
	controller.pending.Add(1)
	go func() {
		defer controller.pending.Done()
		_ = controller.teardown(context.Background(), act, reason)
	}()
}

func (controller *Controller) claim(act *activation) bool {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	if act.claimed {
		return false
	}
	act.claimed = true
	if controller.current == act {
		controller.current = nil
	}
	return true
}

func (controller *Controller) teardown(ctx context.Context, act *activation, reason Reason) error {
	err := controller.unwind(act.releases)

	if reason == ReasonOverride {
		controller.command(ctx, "set emergency exit", func(ctx context.Context) error {
			return controller.deps.Commands.SetEmergencyExit(ctx, true)
		})
		controller.command(ctx, "hide lockdown", controller.deps.Commands.HideLockdown)
	}

	drainCtx, cancel := context.WithTimeout(ctx, controller.options.CommandTimeout)
	defer cancel()
	if drainErr := act.recorder.Drain(drainCtx); drainErr != nil {
		controller.logger.Warn("bypass forwards still pending", "session", act.session.ID, "error", drainErr)
	}

	outcome := Outcome{
		Session:        act.session,
		Reason:         reason,
		BypassAttempts: act.recorder.Count(),
		Err:            err,
	}
	controller.logger.Info("break released", "session", act.session.ID, "reason", reason,
		"bypass_attempts", outcome.BypassAttempts)
	if controller.options.OnFinish != nil {
		controller.options.OnFinish(outcome)
	}
	return err
}

// unwind releases in reverse order of acquisition, continuing past failures.
func (controller *Controller) unwind(releases []func() error) error {
	var errs []error
	for i := len(releases) - 1; i >= 0; i-- {
		if err := safeRelease(releases[i]); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		controller.logger.Warn("break teardown incomplete", "error", err)
	}
	return err
}

func safeRelease(release func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("release panicked: %v", recovered)
		}
	}()
	return release()
}

func (controller *Controller) command(ctx context.Context, name string, fn func(context.Context) error) {
	callCtx, cancel := context.WithTimeout(ctx, controller.options.CommandTimeout)
	defer cancel()
	if err := fn(callCtx); err != nil {
		controller.logger.Warn("backend command failed", "command", name, "error", err)
	}
}

func breakPhase(breakType model.BreakType) model.Phase {
	if breakType == model.BreakLong {
		return model.PhaseLongBreak
	}
	return model.PhaseShortBreak
}
