// Package reconciler keeps the displayed countdown in step with the
// authoritative cycle state.
//
// All tracking state is owned by a single loop goroutine. Polls and break
// hydration run in their own goroutines and hand results back to the loop,
// tagged with the generation of the phase instance they were issued for so a
// result that predates a phase change is dropped.
package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"focusguard/internal/backend"
	"focusguard/internal/core/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DefaultPollInterval     = time.Second
	DefaultFallbackInterval = time.Second
	DefaultStaleAfter       = 1500 * time.Millisecond
	DefaultPollTimeout      = 2 * time.Second
)

// ErrRunning is returned when starting a reconciler twice.
var ErrRunning = errors.New("reconciler already running")

var pollFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "focusguard_poll_failures_total",
	Help: "Failed authoritative state polls and break hydrations",
})

// Snapshot is the displayed cycle state.
type Snapshot struct {
	Phase            model.Phase
	RemainingSeconds int
	CycleCount       int
	IsRunning        bool
}

// BreakEnd is reported exactly once per break instance.
type BreakEnd struct {
	Phase     model.Phase
	Completed bool
}

// Options configures a Reconciler. Callbacks run on the loop goroutine and
// must not call Stop synchronously.
type Options struct {
	PollInterval     time.Duration
	FallbackInterval time.Duration
	StaleAfter       time.Duration
	PollTimeout      time.Duration
	Now              func() time.Time
	Logger           *slog.Logger
	OnBreakEnd       func(BreakEnd)
	OnChange         func(Snapshot)
}

type pollResult struct {
	generation uint64
	state      model.CycleState
	err        error
}

type hydrationResult struct {
	generation uint64
	session    *model.BreakSession
	err        error
}

// Reconciler mirrors a backend.Source into a displayed Snapshot.
type Reconciler struct {
	source  backend.Source
	options Options

	// Loop-owned.
	phase             model.Phase
	remaining         int
	cycleCount        int
	running           bool
	lastSync          time.Time
	completionHandled bool
	adopted           bool
	generation        uint64
	polling           bool
	hydrating         bool
	polls             chan pollResult
	hydrations        chan hydrationResult

	mu          sync.RWMutex
	snapshot    Snapshot
	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe func()
}

// New creates a stopped reconciler.
func New(source backend.Source, options Options) *Reconciler {
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	if options.FallbackInterval <= 0 {
		options.FallbackInterval = DefaultFallbackInterval
	}
	if options.StaleAfter <= 0 {
		options.StaleAfter = DefaultStaleAfter
	}
	if options.PollTimeout <= 0 {
		options.PollTimeout = DefaultPollTimeout
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Reconciler{
		source:     source,
		options:    options,
		phase:      model.PhaseIdle,
		polls:      make(chan pollResult, 1),
		hydrations: make(chan hydrationResult, 1),
		snapshot:   Snapshot{Phase: model.PhaseIdle},
	}
}

// Seed starts tracking a known phase instance, for a caller that has just
// observed phase_started itself. It must be called before Start.
func (reconciler *Reconciler) Seed(phase model.Phase, remaining int) {
	reconciler.beginInstance(phase, remaining, reconciler.options.Now())
	reconciler.running = phase != model.PhaseIdle
	reconciler.publish()
}

// Start subscribes to pushed events and begins polling. ctx bounds the
// lifetime of the loop in addition to Stop.
func (reconciler *Reconciler) Start(ctx context.Context) error {
	reconciler.mu.Lock()
	defer reconciler.mu.Unlock()
	if reconciler.cancel != nil {
		return ErrRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	events, unsubscribe := reconciler.source.Subscribe(32)
	reconciler.cancel = cancel
	reconciler.unsubscribe = unsubscribe
	reconciler.done = make(chan struct{})
	reconciler.polls = make(chan pollResult, 1)
	reconciler.hydrations = make(chan hydrationResult, 1)
	reconciler.polling = false
	reconciler.hydrating = false
	go reconciler.run(loopCtx, events, reconciler.done)
	return nil
}

// Stop ends the loop and releases the event subscription. It is safe to call
// more than once.
func (reconciler *Reconciler) Stop() {
	reconciler.mu.Lock()
	cancel := reconciler.cancel
	done := reconciler.done
	unsubscribe := reconciler.unsubscribe
	reconciler.cancel = nil
	reconciler.done = nil
	reconciler.unsubscribe = nil
	reconciler.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	unsubscribe()
}

// Snapshot returns the displayed state.
func (reconciler *Reconciler) Snapshot() Snapshot {
	reconciler.mu.RLock()
	defer reconciler.mu.RUnlock()
	return reconciler.snapshot
}

func (reconciler *Reconciler) run(ctx context.Context, events <-chan model.Event, done chan<- struct{}) {
	defer close(done)
	pollTicker := time.NewTicker(reconciler.options.PollInterval)
	defer pollTicker.Stop()
	fallbackTicker := time.NewTicker(reconciler.options.FallbackInterval)
	defer fallbackTicker.Stop()

	reconciler.requestPoll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				reconciler.options.Logger.Warn("backend event stream closed; continuing with polling")
				events = nil
				continue
			}
			reconciler.applyEvent(event, reconciler.options.Now())
		case <-pollTicker.C:
			reconciler.requestPoll(ctx)
		case result := <-reconciler.polls:
			reconciler.polling = false
			reconciler.applyPoll(result, reconciler.options.Now())
		case <-fallbackTicker.C:
			if reconciler.fallbackTick(reconciler.options.Now()) {
				reconciler.requestHydration(ctx)
			}
		case result := <-reconciler.hydrations:
			reconciler.hydrating = false
			reconciler.applyHydration(result, reconciler.options.Now())
		}
	}
}

func (reconciler *Reconciler) requestPoll(ctx context.Context) {
	if reconciler.polling {
		return
	}
	reconciler.polling = true
	generation := reconciler.generation
	results := reconciler.polls
	go func() {
		pollCtx, cancel := context.WithTimeout(ctx, reconciler.options.PollTimeout)
		defer cancel()
		state, err := reconciler.source.PollState(pollCtx)
		results <- pollResult{generation: generation, state: state, err: err}
	}()
}

func (reconciler *Reconciler) requestHydration(ctx context.Context) {
	if reconciler.hydrating {
		return
	}
	reconciler.hydrating = true
	generation := reconciler.generation
	results := reconciler.hydrations
	go func() {
		hydrateCtx, cancel := context.WithTimeout(ctx, reconciler.options.PollTimeout)
		defer cancel()
		session, err := reconciler.source.CurrentBreak(hydrateCtx)
		results <- hydrationResult{generation: generation, session: session, err: err}
	}()
}

func (reconciler *Reconciler) applyEvent(event model.Event, now time.Time) {
	switch event.Kind {
	case model.EventPhaseStarted:
		if !event.Phase.Valid() {
			return
		}
		if reconciler.adopted && event.Phase == reconciler.phase {
			// A poll already moved us into this instance.
			reconciler.generation++
			reconciler.adopted = false
			reconciler.applyAuthoritative(event.Duration, now)
		} else {
			reconciler.beginInstance(event.Phase, event.Duration, now)
		}
		if event.CycleCount > 0 {
			reconciler.cycleCount = event.CycleCount
		}
		reconciler.running = true
	case model.EventTick:
		if event.Phase == "" || event.Phase != reconciler.phase {
			return
		}
		reconciler.applyAuthoritative(event.Remaining, now)
	case model.EventPhaseEnded:
		if event.Phase != reconciler.phase {
			return
		}
		if event.Completed {
			reconciler.remaining = 0
		}
		reconciler.lastSync = now
		reconciler.finishBreak(event.Completed)
	case model.EventCycleCompleted:
		reconciler.cycleCount = event.CycleCount
	default:
		return
	}
	reconciler.publish()
}

func (reconciler *Reconciler) applyPoll(result pollResult, now time.Time) {
	if result.err != nil {
		pollFailures.Inc()
		reconciler.options.Logger.Warn("poll cycle state failed", "error", result.err)
		return
	}
	if result.generation != reconciler.generation {
		return
	}

	state := result.state
	if !state.Phase.Valid() {
		reconciler.options.Logger.Warn("poll returned unknown phase", "phase", state.Phase)
		return
	}
	reconciler.cycleCount = state.CycleCount
	reconciler.running = state.IsRunning

	switch {
	case state.Phase != reconciler.phase:
		reconciler.finishBreak(true)
		reconciler.beginInstance(state.Phase, state.RemainingSeconds, now)
		reconciler.adopted = true
	case state.Phase == model.PhaseIdle:
		reconciler.remaining = 0
		reconciler.lastSync = now
	default:
		reconciler.applyAuthoritative(state.RemainingSeconds, now)
	}
	reconciler.publish()
}

// fallbackTick extrapolates the countdown while no sync has arrived. It
// reports whether the break should be hydrated from the backend.
func (reconciler *Reconciler) fallbackTick(now time.Time) bool {
	if reconciler.phase == model.PhaseIdle || !reconciler.running {
		return false
	}
	if now.Sub(reconciler.lastSync) <= reconciler.options.StaleAfter {
		return false
	}
	if reconciler.remaining > 0 {
		reconciler.remaining--
		reconciler.publish()
	}
	return reconciler.remaining == 0 && reconciler.phase.IsBreak() && !reconciler.completionHandled
}

func (reconciler *Reconciler) applyHydration(result hydrationResult, now time.Time) {
	if result.err != nil {
		pollFailures.Inc()
		reconciler.options.Logger.Warn("hydrate current break failed", "error", result.err)
		return
	}
	if result.generation != reconciler.generation {
		return
	}
	if result.session == nil || result.session.RemainingSeconds <= 0 {
		reconciler.finishBreak(true)
		reconciler.publish()
		return
	}
	// The break is still running; hold the display and wait for the next sync.
	reconciler.lastSync = now
}

func (reconciler *Reconciler) beginInstance(phase model.Phase, remaining int, now time.Time) {
	reconciler.generation++
	reconciler.phase = phase
	reconciler.remaining = max(remaining, 0)
	reconciler.lastSync = now
	reconciler.completionHandled = false
	reconciler.adopted = false
	if phase == model.PhaseIdle {
		reconciler.remaining = 0
	}
}

// applyAuthoritative never raises the displayed value within an instance.
// Only an authoritative zero completes a break.
func (reconciler *Reconciler) applyAuthoritative(remaining int, now time.Time) {
	remaining = max(remaining, 0)
	reconciler.remaining = min(reconciler.remaining, remaining)
	reconciler.lastSync = now
	if remaining == 0 {
		reconciler.finishBreak(true)
	}
}

func (reconciler *Reconciler) finishBreak(completed bool) {
	if !reconciler.phase.IsBreak() || reconciler.completionHandled {
		return
	}
	reconciler.completionHandled = true
	reconciler.options.Logger.Info("break ended", "phase", reconciler.phase, "completed", completed)
	if reconciler.options.OnBreakEnd != nil {
		reconciler.options.OnBreakEnd(BreakEnd{Phase: reconciler.phase, Completed: completed})
	}
}

func (reconciler *Reconciler) publish() {
	next := Snapshot{
		Phase:            reconciler.phase,
		RemainingSeconds: reconciler.remaining,
		CycleCount:       reconciler.cycleCount,
		IsRunning:        reconciler.running,
	}
	reconciler.mu.Lock()
	changed := next != reconciler.snapshot
	reconciler.snapshot = next
	reconciler.mu.Unlock()

	if changed && reconciler.options.OnChange != nil {
		reconciler.options.OnChange(next)
	}
}
