package timekeeper

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"focusguard/internal/core/model"

	"github.com/google/uuid"
)

// ErrIdleUnsupported indicates idle detection is not available on this system.
var ErrIdleUnsupported = errors.New("idle detection unsupported")

// IdleChecker reports the duration of user inactivity.
type IdleChecker interface {
	IdleDuration() (time.Duration, error)
}

// Config contains runtime options for TimeKeeper.
type Config struct {
	TickInterval time.Duration
	Logger       *slog.Logger
}

// TimeKeeper is the authoritative focus/break state machine.
type TimeKeeper struct {
	mu            sync.Mutex
	config        model.TimeKeeperConfig
	options       Config
	phase         model.Phase
	remaining     time.Duration
	cycleCount    int
	sessionID     string
	startedAt     time.Time
	preAlertSent  bool
	idleChecker   IdleChecker
	lastIdleCheck time.Time
	subscribers   map[int]chan model.Event
	nextID        int
	stopCh        chan struct{}
	running       bool
	paused        bool
}

// New creates a TimeKeeper with the provided configuration.
func New(config model.TimeKeeperConfig, options Config) *TimeKeeper {
	if options.TickInterval <= 0 {
		options.TickInterval = time.Second
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &TimeKeeper{
		config:      normalizeConfig(config),
		options:     options,
		phase:       model.PhaseIdle,
		subscribers: make(map[int]chan model.Event),
	}
}

func normalizeConfig(config model.TimeKeeperConfig) model.TimeKeeperConfig {
	if config.IdleCheckInterval <= 0 {
		config.IdleCheckInterval = 5 * time.Second
	}
	if config.CyclesBeforeLong <= 0 {
		config.CyclesBeforeLong = 4
	}
	return config
}

// SetIdleChecker injects an idle checker.
func (keeper *TimeKeeper) SetIdleChecker(checker IdleChecker) {
	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	keeper.idleChecker = checker
}

// Subscribe registers a new observer channel. The returned function
// unregisters and closes it.
func (keeper *TimeKeeper) Subscribe(buffer int) (<-chan model.Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan model.Event, buffer)
	keeper.mu.Lock()
	id := keeper.nextID
	keeper.nextID++
	keeper.subscribers[id] = ch
	keeper.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			keeper.mu.Lock()
			defer keeper.mu.Unlock()
			if existing, ok := keeper.subscribers[id]; ok {
				delete(keeper.subscribers, id)
				close(existing)
			}
		})
	}
}

// Start enters the first focus phase and launches the ticking loop.
func (keeper *TimeKeeper) Start() {
	if !keeper.begin() {
		return
	}
	go keeper.run(keeper.stopCh)
}

func (keeper *TimeKeeper) begin() bool {
	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	if keeper.running {
		return false
	}
	keeper.running = true
	keeper.paused = false
	keeper.stopCh = make(chan struct{})
	keeper.lastIdleCheck = time.Time{}
	keeper.enterPhaseLocked(model.PhaseFocus, time.Now())
	return true
}

// Stop terminates the ticking loop and returns to idle. Observers stay subscribed.
func (keeper *TimeKeeper) Stop() {
	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	if !keeper.running {
		return
	}
	close(keeper.stopCh)
	keeper.running = false
	keeper.paused = false
	previous := keeper.phase
	keeper.phase = model.PhaseIdle
	keeper.remaining = 0
	keeper.sessionID = ""
	keeper.emitLocked(model.Event{
		Kind:      model.EventPhaseEnded,
		Phase:     previous,
		Completed: false,
		At:        time.Now(),
	})
}

// Close stops the loop and closes all observers.
func (keeper *TimeKeeper) Close() {
	keeper.Stop()
	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	for id, ch := range keeper.subscribers {
		delete(keeper.subscribers, id)
		close(ch)
	}
}

// Pause freezes the countdown.
func (keeper *TimeKeeper) Pause() {
	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	keeper.paused = keeper.running
}

// Resume unfreezes the countdown.
func (keeper *TimeKeeper) Resume() {
	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	keeper.paused = false
}

// UpdateConfig replaces the durations used for the next phases.
func (keeper *TimeKeeper) UpdateConfig(config model.TimeKeeperConfig) {
	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	keeper.config = normalizeConfig(config)
}

// SkipBreak ends the current break without completing it.
func (keeper *TimeKeeper) SkipBreak() bool {
	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	if !keeper.running || !keeper.phase.IsBreak() {
		return false
	}
	now := time.Now()
	keeper.emitLocked(model.Event{
		Kind:      model.EventPhaseEnded,
		Phase:     keeper.phase,
		Completed: false,
		At:        now,
	})
	keeper.enterPhaseLocked(model.PhaseFocus, now)
	return true
}

// SetEmergencyExit ends an active break when active is true.
func (keeper *TimeKeeper) SetEmergencyExit(active bool) {
	if !active {
		return
	}
	if keeper.SkipBreak() {
		keeper.options.Logger.Info("emergency exit ended break")
	}
}

// ForceBreak triggers an immediate short or long break.
func (keeper *TimeKeeper) ForceBreak(phase model.Phase) {
	if !phase.IsBreak() {
		return
	}
	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	if !keeper.running || keeper.paused {
		return
	}
	now := time.Now()
	keeper.emitLocked(model.Event{
		Kind:      model.EventPhaseEnded,
		Phase:     keeper.phase,
		Completed: false,
		At:        now,
	})
	keeper.enterPhaseLocked(phase, now)
}

// State returns the current authoritative cycle state.
func (keeper *TimeKeeper) State() model.CycleState {
	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	state := model.CycleState{
		Phase:            keeper.phase,
		RemainingSeconds: seconds(keeper.remaining),
		CycleCount:       keeper.cycleCount,
		IsRunning:        keeper.running && !keeper.paused,
		CanStart:         !keeper.running,
		SessionID:        keeper.sessionID,
	}
	if keeper.phase == model.PhaseIdle {
		state.RemainingSeconds = 0
	}
	if !keeper.startedAt.IsZero() && keeper.phase != model.PhaseIdle {
		startedAt := keeper.startedAt
		state.StartedAt = &startedAt
	}
	return state
}

// CurrentBreak returns the active break, or nil outside a break phase.
func (keeper *TimeKeeper) CurrentBreak() *model.BreakSession {
	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	if !keeper.phase.IsBreak() {
		return nil
	}
	return &model.BreakSession{
		ID:               keeper.sessionID,
		Type:             keeper.phase.BreakType(),
		DurationSeconds:  seconds(keeper.phaseDurationLocked(keeper.phase)),
		RemainingSeconds: seconds(keeper.remaining),
		AllowEmergency:   keeper.config.AllowEmergency,
	}
}

func (keeper *TimeKeeper) run(stopCh <-chan struct{}) {
	ticker := time.NewTicker(keeper.options.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case tickTime := <-ticker.C:
			keeper.tick(tickTime)
		}
	}
}

func (keeper *TimeKeeper) tick(now time.Time) {
	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	if !keeper.running || keeper.paused {
		return
	}
	if keeper.phase == model.PhaseFocus && keeper.handleIdleCheckLocked(now) {
		return
	}

	keeper.remaining -= keeper.options.TickInterval
	if keeper.remaining < 0 {
		keeper.remaining = 0
	}
	keeper.emitLocked(model.Event{
		Kind:      model.EventTick,
		Phase:     keeper.phase,
		Remaining: seconds(keeper.remaining),
		At:        now,
	})

	if keeper.phase == model.PhaseFocus && !keeper.preAlertSent &&
		keeper.config.PreAlert > 0 && keeper.remaining > 0 && keeper.remaining <= keeper.config.PreAlert {
		keeper.preAlertSent = true
		keeper.emitLocked(model.Event{
			Kind:      model.EventPreAlert,
			Phase:     keeper.phase,
			Remaining: seconds(keeper.remaining),
			At:        now,
		})
	}

	if keeper.remaining > 0 {
		return
	}
	keeper.completePhaseLocked(now)
}

func (keeper *TimeKeeper) completePhaseLocked(now time.Time) {
	finished := keeper.phase
	keeper.emitLocked(model.Event{
		Kind:      model.EventPhaseEnded,
		Phase:     finished,
		Completed: true,
		At:        now,
	})

	if finished != model.PhaseFocus {
		keeper.enterPhaseLocked(model.PhaseFocus, now)
		return
	}

	keeper.cycleCount++
	keeper.emitLocked(model.Event{
		Kind:       model.EventCycleCompleted,
		CycleCount: keeper.cycleCount,
		At:         now,
	})
	if keeper.cycleCount%keeper.config.CyclesBeforeLong == 0 {
		keeper.emitLocked(model.Event{
			Kind:       model.EventLongBreakReached,
			CycleCount: keeper.cycleCount,
			At:         now,
		})
		keeper.enterPhaseLocked(model.PhaseLongBreak, now)
		return
	}
	keeper.enterPhaseLocked(model.PhaseShortBreak, now)
}

// handleIdleCheckLocked restarts the focus phase after a long idle period.
func (keeper *TimeKeeper) handleIdleCheckLocked(now time.Time) bool {
	if !keeper.config.IdleResetEnabled || keeper.idleChecker == nil {
		return false
	}
	if !keeper.lastIdleCheck.IsZero() && now.Sub(keeper.lastIdleCheck) < keeper.config.IdleCheckInterval {
		return false
	}
	keeper.lastIdleCheck = now

	idleDuration, err := keeper.idleChecker.IdleDuration()
	if err != nil {
		if errors.Is(err, ErrIdleUnsupported) {
			keeper.config.IdleResetEnabled = false
		}
		keeper.options.Logger.Warn("idle check failed", "error", err)
		return false
	}
	if idleDuration < keeper.config.IdleResetAfter {
		return false
	}
	keeper.options.Logger.Info("idle reset", "idle", idleDuration)
	keeper.enterPhaseLocked(model.PhaseFocus, now)
	return true
}

func (keeper *TimeKeeper) enterPhaseLocked(phase model.Phase, now time.Time) {
	keeper.phase = phase
	keeper.remaining = keeper.phaseDurationLocked(phase)
	keeper.startedAt = now
	keeper.preAlertSent = false
	keeper.sessionID = uuid.NewString()

	keeper.emitLocked(model.Event{
		Kind:       model.EventPhaseStarted,
		Phase:      phase,
		Duration:   seconds(keeper.remaining),
		Remaining:  seconds(keeper.remaining),
		CycleCount: keeper.cycleCount,
		At:         now,
	})
}

func (keeper *TimeKeeper) phaseDurationLocked(phase model.Phase) time.Duration {
	switch phase {
	case model.PhaseFocus:
		return keeper.config.Focus
	case model.PhaseShortBreak:
		return keeper.config.ShortBreak
	case model.PhaseLongBreak:
		return keeper.config.LongBreak
	}
	return 0
}

// emitLocked fans out without blocking; slow observers miss events.
func (keeper *TimeKeeper) emitLocked(event model.Event) {
	for _, ch := range keeper.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func seconds(value time.Duration) int {
	if value <= 0 {
		return 0
	}
	return int((value + time.Second - 1) / time.Second)
}
