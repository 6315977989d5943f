package timekeeper

import (
	"testing"
	"time"

	"focusguard/internal/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdle struct {
	idle time.Duration
	err  error
}

func (idle fakeIdle) IdleDuration() (time.Duration, error) {
	return idle.idle, idle.err
}

func testConfig() model.TimeKeeperConfig {
	return model.TimeKeeperConfig{
		Focus:            3 * time.Second,
		ShortBreak:       2 * time.Second,
		LongBreak:        4 * time.Second,
		CyclesBeforeLong: 2,
		PreAlert:         time.Second,
		AllowEmergency:   true,
	}
}

func drain(events <-chan model.Event) []model.Event {
	var out []model.Event
	for {
		select {
		case event := <-events:
			out = append(out, event)
		default:
			return out
		}
	}
}

func kinds(events []model.Event) []model.EventKind {
	out := make([]model.EventKind, 0, len(events))
	for _, event := range events {
		out = append(out, event.Kind)
	}
	return out
}

func TestBeginEntersFocus(t *testing.T) {
	keeper := New(testConfig(), Config{})
	events, cancel := keeper.Subscribe(16)
	defer cancel()

	require.True(t, keeper.begin())
	assert.False(t, keeper.begin())

	got := drain(events)
	require.Len(t, got, 1)
	assert.Equal(t, model.EventPhaseStarted, got[0].Kind)
	assert.Equal(t, model.PhaseFocus, got[0].Phase)
	assert.Equal(t, 3, got[0].Duration)

	state := keeper.State()
	assert.Equal(t, model.PhaseFocus, state.Phase)
	assert.Equal(t, 3, state.RemainingSeconds)
	assert.True(t, state.IsRunning)
	assert.False(t, state.CanStart)
	assert.NotEmpty(t, state.SessionID)
}

func TestFocusCompletesIntoShortBreak(t *testing.T) {
	keeper := New(testConfig(), Config{})
	events, cancel := keeper.Subscribe(32)
	defer cancel()
	keeper.begin()
	drain(events)

	now := time.Now()
	keeper.tick(now)
	keeper.tick(now)
	keeper.tick(now)

	assert.Equal(t, []model.EventKind{
		model.EventTick,
		model.EventTick,
		model.EventPreAlert,
		model.EventTick,
		model.EventPhaseEnded,
		model.EventCycleCompleted,
		model.EventPhaseStarted,
	}, kinds(drain(events)))

	state := keeper.State()
	assert.Equal(t, model.PhaseShortBreak, state.Phase)
	assert.Equal(t, 1, state.CycleCount)

	session := keeper.CurrentBreak()
	require.NotNil(t, session)
	assert.Equal(t, model.BreakShort, session.Type)
	assert.Equal(t, 2, session.DurationSeconds)
	assert.True(t, session.AllowEmergency)
}

func TestLongBreakAfterConfiguredCycles(t *testing.T) {
	config := testConfig()
	config.PreAlert = 0
	keeper := New(config, Config{})
	events, cancel := keeper.Subscribe(64)
	defer cancel()
	keeper.begin()

	now := time.Now()
	for i := 0; i < 3+2+3; i++ {
		keeper.tick(now)
	}

	var reached []model.Event
	for _, event := range drain(events) {
		if event.Kind == model.EventLongBreakReached {
			reached = append(reached, event)
		}
	}
	require.Len(t, reached, 1)
	assert.Equal(t, 2, reached[0].CycleCount)
	assert.Equal(t, model.PhaseLongBreak, keeper.State().Phase)
}

func TestTicksCarryPhase(t *testing.T) {
	keeper := New(testConfig(), Config{})
	events, cancel := keeper.Subscribe(16)
	defer cancel()
	keeper.begin()
	drain(events)

	keeper.tick(time.Now())
	got := drain(events)
	require.NotEmpty(t, got)
	assert.Equal(t, model.EventTick, got[0].Kind)
	assert.Equal(t, model.PhaseFocus, got[0].Phase)
	assert.Equal(t, 2, got[0].Remaining)
}

func TestSkipBreakEndsWithoutCompletion(t *testing.T) {
	keeper := New(testConfig(), Config{})
	events, cancel := keeper.Subscribe(16)
	defer cancel()
	keeper.begin()

	assert.False(t, keeper.SkipBreak())
	keeper.ForceBreak(model.PhaseShortBreak)
	drain(events)

	keeper.SetEmergencyExit(true)
	got := drain(events)
	require.Len(t, got, 2)
	assert.Equal(t, model.EventPhaseEnded, got[0].Kind)
	assert.Equal(t, model.PhaseShortBreak, got[0].Phase)
	assert.False(t, got[0].Completed)
	assert.Equal(t, model.PhaseFocus, got[1].Phase)
	assert.Nil(t, keeper.CurrentBreak())
}

func TestPauseStopsCountdown(t *testing.T) {
	keeper := New(testConfig(), Config{})
	keeper.begin()
	keeper.Pause()
	keeper.tick(time.Now())

	state := keeper.State()
	assert.Equal(t, 3, state.RemainingSeconds)
	assert.False(t, state.IsRunning)

	keeper.Resume()
	keeper.tick(time.Now())
	assert.Equal(t, 2, keeper.State().RemainingSeconds)
}

func TestIdleResetRestartsFocus(t *testing.T) {
	config := testConfig()
	config.IdleResetEnabled = true
	config.IdleResetAfter = time.Minute
	keeper := New(config, Config{})
	keeper.SetIdleChecker(fakeIdle{idle: 2 * time.Minute})
	keeper.begin()

	keeper.tick(time.Now())
	assert.Equal(t, 3, keeper.State().RemainingSeconds)
}

func TestIdleUnsupportedDisablesReset(t *testing.T) {
	config := testConfig()
	config.IdleResetEnabled = true
	keeper := New(config, Config{})
	keeper.SetIdleChecker(fakeIdle{err: ErrIdleUnsupported})
	keeper.begin()

	keeper.tick(time.Now())
	assert.Equal(t, 2, keeper.State().RemainingSeconds)
	assert.False(t, keeper.config.IdleResetEnabled)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	keeper := New(testConfig(), Config{})
	events, cancel := keeper.Subscribe(1)
	cancel()
	cancel()

	_, ok := <-events
	assert.False(t, ok)
}
