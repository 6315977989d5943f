package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"focusguard/internal/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	state    model.CycleState
	session  *model.BreakSession
	pollErr  error
	events   chan model.Event
	released bool
	polls    int
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan model.Event, 16)}
}

func (source *fakeSource) PollState(context.Context) (model.CycleState, error) {
	source.mu.Lock()
	defer source.mu.Unlock()
	source.polls++
	return source.state, source.pollErr
}

func (source *fakeSource) CurrentBreak(context.Context) (*model.BreakSession, error) {
	source.mu.Lock()
	defer source.mu.Unlock()
	return source.session, nil
}

func (source *fakeSource) Subscribe(int) (<-chan model.Event, func()) {
	return source.events, func() {
		source.mu.Lock()
		defer source.mu.Unlock()
		source.released = true
	}
}

func (source *fakeSource) setState(state model.CycleState) {
	source.mu.Lock()
	defer source.mu.Unlock()
	source.state = state
}

type endLog struct {
	mu   sync.Mutex
	ends []BreakEnd
}

func (log *endLog) record(end BreakEnd) {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.ends = append(log.ends, end)
}

func (log *endLog) all() []BreakEnd {
	log.mu.Lock()
	defer log.mu.Unlock()
	return append([]BreakEnd(nil), log.ends...)
}

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newStepper(ends *endLog) *Reconciler {
	return New(newFakeSource(), Options{
		Now:        func() time.Time { return epoch },
		OnBreakEnd: ends.record,
	})
}

func started(phase model.Phase, duration int) model.Event {
	return model.Event{Kind: model.EventPhaseStarted, Phase: phase, Duration: duration}
}

func tick(phase model.Phase, remaining int) model.Event {
	return model.Event{Kind: model.EventTick, Phase: phase, Remaining: remaining}
}

func TestPhaseStartedResetsTracking(t *testing.T) {
	reconciler := newStepper(&endLog{})
	reconciler.applyEvent(started(model.PhaseShortBreak, 300), epoch)

	snapshot := reconciler.Snapshot()
	assert.Equal(t, model.PhaseShortBreak, snapshot.Phase)
	assert.Equal(t, 300, snapshot.RemainingSeconds)
	assert.True(t, snapshot.IsRunning)
}

func TestStaleTickIsDiscarded(t *testing.T) {
	reconciler := newStepper(&endLog{})
	reconciler.applyEvent(started(model.PhaseShortBreak, 300), epoch)

	reconciler.applyEvent(tick(model.PhaseFocus, 5), epoch)
	reconciler.applyEvent(tick("", 5), epoch)
	assert.Equal(t, 300, reconciler.Snapshot().RemainingSeconds)

	reconciler.applyEvent(tick(model.PhaseShortBreak, 299), epoch)
	assert.Equal(t, 299, reconciler.Snapshot().RemainingSeconds)
}

func TestPollIssuedBeforePhaseStartedIsDropped(t *testing.T) {
	reconciler := newStepper(&endLog{})
	reconciler.applyEvent(started(model.PhaseFocus, 1500), epoch)
	stale := reconciler.generation

	reconciler.applyEvent(started(model.PhaseShortBreak, 300), epoch)
	reconciler.applyPoll(pollResult{
		generation: stale,
		state:      model.CycleState{Phase: model.PhaseFocus, RemainingSeconds: 2, IsRunning: true},
	}, epoch)

	snapshot := reconciler.Snapshot()
	assert.Equal(t, model.PhaseShortBreak, snapshot.Phase)
	assert.Equal(t, 300, snapshot.RemainingSeconds)
}

func TestDisplayedRemainingNeverIncreasesWithinInstance(t *testing.T) {
	reconciler := newStepper(&endLog{})
	reconciler.applyEvent(started(model.PhaseLongBreak, 900), epoch)

	reconciler.applyEvent(tick(model.PhaseLongBreak, 880), epoch)
	reconciler.applyPoll(pollResult{
		generation: reconciler.generation,
		state:      model.CycleState{Phase: model.PhaseLongBreak, RemainingSeconds: 885, IsRunning: true},
	}, epoch)
	assert.Equal(t, 880, reconciler.Snapshot().RemainingSeconds)

	reconciler.applyEvent(tick(model.PhaseLongBreak, -4), epoch)
	assert.Equal(t, 0, reconciler.Snapshot().RemainingSeconds)
}

func TestFallbackDecrementsOncePerStaleSecond(t *testing.T) {
	reconciler := newStepper(&endLog{})
	reconciler.applyEvent(started(model.PhaseShortBreak, 10), epoch)

	assert.False(t, reconciler.fallbackTick(epoch.Add(time.Second)))
	assert.False(t, reconciler.fallbackTick(epoch.Add(1500*time.Millisecond)))
	assert.Equal(t, 10, reconciler.Snapshot().RemainingSeconds)

	for i := 2; i <= 5; i++ {
		reconciler.fallbackTick(epoch.Add(time.Duration(i) * time.Second))
	}
	assert.Equal(t, 6, reconciler.Snapshot().RemainingSeconds)

	synced := epoch.Add(5500 * time.Millisecond)
	reconciler.applyEvent(tick(model.PhaseShortBreak, 7), synced)
	assert.Equal(t, 6, reconciler.Snapshot().RemainingSeconds)
	reconciler.fallbackTick(synced.Add(time.Second))
	assert.Equal(t, 6, reconciler.Snapshot().RemainingSeconds)
}

func TestFallbackFloorsAtZeroAndRequestsHydration(t *testing.T) {
	ends := &endLog{}
	reconciler := newStepper(ends)
	reconciler.applyEvent(started(model.PhaseShortBreak, 1), epoch)

	assert.True(t, reconciler.fallbackTick(epoch.Add(2*time.Second)))
	assert.True(t, reconciler.fallbackTick(epoch.Add(3*time.Second)))
	assert.Equal(t, 0, reconciler.Snapshot().RemainingSeconds)
	assert.Empty(t, ends.all())

	reconciler.applyHydration(hydrationResult{
		generation: reconciler.generation,
		session:    &model.BreakSession{RemainingSeconds: 2},
	}, epoch.Add(3*time.Second))
	assert.Equal(t, 0, reconciler.Snapshot().RemainingSeconds)
	assert.Empty(t, ends.all())

	reconciler.applyPoll(pollResult{
		generation: reconciler.generation,
		state:      model.CycleState{Phase: model.PhaseShortBreak, RemainingSeconds: 1, IsRunning: true},
	}, epoch.Add(4*time.Second))
	assert.Empty(t, ends.all())

	reconciler.applyHydration(hydrationResult{generation: reconciler.generation}, epoch.Add(5*time.Second))
	assert.Equal(t, []BreakEnd{{Phase: model.PhaseShortBreak, Completed: true}}, ends.all())
	assert.False(t, reconciler.fallbackTick(epoch.Add(8*time.Second)))
}

func TestFallbackSkippedWhilePausedOrIdle(t *testing.T) {
	reconciler := newStepper(&endLog{})
	reconciler.fallbackTick(epoch.Add(time.Minute))
	assert.Equal(t, model.PhaseIdle, reconciler.Snapshot().Phase)

	reconciler.applyEvent(started(model.PhaseFocus, 60), epoch)
	reconciler.applyPoll(pollResult{
		generation: reconciler.generation,
		state:      model.CycleState{Phase: model.PhaseFocus, RemainingSeconds: 60, IsRunning: false},
	}, epoch)
	reconciler.fallbackTick(epoch.Add(time.Minute))
	assert.Equal(t, 60, reconciler.Snapshot().RemainingSeconds)
}

func TestCompletionFiresOncePerBreak(t *testing.T) {
	ends := &endLog{}
	reconciler := newStepper(ends)
	reconciler.applyEvent(started(model.PhaseShortBreak, 2), epoch)

	reconciler.applyEvent(tick(model.PhaseShortBreak, 0), epoch)
	reconciler.applyPoll(pollResult{
		generation: reconciler.generation,
		state:      model.CycleState{Phase: model.PhaseShortBreak, RemainingSeconds: 0, IsRunning: true},
	}, epoch)
	reconciler.applyEvent(model.Event{Kind: model.EventPhaseEnded, Phase: model.PhaseShortBreak, Completed: true}, epoch)
	assert.Len(t, ends.all(), 1)

	reconciler.applyEvent(started(model.PhaseFocus, 1500), epoch)
	reconciler.applyEvent(tick(model.PhaseFocus, 0), epoch)
	assert.Len(t, ends.all(), 1)

	reconciler.applyEvent(started(model.PhaseShortBreak, 300), epoch)
	reconciler.applyEvent(model.Event{Kind: model.EventPhaseEnded, Phase: model.PhaseShortBreak}, epoch)
	assert.Equal(t, []BreakEnd{
		{Phase: model.PhaseShortBreak, Completed: true},
		{Phase: model.PhaseShortBreak, Completed: false},
	}, ends.all())
}

func TestPollLeavingBreakEndsIt(t *testing.T) {
	ends := &endLog{}
	reconciler := newStepper(ends)
	reconciler.applyEvent(started(model.PhaseLongBreak, 900), epoch)

	reconciler.applyPoll(pollResult{
		generation: reconciler.generation,
		state:      model.CycleState{Phase: model.PhaseFocus, RemainingSeconds: 1499, CycleCount: 4, IsRunning: true},
	}, epoch)
	assert.Equal(t, []BreakEnd{{Phase: model.PhaseLongBreak, Completed: true}}, ends.all())
	assert.Equal(t, Snapshot{Phase: model.PhaseFocus, RemainingSeconds: 1499, CycleCount: 4, IsRunning: true}, reconciler.Snapshot())

	// The late phase_started for the instance the poll adopted keeps the lower value.
	reconciler.applyEvent(started(model.PhaseFocus, 1500), epoch)
	assert.Equal(t, 1499, reconciler.Snapshot().RemainingSeconds)
}

func TestPollErrorKeepsLastKnownState(t *testing.T) {
	reconciler := newStepper(&endLog{})
	reconciler.applyEvent(started(model.PhaseShortBreak, 120), epoch)

	reconciler.applyPoll(pollResult{generation: reconciler.generation, err: errors.New("pipe closed")}, epoch)
	snapshot := reconciler.Snapshot()
	assert.Equal(t, model.PhaseShortBreak, snapshot.Phase)
	assert.Equal(t, 120, snapshot.RemainingSeconds)
}

func TestLoopFollowsSourceAndReleasesSubscription(t *testing.T) {
	source := newFakeSource()
	source.setState(model.CycleState{Phase: model.PhaseShortBreak, RemainingSeconds: 30, IsRunning: true})
	ends := &endLog{}
	reconciler := New(source, Options{
		PollInterval:     5 * time.Millisecond,
		FallbackInterval: 5 * time.Millisecond,
		OnBreakEnd:       ends.record,
	})
	require.NoError(t, reconciler.Start(context.Background()))
	assert.ErrorIs(t, reconciler.Start(context.Background()), ErrRunning)

	require.Eventually(t, func() bool {
		return reconciler.Snapshot().Phase == model.PhaseShortBreak
	}, time.Second, 5*time.Millisecond)

	source.events <- tick(model.PhaseShortBreak, 12)
	require.Eventually(t, func() bool {
		return reconciler.Snapshot().RemainingSeconds == 12
	}, time.Second, 5*time.Millisecond)

	source.setState(model.CycleState{Phase: model.PhaseShortBreak, RemainingSeconds: 0, IsRunning: true})
	require.Eventually(t, func() bool { return len(ends.all()) == 1 }, time.Second, 5*time.Millisecond)

	reconciler.Stop()
	reconciler.Stop()
	source.mu.Lock()
	defer source.mu.Unlock()
	assert.True(t, source.released)
}
