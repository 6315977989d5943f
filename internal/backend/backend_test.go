package backend

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"focusguard/internal/core/model"
	"focusguard/internal/core/timekeeper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu       sync.Mutex
	attempts []model.BypassAttempt
	err      error
}

func (store *memoryStore) SaveAttempt(_ context.Context, attempt model.BypassAttempt) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.err != nil {
		return store.err
	}
	store.attempts = append(store.attempts, attempt)
	return nil
}

func (store *memoryStore) saved() []model.BypassAttempt {
	store.mu.Lock()
	defer store.mu.Unlock()
	return append([]model.BypassAttempt(nil), store.attempts...)
}

func newKeeper(t *testing.T) *timekeeper.TimeKeeper {
	t.Helper()
	keeper := timekeeper.New(model.TimeKeeperConfig{
		Focus:          25 * time.Minute,
		ShortBreak:     5 * time.Minute,
		LongBreak:      15 * time.Minute,
		AllowEmergency: true,
	}, timekeeper.Config{TickInterval: time.Hour})
	keeper.Start()
	t.Cleanup(keeper.Close)
	return keeper
}

func dialTest(t *testing.T, backend Backend) *Client {
	t.Helper()
	server := httptest.NewServer(NewServer(backend, nil))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLocalRecordBypass(t *testing.T) {
	store := &memoryStore{}
	local := NewLocal(newKeeper(t), store)

	attempt := model.BypassAttempt{SessionID: "s1", Method: "escape_blocked", Timestamp: time.Now()}
	require.NoError(t, local.RecordBypass(context.Background(), attempt))
	assert.Len(t, store.saved(), 1)

	store.err = errors.New("disk full")
	err := local.RecordBypass(context.Background(), attempt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestLocalWithoutStoreDiscards(t *testing.T) {
	local := NewLocal(newKeeper(t), nil)
	assert.NoError(t, local.RecordBypass(context.Background(), model.BypassAttempt{}))
}

func TestLocalHideLockdownCallsHandler(t *testing.T) {
	local := NewLocal(newKeeper(t), nil)
	hidden := false
	local.SetOnHide(func() { hidden = true })
	require.NoError(t, local.HideLockdown(context.Background()))
	assert.True(t, hidden)
}

func TestClientRoundTrip(t *testing.T) {
	keeper := newKeeper(t)
	store := &memoryStore{}
	client := dialTest(t, NewLocal(keeper, store))
	ctx := context.Background()

	state, err := client.PollState(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseFocus, state.Phase)
	assert.Equal(t, 25*60, state.RemainingSeconds)

	session, err := client.CurrentBreak(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	keeper.ForceBreak(model.PhaseLongBreak)
	session, err = client.CurrentBreak(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, model.BreakLong, session.Type)
	assert.True(t, session.AllowEmergency)

	attempt := model.BypassAttempt{SessionID: session.ID, Method: "cmd_q_blocked", Timestamp: time.Now().UTC()}
	require.NoError(t, client.RecordBypass(ctx, attempt))
	saved := store.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "cmd_q_blocked", saved[0].Method)
	assert.Equal(t, session.ID, saved[0].SessionID)

	require.NoError(t, client.SetEmergencyExit(ctx, true))
	assert.Nil(t, keeper.CurrentBreak())
	require.NoError(t, client.HideLockdown(ctx))
}

func TestClientReceivesPushedEvents(t *testing.T) {
	keeper := newKeeper(t)
	client := dialTest(t, NewLocal(keeper, nil))
	events, unsubscribe := client.Subscribe(8)
	defer unsubscribe()

	_, err := client.PollState(context.Background())
	require.NoError(t, err)

	keeper.ForceBreak(model.PhaseShortBreak)

	var started model.Event
	require.Eventually(t, func() bool {
		select {
		case event := <-events:
			if event.Kind == model.EventPhaseStarted {
				started = event
				return true
			}
		default:
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, model.PhaseShortBreak, started.Phase)
	assert.Equal(t, 5*60, started.Duration)
}

func TestClientCloseFailsCallsAndClosesSubscribers(t *testing.T) {
	client := dialTest(t, NewLocal(newKeeper(t), nil))
	events, _ := client.Subscribe(1)

	require.NoError(t, client.Close())

	_, ok := <-events
	assert.False(t, ok)
	_, err := client.PollState(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClientCallHonorsContext(t *testing.T) {
	client := dialTest(t, NewLocal(newKeeper(t), nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.PollState(ctx)
	assert.Error(t, err)
}
