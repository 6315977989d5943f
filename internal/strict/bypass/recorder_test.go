package bypass

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"focusguard/internal/core/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	attempts []model.BypassAttempt
	err      error
	block    chan struct{}
	panics   bool
}

func (sink *recordingSink) RecordBypass(ctx context.Context, attempt model.BypassAttempt) error {
	if sink.panics {
		panic("sink exploded")
	}
	if sink.block != nil {
		select {
		case <-sink.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.attempts = append(sink.attempts, attempt)
	return sink.err
}

func (sink *recordingSink) recorded() []model.BypassAttempt {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	return append([]model.BypassAttempt(nil), sink.attempts...)
}

func TestRecordForwardsOnce(t *testing.T) {
	sink := &recordingSink{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	recorder := NewRecorder(sink, Options{Now: func() time.Time { return fixed }})

	recorder.Record("session-1", "escape_blocked")
	require.NoError(t, recorder.Drain(context.Background()))

	attempts := sink.recorded()
	require.Len(t, attempts, 1)
	assert.Equal(t, model.BypassAttempt{SessionID: "session-1", Method: "escape_blocked", Timestamp: fixed}, attempts[0])
	assert.Equal(t, 1, recorder.Count())
}

func TestRecordDoesNotBlockOnSlowSink(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	recorder := NewRecorder(sink, Options{})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			recorder.Record("s", "keyboard_blocked_a")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on the sink")
	}
	assert.Equal(t, 10, recorder.Count())

	close(sink.block)
	require.NoError(t, recorder.Drain(context.Background()))
	assert.Len(t, sink.recorded(), 10)
}

func TestForwardFailureIsDropped(t *testing.T) {
	sink := &recordingSink{err: errors.New("offline")}
	recorder := NewRecorder(sink, Options{})
	before := testutil.ToFloat64(forwardFailures)

	recorder.Record("s", "cmd_q_blocked")
	require.NoError(t, recorder.Drain(context.Background()))

	assert.Equal(t, before+1, testutil.ToFloat64(forwardFailures))
	assert.Equal(t, 1, recorder.Count())
}

func TestSinkPanicIsContained(t *testing.T) {
	recorder := NewRecorder(&recordingSink{panics: true}, Options{})
	assert.NotPanics(t, func() {
		recorder.Record("s", "mouse_blocked_mousedown")
		require.NoError(t, recorder.Drain(context.Background()))
	})
}

func TestCountCallbackAndReset(t *testing.T) {
	var counts []int
	recorder := NewRecorder(nil, Options{OnCount: func(count int) { counts = append(counts, count) }})

	recorder.Record("s", "a")
	recorder.Record("s", "b")
	assert.Equal(t, []int{1, 2}, counts)

	recorder.Reset()
	assert.Equal(t, 0, recorder.Count())
}

func TestMetricsByMethod(t *testing.T) {
	recorder := NewRecorder(nil, Options{})
	before := testutil.ToFloat64(attemptsTotal.WithLabelValues("window_blur_detected"))

	recorder.Record("s", "window_blur_detected")
	assert.Equal(t, before+1, testutil.ToFloat64(attemptsTotal.WithLabelValues("window_blur_detected")))
}

func TestDrainHonorsContext(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	defer close(sink.block)
	recorder := NewRecorder(sink, Options{ForwardTimeout: time.Minute})
	recorder.Record("s", "x")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, recorder.Drain(ctx), context.DeadlineExceeded)
}
