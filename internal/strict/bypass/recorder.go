// Package bypass counts and forwards attempts to escape a strict break.
package bypass

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"focusguard/internal/core/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focusguard_bypass_attempts_total",
		Help: "Bypass attempts recorded during strict breaks, by method",
	}, []string{"method"})

	forwardFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focusguard_bypass_forward_failures_total",
		Help: "Bypass attempts that could not be forwarded to the sink",
	})
)

// Sink durably stores forwarded attempts.
type Sink interface {
	RecordBypass(ctx context.Context, attempt model.BypassAttempt) error
}

// Options configures a Recorder.
type Options struct {
	// ForwardTimeout bounds each forward call.
	ForwardTimeout time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
	// OnCount is called with the new count after every Record. It runs on the
	// caller's goroutine and must return quickly.
	OnCount func(count int)
}

// Recorder is an append-only, fire-and-forget log of bypass attempts.
type Recorder struct {
	sink     Sink
	options  Options
	count    atomic.Int64
	inflight sync.WaitGroup
}

// NewRecorder creates a Recorder forwarding to sink. A nil sink only counts.
func NewRecorder(sink Sink, options Options) *Recorder {
	if options.ForwardTimeout <= 0 {
		options.ForwardTimeout = 5 * time.Second
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Recorder{sink: sink, options: options}
}

// Record counts the attempt and forwards it in the background. It never
// blocks on the sink and never panics.
func (recorder *Recorder) Record(sessionID, method string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			recorder.options.Logger.Error("bypass record panicked", "method", method, "panic", recovered)
		}
	}()

	attempt := model.BypassAttempt{
		SessionID: sessionID,
		Method:    method,
		Timestamp: recorder.options.Now(),
	}
	count := int(recorder.count.Add(1))
	attemptsTotal.WithLabelValues(method).Inc()
	recorder.options.Logger.Info("bypass attempt", "session", sessionID, "method", method, "count", count)
	if recorder.options.OnCount != nil {
		recorder.options.OnCount(count)
	}

	if recorder.sink == nil {
		return
	}
	recorder.inflight.Add(1)
	go recorder.forward(attempt)
}

func (recorder *Recorder) forward(attempt model.BypassAttempt) {
	defer recorder.inflight.Done()
	defer func() {
		if recovered := recover(); recovered != nil {
			forwardFailures.Inc()
			recorder.options.Logger.Error("bypass forward panicked", "method", attempt.Method, "panic", recovered)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), recorder.options.ForwardTimeout)
	defer cancel()
	if err := recorder.sink.RecordBypass(ctx, attempt); err != nil {
		forwardFailures.Inc()
		recorder.options.Logger.Warn("bypass forward failed", "method", attempt.Method, "error", err)
	}
}

// Count returns attempts recorded since the last Reset.
func (recorder *Recorder) Count() int {
	return int(recorder.count.Load())
}

// Reset zeroes the on-screen counter.
func (recorder *Recorder) Reset() {
	recorder.count.Store(0)
}

// Drain waits for in-flight forwards to settle or ctx to end.
func (recorder *Recorder) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		recorder.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain bypass forwards: %w", ctx.Err())
	}
}
