// Package focus keeps the lockdown window topmost, fullscreen and focused.
package focus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultInterval is the periodic re-assert interval.
const DefaultInterval = 350 * time.Millisecond

// ErrRunning is returned when starting an enforcer that is already running.
var ErrRunning = errors.New("focus enforcer already running")

var reassertFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "focusguard_focus_reassert_failures_total",
	Help: "Window-control calls refused while enforcing focus",
}, []string{"call"})

// Loss is a detected loss of focus or visibility, named by its bypass method.
type Loss string

const (
	LossBlur       Loss = "window_blur_detected"
	LossVisibility Loss = "visibility_change_detected"
)

// Window is the window-control capability of the lockdown surface.
type Window interface {
	SetAlwaysOnTop(on bool) error
	SetFullScreen(on bool) error
	RequestFocus() error
	// WatchFocusLoss reports blur and visibility loss until released.
	WatchFocusLoss(handler func(Loss)) (release func() error, err error)
}

// Recorder receives focus losses as bypass attempts.
type Recorder interface {
	Record(sessionID, method string)
}

// Options configures an Enforcer.
type Options struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Enforcer re-asserts focus at start, on every loss, and on a fixed interval.
type Enforcer struct {
	window   Window
	recorder Recorder
	options  Options

	mu        sync.Mutex
	sessionID string
	stopCh    chan struct{}
	done      chan struct{}
	release   func() error
}

// New creates a stopped enforcer.
func New(window Window, recorder Recorder, options Options) *Enforcer {
	if options.Interval <= 0 {
		options.Interval = DefaultInterval
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Enforcer{window: window, recorder: recorder, options: options}
}

// Start begins enforcement for one break.
func (enforcer *Enforcer) Start(sessionID string) error {
	enforcer.mu.Lock()
	defer enforcer.mu.Unlock()
	if enforcer.stopCh != nil {
		return ErrRunning
	}

	enforcer.sessionID = sessionID
	enforcer.reassert()

	release, err := enforcer.window.WatchFocusLoss(enforcer.handleLoss)
	if err != nil {
		// Interval re-asserts still cover a window manager without focus events.
		enforcer.options.Logger.Warn("focus loss detection unavailable", "error", err)
		release = nil
	}
	enforcer.release = release
	enforcer.stopCh = make(chan struct{})
	enforcer.done = make(chan struct{})
	go enforcer.run(enforcer.stopCh, enforcer.done)
	enforcer.options.Logger.Info("focus enforcer started", "session", sessionID, "interval", enforcer.options.Interval)
	return nil
}

// Stop ends enforcement. It is safe to call more than once.
func (enforcer *Enforcer) Stop() error {
	enforcer.mu.Lock()
	if enforcer.stopCh == nil {
		enforcer.mu.Unlock()
		return nil
	}
	close(enforcer.stopCh)
	done := enforcer.done
	release := enforcer.release
	enforcer.stopCh = nil
	enforcer.done = nil
	enforcer.release = nil
	enforcer.mu.Unlock()

	<-done
	enforcer.options.Logger.Info("focus enforcer stopped")
	if release == nil {
		return nil
	}
	if err := release(); err != nil {
		return fmt.Errorf("release focus watch: %w", err)
	}
	return nil
}

// Running reports whether enforcement is active.
func (enforcer *Enforcer) Running() bool {
	enforcer.mu.Lock()
	defer enforcer.mu.Unlock()
	return enforcer.stopCh != nil
}

func (enforcer *Enforcer) run(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(enforcer.options.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			enforcer.mu.Lock()
			enforcer.reassert()
			enforcer.mu.Unlock()
		}
	}
}

func (enforcer *Enforcer) handleLoss(loss Loss) {
	enforcer.mu.Lock()
	defer enforcer.mu.Unlock()
	if enforcer.stopCh == nil {
		return
	}
	enforcer.recorder.Record(enforcer.sessionID, string(loss))
	enforcer.reassert()
}

// reassert must be called with mu held.
func (enforcer *Enforcer) reassert() {
	enforcer.call("always_on_top", func() error { return enforcer.window.SetAlwaysOnTop(true) })
	enforcer.call("fullscreen", func() error { return enforcer.window.SetFullScreen(true) })
	enforcer.call("focus", enforcer.window.RequestFocus)
}

func (enforcer *Enforcer) call(name string, fn func() error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			reassertFailures.WithLabelValues(name).Inc()
			enforcer.options.Logger.Error("window control panicked", "call", name, "panic", recovered)
		}
	}()
	if err := fn(); err != nil {
		reassertFailures.WithLabelValues(name).Inc()
		enforcer.options.Logger.Warn("window control failed", "call", name, "error", err)
	}
}
