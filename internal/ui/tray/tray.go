package tray

import (
	"fmt"
	"sync"
	"time"

	"focusguard/internal/app"
	"focusguard/internal/core/model"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
)

// Callbacks defines tray action handlers. A nil handler hides its item, which
// is how a remote backend without pause or force commands is shown.
type Callbacks struct {
	OnPreferences func()
	OnTogglePause func()
	OnSkipBreak   func()
	OnPauseFor    func(time.Duration)
	OnForceLong   func()
	OnQuit        func()
}

// Manager handles system tray state.
type Manager struct {
	app       desktop.App
	callbacks Callbacks

	mu     sync.Mutex
	status app.Status
	paused bool
}

var pauseDurations = []time.Duration{5 * time.Minute, 15 * time.Minute, 30 * time.Minute, 60 * time.Minute}

// New creates a tray manager with the provided callbacks.
func New(desktopApp desktop.App, callbacks Callbacks) *Manager {
	manager := &Manager{
		app:       desktopApp,
		callbacks: callbacks,
		status:    app.Status{Phase: model.PhaseIdle},
	}
	if desktopApp != nil {
		desktopApp.SetSystemTrayMenu(manager.menu())
	}
	return manager
}

// SetStatus updates the status line from the supervisor. Safe from any
// goroutine.
func (manager *Manager) SetStatus(status app.Status) {
	manager.mu.Lock()
	manager.status = status
	manager.mu.Unlock()
	manager.refreshMenu()
}

// SetPaused updates pause state.
func (manager *Manager) SetPaused(paused bool) {
	manager.mu.Lock()
	manager.paused = paused
	manager.mu.Unlock()
	manager.refreshMenu()
}

// Paused reports the pause state shown in the menu.
func (manager *Manager) Paused() bool {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	return manager.paused
}

func (manager *Manager) refreshMenu() {
	if manager.app == nil {
		return
	}
	fyne.Do(func() {
		manager.app.SetSystemTrayMenu(manager.menu())
	})
}

func (manager *Manager) menu() *fyne.Menu {
	manager.mu.Lock()
	status := manager.status
	paused := manager.paused
	manager.mu.Unlock()

	statusItem := fyne.NewMenuItem("Status: "+StatusLine(status, paused), nil)
	statusItem.Disabled = true
	items := []*fyne.MenuItem{statusItem}
	if status.InBreak && status.BypassAttempts > 0 {
		bypassItem := fyne.NewMenuItem(fmt.Sprintf("Bypass attempts: %d", status.BypassAttempts), nil)
		bypassItem.Disabled = true
		items = append(items, bypassItem)
	}
	items = append(items, fyne.NewMenuItemSeparator())

	locked := status.InBreak && status.Strict
	if handler := manager.callbacks.OnPreferences; handler != nil {
		prefsItem := fyne.NewMenuItem("Preferences", handler)
		prefsItem.Disabled = locked
		items = append(items, prefsItem)
	}
	if handler := manager.callbacks.OnPauseFor; handler != nil {
		pauseFor := fyne.NewMenuItem("Disable breaks for...", nil)
		children := make([]*fyne.MenuItem, 0, len(pauseDurations))
		for _, duration := range pauseDurations {
			children = append(children, fyne.NewMenuItem(fmt.Sprintf("%d minutes", int(duration.Minutes())), func() {
				handler(duration)
			}))
		}
		pauseFor.ChildMenu = fyne.NewMenu("", children...)
		pauseFor.Disabled = status.InBreak
		items = append(items, pauseFor)
	}
	if handler := manager.callbacks.OnForceLong; handler != nil {
		forceLong := fyne.NewMenuItem("Take a long break now", handler)
		forceLong.Disabled = status.InBreak
		items = append(items, forceLong)
	}
	if handler := manager.callbacks.OnTogglePause; handler != nil {
		label := "Pause"
		if paused {
			label = "Resume"
		}
		pauseItem := fyne.NewMenuItem(label, handler)
		pauseItem.Disabled = locked
		items = append(items, pauseItem)
	}
	if handler := manager.callbacks.OnSkipBreak; handler != nil {
		skipItem := fyne.NewMenuItem("Skip break", handler)
		skipItem.Disabled = !status.InBreak || status.Strict
		items = append(items, skipItem)
	}
	if handler := manager.callbacks.OnQuit; handler != nil {
		quit := fyne.NewMenuItem("Quit", handler)
		quit.IsQuit = true
		quit.Disabled = locked
		items = append(items, quit)
	}
	return fyne.NewMenu("FocusGuard", items...)
}

// StatusLine renders the tray status text.
func StatusLine(status app.Status, paused bool) string {
	var line string
	switch {
	case status.InBreak && status.Strict:
		line = fmt.Sprintf("%s %s (strict)", phaseLabel(status.Phase), formatRemaining(status.RemainingSeconds))
	case status.InBreak:
		line = fmt.Sprintf("%s %s", phaseLabel(status.Phase), formatRemaining(status.RemainingSeconds))
	case status.Phase == model.PhaseFocus:
		line = "next break in " + formatRemaining(status.RemainingSeconds)
	default:
		line = "idle"
	}
	if paused {
		line = fmt.Sprintf("%s (paused)", line)
	}
	return line
}

func phaseLabel(phase model.Phase) string {
	switch phase {
	case model.PhaseLongBreak:
		return "long break"
	case model.PhaseShortBreak:
		return "short break"
	default:
		return string(phase)
	}
}

func formatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
