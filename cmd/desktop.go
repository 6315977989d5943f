package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"focusguard/internal/app"
	"focusguard/internal/backend"
	"focusguard/internal/core/activity"
	"focusguard/internal/core/model"
	"focusguard/internal/core/timekeeper"
	"focusguard/internal/platform"
	"focusguard/internal/storage"
	"focusguard/internal/strict/controller"
	"focusguard/internal/strict/emergency"
	"focusguard/internal/ui/overlay"
	"focusguard/internal/ui/preferences"
	"focusguard/internal/ui/tray"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	"github.com/spf13/cobra"
)

// desktopRuntime holds the running GUI process.
type desktopRuntime struct {
	logger   *slog.Logger
	overlay  *overlay.Window
	selector *activity.Selector
	// keeper is nil when the timer runs in another process.
	keeper *timekeeper.TimeKeeper

	mu        sync.Mutex
	settings  model.Settings
	policy    app.Policy
	isPaused  bool
	pauseTill *time.Timer
	onPause   func(paused bool)
}

func runDesktop(cmd *cobra.Command, _ []string) error {
	logger := newLogger()

	instance, err := platform.AcquireSingleInstance(appName, logger)
	if err != nil {
		if errors.Is(err, platform.ErrAlreadyRunning) {
			logger.Info("already running, asked the other instance to show itself")
			return nil
		}
		return err
	}
	defer func() {
		_ = instance.Release()
	}()

	settingsPath, err := resolveSettingsPath()
	if err != nil {
		return err
	}
	settings, err := storage.LoadSettings(settingsPath, logger)
	if err != nil {
		logger.Warn("settings unreadable, using defaults", "path", settingsPath, "error", err)
	}

	fyneApp := fyneapp.NewWithID("com.focusguard.app")
	desktopApp, ok := fyneApp.(desktop.App)
	if !ok {
		return errors.New("system tray unsupported on this platform")
	}

	trayWindow := fyneApp.NewWindow(appName)
	trayWindow.SetContent(widget.NewLabel("FocusGuard is running in the system tray."))
	trayWindow.SetCloseIntercept(func() {
		trayWindow.Hide()
	})
	trayWindow.Hide()
	desktopApp.SetSystemTrayWindow(trayWindow)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	gui := &desktopRuntime{
		logger:   logger,
		settings: settings,
		policy:   policyFromSettings(settings, logger),
		selector: activity.NewSelector(loadActivities(settings.ActivitiesFile, logger), nil),
		overlay:  overlay.New(fyneApp, overlayConfig(settings), logger),
	}

	source, closeBackend, err := gui.connect(ctx, settings)
	if err != nil {
		return err
	}
	defer closeBackend()

	supervisor := app.New(app.Options{
		Deps: controller.Deps{
			Source:   source,
			Commands: source,
			Input:    gui.overlay,
			Window:   gui.overlay,
			Surface:  gui.overlay,
			Logger:   logger,
		},
		Selector: gui.selector,
		Policy:   gui.currentPolicy,
		Notifier: notifier{app: fyneApp},
		Logger:   logger,
	})
	gui.overlay.SetOnPIN(supervisor.SubmitPIN)
	gui.overlay.SetOnSkip(func() {
		go supervisor.Skip(ctx)
	})

	prefsWindow := preferences.New(fyneApp, settings, func(updated model.Settings) error {
		if err := storage.SaveSettings(settingsPath, updated); err != nil {
			return err
		}
		gui.apply(updated)
		return nil
	})
	instance.OnShow(func() {
		if status := supervisor.Status(); status.InBreak && status.Strict {
			return
		}
		fyne.Do(prefsWindow.Show)
	})

	// The app menu Quit (Cmd+Q on macOS) otherwise bypasses the tray.
	quitItem := fyne.NewMenuItem("Quit", guardedQuit(supervisor, fyneApp.Quit))
	quitItem.IsQuit = true
	trayWindow.SetMainMenu(fyne.NewMainMenu(fyne.NewMenu(appName, quitItem)))

	trayManager := tray.New(desktopApp, gui.trayCallbacks(ctx, supervisor, prefsWindow, fyneApp))
	gui.mu.Lock()
	gui.onPause = trayManager.SetPaused
	gui.mu.Unlock()
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				trayManager.SetStatus(gui.status(supervisor))
			}
		}
	}()

	if err := storage.WatchSettings(ctx, settingsPath, storage.DefaultReloadDebounce, logger, func(updated model.Settings) {
		gui.apply(updated)
		fyne.Do(func() { prefsWindow.UpdateSettings(updated) })
	}); err != nil {
		logger.Warn("settings will not reload", "error", err)
	}

	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		if err := supervisor.Run(ctx); err != nil {
			logger.Error("backend connection lost", "error", err)
			fyne.Do(fyneApp.Quit)
		}
	}()

	if gui.keeper != nil {
		gui.keeper.Start()
	}
	fyneApp.Run()

	// Release any lockdown before the backend goes away.
	cancel()
	<-supervisorDone
	return nil
}

// connect returns the in-process backend, or a websocket client when
// --backend is set.
func (gui *desktopRuntime) connect(ctx context.Context, settings model.Settings) (backend.Backend, func(), error) {
	if backendURL != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		client, err := backend.Dial(dialCtx, backendURL, gui.logger)
		if err != nil {
			return nil, nil, err
		}
		gui.logger.Info("using remote backend", "url", backendURL)
		return client, func() { _ = client.Close() }, nil
	}

	auditPath, err := resolveAuditPath()
	if err != nil {
		return nil, nil, err
	}
	var store backend.AttemptStore
	attempts, err := storage.OpenAttemptLog(auditPath)
	if err != nil {
		gui.logger.Warn("bypass attempts will not be stored", "path", auditPath, "error", err)
	} else {
		store = attempts
	}

	keeper := timekeeper.New(settings.TimeKeeperConfig(), timekeeper.Config{TickInterval: time.Second, Logger: gui.logger})
	keeper.SetIdleChecker(platform.NewIdleChecker())
	gui.keeper = keeper

	local := backend.NewLocal(keeper, store)
	local.SetOnHide(func() {
		_ = gui.overlay.Release()
	})
	return local, func() {
		keeper.Close()
		if attempts != nil {
			_ = attempts.Close()
		}
	}, nil
}

func (gui *desktopRuntime) trayCallbacks(ctx context.Context, supervisor *app.Supervisor, prefsWindow *preferences.Window, fyneApp fyne.App) tray.Callbacks {
	callbacks := tray.Callbacks{
		OnPreferences: prefsWindow.Show,
		OnSkipBreak: func() {
			go supervisor.Skip(ctx)
		},
		OnQuit: guardedQuit(supervisor, fyneApp.Quit),
	}
	keeper := gui.keeper
	if keeper == nil {
		return callbacks
	}
	callbacks.OnTogglePause = func() {
		gui.setPaused(!gui.paused(), 0)
	}
	callbacks.OnPauseFor = func(duration time.Duration) {
		gui.setPaused(true, duration)
	}
	callbacks.OnForceLong = func() {
		keeper.ForceBreak(model.PhaseLongBreak)
	}
	return callbacks
}

type quitGate interface {
	RequestQuit() bool
}

// guardedQuit returns a quit action that does nothing while a strict break
// holds the screen.
func guardedQuit(gate quitGate, quit func()) func() {
	return func() {
		if gate.RequestQuit() {
			quit()
		}
	}
}

func (gui *desktopRuntime) apply(settings model.Settings) {
	policy := policyFromSettings(settings, gui.logger)

	gui.mu.Lock()
	previous := gui.settings
	gui.settings = settings
	gui.policy = policy
	gui.mu.Unlock()

	if gui.keeper != nil {
		gui.keeper.UpdateConfig(settings.TimeKeeperConfig())
	}
	gui.overlay.UpdateConfig(overlayConfig(settings))
	if settings.ActivitiesFile != previous.ActivitiesFile {
		gui.selector.Replace(loadActivities(settings.ActivitiesFile, gui.logger))
	}
}

func (gui *desktopRuntime) currentPolicy() app.Policy {
	gui.mu.Lock()
	defer gui.mu.Unlock()
	return gui.policy
}

func (gui *desktopRuntime) status(supervisor *app.Supervisor) app.Status {
	status := supervisor.Status()
	if !status.InBreak && gui.keeper != nil {
		state := gui.keeper.State()
		status.Phase = state.Phase
		status.RemainingSeconds = state.RemainingSeconds
		status.IsRunning = state.IsRunning
	}
	return status
}

// setPaused pauses the local timer, for duration when it is positive.
func (gui *desktopRuntime) setPaused(paused bool, duration time.Duration) {
	gui.mu.Lock()
	if gui.pauseTill != nil {
		gui.pauseTill.Stop()
		gui.pauseTill = nil
	}
	gui.isPaused = paused
	if paused && duration > 0 {
		gui.pauseTill = time.AfterFunc(duration, func() {
			gui.setPaused(false, 0)
		})
	}
	onPause := gui.onPause
	gui.mu.Unlock()

	if paused {
		gui.keeper.Pause()
	} else {
		gui.keeper.Resume()
	}
	if onPause != nil {
		onPause(paused)
	}
}

func (gui *desktopRuntime) paused() bool {
	gui.mu.Lock()
	defer gui.mu.Unlock()
	return gui.isPaused
}

// policyFromSettings resolves the lockdown policy. A combination that does
// not parse leaves strict breaks with the PIN as the only escape.
func policyFromSettings(settings model.Settings, logger *slog.Logger) app.Policy {
	if logger == nil {
		logger = slog.Default()
	}
	strictConfig := settings.StrictConfig()
	policy := app.Policy{
		Strict:         strictConfig.Enabled,
		PINHash:        strictConfig.PINHash,
		AllowEmergency: strictConfig.AllowEmergency,
	}
	combination, err := emergency.ParseValid(strictConfig.Combination)
	if err != nil {
		logger.Warn("emergency combination disabled", "combination", strictConfig.Combination, "error", err)
		return policy
	}
	policy.Combination = &combination
	return policy
}

func overlayConfig(settings model.Settings) overlay.Config {
	return overlay.Config{
		Opacity:    settings.OverlayOpacity,
		Fullscreen: settings.Fullscreen,
	}
}

func loadActivities(path string, logger *slog.Logger) []model.Activity {
	if logger == nil {
		logger = slog.Default()
	}
	activities, err := activity.LoadFile(path)
	if err != nil {
		logger.Warn("activities file unreadable, using built-in activities", "path", path, "error", err)
		return activity.DefaultPool()
	}
	return activities
}

type notifier struct {
	app fyne.App
}

func (notifier notifier) Notify(title, body string) {
	notifier.app.SendNotification(fyne.NewNotification(fmt.Sprintf("%s: %s", appName, title), body))
}
