// Package overlay is the fyne lockdown screen shown during a break. It is the
// controller's Surface, the input guard's event source and the focus
// enforcer's window handle.
package overlay

import (
	"fmt"
	"image/color"
	"log/slog"
	"strings"
	"sync"

	"focusguard/internal/core/model"
	"focusguard/internal/strict/focus"
	"focusguard/internal/strict/inputguard"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// Config defines overlay visuals.
type Config struct {
	Opacity    float64
	Fullscreen bool
}

// Window manages the overlay UI.
type Window struct {
	app    fyne.App
	window fyne.Window
	logger *slog.Logger

	background       *canvas.Rectangle
	catcher          *inputCatcher
	kindLabel        *canvas.Text
	titleLabel       *canvas.Text
	descriptionLabel *widget.Label
	checklistLabel   *widget.Label
	timerLabel       *canvas.Text
	bypassLabel      *canvas.Text
	skipButton       *widget.Button
	pinEntry         *widget.Entry
	pinStatus        *canvas.Text
	pinRow           *fyne.Container

	mu          sync.Mutex
	config      Config
	handler     inputguard.Handler
	lossHandler func(focus.Loss)
	onSkip      func()
	onPIN       func(pin string) bool
	visible     bool
}

const (
	overlayWidthFraction  = float32(0.45)
	overlayHeightFraction = float32(0.55)
	defaultScreenWidth    = float32(1920)
	defaultScreenHeight   = float32(1080)
	panelWidth            = float32(520)
)

var (
	accentColor = color.NRGBA{R: 232, G: 190, B: 66, A: 255}
	textColor   = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	warnColor   = color.NRGBA{R: 240, G: 96, B: 80, A: 255}
)

type splashWindowDriver interface {
	CreateSplashWindow() fyne.Window
}

// New creates a hidden overlay window.
func New(app fyne.App, config Config, logger *slog.Logger) *Window {
	if logger == nil {
		logger = slog.Default()
	}
	window := app.NewWindow("FocusGuard")
	if driver, ok := app.Driver().(splashWindowDriver); ok {
		// Splash window is undecorated (no native frame/buttons).
		window = driver.CreateSplashWindow()
	}
	if app.Icon() != nil {
		window.SetIcon(app.Icon())
	}
	window.SetPadded(false)

	overlay := &Window{
		app:    app,
		window: window,
		logger: logger,
		config: config,
	}

	overlay.background = canvas.NewRectangle(color.NRGBA{A: opacityToAlpha(config.Opacity)})
	overlay.catcher = newInputCatcher(overlay.dispatch, currentModifiers(app))

	overlay.kindLabel = canvas.NewText("", accentColor)
	overlay.kindLabel.Alignment = fyne.TextAlignCenter
	overlay.kindLabel.TextStyle = fyne.TextStyle{Bold: true}
	overlay.kindLabel.TextSize = 16

	overlay.titleLabel = canvas.NewText("", textColor)
	overlay.titleLabel.Alignment = fyne.TextAlignCenter
	overlay.titleLabel.TextStyle = fyne.TextStyle{Bold: true}
	overlay.titleLabel.TextSize = 28

	overlay.descriptionLabel = widget.NewLabel("")
	overlay.descriptionLabel.Alignment = fyne.TextAlignCenter
	overlay.descriptionLabel.Wrapping = fyne.TextWrapWord

	overlay.checklistLabel = widget.NewLabel("")
	overlay.checklistLabel.Wrapping = fyne.TextWrapWord

	overlay.timerLabel = canvas.NewText("--:--", accentColor)
	overlay.timerLabel.Alignment = fyne.TextAlignCenter
	overlay.timerLabel.TextStyle = fyne.TextStyle{Bold: true, Monospace: true}
	overlay.timerLabel.TextSize = 48

	overlay.bypassLabel = canvas.NewText("", warnColor)
	overlay.bypassLabel.Alignment = fyne.TextAlignCenter
	overlay.bypassLabel.TextSize = 13
	overlay.bypassLabel.Hide()

	overlay.skipButton = widget.NewButton("Skip break", func() {
		overlay.mu.Lock()
		handler := overlay.onSkip
		overlay.mu.Unlock()
		if handler != nil {
			handler()
		}
	})

	overlay.pinEntry = widget.NewPasswordEntry()
	overlay.pinEntry.SetPlaceHolder("Emergency PIN")
	overlay.pinEntry.OnSubmitted = func(string) { overlay.submitPIN() }
	overlay.pinStatus = canvas.NewText("", warnColor)
	overlay.pinStatus.TextSize = 12
	unlockButton := widget.NewButton("Unlock", overlay.submitPIN)
	overlay.pinRow = container.NewVBox(
		container.NewBorder(nil, nil, nil, unlockButton, overlay.pinEntry),
		overlay.pinStatus,
	)
	overlay.pinRow.Hide()

	panel := container.NewVBox(
		overlay.kindLabel,
		overlay.titleLabel,
		overlay.descriptionLabel,
		overlay.checklistLabel,
		overlay.timerLabel,
		overlay.bypassLabel,
		container.NewCenter(overlay.skipButton),
		overlay.pinRow,
	)
	content := container.NewCenter(container.New(&panelLayout{width: panelWidth}, panel))
	window.SetContent(container.NewStack(overlay.background, overlay.catcher, content))

	window.SetCloseIntercept(func() {
		if !overlay.reportLoss(focus.LossVisibility) {
			overlay.window.Hide()
		}
	})
	app.Lifecycle().SetOnExitedForeground(func() {
		overlay.reportLoss(focus.LossBlur)
	})

	overlay.applyWindowMode()
	return overlay
}

// SetOnSkip sets the handler of the skip button, shown only for non-strict
// breaks.
func (overlay *Window) SetOnSkip(handler func()) {
	overlay.mu.Lock()
	defer overlay.mu.Unlock()
	overlay.onSkip = handler
}

// SetOnPIN sets the emergency PIN handler. It reports whether the PIN
// unlocked the break.
func (overlay *Window) SetOnPIN(handler func(pin string) bool) {
	overlay.mu.Lock()
	defer overlay.mu.Unlock()
	overlay.onPIN = handler
}

// UpdateConfig updates overlay visuals. It takes effect on the next show.
func (overlay *Window) UpdateConfig(config Config) {
	overlay.mu.Lock()
	overlay.config = config
	overlay.mu.Unlock()
	fyne.Do(func() {
		overlay.background.FillColor = color.NRGBA{A: opacityToAlpha(config.Opacity)}
		canvas.Refresh(overlay.background)
	})
}

// Show presents the lockdown screen for session.
func (overlay *Window) Show(session model.BreakSession, strict bool) error {
	overlay.mu.Lock()
	overlay.visible = true
	config := overlay.config
	overlay.mu.Unlock()

	fyne.Do(func() {
		overlay.kindLabel.Text = breakHeading(session.Type)
		overlay.kindLabel.Refresh()
		overlay.titleLabel.Text = session.Activity.Title
		overlay.titleLabel.Refresh()
		overlay.descriptionLabel.SetText(session.Activity.Description)
		overlay.checklistLabel.SetText(formatChecklist(session.Activity.Checklist))
		overlay.setRemainingUnsafe(session.RemainingSeconds)
		overlay.setBypassCountUnsafe(0)

		if strict {
			overlay.skipButton.Hide()
		} else {
			overlay.skipButton.Show()
		}
		overlay.pinEntry.SetText("")
		overlay.pinStatus.Text = ""
		overlay.pinStatus.Refresh()
		if strict && session.AllowEmergency {
			overlay.pinRow.Show()
		} else {
			overlay.pinRow.Hide()
		}

		overlay.applyWindowMode()
		overlay.window.Show()
		if config.Fullscreen || strict {
			overlay.window.SetFullScreen(true)
		}
		overlay.applyNativeOpacity(opacityToAlpha(config.Opacity))
		overlay.window.RequestFocus()
		overlay.window.Canvas().Focus(overlay.catcher)
	})
	return nil
}

// SetRemaining updates the countdown.
func (overlay *Window) SetRemaining(seconds int) {
	fyne.Do(func() {
		overlay.setRemainingUnsafe(seconds)
	})
}

// SetBypassCount updates the bypass attempt badge.
func (overlay *Window) SetBypassCount(count int) {
	fyne.Do(func() {
		overlay.setBypassCountUnsafe(count)
	})
}

// Release hides the overlay and drops every window-level override.
func (overlay *Window) Release() error {
	overlay.mu.Lock()
	overlay.visible = false
	overlay.mu.Unlock()

	fyne.Do(func() {
		overlay.setTopmost(false)
		overlay.window.SetFullScreen(false)
		overlay.window.Hide()
	})
	return nil
}

// Visible reports whether a break is on screen.
func (overlay *Window) Visible() bool {
	overlay.mu.Lock()
	defer overlay.mu.Unlock()
	return overlay.visible
}

// Install routes every key and pointer event on the overlay to handler until
// the returned function runs.
func (overlay *Window) Install(handler inputguard.Handler) (func() error, error) {
	if handler == nil {
		return nil, fmt.Errorf("install input handler: handler is nil")
	}
	overlay.mu.Lock()
	overlay.handler = handler
	overlay.mu.Unlock()

	return func() error {
		overlay.mu.Lock()
		overlay.handler = nil
		overlay.mu.Unlock()
		return nil
	}, nil
}

// SetAlwaysOnTop keeps the overlay above other windows where the platform
// allows it.
func (overlay *Window) SetAlwaysOnTop(on bool) error {
	fyne.Do(func() {
		overlay.setTopmost(on)
	})
	return nil
}

// SetFullScreen toggles fullscreen.
func (overlay *Window) SetFullScreen(on bool) error {
	fyne.Do(func() {
		overlay.window.SetFullScreen(on)
	})
	return nil
}

// RequestFocus raises the overlay. The PIN entry keeps focus while the user
// types into it.
func (overlay *Window) RequestFocus() error {
	fyne.Do(func() {
		overlay.window.Show()
		overlay.window.RequestFocus()
		if overlay.window.Canvas().Focused() != overlay.pinEntry {
			overlay.window.Canvas().Focus(overlay.catcher)
		}
	})
	return nil
}

// WatchFocusLoss reports blur and close attempts until released.
func (overlay *Window) WatchFocusLoss(handler func(focus.Loss)) (func() error, error) {
	overlay.mu.Lock()
	overlay.lossHandler = handler
	overlay.mu.Unlock()

	return func() error {
		overlay.mu.Lock()
		overlay.lossHandler = nil
		overlay.mu.Unlock()
		return nil
	}, nil
}

func (overlay *Window) dispatch(event inputguard.Event) inputguard.Verdict {
	overlay.mu.Lock()
	handler := overlay.handler
	overlay.mu.Unlock()
	if handler == nil {
		return inputguard.Allow
	}
	return handler(event)
}

// reportLoss returns false when nobody is watching.
func (overlay *Window) reportLoss(loss focus.Loss) bool {
	overlay.mu.Lock()
	handler := overlay.lossHandler
	overlay.mu.Unlock()
	if handler == nil {
		return false
	}
	overlay.logger.Debug("overlay lost focus", "loss", loss)
	handler(loss)
	return true
}

func (overlay *Window) submitPIN() {
	overlay.mu.Lock()
	handler := overlay.onPIN
	overlay.mu.Unlock()

	pin := overlay.pinEntry.Text
	overlay.pinEntry.SetText("")
	if handler == nil || strings.TrimSpace(pin) == "" {
		return
	}
	// The handler tears the break down, which calls back into the window.
	go func() {
		if handler(pin) {
			return
		}
		fyne.Do(func() {
			overlay.pinStatus.Text = "Wrong PIN"
			overlay.pinStatus.Refresh()
			overlay.window.Canvas().Focus(overlay.pinEntry)
		})
	}()
}

func (overlay *Window) setRemainingUnsafe(seconds int) {
	overlay.timerLabel.Text = FormatRemaining(seconds)
	overlay.timerLabel.Refresh()
}

func (overlay *Window) setBypassCountUnsafe(count int) {
	if count <= 0 {
		overlay.bypassLabel.Hide()
		return
	}
	overlay.bypassLabel.Text = fmt.Sprintf("Bypass attempts: %d", count)
	overlay.bypassLabel.Show()
	overlay.bypassLabel.Refresh()
}

func (overlay *Window) applyWindowMode() {
	overlay.mu.Lock()
	fullscreen := overlay.config.Fullscreen
	overlay.mu.Unlock()
	if fullscreen {
		overlay.window.SetFullScreen(true)
		return
	}
	overlay.window.SetFullScreen(false)
	overlay.resizeToScreenFraction()
}

func (overlay *Window) resizeToScreenFraction() {
	screenSize := fyne.NewSize(defaultScreenWidth, defaultScreenHeight)
	canvasSize := overlay.window.Canvas().Size()
	// Canvas size can be reused as a proxy for monitor size when it is clearly screen-like.
	if canvasSize.Width >= 1024 && canvasSize.Height >= 720 {
		screenSize = canvasSize
	}

	width := screenSize.Width * overlayWidthFraction
	height := screenSize.Height * overlayHeightFraction
	minSize := overlay.window.Content().MinSize()
	if width < minSize.Width {
		width = minSize.Width
	}
	if height < minSize.Height {
		height = minSize.Height
	}

	overlay.window.Resize(fyne.NewSize(width, height))
	overlay.window.CenterOnScreen()
}

// FormatRemaining renders seconds as mm:ss.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func breakHeading(breakType model.BreakType) string {
	if breakType == model.BreakLong {
		return "LONG BREAK"
	}
	return "SHORT BREAK"
}

func formatChecklist(items []string) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			lines = append(lines, "• "+item)
		}
	}
	return strings.Join(lines, "\n")
}

func opacityToAlpha(opacity float64) uint8 {
	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}
	return uint8(opacity * 255)
}

// panelLayout gives its objects a fixed width so wrapped text has room.
type panelLayout struct {
	width float32
}

func (layout *panelLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	width := layout.width
	if width > size.Width {
		width = size.Width
	}
	for _, object := range objects {
		object.Move(fyne.NewPos((size.Width-width)/2, 0))
		object.Resize(fyne.NewSize(width, size.Height))
	}
}

func (layout *panelLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	height := float32(0)
	for _, object := range objects {
		if objectHeight := object.MinSize().Height; objectHeight > height {
			height = objectHeight
		}
	}
	return fyne.NewSize(layout.width, height)
}
