package preferences

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"focusguard/internal/core/model"
	"focusguard/internal/strict/emergency"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"
)

// Window handles the preferences UI.
type Window struct {
	window   fyne.Window
	settings model.Settings
	onSave   func(model.Settings) error
	onCancel func()

	focusMinutes   *widget.Entry
	shortMinutes   *widget.Entry
	longMinutes    *widget.Entry
	cycles         *widget.Entry
	preAlert       *widget.Entry
	strict         *widget.Check
	allowEmergency *widget.Check
	combination    *widget.Entry
	combinationErr *widget.Label
	pin            *widget.Entry
	idleCheck      *widget.Check
	opacity        *widget.Slider
	fullscreen     *widget.Check
	activitiesFile *widget.Entry
	saveErr        *widget.Label
}

// New creates a preferences window. onSave persists the result; its error is
// shown and keeps the window open.
func New(app fyne.App, settings model.Settings, onSave func(model.Settings) error) *Window {
	window := app.NewWindow("FocusGuard Settings")

	prefs := &Window{
		window:         window,
		settings:       settings,
		onSave:         onSave,
		focusMinutes:   widget.NewEntry(),
		shortMinutes:   widget.NewEntry(),
		longMinutes:    widget.NewEntry(),
		cycles:         widget.NewEntry(),
		preAlert:       widget.NewEntry(),
		strict:         widget.NewCheck("Strict mode (lock input during breaks)", nil),
		allowEmergency: widget.NewCheck("Allow emergency exit", nil),
		combination:    widget.NewEntry(),
		combinationErr: widget.NewLabel(""),
		pin:            widget.NewPasswordEntry(),
		idleCheck:      widget.NewCheck("Reset the cycle after idle time", nil),
		opacity:        widget.NewSlider(0.7, 0.95),
		fullscreen:     widget.NewCheck("Fullscreen overlay", nil),
		activitiesFile: widget.NewEntry(),
		saveErr:        widget.NewLabel(""),
	}
	prefs.opacity.Step = 0.01
	prefs.combination.SetPlaceHolder(emergency.DefaultCombination)
	prefs.combination.OnChanged = func(string) { prefs.validateCombination() }
	prefs.combinationErr.Wrapping = fyne.TextWrapWord
	prefs.combinationErr.Importance = widget.DangerImportance
	prefs.pin.SetPlaceHolder("leave empty to keep")
	prefs.activitiesFile.SetPlaceHolder("built-in activities")
	prefs.saveErr.Importance = widget.DangerImportance

	form := container.NewVBox(
		widget.NewLabelWithStyle("Cycle", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewHBox(widget.NewLabel("Focus for"), prefs.focusMinutes, widget.NewLabel("min")),
		container.NewHBox(widget.NewLabel("Short break"), prefs.shortMinutes, widget.NewLabel("min")),
		container.NewHBox(widget.NewLabel("Long break"), prefs.longMinutes, widget.NewLabel("min")),
		container.NewHBox(widget.NewLabel("Long break after"), prefs.cycles, widget.NewLabel("cycles")),
		container.NewHBox(widget.NewLabel("Warn before break"), prefs.preAlert, widget.NewLabel("sec")),
		prefs.idleCheck,
		widget.NewLabelWithStyle("Strict mode", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		prefs.strict,
		prefs.allowEmergency,
		widget.NewLabel("Emergency combination"),
		prefs.combination,
		prefs.combinationErr,
		widget.NewLabel("Emergency PIN"),
		prefs.pin,
		widget.NewLabelWithStyle("Overlay", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewLabel("Overlay opacity"),
		prefs.opacity,
		prefs.fullscreen,
		widget.NewLabel("Activities file"),
		prefs.activitiesFile,
	)

	saveButton := widget.NewButton("Save", prefs.handleSave)
	cancelButton := widget.NewButton("Cancel", func() {
		window.Hide()
		if prefs.onCancel != nil {
			prefs.onCancel()
		}
	})
	buttons := container.NewVBox(prefs.saveErr, container.NewHBox(saveButton, layout.NewSpacer(), cancelButton))

	window.SetContent(container.NewBorder(nil, buttons, nil, nil, container.NewVScroll(form)))
	window.Resize(fyne.NewSize(460, 640))
	window.SetCloseIntercept(window.Hide)

	prefs.UpdateSettings(settings)
	return prefs
}

// SetOnCancel sets the cancel handler.
func (prefs *Window) SetOnCancel(handler func()) {
	prefs.onCancel = handler
}

// Show displays the preferences window.
func (prefs *Window) Show() {
	prefs.window.Show()
	prefs.window.RequestFocus()
}

// UpdateSettings replaces window values.
func (prefs *Window) UpdateSettings(settings model.Settings) {
	prefs.settings = settings
	prefs.focusMinutes.SetText(strconv.Itoa(int(settings.FocusDuration / time.Minute)))
	prefs.shortMinutes.SetText(strconv.Itoa(int(settings.ShortBreak / time.Minute)))
	prefs.longMinutes.SetText(strconv.Itoa(int(settings.LongBreak / time.Minute)))
	prefs.cycles.SetText(strconv.Itoa(settings.CyclesBeforeLong))
	prefs.preAlert.SetText(strconv.Itoa(int(settings.PreAlert / time.Second)))
	prefs.strict.SetChecked(settings.StrictMode)
	prefs.allowEmergency.SetChecked(settings.AllowEmergency)
	prefs.combination.SetText(settings.EmergencyCombination)
	prefs.pin.SetText("")
	prefs.idleCheck.SetChecked(settings.IdleEnabled)
	prefs.opacity.Value = settings.OverlayOpacity
	prefs.opacity.Refresh()
	prefs.fullscreen.SetChecked(settings.Fullscreen)
	prefs.activitiesFile.SetText(settings.ActivitiesFile)
	prefs.saveErr.SetText("")
}

func (prefs *Window) handleSave() {
	settings, err := prefs.collect()
	if err == nil && prefs.onSave != nil {
		err = prefs.onSave(settings)
	}
	if err != nil {
		prefs.saveErr.SetText(err.Error())
		return
	}
	prefs.settings = settings
	prefs.pin.SetText("")
	prefs.saveErr.SetText("")
	prefs.window.Hide()
}

// collect reads the form over the current settings. Unparseable numbers keep
// their previous value; an invalid combination or PIN is an error.
func (prefs *Window) collect() (model.Settings, error) {
	settings := prefs.settings

	if minutes, ok := parsePositiveInt(prefs.focusMinutes.Text); ok {
		settings.FocusDuration = time.Duration(minutes) * time.Minute
	}
	if minutes, ok := parsePositiveInt(prefs.shortMinutes.Text); ok {
		settings.ShortBreak = time.Duration(minutes) * time.Minute
	}
	if minutes, ok := parsePositiveInt(prefs.longMinutes.Text); ok {
		settings.LongBreak = time.Duration(minutes) * time.Minute
	}
	if cycles, ok := parsePositiveInt(prefs.cycles.Text); ok {
		settings.CyclesBeforeLong = cycles
	}
	if seconds, err := strconv.Atoi(strings.TrimSpace(prefs.preAlert.Text)); err == nil && seconds >= 0 {
		settings.PreAlert = time.Duration(seconds) * time.Second
	}

	combination := strings.TrimSpace(prefs.combination.Text)
	if combination == "" {
		combination = emergency.DefaultCombination
	}
	parsed, err := emergency.ParseValid(combination)
	if err != nil {
		return prefs.settings, fmt.Errorf("emergency combination: %w", err)
	}
	settings.EmergencyCombination = parsed.String()

	if pin := strings.TrimSpace(prefs.pin.Text); pin != "" {
		hash, err := emergency.HashPIN(pin)
		if err != nil {
			if errors.Is(err, emergency.ErrPINTooShort) {
				return prefs.settings, fmt.Errorf("PIN needs at least %d characters", emergency.MinPINLength)
			}
			return prefs.settings, err
		}
		settings.EmergencyPINHash = hash
	}

	settings.StrictMode = prefs.strict.Checked
	settings.AllowEmergency = prefs.allowEmergency.Checked
	settings.IdleEnabled = prefs.idleCheck.Checked
	settings.OverlayOpacity = prefs.opacity.Value
	settings.Fullscreen = prefs.fullscreen.Checked
	settings.ActivitiesFile = strings.TrimSpace(prefs.activitiesFile.Text)
	return settings, nil
}

func (prefs *Window) validateCombination() {
	raw := strings.TrimSpace(prefs.combination.Text)
	if raw == "" {
		prefs.combinationErr.SetText("")
		return
	}
	prefs.combinationErr.SetText(emergency.Validate(raw).Error)
}

func parsePositiveInt(value string) (int, bool) {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return parsed, true
}
