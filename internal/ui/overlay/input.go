package overlay

import (
	"image/color"

	"focusguard/internal/strict/emergency"
	"focusguard/internal/strict/inputguard"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
)

// inputCatcher covers the overlay behind its controls and holds keyboard
// focus, so every event not aimed at a control reaches the guard.
type inputCatcher struct {
	widget.BaseWidget

	dispatch  func(inputguard.Event) inputguard.Verdict
	modifiers func() fyne.KeyModifier
}

var (
	_ fyne.Focusable         = (*inputCatcher)(nil)
	_ desktop.Keyable        = (*inputCatcher)(nil)
	_ desktop.Mouseable      = (*inputCatcher)(nil)
	_ desktop.Hoverable      = (*inputCatcher)(nil)
	_ fyne.Tappable          = (*inputCatcher)(nil)
	_ fyne.DoubleTappable    = (*inputCatcher)(nil)
	_ fyne.SecondaryTappable = (*inputCatcher)(nil)
	_ fyne.Scrollable        = (*inputCatcher)(nil)
)

func newInputCatcher(dispatch func(inputguard.Event) inputguard.Verdict, modifiers func() fyne.KeyModifier) *inputCatcher {
	if modifiers == nil {
		modifiers = func() fyne.KeyModifier { return 0 }
	}
	catcher := &inputCatcher{dispatch: dispatch, modifiers: modifiers}
	catcher.ExtendBaseWidget(catcher)
	return catcher
}

func (catcher *inputCatcher) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(canvas.NewRectangle(color.Transparent))
}

func (catcher *inputCatcher) KeyDown(event *fyne.KeyEvent) {
	catcher.dispatch(KeyEvent(inputguard.KeyDown, event.Name, catcher.modifiers()))
}

func (catcher *inputCatcher) KeyUp(event *fyne.KeyEvent) {
	catcher.dispatch(KeyEvent(inputguard.KeyUp, event.Name, catcher.modifiers()))
}

func (catcher *inputCatcher) FocusGained() {}
func (catcher *inputCatcher) FocusLost() {}
func (catcher *inputCatcher) TypedRune(rune) {}
func (catcher *inputCatcher) TypedKey(*fyne.KeyEvent) {}

func (catcher *inputCatcher) MouseDown(*desktop.MouseEvent) { catcher.pointer(inputguard.PointerDown) }
func (catcher *inputCatcher) MouseUp(*desktop.MouseEvent) { catcher.pointer(inputguard.PointerUp) }
func (catcher *inputCatcher) MouseIn(*desktop.MouseEvent) {}
func (catcher *inputCatcher) MouseMoved(*desktop.MouseEvent) {
	catcher.pointer(inputguard.PointerMove)
}
func (catcher *inputCatcher) MouseOut() {}

func (catcher *inputCatcher) Tapped(*fyne.PointEvent) { catcher.pointer(inputguard.Click) }
func (catcher *inputCatcher) DoubleTapped(*fyne.PointEvent) { catcher.pointer(inputguard.DoubleClick) }
func (catcher *inputCatcher) TappedSecondary(*fyne.PointEvent) { catcher.pointer(inputguard.ContextMenu) }
func (catcher *inputCatcher) Scrolled(*fyne.ScrollEvent) { catcher.pointer(inputguard.Wheel) }

func (catcher *inputCatcher) pointer(kind inputguard.EventKind) {
	catcher.dispatch(inputguard.Event{Kind: kind})
}

// KeyEvent converts a fyne key event into a guard event. Pressing a modifier
// key counts as holding it.
func KeyEvent(kind inputguard.EventKind, name fyne.KeyName, held fyne.KeyModifier) inputguard.Event {
	mods := emergency.Modifiers{
		Cmd:   held&fyne.KeyModifierSuper != 0,
		Ctrl:  held&fyne.KeyModifierControl != 0,
		Alt:   held&fyne.KeyModifierAlt != 0,
		Shift: held&fyne.KeyModifierShift != 0,
	}
	key := string(name)
	switch name {
	case desktop.KeySuperLeft, desktop.KeySuperRight:
		key = "Meta"
		mods.Cmd = kind == inputguard.KeyDown || mods.Cmd
	case desktop.KeyControlLeft, desktop.KeyControlRight:
		key = "Control"
		mods.Ctrl = kind == inputguard.KeyDown || mods.Ctrl
	case desktop.KeyAltLeft, desktop.KeyAltRight:
		key = "Alt"
		mods.Alt = kind == inputguard.KeyDown || mods.Alt
	case desktop.KeyShiftLeft, desktop.KeyShiftRight:
		key = "Shift"
		mods.Shift = kind == inputguard.KeyDown || mods.Shift
	}
	return inputguard.Event{Kind: kind, Key: key, Modifiers: mods}
}

func currentModifiers(app fyne.App) func() fyne.KeyModifier {
	driver, ok := app.Driver().(desktop.Driver)
	if !ok {
		return nil
	}
	return driver.CurrentKeyModifiers
}
