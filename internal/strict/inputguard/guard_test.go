package inputguard

import (
	"errors"
	"sync"
	"testing"

	"focusguard/internal/strict/emergency"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	handler    Handler
	installs   int
	releases   int
	installErr error
}

func (source *fakeSource) Install(handler Handler) (func() error, error) {
	if source.installErr != nil {
		return nil, source.installErr
	}
	source.installs++
	source.handler = handler
	return func() error {
		source.releases++
		source.handler = nil
		return nil
	}, nil
}

func (source *fakeSource) send(event Event) (Verdict, bool) {
	if source.handler == nil {
		return Allow, false
	}
	return source.handler(event), true
}

type fakeRecorder struct {
	mu      sync.Mutex
	methods []string
}

func (recorder *fakeRecorder) Record(_ string, method string) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.methods = append(recorder.methods, method)
}

func mustCombination(t *testing.T, raw string) *emergency.Combination {
	t.Helper()
	combination, err := emergency.ParseValid(raw)
	require.NoError(t, err)
	return &combination
}

func TestMatchingLaw(t *testing.T) {
	source := &fakeSource{}
	recorder := &fakeRecorder{}
	guard := New(source, recorder, nil)
	overrides := 0
	require.NoError(t, guard.Arm(Arming{
		SessionID:   "s1",
		Combination: mustCombination(t, "Ctrl+Shift+P"),
		OnOverride:  func() { overrides++ },
	}))

	verdict, _ := source.send(Event{Kind: KeyDown, Key: "p", Modifiers: emergency.Modifiers{Ctrl: true, Shift: true}})
	assert.Equal(t, Allow, verdict)
	assert.Equal(t, 1, overrides)
	assert.Empty(t, recorder.methods)

	verdict, _ = source.send(Event{Kind: KeyDown, Key: "p", Modifiers: emergency.Modifiers{Ctrl: true, Shift: true, Alt: true}})
	assert.Equal(t, Suppress, verdict)
	assert.Equal(t, 1, overrides)
	assert.Equal(t, []string{"emergency_combination_mismatch"}, recorder.methods)
}

func TestEveryEventSuppressedAndRecordedOnce(t *testing.T) {
	source := &fakeSource{}
	recorder := &fakeRecorder{}
	guard := New(source, recorder, nil)
	require.NoError(t, guard.Arm(Arming{SessionID: "s1", Combination: mustCombination(t, "Ctrl+Alt+L")}))

	events := []Event{
		{Kind: KeyDown, Key: "Q", Modifiers: emergency.Modifiers{Cmd: true}},
		{Kind: KeyDown, Key: "W", Modifiers: emergency.Modifiers{Cmd: true}},
		{Kind: KeyDown, Key: "Tab", Modifiers: emergency.Modifiers{Cmd: true}},
		{Kind: KeyDown, Key: "Tab", Modifiers: emergency.Modifiers{Alt: true}},
		{Kind: KeyDown, Key: "F4", Modifiers: emergency.Modifiers{Alt: true}},
		{Kind: KeyDown, Key: "Escape"},
		{Kind: KeyDown, Key: "F5"},
		{Kind: KeyUp, Key: "a"},
		{Kind: PointerDown},
		{Kind: PointerUp},
		{Kind: ContextMenu},
		{Kind: Wheel},
	}
	for _, event := range events {
		verdict, installed := source.send(event)
		require.True(t, installed)
		assert.Equal(t, Suppress, verdict, event)
	}

	assert.Equal(t, []string{
		"cmd_q_blocked",
		"cmd_w_blocked",
		"cmd_tab_blocked",
		"alt_tab_blocked",
		"alt_f4_blocked",
		"escape_blocked",
		"function_key_blocked_f5",
		"keyboard_blocked_a",
		"mouse_blocked_mousedown",
		"mouse_blocked_mouseup",
		"mouse_blocked_contextmenu",
		"mouse_blocked_wheel",
	}, recorder.methods)
}

func TestPointerMoveIsNotIntercepted(t *testing.T) {
	source := &fakeSource{}
	recorder := &fakeRecorder{}
	guard := New(source, recorder, nil)
	require.NoError(t, guard.Arm(Arming{SessionID: "s1"}))

	verdict, _ := source.send(Event{Kind: PointerMove})
	assert.Equal(t, Allow, verdict)
	assert.Empty(t, recorder.methods)
}

func TestNoCombinationSuppressesEverything(t *testing.T) {
	source := &fakeSource{}
	recorder := &fakeRecorder{}
	guard := New(source, recorder, nil)
	require.NoError(t, guard.Arm(Arming{SessionID: "s1"}))

	verdict, _ := source.send(Event{Kind: KeyDown, Key: "e", Modifiers: emergency.Modifiers{Ctrl: true, Shift: true, Alt: true}})
	assert.Equal(t, Suppress, verdict)
	assert.Equal(t, []string{"keyboard_blocked_e"}, recorder.methods)
}

func TestModifierOnlyCombination(t *testing.T) {
	source := &fakeSource{}
	guard := New(source, &fakeRecorder{}, nil)
	passed := false
	require.NoError(t, guard.Arm(Arming{
		SessionID:   "s1",
		Combination: mustCombination(t, "Ctrl+Alt"),
		OnOverride:  func() { passed = true },
	}))

	verdict, _ := source.send(Event{Kind: KeyDown, Key: "Alt", Modifiers: emergency.Modifiers{Ctrl: true, Alt: true}})
	assert.Equal(t, Allow, verdict)
	assert.True(t, passed)
}

func TestArmDisarmLifecycle(t *testing.T) {
	source := &fakeSource{}
	guard := New(source, &fakeRecorder{}, nil)

	require.NoError(t, guard.Arm(Arming{SessionID: "s1"}))
	assert.True(t, guard.Armed())
	assert.ErrorIs(t, guard.Arm(Arming{SessionID: "s2"}), ErrArmed)

	require.NoError(t, guard.Disarm())
	require.NoError(t, guard.Disarm())
	assert.False(t, guard.Armed())
	assert.Equal(t, 1, source.installs)
	assert.Equal(t, 1, source.releases)

	_, installed := source.send(Event{Kind: KeyDown, Key: "a"})
	assert.False(t, installed)

	require.NoError(t, guard.Arm(Arming{SessionID: "s3"}))
	assert.Equal(t, 2, source.installs)
}

func TestArmInstallFailure(t *testing.T) {
	source := &fakeSource{installErr: errors.New("no accessibility permission")}
	guard := New(source, &fakeRecorder{}, nil)

	err := guard.Arm(Arming{SessionID: "s1"})
	require.Error(t, err)
	assert.False(t, guard.Armed())
}

func TestOverrideCanDisarmFromHandler(t *testing.T) {
	source := &fakeSource{}
	recorder := &fakeRecorder{}
	guard := New(source, recorder, nil)
	require.NoError(t, guard.Arm(Arming{
		SessionID:   "s1",
		Combination: mustCombination(t, "Ctrl+Shift+P"),
		OnOverride:  func() { require.NoError(t, guard.Disarm()) },
	}))

	verdict, _ := source.send(Event{Kind: KeyDown, Key: "P", Modifiers: emergency.Modifiers{Ctrl: true, Shift: true}})
	assert.Equal(t, Allow, verdict)
	assert.False(t, guard.Armed())

	_, installed := source.send(Event{Kind: KeyUp, Key: "P"})
	assert.False(t, installed)
	assert.Empty(t, recorder.methods)
}

func TestClassifyFunctionKeys(t *testing.T) {
	assert.Equal(t, "function_key_blocked_f12", Classify(Event{Kind: KeyDown, Key: "F12"}, nil))
	assert.Equal(t, "keyboard_blocked_f25", Classify(Event{Kind: KeyDown, Key: "F25"}, nil))
	assert.Equal(t, "keyboard_blocked_f", Classify(Event{Kind: KeyDown, Key: "f"}, nil))
	assert.Equal(t, "keyboard_blocked_unknown", Classify(Event{Kind: KeyDown}, nil))
}

func TestInputAfterOverrideIsAllowedUntilDisarm(t *testing.T) {
	source := &fakeSource{}
	recorder := &fakeRecorder{}
	guard := New(source, recorder, nil)
	overrides := 0
	require.NoError(t, guard.Arm(Arming{
		SessionID:   "s1",
		Combination: mustCombination(t, "Ctrl+Shift+P"),
		OnOverride:  func() { overrides++ },
	}))

	verdict, _ := source.send(Event{Kind: KeyDown, Key: "P", Modifiers: emergency.Modifiers{Ctrl: true, Shift: true}})
	assert.Equal(t, Allow, verdict)
	assert.True(t, guard.Armed())

	verdict, installed := source.send(Event{Kind: KeyUp, Key: "P", Modifiers: emergency.Modifiers{Ctrl: true, Shift: true}})
	require.True(t, installed)
	assert.Equal(t, Allow, verdict)
	verdict, _ = source.send(Event{Kind: KeyDown, Key: "P", Modifiers: emergency.Modifiers{Ctrl: true, Shift: true}})
	assert.Equal(t, Allow, verdict)
	assert.Equal(t, 1, overrides)
	assert.Empty(t, recorder.methods)

	require.NoError(t, guard.Disarm())
	require.NoError(t, guard.Arm(Arming{SessionID: "s2"}))
	verdict, _ = source.send(Event{Kind: KeyUp, Key: "P"})
	assert.Equal(t, Suppress, verdict)
	assert.Equal(t, []string{"keyboard_blocked_p"}, recorder.methods)
}
