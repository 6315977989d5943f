// Package emergency parses, validates and matches the escape combination
// that ends a strict break early, and verifies the emergency PIN.
package emergency

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrEmpty is returned for a blank combination.
	ErrEmpty = errors.New("emergency combination is empty")
	// ErrNoModifier is returned when no modifier key is present.
	ErrNoModifier = errors.New("emergency combination needs at least one modifier (Cmd, Ctrl, Alt or Shift)")
	// ErrReserved is returned for shortcuts the operating system owns.
	ErrReserved = errors.New("combination is reserved by the operating system")
)

// DefaultCombination is used when nothing valid is configured.
const DefaultCombination = "Ctrl+Alt+Shift+E"

// Modifiers is the modifier state of a key event or combination.
type Modifiers struct {
	Cmd   bool
	Ctrl  bool
	Alt   bool
	Shift bool
}

// Any reports whether at least one modifier is set.
func (mods Modifiers) Any() bool {
	return mods.Cmd || mods.Ctrl || mods.Alt || mods.Shift
}

// Combination is a normalized escape combination. MainKey is lower case and
// empty when only modifiers are required.
type Combination struct {
	Modifiers Modifiers
	MainKey   string
}

var modifierAliases = map[string]string{
	"cmd": "cmd", "command": "cmd", "meta": "cmd", "super": "cmd", "win": "cmd", "windows": "cmd", "⌘": "cmd",
	"ctrl": "ctrl", "control": "ctrl", "ctl": "ctrl", "^": "ctrl",
	"alt": "alt", "option": "alt", "opt": "alt", "⌥": "alt",
	"shift": "shift", "⇧": "shift",
}

var keyAliases = map[string]string{
	"escape":   "esc",
	"delete":   "del",
	"spacebar": "space",
	"return":   "enter",
	"grave":    "`",
	"backtick": "`",
}

// NormalizeKey maps a key name to its canonical lower-case form.
func NormalizeKey(key string) string {
	if key == " " {
		return "space"
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if alias, ok := keyAliases[key]; ok {
		return alias
	}
	return key
}

// Parse reads a combination such as "Ctrl+Shift+P". It checks syntax and the
// modifier requirement but not the reserved list; use Validate for that.
func Parse(raw string) (Combination, error) {
	compact := strings.Join(strings.Fields(raw), "")
	if compact == "" {
		return Combination{}, ErrEmpty
	}

	var combination Combination
	seen := make(map[string]bool)
	for _, token := range splitTokens(compact) {
		if token == "" {
			return Combination{}, fmt.Errorf("combination %q has an empty key", raw)
		}
		lowered := strings.ToLower(token)
		if modifier, ok := modifierAliases[lowered]; ok {
			if seen[modifier] {
				return Combination{}, fmt.Errorf("combination %q repeats %s", raw, modifier)
			}
			seen[modifier] = true
			switch modifier {
			case "cmd":
				combination.Modifiers.Cmd = true
			case "ctrl":
				combination.Modifiers.Ctrl = true
			case "alt":
				combination.Modifiers.Alt = true
			case "shift":
				combination.Modifiers.Shift = true
			}
			continue
		}
		if combination.MainKey != "" {
			return Combination{}, fmt.Errorf("combination %q has more than one main key", raw)
		}
		combination.MainKey = NormalizeKey(token)
	}

	if !combination.Modifiers.Any() {
		return Combination{}, ErrNoModifier
	}
	return combination, nil
}

// splitTokens splits on "+" while allowing "+" itself as a trailing main key.
func splitTokens(compact string) []string {
	if strings.HasSuffix(compact, "++") {
		tokens := strings.Split(strings.TrimSuffix(compact, "++"), "+")
		return append(tokens, "+")
	}
	return strings.Split(compact, "+")
}

// String renders the canonical form, e.g. "Ctrl+Shift+P".
func (combination Combination) String() string {
	parts := make([]string, 0, 5)
	if combination.Modifiers.Cmd {
		parts = append(parts, "Cmd")
	}
	if combination.Modifiers.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if combination.Modifiers.Alt {
		parts = append(parts, "Alt")
	}
	if combination.Modifiers.Shift {
		parts = append(parts, "Shift")
	}
	if combination.MainKey != "" {
		parts = append(parts, displayKey(combination.MainKey))
	}
	return strings.Join(parts, "+")
}

func displayKey(key string) string {
	switch {
	case key == "esc":
		return "Esc"
	case key == "del":
		return "Delete"
	}
	first, size := utf8.DecodeRuneInString(key)
	return string(unicode.ToUpper(first)) + key[size:]
}

// Matches reports whether an event with mods and key is exactly this
// combination: every modifier must agree in both directions, and the key must
// equal MainKey case-insensitively unless no main key is configured.
func (combination Combination) Matches(mods Modifiers, key string) bool {
	if mods != combination.Modifiers {
		return false
	}
	if combination.MainKey == "" {
		return true
	}
	return NormalizeKey(key) == combination.MainKey
}
