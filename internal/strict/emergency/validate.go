package emergency

import "fmt"

// Result is the outcome of Validate.
type Result struct {
	Valid      bool
	Normalized string
	Error      string
}

// reserved holds canonical forms of shortcuts that quit, close, minimize,
// switch windows or force quit on a supported desktop.
var reserved = map[string]string{
	"Cmd+Q":           "quit application",
	"Ctrl+Q":          "quit application",
	"Alt+F4":          "quit application",
	"Cmd+W":           "close window",
	"Ctrl+W":          "close window",
	"Ctrl+F4":         "close window",
	"Cmd+M":           "minimize window",
	"Cmd+H":           "hide application",
	"Cmd+Alt+H":       "hide other applications",
	"Cmd+Tab":         "window switcher",
	"Cmd+Shift+Tab":   "window switcher",
	"Alt+Tab":         "window switcher",
	"Alt+Shift+Tab":   "window switcher",
	"Ctrl+Alt+Tab":    "window switcher",
	"Cmd+`":           "window switcher",
	"Cmd+Alt+Esc":     "force quit",
	"Ctrl+Alt+Delete": "force quit",
	"Ctrl+Shift+Esc":  "force quit",
}

// Validate checks raw as an emergency combination. It never panics and always
// returns a result; Error is empty exactly when Valid is true.
func Validate(raw string) (result Result) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = Result{Error: fmt.Sprintf("invalid emergency combination: %v", recovered)}
		}
	}()

	combination, err := Parse(raw)
	if err != nil {
		return Result{Error: err.Error()}
	}
	normalized := combination.String()
	if purpose, ok := reserved[normalized]; ok {
		return Result{
			Normalized: normalized,
			Error:      fmt.Sprintf("%s: %s (%s)", ErrReserved.Error(), normalized, purpose),
		}
	}
	return Result{Valid: true, Normalized: normalized}
}

// ParseValid parses raw and rejects reserved shortcuts.
func ParseValid(raw string) (Combination, error) {
	combination, err := Parse(raw)
	if err != nil {
		return Combination{}, err
	}
	if _, ok := reserved[combination.String()]; ok {
		return Combination{}, fmt.Errorf("%s: %w", combination, ErrReserved)
	}
	return combination, nil
}
