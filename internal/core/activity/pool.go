package activity

import (
	"errors"
	"fmt"
	"os"

	"focusguard/internal/core/model"

	"gopkg.in/yaml.v3"
)

// DefaultPool returns the built-in activities.
func DefaultPool() []model.Activity {
	return []model.Activity{
		{
			Title:       "Look into the distance",
			Description: "Find the farthest point you can see and rest your eyes on it.",
			Checklist:   []string{"Look 6 meters away", "Blink slowly ten times"},
			Category:    model.BreakShort,
		},
		{
			Title:       "Stretch your neck",
			Description: "Slow neck rolls release the tension of leaning toward the screen.",
			Checklist:   []string{"Roll left five times", "Roll right five times"},
			Category:    model.BreakShort,
		},
		{
			Title:       "Drink water",
			Description: "Refill your glass and drink it standing up.",
			Category:    model.BreakShort,
		},
		{
			Title:       "Breathe",
			Description: "Box breathing: in, hold, out, hold, four seconds each.",
			Checklist:   []string{"Four rounds"},
			Category:    model.BreakShort,
		},
		{
			Title:       "Take a walk",
			Description: "Leave the desk and walk for a few minutes.",
			Checklist:   []string{"Stand up", "Walk at least 300 steps"},
			Category:    model.BreakLong,
		},
		{
			Title:       "Full body stretch",
			Description: "Work through shoulders, back, hips and legs.",
			Checklist:   []string{"Shoulders", "Back", "Hips", "Legs"},
			Category:    model.BreakLong,
		},
		{
			Title:       "Tidy up",
			Description: "Put away everything on the desk you are not using.",
			Category:    model.BreakLong,
		},
	}
}

// LoadFile reads a YAML list of activities. A missing file yields the
// default pool.
func LoadFile(path string) ([]model.Activity, error) {
	if path == "" {
		return DefaultPool(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultPool(), nil
		}
		return nil, fmt.Errorf("read activities file: %w", err)
	}

	var activities []model.Activity
	if err := yaml.Unmarshal(data, &activities); err != nil {
		return nil, fmt.Errorf("decode activities file: %w", err)
	}
	if len(activities) == 0 {
		return DefaultPool(), nil
	}
	return activities, nil
}
