// Package activity picks what the user does during a break.
package activity

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"focusguard/internal/core/model"
)

const historySize = 3

// ShortThreshold is the break length below which the short pool is used
// regardless of break type.
const ShortThreshold = 2 * time.Minute

var (
	// ErrNotFound is returned for an unknown title.
	ErrNotFound = errors.New("activity not found")
	// ErrDuplicate is returned when adding a title that already exists.
	ErrDuplicate = errors.New("activity already exists")
	// ErrEmptyPool is returned when no activity can be selected.
	ErrEmptyPool = errors.New("activity pool is empty")
)

// Selector chooses activities from a pool while avoiding recent repeats.
type Selector struct {
	mu      sync.Mutex
	pool    []model.Activity
	history []int
	rng     *rand.Rand
}

// NewSelector creates a selector. Titles must be unique; later duplicates are
// dropped. rng makes selection deterministic; nil uses a time seed.
func NewSelector(activities []model.Activity, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	selector := &Selector{rng: rng}
	for _, activity := range activities {
		_ = selector.addLocked(activity)
	}
	return selector
}

// Replace swaps the whole pool and clears the history.
func (selector *Selector) Replace(activities []model.Activity) {
	selector.mu.Lock()
	defer selector.mu.Unlock()
	selector.pool = nil
	selector.history = nil
	for _, activity := range activities {
		_ = selector.addLocked(activity)
	}
}

// SelectFor picks an activity for a break of the given type and duration.
func (selector *Selector) SelectFor(breakType model.BreakType, duration time.Duration) (model.Activity, error) {
	selector.mu.Lock()
	defer selector.mu.Unlock()

	category := breakType
	if duration > 0 && duration < ShortThreshold {
		category = model.BreakShort
	}
	candidates := selector.subPoolLocked(category)
	if len(candidates) == 0 {
		candidates = selector.allIndicesLocked()
	}
	if len(candidates) == 0 {
		return model.Activity{}, ErrEmptyPool
	}

	fresh := make([]int, 0, len(candidates))
	for _, index := range candidates {
		if !slices.Contains(selector.history, index) {
			fresh = append(fresh, index)
		}
	}
	if len(fresh) == 0 {
		fresh = candidates
	}

	chosen := fresh[selector.rng.Intn(len(fresh))]
	selector.history = append(selector.history, chosen)
	if len(selector.history) > historySize {
		selector.history = selector.history[len(selector.history)-historySize:]
	}
	return cloneActivity(selector.pool[chosen]), nil
}

// Add appends a new activity.
func (selector *Selector) Add(activity model.Activity) error {
	selector.mu.Lock()
	defer selector.mu.Unlock()
	return selector.addLocked(activity)
}

// Update replaces the activity stored under title. The history is unchanged.
func (selector *Selector) Update(title string, activity model.Activity) error {
	selector.mu.Lock()
	defer selector.mu.Unlock()
	index := selector.indexLocked(title)
	if index < 0 {
		return fmt.Errorf("update %q: %w", title, ErrNotFound)
	}
	activity.Title = strings.TrimSpace(activity.Title)
	if activity.Title == "" {
		activity.Title = selector.pool[index].Title
	}
	if other := selector.indexLocked(activity.Title); other >= 0 && other != index {
		return fmt.Errorf("rename to %q: %w", activity.Title, ErrDuplicate)
	}
	selector.pool[index] = normalize(activity)
	return nil
}

// Remove deletes the activity and repairs the history so no entry refers to
// a removed or shifted position.
func (selector *Selector) Remove(title string) error {
	selector.mu.Lock()
	defer selector.mu.Unlock()
	index := selector.indexLocked(title)
	if index < 0 {
		return fmt.Errorf("remove %q: %w", title, ErrNotFound)
	}
	selector.pool = slices.Delete(selector.pool, index, index+1)

	repaired := selector.history[:0]
	for _, entry := range selector.history {
		switch {
		case entry == index:
			continue
		case entry > index:
			repaired = append(repaired, entry-1)
		default:
			repaired = append(repaired, entry)
		}
	}
	selector.history = repaired
	return nil
}

// Activities returns a copy of the pool in insertion order.
func (selector *Selector) Activities() []model.Activity {
	selector.mu.Lock()
	defer selector.mu.Unlock()
	out := make([]model.Activity, 0, len(selector.pool))
	for _, activity := range selector.pool {
		out = append(out, cloneActivity(activity))
	}
	return out
}

// History returns the titles of the most recent selections, oldest first.
func (selector *Selector) History() []string {
	selector.mu.Lock()
	defer selector.mu.Unlock()
	titles := make([]string, 0, len(selector.history))
	for _, index := range selector.history {
		titles = append(titles, selector.pool[index].Title)
	}
	return titles
}

func (selector *Selector) addLocked(activity model.Activity) error {
	activity = normalize(activity)
	if activity.Title == "" {
		return fmt.Errorf("add activity: title is empty")
	}
	if selector.indexLocked(activity.Title) >= 0 {
		return fmt.Errorf("add %q: %w", activity.Title, ErrDuplicate)
	}
	selector.pool = append(selector.pool, activity)
	return nil
}

func (selector *Selector) indexLocked(title string) int {
	title = strings.TrimSpace(title)
	for index, activity := range selector.pool {
		if activity.Title == title {
			return index
		}
	}
	return -1
}

func (selector *Selector) subPoolLocked(category model.BreakType) []int {
	var indices []int
	for index, activity := range selector.pool {
		if activity.Category == category {
			indices = append(indices, index)
		}
	}
	return indices
}

func (selector *Selector) allIndicesLocked() []int {
	indices := make([]int, len(selector.pool))
	for index := range selector.pool {
		indices[index] = index
	}
	return indices
}

func normalize(activity model.Activity) model.Activity {
	activity.Title = strings.TrimSpace(activity.Title)
	if activity.Category != model.BreakLong {
		activity.Category = model.BreakShort
	}
	activity.Checklist = slices.Clone(activity.Checklist)
	return activity
}

func cloneActivity(activity model.Activity) model.Activity {
	activity.Checklist = slices.Clone(activity.Checklist)
	return activity
}
