package scheduler

import (
	"fmt"

	"github.com/example/booking-engine/internal/recurrence"
)

// ScheduleEntry opens a target for one interval on one weekday.
type ScheduleEntry struct {
	ID      string
	Target  Target
	Weekday recurrence.Weekday
	Start   recurrence.TimeOfDay
	End     recurrence.TimeOfDay
}

// Window converts the entry to a recurrence window.
func (e ScheduleEntry) Window() recurrence.Window {
	return recurrence.Window{Weekday: e.Weekday, Start: e.Start, End: e.End}
}

// Validate checks the entry invariants.
func (e ScheduleEntry) Validate() error {
	if !e.Target.Valid() {
		return ErrInvalidTarget
	}
	if !e.Weekday.Valid() {
		return recurrence.ErrInvalidWeekday
	}
	if !e.Window().Valid() {
		return recurrence.ErrInvalidWindow
	}
	return nil
}

// ScheduleIndex answers "when is this target open on a weekday".
type ScheduleIndex struct {
	templates map[Target]*recurrence.Template
}

// NewScheduleIndex groups entries per target and enforces one entry per weekday.
func NewScheduleIndex(entries []ScheduleEntry) (*ScheduleIndex, error) {
	grouped := make(map[Target][]recurrence.Window)
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("schedule entry %q: %w", e.ID, err)
		}
		grouped[e.Target] = append(grouped[e.Target], e.Window())
	}

	idx := &ScheduleIndex{templates: make(map[Target]*recurrence.Template, len(grouped))}
	for target, windows := range grouped {
		tpl, err := recurrence.NewTemplate(windows...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", target, err)
		}
		idx.templates[target] = tpl
	}
	return idx, nil
}

// Template returns the weekly template for target, or nil if none exists.
func (s *ScheduleIndex) Template(target Target) *recurrence.Template {
	if s == nil {
		return nil
	}
	return s.templates[target]
}
