package recurrence

import (
	"errors"
	"time"
)

// maxExpandDays bounds a single Expand call.
const maxExpandDays = 366

// Window is the opening interval of one weekday in a weekly template.
type Window struct {
	Weekday Weekday
	Start   TimeOfDay
	End     TimeOfDay
}

// Valid reports whether the window has a known weekday and a positive length.
func (w Window) Valid() bool {
	return w.Weekday.Valid() && w.Start >= 0 && w.End <= EndOfDay && w.Start < w.End
}

// Template is a weekly pattern holding at most one window per weekday.
type Template struct {
	windows [7]*Window
}

// Occurrence is a template window anchored to a concrete date.
type Occurrence struct {
	Date  Date
	Start time.Time
	End   time.Time
}

var (
	// ErrDuplicateWeekday indicates two windows were supplied for the same weekday.
	ErrDuplicateWeekday = errors.New("recurrence: duplicate weekday in template")
	// ErrInvalidWindow indicates a window whose start does not precede its end.
	ErrInvalidWindow = errors.New("recurrence: window start must precede end")
	// ErrInvalidRange indicates an expansion range that is reversed or too long.
	ErrInvalidRange = errors.New("recurrence: invalid expansion range")
)

// NewTemplate validates windows and indexes them by weekday.
func NewTemplate(windows ...Window) (*Template, error) {
	tpl := &Template{}
	for _, w := range windows {
		if !w.Weekday.Valid() {
			return nil, ErrInvalidWeekday
		}
		if !w.Valid() {
			return nil, ErrInvalidWindow
		}
		if tpl.windows[w.Weekday] != nil {
			return nil, ErrDuplicateWeekday
		}
		copied := w
		tpl.windows[w.Weekday] = &copied
	}
	return tpl, nil
}

// WindowFor returns the window configured for the weekday.
func (t *Template) WindowFor(day Weekday) (Window, bool) {
	if t == nil || !day.Valid() || t.windows[day] == nil {
		return Window{}, false
	}
	return *t.windows[day], true
}

// Engine anchors weekly templates to calendar dates in a fixed location.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine anchoring dates in loc. If loc is nil, UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// Location returns the engine's time zone.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// Anchor resolves the template window for the date's weekday.
func (e *Engine) Anchor(tpl *Template, date Date) (Occurrence, bool) {
	w, ok := tpl.WindowFor(date.Weekday())
	if !ok {
		return Occurrence{}, false
	}
	loc := e.Location()
	return Occurrence{Date: date, Start: date.At(w.Start, loc), End: date.At(w.End, loc)}, true
}

// Expand anchors the template to every date in [from, to], skipping days without a window.
func (e *Engine) Expand(tpl *Template, from, to Date) ([]Occurrence, error) {
	if to.Before(from) || from.DaysUntil(to) >= maxExpandDays {
		return nil, ErrInvalidRange
	}
	var out []Occurrence
	for d := from; !d.After(to); d = d.AddDays(1) {
		if occ, ok := e.Anchor(tpl, d); ok {
			out = append(out, occ)
		}
	}
	return out, nil
}
