package scheduler

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether Start precedes End.
func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

// Duration returns the length of the interval.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps uses half-open semantics, so touching endpoints do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && i.End.After(other.Start)
}

// Clip restricts i to bounds. The second result is false when nothing remains.
func (i Interval) Clip(bounds Interval) (Interval, bool) {
	out := i
	if out.Start.Before(bounds.Start) {
		out.Start = bounds.Start
	}
	if out.End.After(bounds.End) {
		out.End = bounds.End
	}
	return out, out.Valid()
}

// MergeIntervals sorts intervals and coalesces those that overlap or touch.
// Invalid intervals are discarded.
func MergeIntervals(intervals []Interval) []Interval {
	sorted := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Valid() {
			sorted = append(sorted, iv)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Slice(sorted, func(a, b int) bool {
		return sorted[a].Start.Before(sorted[b].Start)
	})

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// Subtract removes every busy interval from window in a single sweep.
func Subtract(window Interval, busy []Interval) []Interval {
	if !window.Valid() {
		return nil
	}
	clipped := make([]Interval, 0, len(busy))
	for _, iv := range busy {
		if c, ok := iv.Clip(window); ok {
			clipped = append(clipped, c)
		}
	}

	var free []Interval
	cursor := window.Start
	for _, iv := range MergeIntervals(clipped) {
		if iv.Start.After(cursor) {
			free = append(free, Interval{Start: cursor, End: iv.Start})
		}
		if iv.End.After(cursor) {
			cursor = iv.End
		}
	}
	if cursor.Before(window.End) {
		free = append(free, Interval{Start: cursor, End: window.End})
	}
	return free
}

// Partition cuts each free interval into back-to-back slots of length step.
// A trailing remainder shorter than step is dropped.
func Partition(free []Interval, step time.Duration) []Interval {
	if step <= 0 {
		return nil
	}
	var slots []Interval
	for _, f := range free {
		for s := f.Start; !s.Add(step).After(f.End); s = s.Add(step) {
			slots = append(slots, Interval{Start: s, End: s.Add(step)})
		}
	}
	return slots
}
