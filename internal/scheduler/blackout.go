package scheduler

// BlockedInterval closes a target for an explicit period regardless of its schedule.
type BlockedInterval struct {
	ID     string
	Target Target
	Interval
	Reason string
}

// BlackoutSet is the collection of blocked intervals considered for a query.
type BlackoutSet []BlockedInterval

// Overlapping returns the blocked intervals of target that overlap window.
func (b BlackoutSet) Overlapping(target Target, window Interval) []Interval {
	var out []Interval
	for _, blk := range b {
		if blk.Target != target || !blk.Interval.Valid() {
			continue
		}
		if blk.Interval.Overlaps(window) {
			out = append(out, blk.Interval)
		}
	}
	return out
}
