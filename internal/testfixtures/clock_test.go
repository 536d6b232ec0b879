package testfixtures

import (
	"testing"
	"time"

	"github.com/example/booking-engine/internal/recurrence"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
	if got := clock.Today(time.UTC); got != (recurrence.Date{Year: 2024, Month: time.June, Day: 1}) {
		t.Fatalf("unexpected reference date %s", got)
	}
}

func TestClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2024, time.March, 14, 9, 26, 0, 0, time.UTC)
	clock := NewClock(start)

	updated := clock.Advance(90 * time.Minute)
	if !updated.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("advance returned %v", updated)
	}

	clock.Set(start.Add(2 * time.Hour))
	if got := clock.Now(); !got.Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("expected %v, got %v", start.Add(2*time.Hour), got)
	}
}

func TestClockTodayFollowsLocation(t *testing.T) {
	clock := NewClock(time.Date(2024, time.June, 2, 23, 30, 0, 0, time.UTC))
	tokyo := time.FixedZone("UTC+9", 9*3600)

	if got := clock.Today(tokyo); got != (recurrence.Date{Year: 2024, Month: time.June, Day: 3}) {
		t.Fatalf("expected the next day east of UTC, got %s", got)
	}

	nowFn := clock.NowFunc()
	clock.Advance(time.Minute)
	if got := nowFn(); !got.Equal(clock.Now()) {
		t.Fatalf("expected NowFunc to track the clock, got %v", got)
	}
}
