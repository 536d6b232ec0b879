package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekday indexes the days of the week starting at Monday (0) through Sunday (6).
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// WeekdayOf converts a time.Weekday (Sunday == 0) into the Monday based index.
func WeekdayOf(day time.Weekday) Weekday {
	return Weekday((int(day) + 6) % 7)
}

// Valid reports whether the weekday lies in [0..6].
func (w Weekday) Valid() bool {
	return w >= Monday && w <= Sunday
}

// Std converts the weekday back to the standard library representation.
func (w Weekday) Std() time.Weekday {
	return time.Weekday((int(w) + 1) % 7)
}

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("weekday(%d)", int(w))
	}
	return weekdayNames[w]
}

// ParseWeekday accepts either the numeric index or the English day name.
func ParseWeekday(value string) (Weekday, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if n, err := strconv.Atoi(value); err == nil {
		w := Weekday(n)
		if !w.Valid() {
			return 0, ErrInvalidWeekday
		}
		return w, nil
	}
	for i, name := range weekdayNames {
		if name == value {
			return Weekday(i), nil
		}
	}
	return 0, ErrInvalidWeekday
}

// TimeOfDay is a wall clock offset from midnight with second precision.
// EndOfDay (24:00) is accepted so a window may close at midnight.
type TimeOfDay int

// EndOfDay marks the exclusive end of a calendar day.
const EndOfDay TimeOfDay = 24 * 60 * 60

var (
	// ErrInvalidTimeOfDay indicates a clock value outside 00:00..24:00.
	ErrInvalidTimeOfDay = errors.New("recurrence: invalid time of day")
	// ErrInvalidWeekday indicates a weekday outside 0..6.
	ErrInvalidWeekday = errors.New("recurrence: invalid weekday")
	// ErrInvalidDate indicates a malformed calendar date.
	ErrInvalidDate = errors.New("recurrence: invalid date")
)

// NewTimeOfDay builds a clock value from hours and minutes.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || minute < 0 || minute > 59 || hour > 24 || (hour == 24 && minute != 0) {
		return 0, ErrInvalidTimeOfDay
	}
	return TimeOfDay(hour*3600 + minute*60), nil
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, ErrInvalidTimeOfDay
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || len(p) != 2 {
			return 0, ErrInvalidTimeOfDay
		}
		nums[i] = n
	}
	if nums[2] < 0 || nums[2] > 59 {
		return 0, ErrInvalidTimeOfDay
	}
	tod, err := NewTimeOfDay(nums[0], nums[1])
	if err != nil {
		return 0, err
	}
	if tod == EndOfDay && nums[2] != 0 {
		return 0, ErrInvalidTimeOfDay
	}
	return tod + TimeOfDay(nums[2]), nil
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 3600 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 3600 / 60 }

// Second returns the second component.
func (t TimeOfDay) Second() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	if t.Second() != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
	}
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Date is a calendar day without a time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// DateOf returns the calendar day of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return DateOf(t, time.UTC), nil
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Midnight returns the first instant of the day in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// At anchors a time of day to the date in loc. EndOfDay resolves to the next midnight.
func (d Date) At(tod TimeOfDay, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, tod.Hour(), tod.Minute(), tod.Second(), 0, loc)
}

// AddDays shifts the date by n calendar days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Midnight(time.UTC).AddDate(0, 0, n), time.UTC)
}

// Weekday returns the Monday based weekday of the date.
func (d Date) Weekday() Weekday {
	return WeekdayOf(d.Midnight(time.UTC).Weekday())
}

// Before reports whether d falls on an earlier day than other.
func (d Date) Before(other Date) bool {
	return d.Midnight(time.UTC).Before(other.Midnight(time.UTC))
}

// After reports whether d falls on a later day than other.
func (d Date) After(other Date) bool {
	return other.Before(d)
}

// DaysUntil returns the number of calendar days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.Midnight(time.UTC).Sub(d.Midnight(time.UTC)).Hours() / 24)
}

func (d Date) String() string {
	return d.Midnight(time.UTC).Format(dateLayout)
}

// MarshalText encodes the date as YYYY-MM-DD.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a YYYY-MM-DD value.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
