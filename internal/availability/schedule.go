package availability

import (
	"fmt"
	"time"
)

// Clock is a wall-clock time of day in minutes after midnight.
type Clock int

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return Clock(h*60 + m), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant of c on the calendar day of date, in loc.
func (c Clock) On(date time.Time, loc *time.Location) time.Time {
	y, mo, d := date.In(loc).Date()
	return time.Date(y, mo, d, 0, int(c), 0, 0, loc)
}

// DayHours is the opening window of one day.
type DayHours struct {
	Open   Clock
	Close  Clock
	Closed bool
}

// ScheduleConfig is everything the engine needs to know about the business.
// It is passed explicitly; the engine reads no global state.
type ScheduleConfig struct {
	Location *time.Location
	Weekly   map[time.Weekday]DayHours
	// Holidays is keyed by "2006-01-02".
	Holidays map[string]bool
	// HolidayHours, when set, replaces the weekday rule on holidays.
	HolidayHours *DayHours

	SlotInterval   time.Duration
	Buffer         time.Duration
	LessonDuration time.Duration
	MultiDogExtra  time.Duration
	MaxAdvanceDays int
}

const dateLayout = "2006-01-02"

func (c ScheduleConfig) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// HoursFor resolves the opening window of date.  ok is false when the
// business is closed that day.
func (c ScheduleConfig) HoursFor(date time.Time) (h DayHours, ok bool) {
	date = date.In(c.location())
	if c.HolidayHours != nil && c.Holidays[date.Format(dateLayout)] {
		h = *c.HolidayHours
	} else {
		var found bool
		h, found = c.Weekly[date.Weekday()]
		if !found {
			return DayHours{}, false
		}
	}
	if h.Closed || h.Close <= h.Open {
		return DayHours{}, false
	}
	return h, true
}

// LessonLength is the slot length for one booking.
func (c ScheduleConfig) LessonLength(multipleDogs bool) time.Duration {
	d := c.LessonDuration
	if multipleDogs {
		d += c.MultiDogExtra
	}
	return d
}

// bufferedEnd extends end by the buffer unless end is at or past close.
func (c ScheduleConfig) bufferedEnd(end, closing time.Time) time.Time {
	if end.Before(closing) {
		return end.Add(c.Buffer)
	}
	return end
}

// closeOf returns the closing instant of t's day.  ok is false on closed
// days.
func (c ScheduleConfig) closeOf(t time.Time) (time.Time, bool) {
	h, ok := c.HoursFor(t)
	if !ok {
		return time.Time{}, false
	}
	return h.Close.On(t, c.location()), true
}
