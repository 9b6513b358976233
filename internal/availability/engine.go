// Package availability computes bookable lesson start times for a trainer
// from business hours, a turnover buffer and the trainer's existing
// bookings.
package availability

import (
	"time"
)

// Booking is an existing reservation as the engine sees it.  Only PENDING
// and CONFIRMED bookings occupy time.
type Booking struct {
	ID        string
	TrainerID string
	Start     time.Time
	End       time.Time
	Status    string
}

func (b Booking) blocks() bool {
	return b.Status == "PENDING" || b.Status == "CONFIRMED"
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Compute returns, per date in rng, the start times ("15:04") at which a
// lesson of the given duration fits without touching an existing booking of
// trainerID.  Dates before today are omitted; closed dates map to an empty
// list.
func Compute(cfg ScheduleConfig, rng DateRange, trainerID string, duration time.Duration, existing []Booking, now time.Time) map[string][]string {
	loc := cfg.location()
	out := map[string][]string{}
	if duration <= 0 {
		return out
	}
	interval := cfg.SlotInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	mine := make([]Booking, 0, len(existing))
	for _, b := range existing {
		if b.TrainerID == trainerID && b.blocks() {
			mine = append(mine, b)
		}
	}

	today := midnight(now, loc)
	for day := midnight(rng.From, loc); !day.After(midnight(rng.To, loc)); day = day.AddDate(0, 0, 1) {
		if day.Before(today) {
			continue
		}
		key := day.Format(dateLayout)
		slots := []string{}
		if h, ok := cfg.HoursFor(day); ok {
			open, closing := h.Open.On(day, loc), h.Close.On(day, loc)
			for s := open; !s.Add(duration).After(closing); s = s.Add(interval) {
				if cfg.free(s, duration, closing, mine) {
					slots = append(slots, s.Format("15:04"))
				}
			}
		}
		out[key] = slots
	}
	return out
}

// free reports whether [start, start+duration) plus its buffer misses every
// booking in bookings, each buffered by the same rule against its own
// day's close.
func (c ScheduleConfig) free(start time.Time, duration time.Duration, closing time.Time, bookings []Booking) bool {
	end := c.bufferedEnd(start.Add(duration), closing)
	for _, b := range bookings {
		bEnd := b.End.Add(c.Buffer)
		if bClose, ok := c.closeOf(b.Start); ok {
			bEnd = c.bufferedEnd(b.End, bClose)
		}
		if start.Before(bEnd) && end.After(b.Start) {
			return false
		}
	}
	return true
}

// IsSlotFree checks a single requested slot.  It also rejects slots that
// fall outside business hours.
func IsSlotFree(cfg ScheduleConfig, trainerID string, start time.Time, duration time.Duration, existing []Booking) bool {
	h, ok := cfg.HoursFor(start)
	if !ok {
		return false
	}
	loc := cfg.location()
	open, closing := h.Open.On(start, loc), h.Close.On(start, loc)
	if start.Before(open) || start.Add(duration).After(closing) {
		return false
	}
	mine := make([]Booking, 0, len(existing))
	for _, b := range existing {
		if b.TrainerID == trainerID && b.blocks() {
			mine = append(mine, b)
		}
	}
	return cfg.free(start, duration, closing, mine)
}

// SearchRange clips a calendar month to [now, now+maxAdvanceDays].  ok is
// false when nothing of the month is bookable.
func SearchRange(year int, month time.Month, now time.Time, maxAdvanceDays int, loc *time.Location) (DateRange, bool) {
	if loc == nil {
		loc = time.UTC
	}
	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, -1)
	if t := midnight(now, loc); t.After(from) {
		from = t
	}
	if limit := midnight(now, loc).AddDate(0, 0, maxAdvanceDays); limit.Before(to) {
		to = limit
	}
	if to.Before(from) {
		return DateRange{}, false
	}
	return DateRange{From: from, To: to}, true
}

// Engine binds a ScheduleConfig and a clock.
type Engine struct {
	cfg ScheduleConfig
	now func() time.Time
}

func NewEngine(cfg ScheduleConfig, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{cfg: cfg, now: now}
}

func (e *Engine) Config() ScheduleConfig { return e.cfg }

// Month computes availability for a calendar month clipped by the advance
// booking window.
func (e *Engine) Month(year int, month time.Month, trainerID string, multipleDogs bool, existing []Booking) map[string][]string {
	rng, ok := SearchRange(year, month, e.now(), e.cfg.MaxAdvanceDays, e.cfg.location())
	if !ok {
		return map[string][]string{}
	}
	return Compute(e.cfg, rng, trainerID, e.cfg.LessonLength(multipleDogs), existing, e.now())
}

// IsSlotFree is IsSlotFree with the engine's config.  Slots in the past
// are never free.
func (e *Engine) IsSlotFree(trainerID string, start time.Time, duration time.Duration, existing []Booking) bool {
	if start.Before(e.now()) {
		return false
	}
	return IsSlotFree(e.cfg, trainerID, start, duration, existing)
}

func midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
