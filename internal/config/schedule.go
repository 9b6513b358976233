package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/trainer-booking/internal/availability"
)

// scheduleFile is the on-disk YAML layout.  Durations use Go syntax
// ("30m").  Weekday keys are lower-case English names.
//
//	timezone: Asia/Tokyo
//	weekly:
//	  monday: {open: "09:00", close: "18:00"}
//	  sunday: {closed: true}
//	holidays: ["2026-01-01"]
//	holiday_hours: {open: "10:00", close: "15:00"}
type scheduleFile struct {
	Timezone       string               `yaml:"timezone"`
	Weekly         map[string]hoursFile `yaml:"weekly"`
	Holidays       []string             `yaml:"holidays"`
	HolidayHours   *hoursFile           `yaml:"holiday_hours"`
	SlotInterval   time.Duration        `yaml:"slot_interval"`
	Buffer         time.Duration        `yaml:"buffer"`
	LessonDuration time.Duration        `yaml:"lesson_duration"`
	MultiDogExtra  time.Duration        `yaml:"multi_dog_extra"`
	MaxAdvanceDays int                  `yaml:"max_advance_days"`
}

type hoursFile struct {
	Open   string `yaml:"open"`
	Close  string `yaml:"close"`
	Closed bool   `yaml:"closed"`
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

// DefaultSchedule opens Monday to Friday 09:00-18:00 with 30 minute slots,
// a 30 minute buffer, 90 minute lessons (+30 for multiple dogs) and a 60 day
// booking horizon.
func DefaultSchedule(loc *time.Location) availability.ScheduleConfig {
	open, closing := availability.Clock(9*60), availability.Clock(18*60)
	weekly := map[time.Weekday]availability.DayHours{
		time.Saturday: {Closed: true},
		time.Sunday:   {Closed: true},
	}
	for d := time.Monday; d <= time.Friday; d++ {
		weekly[d] = availability.DayHours{Open: open, Close: closing}
	}
	return availability.ScheduleConfig{
		Location:       loc,
		Weekly:         weekly,
		Holidays:       map[string]bool{},
		SlotInterval:   30 * time.Minute,
		Buffer:         30 * time.Minute,
		LessonDuration: 90 * time.Minute,
		MultiDogExtra:  30 * time.Minute,
		MaxAdvanceDays: 60,
	}
}

// LoadSchedule reads the schedule at path on top of DefaultSchedule.  An
// empty path returns the defaults.  tz is used unless the file names its
// own timezone.
func LoadSchedule(path, tz string) (availability.ScheduleConfig, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return availability.ScheduleConfig{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	if path == "" {
		return DefaultSchedule(loc), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return availability.ScheduleConfig{}, fmt.Errorf("read schedule: %w", err)
	}
	return ParseSchedule(b, loc)
}

// ParseSchedule decodes a YAML schedule document.
func ParseSchedule(b []byte, loc *time.Location) (availability.ScheduleConfig, error) {
	var f scheduleFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return availability.ScheduleConfig{}, fmt.Errorf("parse schedule: %w", err)
	}
	if f.Timezone != "" {
		l, err := time.LoadLocation(f.Timezone)
		if err != nil {
			return availability.ScheduleConfig{}, fmt.Errorf("schedule timezone %q: %w", f.Timezone, err)
		}
		loc = l
	}
	cfg := DefaultSchedule(loc)
	for name, h := range f.Weekly {
		day, ok := weekdays[strings.ToLower(name)]
		if !ok {
			return cfg, fmt.Errorf("schedule: unknown weekday %q", name)
		}
		dh, err := h.dayHours()
		if err != nil {
			return cfg, fmt.Errorf("schedule %s: %w", name, err)
		}
		cfg.Weekly[day] = dh
	}
	for _, d := range f.Holidays {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return cfg, fmt.Errorf("schedule holiday %q: %w", d, err)
		}
		cfg.Holidays[d] = true
	}
	if f.HolidayHours != nil {
		dh, err := f.HolidayHours.dayHours()
		if err != nil {
			return cfg, fmt.Errorf("schedule holiday_hours: %w", err)
		}
		cfg.HolidayHours = &dh
	}
	if f.SlotInterval > 0 {
		cfg.SlotInterval = f.SlotInterval
	}
	if f.Buffer > 0 {
		cfg.Buffer = f.Buffer
	}
	if f.LessonDuration > 0 {
		cfg.LessonDuration = f.LessonDuration
	}
	if f.MultiDogExtra > 0 {
		cfg.MultiDogExtra = f.MultiDogExtra
	}
	if f.MaxAdvanceDays > 0 {
		cfg.MaxAdvanceDays = f.MaxAdvanceDays
	}
	return cfg, nil
}

func (h hoursFile) dayHours() (availability.DayHours, error) {
	if h.Closed {
		return availability.DayHours{Closed: true}, nil
	}
	open, err := availability.ParseClock(h.Open)
	if err != nil {
		return availability.DayHours{}, err
	}
	closing, err := availability.ParseClock(h.Close)
	if err != nil {
		return availability.DayHours{}, err
	}
	if closing <= open {
		return availability.DayHours{}, fmt.Errorf("close %s is not after open %s", closing, open)
	}
	return availability.DayHours{Open: open, Close: closing}, nil
}
