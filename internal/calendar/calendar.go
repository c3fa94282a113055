package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a time of day without a date, parsed from "HH:MM".
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses an "HH:MM" string.
func ParseClock(value string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid time %q: expected HH:MM", value)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return Clock{}, fmt.Errorf("invalid hour in %q: %w", value, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return Clock{}, fmt.Errorf("invalid minute in %q: %w", value, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("time %q out of range", value)
	}

	return Clock{Hour: hour, Minute: minute}, nil
}

// String renders the clock back to HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On anchors the clock onto the date portion of t, in t's location.
func (c Clock) On(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, 0, 0, t.Location())
}

// Calendar resolves business days and close-of-business dates.
type Calendar struct {
	location   *time.Location
	cutoffHour int
	holidays   map[string]struct{}
}

// Options configure a Calendar.
type Options struct {
	Timezone   string
	CutoffHour int
	Holidays   []string
}

// New constructs a Calendar. Holidays are ISO dates (YYYY-MM-DD).
func New(opts Options) (*Calendar, error) {
	loc := time.UTC
	if opts.Timezone != "" {
		parsed, err := time.LoadLocation(opts.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", opts.Timezone, err)
		}
		loc = parsed
	}

	if opts.CutoffHour < 0 || opts.CutoffHour > 23 {
		return nil, fmt.Errorf("cutoff hour %d out of range", opts.CutoffHour)
	}

	holidays := make(map[string]struct{}, len(opts.Holidays))
	for _, h := range opts.Holidays {
		day, err := time.Parse("2006-01-02", h)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		holidays[day.Format("2006-01-02")] = struct{}{}
	}

	return &Calendar{location: loc, cutoffHour: opts.CutoffHour, holidays: holidays}, nil
}

// Location returns the calendar's timezone.
func (c *Calendar) Location() *time.Location {
	return c.location
}

// IsWeekend reports whether the date falls on Saturday or Sunday.
func (c *Calendar) IsWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsHoliday reports whether the date is on the configured holiday list.
func (c *Calendar) IsHoliday(date time.Time) bool {
	_, ok := c.holidays[date.Format("2006-01-02")]
	return ok
}

// IsBusinessDay reports whether the date is a weekday and not a holiday.
func (c *Calendar) IsBusinessDay(date time.Time) bool {
	return !c.IsWeekend(date) && !c.IsHoliday(date)
}

// PreviousBusinessDay walks backwards to the nearest business day strictly before date.
func (c *Calendar) PreviousBusinessDay(date time.Time) time.Time {
	prev := date.AddDate(0, 0, -1)
	for !c.IsBusinessDay(prev) {
		prev = prev.AddDate(0, 0, -1)
	}
	return prev
}

// BusinessDays lists the business days in [from, to] inclusive.
func (c *Calendar) BusinessDays(from, to time.Time) []time.Time {
	var days []time.Time
	for d := midnight(from); !d.After(midnight(to)); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// ResolveCOB computes the close-of-business date a poll at now should
// target: yesterday in the calendar's timezone, or the day before that
// when now is still before the cutoff hour.
func (c *Calendar) ResolveCOB(now time.Time) time.Time {
	local := now.In(c.location)
	cob := local.AddDate(0, 0, -1)
	if local.Hour() < c.cutoffHour {
		cob = cob.AddDate(0, 0, -1)
	}
	return midnight(cob)
}

// WithinTolerance reports whether observedAt lands inside
// [expected-tolerance, expected+tolerance], with the expected clock
// anchored on observedAt's own date.
func (c *Calendar) WithinTolerance(expected Clock, tolerance time.Duration, observedAt time.Time) bool {
	anchor := expected.On(observedAt.In(c.location))
	start := anchor.Add(-tolerance)
	end := anchor.Add(tolerance)
	return !observedAt.Before(start) && !observedAt.After(end)
}

// FormatDuration renders a minute count as a compact human string, e.g. "1d 2h 5m".
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	if minutes < 1440 {
		hours, mins := minutes/60, minutes%60
		if mins == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh %dm", hours, mins)
	}

	days := minutes / 1440
	remainder := minutes % 1440
	hours, mins := remainder/60, remainder%60

	out := fmt.Sprintf("%dd", days)
	if hours > 0 {
		out += fmt.Sprintf(" %dh", hours)
	}
	if mins > 0 {
		out += fmt.Sprintf(" %dm", mins)
	}
	return out
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
