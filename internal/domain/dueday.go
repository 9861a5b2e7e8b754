package domain

import (
	"fmt"
	"time"
)

// Due days are clamped to 1..28 so every month, February included, has an occurrence.
const (
	MinDueDay = 1
	MaxDueDay = 28
)

// NormalizeDueDay clamps day into [MinDueDay, MaxDueDay].
func NormalizeDueDay(day int) int {
	if day < MinDueDay {
		return MinDueDay
	}
	if day > MaxDueDay {
		return MaxDueDay
	}
	return day
}

// DueDayFromDate returns the normalized day of month of t.
func DueDayFromDate(t time.Time) int {
	return NormalizeDueDay(t.Day())
}

// Tomorrow returns midnight of the calendar day after now, as observed in loc.
func Tomorrow(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	l := now.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day()+1, 0, 0, 0, 0, loc)
}

// IsEligibleTomorrow reports whether the day after today falls on dueDay.
// today must already be expressed in the reminder time zone.
func IsEligibleTomorrow(today time.Time, dueDay int) bool {
	next := time.Date(today.Year(), today.Month(), today.Day()+1, 0, 0, 0, 0, today.Location())
	return next.Day() == dueDay
}

// ReminderText builds the reminder body sent the day before a payment.
func ReminderText(name string, due time.Time) string {
	if name == "" {
		name = "subscriber"
	}
	return fmt.Sprintf("Dear %s,\ntomorrow (%s) is your payment day.\nPlease pay for the course.",
		name, FormatCalendarDate(due))
}
