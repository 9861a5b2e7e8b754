package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// CalendarLayout is the only accepted textual date format (DD.MM.YYYY).
const CalendarLayout = "02.01.2006"

var calendarRe = regexp.MustCompile(`^(\d{2})\.(\d{2})\.(\d{4})$`)

// ParseCalendarDate strictly parses "DD.MM.YYYY" into a UTC date.
// Impossible dates such as 31.02.2025 are rejected instead of normalized.
func ParseCalendarDate(text string) (time.Time, error) {
	s := strings.TrimSpace(text)
	m := calendarRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: expected DD.MM.YYYY, got %q", ErrParse, s)
	}
	dd, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	yyyy, _ := strconv.Atoi(m[3])

	t := time.Date(yyyy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
	if t.Day() != dd || int(t.Month()) != mm || t.Year() != yyyy {
		return time.Time{}, fmt.Errorf("%w: no such date %q", ErrParse, s)
	}
	return t, nil
}

// FormatCalendarDate renders t as DD.MM.YYYY.
func FormatCalendarDate(t time.Time) string {
	return t.Format(CalendarLayout)
}

// ParseDueDay parses an explicit due day, which must already be in 1..28.
func ParseDueDay(text string) (int, error) {
	s := strings.TrimSpace(text)
	day, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: day must be a number, got %q", ErrParse, s)
	}
	if day < MinDueDay || day > MaxDueDay {
		return 0, fmt.Errorf("%w: day must be %d..%d, got %d", ErrParse, MinDueDay, MaxDueDay, day)
	}
	return day, nil
}

// ValidateDisplayName expects "Surname Name" on a single line.
func ValidateDisplayName(text string) (string, error) {
	name := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(name) < 3 || !strings.Contains(name, " ") {
		return "", fmt.Errorf("%w: expected \"Surname Name\"", ErrParse)
	}
	return name, nil
}
