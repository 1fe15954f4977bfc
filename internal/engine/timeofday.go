package engine

import (
	"fmt"
	"time"
)

// TimeOfDay is minutes since midnight. Raw "HH:MM" strings are parsed once
// at the boundary; everything past that point does integer arithmetic.
type TimeOfDay int

// ParseTimeOfDay parses a strict 24-hour "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("time of day %q: want HH:MM", s)
	}
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return 0, fmt.Errorf("time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time of day %q: out of range", s)
	}
	return TimeOfDay(h*60 + m), nil
}

// MustTimeOfDay parses or panics. For constants and tests.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// TimeOfDayAt extracts the time-of-day component of an instant.
func TimeOfDayAt(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int { return int(t) }

// Add shifts the time of day by a number of minutes.
func (t TimeOfDay) Add(minutes int) TimeOfDay { return t + TimeOfDay(minutes) }

// String renders back to "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}
