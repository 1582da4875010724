package entity

import (
	"fmt"
	"strings"
	"time"
)

// DayHours is a single day's open/close window in 24h "HH:MM" form.
type DayHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// WeekHours maps a lowercase weekday name ("monday".."sunday") to its window.
// A missing day means the business is closed that day.
type WeekHours map[string]DayHours

// WeekdayKey returns the map key for a time.Weekday.
func WeekdayKey(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// OpenAt reports whether the window for t's weekday contains t. A close time
// earlier than the open time is treated as spanning midnight, so a bar open
// 22:00-02:00 is open at 23:30 and at 01:00.
func (w WeekHours) OpenAt(t time.Time) bool {
	day, ok := w[WeekdayKey(t.Weekday())]
	if !ok {
		return false
	}
	open, err := parseClock(day.Open)
	if err != nil {
		return false
	}
	closeAt, err := parseClock(day.Close)
	if err != nil {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	if closeAt < open {
		return minutes >= open || minutes < closeAt
	}
	return minutes >= open && minutes < closeAt
}

func parseClock(v string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", v, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", v)
	}
	return h*60 + m, nil
}
