package market

import (
	"fmt"
	"time"
)

// Hours models a daily trading session in one location. Holidays are not
// modeled; callers that need a holiday calendar should layer it on top.
type Hours struct {
	Location    *time.Location
	OpenMinute  int  // minutes after midnight, inclusive
	CloseMinute int  // minutes after midnight, exclusive
	Weekends    bool // session also runs Saturday and Sunday
}

// NewYorkHours returns the regular US equity session, 09:30 to 16:00 Eastern.
func NewYorkHours() (Hours, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return Hours{}, fmt.Errorf("load market timezone: %w", err)
	}
	return Hours{Location: loc, OpenMinute: 9*60 + 30, CloseMinute: 16 * 60}, nil
}

// AlwaysOpen returns a session with no closed period, for replay and tests.
func AlwaysOpen() Hours {
	return Hours{Location: time.UTC, CloseMinute: 24 * 60, Weekends: true}
}

// IsOpen reports whether t falls inside the session.
func (h Hours) IsOpen(t time.Time) bool {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	if !h.Weekends {
		switch lt.Weekday() {
		case time.Saturday, time.Sunday:
			return false
		}
	}
	mins := lt.Hour()*60 + lt.Minute()
	return mins >= h.OpenMinute && mins < h.CloseMinute
}
