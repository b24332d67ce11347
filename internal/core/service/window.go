package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseClock parses an "HH:MM" time-of-day string.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// InWindow reports whether now falls inside the [start, end] time-of-day
// window, bounds inclusive. Windows may wrap past midnight: when end <=
// start the window spans into the next day, so end gets a day added, and if
// now precedes start it gets a day added too, keeping the comparison inside
// one rolling 24h frame.
func InWindow(now time.Time, start, end string) bool {
	sh, sm, err := ParseClock(start)
	if err != nil {
		return false
	}
	eh, em, err := ParseClock(end)
	if err != nil {
		return false
	}

	startAt := time.Date(now.Year(), now.Month(), now.Day(), sh, sm, 0, 0, now.Location())
	endAt := time.Date(now.Year(), now.Month(), now.Day(), eh, em, 0, 0, now.Location())

	if !endAt.After(startAt) {
		endAt = endAt.AddDate(0, 0, 1)
		if now.Before(startAt) {
			now = now.AddDate(0, 0, 1)
		}
	}

	return !now.Before(startAt) && !now.After(endAt)
}
