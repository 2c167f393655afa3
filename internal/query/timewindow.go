package query

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeWindow is a half-open [Start, End) interval extracted from a query.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

var (
	lastNDaysRe = regexp.MustCompile(`(?i)\blast (\d{1,3}) days?\b`)
	quarterRe   = regexp.MustCompile(`(?i)\bq([1-4])(?:\s+(\d{4}))?\b`)
)

// ParseTimeWindow extracts a time window from phrases like "today",
// "yesterday", "this week", "last week", "last N days", and "Q1..Q4
// [year]". Weeks start on Monday. Returns nil when the query names no
// window.
func ParseTimeWindow(query string, now time.Time) *TimeWindow {
	lower := strings.ToLower(query)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case strings.Contains(lower, "today"):
		return &TimeWindow{Start: midnight, End: midnight.AddDate(0, 0, 1)}
	case strings.Contains(lower, "yesterday"):
		return &TimeWindow{Start: midnight.AddDate(0, 0, -1), End: midnight}
	case strings.Contains(lower, "this week"):
		start := startOfWeek(midnight)
		return &TimeWindow{Start: start, End: start.AddDate(0, 0, 7)}
	case strings.Contains(lower, "last week"):
		start := startOfWeek(midnight).AddDate(0, 0, -7)
		return &TimeWindow{Start: start, End: start.AddDate(0, 0, 7)}
	}

	if m := lastNDaysRe.FindStringSubmatch(query); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return &TimeWindow{Start: midnight.AddDate(0, 0, -n), End: midnight.AddDate(0, 0, 1)}
		}
	}

	if m := quarterRe.FindStringSubmatch(query); m != nil {
		quarter, _ := strconv.Atoi(m[1])
		year := now.Year()
		if m[2] != "" {
			year, _ = strconv.Atoi(m[2])
		}
		startMonth := time.Month((quarter-1)*3 + 1)
		start := time.Date(year, startMonth, 1, 0, 0, 0, 0, now.Location())
		return &TimeWindow{Start: start, End: start.AddDate(0, 3, 0)}
	}

	return nil
}

// startOfWeek returns the Monday at or before the given midnight.
func startOfWeek(midnight time.Time) time.Time {
	offset := (int(midnight.Weekday()) + 6) % 7
	return midnight.AddDate(0, 0, -offset)
}

// Contains reports whether t falls inside the window.
func (w *TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
