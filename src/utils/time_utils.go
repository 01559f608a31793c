package utils

import (
	"sort"
	"time"
)

// TradingDay truncates t to midnight UTC. Bars, equity points and
// calendar keys all use this normalization so date equality is exact.
func TradingDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameTradingDay reports whether a and b fall on the same UTC day.
func SameTradingDay(a, b time.Time) bool {
	return TradingDay(a).Equal(TradingDay(b))
}

// UnionCalendar merges per-symbol bar dates into one sorted,
// de-duplicated trading-day calendar.
func UnionCalendar(dateSets ...[]time.Time) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, dates := range dateSets {
		for _, d := range dates {
			seen[TradingDay(d)] = struct{}{}
		}
	}

	calendar := make([]time.Time, 0, len(seen))
	for d := range seen {
		calendar = append(calendar, d)
	}
	sort.Slice(calendar, func(i, j int) bool { return calendar[i].Before(calendar[j]) })

	return calendar
}

// CalendarDays returns the number of calendar days between from and to.
func CalendarDays(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24
}
