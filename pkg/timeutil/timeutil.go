// Package timeutil provides calendar-day helpers for progression metrics.
// All day arithmetic happens in the school's configured location so that
// "today" and "active day" mean the same thing for every student.
package timeutil

import (
	"math"
	"sort"
	"sync"
	"time"
)

var (
	locMu sync.RWMutex
	loc   = time.UTC
)

// SetLocation sets the location used for calendar-day arithmetic.
// A nil location resets it to UTC.
func SetLocation(l *time.Location) {
	locMu.Lock()
	defer locMu.Unlock()
	if l == nil {
		l = time.UTC
	}
	loc = l
}

// Location returns the configured location.
func Location() *time.Location {
	locMu.RLock()
	defer locMu.RUnlock()
	return loc
}

// StartOfDay returns midnight of t's calendar day in the configured location.
func StartOfDay(t time.Time) time.Time {
	l := Location()
	lt := t.In(l)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, l)
}

// DaysBetween returns the signed number of calendar days from t1 to t2.
// It is positive when t2 is later than t1.
func DaysBetween(t1, t2 time.Time) int {
	a1 := StartOfDay(t1)
	a2 := StartOfDay(t2)
	// Rounding absorbs one-hour DST shifts.
	return int(math.Round(a2.Sub(a1).Hours() / 24))
}

// DaysSince returns the number of whole calendar days between t and now.
// Times in the future yield 0.
func DaysSince(t, now time.Time) int {
	d := DaysBetween(t, now)
	if d < 0 {
		return 0
	}
	return d
}

// DistinctDaysDesc collapses times into distinct calendar days, newest first.
func DistinctDaysDesc(times []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(times))
	days := make([]time.Time, 0, len(times))
	for _, t := range times {
		d := StartOfDay(t)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })
	return days
}
