package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// INTERVAL
// ══════════════════════════════════════════════════════════════════════════════

// IntervalSchedule runs a job at a fixed interval after the previous run.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every creates an IntervalSchedule. Non-positive intervals fall back to one
// minute.
func Every(interval time.Duration) IntervalSchedule {
	if interval <= 0 {
		interval = time.Minute
	}
	return IntervalSchedule{Interval: interval}
}

// Next implements Schedule.
func (s IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String implements Schedule.
func (s IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON
// ══════════════════════════════════════════════════════════════════════════════

// CronSchedule is a parsed five field cron expression:
// minute hour day-of-month month day-of-week.
//
//	"*/10 * * * *"  every ten minutes
//	"0 3 * * *"     every day at 03:00
//	"0 0 * * 1"     every Monday at midnight
type CronSchedule struct {
	raw      string
	minutes  []int
	hours    []int
	days     []int
	months   []int
	weekdays []int
}

// Common cron presets.
const (
	EveryHour        = "0 * * * *"
	EveryDayAt3AM    = "0 3 * * *"
	EveryDayMidnight = "0 0 * * *"
)

// ParseCron parses a cron expression. Fields accept *, */n, n, n-m, n-m/s
// and comma separated lists.
func ParseCron(expr string) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	names := [5]string{"minute", "hour", "day", "month", "weekday"}
	parsed := make([][]int, 5)
	for i, f := range fields {
		values, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", names[i], err)
		}
		parsed[i] = values
	}

	return &CronSchedule{
		raw:      expr,
		minutes:  parsed[0],
		hours:    parsed[1],
		days:     parsed[2],
		months:   parsed[3],
		weekdays: parsed[4],
	}, nil
}

// MustParseCron parses a cron expression or panics. Use only for constants.
func MustParseCron(expr string) *CronSchedule {
	cs, err := ParseCron(expr)
	if err != nil {
		panic(err)
	}
	return cs
}

func parseCronField(field string, lo, hi int) ([]int, error) {
	set := make(map[int]struct{})
	for _, part := range strings.Split(field, ",") {
		if err := addCronPart(set, strings.TrimSpace(part), lo, hi); err != nil {
			return nil, err
		}
	}

	values := make([]int, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Ints(values)
	return values, nil
}

func addCronPart(set map[int]struct{}, part string, lo, hi int) error {
	step := 1
	if base, s, ok := strings.Cut(part, "/"); ok {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid step %q", s)
		}
		step = n
		part = base
	}

	start, end := lo, hi
	switch {
	case part == "*":
	case strings.Contains(part, "-"):
		a, b, _ := strings.Cut(part, "-")
		var err error
		if start, err = strconv.Atoi(a); err != nil {
			return fmt.Errorf("invalid range start %q", a)
		}
		if end, err = strconv.Atoi(b); err != nil {
			return fmt.Errorf("invalid range end %q", b)
		}
	default:
		v, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("invalid value %q", part)
		}
		start = v
		if step == 1 {
			end = v
		}
	}

	if start < lo || end > hi || start > end {
		return fmt.Errorf("value out of range [%d-%d]: %s", lo, hi, part)
	}
	for v := start; v <= end; v += step {
		set[v] = struct{}{}
	}
	return nil
}

// Next implements Schedule. It returns the zero time when nothing matches
// within a year.
func (c *CronSchedule) Next(after time.Time) time.Time {
	t := after.Truncate(time.Minute).Add(time.Minute)
	const horizon = 366 * 24 * 60
	for i := 0; i < horizon; i++ {
		if c.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

// String implements Schedule.
func (c *CronSchedule) String() string {
	return c.raw
}

func (c *CronSchedule) matches(t time.Time) bool {
	return contains(c.minutes, t.Minute()) &&
		contains(c.hours, t.Hour()) &&
		contains(c.days, t.Day()) &&
		contains(c.months, int(t.Month())) &&
		contains(c.weekdays, int(t.Weekday()))
}

func contains(values []int, v int) bool {
	i := sort.SearchInts(values, v)
	return i < len(values) && values[i] == v
}
