package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Interval is one of the enumerated cron tokens from spec.md §6
// (s1..s30, m1..m30, h1..h12, D1..D3, W1/W2, M1..M6, Y1..Y3).
type Interval string

// unit is the interval's time-unit letter.
type unit byte

const (
	unitSecond unit = 's'
	unitMinute unit = 'm'
	unitHour   unit = 'h'
	unitDay    unit = 'D'
	unitWeek   unit = 'W'
	unitMonth  unit = 'M'
	unitYear   unit = 'Y'
)

// Parse splits an Interval into its unit and count, validating it
// against the enumerated ranges in spec.md §6.
func (iv Interval) Parse() (unit, int, error) {
	s := string(iv)
	if s == "" {
		return 0, 0, fmt.Errorf("model: empty interval")
	}
	u := unit(s[0])
	n, err := strconv.Atoi(s[1:])
	if err != nil {
		return 0, 0, fmt.Errorf("model: malformed interval %q: %w", iv, err)
	}
	var max int
	switch u {
	case unitSecond, unitMinute:
		max = 30
	case unitHour:
		max = 12
	case unitDay:
		max = 3
	case unitWeek:
		max = 2
	case unitMonth:
		max = 6
	case unitYear:
		max = 3
	default:
		return 0, 0, fmt.Errorf("model: unknown interval unit %q in %q", u, iv)
	}
	if n < 1 || n > max {
		return 0, 0, fmt.Errorf("model: interval %q out of range 1..%d", iv, max)
	}
	return u, n, nil
}

// Seconds returns the interval's duration in seconds, using 86400 for a
// day, 7*86400 for a week, 30*86400 for a month (calendar-accurate
// scheduling is delegated to the cron expression; this value is used
// only for claim TTL and default aggregation sizing), 365*86400 for a
// year.
func (iv Interval) Seconds() (int, error) {
	u, n, err := iv.Parse()
	if err != nil {
		return 0, err
	}
	switch u {
	case unitSecond:
		return n, nil
	case unitMinute:
		return n * 60, nil
	case unitHour:
		return n * 3600, nil
	case unitDay:
		return n * 86400, nil
	case unitWeek:
		return n * 7 * 86400, nil
	case unitMonth:
		return n * 30 * 86400, nil
	case unitYear:
		return n * 365 * 86400, nil
	default:
		return 0, fmt.Errorf("model: unknown interval unit in %q", iv)
	}
}

// Cron renders the standard 5-field cron expression for this interval,
// per the exhaustive table in spec.md §6.
func (iv Interval) Cron() (string, error) {
	u, n, err := iv.Parse()
	if err != nil {
		return "", err
	}
	switch u {
	case unitSecond:
		// robfig/cron/v3 has no native seconds field in its default
		// parser; chomp's scheduler constructs a seconds-aware parser
		// (cron.WithSeconds()) so this expression is six fields.
		return fmt.Sprintf("*/%d * * * * *", n), nil
	case unitMinute:
		return fmt.Sprintf("*/%d * * * *", n), nil
	case unitHour:
		return fmt.Sprintf("0 */%d * * *", n), nil
	case unitDay:
		return fmt.Sprintf("0 0 */%d * *", n), nil
	case unitWeek:
		if n == 1 {
			return "0 0 * * 0", nil
		}
		return "0 0 * * 0/2", nil // Sunday-anchored biweekly, per original_source/src/utils/date.py
	case unitMonth:
		return fmt.Sprintf("0 0 1 */%d *", n), nil
	case unitYear:
		return fmt.Sprintf("0 0 1 1 */%d", n), nil
	default:
		return "", fmt.Errorf("model: unknown interval unit in %q", iv)
	}
}

// ParseLookback parses a series-operation lookback token (e.g. "h24",
// "m30") into a duration in seconds, reusing the same unit table
// without any of its upper bounds (a lookback may exceed the scheduling
// enum's range for every unit).
func ParseLookback(tok string) (int, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return 0, fmt.Errorf("model: empty lookback")
	}
	u := unit(tok[0])
	n, err := strconv.Atoi(tok[1:])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("model: malformed lookback %q", tok)
	}
	switch u {
	case unitSecond:
		return n, nil
	case unitMinute:
		return n * 60, nil
	case unitHour:
		return n * 3600, nil
	case unitDay:
		return n * 86400, nil
	case unitWeek:
		return n * 7 * 86400, nil
	case unitMonth:
		return n * 30 * 86400, nil
	case unitYear:
		return n * 365 * 86400, nil
	default:
		return 0, fmt.Errorf("model: unknown lookback unit in %q", tok)
	}
}
