// Package recur computes calendar-based recurrence for billing schedules.
package recur

import (
	"time"

	"github.com/ldg-erp/duework/errors"
)

// Interval is a supported billing recurrence
type Interval string

const (
	Weekly    Interval = "WEEKLY"
	Monthly   Interval = "MONTHLY"
	Quarterly Interval = "QUARTERLY"
	Yearly    Interval = "YEARLY"
)

// IsValid returns true for a recognized interval
func (i Interval) IsValid() bool {
	switch i {
	case Weekly, Monthly, Quarterly, Yearly:
		return true
	default:
		return false
	}
}

// ParseInterval converts a stored string into an Interval
func ParseInterval(s string) (Interval, error) {
	interval := Interval(s)
	if !interval.IsValid() {
		return "", errors.NewInvalidRequestError("unknown recurrence interval %q", s)
	}
	return interval, nil
}

// Clock abstracts time.Now so schedules can be tested deterministically
type Clock interface {
	Now() time.Time
}

// SystemClock is the real wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant. Test helper.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// Next returns the occurrence after from.
//
// Weekly steps exactly seven days. Month-based intervals keep the
// day-of-month where possible and clamp to the last day of the target
// month otherwise (Jan 31 -> Feb 28, or Feb 29 in a leap year). Yearly
// clamps Feb 29 to Feb 28 in non-leap years. Time of day is preserved.
func Next(interval Interval, from time.Time) (time.Time, error) {
	switch interval {
	case Weekly:
		return from.AddDate(0, 0, 7), nil
	case Monthly:
		return addMonthsClamped(from, 1), nil
	case Quarterly:
		return addMonthsClamped(from, 3), nil
	case Yearly:
		return addMonthsClamped(from, 12), nil
	default:
		return time.Time{}, errors.NewInvalidRequestError("unknown recurrence interval %q", interval)
	}
}

// addMonthsClamped advances by whole months without the day overflow of
// time.AddDate (Jan 31 + 1 month must not become Mar 2/3).
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()

	// Normalize target year/month from a month index
	idx := int(month) - 1 + months
	targetYear := year + idx/12
	targetMonth := time.Month(idx%12 + 1)

	if last := lastDayOfMonth(targetYear, targetMonth); day > last {
		day = last
	}

	hour, minute, sec := t.Clock()
	return time.Date(targetYear, targetMonth, day, hour, minute, sec, t.Nanosecond(), t.Location())
}

// lastDayOfMonth returns the number of days in the given month
func lastDayOfMonth(year int, month time.Month) int {
	// Day zero of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
