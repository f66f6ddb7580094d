package types

import (
	"time"
)

// AddClampedMonths adds months to t keeping the day of month where possible
// and clamping to the last day otherwise, so Jan 31 + 1 month is Feb 28 (or
// Feb 29 in a leap year) instead of rolling into March.
func AddClampedMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	total := int(m) - 1 + months
	newY := y + total/12
	newM := total % 12
	if newM < 0 {
		newM += 12
		newY--
	}
	month := time.Month(newM + 1)

	if last := DaysInMonth(newY, month); d > last {
		d = last
	}
	return time.Date(newY, month, d, h, min, sec, t.Nanosecond(), t.Location())
}

// NextBillingDate advances t by exactly one period of the given frequency.
func NextBillingDate(t time.Time, freq BillingFrequency, customMonths int) (time.Time, error) {
	months, err := freq.Months(customMonths)
	if err != nil {
		return t, err
	}
	return AddClampedMonths(t, months), nil
}

// DaysInMonth returns the calendar day count of the month, honoring leap years.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetweenInclusive counts calendar days from start to end, both included.
// It returns 0 when end is before start.
func DaysBetweenInclusive(start, end time.Time) int {
	s := DateOnly(start)
	e := DateOnly(end)
	if e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}

// MonthsBetween returns the number of whole months from start to end. A month
// is complete when the day of month (clamped) has been reached.
func MonthsBetween(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	for months > 0 && AddClampedMonths(start, months).After(end) {
		months--
	}
	return months
}

// NextAnchoredBillingDate advances current by one period while keeping the
// day of month of anchor, so a cycle anchored on the 31st goes Jan 31, Feb 29,
// Mar 31 instead of drifting to the 29th after February.
func NextAnchoredBillingDate(anchor, current time.Time, freq BillingFrequency, customMonths int) (time.Time, error) {
	months, err := freq.Months(customMonths)
	if err != nil {
		return current, err
	}
	if anchor.IsZero() || current.Before(anchor) {
		return AddClampedMonths(current, months), nil
	}
	elapsed := MonthsBetween(anchor, current) / months
	next := AddClampedMonths(anchor, (elapsed+1)*months)
	if !next.After(current) {
		next = AddClampedMonths(current, months)
	}
	return next, nil
}
