package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*60*60+30*60)

func TestAddClampedMonths(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		months int
		want   time.Time
	}{
		{
			name:   "jan 31 leap year",
			start:  time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
			months: 1,
			want:   time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "jan 31 non leap year",
			start:  time.Date(2023, time.January, 31, 0, 0, 0, 0, time.UTC),
			months: 1,
			want:   time.Date(2023, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "cross year",
			start:  time.Date(2024, time.November, 30, 0, 0, 0, 0, time.UTC),
			months: 3,
			want:   time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "mid month keeps day",
			start:  time.Date(2024, time.March, 15, 10, 30, 0, 0, ist),
			months: 1,
			want:   time.Date(2024, time.April, 15, 10, 30, 0, 0, ist),
		},
		{
			name:   "negative months",
			start:  time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
			months: -1,
			want:   time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "twelve months from leap day",
			start:  time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
			months: 12,
			want:   time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddClampedMonths(tt.start, tt.months))
		})
	}
}

func TestNextBillingDate(t *testing.T) {
	start := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)

	got, err := NextBillingDate(start, BillingFrequencyMonthly, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), got)

	got, err = NextBillingDate(start, BillingFrequencyQuarterly, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.April, 30, 0, 0, 0, 0, time.UTC), got)

	got, err = NextBillingDate(start, BillingFrequencyAnnually, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC), got)

	got, err = NextBillingDate(start, BillingFrequencyCustom, 2)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC), got)

	_, err = NextBillingDate(start, BillingFrequencyCustom, 0)
	assert.Error(t, err)

	_, err = NextBillingDate(start, BillingFrequency("fortnightly"), 0)
	assert.Error(t, err)
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 29, DaysInMonth(2024, time.February))
	assert.Equal(t, 28, DaysInMonth(2023, time.February))
	assert.Equal(t, 28, DaysInMonth(2100, time.February))
	assert.Equal(t, 29, DaysInMonth(2000, time.February))
	assert.Equal(t, 31, DaysInMonth(2024, time.December))
	assert.Equal(t, 30, DaysInMonth(2024, time.April))
}

func TestDaysBetweenInclusive(t *testing.T) {
	d := func(m time.Month, day int) time.Time { return time.Date(2024, m, day, 0, 0, 0, 0, time.UTC) }
	assert.Equal(t, 1, DaysBetweenInclusive(d(time.March, 5), d(time.March, 5)))
	assert.Equal(t, 31, DaysBetweenInclusive(d(time.March, 1), d(time.March, 31)))
	assert.Equal(t, 6, DaysBetweenInclusive(d(time.February, 27), d(time.March, 3)))
	assert.Equal(t, 0, DaysBetweenInclusive(d(time.March, 5), d(time.March, 4)))
}

func TestMonthsBetween(t *testing.T) {
	start := time.Date(2022, time.January, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, MonthsBetween(start, start))
	assert.Equal(t, 0, MonthsBetween(start, time.Date(2022, time.February, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, MonthsBetween(start, time.Date(2022, time.February, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 24, MonthsBetween(start, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 23, MonthsBetween(start, time.Date(2024, time.January, 14, 0, 0, 0, 0, time.UTC)))

	endOfMonth := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, MonthsBetween(endOfMonth, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)))
}

func TestNextAnchoredBillingDate_NoDrift(t *testing.T) {
	anchor := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	want := []time.Time{
		time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.April, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC),
	}

	current := anchor
	for _, w := range want {
		next, err := NextAnchoredBillingDate(anchor, current, BillingFrequencyMonthly, 0)
		require.NoError(t, err)
		assert.Equal(t, w, next)
		current = next
	}

	// plain clamped addition drifts after February
	assert.Equal(t, time.Date(2024, time.March, 29, 0, 0, 0, 0, time.UTC), AddClampedMonths(want[0], 1))
}
