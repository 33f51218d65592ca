package dates_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-scheduler/dates"
)

// =============================================================================
// NORMALIZATION AND ROUND-TRIP TESTS
// =============================================================================

func TestNormalize_PinsToLocalNoon(t *testing.T) {
	// GIVEN: A timestamp shortly after midnight
	// WHEN: Normalizing
	// THEN: The date component is unchanged and the time is local noon

	raw := time.Date(2026, time.March, 10, 0, 12, 33, 0, time.Local)
	d := dates.Normalize(raw)

	assert.Equal(t, "2026-03-10", d.Key())
	assert.Equal(t, 12, d.Time().Hour())
}

func TestKey_RoundTrip_IsStable(t *testing.T) {
	// GIVEN: A set of dates including DST transition days
	// WHEN: Rendering to a key and parsing back
	// THEN: The key is identical after the round trip

	keys := []string{
		"2026-01-01",
		"2026-02-28",
		"2026-03-08", // US spring-forward
		"2026-11-01", // US fall-back
		"2026-12-31",
	}
	for _, key := range keys {
		d, err := dates.FromKey(key)
		require.NoError(t, err, key)
		assert.Equal(t, key, d.Key())

		again, err := dates.FromKey(d.Key())
		require.NoError(t, err)
		assert.True(t, d.Equal(again), key)
	}
}

func TestFromKey_RejectsMalformedInput(t *testing.T) {
	for _, bad := range []string{"", "2026-13-01", "03/10/2026", "2026-3-1", "not-a-date"} {
		_, err := dates.FromKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestAddDays_CrossesDSTBoundaryCleanly(t *testing.T) {
	// GIVEN: The day before a spring-forward transition
	// WHEN: Adding one day
	// THEN: The result is exactly the next calendar date, still at noon

	d := dates.New(2026, time.March, 7)
	next := d.AddDays(1)

	assert.Equal(t, "2026-03-08", next.Key())
	assert.Equal(t, 12, next.Time().Hour())
}

func TestAddMonths_OverflowNormalizes(t *testing.T) {
	// Jan 31 + 1 month lands in early March via Go's calendar
	// normalization; the result is still a valid noon date.
	d := dates.New(2026, time.January, 31).AddMonths(1)
	assert.Equal(t, "2026-03-03", d.Key())
}

// =============================================================================
// MONTH TESTS
// =============================================================================

func TestMonth_Bounds(t *testing.T) {
	m, err := dates.ParseMonth("2026-02")
	require.NoError(t, err)

	assert.Equal(t, "2026-02-01", m.First().Key())
	assert.Equal(t, "2026-02-28", m.Last().Key())
	assert.Len(t, m.Days(), 28)
	assert.Equal(t, "2026-02", m.String())
}

func TestMonth_LeapFebruary(t *testing.T) {
	m, err := dates.ParseMonth("2028-02")
	require.NoError(t, err)
	assert.Equal(t, "2028-02-29", m.Last().Key())
	assert.Len(t, m.Days(), 29)
}

func TestMonth_Next_WrapsYear(t *testing.T) {
	m := dates.Month{Year: 2026, Month: time.December}
	next := m.Next()
	assert.Equal(t, 2027, next.Year)
	assert.Equal(t, time.January, next.Month)
}

// =============================================================================
// YEARS BETWEEN TESTS
// =============================================================================

func TestYearsBetween_AnniversaryBoundary(t *testing.T) {
	hire := dates.New(2022, time.June, 15)

	// Day before the 4th anniversary: still 3 whole years.
	assert.Equal(t, 3, dates.YearsBetween(hire, dates.New(2026, time.June, 14)))
	// On the anniversary: 4.
	assert.Equal(t, 4, dates.YearsBetween(hire, dates.New(2026, time.June, 15)))
	// After: still 4.
	assert.Equal(t, 4, dates.YearsBetween(hire, dates.New(2026, time.December, 1)))
}

func TestYearsBetween_FutureHireDateIsZero(t *testing.T) {
	hire := dates.New(2027, time.January, 1)
	assert.Equal(t, 0, dates.YearsBetween(hire, dates.New(2026, time.June, 1)))
}

// =============================================================================
// ELIGIBILITY WINDOW TESTS
// =============================================================================

func TestEvaluate_Window(t *testing.T) {
	today := dates.New(2026, time.March, 10)

	cases := []struct {
		name     string
		date     dates.Date
		eligible bool
		tooEarly bool
		tooLate  bool
	}{
		{"today is too soon", today, false, true, false},
		{"tomorrow is too soon", today.AddDays(1), false, true, false},
		{"two days out is the first eligible date", today.AddDays(2), true, false, false},
		{"exactly six months out is eligible", today.AddMonths(6), true, false, false},
		{"past the horizon", today.AddMonths(6).AddDays(1), false, false, true},
		{"yesterday", today.AddDays(-1), false, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			elig := dates.Evaluate(tc.date, today)
			assert.Equal(t, tc.eligible, elig.Eligible)
			assert.Equal(t, tc.tooEarly, elig.TooEarly)
			assert.Equal(t, tc.tooLate, elig.TooLate)
		})
	}
}
