package calendar_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-scheduler/calendar"
	"github.com/warp/leave-scheduler/dates"
	"github.com/warp/leave-scheduler/schedule"
)

// =============================================================================
// FAKE FETCHER
// =============================================================================

// fakeFetcher records calls and can fail or block on demand.
type fakeFetcher struct {
	mu         sync.Mutex
	monthCalls []dates.Month
	dateCalls  []dates.Date
	err        error       // returned by every call while set
	gate       chan struct{} // when set, FetchMonth blocks until closed
}

func (f *fakeFetcher) FetchMonth(ctx context.Context, division string, month dates.Month) (map[string]*schedule.DayAllotment, error) {
	f.mu.Lock()
	f.monthCalls = append(f.monthCalls, month)
	err := f.err
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	date := month.First()
	return map[string]*schedule.DayAllotment{
		date.Key(): {
			Division:     division,
			Date:         date,
			MaxAllotment: 5,
			Availability: schedule.AvailabilityAvailable,
		},
	}, nil
}

func (f *fakeFetcher) FetchDate(ctx context.Context, division string, date dates.Date) (*schedule.DayAllotment, error) {
	f.mu.Lock()
	f.dateCalls = append(f.dateCalls, date)
	err := f.err
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &schedule.DayAllotment{
		Division:        division,
		Date:            date,
		MaxAllotment:    5,
		CurrentRequests: 4,
		Availability:    schedule.AvailabilityLimited,
	}, nil
}

func (f *fakeFetcher) months() []dates.Month {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dates.Month(nil), f.monthCalls...)
}

// newTestStore wires a store with a short debounce and an OnUpdate
// channel so tests wait on commits instead of sleeping.
func newTestStore(t *testing.T, fetcher *fakeFetcher) (*calendar.Store, chan dates.Month) {
	t.Helper()
	store := calendar.New(fetcher, 20*time.Millisecond, calendar.RetryPolicy{MaxAttempts: 2, Delay: 10 * time.Millisecond})
	updates := make(chan dates.Month, 16)
	store.OnUpdate = func(month dates.Month, _ map[string]*schedule.DayAllotment) {
		updates <- month
	}
	t.Cleanup(store.Close)
	return store, updates
}

func waitForUpdate(t *testing.T, updates chan dates.Month) dates.Month {
	t.Helper()
	select {
	case m := <-updates:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a committed view")
		return dates.Month{}
	}
}

func month(y int, m time.Month) dates.Month { return dates.Month{Year: y, Month: m} }

// =============================================================================
// DEBOUNCE TESTS
// =============================================================================

func TestRequestMonth_BurstCollapsesToLast(t *testing.T) {
	// GIVEN: A user paging rapidly through three months
	// WHEN: All three requests land inside the debounce window
	// THEN: Exactly one fetch runs, for the last month requested

	fetcher := &fakeFetcher{}
	store, updates := newTestStore(t, fetcher)
	store.SetDivision("division-east")

	store.RequestMonth(month(2026, time.March))
	store.RequestMonth(month(2026, time.April))
	store.RequestMonth(month(2026, time.May))

	committed := waitForUpdate(t, updates)
	assert.Equal(t, month(2026, time.May), committed)

	// Allow any stray timer to fire before counting.
	time.Sleep(100 * time.Millisecond)
	require.Len(t, fetcher.months(), 1)
	assert.Equal(t, month(2026, time.May), fetcher.months()[0])

	got, days := store.Snapshot()
	assert.Equal(t, month(2026, time.May), got)
	assert.Len(t, days, 1)
}

func TestRequestMonth_SequentialRequestsBothFetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	store, updates := newTestStore(t, fetcher)
	store.SetDivision("division-east")

	store.RequestMonth(month(2026, time.March))
	waitForUpdate(t, updates)
	store.RequestMonth(month(2026, time.April))
	waitForUpdate(t, updates)

	assert.Len(t, fetcher.months(), 2)
}

// =============================================================================
// DEFERRED FETCH TESTS
// =============================================================================

func TestRequestMonth_BeforeDivision_DeferredAndReplayed(t *testing.T) {
	// GIVEN: Month requests arriving before the division context exists
	// WHEN: The division is established
	// THEN: Only the latest deferred month is fetched, exactly once

	fetcher := &fakeFetcher{}
	store, updates := newTestStore(t, fetcher)

	store.RequestMonth(month(2026, time.March))
	store.RequestMonth(month(2026, time.April))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, fetcher.months(), "nothing fetches without a division")

	store.SetDivision("division-east")
	committed := waitForUpdate(t, updates)
	assert.Equal(t, month(2026, time.April), committed)
	assert.Len(t, fetcher.months(), 1)
}

// =============================================================================
// SUPERSEDE TESTS
// =============================================================================

func TestNewerFetch_SupersedesInFlight(t *testing.T) {
	// GIVEN: A slow in-flight fetch for March
	// WHEN: April is requested while March is still running
	// THEN: March's result never commits; the view shows April

	gate := make(chan struct{})
	fetcher := &fakeFetcher{gate: gate}
	store, updates := newTestStore(t, fetcher)
	store.SetDivision("division-east")

	store.RequestMonth(month(2026, time.March))
	require.Eventually(t, func() bool { return len(fetcher.months()) == 1 },
		2*time.Second, 5*time.Millisecond, "march fetch should start")

	// Second request cancels the first fetch's context.
	store.RequestMonth(month(2026, time.April))
	require.Eventually(t, func() bool { return len(fetcher.months()) == 2 },
		2*time.Second, 5*time.Millisecond, "april fetch should start")

	fetcher.mu.Lock()
	fetcher.gate = nil
	fetcher.mu.Unlock()
	close(gate)

	committed := waitForUpdate(t, updates)
	assert.Equal(t, month(2026, time.April), committed)

	got, _ := store.Snapshot()
	assert.Equal(t, month(2026, time.April), got)

	// No second commit arrives from the superseded fetch.
	select {
	case m := <-updates:
		t.Fatalf("stale fetch committed %v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

// =============================================================================
// RETRY TESTS
// =============================================================================

func TestFetch_RetriesOnceOnStoreUnavailable(t *testing.T) {
	// GIVEN: A fetcher failing with a retryable store error
	// WHEN: A month fetch runs with MaxAttempts=2
	// THEN: Exactly two attempts, then the view stays empty

	fetcher := &fakeFetcher{err: fmt.Errorf("%w: connection refused", schedule.ErrStoreUnavailable)}
	store, _ := newTestStore(t, fetcher)
	store.SetDivision("division-east")

	store.RequestMonth(month(2026, time.March))

	require.Eventually(t, func() bool { return len(fetcher.months()) == 2 },
		2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, fetcher.months(), 2, "no third attempt")

	_, days := store.Snapshot()
	assert.Empty(t, days)
}

func TestFetch_NonRetryableErrorFailsFast(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("schema mismatch")}
	store, _ := newTestStore(t, fetcher)
	failures := make(chan error, 1)
	store.OnError = func(_ dates.Month, _ calendar.Outcome, err error) {
		failures <- err
	}
	store.SetDivision("division-east")

	store.RequestMonth(month(2026, time.March))

	require.Eventually(t, func() bool { return len(fetcher.months()) == 1 },
		2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, fetcher.months(), 1)

	select {
	case err := <-failures:
		assert.EqualError(t, err, "schema mismatch")
	default:
		t.Fatal("single-attempt failure was not observed")
	}
}

func TestFetch_ExhaustedFailureIsObserved(t *testing.T) {
	// GIVEN: A fetcher that keeps failing with a retryable store error
	// WHEN: The month fetch exhausts its retry budget
	// THEN: The failure reaches the error observer with the real cause,
	//       so a consumer can tell "store down" from "no data configured"

	fetcher := &fakeFetcher{err: fmt.Errorf("%w: connection refused", schedule.ErrStoreUnavailable)}
	store, _ := newTestStore(t, fetcher)

	type failure struct {
		month   dates.Month
		outcome calendar.Outcome
		err     error
	}
	failures := make(chan failure, 1)
	store.OnError = func(m dates.Month, outcome calendar.Outcome, err error) {
		failures <- failure{m, outcome, err}
	}

	store.SetDivision("division-east")
	store.RequestMonth(month(2026, time.March))

	select {
	case f := <-failures:
		assert.Equal(t, month(2026, time.March), f.month)
		assert.Equal(t, calendar.OutcomeExhausted, f.outcome)
		assert.ErrorIs(t, f.err, schedule.ErrStoreUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the failure to be observed")
	}
	assert.Len(t, fetcher.months(), 2, "retry budget still bounds attempts")

	_, days := store.Snapshot()
	assert.Empty(t, days, "a failed fetch never commits a view")
}

// =============================================================================
// SINGLE-DATE REFRESH TESTS
// =============================================================================

func TestRefreshDate_ReplacesOneEntry(t *testing.T) {
	// GIVEN: A committed March view
	// WHEN: Refreshing a single March date after a mutation
	// THEN: That entry is replaced in place; no month round-trip

	fetcher := &fakeFetcher{}
	store, updates := newTestStore(t, fetcher)
	store.SetDivision("division-east")
	store.RequestMonth(month(2026, time.March))
	waitForUpdate(t, updates)

	target := dates.New(2026, time.March, 1)
	day, outcome := store.RefreshDate(context.Background(), target)
	require.Equal(t, calendar.OutcomeSucceeded, outcome)
	assert.Equal(t, schedule.AvailabilityLimited, day.Availability)

	_, days := store.Snapshot()
	require.Contains(t, days, target.Key())
	assert.Equal(t, 4, days[target.Key()].CurrentRequests)
	assert.Len(t, fetcher.months(), 1, "refresh does not refetch the month")
}

func TestRefreshDate_WithoutDivision_Exhausted(t *testing.T) {
	fetcher := &fakeFetcher{}
	store, _ := newTestStore(t, fetcher)

	_, outcome := store.RefreshDate(context.Background(), dates.New(2026, time.March, 1))
	assert.Equal(t, calendar.OutcomeExhausted, outcome)
}

// =============================================================================
// TEARDOWN TESTS
// =============================================================================

func TestClose_DiscardsPendingDebounce(t *testing.T) {
	// GIVEN: A month request still inside the debounce window
	// WHEN: The store is closed before the timer's fetch takes hold
	// THEN: No fetch runs and nothing commits, even for later requests

	fetcher := &fakeFetcher{}
	store, updates := newTestStore(t, fetcher)
	store.SetDivision("division-east")

	store.RequestMonth(month(2026, time.March))
	store.Close()
	store.RequestMonth(month(2026, time.April))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, fetcher.months(), "no fetch starts after teardown")
	select {
	case m := <-updates:
		t.Fatalf("committed %v after close", m)
	default:
	}
	_, days := store.Snapshot()
	assert.Empty(t, days)
}

func TestClose_DiscardsInFlightResult(t *testing.T) {
	// GIVEN: A fetch blocked mid-flight
	// WHEN: The store is closed, then the fetch completes
	// THEN: The result is discarded, never committed post-teardown

	gate := make(chan struct{})
	fetcher := &fakeFetcher{gate: gate}
	store, updates := newTestStore(t, fetcher)
	store.SetDivision("division-east")

	store.RequestMonth(month(2026, time.March))
	require.Eventually(t, func() bool { return len(fetcher.months()) == 1 },
		2*time.Second, 5*time.Millisecond, "march fetch should start")

	store.Close()
	fetcher.mu.Lock()
	fetcher.gate = nil
	fetcher.mu.Unlock()
	close(gate)

	select {
	case m := <-updates:
		t.Fatalf("committed %v after close", m)
	case <-time.After(100 * time.Millisecond):
	}
	_, days := store.Snapshot()
	assert.Empty(t, days)
}

// =============================================================================
// ACTION GUARD TESTS
// =============================================================================

func TestBeginAction_BlocksConcurrentDuplicates(t *testing.T) {
	fetcher := &fakeFetcher{}
	store, _ := newTestStore(t, fetcher)

	id := schedule.RequestID("req-1")
	assert.True(t, store.BeginAction(id))
	assert.False(t, store.BeginAction(id), "second begin while in flight")

	store.EndAction(id)
	assert.True(t, store.BeginAction(id), "released after EndAction")

	// Independent ids never contend.
	assert.True(t, store.BeginAction(schedule.RequestID("req-2")))
}
