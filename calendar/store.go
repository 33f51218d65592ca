/*
Package calendar maintains the client-facing view of month allotments.

PURPOSE:
  A UI navigating between months fires bursts of fetches. This store
  coalesces them: requests are debounced, a newer fetch supersedes and
  cancels any in-flight fetch for the scope, and only the last-issued
  fetch's result is ever committed. Fetches issued before a division
  context exists are deferred (collapsing to the latest) and replayed
  once the context arrives.

OWNERSHIP:
  The store owns its debounce timer, cancellation token, and in-flight
  trackers as struct fields. Nothing lives at package scope, so each
  session (and each test) constructs an isolated store.

STATE DISCIPLINE:
  The month's day map is a single mutable resource replaced wholesale on
  each successful fetch. Partial merges are avoided so a reader never
  observes a mixed-generation view. The single-date refresh is the one
  sanctioned partial update: it replaces exactly one entry after a
  mutation known to touch only that date.

RETRY:
  Reads retry according to an explicit RetryPolicy value and report a
  typed outcome (succeeded or exhausted). An exhausted month fetch is
  surfaced through the OnError observer so a consumer can tell "no data
  for this month" apart from "backing store down". Mutations are never
  retried here; duplicate side effects are worse than a surfaced error.

SEE ALSO:
  - schedule/engine.go: The server-side source these fetches read
*/
package calendar

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/warp/leave-scheduler/dates"
	"github.com/warp/leave-scheduler/schedule"
)

// DefaultDebounce is the coalescing delay for month fetches.
const DefaultDebounce = 300 * time.Millisecond

// =============================================================================
// FETCHER - The read side the store pulls from
// =============================================================================

// Fetcher reads allotment projections. Implementations wrap the engine
// directly (in-process) or an HTTP client (remote).
type Fetcher interface {
	FetchMonth(ctx context.Context, division string, month dates.Month) (map[string]*schedule.DayAllotment, error)
	FetchDate(ctx context.Context, division string, date dates.Date) (*schedule.DayAllotment, error)
}

// =============================================================================
// RETRY POLICY
// =============================================================================

// RetryPolicy bounds automatic retries for idempotent reads.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetry retries a failed read once.
var DefaultRetry = RetryPolicy{MaxAttempts: 2, Delay: 250 * time.Millisecond}

// Outcome is the typed result of a retried operation.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeExhausted
	OutcomeSuperseded
)

// =============================================================================
// STORE
// =============================================================================

// Store is the per-session month view. Construct with New; one store per
// session keeps tests hermetic.
type Store struct {
	mu       sync.Mutex
	fetcher  Fetcher
	debounce time.Duration
	retry    RetryPolicy

	division string       // empty until SetDivision
	deferred *dates.Month // latest request queued while no division

	month dates.Month
	days  map[string]*schedule.DayAllotment

	gen    int // fetch generation; results from older generations are discarded
	timer  *time.Timer
	cancel context.CancelFunc
	closed bool

	inflight map[schedule.RequestID]bool

	// OnUpdate, when set, observes each committed view. Called without
	// the store lock held.
	OnUpdate func(month dates.Month, days map[string]*schedule.DayAllotment)

	// OnError, when set, observes a month fetch that exhausted its
	// retries. Superseded fetches stay silent; only genuine failures
	// reach the observer. Called without the store lock held.
	OnError func(month dates.Month, outcome Outcome, err error)
}

func New(fetcher Fetcher, debounce time.Duration, retry RetryPolicy) *Store {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetry
	}
	return &Store{
		fetcher:  fetcher,
		debounce: debounce,
		retry:    retry,
		days:     make(map[string]*schedule.DayAllotment),
		inflight: make(map[schedule.RequestID]bool),
	}
}

// SetDivision establishes the session's division context and replays the
// most recent deferred request, if any.
func (s *Store) SetDivision(division string) {
	s.mu.Lock()
	s.division = division
	replay := s.deferred
	s.deferred = nil
	s.mu.Unlock()

	if replay != nil {
		s.startFetch(*replay)
	}
}

// RequestMonth asks for a month's allotments. Calls within the debounce
// window collapse; only the last requested month is fetched. Before a
// division context exists the request is deferred, not dropped.
func (s *Store) RequestMonth(month dates.Month) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.division == "" {
		s.deferred = &month
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() { s.startFetch(month) })
	s.mu.Unlock()
}

// startFetch begins a fetch that supersedes any in-flight one. A timer
// that fires after Close finds the closed flag and does nothing.
func (s *Store) startFetch(month dates.Month) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.gen++
	gen := s.gen
	division := s.division
	s.mu.Unlock()

	go s.runFetch(ctx, gen, division, month)
}

func (s *Store) runFetch(ctx context.Context, gen int, division string, month dates.Month) {
	days, outcome, err := s.fetchMonthWithRetry(ctx, division, month)
	if outcome != OutcomeSucceeded {
		if outcome == OutcomeExhausted {
			s.mu.Lock()
			stale := gen != s.gen || s.closed
			ecb := s.OnError
			s.mu.Unlock()
			if ecb != nil && !stale {
				ecb(month, outcome, err)
			}
		}
		return
	}

	s.mu.Lock()
	if gen != s.gen || s.closed {
		// A newer fetch started or the view was torn down; this result
		// must not overwrite state.
		s.mu.Unlock()
		return
	}
	s.month = month
	s.days = days
	cb := s.OnUpdate
	s.mu.Unlock()

	if cb != nil {
		cb(month, days)
	}
}

func (s *Store) fetchMonthWithRetry(ctx context.Context, division string, month dates.Month) (map[string]*schedule.DayAllotment, Outcome, error) {
	var lastErr error
	for attempt := 0; attempt < s.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, OutcomeSuperseded, ctx.Err()
			case <-time.After(s.retry.Delay):
			}
		}
		days, err := s.fetcher.FetchMonth(ctx, division, month)
		if err == nil {
			return days, OutcomeSucceeded, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, OutcomeSuperseded, err
		}
		lastErr = err
		if !schedule.IsRetryable(err) {
			break
		}
	}
	return nil, OutcomeExhausted, lastErr
}

// RefreshDate re-fetches exactly one date and replaces its entry,
// avoiding a full month round-trip after a single-date mutation.
// Returns the refreshed projection.
func (s *Store) RefreshDate(ctx context.Context, date dates.Date) (*schedule.DayAllotment, Outcome) {
	s.mu.Lock()
	division := s.division
	month := s.month
	s.mu.Unlock()
	if division == "" {
		return nil, OutcomeExhausted
	}

	var day *schedule.DayAllotment
	var err error
	for attempt := 0; attempt < s.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, OutcomeSuperseded
			case <-time.After(s.retry.Delay):
			}
		}
		day, err = s.fetcher.FetchDate(ctx, division, date)
		if err == nil {
			break
		}
		if !schedule.IsRetryable(err) {
			return nil, OutcomeExhausted
		}
	}
	if err != nil {
		return nil, OutcomeExhausted
	}

	s.mu.Lock()
	if dates.MonthOf(date) == month && s.days != nil {
		s.days[date.Key()] = day
	}
	s.mu.Unlock()
	return day, OutcomeSucceeded
}

// Snapshot returns the committed view. The map is a copy; mutating it
// does not affect the store.
func (s *Store) Snapshot() (dates.Month, map[string]*schedule.DayAllotment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*schedule.DayAllotment, len(s.days))
	for k, v := range s.days {
		cp := *v
		out[k] = &cp
	}
	return s.month, out
}

// =============================================================================
// IN-FLIGHT ACTION GUARD
// =============================================================================

// BeginAction marks a mutation in flight for a request id. It returns
// false while a previous action on the same id has not finished,
// preventing duplicate concurrent submits/cancels/approvals.
func (s *Store) BeginAction(id schedule.RequestID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[id] {
		return false
	}
	s.inflight[id] = true
	return true
}

// EndAction releases the guard.
func (s *Store) EndAction(id schedule.RequestID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

// Close cancels any in-flight fetch and stops the debounce timer. Used
// when the consuming view is torn down. A debounce timer that already
// fired but has not yet reached startFetch is stopped by the closed
// flag; nothing commits after Close.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++ // orphan any result still in flight
}
