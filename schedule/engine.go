/*
engine.go - Request lifecycle state machine

PURPOSE:
  Governs an individual leave request from creation through approval,
  denial, cancellation, waitlisting, and payment-in-lieu.

STATE MACHINE:
  pending    -> approved | denied | cancelled (hard delete by owner)
  approved   -> cancellation_pending | cancelled
  waitlisted -> pending (FIFO promotion) | cancelled
  cancellation_pending -> cancelled (admin confirm) | approved (admin reject)
  denied, cancelled are terminal

SLOT ACCOUNTING:
  pending, approved, and cancellation_pending occupy a slot. Waitlisted
  requests hold an ordered position but never count against capacity.
  When an occupying request leaves (hard cancel, deny, confirmed
  cancellation), promotion of the waitlist head runs synchronously
  inside the same store transaction, FIFO by RequestedAt.

TIE-BREAKS:
  RequestedAt is server-assigned at insert time. When two members race
  for the last slot, the insert that reaches the store first wins it;
  the later arrival is waitlisted at position 1.

SEE ALSO:
  - store.go:  Transactional store contract the engine relies on
  - stats.go:  Aggregate view recomputed from the request set
*/
package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-scheduler/dates"
	"github.com/warp/leave-scheduler/entitlement"
)

// limitedThreshold is the occupancy ratio at which a date reads as
// "limited". Compared with decimals so 7/10 slots is exactly limited.
var limitedThreshold = decimal.NewFromFloat(0.7)

// Engine orchestrates lifecycle transitions against a transactional store.
type Engine struct {
	Store TxStore
	Audit AuditLog // optional

	// Clock is overridable for tests. Defaults to time.Now.
	Clock func() time.Time
}

func NewEngine(store TxStore, audit AuditLog) *Engine {
	return &Engine{Store: store, Audit: audit, Clock: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *Engine) today() dates.Date { return dates.Normalize(e.now()) }

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Classify derives the availability class for a date.
// The minimum-lead-time restriction overrides everything: a date that can
// no longer be requested is restricted regardless of remaining capacity.
func Classify(maxAllotment, currentRequests int, date, today dates.Date) Availability {
	if dates.Evaluate(date, today).TooEarly {
		return AvailabilityRestricted
	}
	if currentRequests >= maxAllotment {
		return AvailabilityFull
	}
	occupied := decimal.NewFromInt(int64(currentRequests))
	capacity := decimal.NewFromInt(int64(maxAllotment))
	if occupied.GreaterThanOrEqual(capacity.Mul(limitedThreshold)) {
		return AvailabilityLimited
	}
	return AvailabilityAvailable
}

// Eligibility evaluates the request window for a date. Read-only; never
// gates fetches.
func (e *Engine) Eligibility(date dates.Date) dates.Eligibility {
	return dates.Evaluate(date, e.today())
}

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitRequest creates a leave request for the member.
//
// Preconditions checked inside one transaction: the date passes the
// eligibility window, no non-cancelled request exists for (member, date),
// and the member has remaining entitlement of the requested type. If the
// division is at capacity on the date the request is created waitlisted
// with the next position; otherwise pending.
func (e *Engine) SubmitRequest(ctx context.Context, memberID MemberID, date dates.Date, leaveType LeaveType, division string) (*LeaveRequest, error) {
	if !leaveType.Valid() {
		return nil, fmt.Errorf("unknown leave type %q", leaveType)
	}
	if elig := dates.Evaluate(date, e.today()); !elig.Eligible {
		return nil, ErrIneligibleDate
	}

	var created *LeaveRequest
	var trail []AuditEntry
	err := e.Store.WithTx(ctx, func(s Store) error {
		member, err := s.Member(ctx, memberID)
		if err != nil {
			return err
		}

		existing, err := s.ByMember(ctx, memberID)
		if err != nil {
			return err
		}
		for _, r := range existing {
			if r.Status.Active() && r.RequestDate.Equal(date) {
				return &DuplicateRequestError{MemberID: memberID, Date: date, ExistingID: r.ID}
			}
		}

		stats := ComputeStats(member, existing, e.today())
		remaining := stats.PLD.Available
		total := stats.PLD.Total
		if leaveType == LeaveSDV {
			remaining = stats.SDV.Available
			total = stats.SDV.Total
		}
		if remaining <= 0 {
			return &NoEntitlementError{MemberID: memberID, Type: leaveType, Total: total}
		}

		max, _, err := s.MaxFor(ctx, division, date)
		if err != nil {
			return err
		}
		occupied, err := s.CountOccupied(ctx, division, date)
		if err != nil {
			return err
		}

		req := &LeaveRequest{
			ID:          RequestID(uuid.NewString()),
			MemberID:    memberID,
			Division:    division,
			RequestDate: date,
			Type:        leaveType,
			Status:      StatusPending,
		}
		action := AuditSubmitted
		if occupied >= max {
			wl, err := s.Waitlist(ctx, division, date)
			if err != nil {
				return err
			}
			pos := len(wl) + 1
			req.Status = StatusWaitlisted
			req.WaitlistPosition = &pos
			action = AuditWaitlisted
		}

		created, err = s.Insert(ctx, req)
		if err != nil {
			return err
		}
		e.record(&trail, string(memberID), action, created)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.flush(ctx, trail)
	return created, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// CancelRequest cancels the member's own request.
//
// pending:    hard-removed (no administrator ever acted on it) and the
//             freed slot triggers FIFO promotion.
// waitlisted: soft-cancelled; positions behind it shift down by one.
// approved:   becomes cancellation_pending. The slot is NOT released
//             until an administrator confirms, so the member cannot
//             claim the day back unilaterally.
// Repeating the call while cancellation_pending is a no-op success.
func (e *Engine) CancelRequest(ctx context.Context, requestID RequestID, byMemberID MemberID) error {
	var trail []AuditEntry
	err := e.Store.WithTx(ctx, func(s Store) error {
		req, err := s.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.MemberID != byMemberID {
			return ErrUnauthorized
		}

		switch req.Status {
		case StatusPending:
			if err := s.Delete(ctx, requestID); err != nil {
				return err
			}
			e.record(&trail, string(byMemberID), AuditCancelled, req)
			return e.promote(ctx, s, req.Division, req.RequestDate, &trail)

		case StatusWaitlisted:
			now := e.now()
			req.Status = StatusCancelled
			req.WaitlistPosition = nil
			req.RespondedAt = &now
			if err := s.Update(ctx, req); err != nil {
				return err
			}
			if err := e.renumberWaitlist(ctx, s, req.Division, req.RequestDate); err != nil {
				return err
			}
			e.record(&trail, string(byMemberID), AuditCancelled, req)
			return nil

		case StatusApproved:
			req.Status = StatusCancellationPending
			if err := s.Update(ctx, req); err != nil {
				return err
			}
			e.record(&trail, string(byMemberID), AuditCancellationPending, req)
			return nil

		case StatusCancellationPending:
			// Already awaiting administrative confirmation.
			return nil

		default:
			return &TransitionError{RequestID: requestID, From: req.Status, Attempted: "cancel"}
		}
	})
	if err != nil {
		return err
	}
	e.flush(ctx, trail)
	return nil
}

// ConfirmCancellation completes a member-initiated cancellation of an
// approved request. Administrator-only; the freed slot triggers promotion.
func (e *Engine) ConfirmCancellation(ctx context.Context, requestID RequestID, actorID string) error {
	var trail []AuditEntry
	err := e.Store.WithTx(ctx, func(s Store) error {
		req, err := s.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != StatusCancellationPending {
			return &TransitionError{RequestID: requestID, From: req.Status, Attempted: "confirm cancellation"}
		}
		now := e.now()
		req.Status = StatusCancelled
		req.RespondedAt = &now
		if err := s.Update(ctx, req); err != nil {
			return err
		}
		e.record(&trail, actorID, AuditCancelled, req)
		return e.promote(ctx, s, req.Division, req.RequestDate, &trail)
	})
	if err != nil {
		return err
	}
	e.flush(ctx, trail)
	return nil
}

// RejectCancellation returns a cancellation_pending request to approved.
func (e *Engine) RejectCancellation(ctx context.Context, requestID RequestID, actorID string) error {
	var trail []AuditEntry
	err := e.Store.WithTx(ctx, func(s Store) error {
		req, err := s.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != StatusCancellationPending {
			return &TransitionError{RequestID: requestID, From: req.Status, Attempted: "reject cancellation"}
		}
		req.Status = StatusApproved
		if err := s.Update(ctx, req); err != nil {
			return err
		}
		e.record(&trail, actorID, AuditApproved, req)
		return nil
	})
	if err != nil {
		return err
	}
	e.flush(ctx, trail)
	return nil
}

// =============================================================================
// APPROVE / DENY
// =============================================================================

// ApproveRequest transitions pending -> approved. The slot count is
// re-validated inside the transaction: approving from stale client state
// when capacity has since shrunk fails with SlotFull, never silently.
func (e *Engine) ApproveRequest(ctx context.Context, requestID RequestID, approverID string) error {
	var trail []AuditEntry
	err := e.Store.WithTx(ctx, func(s Store) error {
		req, err := s.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return &TransitionError{RequestID: requestID, From: req.Status, Attempted: "approve"}
		}

		max, _, err := s.MaxFor(ctx, req.Division, req.RequestDate)
		if err != nil {
			return err
		}
		occupied, err := s.CountOccupied(ctx, req.Division, req.RequestDate)
		if err != nil {
			return err
		}
		// The pending request itself occupies one of the counted slots.
		if occupied-1 >= max {
			return &SlotFullError{Division: req.Division, Date: req.RequestDate, Max: max}
		}

		now := e.now()
		req.Status = StatusApproved
		req.RespondedAt = &now
		if err := s.Update(ctx, req); err != nil {
			return err
		}
		e.record(&trail, approverID, AuditApproved, req)
		return nil
	})
	if err != nil {
		return err
	}
	e.flush(ctx, trail)
	return nil
}

// DenyRequest transitions pending -> denied. A non-empty reason is
// required. The freed slot triggers promotion.
func (e *Engine) DenyRequest(ctx context.Context, requestID RequestID, reason, denierID string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	var trail []AuditEntry
	err := e.Store.WithTx(ctx, func(s Store) error {
		req, err := s.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return &TransitionError{RequestID: requestID, From: req.Status, Attempted: "deny"}
		}
		now := e.now()
		req.Status = StatusDenied
		req.RespondedAt = &now
		req.DenialReason = &reason
		if err := s.Update(ctx, req); err != nil {
			return err
		}
		e.record(&trail, denierID, AuditDenied, req)
		return e.promote(ctx, s, req.Division, req.RequestDate, &trail)
	})
	if err != nil {
		return err
	}
	e.flush(ctx, trail)
	return nil
}

// =============================================================================
// PAID IN LIEU
// =============================================================================

// RequestPaidInLieu marks an approved request as paid in lieu of the day
// off. Repeating the call once set is a no-op success, not an error.
func (e *Engine) RequestPaidInLieu(ctx context.Context, requestID RequestID, byMemberID MemberID) error {
	var trail []AuditEntry
	err := e.Store.WithTx(ctx, func(s Store) error {
		req, err := s.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.MemberID != byMemberID {
			return ErrUnauthorized
		}
		if req.Status != StatusApproved {
			return &TransitionError{RequestID: requestID, From: req.Status, Attempted: "pay in lieu"}
		}
		if req.PaidInLieu {
			return nil
		}
		req.PaidInLieu = true
		if err := s.Update(ctx, req); err != nil {
			return err
		}
		e.record(&trail, string(byMemberID), AuditPaidInLieu, req)
		return nil
	})
	if err != nil {
		return err
	}
	e.flush(ctx, trail)
	return nil
}

// =============================================================================
// READS
// =============================================================================

// DayFor builds the calendar projection for a single division-date.
// Dates with no configured allotment report zero capacity.
func (e *Engine) DayFor(ctx context.Context, division string, date dates.Date) (*DayAllotment, error) {
	var day *DayAllotment
	err := e.Store.WithTx(ctx, func(s Store) error {
		max, _, err := s.MaxFor(ctx, division, date)
		if err != nil {
			return err
		}
		occupied, err := s.CountOccupied(ctx, division, date)
		if err != nil {
			return err
		}
		day = &DayAllotment{
			Division:        division,
			Date:            date,
			MaxAllotment:    max,
			CurrentRequests: occupied,
			Availability:    Classify(max, occupied, date, e.today()),
		}
		return nil
	})
	return day, err
}

// MonthFor builds the calendar projection for every configured date of
// the month. Unconfigured dates are absent from the map.
func (e *Engine) MonthFor(ctx context.Context, division string, month dates.Month) (map[string]*DayAllotment, error) {
	out := make(map[string]*DayAllotment)
	err := e.Store.WithTx(ctx, func(s Store) error {
		maxes, err := s.MonthMax(ctx, division, month)
		if err != nil {
			return err
		}
		counts, err := s.OccupiedCounts(ctx, division, month)
		if err != nil {
			return err
		}
		today := e.today()
		for key, max := range maxes {
			date, err := dates.FromKey(key)
			if err != nil {
				continue
			}
			occupied := counts[key]
			out[key] = &DayAllotment{
				Division:        division,
				Date:            date,
				MaxAllotment:    max,
				CurrentRequests: occupied,
				Availability:    Classify(max, occupied, date, today),
			}
		}
		return nil
	})
	return out, err
}

// Stats recomputes the member's aggregate view from the full request set.
func (e *Engine) Stats(ctx context.Context, memberID MemberID) (*TimeStats, error) {
	var stats TimeStats
	err := e.Store.WithTx(ctx, func(s Store) error {
		member, err := s.Member(ctx, memberID)
		if err != nil {
			return err
		}
		requests, err := s.ByMember(ctx, memberID)
		if err != nil {
			return err
		}
		stats = ComputeStats(member, requests, e.today())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// PendingForDivision lists requests awaiting administrative action.
func (e *Engine) PendingForDivision(ctx context.Context, division string, month dates.Month) ([]*LeaveRequest, error) {
	var pending []*LeaveRequest
	err := e.Store.WithTx(ctx, func(s Store) error {
		for _, day := range month.Days() {
			reqs, err := s.ByDate(ctx, division, day)
			if err != nil {
				return err
			}
			for _, r := range reqs {
				if r.Status == StatusPending || r.Status == StatusCancellationPending {
					pending = append(pending, r)
				}
			}
		}
		return nil
	})
	return pending, err
}

// =============================================================================
// WAITLIST MAINTENANCE
// =============================================================================

// promote fills freed slots from the waitlist head, FIFO by RequestedAt,
// within the caller's transaction. Promoted requests become pending (they
// begin occupying the slot but still need administrative approval).
func (e *Engine) promote(ctx context.Context, s Store, division string, date dates.Date, trail *[]AuditEntry) error {
	max, _, err := s.MaxFor(ctx, division, date)
	if err != nil {
		return err
	}
	occupied, err := s.CountOccupied(ctx, division, date)
	if err != nil {
		return err
	}
	for occupied < max {
		wl, err := s.Waitlist(ctx, division, date)
		if err != nil {
			return err
		}
		if len(wl) == 0 {
			break
		}
		head := wl[0]
		head.Status = StatusPending
		head.WaitlistPosition = nil
		if err := s.Update(ctx, head); err != nil {
			return err
		}
		e.record(trail, "system", AuditPromoted, head)
		occupied++
	}
	return e.renumberWaitlist(ctx, s, division, date)
}

// PromoteEligible fills any free slots on the date from the waitlist, in
// its own transaction. Normal operation promotes inside the freeing
// transition; this entry point repairs missed promotions (crash between
// cancellation and promotion, or capacity raised by an administrator).
func (e *Engine) PromoteEligible(ctx context.Context, division string, date dates.Date) error {
	var trail []AuditEntry
	err := e.Store.WithTx(ctx, func(s Store) error {
		return e.promote(ctx, s, division, date, &trail)
	})
	if err != nil {
		return err
	}
	e.flush(ctx, trail)
	return nil
}

// renumberWaitlist rewrites positions 1..n in RequestedAt order after a
// removal or promotion.
func (e *Engine) renumberWaitlist(ctx context.Context, s Store, division string, date dates.Date) error {
	wl, err := s.Waitlist(ctx, division, date)
	if err != nil {
		return err
	}
	for i, r := range wl {
		pos := i + 1
		if r.WaitlistPosition != nil && *r.WaitlistPosition == pos {
			continue
		}
		r.WaitlistPosition = &pos
		if err := s.Update(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// record buffers an audit entry describing a transition in progress.
// Entries are flushed after the surrounding transaction commits, so the
// audit write never contends with the transaction's connection and a
// rolled-back transition leaves no trace.
func (e *Engine) record(trail *[]AuditEntry, actorID string, action AuditAction, req *LeaveRequest) {
	if e.Audit == nil {
		return
	}
	*trail = append(*trail, AuditEntry{
		ID:        uuid.NewString(),
		At:        e.now(),
		ActorID:   actorID,
		Action:    action,
		RequestID: req.ID,
		Division:  req.Division,
		DateKey:   req.RequestDate.Key(),
	})
}

func (e *Engine) flush(ctx context.Context, trail []AuditEntry) {
	if e.Audit == nil {
		return
	}
	for _, entry := range trail {
		// Audit failures never fail the transition they describe.
		_ = e.Audit.AppendAudit(ctx, entry)
	}
}

// Entitlement reports the member's total days for a leave type as of today.
func (e *Engine) Entitlement(member *Member, leaveType LeaveType) int {
	return totalFor(member, leaveType, e.today())
}

func totalFor(member *Member, leaveType LeaveType, today dates.Date) int {
	switch leaveType {
	case LeavePLD:
		return entitlement.PLD(member.HireDate, member.PLDOverride, today)
	case LeaveSDV:
		return entitlement.SDV(member.SDVDays)
	default:
		return 0
	}
}
