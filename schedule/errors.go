/*
errors.go - Centralized error taxonomy for the scheduling core

PURPOSE:
  All error kinds in one place. Validation errors are detected
  client-side where possible, but the store layer re-validates and must
  surface the same kind when a stale client check was bypassed.

ERROR CATEGORIES:
  1. Validation errors - IneligibleDate, DuplicateRequest, NoEntitlement
  2. Conflict errors   - SlotFull (only authoritative at write time)
  3. Access errors     - Unauthorized, NotCancellable, InvalidTransition, NotFound
  4. Infrastructure    - StoreUnavailable (network/transaction failure)

USAGE:
  if errors.Is(err, schedule.ErrSlotFull) { ... }

  var dup *schedule.DuplicateRequestError
  if errors.As(err, &dup) { ... dup.ExistingID ... }
*/
package schedule

import (
	"errors"
	"fmt"

	"github.com/warp/leave-scheduler/dates"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrIneligibleDate is returned when the requested date fails the
	// eligibility window (too early or too late).
	ErrIneligibleDate = errors.New("date is outside the eligible request window")

	// ErrDuplicateRequest is returned when the member already has a
	// non-cancelled request for the same date.
	ErrDuplicateRequest = errors.New("duplicate request for date")

	// ErrNoEntitlement is returned when the member has zero remaining
	// days of the requested type.
	ErrNoEntitlement = errors.New("no remaining entitlement")

	// ErrSlotFull is returned when an approval races another client and
	// the slot count is already at capacity. Never silently retried.
	ErrSlotFull = errors.New("no slots remaining for date")

	// ErrUnauthorized is returned when the acting member does not own
	// the request (or lacks the required role).
	ErrUnauthorized = errors.New("not authorized for this request")

	// ErrNotCancellable is returned when cancelling a request that is
	// already denied or cancelled.
	ErrNotCancellable = errors.New("request is not cancellable")

	// ErrInvalidTransition is returned when a non-cancel operation
	// (approve, deny, pay-in-lieu, cancellation confirm/reject) finds
	// the request in a status that does not permit it.
	ErrInvalidTransition = errors.New("operation not allowed in current status")

	// ErrNotFound is returned when a referenced request does not exist.
	ErrNotFound = errors.New("request not found")

	// ErrReasonRequired is returned when a denial carries no reason.
	ErrReasonRequired = errors.New("denial requires a reason")

	// ErrStoreUnavailable wraps backing-store transport/transaction
	// failures. Reads may be retried once; mutations never are.
	ErrStoreUnavailable = errors.New("backing store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateRequestError identifies the conflicting request.
type DuplicateRequestError struct {
	MemberID   MemberID
	Date       dates.Date
	ExistingID RequestID
}

func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("member %s already has request %s for %s", e.MemberID, e.ExistingID, e.Date)
}

func (e *DuplicateRequestError) Unwrap() error { return ErrDuplicateRequest }

// NoEntitlementError reports the exhausted balance.
type NoEntitlementError struct {
	MemberID MemberID
	Type     LeaveType
	Total    int
}

func (e *NoEntitlementError) Error() string {
	return fmt.Sprintf("member %s has no remaining %s days (total %d)", e.MemberID, e.Type, e.Total)
}

func (e *NoEntitlementError) Unwrap() error { return ErrNoEntitlement }

// SlotFullError reports the capacity conflict.
type SlotFullError struct {
	Division string
	Date     dates.Date
	Max      int
}

func (e *SlotFullError) Error() string {
	return fmt.Sprintf("division %s is at capacity (%d) on %s", e.Division, e.Max, e.Date)
}

func (e *SlotFullError) Unwrap() error { return ErrSlotFull }

// TransitionError reports an illegal state-machine transition.
type TransitionError struct {
	RequestID RequestID
	From      RequestStatus
	Attempted string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s request %s in status %s", e.Attempted, e.RequestID, e.From)
}

// Unwrap surfaces the taxonomy kind for the attempted operation: an
// illegal cancel reads as ErrNotCancellable, everything else as
// ErrInvalidTransition, so the user message names the right action.
func (e *TransitionError) Unwrap() error {
	if e.Attempted == "cancel" {
		return ErrNotCancellable
	}
	return ErrInvalidTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation reports whether the error is due to invalid client input
// (fail fast; also re-validated server-side).
func IsValidation(err error) bool {
	return errors.Is(err, ErrIneligibleDate) ||
		errors.Is(err, ErrDuplicateRequest) ||
		errors.Is(err, ErrNoEntitlement) ||
		errors.Is(err, ErrReasonRequired)
}

// IsConflict reports whether the error is a write-time race outcome.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotFull) || errors.Is(err, ErrDuplicateRequest)
}

// IsRetryable reports whether a read might succeed on retry.
// Mutations are never auto-retried regardless of this.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// UserMessage maps every error kind to a distinct human-readable message.
// Unknown errors get a generic message; none are silently swallowed.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrIneligibleDate):
		return "That date cannot be requested right now: it is either less than 2 days away or more than 6 months out."
	case errors.Is(err, ErrDuplicateRequest):
		return "You already have a request for that date."
	case errors.Is(err, ErrNoEntitlement):
		return "You have no remaining days of that type."
	case errors.Is(err, ErrSlotFull):
		return "All slots for that date were taken before your request completed."
	case errors.Is(err, ErrUnauthorized):
		return "You are not allowed to act on this request."
	case errors.Is(err, ErrNotCancellable):
		return "This request can no longer be cancelled."
	case errors.Is(err, ErrInvalidTransition):
		return "This request is not in a state that allows that action."
	case errors.Is(err, ErrNotFound):
		return "That request could not be found."
	case errors.Is(err, ErrReasonRequired):
		return "A reason is required to deny a request."
	case errors.Is(err, ErrStoreUnavailable):
		return "The scheduling service is temporarily unavailable. Please try again."
	default:
		return "Something went wrong processing your request."
	}
}
