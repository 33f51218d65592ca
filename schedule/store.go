/*
store.go - Persistence interfaces for the scheduling core

PURPOSE:
  Defines the boundary between the lifecycle engine and the backing
  store. The store is the true arbiter of race outcomes: it assigns
  requestedAt at insert time, enforces the per-member-per-date
  uniqueness invariant atomically, and re-validates slot counts inside
  the same transaction as the transition that depends on them.

KEY INTERFACES:
  RequestStore:    LeaveRequest rows (insert/get/update/queries)
  AllotmentStore:  maxAllotment per (division, date)
  MemberDirectory: read-only view of directory fields
  Store:           the three above, as one transactional scope
  TxStore:         Store with WithTx for atomic multi-row transitions
  AuditLog:        append-only record of who did what when

ROW SHAPES:
  Only the explicit record types from types.go cross this boundary.
  Implementations validate and convert on ingress; raw untyped rows
  never reach the lifecycle engine.

IMPLEMENTATIONS:
  - store/sqlite: production store
  - schedule/memory.go: in-memory store for tests
*/
package schedule

import (
	"context"
	"time"

	"github.com/warp/leave-scheduler/dates"
)

// =============================================================================
// REQUEST STORE
// =============================================================================

// RequestStore persists LeaveRequest rows.
//
// Insert assigns the ID and RequestedAt server-side and enforces the
// uniqueness invariant: at most one non-cancelled request per
// (member, date). A violation returns a *DuplicateRequestError.
type RequestStore interface {
	Insert(ctx context.Context, req *LeaveRequest) (*LeaveRequest, error)

	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id RequestID) (*LeaveRequest, error)

	// Update replaces the mutable fields (status, respondedAt,
	// waitlistPosition, paidInLieu, denialReason) of an existing row.
	Update(ctx context.Context, req *LeaveRequest) error

	// Delete hard-removes a row. Only the owner's cancellation of a
	// still-pending request uses this; every other termination is a
	// soft status change preserving audit history.
	Delete(ctx context.Context, id RequestID) error

	// ByMember returns all of a member's requests, cancelled included,
	// ordered by RequestedAt.
	ByMember(ctx context.Context, memberID MemberID) ([]*LeaveRequest, error)

	// ByDate returns all non-cancelled requests for a division-date,
	// ordered by RequestedAt.
	ByDate(ctx context.Context, division string, date dates.Date) ([]*LeaveRequest, error)

	// CountOccupied returns how many requests occupy a slot on the date
	// (status pending, approved, or cancellation_pending).
	CountOccupied(ctx context.Context, division string, date dates.Date) (int, error)

	// Waitlist returns the waitlisted requests for a division-date in
	// FIFO order by RequestedAt.
	Waitlist(ctx context.Context, division string, date dates.Date) ([]*LeaveRequest, error)

	// OccupiedCounts returns occupied-slot counts for every date of the
	// month that has at least one occupying request, keyed by date key.
	OccupiedCounts(ctx context.Context, division string, month dates.Month) (map[string]int, error)
}

// =============================================================================
// ALLOTMENT STORE
// =============================================================================

// AllotmentStore persists administrator-set slot capacity.
// Dates with no configured allotment are absent (zero capacity to
// consumers).
type AllotmentStore interface {
	// MaxFor returns (max, true) when configured, (0, false) otherwise.
	MaxFor(ctx context.Context, division string, date dates.Date) (int, bool, error)

	// SetMax configures capacity for a division-date. Administrator-only;
	// the permission check happens at the API boundary.
	SetMax(ctx context.Context, division string, date dates.Date, max int) error

	// MonthMax returns configured capacities for the month, keyed by
	// date key. Unconfigured dates are absent.
	MonthMax(ctx context.Context, division string, month dates.Month) (map[string]int, error)
}

// =============================================================================
// MEMBER DIRECTORY - External collaborator contract
// =============================================================================

// MemberDirectory supplies the directory fields the core reads.
// Returns ErrNotFound for unknown members.
type MemberDirectory interface {
	Member(ctx context.Context, id MemberID) (*Member, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// Store is one transactional scope over all persistence concerns.
type Store interface {
	RequestStore
	AllotmentStore
	MemberDirectory
}

// TxStore wraps Store with transaction support. Every lifecycle
// transition runs as a single atomic read-modify-write via WithTx:
// if fn returns an error the transaction rolls back.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Append-only, separate from request rows
// =============================================================================

type AuditAction string

const (
	AuditSubmitted           AuditAction = "request_submitted"
	AuditWaitlisted          AuditAction = "request_waitlisted"
	AuditCancelled           AuditAction = "request_cancelled"
	AuditCancellationPending AuditAction = "cancellation_requested"
	AuditApproved            AuditAction = "request_approved"
	AuditDenied              AuditAction = "request_denied"
	AuditPaidInLieu          AuditAction = "paid_in_lieu"
	AuditPromoted            AuditAction = "waitlist_promoted"
	AuditAllotmentSet        AuditAction = "allotment_set"
)

type AuditEntry struct {
	ID        string
	At        time.Time
	ActorID   string
	Action    AuditAction
	RequestID RequestID
	Division  string
	DateKey   string
	Detail    string
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
}
