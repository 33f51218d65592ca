/*
Package schedule implements the allotment/waitlist scheduling core.

PURPOSE:
  This package contains the domain types and the lifecycle engine that
  decide, for a given division and calendar date, how many leave slots
  exist, who holds them, in what order, and what happens when slots are
  full, cancelled, or contested.

KEY CONCEPTS IN THIS FILE (types.go):
  - Member:       directory fields the core reads (never writes)
  - LeaveRequest: the central entity, one member/date/type
  - Allotment:    administrator-set slot capacity per (division, date)
  - DayAllotment: read-only projection with an availability class
  - TimeStats:    per-member aggregate counts per leave type

OCCUPANCY RULE:
  A date's occupied-slot count equals the number of requests against it
  with status pending, approved, or cancellation_pending. Waitlisted
  requests hold an ordered position but never count against capacity. A
  cancellation_pending request keeps its slot until an administrator
  confirms.

SEE ALSO:
  - engine.go: State machine and operations
  - stats.go:  Aggregation fold
  - store.go:  Persistence interfaces
*/
package schedule

import (
	"time"

	"github.com/warp/leave-scheduler/dates"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

type LeaveType string

const (
	LeavePLD LeaveType = "pld" // personal leave day (seniority-tiered)
	LeaveSDV LeaveType = "sdv" // single-day vacation (admin-assigned)
)

// Valid reports whether t is a known leave type.
func (t LeaveType) Valid() bool { return t == LeavePLD || t == LeaveSDV }

// =============================================================================
// REQUEST STATUS
// =============================================================================

type RequestStatus string

const (
	StatusPending             RequestStatus = "pending"
	StatusApproved            RequestStatus = "approved"
	StatusDenied              RequestStatus = "denied"
	StatusWaitlisted          RequestStatus = "waitlisted"
	StatusCancelled           RequestStatus = "cancelled"
	StatusCancellationPending RequestStatus = "cancellation_pending"
)

// OccupiesSlot reports whether a request in this status counts against
// maxAllotment. cancellation_pending still occupies: the member cannot
// reclaim the day before an administrator acts.
func (s RequestStatus) OccupiesSlot() bool {
	return s == StatusPending || s == StatusApproved || s == StatusCancellationPending
}

// Active reports whether the request blocks another request by the same
// member on the same date. Only cancelled requests are inert.
func (s RequestStatus) Active() bool {
	return s != StatusCancelled
}

// Terminal reports whether no further transition is possible.
func (s RequestStatus) Terminal() bool {
	return s == StatusDenied || s == StatusCancelled
}

// =============================================================================
// MEMBER - Directory fields (owned externally, read-only here)
// =============================================================================

type MemberID string

// Member carries the directory fields the scheduling core reads.
// The membership directory owns these rows; the core never writes them.
type Member struct {
	ID          MemberID
	Division    string
	HireDate    *dates.Date // nil when unknown
	PLDOverride *int        // nil = use tier schedule
	SDVDays     int         // admin-assigned, clamped [0,12] at write
}

// =============================================================================
// LEAVE REQUEST - The central entity
// =============================================================================

type RequestID string

type LeaveRequest struct {
	ID          RequestID
	MemberID    MemberID
	Division    string
	RequestDate dates.Date
	Type        LeaveType
	Status      RequestStatus

	// RequestedAt is server-assigned at insert time and is the sole
	// ordering authority for slot ties and waitlist promotion.
	RequestedAt time.Time
	RespondedAt *time.Time

	// WaitlistPosition is meaningful only while Status is waitlisted.
	// Position 1 is next in line.
	WaitlistPosition *int

	// PaidInLieu is settable only while approved.
	PaidInLieu bool

	// DenialReason is set when Status is denied. Never empty for denied.
	DenialReason *string
}

// =============================================================================
// ALLOTMENT - Slot capacity per (division, date)
// =============================================================================

// Allotment is the administrator-set capacity for one division-date.
// CurrentRequests is always derived from the request table, never stored.
type Allotment struct {
	Division        string
	Date            dates.Date
	MaxAllotment    int
	CurrentRequests int
}

// Availability classifies a date for the calendar view.
type Availability string

const (
	AvailabilityAvailable  Availability = "available"
	AvailabilityLimited    Availability = "limited"
	AvailabilityFull       Availability = "full"
	AvailabilityRestricted Availability = "restricted"
)

// DayAllotment is the read-only projection served to calendar consumers.
type DayAllotment struct {
	Division        string
	Date            dates.Date
	MaxAllotment    int
	CurrentRequests int
	Availability    Availability
}

// =============================================================================
// TIME STATS - Per-member aggregate view
// =============================================================================

// TypeStats are the counts for a single leave type.
type TypeStats struct {
	Total      int // entitlement
	Requested  int // pending
	Waitlisted int
	Approved   int // includes paid-in-lieu
	PaidInLieu int
	Available  int // total - approved - requested - waitlisted, floored at 0
}

// TimeStats aggregates a member's position across both leave types.
type TimeStats struct {
	MemberID MemberID
	PLD      TypeStats
	SDV      TypeStats
}
