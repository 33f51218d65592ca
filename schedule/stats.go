/*
stats.go - Per-member aggregate statistics

PURPOSE:
  Derives the member's summary view (available / requested / waitlisted /
  approved / paid-in-lieu) by folding over the full request set. The fold
  is pure: no side effects, recomputed whenever the underlying set
  changes, never incrementally patched in a way that can drift from the
  source rows.

COUNTING RULES (per leave type, independently):
  requested  = count of pending
  waitlisted = count of waitlisted
  approved   = count of approved + cancellation_pending (the day is
               still an approved absence until an administrator confirms
               the cancellation)
  paidInLieu = approved AND paid-in-lieu flag set
  available  = max(0, total - approved - requested - waitlisted)
*/
package schedule

import "github.com/warp/leave-scheduler/dates"

// ComputeStats folds the member's requests into per-type counts.
// Cancelled and denied requests consume nothing.
func ComputeStats(member *Member, requests []*LeaveRequest, today dates.Date) TimeStats {
	stats := TimeStats{MemberID: member.ID}
	stats.PLD = foldType(member, requests, LeavePLD, today)
	stats.SDV = foldType(member, requests, LeaveSDV, today)
	return stats
}

func foldType(member *Member, requests []*LeaveRequest, leaveType LeaveType, today dates.Date) TypeStats {
	ts := TypeStats{Total: totalFor(member, leaveType, today)}
	for _, r := range requests {
		if r.Type != leaveType {
			continue
		}
		switch r.Status {
		case StatusPending:
			ts.Requested++
		case StatusWaitlisted:
			ts.Waitlisted++
		case StatusApproved, StatusCancellationPending:
			ts.Approved++
			if r.PaidInLieu {
				ts.PaidInLieu++
			}
		}
	}
	ts.Available = ts.Total - ts.Approved - ts.Requested - ts.Waitlisted
	if ts.Available < 0 {
		ts.Available = 0
	}
	return ts
}
