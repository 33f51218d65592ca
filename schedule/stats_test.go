package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/leave-scheduler/dates"
	"github.com/warp/leave-scheduler/schedule"
)

func statsMember(serviceYears, sdvDays int) *schedule.Member {
	hire := dates.New(2026-serviceYears, time.January, 15)
	return &schedule.Member{
		ID:       "stats-member",
		Division: testDivision,
		HireDate: &hire,
		SDVDays:  sdvDays,
	}
}

func reqWith(leaveType schedule.LeaveType, status schedule.RequestStatus, paid bool) *schedule.LeaveRequest {
	return &schedule.LeaveRequest{
		ID:         schedule.RequestID("r-" + string(status)),
		MemberID:   "stats-member",
		Division:   testDivision,
		Type:       leaveType,
		Status:     status,
		PaidInLieu: paid,
	}
}

func TestComputeStats_FoldsPerTypeIndependently(t *testing.T) {
	// GIVEN: 4 years of service (8 PLD) and 6 assigned SDV days
	// WHEN: Folding a mixed request set
	// THEN: Counts bucket by status per type; cancelled and denied
	//       consume nothing

	today := dates.New(2026, time.March, 10)
	member := statsMember(4, 6)
	requests := []*schedule.LeaveRequest{
		reqWith(schedule.LeavePLD, schedule.StatusApproved, false),
		reqWith(schedule.LeavePLD, schedule.StatusApproved, true),
		reqWith(schedule.LeavePLD, schedule.StatusPending, false),
		reqWith(schedule.LeavePLD, schedule.StatusWaitlisted, false),
		reqWith(schedule.LeavePLD, schedule.StatusDenied, false),
		reqWith(schedule.LeavePLD, schedule.StatusCancelled, false),
		reqWith(schedule.LeaveSDV, schedule.StatusApproved, false),
	}

	stats := schedule.ComputeStats(member, requests, today)

	assert.Equal(t, 8, stats.PLD.Total)
	assert.Equal(t, 2, stats.PLD.Approved)
	assert.Equal(t, 1, stats.PLD.PaidInLieu)
	assert.Equal(t, 1, stats.PLD.Requested)
	assert.Equal(t, 1, stats.PLD.Waitlisted)
	assert.Equal(t, 4, stats.PLD.Available) // 8 - 2 - 1 - 1

	assert.Equal(t, 6, stats.SDV.Total)
	assert.Equal(t, 1, stats.SDV.Approved)
	assert.Equal(t, 5, stats.SDV.Available)
}

func TestComputeStats_CancellationPendingStillConsumes(t *testing.T) {
	// The day remains an approved absence until an administrator
	// confirms the cancellation.
	today := dates.New(2026, time.March, 10)
	member := statsMember(4, 0)
	requests := []*schedule.LeaveRequest{
		reqWith(schedule.LeavePLD, schedule.StatusCancellationPending, false),
	}

	stats := schedule.ComputeStats(member, requests, today)

	assert.Equal(t, 1, stats.PLD.Approved)
	assert.Equal(t, 7, stats.PLD.Available)
}

func TestComputeStats_AvailableNeverNegative(t *testing.T) {
	// An override cut below the member's existing commitments must not
	// produce a negative balance.
	today := dates.New(2026, time.March, 10)
	override := 1
	member := statsMember(4, 0)
	member.PLDOverride = &override

	requests := []*schedule.LeaveRequest{
		reqWith(schedule.LeavePLD, schedule.StatusApproved, false),
		reqWith(schedule.LeavePLD, schedule.StatusPending, false),
	}

	stats := schedule.ComputeStats(member, requests, today)

	assert.Equal(t, 1, stats.PLD.Total)
	assert.Equal(t, 0, stats.PLD.Available)
}
