/*
Package entitlement computes how many leave days a member is owed.

PURPOSE:
  Two entitlement kinds exist:
  - PLD (personal leave days): earned by seniority on a tiered schedule,
    overridable per member by an administrator.
  - SDV (single-day vacation): assigned directly by an administrator,
    bounded to [0, 12].

TIERED PLD SCHEDULE (whole calendar years of service):
  < 1 year   ->  0 days
  1-2 years  ->  5 days
  3-5 years  ->  8 days
  6-9 years  -> 11 days
  >= 10      -> 13 days

OVERRIDE SEMANTICS:
  A non-negative administrative override always wins over the tier
  schedule, verbatim. A missing hire date yields zero entitlement.

SEE ALSO:
  - schedule/stats.go: Subtracts committed requests from these totals
*/
package entitlement

import "github.com/warp/leave-scheduler/dates"

// SDVMax is the administrative ceiling on assigned single-day vacation.
const SDVMax = 12

// pldTiers maps minimum whole years of service to the PLD grant.
// Checked from highest tier down.
var pldTiers = []struct {
	minYears int
	days     int
}{
	{10, 13},
	{6, 11},
	{3, 8},
	{1, 5},
}

// PLD returns the member's total personal-leave-day entitlement as of now.
// override, when present and non-negative, wins over the tier schedule.
// A nil hire date means no service history and zero entitlement.
func PLD(hireDate *dates.Date, override *int, now dates.Date) int {
	if override != nil && *override >= 0 {
		return *override
	}
	if hireDate == nil || hireDate.IsZero() {
		return 0
	}
	years := dates.YearsBetween(*hireDate, now)
	for _, tier := range pldTiers {
		if years >= tier.minYears {
			return tier.days
		}
	}
	return 0
}

// SDV passes through the admin-assigned single-day-vacation count.
// The administrative editor clamps at write time; this clamp is a
// safety net for rows written before the editor enforced the range.
func SDV(assigned int) int {
	if assigned < 0 {
		return 0
	}
	if assigned > SDVMax {
		return SDVMax
	}
	return assigned
}
