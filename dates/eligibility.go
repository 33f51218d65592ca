/*
eligibility.go - Request window evaluation

PURPOSE:
  Decides whether a calendar date is currently requestable. A date must be
  far enough out to schedule coverage (minimum lead time) but not so far
  out that allotments haven't been planned (maximum horizon).

RULES:
  - Minimum lead: the date must be at least MinLeadDays calendar days
    after "now". Day addition is calendar-based on normalized dates, not
    48 wall-clock hours, so a request at 23:59 follows the same rule as
    one at 00:01.
  - Maximum horizon: the date must be no more than MaxHorizonMonths
    months after "now".
  - A date is never both too early and too late.

This gate applies to every mutating operation (submit). Reads are never
gated: viewing allotments for a past or near date is always permitted.
*/
package dates

// Window bounds for requestable dates.
const (
	MinLeadDays      = 2
	MaxHorizonMonths = 6
)

// Eligibility is the outcome of evaluating a date against the request window.
type Eligibility struct {
	Eligible bool
	TooEarly bool
	TooLate  bool
}

// Evaluate checks whether date is requestable as of now.
func Evaluate(date, now Date) Eligibility {
	earliest := now.AddDays(MinLeadDays)
	latest := now.AddMonths(MaxHorizonMonths)

	switch {
	case date.Before(earliest):
		return Eligibility{TooEarly: true}
	case date.After(latest):
		return Eligibility{TooLate: true}
	default:
		return Eligibility{Eligible: true}
	}
}
