/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes exchanged with the UI layer. Dates cross the boundary as
  YYYY-MM-DD strings exclusively; no time-of-day component ever appears
  in a date field.
*/
package api

import (
	"time"

	"github.com/warp/leave-scheduler/schedule"
)

// =============================================================================
// REQUESTS
// =============================================================================

type SubmitRequestBody struct {
	Date     string `json:"date"` // YYYY-MM-DD
	Type     string `json:"type"` // "pld" | "sdv"
	Division string `json:"division,omitempty"`
}

type DenyRequestBody struct {
	Reason string `json:"reason"`
}

type SetAllotmentBody struct {
	MaxAllotment int `json:"maxAllotment"`
}

type UpsertMemberBody struct {
	Division    string `json:"division"`
	HireDate    string `json:"hireDate,omitempty"` // YYYY-MM-DD
	PLDOverride *int   `json:"pldOverride,omitempty"`
	SDVDays     int    `json:"sdvDays"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type EligibilityDTO struct {
	Date     string `json:"date"`
	Eligible bool   `json:"eligible"`
	TooEarly bool   `json:"tooEarly"`
	TooLate  bool   `json:"tooLate"`
}

type DayAllotmentDTO struct {
	Date            string `json:"date"`
	Division        string `json:"division"`
	MaxAllotment    int    `json:"maxAllotment"`
	CurrentRequests int    `json:"currentRequests"`
	Availability    string `json:"availability"`
}

type LeaveRequestDTO struct {
	ID               string  `json:"id"`
	MemberID         string  `json:"memberId"`
	Division         string  `json:"division"`
	Date             string  `json:"date"`
	Type             string  `json:"type"`
	Status           string  `json:"status"`
	RequestedAt      string  `json:"requestedAt"`
	RespondedAt      *string `json:"respondedAt,omitempty"`
	WaitlistPosition *int    `json:"waitlistPosition,omitempty"`
	PaidInLieu       bool    `json:"paidInLieu"`
	DenialReason     *string `json:"denialReason,omitempty"`
}

type TypeStatsDTO struct {
	Total      int `json:"total"`
	Requested  int `json:"requested"`
	Waitlisted int `json:"waitlisted"`
	Approved   int `json:"approved"`
	PaidInLieu int `json:"paidInLieu"`
	Available  int `json:"available"`
}

type TimeStatsDTO struct {
	MemberID string       `json:"memberId"`
	PLD      TypeStatsDTO `json:"pld"`
	SDV      TypeStatsDTO `json:"sdv"`
}

type ErrorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func requestDTO(r *schedule.LeaveRequest) LeaveRequestDTO {
	dto := LeaveRequestDTO{
		ID:               string(r.ID),
		MemberID:         string(r.MemberID),
		Division:         r.Division,
		Date:             r.RequestDate.Key(),
		Type:             string(r.Type),
		Status:           string(r.Status),
		RequestedAt:      r.RequestedAt.Format(time.RFC3339Nano),
		WaitlistPosition: r.WaitlistPosition,
		PaidInLieu:       r.PaidInLieu,
		DenialReason:     r.DenialReason,
	}
	if r.RespondedAt != nil {
		s := r.RespondedAt.Format(time.RFC3339Nano)
		dto.RespondedAt = &s
	}
	return dto
}

func dayDTO(d *schedule.DayAllotment) DayAllotmentDTO {
	return DayAllotmentDTO{
		Date:            d.Date.Key(),
		Division:        d.Division,
		MaxAllotment:    d.MaxAllotment,
		CurrentRequests: d.CurrentRequests,
		Availability:    string(d.Availability),
	}
}

func statsDTO(s *schedule.TimeStats) TimeStatsDTO {
	conv := func(t schedule.TypeStats) TypeStatsDTO {
		return TypeStatsDTO{
			Total:      t.Total,
			Requested:  t.Requested,
			Waitlisted: t.Waitlisted,
			Approved:   t.Approved,
			PaidInLieu: t.PaidInLieu,
			Available:  t.Available,
		}
	}
	return TimeStatsDTO{MemberID: string(s.MemberID), PLD: conv(s.PLD), SDV: conv(s.SDV)}
}
