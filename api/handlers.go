/*
handlers.go - HTTP handlers for the leave scheduling API

PURPOSE:
  Exposes the scheduling engine over REST. Handlers parse and validate
  input, resolve the acting member, delegate to the engine, and map
  domain errors to HTTP statuses.

ENDPOINTS:
  Eligibility:
    GET  /api/eligibility?date=YYYY-MM-DD

  Allotments:
    GET  /api/divisions/{division}/allotments?month=YYYY-MM
    GET  /api/divisions/{division}/allotments/{date}
    PUT  /api/divisions/{division}/allotments/{date}   (admin)

  Requests:
    POST /api/requests
    POST /api/requests/{id}/cancel
    POST /api/requests/{id}/approve                    (admin)
    POST /api/requests/{id}/deny                       (admin)
    POST /api/requests/{id}/pay-in-lieu
    POST /api/requests/{id}/cancellation/confirm       (admin)
    POST /api/requests/{id}/cancellation/reject        (admin)
    GET  /api/divisions/{division}/requests/pending    (admin)

  Members:
    GET  /api/members/{id}/stats
    PUT  /api/admin/members/{id}                       (admin)

ERROR HANDLING:
  Every domain error kind maps to a distinct status and a distinct
  human-readable message; nothing is silently swallowed. A failed
  mutation commits no state (the engine runs each transition in one
  transaction).
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/warp/leave-scheduler/dates"
	"github.com/warp/leave-scheduler/schedule"
)

// MemberWriter is the admin write path for the directory mirror.
type MemberWriter interface {
	UpsertMember(ctx context.Context, member *schedule.Member) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *schedule.Engine
	Members  MemberWriter
	Identity IdentityProvider
	Auth     RoleChecker
}

func NewHandler(engine *schedule.Engine, members MemberWriter, identity IdentityProvider, auth RoleChecker) *Handler {
	return &Handler{Engine: engine, Members: members, Identity: identity, Auth: auth}
}

// =============================================================================
// ELIGIBILITY
// =============================================================================

// GetEligibility evaluates the request window for a date. Read-only, no
// member context required.
func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDateParam(w, r.URL.Query().Get("date"))
	if !ok {
		return
	}
	elig := h.Engine.Eligibility(date)
	writeJSON(w, http.StatusOK, EligibilityDTO{
		Date:     date.Key(),
		Eligible: elig.Eligible,
		TooEarly: elig.TooEarly,
		TooLate:  elig.TooLate,
	})
}

// =============================================================================
// ALLOTMENTS
// =============================================================================

// GetMonthAllotments returns the DayAllotment projection for every
// configured date in the month.
func (h *Handler) GetMonthAllotments(w http.ResponseWriter, r *http.Request) {
	division := chi.URLParam(r, "division")
	month, err := dates.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}

	days, err := h.Engine.MonthFor(r.Context(), division, month)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make(map[string]DayAllotmentDTO, len(days))
	for key, day := range days {
		out[key] = dayDTO(day)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetDayAllotment refreshes a single date's projection.
func (h *Handler) GetDayAllotment(w http.ResponseWriter, r *http.Request) {
	division := chi.URLParam(r, "division")
	date, ok := parseDateParam(w, chi.URLParam(r, "date"))
	if !ok {
		return
	}
	day, err := h.Engine.DayFor(r.Context(), division, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dayDTO(day))
}

// SetDayAllotment sets maxAllotment for a division-date. Admin only.
func (h *Handler) SetDayAllotment(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	division := chi.URLParam(r, "division")
	date, ok := parseDateParam(w, chi.URLParam(r, "date"))
	if !ok {
		return
	}

	var body SetAllotmentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.MaxAllotment < 0 {
		writeError(w, http.StatusBadRequest, "maxAllotment must be >= 0", nil)
		return
	}

	if err := h.Engine.Store.SetMax(r.Context(), division, date, body.MaxAllotment); err != nil {
		writeDomainError(w, err)
		return
	}
	// Raising capacity may unblock the waitlist.
	if err := h.Engine.PromoteEligible(r.Context(), division, date); err != nil {
		writeDomainError(w, err)
		return
	}

	day, err := h.Engine.DayFor(r.Context(), division, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dayDTO(day))
}

// =============================================================================
// REQUEST LIFECYCLE
// =============================================================================

// SubmitRequest creates a leave request for the acting member.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	var body SubmitRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, okDate := parseDateParam(w, body.Date)
	if !okDate {
		return
	}
	leaveType := schedule.LeaveType(body.Type)
	if !leaveType.Valid() {
		writeError(w, http.StatusBadRequest, "type must be \"pld\" or \"sdv\"", nil)
		return
	}

	division := body.Division
	if division == "" {
		member, err := h.Engine.Store.Member(r.Context(), memberID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		division = member.Division
	}

	req, err := h.Engine.SubmitRequest(r.Context(), memberID, date, leaveType, division)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, requestDTO(req))
}

// CancelRequest cancels the acting member's own request.
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.requireMember(w, r)
	if !ok {
		return
	}
	id := schedule.RequestID(chi.URLParam(r, "id"))
	if err := h.Engine.CancelRequest(r.Context(), id, memberID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// ApproveRequest transitions pending -> approved. Admin only.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	id := schedule.RequestID(chi.URLParam(r, "id"))
	if err := h.Engine.ApproveRequest(r.Context(), id, string(actor)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"approved": true})
}

// DenyRequest transitions pending -> denied. Admin only; requires reason.
func (h *Handler) DenyRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	var body DenyRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	id := schedule.RequestID(chi.URLParam(r, "id"))
	if err := h.Engine.DenyRequest(r.Context(), id, body.Reason, string(actor)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"denied": true})
}

// PayInLieu marks an approved request as paid in lieu.
func (h *Handler) PayInLieu(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.requireMember(w, r)
	if !ok {
		return
	}
	id := schedule.RequestID(chi.URLParam(r, "id"))
	if err := h.Engine.RequestPaidInLieu(r.Context(), id, memberID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paidInLieu": true})
}

// ConfirmCancellation completes a member's cancellation of an approved
// request. Admin only.
func (h *Handler) ConfirmCancellation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	id := schedule.RequestID(chi.URLParam(r, "id"))
	if err := h.Engine.ConfirmCancellation(r.Context(), id, string(actor)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// RejectCancellation returns a cancellation_pending request to approved.
// Admin only.
func (h *Handler) RejectCancellation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	id := schedule.RequestID(chi.URLParam(r, "id"))
	if err := h.Engine.RejectCancellation(r.Context(), id, string(actor)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"approved": true})
}

// ListPendingRequests returns requests awaiting administrative action
// for a division-month. Admin only.
func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	division := chi.URLParam(r, "division")
	month, err := dates.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}

	pending, err := h.Engine.PendingForDivision(r.Context(), division, month)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].RequestedAt.Before(pending[j].RequestedAt)
	})

	dtos := make([]LeaveRequestDTO, len(pending))
	for i, req := range pending {
		dtos[i] = requestDTO(req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// MEMBERS
// =============================================================================

// GetStats returns the member's aggregate view. Members may read their
// own stats; admins may read anyone's.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.requireMember(w, r)
	if !ok {
		return
	}
	target := schedule.MemberID(chi.URLParam(r, "id"))
	if target != actorID {
		roles, err := h.Auth.Roles(r.Context(), actorID)
		if err != nil || !roles.Admin() {
			writeError(w, http.StatusForbidden, schedule.UserMessage(schedule.ErrUnauthorized), nil)
			return
		}
	}

	stats, err := h.Engine.Stats(r.Context(), target)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsDTO(stats))
}

// UpsertMember writes a directory mirror row. Admin only.
func (h *Handler) UpsertMember(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	var body UpsertMemberBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	member := &schedule.Member{
		ID:          schedule.MemberID(chi.URLParam(r, "id")),
		Division:    body.Division,
		PLDOverride: body.PLDOverride,
		SDVDays:     body.SDVDays,
	}
	if body.HireDate != "" {
		hd, err := dates.FromKey(body.HireDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid hireDate (use YYYY-MM-DD)", err)
			return
		}
		member.HireDate = &hd
	}
	if member.SDVDays < 0 || member.SDVDays > 12 {
		writeError(w, http.StatusBadRequest, "sdvDays must be between 0 and 12", nil)
		return
	}

	if err := h.Members.UpsertMember(r.Context(), member); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) requireMember(w http.ResponseWriter, r *http.Request) (schedule.MemberID, bool) {
	id, ok := h.Identity.CurrentMember(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "No member context", nil)
		return "", false
	}
	return id, true
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (schedule.MemberID, bool) {
	id, ok := h.requireMember(w, r)
	if !ok {
		return "", false
	}
	roles, err := h.Auth.Roles(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Role check failed", err)
		return "", false
	}
	if !roles.Admin() {
		writeError(w, http.StatusForbidden, schedule.UserMessage(schedule.ErrUnauthorized), nil)
		return "", false
	}
	return id, true
}

func parseDateParam(w http.ResponseWriter, raw string) (dates.Date, bool) {
	date, err := dates.FromKey(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return dates.Date{}, false
	}
	return date, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	dto := ErrorDTO{Kind: "bad_request", Message: message}
	if status == http.StatusUnauthorized {
		dto.Kind = "unauthenticated"
	}
	if status == http.StatusForbidden {
		dto.Kind = "unauthorized"
	}
	if err != nil {
		dto.Detail = err.Error()
	}
	writeJSON(w, status, dto)
}

// writeDomainError maps engine errors to distinct statuses and messages.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal"

	switch {
	case errors.Is(err, schedule.ErrIneligibleDate):
		status, kind = http.StatusUnprocessableEntity, "ineligible_date"
	case errors.Is(err, schedule.ErrDuplicateRequest):
		status, kind = http.StatusConflict, "duplicate_request"
	case errors.Is(err, schedule.ErrNoEntitlement):
		status, kind = http.StatusUnprocessableEntity, "no_entitlement"
	case errors.Is(err, schedule.ErrSlotFull):
		status, kind = http.StatusConflict, "slot_full"
	case errors.Is(err, schedule.ErrUnauthorized):
		status, kind = http.StatusForbidden, "unauthorized"
	case errors.Is(err, schedule.ErrNotCancellable):
		status, kind = http.StatusConflict, "not_cancellable"
	case errors.Is(err, schedule.ErrInvalidTransition):
		status, kind = http.StatusConflict, "invalid_transition"
	case errors.Is(err, schedule.ErrReasonRequired):
		status, kind = http.StatusBadRequest, "reason_required"
	case errors.Is(err, schedule.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, schedule.ErrStoreUnavailable):
		status, kind = http.StatusServiceUnavailable, "store_unavailable"
	}

	writeJSON(w, status, ErrorDTO{
		Kind:    kind,
		Message: schedule.UserMessage(err),
		Detail:  err.Error(),
	})
}
