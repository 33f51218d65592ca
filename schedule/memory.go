/*
memory.go - In-memory store implementation

PURPOSE:
  Implements TxStore and AuditLog in memory for tests and local
  development. Transactions are snapshot-based: WithTx clones the state,
  runs the function serialized under the store mutex, and restores the
  snapshot if the function errors. That gives tests the same atomic
  all-or-nothing semantics the SQLite store provides.

SERVER-ASSIGNED ORDERING:
  Insert assigns RequestedAt from a strictly monotonic clock guarded by
  the store mutex, so two inserts in the same wall-clock instant still
  order deterministically. This is the tie-break authority.
*/
package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/leave-scheduler/dates"
)

type Memory struct {
	mu    sync.Mutex
	state memState
	last  time.Time

	// The audit log has its own lock; appends never contend with state
	// transactions.
	auditMu sync.Mutex
	audits  []AuditEntry
}

type memState struct {
	requests   map[RequestID]*LeaveRequest
	members    map[MemberID]*Member
	allotments map[string]int
}

func NewMemory() *Memory {
	return &Memory{state: memState{
		requests:   make(map[RequestID]*LeaveRequest),
		members:    make(map[MemberID]*Member),
		allotments: make(map[string]int),
	}}
}

func allotKey(division string, date dates.Date) string {
	return division + "|" + date.Key()
}

func (s memState) clone() memState {
	out := memState{
		requests:   make(map[RequestID]*LeaveRequest, len(s.requests)),
		members:    make(map[MemberID]*Member, len(s.members)),
		allotments: make(map[string]int, len(s.allotments)),
	}
	for id, r := range s.requests {
		cp := *r
		out.requests[id] = &cp
	}
	for id, m := range s.members {
		cp := *m
		out.members[id] = &cp
	}
	for k, v := range s.allotments {
		out.allotments[k] = v
	}
	return out
}

// nextRequestedAt returns a strictly increasing timestamp.
// Caller holds the mutex.
func (m *Memory) nextRequestedAt() time.Time {
	now := time.Now()
	if !now.After(m.last) {
		now = m.last.Add(time.Nanosecond)
	}
	m.last = now
	return now
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx serializes fn under the store mutex with snapshot rollback.
func (m *Memory) WithTx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.state.clone()
	if err := fn(&memView{m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// memView is the unlocked view handed to WithTx callbacks. The outer
// mutex is already held for the transaction's duration.
type memView struct{ m *Memory }

// =============================================================================
// REQUEST STORE
// =============================================================================

func (v *memView) Insert(_ context.Context, req *LeaveRequest) (*LeaveRequest, error) {
	for _, r := range v.m.state.requests {
		if r.MemberID == req.MemberID && r.RequestDate.Equal(req.RequestDate) && r.Status.Active() {
			return nil, &DuplicateRequestError{MemberID: req.MemberID, Date: req.RequestDate, ExistingID: r.ID}
		}
	}
	cp := *req
	if cp.ID == "" {
		cp.ID = RequestID(uuid.NewString())
	}
	cp.RequestedAt = v.m.nextRequestedAt()
	v.m.state.requests[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (v *memView) Get(_ context.Context, id RequestID) (*LeaveRequest, error) {
	r, ok := v.m.state.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (v *memView) Update(_ context.Context, req *LeaveRequest) error {
	if _, ok := v.m.state.requests[req.ID]; !ok {
		return ErrNotFound
	}
	cp := *req
	v.m.state.requests[req.ID] = &cp
	return nil
}

func (v *memView) Delete(_ context.Context, id RequestID) error {
	if _, ok := v.m.state.requests[id]; !ok {
		return ErrNotFound
	}
	delete(v.m.state.requests, id)
	return nil
}

func (v *memView) ByMember(_ context.Context, memberID MemberID) ([]*LeaveRequest, error) {
	var out []*LeaveRequest
	for _, r := range v.m.state.requests {
		if r.MemberID == memberID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortByRequestedAt(out)
	return out, nil
}

func (v *memView) ByDate(_ context.Context, division string, date dates.Date) ([]*LeaveRequest, error) {
	var out []*LeaveRequest
	for _, r := range v.m.state.requests {
		if r.Division == division && r.RequestDate.Equal(date) && r.Status.Active() {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortByRequestedAt(out)
	return out, nil
}

func (v *memView) CountOccupied(_ context.Context, division string, date dates.Date) (int, error) {
	count := 0
	for _, r := range v.m.state.requests {
		if r.Division == division && r.RequestDate.Equal(date) && r.Status.OccupiesSlot() {
			count++
		}
	}
	return count, nil
}

func (v *memView) Waitlist(_ context.Context, division string, date dates.Date) ([]*LeaveRequest, error) {
	var out []*LeaveRequest
	for _, r := range v.m.state.requests {
		if r.Division == division && r.RequestDate.Equal(date) && r.Status == StatusWaitlisted {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortByRequestedAt(out)
	return out, nil
}

func (v *memView) OccupiedCounts(_ context.Context, division string, month dates.Month) (map[string]int, error) {
	out := make(map[string]int)
	for _, r := range v.m.state.requests {
		if r.Division != division || !r.Status.OccupiesSlot() {
			continue
		}
		if r.RequestDate.Year() == month.Year && r.RequestDate.Month() == month.Month {
			out[r.RequestDate.Key()]++
		}
	}
	return out, nil
}

// =============================================================================
// ALLOTMENT STORE
// =============================================================================

func (v *memView) MaxFor(_ context.Context, division string, date dates.Date) (int, bool, error) {
	max, ok := v.m.state.allotments[allotKey(division, date)]
	return max, ok, nil
}

func (v *memView) SetMax(_ context.Context, division string, date dates.Date, max int) error {
	v.m.state.allotments[allotKey(division, date)] = max
	return nil
}

func (v *memView) MonthMax(_ context.Context, division string, month dates.Month) (map[string]int, error) {
	out := make(map[string]int)
	for _, d := range month.Days() {
		if max, ok := v.m.state.allotments[allotKey(division, d)]; ok {
			out[d.Key()] = max
		}
	}
	return out, nil
}

// =============================================================================
// MEMBER DIRECTORY
// =============================================================================

func (v *memView) Member(_ context.Context, id MemberID) (*Member, error) {
	m, ok := v.m.state.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// =============================================================================
// LOCKED PASSTHROUGHS - Store methods usable outside WithTx
// =============================================================================

func (m *Memory) locked() (*memView, func()) {
	m.mu.Lock()
	return &memView{m}, m.mu.Unlock
}

func (m *Memory) Insert(ctx context.Context, req *LeaveRequest) (*LeaveRequest, error) {
	v, done := m.locked()
	defer done()
	return v.Insert(ctx, req)
}

func (m *Memory) Get(ctx context.Context, id RequestID) (*LeaveRequest, error) {
	v, done := m.locked()
	defer done()
	return v.Get(ctx, id)
}

func (m *Memory) Update(ctx context.Context, req *LeaveRequest) error {
	v, done := m.locked()
	defer done()
	return v.Update(ctx, req)
}

func (m *Memory) Delete(ctx context.Context, id RequestID) error {
	v, done := m.locked()
	defer done()
	return v.Delete(ctx, id)
}

func (m *Memory) ByMember(ctx context.Context, memberID MemberID) ([]*LeaveRequest, error) {
	v, done := m.locked()
	defer done()
	return v.ByMember(ctx, memberID)
}

func (m *Memory) ByDate(ctx context.Context, division string, date dates.Date) ([]*LeaveRequest, error) {
	v, done := m.locked()
	defer done()
	return v.ByDate(ctx, division, date)
}

func (m *Memory) CountOccupied(ctx context.Context, division string, date dates.Date) (int, error) {
	v, done := m.locked()
	defer done()
	return v.CountOccupied(ctx, division, date)
}

func (m *Memory) Waitlist(ctx context.Context, division string, date dates.Date) ([]*LeaveRequest, error) {
	v, done := m.locked()
	defer done()
	return v.Waitlist(ctx, division, date)
}

func (m *Memory) OccupiedCounts(ctx context.Context, division string, month dates.Month) (map[string]int, error) {
	v, done := m.locked()
	defer done()
	return v.OccupiedCounts(ctx, division, month)
}

func (m *Memory) MaxFor(ctx context.Context, division string, date dates.Date) (int, bool, error) {
	v, done := m.locked()
	defer done()
	return v.MaxFor(ctx, division, date)
}

func (m *Memory) SetMax(ctx context.Context, division string, date dates.Date, max int) error {
	v, done := m.locked()
	defer done()
	return v.SetMax(ctx, division, date, max)
}

func (m *Memory) MonthMax(ctx context.Context, division string, month dates.Month) (map[string]int, error) {
	v, done := m.locked()
	defer done()
	return v.MonthMax(ctx, division, month)
}

func (m *Memory) Member(ctx context.Context, id MemberID) (*Member, error) {
	v, done := m.locked()
	defer done()
	return v.Member(ctx, id)
}

// UpsertMember seeds or replaces a directory row.
func (m *Memory) UpsertMember(_ context.Context, member *Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *member
	m.state.members[member.ID] = &cp
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry AuditEntry) error {
	m.auditMu.Lock()
	defer m.auditMu.Unlock()
	m.audits = append(m.audits, entry)
	return nil
}

// AuditEntries returns a copy of the audit log for assertions.
func (m *Memory) AuditEntries() []AuditEntry {
	m.auditMu.Lock()
	defer m.auditMu.Unlock()
	return append([]AuditEntry(nil), m.audits...)
}

func sortByRequestedAt(reqs []*LeaveRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].RequestedAt.Before(reqs[j].RequestedAt)
	})
}

// Compile-time interface checks.
var (
	_ TxStore  = (*Memory)(nil)
	_ AuditLog = (*Memory)(nil)
)
