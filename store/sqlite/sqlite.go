/*
Package sqlite provides a SQLite-backed implementation of the scheduling
store interfaces.

PURPOSE:
  Implements schedule.TxStore and schedule.AuditLog using SQLite. The
  same patterns apply to PostgreSQL in production; only minor dialect
  differences.

INTERFACES IMPLEMENTED:
  schedule.RequestStore    LeaveRequest rows
  schedule.AllotmentStore  per (division, date) capacity
  schedule.MemberDirectory read-side mirror of directory fields
  schedule.TxStore         atomic lifecycle transitions
  schedule.AuditLog        append-only action history

INVARIANTS ENFORCED HERE:
  - idx_requests_member_date_active: at most one non-cancelled request
    per (member_id, request_date). The database, not the client, is the
    arbiter when two submits race.
  - requested_at is assigned server-side from a monotonic sequence so
    insertion order is total even within one clock tick. Waitlist FIFO
    and slot tie-breaks both key on it.

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block,
  single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/scheduler.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  engine := schedule.NewEngine(store, store)

SEE ALSO:
  - schedule/store.go: Interface definitions
  - schedule/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/leave-scheduler/dates"
	"github.com/warp/leave-scheduler/schedule"
)

// Store implements the scheduling persistence interfaces using SQLite.
type Store struct {
	db *sql.DB

	// seqMu guards the monotonic requested_at sequence.
	seqMu sync.Mutex
	last  time.Time
}

// New creates a SQLite store at dbPath. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases and WithTx sane.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		division TEXT NOT NULL,
		request_date TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		status TEXT NOT NULL,
		requested_at INTEGER NOT NULL,
		responded_at INTEGER,
		waitlist_position INTEGER,
		paid_in_lieu INTEGER NOT NULL DEFAULT 0,
		denial_reason TEXT
	);

	-- CRITICAL: at most one non-cancelled request per member per date.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_member_date_active
		ON leave_requests(member_id, request_date)
		WHERE status != 'cancelled';

	-- Occupancy counting and waitlist scans (hot path)
	CREATE INDEX IF NOT EXISTS idx_requests_division_date
		ON leave_requests(division, request_date, status);
	CREATE INDEX IF NOT EXISTS idx_requests_member
		ON leave_requests(member_id, requested_at);

	CREATE TABLE IF NOT EXISTS allotments (
		division TEXT NOT NULL,
		date TEXT NOT NULL,
		max_allotment INTEGER NOT NULL,
		PRIMARY KEY (division, date)
	);

	-- Read-side mirror of the membership directory
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		division TEXT NOT NULL,
		hire_date TEXT,
		pld_override INTEGER,
		sdv_days INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		at INTEGER NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		request_id TEXT,
		division TEXT,
		date_key TEXT,
		detail TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_request
		ON audit_log(request_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// nextRequestedAt returns a strictly increasing timestamp. This is the
// server-assigned ordering authority: two inserts in the same nanosecond
// still receive distinct, ordered values.
func (s *Store) nextRequestedAt() time.Time {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	now := time.Now()
	if !now.After(s.last) {
		now = s.last.Add(time.Nanosecond)
	}
	s.last = now
	return now
}

// storeErr wraps infrastructure failures so callers can classify them.
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", schedule.ErrStoreUnavailable, err)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// querier abstracts *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn implements schedule.Store over either the root DB or a Tx.
type conn struct {
	q     querier
	store *Store
}

// WithTx executes fn atomically. If fn returns an error the transaction
// rolls back and no partial state is visible.
func (s *Store) WithTx(ctx context.Context, fn func(schedule.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}
	if err := fn(&conn{q: tx, store: s}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr(err)
	}
	return nil
}

// Root-level passthroughs so *Store itself satisfies schedule.Store.
func (s *Store) root() *conn { return &conn{q: s.db, store: s} }

func (s *Store) Insert(ctx context.Context, req *schedule.LeaveRequest) (*schedule.LeaveRequest, error) {
	return s.root().Insert(ctx, req)
}
func (s *Store) Get(ctx context.Context, id schedule.RequestID) (*schedule.LeaveRequest, error) {
	return s.root().Get(ctx, id)
}
func (s *Store) Update(ctx context.Context, req *schedule.LeaveRequest) error {
	return s.root().Update(ctx, req)
}
func (s *Store) Delete(ctx context.Context, id schedule.RequestID) error {
	return s.root().Delete(ctx, id)
}
func (s *Store) ByMember(ctx context.Context, memberID schedule.MemberID) ([]*schedule.LeaveRequest, error) {
	return s.root().ByMember(ctx, memberID)
}
func (s *Store) ByDate(ctx context.Context, division string, date dates.Date) ([]*schedule.LeaveRequest, error) {
	return s.root().ByDate(ctx, division, date)
}
func (s *Store) CountOccupied(ctx context.Context, division string, date dates.Date) (int, error) {
	return s.root().CountOccupied(ctx, division, date)
}
func (s *Store) Waitlist(ctx context.Context, division string, date dates.Date) ([]*schedule.LeaveRequest, error) {
	return s.root().Waitlist(ctx, division, date)
}
func (s *Store) OccupiedCounts(ctx context.Context, division string, month dates.Month) (map[string]int, error) {
	return s.root().OccupiedCounts(ctx, division, month)
}
func (s *Store) MaxFor(ctx context.Context, division string, date dates.Date) (int, bool, error) {
	return s.root().MaxFor(ctx, division, date)
}
func (s *Store) SetMax(ctx context.Context, division string, date dates.Date, max int) error {
	return s.root().SetMax(ctx, division, date, max)
}
func (s *Store) MonthMax(ctx context.Context, division string, month dates.Month) (map[string]int, error) {
	return s.root().MonthMax(ctx, division, month)
}
func (s *Store) Member(ctx context.Context, id schedule.MemberID) (*schedule.Member, error) {
	return s.root().Member(ctx, id)
}

// =============================================================================
// REQUEST STORE
// =============================================================================

const requestColumns = `id, member_id, division, request_date, leave_type, status,
	requested_at, responded_at, waitlist_position, paid_in_lieu, denial_reason`

func (c *conn) Insert(ctx context.Context, req *schedule.LeaveRequest) (*schedule.LeaveRequest, error) {
	cp := *req
	if cp.ID == "" {
		return nil, storeErr(errors.New("insert requires an id"))
	}
	cp.RequestedAt = c.store.nextRequestedAt()

	_, err := c.q.ExecContext(ctx, `
		INSERT INTO leave_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(cp.ID), string(cp.MemberID), cp.Division, cp.RequestDate.Key(),
		string(cp.Type), string(cp.Status), cp.RequestedAt.UnixNano(),
		nullTime(cp.RespondedAt), nullInt(cp.WaitlistPosition),
		boolInt(cp.PaidInLieu), nullStr(cp.DenialReason))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, &schedule.DuplicateRequestError{
				MemberID: cp.MemberID,
				Date:     cp.RequestDate,
			}
		}
		return nil, storeErr(err)
	}
	return &cp, nil
}

func (c *conn) Get(ctx context.Context, id schedule.RequestID) (*schedule.LeaveRequest, error) {
	row := c.q.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, string(id))
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, schedule.ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return req, nil
}

func (c *conn) Update(ctx context.Context, req *schedule.LeaveRequest) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE leave_requests
		SET status = ?, responded_at = ?, waitlist_position = ?,
			paid_in_lieu = ?, denial_reason = ?
		WHERE id = ?`,
		string(req.Status), nullTime(req.RespondedAt), nullInt(req.WaitlistPosition),
		boolInt(req.PaidInLieu), nullStr(req.DenialReason), string(req.ID))
	if err != nil {
		return storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(err)
	}
	if n == 0 {
		return schedule.ErrNotFound
	}
	return nil
}

func (c *conn) Delete(ctx context.Context, id schedule.RequestID) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM leave_requests WHERE id = ?`, string(id))
	if err != nil {
		return storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(err)
	}
	if n == 0 {
		return schedule.ErrNotFound
	}
	return nil
}

func (c *conn) ByMember(ctx context.Context, memberID schedule.MemberID) ([]*schedule.LeaveRequest, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE member_id = ? ORDER BY requested_at`, string(memberID))
	if err != nil {
		return nil, storeErr(err)
	}
	return scanRequests(rows)
}

func (c *conn) ByDate(ctx context.Context, division string, date dates.Date) ([]*schedule.LeaveRequest, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE division = ? AND request_date = ? AND status != 'cancelled'
		ORDER BY requested_at`, division, date.Key())
	if err != nil {
		return nil, storeErr(err)
	}
	return scanRequests(rows)
}

func (c *conn) CountOccupied(ctx context.Context, division string, date dates.Date) (int, error) {
	var count int
	err := c.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM leave_requests
		WHERE division = ? AND request_date = ?
		AND status IN ('pending', 'approved', 'cancellation_pending')`,
		division, date.Key()).Scan(&count)
	if err != nil {
		return 0, storeErr(err)
	}
	return count, nil
}

func (c *conn) Waitlist(ctx context.Context, division string, date dates.Date) ([]*schedule.LeaveRequest, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE division = ? AND request_date = ? AND status = 'waitlisted'
		ORDER BY requested_at`, division, date.Key())
	if err != nil {
		return nil, storeErr(err)
	}
	return scanRequests(rows)
}

func (c *conn) OccupiedCounts(ctx context.Context, division string, month dates.Month) (map[string]int, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT request_date, COUNT(*) FROM leave_requests
		WHERE division = ? AND request_date BETWEEN ? AND ?
		AND status IN ('pending', 'approved', 'cancellation_pending')
		GROUP BY request_date`,
		division, month.First().Key(), month.Last().Key())
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, storeErr(err)
		}
		out[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// =============================================================================
// ALLOTMENT STORE
// =============================================================================

func (c *conn) MaxFor(ctx context.Context, division string, date dates.Date) (int, bool, error) {
	var max int
	err := c.q.QueryRowContext(ctx, `
		SELECT max_allotment FROM allotments WHERE division = ? AND date = ?`,
		division, date.Key()).Scan(&max)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storeErr(err)
	}
	return max, true, nil
}

func (c *conn) SetMax(ctx context.Context, division string, date dates.Date, max int) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO allotments (division, date, max_allotment) VALUES (?, ?, ?)
		ON CONFLICT(division, date) DO UPDATE SET max_allotment = excluded.max_allotment`,
		division, date.Key(), max)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (c *conn) MonthMax(ctx context.Context, division string, month dates.Month) (map[string]int, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT date, max_allotment FROM allotments
		WHERE division = ? AND date BETWEEN ? AND ?`,
		division, month.First().Key(), month.Last().Key())
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var max int
		if err := rows.Scan(&key, &max); err != nil {
			return nil, storeErr(err)
		}
		out[key] = max
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// =============================================================================
// MEMBER DIRECTORY
// =============================================================================

func (c *conn) Member(ctx context.Context, id schedule.MemberID) (*schedule.Member, error) {
	var division string
	var hireDate sql.NullString
	var pldOverride sql.NullInt64
	var sdvDays int
	err := c.q.QueryRowContext(ctx, `
		SELECT division, hire_date, pld_override, sdv_days FROM members WHERE id = ?`,
		string(id)).Scan(&division, &hireDate, &pldOverride, &sdvDays)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, schedule.ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}

	member := &schedule.Member{ID: id, Division: division, SDVDays: sdvDays}
	if hireDate.Valid {
		d, err := dates.FromKey(hireDate.String)
		if err != nil {
			return nil, storeErr(fmt.Errorf("member %s has malformed hire_date: %v", id, err))
		}
		member.HireDate = &d
	}
	if pldOverride.Valid {
		v := int(pldOverride.Int64)
		member.PLDOverride = &v
	}
	return member, nil
}

// UpsertMember writes a directory mirror row. The membership directory
// owns these fields; this is the sync/seed path.
func (s *Store) UpsertMember(ctx context.Context, member *schedule.Member) error {
	var hireDate any
	if member.HireDate != nil && !member.HireDate.IsZero() {
		hireDate = member.HireDate.Key()
	}
	var pldOverride any
	if member.PLDOverride != nil {
		pldOverride = *member.PLDOverride
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, division, hire_date, pld_override, sdv_days)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET division = excluded.division,
			hire_date = excluded.hire_date, pld_override = excluded.pld_override,
			sdv_days = excluded.sdv_days`,
		string(member.ID), member.Division, hireDate, pldOverride, member.SDVDays)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry schedule.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, at, actor_id, action, request_id, division, date_key, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.At.UnixNano(), entry.ActorID, string(entry.Action),
		string(entry.RequestID), entry.Division, entry.DateKey, entry.Detail)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

// =============================================================================
// ROW SCANNING - Explicit record conversion at the boundary
// =============================================================================

type rowScanner interface{ Scan(dest ...any) error }

func scanRequest(row rowScanner) (*schedule.LeaveRequest, error) {
	var (
		id, memberID, division, dateKey, leaveType, status string
		requestedAt                                        int64
		respondedAt                                        sql.NullInt64
		waitlistPos                                        sql.NullInt64
		paidInLieu                                         int
		denialReason                                       sql.NullString
	)
	if err := row.Scan(&id, &memberID, &division, &dateKey, &leaveType, &status,
		&requestedAt, &respondedAt, &waitlistPos, &paidInLieu, &denialReason); err != nil {
		return nil, err
	}

	date, err := dates.FromKey(dateKey)
	if err != nil {
		return nil, fmt.Errorf("request %s has malformed date: %w", id, err)
	}

	req := &schedule.LeaveRequest{
		ID:          schedule.RequestID(id),
		MemberID:    schedule.MemberID(memberID),
		Division:    division,
		RequestDate: date,
		Type:        schedule.LeaveType(leaveType),
		Status:      schedule.RequestStatus(status),
		RequestedAt: time.Unix(0, requestedAt),
		PaidInLieu:  paidInLieu != 0,
	}
	if respondedAt.Valid {
		t := time.Unix(0, respondedAt.Int64)
		req.RespondedAt = &t
	}
	if waitlistPos.Valid {
		p := int(waitlistPos.Int64)
		req.WaitlistPosition = &p
	}
	if denialReason.Valid {
		req.DenialReason = &denialReason.String
	}
	return req, nil
}

func scanRequests(rows *sql.Rows) ([]*schedule.LeaveRequest, error) {
	defer rows.Close()
	var out []*schedule.LeaveRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// Null helpers for optional columns.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time interface checks.
var (
	_ schedule.TxStore  = (*Store)(nil)
	_ schedule.AuditLog = (*Store)(nil)
	_ schedule.Store    = (*conn)(nil)
)
