/*
Package sqlite provides a SQLite-backed booking.Store.

PURPOSE:
  Default persistent store for a single node. The PostgreSQL store in
  store/postgres carries the same schema with database-level locking for
  multi-node deployments.

KEY TABLES:
  resources:     Courts with hourly price, soft-deleted via deleted_at
  members:       Balance holders (balance + total_spent)
  reservations:  Calendar rows, linked by parent_id for series
  ledger_events: Append-only balance history

INDEXES:
  - idx_reservations_resource_time: Conflict checks (hot path)
  - idx_reservations_status_end:    Completion sweep
  - idx_reservations_member:        My bookings
  - idx_ledger_member_created:      Transaction history, balance replay

CONCURRENCY:
  The pool is capped at one connection and WithTx holds a mutex for the
  whole unit, so exactly one writer transaction runs at a time. That
  serializes every court and every member; LockResource and LockMember
  are no-ops. Every call inside WithTx goes through the sql.Tx, never the
  pool, or it would wait on the connection the unit already holds.

TIME STORAGE:
  Timestamps are UTC text in a fixed-width layout so that lexical order
  equals time order and range predicates can compare strings.

USAGE:
  store, err := sqlite.New("./data/court.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().
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
	"github.com/shopspring/decimal"

	"github.com/warp/court-engine/booking"
)

// timeLayout keeps booking.TimePrecision and sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Store implements booking.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var _ booking.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per connection, and it makes
	// the single-writer model explicit.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price_per_hour TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		deleted_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL DEFAULT '',
		balance TEXT NOT NULL DEFAULT '0',
		total_spent TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL REFERENCES resources(id),
		member_id TEXT NOT NULL REFERENCES members(id),
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		total_price TEXT NOT NULL,
		status TEXT NOT NULL,
		recurring INTEGER NOT NULL DEFAULT 0,
		recurrence_rule TEXT NOT NULL DEFAULT '',
		parent_id TEXT,
		ledger_event_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (end_at > start_at)
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_resource_time
		ON reservations(resource_id, start_at, end_at);
	CREATE INDEX IF NOT EXISTS idx_reservations_status_end
		ON reservations(status, end_at);
	CREATE INDEX IF NOT EXISTS idx_reservations_member
		ON reservations(member_id, start_at);
	CREATE INDEX IF NOT EXISTS idx_reservations_parent
		ON reservations(parent_id) WHERE parent_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS ledger_events (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id),
		amount TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		related_id TEXT,
		description TEXT NOT NULL DEFAULT '',
		proof_url TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_member_created
		ON ledger_events(member_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_related
		ON ledger_events(related_id) WHERE related_id IS NOT NULL;
	`
	_, err := s.db.Exec(schema)
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// COMMITTED READS
// =============================================================================

func (s *Store) GetResource(ctx context.Context, id booking.ResourceID) (*booking.Resource, error) {
	return getResource(ctx, s.db, id)
}

func (s *Store) ListResources(ctx context.Context) ([]booking.Resource, error) {
	return listResources(ctx, s.db)
}

func (s *Store) GetReservation(ctx context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	return getReservation(ctx, s.db, id)
}

func (s *Store) FindOverlapping(ctx context.Context, resourceID booking.ResourceID, slot booking.Slot) ([]booking.Reservation, error) {
	return findOverlapping(ctx, s.db, resourceID, slot)
}

func (s *Store) ListReservations(ctx context.Context, from, to time.Time) ([]booking.Reservation, error) {
	return queryReservations(ctx, s.db,
		"WHERE start_at < ? AND end_at > ? ORDER BY start_at, id",
		formatTime(to), formatTime(from))
}

func (s *Store) ListMemberReservations(ctx context.Context, memberID booking.MemberID) ([]booking.Reservation, error) {
	return queryReservations(ctx, s.db, "WHERE member_id = ? ORDER BY start_at, id", string(memberID))
}

func (s *Store) ListEndedBefore(ctx context.Context, status booking.ReservationStatus, before time.Time) ([]booking.Reservation, error) {
	return listEndedBefore(ctx, s.db, status, before)
}

func (s *Store) GetMember(ctx context.Context, id booking.MemberID) (*booking.Member, error) {
	return getMember(ctx, s.db, id)
}

func (s *Store) GetEvent(ctx context.Context, id booking.EventID) (*booking.LedgerEvent, error) {
	return getEvent(ctx, s.db, id)
}

func (s *Store) ListEvents(ctx context.Context, memberID booking.MemberID) ([]booking.LedgerEvent, error) {
	return listEvents(ctx, s.db, memberID)
}

func (s *Store) ListAllEvents(ctx context.Context, status booking.EventStatus) ([]booking.LedgerEvent, error) {
	return listAllEvents(ctx, s.db, status)
}

// =============================================================================
// ADMIN WRITES
// =============================================================================

// SaveResource inserts or updates a court. Saving a deleted court restores it.
func (s *Store) SaveResource(ctx context.Context, r booking.Resource) error {
	query := `
		INSERT INTO resources (id, name, description, price_per_hour, active, deleted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			price_per_hour = excluded.price_per_hour,
			active = excluded.active,
			deleted_at = NULL,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		string(r.ID), r.Name, r.Description, r.PricePerHour.String(), r.Active,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save resource: %w", err)
	}
	return nil
}

// DeleteResource tombstones a court. Existing reservations keep their rows.
func (s *Store) DeleteResource(ctx context.Context, id booking.ResourceID) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE resources SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		formatTime(time.Now()), string(id))
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}

func (s *Store) CreateMember(ctx context.Context, m booking.Member) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO members (id, full_name, balance, total_spent, created_at) VALUES (?, ?, ?, ?, ?)",
		string(m.ID), m.FullName, m.Balance.String(), m.TotalSpent.String(), formatTime(m.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("member %s: %w", m.ID, booking.ErrDuplicateID)
		}
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(booking.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) LockResource(context.Context, booking.ResourceID) error { return nil }
func (ts *txStore) LockMember(context.Context, booking.MemberID) error     { return nil }

func (ts *txStore) GetResource(ctx context.Context, id booking.ResourceID) (*booking.Resource, error) {
	return getResource(ctx, ts.tx, id)
}

func (ts *txStore) ListResources(ctx context.Context) ([]booking.Resource, error) {
	return listResources(ctx, ts.tx)
}

func (ts *txStore) GetReservation(ctx context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	return getReservation(ctx, ts.tx, id)
}

func (ts *txStore) FindOverlapping(ctx context.Context, resourceID booking.ResourceID, slot booking.Slot) ([]booking.Reservation, error) {
	return findOverlapping(ctx, ts.tx, resourceID, slot)
}

func (ts *txStore) ListReservations(ctx context.Context, from, to time.Time) ([]booking.Reservation, error) {
	return queryReservations(ctx, ts.tx,
		"WHERE start_at < ? AND end_at > ? ORDER BY start_at, id",
		formatTime(to), formatTime(from))
}

func (ts *txStore) ListMemberReservations(ctx context.Context, memberID booking.MemberID) ([]booking.Reservation, error) {
	return queryReservations(ctx, ts.tx, "WHERE member_id = ? ORDER BY start_at, id", string(memberID))
}

func (ts *txStore) ListEndedBefore(ctx context.Context, status booking.ReservationStatus, before time.Time) ([]booking.Reservation, error) {
	return listEndedBefore(ctx, ts.tx, status, before)
}

func (ts *txStore) GetMember(ctx context.Context, id booking.MemberID) (*booking.Member, error) {
	return getMember(ctx, ts.tx, id)
}

func (ts *txStore) GetEvent(ctx context.Context, id booking.EventID) (*booking.LedgerEvent, error) {
	return getEvent(ctx, ts.tx, id)
}

func (ts *txStore) ListEvents(ctx context.Context, memberID booking.MemberID) ([]booking.LedgerEvent, error) {
	return listEvents(ctx, ts.tx, memberID)
}

func (ts *txStore) ListAllEvents(ctx context.Context, status booking.EventStatus) ([]booking.LedgerEvent, error) {
	return listAllEvents(ctx, ts.tx, status)
}

func (ts *txStore) InsertReservations(ctx context.Context, rs []booking.Reservation) error {
	query := `
		INSERT INTO reservations
		(id, resource_id, member_id, start_at, end_at, total_price, status,
		 recurring, recurrence_rule, parent_id, ledger_event_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, r := range rs {
		_, err := ts.tx.ExecContext(ctx, query,
			string(r.ID), string(r.ResourceID), string(r.MemberID),
			formatTime(r.Start), formatTime(r.End),
			r.TotalPrice.String(), string(r.Status),
			r.Recurring, r.RecurrenceRule,
			nullString(string(r.ParentID)), nullString(string(r.LedgerEventID)),
			formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("reservation %s: %w", r.ID, booking.ErrDuplicateID)
			}
			return fmt.Errorf("failed to insert reservation: %w", err)
		}
	}
	return nil
}

func (ts *txStore) TransitionReservation(ctx context.Context, id booking.ReservationID, from, to booking.ReservationStatus, at time.Time) error {
	res, err := ts.tx.ExecContext(ctx,
		"UPDATE reservations SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), formatTime(at), string(id), string(from))
	if err != nil {
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	return staleUnlessOne(res, func() (bool, error) {
		r, err := getReservation(ctx, ts.tx, id)
		return r != nil, err
	}, booking.ErrReservationNotFound)
}

func (ts *txStore) AppendEvent(ctx context.Context, ev booking.LedgerEvent) error {
	query := `
		INSERT INTO ledger_events
		(id, member_id, amount, kind, status, related_id, description, proof_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ts.tx.ExecContext(ctx, query,
		string(ev.ID), string(ev.MemberID), ev.Amount.String(),
		string(ev.Kind), string(ev.Status),
		nullString(ev.RelatedID), ev.Description, nullString(ev.ProofURL),
		formatTime(ev.CreatedAt), formatTime(ev.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("ledger event %s: %w", ev.ID, booking.ErrDuplicateID)
		}
		return fmt.Errorf("failed to append ledger event: %w", err)
	}
	return nil
}

func (ts *txStore) SetEventStatus(ctx context.Context, id booking.EventID, from, to booking.EventStatus, at time.Time) error {
	res, err := ts.tx.ExecContext(ctx,
		"UPDATE ledger_events SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), formatTime(at), string(id), string(from))
	if err != nil {
		return fmt.Errorf("failed to update ledger event: %w", err)
	}
	return staleUnlessOne(res, func() (bool, error) {
		ev, err := getEvent(ctx, ts.tx, id)
		return ev != nil, err
	}, booking.ErrEventNotFound)
}

// AdjustBalance reads and rewrites the member row. Safe without a row lock
// because only one transaction runs at a time.
func (ts *txStore) AdjustBalance(ctx context.Context, memberID booking.MemberID, delta, spent decimal.Decimal) (booking.Member, error) {
	m, err := getMember(ctx, ts.tx, memberID)
	if err != nil {
		return booking.Member{}, err
	}
	if m == nil {
		return booking.Member{}, booking.ErrMemberNotFound
	}
	m.Balance = m.Balance.Add(delta)
	m.TotalSpent = m.TotalSpent.Add(spent)
	_, err = ts.tx.ExecContext(ctx,
		"UPDATE members SET balance = ?, total_spent = ? WHERE id = ?",
		m.Balance.String(), m.TotalSpent.String(), string(memberID))
	if err != nil {
		return booking.Member{}, fmt.Errorf("failed to update balance: %w", err)
	}
	return *m, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func getResource(ctx context.Context, q queryer, id booking.ResourceID) (*booking.Resource, error) {
	var (
		r                    booking.Resource
		price                string
		createdAt, updatedAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, name, description, price_per_hour, active, created_at, updated_at
		FROM resources WHERE id = ? AND deleted_at IS NULL`, string(id),
	).Scan(&r.ID, &r.Name, &r.Description, &price, &r.Active, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.PricePerHour, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("resource %s price: %w", id, err)
	}
	if err := parseTimes(timeCol{&r.CreatedAt, createdAt}, timeCol{&r.UpdatedAt, updatedAt}); err != nil {
		return nil, fmt.Errorf("resource %s: %w", id, err)
	}
	return &r, nil
}

func listResources(ctx context.Context, q queryer) ([]booking.Resource, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, description, price_per_hour, active, created_at, updated_at
		FROM resources WHERE deleted_at IS NULL ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Resource
	for rows.Next() {
		var (
			r                    booking.Resource
			price                string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &price, &r.Active, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if r.PricePerHour, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("resource %s price: %w", r.ID, err)
		}
		if err := parseTimes(timeCol{&r.CreatedAt, createdAt}, timeCol{&r.UpdatedAt, updatedAt}); err != nil {
			return nil, fmt.Errorf("resource %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const reservationColumns = `
	SELECT id, resource_id, member_id, start_at, end_at, total_price, status,
	       recurring, recurrence_rule, parent_id, ledger_event_id, created_at, updated_at
	FROM reservations `

func getReservation(ctx context.Context, q queryer, id booking.ReservationID) (*booking.Reservation, error) {
	rs, err := queryReservations(ctx, q, "WHERE id = ?", string(id))
	if err != nil || len(rs) == 0 {
		return nil, err
	}
	return &rs[0], nil
}

func findOverlapping(ctx context.Context, q queryer, resourceID booking.ResourceID, slot booking.Slot) ([]booking.Reservation, error) {
	return queryReservations(ctx, q, `
		WHERE resource_id = ? AND status IN (?, ?) AND start_at < ? AND end_at > ?
		ORDER BY start_at, id`,
		string(resourceID), string(booking.StatusPending), string(booking.StatusConfirmed),
		formatTime(slot.End), formatTime(slot.Start))
}

func listEndedBefore(ctx context.Context, q queryer, status booking.ReservationStatus, before time.Time) ([]booking.Reservation, error) {
	return queryReservations(ctx, q, "WHERE status = ? AND end_at <= ? ORDER BY start_at, id",
		string(status), formatTime(before))
}

func queryReservations(ctx context.Context, q queryer, where string, args ...any) ([]booking.Reservation, error) {
	rows, err := q.QueryContext(ctx, reservationColumns+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReservation(rows *sql.Rows) (booking.Reservation, error) {
	var (
		r                    booking.Reservation
		start, end, price    string
		parentID, eventID    sql.NullString
		createdAt, updatedAt string
	)
	err := rows.Scan(&r.ID, &r.ResourceID, &r.MemberID, &start, &end, &price, &r.Status,
		&r.Recurring, &r.RecurrenceRule, &parentID, &eventID, &createdAt, &updatedAt)
	if err != nil {
		return booking.Reservation{}, err
	}
	if r.TotalPrice, err = decimal.NewFromString(price); err != nil {
		return booking.Reservation{}, fmt.Errorf("reservation %s price: %w", r.ID, err)
	}
	err = parseTimes(timeCol{&r.Start, start}, timeCol{&r.End, end},
		timeCol{&r.CreatedAt, createdAt}, timeCol{&r.UpdatedAt, updatedAt})
	if err != nil {
		return booking.Reservation{}, fmt.Errorf("reservation %s: %w", r.ID, err)
	}
	r.ParentID = booking.ReservationID(parentID.String)
	r.LedgerEventID = booking.EventID(eventID.String)
	return r, nil
}

func getMember(ctx context.Context, q queryer, id booking.MemberID) (*booking.Member, error) {
	var (
		m                   booking.Member
		balance, totalSpent string
		createdAt           string
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, full_name, balance, total_spent, created_at FROM members WHERE id = ?", string(id),
	).Scan(&m.ID, &m.FullName, &balance, &totalSpent, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if m.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("member %s balance: %w", id, err)
	}
	if m.TotalSpent, err = decimal.NewFromString(totalSpent); err != nil {
		return nil, fmt.Errorf("member %s total spent: %w", id, err)
	}
	if err := parseTimes(timeCol{&m.CreatedAt, createdAt}); err != nil {
		return nil, fmt.Errorf("member %s: %w", id, err)
	}
	return &m, nil
}

const eventColumns = `
	SELECT id, member_id, amount, kind, status, related_id, description, proof_url, created_at, updated_at
	FROM ledger_events `

func getEvent(ctx context.Context, q queryer, id booking.EventID) (*booking.LedgerEvent, error) {
	evs, err := queryEvents(ctx, q, "WHERE id = ?", string(id))
	if err != nil || len(evs) == 0 {
		return nil, err
	}
	return &evs[0], nil
}

func listEvents(ctx context.Context, q queryer, memberID booking.MemberID) ([]booking.LedgerEvent, error) {
	return queryEvents(ctx, q, "WHERE member_id = ? ORDER BY created_at, rowid", string(memberID))
}

func listAllEvents(ctx context.Context, q queryer, status booking.EventStatus) ([]booking.LedgerEvent, error) {
	if status == "" {
		return queryEvents(ctx, q, "ORDER BY created_at DESC, rowid DESC")
	}
	return queryEvents(ctx, q, "WHERE status = ? ORDER BY created_at DESC, rowid DESC", string(status))
}

func queryEvents(ctx context.Context, q queryer, where string, args ...any) ([]booking.LedgerEvent, error) {
	rows, err := q.QueryContext(ctx, eventColumns+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.LedgerEvent
	for rows.Next() {
		var (
			ev                   booking.LedgerEvent
			amount               string
			relatedID, proofURL  sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&ev.ID, &ev.MemberID, &amount, &ev.Kind, &ev.Status,
			&relatedID, &ev.Description, &proofURL, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if ev.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("ledger event %s amount: %w", ev.ID, err)
		}
		ev.RelatedID = relatedID.String
		ev.ProofURL = proofURL.String
		if err := parseTimes(timeCol{&ev.CreatedAt, createdAt}, timeCol{&ev.UpdatedAt, updatedAt}); err != nil {
			return nil, fmt.Errorf("ledger event %s: %w", ev.ID, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Helper functions

// staleUnlessOne maps a compare-and-set UPDATE result: one row is success,
// zero rows is ErrStaleWrite when the row exists and missing otherwise.
func staleUnlessOne(res sql.Result, exists func() (bool, error), missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	ok, err := exists()
	if err != nil {
		return err
	}
	if !ok {
		return missing
	}
	return booking.ErrStaleWrite
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// timeCol is a stored time column and where its parsed value goes.
type timeCol struct {
	dst *time.Time
	raw string
}

func parseTimes(cols ...timeCol) error {
	for _, c := range cols {
		t, err := time.Parse(timeLayout, c.raw)
		if err != nil {
			return fmt.Errorf("parse stored time %q: %w", c.raw, err)
		}
		*c.dst = t
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
