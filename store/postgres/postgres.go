/*
Package postgres provides a PostgreSQL-backed booking.Store.

PURPOSE:
  Multi-node deployments. Unlike the SQLite store, transactions here run
  concurrently, so exclusivity comes from the database.

CONCURRENCY:
  LockResource takes pg_advisory_xact_lock keyed by the court id; two
  bookings on one court serialize, bookings on different courts do not.
  LockMember takes SELECT ... FOR UPDATE on the member row. Both release at
  commit or rollback.

  The reservations_no_overlap exclusion constraint is the backstop: even a
  caller that skipped LockResource cannot commit two active overlapping
  rows. A violation surfaces as booking.ErrSlotConflict.

MONEY:
  NUMERIC(18,2) in the database. Values cross the driver as text and are
  parsed into decimal.Decimal so no float ever carries money.
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/court-engine/booking"
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"

	// Advisory lock namespace for courts.
	lockSpaceResource = 1
)

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Store implements booking.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ booking.Store = (*Store)(nil)

// New wraps pool and applies the schema.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE EXTENSION IF NOT EXISTS btree_gist;

	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price_per_hour NUMERIC(18,2) NOT NULL CHECK (price_per_hour >= 0),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		deleted_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL DEFAULT '',
		balance NUMERIC(18,2) NOT NULL DEFAULT 0,
		total_spent NUMERIC(18,2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL REFERENCES resources(id),
		member_id TEXT NOT NULL REFERENCES members(id),
		start_at TIMESTAMPTZ NOT NULL,
		end_at TIMESTAMPTZ NOT NULL,
		total_price NUMERIC(18,2) NOT NULL,
		status TEXT NOT NULL,
		recurring BOOLEAN NOT NULL DEFAULT FALSE,
		recurrence_rule TEXT NOT NULL DEFAULT '',
		parent_id TEXT,
		ledger_event_id TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CHECK (end_at > start_at),
		CONSTRAINT reservations_no_overlap EXCLUDE USING gist (
			resource_id WITH =,
			tstzrange(start_at, end_at, '[)') WITH &&
		) WHERE (status IN ('pending', 'confirmed'))
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_status_end ON reservations(status, end_at);
	CREATE INDEX IF NOT EXISTS idx_reservations_member ON reservations(member_id, start_at);
	CREATE INDEX IF NOT EXISTS idx_reservations_parent ON reservations(parent_id) WHERE parent_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS ledger_events (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id),
		amount NUMERIC(18,2) NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		related_id TEXT,
		description TEXT NOT NULL DEFAULT '',
		proof_url TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_member_created ON ledger_events(member_id, created_at, seq);
	CREATE INDEX IF NOT EXISTS idx_ledger_related ON ledger_events(related_id) WHERE related_id IS NOT NULL;
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Reset empties every table. Tests only.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE reservations, ledger_events, members, resources`)
	return err
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// =============================================================================
// COMMITTED READS
// =============================================================================

func (s *Store) GetResource(ctx context.Context, id booking.ResourceID) (*booking.Resource, error) {
	return getResource(ctx, s.pool, id)
}

func (s *Store) ListResources(ctx context.Context) ([]booking.Resource, error) {
	return listResources(ctx, s.pool)
}

func (s *Store) GetReservation(ctx context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	return getReservation(ctx, s.pool, id)
}

func (s *Store) FindOverlapping(ctx context.Context, resourceID booking.ResourceID, slot booking.Slot) ([]booking.Reservation, error) {
	return findOverlapping(ctx, s.pool, resourceID, slot)
}

func (s *Store) ListReservations(ctx context.Context, from, to time.Time) ([]booking.Reservation, error) {
	return queryReservations(ctx, s.pool, "WHERE start_at < $1 AND end_at > $2 ORDER BY start_at, id", to, from)
}

func (s *Store) ListMemberReservations(ctx context.Context, memberID booking.MemberID) ([]booking.Reservation, error) {
	return queryReservations(ctx, s.pool, "WHERE member_id = $1 ORDER BY start_at, id", string(memberID))
}

func (s *Store) ListEndedBefore(ctx context.Context, status booking.ReservationStatus, before time.Time) ([]booking.Reservation, error) {
	return listEndedBefore(ctx, s.pool, status, before)
}

func (s *Store) GetMember(ctx context.Context, id booking.MemberID) (*booking.Member, error) {
	return getMember(ctx, s.pool, id)
}

func (s *Store) GetEvent(ctx context.Context, id booking.EventID) (*booking.LedgerEvent, error) {
	return getEvent(ctx, s.pool, id)
}

func (s *Store) ListEvents(ctx context.Context, memberID booking.MemberID) ([]booking.LedgerEvent, error) {
	return listEvents(ctx, s.pool, memberID)
}

func (s *Store) ListAllEvents(ctx context.Context, status booking.EventStatus) ([]booking.LedgerEvent, error) {
	return listAllEvents(ctx, s.pool, status)
}

// =============================================================================
// ADMIN WRITES
// =============================================================================

func (s *Store) SaveResource(ctx context.Context, r booking.Resource) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO resources (id, name, description, price_per_hour, active, deleted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5, NULL, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price_per_hour = EXCLUDED.price_per_hour,
			active = EXCLUDED.active,
			deleted_at = NULL,
			updated_at = EXCLUDED.updated_at`,
		string(r.ID), r.Name, r.Description, r.PricePerHour.String(), r.Active, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save resource: %w", err)
	}
	return nil
}

func (s *Store) DeleteResource(ctx context.Context, id booking.ResourceID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE resources SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}

func (s *Store) CreateMember(ctx context.Context, m booking.Member) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO members (id, full_name, balance, total_spent, created_at)
		VALUES ($1, $2, $3::text::numeric, $4::text::numeric, $5)`,
		string(m.ID), m.FullName, m.Balance.String(), m.TotalSpent.String(), m.CreatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return fmt.Errorf("member %s: %w", m.ID, booking.ErrDuplicateID)
		}
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn in a READ COMMITTED transaction. Isolation between
// bookings comes from the explicit locks, not the isolation level.
func (s *Store) WithTx(ctx context.Context, fn func(booking.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txStore struct {
	tx pgx.Tx
}

func (ts *txStore) LockResource(ctx context.Context, id booking.ResourceID) error {
	_, err := ts.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, lockSpaceResource, string(id))
	if err != nil {
		return fmt.Errorf("lock resource %s: %w", id, err)
	}
	return nil
}

func (ts *txStore) LockMember(ctx context.Context, id booking.MemberID) error {
	_, err := ts.tx.Exec(ctx, `SELECT 1 FROM members WHERE id = $1 FOR UPDATE`, string(id))
	if err != nil {
		return fmt.Errorf("lock member %s: %w", id, err)
	}
	return nil
}

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
	return queryReservations(ctx, ts.tx, "WHERE start_at < $1 AND end_at > $2 ORDER BY start_at, id", to, from)
}

func (ts *txStore) ListMemberReservations(ctx context.Context, memberID booking.MemberID) ([]booking.Reservation, error) {
	return queryReservations(ctx, ts.tx, "WHERE member_id = $1 ORDER BY start_at, id", string(memberID))
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
	b := &pgx.Batch{}
	for _, r := range rs {
		b.Queue(`
			INSERT INTO reservations
			(id, resource_id, member_id, start_at, end_at, total_price, status,
			 recurring, recurrence_rule, parent_id, ledger_event_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7, $8, $9, $10, $11, $12, $13)`,
			string(r.ID), string(r.ResourceID), string(r.MemberID), r.Start, r.End,
			r.TotalPrice.String(), string(r.Status), r.Recurring, r.RecurrenceRule,
			nullText(string(r.ParentID)), nullText(string(r.LedgerEventID)), r.CreatedAt, r.UpdatedAt)
	}
	br := ts.tx.SendBatch(ctx, b)
	defer br.Close()

	for _, r := range rs {
		if _, err := br.Exec(); err != nil {
			switch pgCode(err) {
			case pgExclusionViolation:
				return &booking.SlotConflictError{ResourceID: r.ResourceID, Slot: r.Slot()}
			case pgUniqueViolation:
				return fmt.Errorf("reservation %s: %w", r.ID, booking.ErrDuplicateID)
			}
			return fmt.Errorf("failed to insert reservation: %w", err)
		}
	}
	return br.Close()
}

func (ts *txStore) TransitionReservation(ctx context.Context, id booking.ReservationID, from, to booking.ReservationStatus, at time.Time) error {
	tag, err := ts.tx.Exec(ctx,
		`UPDATE reservations SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), at, string(id), string(from))
	if err != nil {
		if pgCode(err) == pgExclusionViolation {
			return booking.ErrSlotConflict
		}
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	r, err := getReservation(ctx, ts.tx, id)
	if err != nil {
		return err
	}
	if r == nil {
		return booking.ErrReservationNotFound
	}
	return booking.ErrStaleWrite
}

func (ts *txStore) AppendEvent(ctx context.Context, ev booking.LedgerEvent) error {
	_, err := ts.tx.Exec(ctx, `
		INSERT INTO ledger_events
		(id, member_id, amount, kind, status, related_id, description, proof_url, created_at, updated_at)
		VALUES ($1, $2, $3::text::numeric, $4, $5, $6, $7, $8, $9, $10)`,
		string(ev.ID), string(ev.MemberID), ev.Amount.String(), string(ev.Kind), string(ev.Status),
		nullText(ev.RelatedID), ev.Description, nullText(ev.ProofURL), ev.CreatedAt, ev.UpdatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return fmt.Errorf("ledger event %s: %w", ev.ID, booking.ErrDuplicateID)
		}
		return fmt.Errorf("failed to append ledger event: %w", err)
	}
	return nil
}

func (ts *txStore) SetEventStatus(ctx context.Context, id booking.EventID, from, to booking.EventStatus, at time.Time) error {
	tag, err := ts.tx.Exec(ctx,
		`UPDATE ledger_events SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), at, string(id), string(from))
	if err != nil {
		return fmt.Errorf("failed to update ledger event: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	ev, err := getEvent(ctx, ts.tx, id)
	if err != nil {
		return err
	}
	if ev == nil {
		return booking.ErrEventNotFound
	}
	return booking.ErrStaleWrite
}

// AdjustBalance is a single increment statement; no read-modify-write.
func (ts *txStore) AdjustBalance(ctx context.Context, memberID booking.MemberID, delta, spent decimal.Decimal) (booking.Member, error) {
	row := ts.tx.QueryRow(ctx, `
		UPDATE members
		SET balance = balance + $2::text::numeric, total_spent = total_spent + $3::text::numeric
		WHERE id = $1
		RETURNING id, full_name, balance::text, total_spent::text, created_at`,
		string(memberID), delta.String(), spent.String())
	m, err := scanMember(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Member{}, booking.ErrMemberNotFound
	}
	if err != nil {
		return booking.Member{}, fmt.Errorf("failed to update balance: %w", err)
	}
	return m, nil
}

// =============================================================================
// QUERIES
// =============================================================================

const resourceColumns = `
	SELECT id, name, description, price_per_hour::text, active, created_at, updated_at
	FROM resources `

func getResource(ctx context.Context, q querier, id booking.ResourceID) (*booking.Resource, error) {
	r, err := scanResource(q.QueryRow(ctx, resourceColumns+"WHERE id = $1 AND deleted_at IS NULL", string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func listResources(ctx context.Context, q querier) ([]booking.Resource, error) {
	rows, err := q.Query(ctx, resourceColumns+"WHERE deleted_at IS NULL ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanResource(row pgx.Row) (booking.Resource, error) {
	var (
		r     booking.Resource
		price string
	)
	if err := row.Scan((*string)(&r.ID), &r.Name, &r.Description, &price, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return booking.Resource{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return booking.Resource{}, fmt.Errorf("resource %s price: %w", r.ID, err)
	}
	r.PricePerHour = p
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

const reservationColumns = `
	SELECT id, resource_id, member_id, start_at, end_at, total_price::text, status,
	       recurring, recurrence_rule, parent_id, ledger_event_id, created_at, updated_at
	FROM reservations `

func getReservation(ctx context.Context, q querier, id booking.ReservationID) (*booking.Reservation, error) {
	rs, err := queryReservations(ctx, q, "WHERE id = $1", string(id))
	if err != nil || len(rs) == 0 {
		return nil, err
	}
	return &rs[0], nil
}

func findOverlapping(ctx context.Context, q querier, resourceID booking.ResourceID, slot booking.Slot) ([]booking.Reservation, error) {
	return queryReservations(ctx, q, `
		WHERE resource_id = $1 AND status IN ('pending', 'confirmed')
		  AND tstzrange(start_at, end_at, '[)') && tstzrange($2, $3, '[)')
		ORDER BY start_at, id`,
		string(resourceID), slot.Start, slot.End)
}

func listEndedBefore(ctx context.Context, q querier, status booking.ReservationStatus, before time.Time) ([]booking.Reservation, error) {
	return queryReservations(ctx, q, "WHERE status = $1 AND end_at <= $2 ORDER BY start_at, id", string(status), before)
}

func queryReservations(ctx context.Context, q querier, where string, args ...any) ([]booking.Reservation, error) {
	rows, err := q.Query(ctx, reservationColumns+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Reservation
	for rows.Next() {
		var (
			r                 booking.Reservation
			price             string
			parentID, eventID pgtype.Text
		)
		err := rows.Scan((*string)(&r.ID), (*string)(&r.ResourceID), (*string)(&r.MemberID),
			&r.Start, &r.End, &price, (*string)(&r.Status), &r.Recurring, &r.RecurrenceRule,
			&parentID, &eventID, &r.CreatedAt, &r.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if r.TotalPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("reservation %s price: %w", r.ID, err)
		}
		r.Start, r.End = r.Start.UTC(), r.End.UTC()
		r.CreatedAt, r.UpdatedAt = r.CreatedAt.UTC(), r.UpdatedAt.UTC()
		r.ParentID = booking.ReservationID(parentID.String)
		r.LedgerEventID = booking.EventID(eventID.String)
		out = append(out, r)
	}
	return out, rows.Err()
}

func getMember(ctx context.Context, q querier, id booking.MemberID) (*booking.Member, error) {
	m, err := scanMember(q.QueryRow(ctx,
		`SELECT id, full_name, balance::text, total_spent::text, created_at FROM members WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMember(row pgx.Row) (booking.Member, error) {
	var (
		m            booking.Member
		balance, spt string
	)
	if err := row.Scan((*string)(&m.ID), &m.FullName, &balance, &spt, &m.CreatedAt); err != nil {
		return booking.Member{}, err
	}
	var err error
	if m.Balance, err = decimal.NewFromString(balance); err != nil {
		return booking.Member{}, fmt.Errorf("member %s balance: %w", m.ID, err)
	}
	if m.TotalSpent, err = decimal.NewFromString(spt); err != nil {
		return booking.Member{}, fmt.Errorf("member %s total spent: %w", m.ID, err)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

const eventColumns = `
	SELECT id, member_id, amount::text, kind, status, related_id, description, proof_url, created_at, updated_at
	FROM ledger_events `

func getEvent(ctx context.Context, q querier, id booking.EventID) (*booking.LedgerEvent, error) {
	evs, err := queryEvents(ctx, q, "WHERE id = $1", string(id))
	if err != nil || len(evs) == 0 {
		return nil, err
	}
	return &evs[0], nil
}

func listEvents(ctx context.Context, q querier, memberID booking.MemberID) ([]booking.LedgerEvent, error) {
	return queryEvents(ctx, q, "WHERE member_id = $1 ORDER BY created_at, seq", string(memberID))
}

func listAllEvents(ctx context.Context, q querier, status booking.EventStatus) ([]booking.LedgerEvent, error) {
	if status == "" {
		return queryEvents(ctx, q, "ORDER BY created_at DESC, seq DESC")
	}
	return queryEvents(ctx, q, "WHERE status = $1 ORDER BY created_at DESC, seq DESC", string(status))
}

func queryEvents(ctx context.Context, q querier, where string, args ...any) ([]booking.LedgerEvent, error) {
	rows, err := q.Query(ctx, eventColumns+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.LedgerEvent
	for rows.Next() {
		var (
			ev                  booking.LedgerEvent
			amount              string
			relatedID, proofURL pgtype.Text
		)
		err := rows.Scan((*string)(&ev.ID), (*string)(&ev.MemberID), &amount, (*string)(&ev.Kind), (*string)(&ev.Status),
			&relatedID, &ev.Description, &proofURL, &ev.CreatedAt, &ev.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if ev.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("ledger event %s amount: %w", ev.ID, err)
		}
		ev.RelatedID = relatedID.String
		ev.ProofURL = proofURL.String
		ev.CreatedAt, ev.UpdatedAt = ev.CreatedAt.UTC(), ev.UpdatedAt.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Helper functions

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
