/*
store.go - Persistence contract for courts, reservations and the ledger

PURPOSE:
  Small per-entity interfaces instead of one generic repository. Each
  component asks only for what it uses: the SlotIndex needs
  ReservationReader, the Ledger needs LedgerWriter, and so on.

TRANSACTIONS:
  The atomic unit is explicit. Store.WithTx hands fn a Tx handle; every
  store call inside the unit goes through that handle, and the unit commits
  once when fn returns nil. Any error rolls back everything fn wrote.

  ┌────────────────────────── WithTx ──────────────────────────┐
  │ LockResource → FindOverlapping → LockMember → AdjustBalance │
  │ → AppendEvent → InsertReservations                         │
  └────────────────────────── commit ──────────────────────────┘

LOCKING:
  LockResource and LockMember grant exclusive access until the unit ends.
  Callers lock the resource before the member so two units never wait on
  each other in opposite order. Implementations that run one writer
  transaction at a time may treat both as no-ops.

VISIBILITY:
  Soft-deleted resources are filtered by every read. Callers never see or
  check a tombstone.

IMPLEMENTATIONS:
  - booking/store/memory.go: In-memory, snapshot + rollback
  - store/sqlite/sqlite.go:  SQLite
  - store/postgres/postgres.go: PostgreSQL with advisory locks
*/
package booking

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// READERS
// =============================================================================

type ResourceReader interface {
	// GetResource returns nil, nil when the resource does not exist.
	GetResource(ctx context.Context, id ResourceID) (*Resource, error)
	ListResources(ctx context.Context) ([]Resource, error)
}

type ReservationReader interface {
	// GetReservation returns nil, nil when the reservation does not exist.
	GetReservation(ctx context.Context, id ReservationID) (*Reservation, error)

	// FindOverlapping returns active reservations on resourceID whose slot
	// overlaps slot.
	FindOverlapping(ctx context.Context, resourceID ResourceID, slot Slot) ([]Reservation, error)

	// ListReservations returns reservations of every status that overlap
	// [from, to), ordered by start.
	ListReservations(ctx context.Context, from, to time.Time) ([]Reservation, error)

	ListMemberReservations(ctx context.Context, memberID MemberID) ([]Reservation, error)

	// ListEndedBefore returns reservations in status whose end <= before.
	ListEndedBefore(ctx context.Context, status ReservationStatus, before time.Time) ([]Reservation, error)
}

type MemberReader interface {
	// GetMember returns nil, nil when the member does not exist.
	GetMember(ctx context.Context, id MemberID) (*Member, error)
}

type LedgerReader interface {
	// GetEvent returns nil, nil when the event does not exist.
	GetEvent(ctx context.Context, id EventID) (*LedgerEvent, error)

	// ListEvents returns a member's events ordered by CreatedAt ascending.
	ListEvents(ctx context.Context, memberID MemberID) ([]LedgerEvent, error)

	// ListAllEvents returns every member's events, newest first. An empty
	// status returns all of them.
	ListAllEvents(ctx context.Context, status EventStatus) ([]LedgerEvent, error)
}

// =============================================================================
// WRITERS (transaction scoped)
// =============================================================================

type ReservationWriter interface {
	// InsertReservations persists all rows or none.
	InsertReservations(ctx context.Context, rs []Reservation) error

	// TransitionReservation moves a reservation from one status to another.
	// Returns ErrStaleWrite if the stored status is no longer from.
	TransitionReservation(ctx context.Context, id ReservationID, from, to ReservationStatus, at time.Time) error
}

type LedgerWriter interface {
	AppendEvent(ctx context.Context, ev LedgerEvent) error

	// SetEventStatus compare-and-sets an event's status. Returns
	// ErrStaleWrite if the stored status is no longer from.
	SetEventStatus(ctx context.Context, id EventID, from, to EventStatus, at time.Time) error

	// AdjustBalance adds delta to the member's balance and spent to their
	// total spent in one statement, returning the updated member.
	AdjustBalance(ctx context.Context, memberID MemberID, delta, spent decimal.Decimal) (Member, error)
}

type Locker interface {
	LockResource(ctx context.Context, id ResourceID) error
	LockMember(ctx context.Context, id MemberID) error
}

// Tx is the handle for one atomic unit of work.
type Tx interface {
	ResourceReader
	ReservationReader
	ReservationWriter
	MemberReader
	LedgerReader
	LedgerWriter
	Locker
}

// =============================================================================
// STORE
// =============================================================================

// Store is the full persistence surface. Reads outside WithTx see
// committed state only.
type Store interface {
	ResourceReader
	ReservationReader
	MemberReader
	LedgerReader

	// Administrative writes. These are single-row and outside the booking
	// invariants.
	SaveResource(ctx context.Context, r Resource) error
	DeleteResource(ctx context.Context, id ResourceID) error
	CreateMember(ctx context.Context, m Member) error

	// WithTx runs fn in one transaction. fn's error rolls back; nil commits.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
