/*
Package booking provides the court reservation engine.

PURPOSE:
  This package owns the two mutable resources that every reservation touches:
  the calendar (reservations per court) and the ledger (a member's prepaid
  balance and its history). Everything else (auth, tournaments, profiles)
  lives outside and talks to it through Service.

KEY CONCEPTS IN THIS FILE (types.go):
  - Resource: A bookable court with an hourly price
  - Slot: A half-open [Start, End) interval on one court
  - Reservation: A member's claim on a slot, paid from the balance
  - LedgerEvent: One signed, immutable entry against a member's balance
  - Member: The balance holder (balance + total spent)

INVARIANTS:
  1. No two active (Pending/Confirmed) reservations on a court overlap
  2. A member's balance equals the sum of their Completed ledger events
  3. Amounts are decimal.Decimal, never float64

SEE ALSO:
  - engine.go: Single booking, series booking and cancellation
  - ledger.go: Debit / Credit against the balance
  - store.go: Persistence contract and the explicit transaction handle
*/
package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ResourceID string
type MemberID string
type ReservationID string
type EventID string

// =============================================================================
// RESOURCE - A bookable court
// =============================================================================

type Resource struct {
	ID           ResourceID
	Name         string
	Description  string
	PricePerHour decimal.Decimal
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PriceFor returns the price of holding the resource for the given number
// of minutes, rounded to cents.
func (r Resource) PriceFor(durationMinutes int) decimal.Decimal {
	return r.PricePerHour.
		Mul(decimal.NewFromInt(int64(durationMinutes))).
		Div(decimal.NewFromInt(60)).
		Round(2)
}

// =============================================================================
// SLOT - Half-open time interval
// =============================================================================

type Slot struct {
	Start time.Time
	End   time.Time
}

// TimePrecision is the finest resolution every store keeps. The engine
// truncates times to it so what it returns matches what was stored.
const TimePrecision = time.Microsecond

func NewSlot(start time.Time, durationMinutes int) Slot {
	return Slot{Start: start, End: start.Add(time.Duration(durationMinutes) * time.Minute)}
}

// Overlaps reports whether two slots share any instant. Touching endpoints
// do not overlap.
func (s Slot) Overlaps(o Slot) bool {
	return s.Start.Before(o.End) && s.End.After(o.Start)
}

func (s Slot) Duration() time.Duration { return s.End.Sub(s.Start) }

// =============================================================================
// RESERVATION
// =============================================================================

type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
)

// HoldsSlot reports whether a reservation in this status blocks its slot.
func (s ReservationStatus) HoldsSlot() bool {
	return s == StatusPending || s == StatusConfirmed
}

// ActiveStatuses are the statuses that participate in conflict checks.
var ActiveStatuses = []ReservationStatus{StatusPending, StatusConfirmed}

var validNext = map[ReservationStatus]map[ReservationStatus]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusCancelled: true, StatusCompleted: true},
	// Late cancellation of a played slot still refunds under the flat fee.
	StatusCompleted: {StatusCancelled: true},
	StatusCancelled: {},
}

func CanTransition(from, to ReservationStatus) bool {
	return validNext[from][to]
}

// RuleWeekly is the only recurrence cadence the planner expands.
const RuleWeekly = "Weekly"

type Reservation struct {
	ID             ReservationID
	ResourceID     ResourceID
	MemberID       MemberID
	Start          time.Time
	End            time.Time
	TotalPrice     decimal.Decimal
	Status         ReservationStatus
	Recurring      bool
	RecurrenceRule string

	// ParentID links a series. Every member of a series, the root included,
	// carries the root's id. Empty for single bookings.
	ParentID ReservationID

	// LedgerEventID is the payment that funded this reservation. All members
	// of a series share one event.
	LedgerEventID EventID

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Reservation) Slot() Slot { return Slot{Start: r.Start, End: r.End} }

// IsSeriesRoot reports whether r is the first reservation of its series.
func (r Reservation) IsSeriesRoot() bool { return r.ParentID != "" && r.ParentID == r.ID }

// =============================================================================
// LEDGER EVENT - Immutable balance entry
// =============================================================================

type EventKind string

const (
	KindDeposit  EventKind = "deposit"
	KindWithdraw EventKind = "withdraw"
	KindPayment  EventKind = "payment"
	KindRefund   EventKind = "refund"
	KindReward   EventKind = "reward"
)

type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventCompleted EventStatus = "completed"
	EventRejected  EventStatus = "rejected"
	EventFailed    EventStatus = "failed"
)

type LedgerEvent struct {
	ID       EventID
	MemberID MemberID

	// Amount is signed: debits are negative, credits positive. Never
	// changes after creation.
	Amount decimal.Decimal

	Kind        EventKind
	Status      EventStatus
	RelatedID   string // reservation or series root this event funded/refunded
	Description string
	ProofURL    string // deposit evidence, optional

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// MEMBER - Balance holder
// =============================================================================

type Member struct {
	ID         MemberID
	FullName   string
	Balance    decimal.Decimal
	TotalSpent decimal.Decimal
	CreatedAt  time.Time
}

// LedgerEntry is the result of a balance mutation: the appended event and
// the member's balance right after it.
type LedgerEntry struct {
	Event   LedgerEvent
	Balance decimal.Decimal
}
