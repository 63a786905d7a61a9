/*
errors.go - Centralized error types for the booking engine

PURPOSE:
  All error kinds in one place. Callers branch with errors.Is against the
  sentinels; structured errors carry detail for logs and Unwrap to them.

ERROR CATEGORIES:
  1. Booking errors - slot conflicts, unavailable courts, bad windows
  2. Ledger errors - funds, missing members, settlement state
  3. Cancellation errors - ownership, repeated cancels

BOUNDARY:
  UserMessage maps any error to one human-readable sentence per kind.
  Store and driver errors collapse to a generic message so persistence
  details never reach a client.
*/
package booking

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrResourceUnavailable     = errors.New("resource unavailable")
	ErrSlotConflict            = errors.New("slot conflict")
	ErrMemberNotFound          = errors.New("member not found")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrReservationNotFound     = errors.New("reservation not found")
	ErrNotOwner                = errors.New("reservation not owned by member")
	ErrAlreadyCancelled        = errors.New("reservation already cancelled")
	ErrInvalidRecurrenceWindow = errors.New("invalid recurrence window: end before start")

	// ErrSeriesTooLong is returned when a recurrence window expands to more
	// occurrences than the planner accepts.
	ErrSeriesTooLong = fmt.Errorf("%w: too many occurrences", ErrInvalidRecurrenceWindow)

	ErrInvalidDuration    = errors.New("invalid duration")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrEventNotFound      = errors.New("ledger event not found")
	ErrEventNotPending    = errors.New("ledger event is not pending")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrBalanceDrift       = errors.New("balance does not match ledger")
	ErrStaleWrite         = errors.New("row changed since it was read")
	ErrDuplicateID        = errors.New("duplicate id")
	ErrInvalidRange       = errors.New("invalid time range")
	ErrInvalidResource    = errors.New("invalid resource")
	ErrInvalidEventStatus = errors.New("invalid event status")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type InsufficientFundsError struct {
	MemberID  MemberID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: member %s has %s, needs %s",
		e.MemberID, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

type SlotConflictError struct {
	ResourceID    ResourceID
	Slot          Slot
	ConflictingID ReservationID // empty when the clash is inside one series
}

func (e *SlotConflictError) Error() string {
	if e.ConflictingID == "" {
		return fmt.Sprintf("slot conflict on %s at %s", e.ResourceID, e.Slot.Start.Format("2006-01-02 15:04"))
	}
	return fmt.Sprintf("slot conflict on %s at %s with reservation %s",
		e.ResourceID, e.Slot.Start.Format("2006-01-02 15:04"), e.ConflictingID)
}

func (e *SlotConflictError) Unwrap() error { return ErrSlotConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the request itself and
// retrying it unchanged will fail the same way.
func IsClientError(err error) bool {
	return errors.Is(err, ErrResourceUnavailable) ||
		errors.Is(err, ErrSlotConflict) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrInvalidRecurrenceWindow) ||
		errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrEventNotPending) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidResource) ||
		errors.Is(err, ErrInvalidEventStatus) ||
		errors.Is(err, ErrDuplicateID)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrReservationNotFound) ||
		errors.Is(err, ErrEventNotFound)
}

// UserMessage returns the message shown to a client for err.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrResourceUnavailable):
		return "Court not available."
	case errors.Is(err, ErrSlotConflict):
		return "Court is already booked for this time."
	case errors.Is(err, ErrMemberNotFound):
		return "Member not found."
	case errors.Is(err, ErrInsufficientFunds):
		return "Insufficient wallet balance."
	case errors.Is(err, ErrReservationNotFound):
		return "Booking not found."
	case errors.Is(err, ErrNotOwner):
		return "Booking belongs to another member."
	case errors.Is(err, ErrAlreadyCancelled):
		return "Booking is already cancelled."
	case errors.Is(err, ErrSeriesTooLong):
		return "Recurring window covers too many weeks."
	case errors.Is(err, ErrInvalidRecurrenceWindow):
		return "Recurrence end date is before the start."
	case errors.Is(err, ErrInvalidDuration):
		return "Duration must be a positive number of minutes."
	case errors.Is(err, ErrInvalidAmount):
		return "Amount must be positive."
	case errors.Is(err, ErrEventNotFound):
		return "Transaction not found."
	case errors.Is(err, ErrEventNotPending):
		return "Transaction is already processed."
	case errors.Is(err, ErrInvalidTransition):
		return "Booking cannot change to that status."
	case errors.Is(err, ErrInvalidRange):
		return "End of range must be after its start."
	case errors.Is(err, ErrInvalidResource):
		return "Court needs a name and a non-negative price."
	case errors.Is(err, ErrInvalidEventStatus):
		return "Unknown transaction status."
	case errors.Is(err, ErrDuplicateID):
		return "Record already exists."
	default:
		return "Internal error."
	}
}
