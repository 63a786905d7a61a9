/*
recurring.go - Series expansion and atomic series booking

PURPOSE:
  A series is a weekly run of identical slots booked in one request and
  paid with one ledger event.

ALGORITHM:
  1. Expand start, start+7d, ... while <= endDate
  2. Price every slot and total them
  3. Fast-reject on funds before touching the calendar
  4. Check every slot against the calendar and against its siblings
  5. Debit the total once, insert every row

  Steps 3-5 share one transaction, so a conflict on the last slot leaves
  no debit and no rows behind.

LINKAGE:
  The root id is allocated before any row is written. Every reservation in
  the series, the root included, carries ParentID = root.ID.
*/
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMaxOccurrences caps a series at one year of weekly slots.
const DefaultMaxOccurrences = 52

const week = 7 * 24 * time.Hour

// PlanWeekly expands a weekly recurrence into its slots, in ascending order.
// endDate is inclusive: an occurrence starting exactly at endDate is kept.
func PlanWeekly(start time.Time, durationMinutes int, endDate time.Time, maxOccurrences int) ([]Slot, error) {
	if durationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	if endDate.Before(start) {
		return nil, ErrInvalidRecurrenceWindow
	}
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}

	var slots []Slot
	for t := start; !t.After(endDate); t = t.Add(week) {
		if len(slots) == maxOccurrences {
			return nil, fmt.Errorf("%w: more than %d", ErrSeriesTooLong, maxOccurrences)
		}
		slots = append(slots, NewSlot(t, durationMinutes))
	}
	return slots, nil
}

// NormalizeRule maps a requested recurrence rule onto a supported cadence.
// Weekly is the only one; anything else is booked as weekly.
func NormalizeRule(string) string { return RuleWeekly }

// CreateSeries books every weekly occurrence between start and endDate, or
// none of them.
func (e *Engine) CreateSeries(ctx context.Context, memberID MemberID, resourceID ResourceID, start time.Time, durationMinutes int, rule string, endDate time.Time) ([]Reservation, error) {
	slots, err := PlanWeekly(start.UTC().Truncate(TimePrecision), durationMinutes, endDate.UTC(), e.maxSeries)
	if err != nil {
		e.obs.BookingRejected(KindSeries, err)
		return nil, err
	}
	rule = NormalizeRule(rule)

	var created []Reservation
	err = e.store.WithTx(ctx, func(tx Tx) error {
		res, err := e.availableResource(ctx, tx, resourceID)
		if err != nil {
			return err
		}

		single := res.PriceFor(durationMinutes)
		total := single.Mul(decimal.NewFromInt(int64(len(slots))))

		// Fast reject before any calendar reads.
		if err := tx.LockMember(ctx, memberID); err != nil {
			return err
		}
		member, err := tx.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return ErrMemberNotFound
		}
		if member.Balance.LessThan(total) {
			return &InsufficientFundsError{MemberID: memberID, Available: member.Balance, Requested: total}
		}

		for i, slot := range slots {
			if i > 0 && slots[i-1].Overlaps(slot) {
				return &SlotConflictError{ResourceID: resourceID, Slot: slot}
			}
			if err := e.slots.check(ctx, tx, resourceID, slot); err != nil {
				return err
			}
		}

		rootID := ReservationID(e.newID())
		var eventID EventID
		if total.IsPositive() {
			desc := fmt.Sprintf("Recurring booking %s (%d slots)", res.Name, len(slots))
			entry, err := e.ledger.Debit(ctx, tx, memberID, total, KindPayment, string(rootID), desc)
			if err != nil {
				return err
			}
			eventID = entry.Event.ID
		}

		now := e.now().UTC()
		rows := make([]Reservation, len(slots))
		for i, slot := range slots {
			id := rootID
			if i > 0 {
				id = ReservationID(e.newID())
			}
			rows[i] = Reservation{
				ID:             id,
				ResourceID:     resourceID,
				MemberID:       memberID,
				Start:          slot.Start,
				End:            slot.End,
				TotalPrice:     single,
				Status:         StatusConfirmed,
				Recurring:      true,
				RecurrenceRule: rule,
				ParentID:       rootID,
				LedgerEventID:  eventID,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
		}
		if err := tx.InsertReservations(ctx, rows); err != nil {
			return err
		}
		created = rows
		return nil
	})
	if err != nil {
		e.obs.BookingRejected(KindSeries, err)
		return nil, err
	}

	total := decimal.Zero
	for _, r := range created {
		total = total.Add(r.TotalPrice)
	}
	e.obs.BookingCreated(KindSeries, len(created), total)
	for _, r := range created {
		e.publish(ctx, r, ActionCreated)
	}
	return created, nil
}
