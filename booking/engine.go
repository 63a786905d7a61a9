/*
engine.go - Reservation lifecycle against the calendar and the ledger

PURPOSE:
  The Engine is the only writer of reservations. Each operation runs its
  checks and mutations in one store transaction and publishes a calendar
  change only after that transaction commits.

SINGLE BOOKING:
  LockResource → load court → conflict check → price → Debit → insert

CANCELLATION:
  load → owner check → status CAS to cancelled → refund Credit

  The CAS means two concurrent cancels cannot both refund: the loser sees
  ErrStaleWrite and reports ErrAlreadyCancelled.

NOTIFICATIONS:
  Publish errors are logged and dropped. A committed booking is never
  reported as failed because a broadcast did not go out.
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Engine struct {
	store     Store
	ledger    *Ledger
	slots     SlotIndex
	policy    CancellationPolicy
	pub       Publisher
	obs       Observer
	now       func() time.Time
	newID     func() string
	maxSeries int
}

type Option func(*Engine)

func WithPublisher(p Publisher) Option { return func(e *Engine) { e.pub = p } }

func WithObserver(o Observer) Option { return func(e *Engine) { e.obs = o } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithIDGenerator replaces uuid.NewString for reservation and event ids.
func WithIDGenerator(f func() string) Option { return func(e *Engine) { e.newID = f } }

func WithRefundRate(rate decimal.Decimal) Option {
	return func(e *Engine) { e.policy = NewCancellationPolicy(rate) }
}

func WithMaxOccurrences(n int) Option { return func(e *Engine) { e.maxSeries = n } }

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		policy:    NewCancellationPolicy(DefaultRefundRate),
		pub:       nopPublisher{},
		obs:       nopObserver{},
		now:       time.Now,
		newID:     uuid.NewString,
		maxSeries: DefaultMaxOccurrences,
	}
	for _, opt := range opts {
		opt(e)
	}
	clock := e.now
	e.now = func() time.Time { return clock().UTC().Truncate(TimePrecision) }
	e.ledger = &Ledger{now: e.now, newID: e.newID}
	return e
}

// Ledger exposes the engine's ledger for flows that share its clock and ids.
func (e *Engine) Ledger() *Ledger { return e.ledger }

// =============================================================================
// SINGLE BOOKING
// =============================================================================

// CreateSingle books one slot and pays for it from the member's balance.
func (e *Engine) CreateSingle(ctx context.Context, memberID MemberID, resourceID ResourceID, start time.Time, durationMinutes int) (Reservation, error) {
	if durationMinutes <= 0 {
		e.obs.BookingRejected(KindSingle, ErrInvalidDuration)
		return Reservation{}, ErrInvalidDuration
	}
	slot := NewSlot(start.UTC().Truncate(TimePrecision), durationMinutes)

	var created Reservation
	err := e.store.WithTx(ctx, func(tx Tx) error {
		res, err := e.availableResource(ctx, tx, resourceID)
		if err != nil {
			return err
		}
		if err := e.slots.check(ctx, tx, resourceID, slot); err != nil {
			return err
		}

		price := res.PriceFor(durationMinutes)
		id := ReservationID(e.newID())

		var eventID EventID
		if price.IsPositive() {
			desc := fmt.Sprintf("Court booking %s %s", res.Name, slot.Start.Format("2006-01-02 15:04"))
			entry, err := e.ledger.Debit(ctx, tx, memberID, price, KindPayment, string(id), desc)
			if err != nil {
				return err
			}
			eventID = entry.Event.ID
		} else if err := requireMember(ctx, tx, memberID); err != nil {
			return err
		}

		now := e.now().UTC()
		r := Reservation{
			ID:            id,
			ResourceID:    resourceID,
			MemberID:      memberID,
			Start:         slot.Start,
			End:           slot.End,
			TotalPrice:    price,
			Status:        StatusConfirmed,
			LedgerEventID: eventID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertReservations(ctx, []Reservation{r}); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		e.obs.BookingRejected(KindSingle, err)
		return Reservation{}, err
	}

	e.obs.BookingCreated(KindSingle, 1, created.TotalPrice)
	e.publish(ctx, created, ActionCreated)
	return created, nil
}

// availableResource locks the court for the rest of tx and loads it.
func (e *Engine) availableResource(ctx context.Context, tx Tx, id ResourceID) (*Resource, error) {
	if err := tx.LockResource(ctx, id); err != nil {
		return nil, err
	}
	res, err := tx.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	if res == nil || !res.Active {
		return nil, ErrResourceUnavailable
	}
	return res, nil
}

func requireMember(ctx context.Context, tx Tx, id MemberID) error {
	m, err := tx.GetMember(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrMemberNotFound
	}
	return nil
}

// =============================================================================
// CANCELLATION
// =============================================================================

// Cancel cancels the member's reservation and credits the refund.
func (e *Engine) Cancel(ctx context.Context, memberID MemberID, id ReservationID) (Reservation, error) {
	var cancelled Reservation
	var refund decimal.Decimal

	err := e.store.WithTx(ctx, func(tx Tx) error {
		r, err := tx.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if r == nil {
			return ErrReservationNotFound
		}
		if r.MemberID != memberID {
			return ErrNotOwner
		}
		if r.Status == StatusCancelled {
			return ErrAlreadyCancelled
		}
		if !CanTransition(r.Status, StatusCancelled) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, r.Status, StatusCancelled)
		}

		now := e.now().UTC()
		if err := tx.TransitionReservation(ctx, id, r.Status, StatusCancelled, now); err != nil {
			if errors.Is(err, ErrStaleWrite) {
				return ErrAlreadyCancelled
			}
			return err
		}

		refund = e.policy.Refund(*r)
		if refund.IsPositive() {
			desc := fmt.Sprintf("Refund for booking %s", id)
			if _, err := e.ledger.Credit(ctx, tx, memberID, refund, KindRefund, string(id), desc); err != nil {
				return err
			}
		}

		r.Status = StatusCancelled
		r.UpdatedAt = now
		cancelled = *r
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}

	e.obs.BookingCancelled(refund)
	e.publish(ctx, cancelled, ActionCancelled)
	return cancelled, nil
}

// =============================================================================
// COMPLETION SWEEP
// =============================================================================

// CompleteEnded marks confirmed reservations that ended at or before asOf
// as completed. Returns how many moved.
func (e *Engine) CompleteEnded(ctx context.Context, asOf time.Time) (int, error) {
	var done []Reservation
	err := e.store.WithTx(ctx, func(tx Tx) error {
		ended, err := tx.ListEndedBefore(ctx, StatusConfirmed, asOf.UTC())
		if err != nil {
			return err
		}
		now := e.now().UTC()
		for _, r := range ended {
			err := tx.TransitionReservation(ctx, r.ID, StatusConfirmed, StatusCompleted, now)
			if errors.Is(err, ErrStaleWrite) {
				continue
			}
			if err != nil {
				return err
			}
			r.Status = StatusCompleted
			r.UpdatedAt = now
			done = append(done, r)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.obs.ReservationsCompleted(len(done))
	for _, r := range done {
		e.publish(ctx, r, ActionCompleted)
	}
	return len(done), nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (e *Engine) publish(ctx context.Context, r Reservation, action string) {
	ctx = context.WithoutCancel(ctx)
	if err := e.pub.Publish(ctx, CalendarChannel(r.ResourceID), calendarChange(r, action)); err != nil {
		log.Printf("[Booking] publish %s for reservation %s failed: %v", action, r.ID, err)
	}
}
