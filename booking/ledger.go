/*
ledger.go - Member balance and its append-only history

PURPOSE:
  The Ledger is the only code that moves a member's balance. Each call
  appends exactly one LedgerEvent and applies its amount with a single
  atomic increment, so there is no load-mutate-save window.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: events are never deleted; only status moves afterwards
  2. BALANCE = SUM(Completed events) for every member
  3. NOT IDEMPOTENT: a retried Debit debits twice. Deduplicate upstream.

EXAMPLE FLOW:
  1. Deposit approved:   +150,000  (completed)
  2. Court booked:       -100,000  (payment, completed)
  3. Booking cancelled:  + 75,000  (refund, completed)

  Balance: 150,000 - 100,000 + 75,000 = 125,000
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger applies debits and credits inside a caller-owned transaction.
type Ledger struct {
	now   func() time.Time
	newID func() string
}

func NewLedger() *Ledger {
	return &Ledger{now: time.Now, newID: uuid.NewString}
}

// Debit removes amount from the member's balance. Fails with
// InsufficientFundsError when the balance is below amount. Payment debits
// also count toward the member's total spent.
func (l *Ledger) Debit(ctx context.Context, tx Tx, memberID MemberID, amount decimal.Decimal, kind EventKind, relatedID, description string) (LedgerEntry, error) {
	if !amount.IsPositive() {
		return LedgerEntry{}, ErrInvalidAmount
	}
	if err := tx.LockMember(ctx, memberID); err != nil {
		return LedgerEntry{}, err
	}
	member, err := tx.GetMember(ctx, memberID)
	if err != nil {
		return LedgerEntry{}, err
	}
	if member == nil {
		return LedgerEntry{}, ErrMemberNotFound
	}
	if member.Balance.LessThan(amount) {
		return LedgerEntry{}, &InsufficientFundsError{MemberID: memberID, Available: member.Balance, Requested: amount}
	}

	spent := decimal.Zero
	if kind == KindPayment {
		spent = amount
	}
	return l.apply(ctx, tx, memberID, amount.Neg(), spent, kind, relatedID, description)
}

// Credit adds amount to the member's balance. Never blocked on funds.
func (l *Ledger) Credit(ctx context.Context, tx Tx, memberID MemberID, amount decimal.Decimal, kind EventKind, relatedID, description string) (LedgerEntry, error) {
	if !amount.IsPositive() {
		return LedgerEntry{}, ErrInvalidAmount
	}
	if err := tx.LockMember(ctx, memberID); err != nil {
		return LedgerEntry{}, err
	}
	member, err := tx.GetMember(ctx, memberID)
	if err != nil {
		return LedgerEntry{}, err
	}
	if member == nil {
		return LedgerEntry{}, ErrMemberNotFound
	}
	return l.apply(ctx, tx, memberID, amount, decimal.Zero, kind, relatedID, description)
}

func (l *Ledger) apply(ctx context.Context, tx Tx, memberID MemberID, signed, spent decimal.Decimal, kind EventKind, relatedID, description string) (LedgerEntry, error) {
	now := l.now().UTC()
	ev := LedgerEvent{
		ID:          EventID(l.newID()),
		MemberID:    memberID,
		Amount:      signed,
		Kind:        kind,
		Status:      EventCompleted,
		RelatedID:   relatedID,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return LedgerEntry{}, fmt.Errorf("append ledger event: %w", err)
	}
	m, err := tx.AdjustBalance(ctx, memberID, signed, spent)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("adjust balance: %w", err)
	}
	return LedgerEntry{Event: ev, Balance: m.Balance}, nil
}

// Settle completes a pending event and applies its amount. Used by the
// deposit approval flow; the amount recorded at creation is what moves.
func (l *Ledger) Settle(ctx context.Context, tx Tx, eventID EventID) (LedgerEntry, error) {
	ev, err := tx.GetEvent(ctx, eventID)
	if err != nil {
		return LedgerEntry{}, err
	}
	if ev == nil {
		return LedgerEntry{}, ErrEventNotFound
	}
	if ev.Status != EventPending {
		return LedgerEntry{}, ErrEventNotPending
	}
	if err := tx.LockMember(ctx, ev.MemberID); err != nil {
		return LedgerEntry{}, err
	}
	if ev.Amount.IsNegative() {
		member, err := tx.GetMember(ctx, ev.MemberID)
		if err != nil {
			return LedgerEntry{}, err
		}
		if member == nil {
			return LedgerEntry{}, ErrMemberNotFound
		}
		if member.Balance.LessThan(ev.Amount.Neg()) {
			return LedgerEntry{}, &InsufficientFundsError{MemberID: ev.MemberID, Available: member.Balance, Requested: ev.Amount.Neg()}
		}
	}

	now := l.now().UTC()
	if err := tx.SetEventStatus(ctx, eventID, EventPending, EventCompleted, now); err != nil {
		if errors.Is(err, ErrStaleWrite) {
			return LedgerEntry{}, ErrEventNotPending
		}
		return LedgerEntry{}, err
	}
	m, err := tx.AdjustBalance(ctx, ev.MemberID, ev.Amount, decimal.Zero)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("adjust balance: %w", err)
	}
	ev.Status = EventCompleted
	ev.UpdatedAt = now
	return LedgerEntry{Event: *ev, Balance: m.Balance}, nil
}

// =============================================================================
// READ SIDE
// =============================================================================

// BalanceOf returns the member's committed balance.
func BalanceOf(ctx context.Context, r MemberReader, memberID MemberID) (decimal.Decimal, error) {
	m, err := r.GetMember(ctx, memberID)
	if err != nil {
		return decimal.Zero, err
	}
	if m == nil {
		return decimal.Zero, ErrMemberNotFound
	}
	return m.Balance, nil
}

// ReplayBalance sums the Completed events in evs.
func ReplayBalance(evs []LedgerEvent) decimal.Decimal {
	total := decimal.Zero
	for _, ev := range evs {
		if ev.Status == EventCompleted {
			total = total.Add(ev.Amount)
		}
	}
	return total
}

type ledgerSource interface {
	MemberReader
	LedgerReader
}

// VerifyBalance recomputes the member's balance from their events and
// returns ErrBalanceDrift if the stored balance disagrees.
func VerifyBalance(ctx context.Context, r ledgerSource, memberID MemberID) error {
	stored, err := BalanceOf(ctx, r, memberID)
	if err != nil {
		return err
	}
	evs, err := r.ListEvents(ctx, memberID)
	if err != nil {
		return err
	}
	if replayed := ReplayBalance(evs); !replayed.Equal(stored) {
		return fmt.Errorf("%w: member %s stored %s, events sum to %s",
			ErrBalanceDrift, memberID, stored.String(), replayed.String())
	}
	return nil
}
