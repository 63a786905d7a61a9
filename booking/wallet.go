package booking

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// Wallet handles money that enters from outside: deposits wait as pending
// events until an admin approves or rejects them.
type Wallet struct {
	store  Store
	ledger *Ledger
}

func NewWallet(store Store, ledger *Ledger) *Wallet {
	return &Wallet{store: store, ledger: ledger}
}

// RequestDeposit records a pending deposit. The balance does not move until
// ApproveDeposit.
func (w *Wallet) RequestDeposit(ctx context.Context, memberID MemberID, amount decimal.Decimal, description, proofURL string) (LedgerEvent, error) {
	if !amount.IsPositive() {
		return LedgerEvent{}, ErrInvalidAmount
	}
	if description == "" {
		description = "Deposit request"
	}

	var ev LedgerEvent
	err := w.store.WithTx(ctx, func(tx Tx) error {
		if err := requireMember(ctx, tx, memberID); err != nil {
			return err
		}
		now := w.ledger.now().UTC()
		ev = LedgerEvent{
			ID:          EventID(w.ledger.newID()),
			MemberID:    memberID,
			Amount:      amount.Round(2),
			Kind:        KindDeposit,
			Status:      EventPending,
			Description: description,
			ProofURL:    proofURL,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil {
		return LedgerEvent{}, err
	}
	return ev, nil
}

// ApproveDeposit settles a pending deposit and credits the member.
func (w *Wallet) ApproveDeposit(ctx context.Context, eventID EventID) (LedgerEntry, error) {
	var entry LedgerEntry
	err := w.store.WithTx(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if ev == nil {
			return ErrEventNotFound
		}
		if ev.Kind != KindDeposit {
			return ErrEventNotPending
		}
		entry, err = w.ledger.Settle(ctx, tx, eventID)
		return err
	})
	return entry, err
}

// RejectDeposit closes a pending deposit without touching the balance.
func (w *Wallet) RejectDeposit(ctx context.Context, eventID EventID) (LedgerEvent, error) {
	var out LedgerEvent
	err := w.store.WithTx(ctx, func(tx Tx) error {
		ev, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if ev == nil {
			return ErrEventNotFound
		}
		if ev.Kind != KindDeposit || ev.Status != EventPending {
			return ErrEventNotPending
		}
		now := w.ledger.now().UTC()
		if err := tx.SetEventStatus(ctx, eventID, EventPending, EventRejected, now); err != nil {
			if errors.Is(err, ErrStaleWrite) {
				return ErrEventNotPending
			}
			return err
		}
		ev.Status = EventRejected
		ev.UpdatedAt = now
		out = *ev
		return nil
	})
	return out, err
}

// ListTransactions returns the member's events, newest first.
func (w *Wallet) ListTransactions(ctx context.Context, memberID MemberID) ([]LedgerEvent, error) {
	m, err := w.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMemberNotFound
	}
	evs, err := w.store.ListEvents(ctx, memberID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].CreatedAt.After(evs[j].CreatedAt) })
	return evs, nil
}

// MemberTransaction is a ledger event with its owner's name, for the admin
// ledger view.
type MemberTransaction struct {
	LedgerEvent
	MemberName string
}

// ListAllTransactions returns every member's events, newest first. Pass
// EventPending to find deposits awaiting approval; an empty status lists all.
func (w *Wallet) ListAllTransactions(ctx context.Context, status EventStatus) ([]MemberTransaction, error) {
	switch status {
	case "", EventPending, EventCompleted, EventRejected, EventFailed:
	default:
		return nil, ErrInvalidEventStatus
	}
	evs, err := w.store.ListAllEvents(ctx, status)
	if err != nil {
		return nil, err
	}

	names := make(map[MemberID]string)
	out := make([]MemberTransaction, len(evs))
	for i, ev := range evs {
		name, ok := names[ev.MemberID]
		if !ok {
			m, err := w.store.GetMember(ctx, ev.MemberID)
			if err != nil {
				return nil, err
			}
			if m != nil {
				name = m.FullName
			}
			names[ev.MemberID] = name
		}
		out[i] = MemberTransaction{LedgerEvent: ev, MemberName: name}
	}
	return out, nil
}
