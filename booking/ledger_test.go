package booking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/court-engine/booking"
	"github.com/warp/court-engine/booking/store"
)

func newLedgerStore(t *testing.T, balance string) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.CreateMember(context.Background(), booking.Member{ID: alice, Balance: dec("0"), TotalSpent: dec("0")}))
	if balance != "0" {
		err := mem.WithTx(context.Background(), func(tx booking.Tx) error {
			_, err := booking.NewLedger().Credit(context.Background(), tx, alice, dec(balance), booking.KindDeposit, "", "opening")
			return err
		})
		require.NoError(t, err)
	}
	return mem
}

func TestLedger_DebitAndCredit(t *testing.T) {
	ctx := context.Background()
	mem := newLedgerStore(t, "150000")
	l := booking.NewLedger()

	var debit, credit booking.LedgerEntry
	err := mem.WithTx(ctx, func(tx booking.Tx) error {
		var err error
		if debit, err = l.Debit(ctx, tx, alice, dec("100000"), booking.KindPayment, "r-1", "court"); err != nil {
			return err
		}
		credit, err = l.Credit(ctx, tx, alice, dec("75000"), booking.KindRefund, "r-1", "refund")
		return err
	})
	require.NoError(t, err)

	assert.True(t, debit.Event.Amount.Equal(dec("-100000")))
	assert.Equal(t, booking.EventCompleted, debit.Event.Status)
	assert.True(t, debit.Balance.Equal(dec("50000")))
	assert.True(t, credit.Balance.Equal(dec("125000")))

	bal, err := booking.BalanceOf(ctx, mem, alice)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("125000")))

	m, _ := mem.GetMember(ctx, alice)
	assert.True(t, m.TotalSpent.Equal(dec("100000")), "only payments count toward spent")
	require.NoError(t, booking.VerifyBalance(ctx, mem, alice))
}

func TestLedger_DebitRejects(t *testing.T) {
	ctx := context.Background()
	mem := newLedgerStore(t, "40000")
	l := booking.NewLedger()

	tests := []struct {
		name    string
		member  booking.MemberID
		amount  string
		wantErr error
	}{
		{"insufficient", alice, "100000", booking.ErrInsufficientFunds},
		{"zero", alice, "0", booking.ErrInvalidAmount},
		{"negative", alice, "-1", booking.ErrInvalidAmount},
		{"unknown member", "ghost", "10", booking.ErrMemberNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mem.WithTx(ctx, func(tx booking.Tx) error {
				_, err := l.Debit(ctx, tx, tt.member, dec(tt.amount), booking.KindPayment, "", "")
				return err
			})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	bal, err := booking.BalanceOf(ctx, mem, alice)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("40000")))
}

func TestLedger_DebitExactBalance(t *testing.T) {
	ctx := context.Background()
	mem := newLedgerStore(t, "100000")

	err := mem.WithTx(ctx, func(tx booking.Tx) error {
		_, err := booking.NewLedger().Debit(ctx, tx, alice, dec("100000"), booking.KindPayment, "", "")
		return err
	})
	require.NoError(t, err)
	bal, _ := booking.BalanceOf(ctx, mem, alice)
	assert.True(t, bal.IsZero())
}

func TestLedger_RollbackDiscardsEventAndBalance(t *testing.T) {
	ctx := context.Background()
	mem := newLedgerStore(t, "100000")
	boom := errors.New("boom")

	err := mem.WithTx(ctx, func(tx booking.Tx) error {
		if _, err := booking.NewLedger().Debit(ctx, tx, alice, dec("60000"), booking.KindPayment, "", ""); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	bal, _ := booking.BalanceOf(ctx, mem, alice)
	assert.True(t, bal.Equal(dec("100000")))
	evs, _ := mem.ListEvents(ctx, alice)
	assert.Len(t, evs, 1)
}

func TestVerifyBalance_DetectsDrift(t *testing.T) {
	ctx := context.Background()
	mem := newLedgerStore(t, "100000")

	// A balance write with no matching event.
	err := mem.WithTx(ctx, func(tx booking.Tx) error {
		_, err := tx.AdjustBalance(ctx, alice, dec("1"), dec("0"))
		return err
	})
	require.NoError(t, err)

	assert.ErrorIs(t, booking.VerifyBalance(ctx, mem, alice), booking.ErrBalanceDrift)
	assert.ErrorIs(t, booking.VerifyBalance(ctx, mem, "ghost"), booking.ErrMemberNotFound)
}

func TestReplayBalance_IgnoresNonCompleted(t *testing.T) {
	evs := []booking.LedgerEvent{
		{Amount: dec("100"), Status: booking.EventCompleted},
		{Amount: dec("500"), Status: booking.EventPending},
		{Amount: dec("-30"), Status: booking.EventCompleted},
		{Amount: dec("70"), Status: booking.EventRejected},
	}
	assert.True(t, booking.ReplayBalance(evs).Equal(dec("70")))
}

// =============================================================================
// SLOTS
// =============================================================================

func TestSlot_Overlaps(t *testing.T) {
	base := booking.NewSlot(evening, 60)
	tests := []struct {
		name  string
		other booking.Slot
		want  bool
	}{
		{"identical", base, true},
		{"inside", booking.NewSlot(evening.Add(15*time.Minute), 30), true},
		{"covering", booking.NewSlot(evening.Add(-time.Hour), 180), true},
		{"overlap start", booking.NewSlot(evening.Add(-30*time.Minute), 60), true},
		{"overlap end", booking.NewSlot(evening.Add(30*time.Minute), 60), true},
		{"touch before", booking.NewSlot(evening.Add(-time.Hour), 60), false},
		{"touch after", booking.NewSlot(evening.Add(time.Hour), 60), false},
		{"disjoint", booking.NewSlot(evening.Add(3*time.Hour), 60), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(base), "overlap must be symmetric")
		})
	}
}

func TestSlotIndex_IgnoresInactiveReservations(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	slot := booking.NewSlot(evening, 60)

	err := mem.WithTx(ctx, func(tx booking.Tx) error {
		return tx.InsertReservations(ctx, []booking.Reservation{
			{ID: "cancelled", ResourceID: courtA, Start: slot.Start, End: slot.End, Status: booking.StatusCancelled},
			{ID: "completed", ResourceID: courtA, Start: slot.Start, End: slot.End, Status: booking.StatusCompleted},
			{ID: "other-court", ResourceID: courtB, Start: slot.Start, End: slot.End, Status: booking.StatusConfirmed},
		})
	})
	require.NoError(t, err)

	var idx booking.SlotIndex
	busy, err := idx.HasConflict(ctx, mem, courtA, slot)
	require.NoError(t, err)
	assert.False(t, busy)

	err = mem.WithTx(ctx, func(tx booking.Tx) error {
		return tx.InsertReservations(ctx, []booking.Reservation{
			{ID: "pending", ResourceID: courtA, Start: slot.Start.Add(30 * time.Minute), End: slot.End.Add(30 * time.Minute), Status: booking.StatusPending},
		})
	})
	require.NoError(t, err)

	c, err := idx.Conflict(ctx, mem, courtA, slot)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, booking.ReservationID("pending"), c.ID)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, booking.CanTransition(booking.StatusPending, booking.StatusConfirmed))
	assert.True(t, booking.CanTransition(booking.StatusConfirmed, booking.StatusCancelled))
	assert.True(t, booking.CanTransition(booking.StatusConfirmed, booking.StatusCompleted))
	assert.False(t, booking.CanTransition(booking.StatusCancelled, booking.StatusConfirmed))
	assert.False(t, booking.CanTransition(booking.StatusCancelled, booking.StatusCancelled))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Insufficient wallet balance.", booking.UserMessage(&booking.InsufficientFundsError{}))
	assert.Equal(t, "Recurring window covers too many weeks.", booking.UserMessage(booking.ErrSeriesTooLong))
	assert.Equal(t, "Internal error.", booking.UserMessage(errors.New("sql: connection refused")))
	assert.True(t, booking.IsClientError(&booking.SlotConflictError{}))
	assert.True(t, booking.IsNotFound(booking.ErrReservationNotFound))
	assert.False(t, booking.IsClientError(errors.New("disk full")))
}
