// Package storetest runs the booking engine against any booking.Store so
// every backend is held to the same behavior.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/warp/court-engine/booking"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) booking.Store

var (
	evening = time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC)
	now     = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type env struct {
	store booking.Store
	svc   *booking.Service
}

func setup(t *testing.T, f Factory) env {
	t.Helper()
	ctx := context.Background()
	st := f(t)
	svc := booking.NewService(st, booking.WithClock(func() time.Time { return now }))

	for _, r := range []booking.Resource{
		{ID: "court-a", Name: "Court A", PricePerHour: dec("100000"), Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: "court-b", Name: "Court B", PricePerHour: dec("50000"), Active: true, CreatedAt: now, UpdatedAt: now},
	} {
		require.NoError(t, st.SaveResource(ctx, r))
	}
	for _, id := range []booking.MemberID{"alice", "bob"} {
		_, err := svc.CreateMember(ctx, id, string(id))
		require.NoError(t, err)
	}
	return env{store: st, svc: svc}
}

func (e env) fund(t *testing.T, id booking.MemberID, amount string) {
	t.Helper()
	ctx := context.Background()
	ev, err := e.svc.RequestDeposit(ctx, id, dec(amount), "top up", "")
	require.NoError(t, err)
	_, err = e.svc.ApproveDeposit(ctx, ev.ID)
	require.NoError(t, err)
}

func (e env) balance(t *testing.T, id booking.MemberID) decimal.Decimal {
	t.Helper()
	m, err := e.svc.GetMember(context.Background(), id)
	require.NoError(t, err)
	return m.Balance
}

// Run executes the contract suite.
func Run(t *testing.T, f Factory) {
	t.Run("SingleBookingAndConflict", func(t *testing.T) { singleBookingAndConflict(t, f) })
	t.Run("FailedBookingLeavesNoRows", func(t *testing.T) { failedBookingLeavesNoRows(t, f) })
	t.Run("SeriesAtomic", func(t *testing.T) { seriesAtomic(t, f) })
	t.Run("CancelRefundsOnce", func(t *testing.T) { cancelRefundsOnce(t, f) })
	t.Run("DepositFlow", func(t *testing.T) { depositFlow(t, f) })
	t.Run("CompletionSweep", func(t *testing.T) { completionSweep(t, f) })
	t.Run("ResourceTombstones", func(t *testing.T) { resourceTombstones(t, f) })
	t.Run("ConcurrentSameSlot", func(t *testing.T) { concurrentSameSlot(t, f) })
	t.Run("CompareAndSet", func(t *testing.T) { compareAndSet(t, f) })
	t.Run("AdminLedgerView", func(t *testing.T) { adminLedgerView(t, f) })
	t.Run("SeriesRacesSingles", func(t *testing.T) { seriesRacesSingles(t, f) })
}

func singleBookingAndConflict(t *testing.T, f Factory) {
	e := setup(t, f)
	e.fund(t, "alice", "150000")
	ctx := context.Background()

	r, err := e.svc.CreateSingleBooking(ctx, "alice", "court-a", evening, 60)
	require.NoError(t, err)
	assert.True(t, e.balance(t, "alice").Equal(dec("50000")))

	got, err := e.store.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, booking.StatusConfirmed, got.Status)
	assert.True(t, got.Start.Equal(evening))
	assert.True(t, got.End.Equal(evening.Add(time.Hour)))
	assert.True(t, got.TotalPrice.Equal(dec("100000")))
	assert.Equal(t, r.LedgerEventID, got.LedgerEventID)

	e.fund(t, "bob", "150000")
	_, err = e.svc.CreateSingleBooking(ctx, "bob", "court-a", evening.Add(59*time.Minute), 30)
	require.ErrorIs(t, err, booking.ErrSlotConflict)
	_, err = e.svc.CreateSingleBooking(ctx, "bob", "court-a", evening.Add(time.Hour), 30)
	require.NoError(t, err)

	require.NoError(t, e.svc.VerifyBalance(ctx, "alice"))
	require.NoError(t, e.svc.VerifyBalance(ctx, "bob"))
}

func failedBookingLeavesNoRows(t *testing.T, f Factory) {
	e := setup(t, f)
	e.fund(t, "alice", "40000")
	ctx := context.Background()

	before, err := e.store.ListEvents(ctx, "alice")
	require.NoError(t, err)

	_, err = e.svc.CreateSingleBooking(ctx, "alice", "court-a", evening, 60)
	require.ErrorIs(t, err, booking.ErrInsufficientFunds)

	after, err := e.store.ListEvents(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, after, len(before))
	mine, err := e.svc.ListMemberBookings(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func seriesAtomic(t *testing.T, f Factory) {
	e := setup(t, f)
	e.fund(t, "alice", "800000")
	e.fund(t, "bob", "100000")
	ctx := context.Background()

	rs, err := e.svc.CreateRecurringBooking(ctx, "alice", "court-b", evening, 60, "Weekly", evening.AddDate(0, 0, 21))
	require.NoError(t, err)
	require.Len(t, rs, 4)
	assert.True(t, e.balance(t, "alice").Equal(dec("600000")))

	stored, err := e.svc.ListMemberBookings(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, stored, 4)
	for _, r := range stored {
		assert.Equal(t, rs[0].ID, r.ParentID)
		assert.Equal(t, rs[0].LedgerEventID, r.LedgerEventID)
		assert.True(t, r.Recurring)
	}

	// Bob's blocker makes a second series fail on its last week.
	_, err = e.svc.CreateSingleBooking(ctx, "bob", "court-a", evening.AddDate(0, 0, 21), 60)
	require.NoError(t, err)
	_, err = e.svc.CreateRecurringBooking(ctx, "alice", "court-a", evening, 60, "Weekly", evening.AddDate(0, 0, 21))
	require.ErrorIs(t, err, booking.ErrSlotConflict)
	assert.True(t, e.balance(t, "alice").Equal(dec("600000")))

	stored, err = e.svc.ListMemberBookings(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, stored, 4)
	require.NoError(t, e.svc.VerifyBalance(ctx, "alice"))
}

func cancelRefundsOnce(t *testing.T, f Factory) {
	e := setup(t, f)
	e.fund(t, "alice", "100000")
	ctx := context.Background()

	r, err := e.svc.CreateSingleBooking(ctx, "alice", "court-a", evening, 60)
	require.NoError(t, err)

	assert.False(t, e.svc.CancelBooking(ctx, "bob", r.ID))
	assert.True(t, e.svc.CancelBooking(ctx, "alice", r.ID))
	assert.False(t, e.svc.CancelBooking(ctx, "alice", r.ID))
	assert.True(t, e.balance(t, "alice").Equal(dec("75000")))

	got, err := e.store.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, got.Status)

	// The freed slot is bookable again.
	e.fund(t, "bob", "100000")
	_, err = e.svc.CreateSingleBooking(ctx, "bob", "court-a", evening, 60)
	require.NoError(t, err)
	require.NoError(t, e.svc.VerifyBalance(ctx, "alice"))
}

func depositFlow(t *testing.T, f Factory) {
	e := setup(t, f)
	ctx := context.Background()

	ev, err := e.svc.RequestDeposit(ctx, "alice", dec("120000.50"), "transfer", "https://proof.example/a.png")
	require.NoError(t, err)
	assert.True(t, e.balance(t, "alice").IsZero())

	stored, err := e.store.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, booking.EventPending, stored.Status)
	assert.Equal(t, "https://proof.example/a.png", stored.ProofURL)

	_, err = e.svc.ApproveDeposit(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, e.balance(t, "alice").Equal(dec("120000.50")))
	_, err = e.svc.ApproveDeposit(ctx, ev.ID)
	require.ErrorIs(t, err, booking.ErrEventNotPending)

	rej, err := e.svc.RequestDeposit(ctx, "alice", dec("10"), "", "")
	require.NoError(t, err)
	_, err = e.svc.RejectDeposit(ctx, rej.ID)
	require.NoError(t, err)

	txs, err := e.svc.ListTransactions(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	require.NoError(t, e.svc.VerifyBalance(ctx, "alice"))
}

func completionSweep(t *testing.T, f Factory) {
	e := setup(t, f)
	e.fund(t, "alice", "250000")
	ctx := context.Background()

	past, err := e.svc.CreateSingleBooking(ctx, "alice", "court-a", evening, 60)
	require.NoError(t, err)
	future, err := e.svc.CreateSingleBooking(ctx, "alice", "court-a", evening.AddDate(0, 0, 1), 60)
	require.NoError(t, err)

	n, err := e.svc.CompleteEnded(ctx, evening.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := e.store.GetReservation(ctx, past.ID)
	assert.Equal(t, booking.StatusCompleted, got.Status)
	got, _ = e.store.GetReservation(ctx, future.ID)
	assert.Equal(t, booking.StatusConfirmed, got.Status)

	// A completed slot no longer blocks the calendar.
	_, err = e.svc.CreateSingleBooking(ctx, "alice", "court-b", evening, 60)
	require.NoError(t, err)
}

func resourceTombstones(t *testing.T, f Factory) {
	e := setup(t, f)
	e.fund(t, "alice", "100000")
	ctx := context.Background()

	require.NoError(t, e.svc.DeleteResource(ctx, "court-b"))
	r, err := e.store.GetResource(ctx, "court-b")
	require.NoError(t, err)
	assert.Nil(t, r)

	list, err := e.svc.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, booking.ResourceID("court-a"), list[0].ID)

	_, err = e.svc.CreateSingleBooking(ctx, "alice", "court-b", evening, 60)
	require.ErrorIs(t, err, booking.ErrResourceUnavailable)
}

func concurrentSameSlot(t *testing.T, f Factory) {
	e := setup(t, f)
	ctx := context.Background()

	const racers = 8
	var members []booking.MemberID
	for i := 0; i < racers; i++ {
		id := booking.MemberID(fmt.Sprintf("racer-%d", i))
		_, err := e.svc.CreateMember(ctx, id, "racer")
		require.NoError(t, err)
		e.fund(t, id, "100000")
		members = append(members, id)
	}

	var (
		mu   sync.Mutex
		wins int
	)
	var g errgroup.Group
	for _, m := range members {
		g.Go(func() error {
			_, err := e.svc.CreateSingleBooking(ctx, m, "court-a", evening, 60)
			if errors.Is(err, booking.ErrSlotConflict) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			wins++
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, wins)

	cal, err := e.svc.GetCalendar(ctx, evening.Add(-time.Hour), evening.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, cal, 1)
}

func compareAndSet(t *testing.T, f Factory) {
	e := setup(t, f)
	e.fund(t, "alice", "100000")
	ctx := context.Background()

	r, err := e.svc.CreateSingleBooking(ctx, "alice", "court-a", evening, 60)
	require.NoError(t, err)

	err = e.store.WithTx(ctx, func(tx booking.Tx) error {
		return tx.TransitionReservation(ctx, r.ID, booking.StatusPending, booking.StatusCancelled, now)
	})
	assert.ErrorIs(t, err, booking.ErrStaleWrite)

	err = e.store.WithTx(ctx, func(tx booking.Tx) error {
		return tx.SetEventStatus(ctx, r.LedgerEventID, booking.EventPending, booking.EventCompleted, now)
	})
	assert.ErrorIs(t, err, booking.ErrStaleWrite)

	err = e.store.WithTx(ctx, func(tx booking.Tx) error {
		return tx.TransitionReservation(ctx, "missing", booking.StatusConfirmed, booking.StatusCancelled, now)
	})
	assert.ErrorIs(t, err, booking.ErrReservationNotFound)
}

func adminLedgerView(t *testing.T, f Factory) {
	e := setup(t, f)
	ctx := context.Background()

	aliceDep, err := e.svc.RequestDeposit(ctx, "alice", dec("100000"), "", "")
	require.NoError(t, err)
	bobDep, err := e.svc.RequestDeposit(ctx, "bob", dec("20000"), "", "")
	require.NoError(t, err)
	_, err = e.svc.ApproveDeposit(ctx, aliceDep.ID)
	require.NoError(t, err)
	booked, err := e.svc.CreateSingleBooking(ctx, "alice", "court-b", evening, 60)
	require.NoError(t, err)

	all, err := e.store.ListAllEvents(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, booked.LedgerEventID, all[0].ID)
	assert.Equal(t, bobDep.ID, all[1].ID)
	assert.Equal(t, aliceDep.ID, all[2].ID)
	assert.Equal(t, booking.EventCompleted, all[2].Status)

	pending, err := e.svc.ListAllTransactions(ctx, booking.EventPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, bobDep.ID, pending[0].ID)
	assert.Equal(t, booking.MemberID("bob"), pending[0].MemberID)
	assert.Equal(t, "bob", pending[0].MemberName)
	assert.True(t, pending[0].Amount.Equal(dec("20000")))

	_, err = e.svc.ListAllTransactions(ctx, "settled")
	require.ErrorIs(t, err, booking.ErrInvalidEventStatus)
}

// seriesRacesSingles races weekly series against single bookings that land
// inside their weeks. Active rows on the court must never overlap and no
// series may be left partial.
func seriesRacesSingles(t *testing.T, f Factory) {
	e := setup(t, f)
	ctx := context.Background()

	type racer struct {
		id     booking.MemberID
		series bool
		start  time.Time
	}
	var racers []racer
	for i := 0; i < 8; i++ {
		id := booking.MemberID(fmt.Sprintf("mixed-%d", i))
		_, err := e.svc.CreateMember(ctx, id, "racer")
		require.NoError(t, err)
		e.fund(t, id, "1000000")

		rc := racer{id: id, series: i%2 == 0}
		if rc.series {
			rc.start = evening.Add(time.Duration(i/2%2) * 30 * time.Minute)
		} else {
			rc.start = evening.AddDate(0, 0, 7*(i/2)).Add(time.Duration(i%3) * 15 * time.Minute)
		}
		racers = append(racers, rc)
	}

	var g errgroup.Group
	for _, rc := range racers {
		g.Go(func() error {
			var err error
			if rc.series {
				_, err = e.svc.CreateRecurringBooking(ctx, rc.id, "court-a", rc.start, 60, "Weekly", rc.start.AddDate(0, 0, 21))
			} else {
				_, err = e.svc.CreateSingleBooking(ctx, rc.id, "court-a", rc.start, 60)
			}
			if errors.Is(err, booking.ErrSlotConflict) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	rows, err := e.store.ListReservations(ctx, evening.Add(-time.Hour), evening.AddDate(0, 0, 22))
	require.NoError(t, err)
	var active []booking.Reservation
	for _, r := range rows {
		if r.ResourceID == "court-a" && r.Status.HoldsSlot() {
			active = append(active, r)
		}
	}
	require.NotEmpty(t, active)
	for i := range active {
		for j := i + 1; j < len(active); j++ {
			assert.False(t, active[i].Slot().Overlaps(active[j].Slot()),
				"%s overlaps %s", active[i].ID, active[j].ID)
		}
	}

	for _, rc := range racers {
		mine, err := e.svc.ListMemberBookings(ctx, rc.id)
		require.NoError(t, err)
		if rc.series {
			assert.Contains(t, []int{0, 4}, len(mine), "series for %s is partial", rc.id)
		} else {
			assert.LessOrEqual(t, len(mine), 1)
		}
		require.NoError(t, e.svc.VerifyBalance(ctx, rc.id))
	}
}

// Reservation builds a confirmed one-hour row starting offsetMinutes after
// the suite's reference evening. For backend tests that bypass the engine.
func Reservation(id string, resourceID booking.ResourceID, memberID booking.MemberID, offsetMinutes int) booking.Reservation {
	start := evening.Add(time.Duration(offsetMinutes) * time.Minute)
	return booking.Reservation{
		ID:         booking.ReservationID(id),
		ResourceID: resourceID,
		MemberID:   memberID,
		Start:      start,
		End:        start.Add(time.Hour),
		TotalPrice: dec("100000"),
		Status:     booking.StatusConfirmed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
