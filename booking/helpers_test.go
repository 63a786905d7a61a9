package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/court-engine/booking"
	"github.com/warp/court-engine/booking/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	testNow   = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	evening   = time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC)
	courtA    = booking.ResourceID("court-a")
	courtB    = booking.ResourceID("court-b")
	alice     = booking.MemberID("alice")
	bob       = booking.MemberID("bob")
	perHour   = dec("100000")
	halfPrice = dec("50000")
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type testEnv struct {
	svc   *booking.Service
	store *store.Memory
	pub   *recordingPublisher
}

func newTestEnv(t *testing.T, opts ...booking.Option) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	pub := &recordingPublisher{}
	opts = append([]booking.Option{
		booking.WithClock(func() time.Time { return testNow }),
		booking.WithPublisher(pub),
	}, opts...)
	env := &testEnv{svc: booking.NewService(mem, opts...), store: mem, pub: pub}

	ctx := context.Background()
	for _, r := range []booking.Resource{
		{ID: courtA, Name: "Court A", PricePerHour: perHour, Active: true},
		{ID: courtB, Name: "Court B", PricePerHour: halfPrice, Active: true},
	} {
		require.NoError(t, mem.SaveResource(ctx, r))
	}
	for _, id := range []booking.MemberID{alice, bob} {
		_, err := env.svc.CreateMember(ctx, id, string(id))
		require.NoError(t, err)
	}
	return env
}

// fund credits a member through the deposit approval flow so the ledger
// stays consistent with the balance.
func (e *testEnv) fund(t *testing.T, id booking.MemberID, amount string) {
	t.Helper()
	ctx := context.Background()
	ev, err := e.svc.RequestDeposit(ctx, id, dec(amount), "top up", "")
	require.NoError(t, err)
	_, err = e.svc.ApproveDeposit(ctx, ev.ID)
	require.NoError(t, err)
}

func (e *testEnv) balance(t *testing.T, id booking.MemberID) decimal.Decimal {
	t.Helper()
	m, err := e.svc.GetMember(context.Background(), id)
	require.NoError(t, err)
	return m.Balance
}

func (e *testEnv) eventCount(t *testing.T, id booking.MemberID) int {
	t.Helper()
	evs, err := e.store.ListEvents(context.Background(), id)
	require.NoError(t, err)
	return len(evs)
}

func (e *testEnv) reservations(t *testing.T) []booking.Reservation {
	t.Helper()
	rs, err := e.store.ListReservations(context.Background(), testNow.AddDate(-1, 0, 0), testNow.AddDate(2, 0, 0))
	require.NoError(t, err)
	return rs
}

// assertNoOverlap checks every pair of active reservations per court.
func (e *testEnv) assertNoOverlap(t *testing.T) {
	t.Helper()
	rs := e.reservations(t)
	for i := range rs {
		for j := i + 1; j < len(rs); j++ {
			a, b := rs[i], rs[j]
			if a.ResourceID != b.ResourceID || !a.Status.HoldsSlot() || !b.Status.HoldsSlot() {
				continue
			}
			require.Falsef(t, a.Slot().Overlaps(b.Slot()), "reservations %s and %s overlap", a.ID, b.ID)
		}
	}
}

func (e *testEnv) assertLedgerConsistent(t *testing.T, ids ...booking.MemberID) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, e.svc.VerifyBalance(context.Background(), id))
	}
}

type published struct {
	Channel string
	Change  booking.CalendarChange
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
	fail bool
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	change, _ := payload.(booking.CalendarChange)
	p.sent = append(p.sent, published{Channel: channel, Change: change})
	return nil
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sent))
	for i, s := range p.sent {
		out[i] = s.Change.Action
	}
	return out
}
