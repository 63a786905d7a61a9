package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/court-engine/booking"
	"github.com/warp/court-engine/booking/storetest"
	"github.com/warp/court-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLite_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) booking.Store { return newTestStore(t) })
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	// GIVEN: A file-backed store with one booking
	// WHEN: The store is closed and reopened
	// THEN: Reservation, member balance and ledger are intact
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "court.db")
	at := time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC)

	store, err := sqlite.New(path)
	require.NoError(t, err)
	svc := booking.NewService(store)
	_, err = svc.SaveResource(ctx, booking.Resource{ID: "", Name: "Court A", PricePerHour: decimal.NewFromInt(100000), Active: true})
	require.NoError(t, err)
	courts, err := svc.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, courts, 1)

	_, err = svc.CreateMember(ctx, "alice", "Alice")
	require.NoError(t, err)
	dep, err := svc.RequestDeposit(ctx, "alice", decimal.NewFromInt(150000), "", "")
	require.NoError(t, err)
	_, err = svc.ApproveDeposit(ctx, dep.ID)
	require.NoError(t, err)
	r, err := svc.CreateSingleBooking(ctx, "alice", courts[0].ID, at, 60)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	got, err := reopened.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Start.Equal(at))
	assert.Equal(t, booking.StatusConfirmed, got.Status)

	m, err := reopened.GetMember(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, m.Balance.Equal(decimal.NewFromInt(50000)))
	require.NoError(t, booking.VerifyBalance(ctx, reopened, "alice"))
}

func TestSQLite_TimeOrderingAcrossZones(t *testing.T) {
	// Instants written from another zone must compare correctly against UTC.
	ctx := context.Background()
	store := newTestStore(t)
	svc := booking.NewService(store)

	require.NoError(t, store.SaveResource(ctx, booking.Resource{ID: "c", Name: "C", PricePerHour: decimal.Zero, Active: true}))
	_, err := svc.CreateMember(ctx, "alice", "")
	require.NoError(t, err)

	jakarta := time.FixedZone("WIB", 7*3600)
	local := time.Date(2026, time.March, 3, 1, 0, 0, 0, jakarta) // 18:00 UTC on the 2nd
	_, err = svc.CreateSingleBooking(ctx, "alice", "c", local, 60)
	require.NoError(t, err)

	_, err = svc.CreateSingleBooking(ctx, "alice", "c", time.Date(2026, time.March, 2, 18, 30, 0, 0, time.UTC), 30)
	assert.ErrorIs(t, err, booking.ErrSlotConflict)
}

func TestSQLite_DuplicateMember(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateMember(ctx, booking.Member{ID: "alice"}))
	assert.ErrorIs(t, store.CreateMember(ctx, booking.Member{ID: "alice"}), booking.ErrDuplicateID)
}

func TestSQLite_ReturnedTimesMatchStoredRows(t *testing.T) {
	// GIVEN: A booking requested with sub-microsecond precision
	ctx := context.Background()
	store := newTestStore(t)
	clock := time.Date(2026, time.March, 1, 9, 0, 0, 123456789, time.UTC)
	svc := booking.NewService(store, booking.WithClock(func() time.Time { return clock }))
	require.NoError(t, store.SaveResource(ctx, booking.Resource{ID: "c", Name: "C", PricePerHour: decimal.Zero, Active: true}))
	_, err := svc.CreateMember(ctx, "alice", "")
	require.NoError(t, err)

	// WHEN: It is booked and read back
	start := time.Date(2026, time.March, 2, 18, 0, 0, 999, time.UTC)
	r, err := svc.CreateSingleBooking(ctx, "alice", "c", start, 60)
	require.NoError(t, err)
	got, err := store.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	// THEN: The returned reservation equals the stored row exactly
	assert.True(t, r.Start.Equal(got.Start), "%s vs %s", r.Start, got.Start)
	assert.True(t, r.End.Equal(got.End))
	assert.True(t, r.CreatedAt.Equal(got.CreatedAt), "%s vs %s", r.CreatedAt, got.CreatedAt)
	assert.Equal(t, 0, got.Start.Nanosecond()%1000)
}

func TestSQLite_CorruptTimeIsAnError(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "court.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, store.CreateMember(ctx, booking.Member{ID: "alice", CreatedAt: time.Now()}))
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE members SET created_at = 'yesterday' WHERE id = 'alice'")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	_, err = reopened.GetMember(ctx, "alice")
	assert.ErrorContains(t, err, "yesterday")
}
