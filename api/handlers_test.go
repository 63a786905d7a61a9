package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/court-engine/booking"
)

func TestBookingFlow_BookConflictCancel(t *testing.T) {
	// GIVEN: Alice with 150000 and a court at 100000/h
	ts := newTestServer(t)
	ts.seed("alice", "150000")
	_, err := ts.svc.CreateMember(context.Background(), "bob", "Bob")
	require.NoError(t, err)

	// WHEN: She books one hour
	rec := ts.do(http.MethodPost, "/api/members/alice/bookings", CreateBookingRequest{
		ResourceID: "court-a", Start: evening, DurationMinutes: 60,
	})

	// THEN: 201 with the price, and the balance drops
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[ReservationDTO](t, rec)
	assert.Equal(t, "confirmed", res.Status)
	assert.True(t, res.TotalPrice.Equal(decimal.NewFromInt(100000)))
	assert.True(t, ts.balance("alice").Equal(decimal.NewFromInt(50000)))

	// WHEN: Bob tries an overlapping half hour
	rec = ts.do(http.MethodPost, "/api/members/bob/bookings", CreateBookingRequest{
		ResourceID: "court-a", Start: evening.Add(30 * time.Minute), DurationMinutes: 30,
	})
	// THEN: 409 with the client message only
	require.Equal(t, http.StatusConflict, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "slot_conflict", errResp.Code)
	assert.Equal(t, "Court is already booked for this time.", errResp.Error)

	// WHEN: Alice cancels
	rec = ts.do(http.MethodPost, fmt.Sprintf("/api/members/alice/bookings/%s/cancel", res.ID), nil)
	// THEN: Cancelled with 75% back
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancel := decode[CancelResponse](t, rec)
	assert.True(t, cancel.Cancelled)
	assert.Equal(t, "cancelled", cancel.Reservation.Status)
	assert.True(t, ts.balance("alice").Equal(decimal.NewFromInt(125000)))

	// WHEN: She cancels again
	rec = ts.do(http.MethodPost, fmt.Sprintf("/api/members/alice/bookings/%s/cancel", res.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateBooking_Rejections(t *testing.T) {
	ts := newTestServer(t)
	ts.seed("alice", "50000")
	require.NoError(t, ts.mem.SaveResource(context.Background(), booking.Resource{ID: "closed", Name: "Closed", Active: false}))

	tests := []struct {
		name   string
		member string
		req    CreateBookingRequest
		status int
		code   string
	}{
		{"insufficient funds", "alice", CreateBookingRequest{ResourceID: "court-a", Start: evening, DurationMinutes: 60}, http.StatusPaymentRequired, "insufficient_funds"},
		{"inactive court", "alice", CreateBookingRequest{ResourceID: "closed", Start: evening, DurationMinutes: 60}, http.StatusUnprocessableEntity, "resource_unavailable"},
		{"bad duration", "alice", CreateBookingRequest{ResourceID: "court-a", Start: evening, DurationMinutes: 0}, http.StatusBadRequest, "invalid"},
		{"unknown member", "ghost", CreateBookingRequest{ResourceID: "court-a", Start: evening, DurationMinutes: 30}, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/members/"+tt.member+"/bookings", tt.req)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
	assert.True(t, ts.balance("alice").Equal(decimal.NewFromInt(50000)))
}

func TestCreateBooking_MalformedBody(t *testing.T) {
	ts := newTestServer(t)
	ts.seed("alice", "")

	rec := ts.do(http.MethodPost, "/api/members/alice/bookings", "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decode[ErrorResponse](t, rec).Code)
}

func TestCreateRecurringBooking(t *testing.T) {
	// GIVEN: Alice with enough for four weeks
	ts := newTestServer(t)
	ts.seed("alice", "400000")

	// WHEN: She books four Mondays
	rec := ts.do(http.MethodPost, "/api/members/alice/bookings/recurring", CreateRecurringRequest{
		ResourceID: "court-a", Start: evening, DurationMinutes: 60, Rule: "Weekly",
		EndDate: evening.AddDate(0, 0, 21),
	})

	// THEN: One series with a shared parent, fully paid
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	series := decode[SeriesResponse](t, rec)
	assert.Equal(t, 4, series.Count)
	assert.True(t, series.TotalPrice.Equal(decimal.NewFromInt(400000)))
	assert.Equal(t, series.Reservations[0].ID, series.ParentID)
	for _, r := range series.Reservations {
		assert.Equal(t, series.ParentID, r.ParentID)
	}
	assert.True(t, ts.balance("alice").IsZero())

	rec = ts.do(http.MethodGet, "/api/members/alice/bookings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ReservationDTO](t, rec), 4)
}

func TestGetCalendar(t *testing.T) {
	ts := newTestServer(t)
	ts.seed("alice", "100000")
	_, err := ts.svc.CreateSingleBooking(context.Background(), "alice", "court-a", evening, 60)
	require.NoError(t, err)

	rec := ts.do(http.MethodGet, "/api/calendar?from=2026-03-02T00:00:00Z&to=2026-03-03T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]CalendarEntryDTO](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "court-a", entries[0].ResourceID)
	assert.True(t, entries[0].Start.Equal(evening))
	assert.NotContains(t, rec.Body.String(), "alice")

	// Default window is the current day, which has nothing booked.
	rec = ts.do(http.MethodGet, "/api/calendar", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]CalendarEntryDTO](t, rec))

	rec = ts.do(http.MethodGet, "/api/calendar?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/calendar?from=2026-03-03T00:00:00Z&to=2026-03-02T00:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResourceAdmin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/resources", SaveResourceRequest{Name: "Court C", PricePerHour: decimal.RequireFromString("80000.456")})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[ResourceDTO](t, rec)
	assert.True(t, created.Active)
	assert.True(t, created.PricePerHour.Equal(decimal.RequireFromString("80000.46")))

	inactive := false
	rec = ts.do(http.MethodPut, "/api/resources/"+created.ID, SaveResourceRequest{Name: "Court C", PricePerHour: decimal.NewFromInt(90000), Active: &inactive})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[ResourceDTO](t, rec).Active)

	rec = ts.do(http.MethodPost, "/api/resources", SaveResourceRequest{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/resources/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(http.MethodGet, "/api/resources", nil)
	assert.Empty(t, decode[[]ResourceDTO](t, rec))
}

func TestWalletEndpoints(t *testing.T) {
	// GIVEN: A new member
	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/api/members", CreateMemberRequest{ID: "alice", FullName: "Alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(http.MethodPost, "/api/members", CreateMemberRequest{ID: "alice"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// WHEN: She requests a deposit and an admin approves it
	rec = ts.do(http.MethodPost, "/api/members/alice/deposits", DepositRequest{Amount: decimal.NewFromInt(200000), ProofURL: "https://example.com/slip.jpg"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dep := decode[TransactionDTO](t, rec)
	assert.Equal(t, "pending", dep.Status)

	rec = ts.do(http.MethodPost, "/api/admin/deposits/"+dep.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settled := decode[SettleResponse](t, rec)

	// THEN: The balance moves once
	assert.True(t, settled.Balance.Equal(decimal.NewFromInt(200000)))
	rec = ts.do(http.MethodPost, "/api/admin/deposits/"+dep.ID+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodGet, "/api/members/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[MemberDTO](t, rec).Balance.Equal(decimal.NewFromInt(200000)))

	// A second request is rejected and never touches the balance.
	rec = ts.do(http.MethodPost, "/api/members/alice/deposits", DepositRequest{Amount: decimal.NewFromInt(5)})
	other := decode[TransactionDTO](t, rec)
	rec = ts.do(http.MethodPost, "/api/admin/deposits/"+other.ID+"/reject", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rejected", decode[TransactionDTO](t, rec).Status)

	rec = ts.do(http.MethodGet, "/api/members/alice/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]TransactionDTO](t, rec), 2)

	rec = ts.do(http.MethodGet, "/api/members/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminTransactions_PendingDeposits(t *testing.T) {
	// GIVEN: Two members with one deposit each, one of them approved
	ts := newTestServer(t)
	ts.seed("alice", "100000")
	_, err := ts.svc.CreateMember(context.Background(), "bob", "Bob Jones")
	require.NoError(t, err)
	rec := ts.do(http.MethodPost, "/api/members/bob/deposits", DepositRequest{Amount: decimal.NewFromInt(30000)})
	require.Equal(t, http.StatusCreated, rec.Code)
	bobDep := decode[TransactionDTO](t, rec)

	// WHEN: An admin lists pending transactions
	rec = ts.do(http.MethodGet, "/api/admin/transactions?status=pending", nil)

	// THEN: Only Bob's deposit is waiting, with his name attached
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pending := decode[[]AdminTransactionDTO](t, rec)
	require.Len(t, pending, 1)
	assert.Equal(t, bobDep.ID, pending[0].ID)
	assert.Equal(t, "bob", pending[0].MemberID)
	assert.Equal(t, "Bob Jones", pending[0].MemberName)
	assert.Equal(t, "pending", pending[0].Status)

	rec = ts.do(http.MethodGet, "/api/admin/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]AdminTransactionDTO](t, rec)
	require.Len(t, all, 2)
	assert.Equal(t, bobDep.ID, all[0].ID)
	assert.Equal(t, "alice", all[1].MemberID)

	rec = ts.do(http.MethodGet, "/api/admin/transactions?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid", decode[ErrorResponse](t, rec).Code)
}

func TestTriggerCompletion(t *testing.T) {
	ts := newTestServer(t)
	ts.seed("alice", "100000")
	_, err := ts.svc.CreateSingleBooking(context.Background(), "alice", "court-a", evening, 60)
	require.NoError(t, err)

	rec := ts.do(http.MethodPost, "/api/admin/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[CompletionResponse](t, rec).Completed)

	ts.h.now = func() time.Time { return evening.Add(2 * time.Hour) }
	rec = ts.do(http.MethodPost, "/api/admin/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[CompletionResponse](t, rec).Completed)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.h.Ping = func(context.Context) error { return errors.New("db gone") }
	rec = ts.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db gone")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodGet, "/api/resources", nil)

	rec := ts.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "court_http_requests_total")
}

func TestStatusFor_HidesInternalErrors(t *testing.T) {
	status, code := statusFor(errors.New("pq: relation does not exist"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal", code)
	assert.Equal(t, "Internal error.", booking.UserMessage(errors.New("pq: relation does not exist")))
}
