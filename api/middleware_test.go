package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/court-engine/idempotency"
)

func TestIdempotent_ReplaysFirstResponse(t *testing.T) {
	// GIVEN: A booking POST with an Idempotency-Key
	ts := newTestServer(t)
	ts.seed("alice", "300000")
	req := CreateBookingRequest{ResourceID: "court-a", Start: evening, DurationMinutes: 60}

	first := ts.do(http.MethodPost, "/api/members/alice/bookings", req, HeaderIdempotencyKey, "k1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	// WHEN: The client retries with the same key
	second := ts.do(http.MethodPost, "/api/members/alice/bookings", req, HeaderIdempotencyKey, "k1")

	// THEN: The stored response is replayed and nothing is booked twice
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	bookings, err := ts.svc.ListMemberBookings(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
	assert.True(t, ts.balance("alice").Equal(decimal.NewFromInt(200000)))
}

func TestIdempotent_ClientErrorsAreReplayedToo(t *testing.T) {
	ts := newTestServer(t)
	ts.seed("alice", "")
	req := CreateBookingRequest{ResourceID: "court-a", Start: evening, DurationMinutes: 60}

	first := ts.do(http.MethodPost, "/api/members/alice/bookings", req, HeaderIdempotencyKey, "k2")
	require.Equal(t, http.StatusPaymentRequired, first.Code)

	second := ts.do(http.MethodPost, "/api/members/alice/bookings", req, HeaderIdempotencyKey, "k2")
	assert.Equal(t, http.StatusPaymentRequired, second.Code)
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
}

func TestIdempotent_InFlightDuplicate(t *testing.T) {
	ts := newTestServer(t)
	ts.seed("alice", "100000")

	// Another request holds the key.
	_, err := ts.idem.Begin(context.Background(), "POST /api/members/alice/bookings k3")
	require.NoError(t, err)

	rec := ts.do(http.MethodPost, "/api/members/alice/bookings",
		CreateBookingRequest{ResourceID: "court-a", Start: evening, DurationMinutes: 60},
		HeaderIdempotencyKey, "k3")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "in_flight", decode[ErrorResponse](t, rec).Code)
	assert.True(t, ts.balance("alice").Equal(decimal.NewFromInt(100000)))
}

func TestIdempotent_KeysAreScopedToPath(t *testing.T) {
	ts := newTestServer(t)
	ts.seed("alice", "100000")
	_, err := ts.svc.CreateMember(context.Background(), "bob", "")
	require.NoError(t, err)

	rec := ts.do(http.MethodPost, "/api/members/alice/deposits", DepositRequest{Amount: decimal.NewFromInt(1000)}, HeaderIdempotencyKey, "same")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(http.MethodPost, "/api/members/bob/deposits", DepositRequest{Amount: decimal.NewFromInt(1000)}, HeaderIdempotencyKey, "same")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderReplayed))
}

func TestIdempotent_NoKeyPassesThrough(t *testing.T) {
	ts := newTestServer(t)
	ts.seed("alice", "")

	for i := 0; i < 2; i++ {
		rec := ts.do(http.MethodPost, "/api/members/alice/deposits", DepositRequest{Amount: decimal.NewFromInt(1)})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	evs, err := ts.svc.ListTransactions(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, evs, 2)
}

// ctxStore fails like a networked store once the caller's context is done.
type ctxStore struct {
	*idempotency.MemoryStore
}

func (s ctxStore) Complete(ctx context.Context, key string, rec idempotency.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Complete(ctx, key, rec)
}

func (s ctxStore) Abort(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Abort(ctx, key)
}

func keyedPost(key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/things", nil)
	req.Header.Set(HeaderIdempotencyKey, key)
	return req
}

func TestIdempotent_PanicReleasesKey(t *testing.T) {
	// GIVEN: A handler that panics on its first call, behind the recoverer
	calls := 0
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.With(Idempotent(idempotency.NewMemoryStore(time.Hour))).Post("/things", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		writeJSON(w, http.StatusCreated, map[string]int{"call": calls})
	})

	first := httptest.NewRecorder()
	r.ServeHTTP(first, keyedPost("p1"))
	require.Equal(t, http.StatusInternalServerError, first.Code)

	// WHEN: The client retries with the same key
	second := httptest.NewRecorder()
	r.ServeHTTP(second, keyedPost("p1"))

	// THEN: The retry runs the handler instead of reporting in flight
	assert.Equal(t, http.StatusCreated, second.Code, second.Body.String())
	assert.Empty(t, second.Header().Get(HeaderReplayed))
	assert.Equal(t, 2, calls)
}

func TestIdempotent_CompletesAfterClientHangsUp(t *testing.T) {
	// GIVEN: A store that honours context cancellation
	ctx, hangUp := context.WithCancel(context.Background())
	calls := 0
	h := Idempotent(ctxStore{idempotency.NewMemoryStore(time.Hour)})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		hangUp()
		writeJSON(w, http.StatusCreated, map[string]int{"call": calls})
	}))

	// WHEN: The client disconnects while its request is being served
	first := httptest.NewRecorder()
	h.ServeHTTP(first, keyedPost("c1").WithContext(ctx))
	require.Equal(t, http.StatusCreated, first.Code)

	// THEN: The retry replays the stored response instead of hitting 409
	retry := httptest.NewRecorder()
	h.ServeHTTP(retry, keyedPost("c1"))
	assert.Equal(t, http.StatusCreated, retry.Code, retry.Body.String())
	assert.Equal(t, "true", retry.Header().Get(HeaderReplayed))
	assert.JSONEq(t, first.Body.String(), retry.Body.String())
	assert.Equal(t, 1, calls)
}
