package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/court-engine/booking"
	"github.com/warp/court-engine/booking/store"
	"github.com/warp/court-engine/idempotency"
)

var (
	testNow = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	evening = time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC)
)

type testServer struct {
	t      *testing.T
	mem    *store.Memory
	svc    *booking.Service
	idem   *idempotency.MemoryStore
	h      *Handler
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	clock := func() time.Time { return testNow }
	svc := booking.NewService(mem, booking.WithClock(clock))
	idem := idempotency.NewMemoryStore(time.Hour)
	h := NewHandler(svc, mem, idem)
	h.now = clock
	return &testServer{t: t, mem: mem, svc: svc, idem: idem, h: h, router: NewRouter(h, nil)}
}

func (ts *testServer) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seed adds court-a at 100000/h and a member funded with amount.
func (ts *testServer) seed(member booking.MemberID, amount string) {
	ts.t.Helper()
	ctx := context.Background()
	require.NoError(ts.t, ts.mem.SaveResource(ctx, booking.Resource{
		ID: "court-a", Name: "Court A", PricePerHour: decimal.NewFromInt(100000), Active: true,
	}))
	_, err := ts.svc.CreateMember(ctx, member, string(member))
	require.NoError(ts.t, err)
	if amount == "" {
		return
	}
	ev, err := ts.svc.RequestDeposit(ctx, member, decimal.RequireFromString(amount), "", "")
	require.NoError(ts.t, err)
	_, err = ts.svc.ApproveDeposit(ctx, ev.ID)
	require.NoError(ts.t, err)
}

func (ts *testServer) balance(member booking.MemberID) decimal.Decimal {
	ts.t.Helper()
	m, err := ts.svc.GetMember(context.Background(), member)
	require.NoError(ts.t, err)
	return m.Balance
}
