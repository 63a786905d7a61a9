package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var booked = Record{Status: 201, ContentType: "application/json", Body: []byte(`{"id":"r1"}`)}

func TestRedisStore_BeginClaimsNewKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()
	mock.ExpectSetNX("idem:booking:k1", "pending", time.Hour).SetVal(true)

	s := NewRedisStore(db, time.Hour)
	rec, err := s.Begin(ctx, "k1")
	assert.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_BeginInFlight(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()
	mock.ExpectSetNX("idem:booking:k1", "pending", time.Hour).SetVal(false)
	mock.ExpectGet("idem:booking:k1").SetVal("pending")

	s := NewRedisStore(db, time.Hour)
	_, err := s.Begin(ctx, "k1")
	assert.ErrorIs(t, err, ErrInFlight)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_BeginReplaysCompleted(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()
	b, _ := json.Marshal(booked)
	mock.ExpectSetNX("idem:booking:k1", "pending", time.Hour).SetVal(false)
	mock.ExpectGet("idem:booking:k1").SetVal(string(b))

	s := NewRedisStore(db, time.Hour)
	rec, err := s.Begin(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, booked, *rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_CompleteAndAbort(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()
	b, _ := json.Marshal(booked)
	mock.ExpectSet("idem:booking:k1", string(b), time.Hour).SetVal("OK")
	mock.ExpectDel("idem:booking:k2").SetVal(1)

	s := NewRedisStore(db, time.Hour)
	assert.NoError(t, s.Complete(ctx, "k1", booked))
	assert.NoError(t, s.Abort(ctx, "k2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_BeginRedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectSetNX("idem:booking:k1", "pending", DefaultTTL).SetErr(errors.New("connection refused"))

	s := NewRedisStore(db, 0)
	_, err := s.Begin(context.Background(), "k1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInFlight)
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	// GIVEN: A fresh key
	// WHEN: It is claimed, retried, completed, then retried again
	// THEN: The retry is in flight until completion, then replays the record
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	rec, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = s.Begin(ctx, "k")
	assert.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, s.Complete(ctx, "k", booked))
	rec, err = s.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, booked, *rec)

	now = now.Add(2 * time.Minute)
	rec, err = s.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, rec, "expired key is claimable again")
}

func TestMemoryStore_AbortReleases(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	_, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, s.Abort(ctx, "k"))

	rec, err := s.Begin(ctx, "k")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}
