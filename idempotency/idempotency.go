/*
Package idempotency remembers the first response to a keyed request so a
retried POST replays it instead of booking twice.

FLOW:
  Begin(key)          claims the key, or returns the cached response
  Complete(key, rec)  stores the response for replay
  Abort(key)          releases the claim so the client may retry

A key claimed but not yet completed reports ErrInFlight.
*/
package idempotency

import (
	"context"
	"errors"
	"time"
)

var ErrInFlight = errors.New("request with this idempotency key is in progress")

const DefaultTTL = 24 * time.Hour

// Record is a cached response.
type Record struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type Store interface {
	// Begin returns (nil, nil) when the caller now owns key, the cached
	// record when one exists, or ErrInFlight.
	Begin(ctx context.Context, key string) (*Record, error)
	Complete(ctx context.Context, key string, rec Record) error
	Abort(ctx context.Context, key string) error
}
