package api

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/warp/court-engine/idempotency"
	"github.com/warp/court-engine/metrics"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

// bufferingWriter captures the response so it can be stored for replay.
type bufferingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (bw *bufferingWriter) WriteHeader(status int) {
	bw.status = status
	bw.ResponseWriter.WriteHeader(status)
}

func (bw *bufferingWriter) Write(b []byte) (int, error) {
	if bw.status == 0 {
		bw.status = http.StatusOK
	}
	bw.body.Write(b)
	return bw.ResponseWriter.Write(b)
}

// Idempotent replays the first response to a request carrying an
// Idempotency-Key. Keys are scoped to the request path. A duplicate that
// arrives while the first is still running gets 409. Server errors and
// panics release the key so the client may retry.
func Idempotent(store idempotency.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderIdempotencyKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			scoped := r.Method + " " + r.URL.Path + " " + key
			ctx := r.Context()

			rec, err := store.Begin(ctx, scoped)
			if errors.Is(err, idempotency.ErrInFlight) {
				writeJSON(w, http.StatusConflict, ErrorResponse{Error: "A request with this key is still in progress.", Code: "in_flight"})
				return
			}
			if err != nil {
				log.Printf("[API] idempotency lookup failed, serving without it: %v", err)
				next.ServeHTTP(w, r)
				return
			}
			if rec != nil {
				w.Header().Set("Content-Type", rec.ContentType)
				w.Header().Set(HeaderReplayed, "true")
				w.WriteHeader(rec.Status)
				w.Write(rec.Body)
				return
			}

			// Settle the key even after the client hangs up.
			settle := context.WithoutCancel(ctx)
			bw := &bufferingWriter{ResponseWriter: w}
			finished := false
			defer func() {
				if finished {
					return
				}
				// The handler panicked. Release the key and let the panic
				// continue to the recoverer.
				if err := store.Abort(settle, scoped); err != nil {
					log.Printf("[API] idempotency release %q failed: %v", key, err)
				}
			}()
			next.ServeHTTP(bw, r)
			finished = true

			if bw.status == 0 || bw.status >= http.StatusInternalServerError {
				if err := store.Abort(settle, scoped); err != nil {
					log.Printf("[API] idempotency release %q failed: %v", key, err)
				}
				return
			}
			err = store.Complete(settle, scoped, idempotency.Record{
				Status:      bw.status,
				ContentType: bw.Header().Get("Content-Type"),
				Body:        bw.body.Bytes(),
			})
			if err != nil {
				log.Printf("[API] idempotency store %q failed: %v", key, err)
			}
		})
	}
}

// Instrument records request counts and latency by route pattern.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(status), time.Since(start).Seconds())
	})
}
