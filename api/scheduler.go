/*
scheduler.go - Automated completion sweep

PURPOSE:
  Periodically moves confirmed reservations whose slot has ended to
  completed, so the calendar and member history reflect played games.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each pass is one call to Service.CompleteEnded, which skips rows that
    changed under it (a cancel racing the sweep wins cleanly)
  - Publishing and metrics happen inside the engine

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 15 minutes, 0 disables)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewCompletionScheduler(svc)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerCompletion endpoint (manual sweep)
  - booking/engine.go: CompleteEnded
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/court-engine/booking"
)

// CompletionScheduler runs the completion sweep on a ticker.
type CompletionScheduler struct {
	Service       *booking.Service
	CheckInterval time.Duration
	Enabled       bool

	now    func() time.Time
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewCompletionScheduler(svc *booking.Service) *CompletionScheduler {
	return &CompletionScheduler{
		Service:       svc,
		CheckInterval: 15 * time.Minute,
		Enabled:       true,
		now:           time.Now,
	}
}

// Start begins the scheduler. Calling it twice is a no-op.
func (cs *CompletionScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled || cs.CheckInterval <= 0 {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if cs.ticker != nil {
		return
	}

	cs.ticker = time.NewTicker(cs.CheckInterval)
	cs.stop = make(chan struct{})
	cs.wg.Add(1)

	go cs.run(cs.ticker, cs.stop)

	log.Printf("[Scheduler] Started with check interval: %v", cs.CheckInterval)
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (cs *CompletionScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker != nil {
		cs.ticker.Stop()
		close(cs.stop)
		cs.wg.Wait()
		cs.ticker = nil
		log.Println("[Scheduler] Stopped")
	}
}

func (cs *CompletionScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer cs.wg.Done()

	// Run immediately on start
	cs.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			cs.RunOnce(context.Background())
		case <-stop:
			return
		}
	}
}

// RunOnce performs one sweep and returns how many reservations completed.
func (cs *CompletionScheduler) RunOnce(ctx context.Context) int {
	n, err := cs.Service.CompleteEnded(ctx, cs.now())
	if err != nil {
		log.Printf("[Scheduler] Completion sweep failed: %v", err)
		return n
	}
	if n > 0 {
		log.Printf("[Scheduler] Completed %d reservations", n)
	}
	return n
}
