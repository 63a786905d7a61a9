/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the store with courts and
  funded members so the API can be exercised right away.

AVAILABLE SCENARIOS:
  club-evening:  Three courts, two funded members, one booking tomorrow
  empty-wallets: Same courts, members with no balance

HOW SCENARIOS WORK:
 1. Upsert courts with fixed ids
 2. Create members (existing ones are kept as they are)
 3. Fund new members through deposit request + approval, so the ledger
    explains every unit of balance
 4. Optionally book a slot

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "club-evening"}

NOTE:
  Scenarios add to whatever is stored. Reloading one does not fund members
  twice.
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/court-engine/booking"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "club-evening",
		Name:        "Club Evening",
		Description: "Three courts, two funded members and a booking tomorrow at 18:00",
	},
	{
		ID:          "empty-wallets",
		Name:        "Empty Wallets",
		Description: "Courts and members with no balance; every paid booking is rejected",
	},
}

var demoCourts = []booking.Resource{
	{ID: "court-1", Name: "Court 1", Description: "Indoor, wooden floor", PricePerHour: decimal.NewFromInt(100000), Active: true},
	{ID: "court-2", Name: "Court 2", Description: "Indoor, synthetic floor", PricePerHour: decimal.NewFromInt(100000), Active: true},
	{ID: "court-3", Name: "Training Court", Description: "Half size", PricePerHour: decimal.NewFromInt(50000), Active: true},
}

type demoMember struct {
	id      booking.MemberID
	name    string
	deposit decimal.Decimal
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := LoadScenario(r.Context(), h.Service, h.Store, req.ScenarioID, h.now()); err != nil {
		if errors.Is(err, ErrUnknownScenario) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Unknown scenario.", Code: "invalid"})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

var ErrUnknownScenario = errors.New("unknown scenario")

// LoadScenario seeds store with the named scenario. now anchors any
// bookings the scenario makes.
func LoadScenario(ctx context.Context, svc *booking.Service, store booking.Store, id string, now time.Time) error {
	switch id {
	case "club-evening":
		return loadClubEvening(ctx, svc, store, now)
	case "empty-wallets":
		return loadEmptyWallets(ctx, svc, store, now)
	}
	return fmt.Errorf("%w: %q", ErrUnknownScenario, id)
}

func loadClubEvening(ctx context.Context, svc *booking.Service, store booking.Store, now time.Time) error {
	if err := seedCourts(ctx, store, now); err != nil {
		return err
	}
	created, err := seedMembers(ctx, svc, []demoMember{
		{id: "alice", name: "Alice Smith", deposit: decimal.NewFromInt(500000)},
		{id: "bob", name: "Bob Jones", deposit: decimal.NewFromInt(150000)},
	})
	if err != nil {
		return err
	}
	if !created["alice"] {
		return nil
	}

	tomorrow := now.UTC().Truncate(24*time.Hour).Add(24*time.Hour + 18*time.Hour)
	if _, err := svc.CreateSingleBooking(ctx, "alice", "court-1", tomorrow, 60); err != nil {
		return fmt.Errorf("book demo slot: %w", err)
	}
	return nil
}

func loadEmptyWallets(ctx context.Context, svc *booking.Service, store booking.Store, now time.Time) error {
	if err := seedCourts(ctx, store, now); err != nil {
		return err
	}
	_, err := seedMembers(ctx, svc, []demoMember{
		{id: "carol", name: "Carol White"},
		{id: "dave", name: "Dave Brown"},
	})
	return err
}

func seedCourts(ctx context.Context, store booking.Store, now time.Time) error {
	for _, c := range demoCourts {
		c.CreatedAt, c.UpdatedAt = now.UTC(), now.UTC()
		if err := store.SaveResource(ctx, c); err != nil {
			return fmt.Errorf("seed court %s: %w", c.ID, err)
		}
	}
	return nil
}

// seedMembers creates and funds members, returning which were new.
func seedMembers(ctx context.Context, svc *booking.Service, members []demoMember) (map[booking.MemberID]bool, error) {
	created := make(map[booking.MemberID]bool)
	for _, m := range members {
		if _, err := svc.CreateMember(ctx, m.id, m.name); err != nil {
			if errors.Is(err, booking.ErrDuplicateID) {
				log.Printf("[Scenario] member %s exists, leaving balance as is", m.id)
				continue
			}
			return nil, fmt.Errorf("seed member %s: %w", m.id, err)
		}
		created[m.id] = true

		if !m.deposit.IsPositive() {
			continue
		}
		ev, err := svc.RequestDeposit(ctx, m.id, m.deposit, "Demo top-up", "")
		if err != nil {
			return nil, fmt.Errorf("seed deposit %s: %w", m.id, err)
		}
		if _, err := svc.ApproveDeposit(ctx, ev.ID); err != nil {
			return nil, fmt.Errorf("approve deposit %s: %w", m.id, err)
		}
	}
	return created, nil
}
