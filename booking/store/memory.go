// Package store provides an in-memory booking.Store.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/court-engine/booking"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory runs one writer transaction at a time. WithTx holds the write lock
// for the whole unit, which serializes every resource and every member, so
// LockResource and LockMember have nothing left to do.
type Memory struct {
	mu sync.RWMutex
	state
}

type state struct {
	resources    map[booking.ResourceID]booking.Resource
	tombstones   map[booking.ResourceID]bool
	reservations map[booking.ReservationID]booking.Reservation
	members      map[booking.MemberID]booking.Member
	events       map[booking.EventID]booking.LedgerEvent
	eventOrder   map[booking.MemberID][]booking.EventID
	eventLog     []booking.EventID
}

func NewMemory() *Memory {
	return &Memory{state: state{
		resources:    make(map[booking.ResourceID]booking.Resource),
		tombstones:   make(map[booking.ResourceID]bool),
		reservations: make(map[booking.ReservationID]booking.Reservation),
		members:      make(map[booking.MemberID]booking.Member),
		events:       make(map[booking.EventID]booking.LedgerEvent),
		eventOrder:   make(map[booking.MemberID][]booking.EventID),
	}}
}

var _ booking.Store = (*Memory)(nil)

// =============================================================================
// COMMITTED READS
// =============================================================================

func (m *Memory) GetResource(_ context.Context, id booking.ResourceID) (*booking.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getResource(id), nil
}

func (m *Memory) ListResources(_ context.Context) ([]booking.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listResources(), nil
}

func (m *Memory) GetReservation(_ context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getReservation(id), nil
}

func (m *Memory) FindOverlapping(_ context.Context, resourceID booking.ResourceID, slot booking.Slot) ([]booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findOverlapping(resourceID, slot), nil
}

func (m *Memory) ListReservations(_ context.Context, from, to time.Time) ([]booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listReservations(from, to), nil
}

func (m *Memory) ListMemberReservations(_ context.Context, memberID booking.MemberID) ([]booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listMemberReservations(memberID), nil
}

func (m *Memory) ListEndedBefore(_ context.Context, status booking.ReservationStatus, before time.Time) ([]booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEndedBefore(status, before), nil
}

func (m *Memory) GetMember(_ context.Context, id booking.MemberID) (*booking.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getMember(id), nil
}

func (m *Memory) GetEvent(_ context.Context, id booking.EventID) (*booking.LedgerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEvent(id), nil
}

func (m *Memory) ListEvents(_ context.Context, memberID booking.MemberID) ([]booking.LedgerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEvents(memberID), nil
}

func (m *Memory) ListAllEvents(_ context.Context, status booking.EventStatus) ([]booking.LedgerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAllEvents(status), nil
}

// =============================================================================
// ADMIN WRITES
// =============================================================================

func (m *Memory) SaveResource(_ context.Context, r booking.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[r.ID] = r
	delete(m.tombstones, r.ID)
	return nil
}

func (m *Memory) DeleteResource(_ context.Context, id booking.ResourceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[id]; ok {
		m.tombstones[id] = true
	}
	return nil
}

func (m *Memory) CreateMember(_ context.Context, mem booking.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[mem.ID]; ok {
		return fmt.Errorf("member %s: %w", mem.ID, booking.ErrDuplicateID)
	}
	m.members[mem.ID] = mem
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction, simulated with a snapshot and a
// restore on error.
func (m *Memory) WithTx(ctx context.Context, fn func(booking.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{s: &m.state}); err != nil {
		m.state = snap
		return err
	}
	return nil
}

func (s *state) snapshot() state {
	out := state{
		resources:    make(map[booking.ResourceID]booking.Resource, len(s.resources)),
		tombstones:   make(map[booking.ResourceID]bool, len(s.tombstones)),
		reservations: make(map[booking.ReservationID]booking.Reservation, len(s.reservations)),
		members:      make(map[booking.MemberID]booking.Member, len(s.members)),
		events:       make(map[booking.EventID]booking.LedgerEvent, len(s.events)),
		eventOrder:   make(map[booking.MemberID][]booking.EventID, len(s.eventOrder)),
	}
	for k, v := range s.resources {
		out.resources[k] = v
	}
	for k, v := range s.tombstones {
		out.tombstones[k] = v
	}
	for k, v := range s.reservations {
		out.reservations[k] = v
	}
	for k, v := range s.members {
		out.members[k] = v
	}
	for k, v := range s.events {
		out.events[k] = v
	}
	out.eventLog = append([]booking.EventID(nil), s.eventLog...)
	for k, v := range s.eventOrder {
		out.eventOrder[k] = append([]booking.EventID(nil), v...)
	}
	return out
}

// txView reads and writes the live state; the caller already holds the
// write lock.
type txView struct {
	s *state
}

func (tv *txView) LockResource(context.Context, booking.ResourceID) error { return nil }
func (tv *txView) LockMember(context.Context, booking.MemberID) error     { return nil }

func (tv *txView) GetResource(_ context.Context, id booking.ResourceID) (*booking.Resource, error) {
	return tv.s.getResource(id), nil
}

func (tv *txView) ListResources(context.Context) ([]booking.Resource, error) {
	return tv.s.listResources(), nil
}

func (tv *txView) GetReservation(_ context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	return tv.s.getReservation(id), nil
}

func (tv *txView) FindOverlapping(_ context.Context, resourceID booking.ResourceID, slot booking.Slot) ([]booking.Reservation, error) {
	return tv.s.findOverlapping(resourceID, slot), nil
}

func (tv *txView) ListReservations(_ context.Context, from, to time.Time) ([]booking.Reservation, error) {
	return tv.s.listReservations(from, to), nil
}

func (tv *txView) ListMemberReservations(_ context.Context, memberID booking.MemberID) ([]booking.Reservation, error) {
	return tv.s.listMemberReservations(memberID), nil
}

func (tv *txView) ListEndedBefore(_ context.Context, status booking.ReservationStatus, before time.Time) ([]booking.Reservation, error) {
	return tv.s.listEndedBefore(status, before), nil
}

func (tv *txView) GetMember(_ context.Context, id booking.MemberID) (*booking.Member, error) {
	return tv.s.getMember(id), nil
}

func (tv *txView) GetEvent(_ context.Context, id booking.EventID) (*booking.LedgerEvent, error) {
	return tv.s.getEvent(id), nil
}

func (tv *txView) ListEvents(_ context.Context, memberID booking.MemberID) ([]booking.LedgerEvent, error) {
	return tv.s.listEvents(memberID), nil
}

func (tv *txView) ListAllEvents(_ context.Context, status booking.EventStatus) ([]booking.LedgerEvent, error) {
	return tv.s.listAllEvents(status), nil
}

func (tv *txView) InsertReservations(_ context.Context, rs []booking.Reservation) error {
	for _, r := range rs {
		if _, ok := tv.s.reservations[r.ID]; ok {
			return fmt.Errorf("reservation %s: %w", r.ID, booking.ErrDuplicateID)
		}
	}
	for _, r := range rs {
		tv.s.reservations[r.ID] = r
	}
	return nil
}

func (tv *txView) TransitionReservation(_ context.Context, id booking.ReservationID, from, to booking.ReservationStatus, at time.Time) error {
	r, ok := tv.s.reservations[id]
	if !ok {
		return booking.ErrReservationNotFound
	}
	if r.Status != from {
		return booking.ErrStaleWrite
	}
	r.Status = to
	r.UpdatedAt = at
	tv.s.reservations[id] = r
	return nil
}

func (tv *txView) AppendEvent(_ context.Context, ev booking.LedgerEvent) error {
	if _, ok := tv.s.events[ev.ID]; ok {
		return fmt.Errorf("ledger event %s: %w", ev.ID, booking.ErrDuplicateID)
	}
	tv.s.events[ev.ID] = ev
	tv.s.eventOrder[ev.MemberID] = append(tv.s.eventOrder[ev.MemberID], ev.ID)
	tv.s.eventLog = append(tv.s.eventLog, ev.ID)
	return nil
}

func (tv *txView) SetEventStatus(_ context.Context, id booking.EventID, from, to booking.EventStatus, at time.Time) error {
	ev, ok := tv.s.events[id]
	if !ok {
		return booking.ErrEventNotFound
	}
	if ev.Status != from {
		return booking.ErrStaleWrite
	}
	ev.Status = to
	ev.UpdatedAt = at
	tv.s.events[id] = ev
	return nil
}

func (tv *txView) AdjustBalance(_ context.Context, memberID booking.MemberID, delta, spent decimal.Decimal) (booking.Member, error) {
	mem, ok := tv.s.members[memberID]
	if !ok {
		return booking.Member{}, booking.ErrMemberNotFound
	}
	mem.Balance = mem.Balance.Add(delta)
	mem.TotalSpent = mem.TotalSpent.Add(spent)
	tv.s.members[memberID] = mem
	return mem, nil
}

// =============================================================================
// LOCK-FREE HELPERS (caller holds mu)
// =============================================================================

func (s *state) getResource(id booking.ResourceID) *booking.Resource {
	r, ok := s.resources[id]
	if !ok || s.tombstones[id] {
		return nil
	}
	return &r
}

func (s *state) listResources() []booking.Resource {
	out := make([]booking.Resource, 0, len(s.resources))
	for id, r := range s.resources {
		if !s.tombstones[id] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *state) getReservation(id booking.ReservationID) *booking.Reservation {
	r, ok := s.reservations[id]
	if !ok {
		return nil
	}
	return &r
}

func (s *state) findOverlapping(resourceID booking.ResourceID, slot booking.Slot) []booking.Reservation {
	var out []booking.Reservation
	for _, r := range s.reservations {
		if r.ResourceID == resourceID && r.Status.HoldsSlot() && r.Slot().Overlaps(slot) {
			out = append(out, r)
		}
	}
	sortByStart(out)
	return out
}

func (s *state) listReservations(from, to time.Time) []booking.Reservation {
	window := booking.Slot{Start: from, End: to}
	var out []booking.Reservation
	for _, r := range s.reservations {
		if r.Slot().Overlaps(window) {
			out = append(out, r)
		}
	}
	sortByStart(out)
	return out
}

func (s *state) listMemberReservations(memberID booking.MemberID) []booking.Reservation {
	var out []booking.Reservation
	for _, r := range s.reservations {
		if r.MemberID == memberID {
			out = append(out, r)
		}
	}
	sortByStart(out)
	return out
}

func (s *state) listEndedBefore(status booking.ReservationStatus, before time.Time) []booking.Reservation {
	var out []booking.Reservation
	for _, r := range s.reservations {
		if r.Status == status && !r.End.After(before) {
			out = append(out, r)
		}
	}
	sortByStart(out)
	return out
}

func (s *state) getMember(id booking.MemberID) *booking.Member {
	m, ok := s.members[id]
	if !ok {
		return nil
	}
	return &m
}

func (s *state) getEvent(id booking.EventID) *booking.LedgerEvent {
	ev, ok := s.events[id]
	if !ok {
		return nil
	}
	return &ev
}

func (s *state) listEvents(memberID booking.MemberID) []booking.LedgerEvent {
	ids := s.eventOrder[memberID]
	out := make([]booking.LedgerEvent, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.events[id])
	}
	return out
}

// listAllEvents orders newest first, latest append first on equal times.
func (s *state) listAllEvents(status booking.EventStatus) []booking.LedgerEvent {
	out := make([]booking.LedgerEvent, 0, len(s.eventLog))
	for i := len(s.eventLog) - 1; i >= 0; i-- {
		ev := s.events[s.eventLog[i]]
		if status != "" && ev.Status != status {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func sortByStart(rs []booking.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Start.Equal(rs[j].Start) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].Start.Before(rs[j].Start)
	})
}
