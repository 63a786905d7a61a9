/*
service.go - Boundary operations consumed by the request layer

PURPOSE:
  Service is the transport-independent surface of the package. It wires the
  Engine (calendar + payment), the Wallet (deposits) and the Store (reads)
  behind one type so handlers never assemble components themselves.

BOUNDARY RULES:
  - CancelBooking collapses every failure to false and logs the cause. Use
    Cancel when the caller needs the typed error.
  - Reads go straight to the store and see committed state only.
*/
package booking

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Service struct {
	store  Store
	engine *Engine
	wallet *Wallet
}

func NewService(store Store, opts ...Option) *Service {
	engine := NewEngine(store, opts...)
	return &Service{
		store:  store,
		engine: engine,
		wallet: NewWallet(store, engine.Ledger()),
	}
}

func (s *Service) Engine() *Engine { return s.engine }

func (s *Service) Wallet() *Wallet { return s.wallet }

// =============================================================================
// BOOKINGS
// =============================================================================

func (s *Service) CreateSingleBooking(ctx context.Context, memberID MemberID, resourceID ResourceID, start time.Time, durationMinutes int) (Reservation, error) {
	return s.engine.CreateSingle(ctx, memberID, resourceID, start, durationMinutes)
}

func (s *Service) CreateRecurringBooking(ctx context.Context, memberID MemberID, resourceID ResourceID, start time.Time, durationMinutes int, rule string, endDate time.Time) ([]Reservation, error) {
	return s.engine.CreateSeries(ctx, memberID, resourceID, start, durationMinutes, rule, endDate)
}

// CancelBooking reports whether the reservation was cancelled.
func (s *Service) CancelBooking(ctx context.Context, memberID MemberID, id ReservationID) bool {
	if _, err := s.engine.Cancel(ctx, memberID, id); err != nil {
		log.Printf("[Booking] cancel %s by %s failed: %v", id, memberID, err)
		return false
	}
	return true
}

// Cancel is CancelBooking with the typed error and the updated reservation.
func (s *Service) Cancel(ctx context.Context, memberID MemberID, id ReservationID) (Reservation, error) {
	return s.engine.Cancel(ctx, memberID, id)
}

// GetCalendar returns reservations of every status overlapping [from, to).
func (s *Service) GetCalendar(ctx context.Context, from, to time.Time) ([]Reservation, error) {
	if !to.After(from) {
		return nil, ErrInvalidRange
	}
	return s.store.ListReservations(ctx, from.UTC(), to.UTC())
}

func (s *Service) ListMemberBookings(ctx context.Context, memberID MemberID) ([]Reservation, error) {
	if _, err := s.GetMember(ctx, memberID); err != nil {
		return nil, err
	}
	return s.store.ListMemberReservations(ctx, memberID)
}

func (s *Service) CompleteEnded(ctx context.Context, asOf time.Time) (int, error) {
	return s.engine.CompleteEnded(ctx, asOf)
}

// =============================================================================
// RESOURCES
// =============================================================================

func (s *Service) ListResources(ctx context.Context) ([]Resource, error) {
	return s.store.ListResources(ctx)
}

func (s *Service) GetResource(ctx context.Context, id ResourceID) (*Resource, error) {
	r, err := s.store.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrResourceUnavailable
	}
	return r, nil
}

// SaveResource creates the resource when r.ID is empty and updates it
// otherwise.
func (s *Service) SaveResource(ctx context.Context, r Resource) (Resource, error) {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" || r.PricePerHour.IsNegative() {
		return Resource{}, ErrInvalidResource
	}
	now := s.engine.now().UTC()
	if r.ID == "" {
		r.ID = ResourceID(s.engine.newID())
		r.CreatedAt = now
	} else {
		existing, err := s.GetResource(ctx, r.ID)
		if err != nil {
			return Resource{}, err
		}
		r.CreatedAt = existing.CreatedAt
	}
	r.PricePerHour = r.PricePerHour.Round(2)
	r.UpdatedAt = now
	if err := s.store.SaveResource(ctx, r); err != nil {
		return Resource{}, err
	}
	return r, nil
}

func (s *Service) DeleteResource(ctx context.Context, id ResourceID) error {
	if _, err := s.GetResource(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteResource(ctx, id)
}

// =============================================================================
// MEMBERS AND WALLET
// =============================================================================

// CreateMember registers a member with a zero balance. An empty id is
// generated.
func (s *Service) CreateMember(ctx context.Context, id MemberID, fullName string) (Member, error) {
	if id == "" {
		id = MemberID(s.engine.newID())
	}
	m := Member{
		ID:         id,
		FullName:   strings.TrimSpace(fullName),
		Balance:    decimal.Zero,
		TotalSpent: decimal.Zero,
		CreatedAt:  s.engine.now().UTC(),
	}
	if err := s.store.CreateMember(ctx, m); err != nil {
		return Member{}, err
	}
	return m, nil
}

func (s *Service) GetMember(ctx context.Context, id MemberID) (Member, error) {
	m, err := s.store.GetMember(ctx, id)
	if err != nil {
		return Member{}, err
	}
	if m == nil {
		return Member{}, ErrMemberNotFound
	}
	return *m, nil
}

func (s *Service) RequestDeposit(ctx context.Context, memberID MemberID, amount decimal.Decimal, description, proofURL string) (LedgerEvent, error) {
	return s.wallet.RequestDeposit(ctx, memberID, amount, description, proofURL)
}

func (s *Service) ApproveDeposit(ctx context.Context, eventID EventID) (LedgerEntry, error) {
	return s.wallet.ApproveDeposit(ctx, eventID)
}

func (s *Service) RejectDeposit(ctx context.Context, eventID EventID) (LedgerEvent, error) {
	return s.wallet.RejectDeposit(ctx, eventID)
}

func (s *Service) ListTransactions(ctx context.Context, memberID MemberID) ([]LedgerEvent, error) {
	return s.wallet.ListTransactions(ctx, memberID)
}

func (s *Service) ListAllTransactions(ctx context.Context, status EventStatus) ([]MemberTransaction, error) {
	return s.wallet.ListAllTransactions(ctx, status)
}

func (s *Service) VerifyBalance(ctx context.Context, memberID MemberID) error {
	return VerifyBalance(ctx, s.store, memberID)
}
