/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the booking model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  decimal.Decimal marshals as a JSON string ("100000.00") and unmarshals
  from either a string or a number, so amounts never pass through float64.

TIMES:
  RFC3339 in UTC on the way out. Any offset is accepted on the way in.

VALIDATION:
  Validation is done in handlers and the booking package, not in DTOs.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/court-engine/booking"
)

// =============================================================================
// RESOURCES
// =============================================================================

type ResourceDTO struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	PricePerHour decimal.Decimal `json:"price_per_hour"`
	Active       bool            `json:"active"`
}

type SaveResourceRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	PricePerHour decimal.Decimal `json:"price_per_hour"`
	Active       *bool           `json:"active,omitempty"` // default true
}

func toResourceDTO(r booking.Resource) ResourceDTO {
	return ResourceDTO{
		ID:           string(r.ID),
		Name:         r.Name,
		Description:  r.Description,
		PricePerHour: r.PricePerHour,
		Active:       r.Active,
	}
}

// =============================================================================
// RESERVATIONS
// =============================================================================

type ReservationDTO struct {
	ID             string          `json:"id"`
	ResourceID     string          `json:"resource_id"`
	MemberID       string          `json:"member_id"`
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	Status         string          `json:"status"`
	Recurring      bool            `json:"recurring"`
	RecurrenceRule string          `json:"recurrence_rule,omitempty"`
	ParentID       string          `json:"parent_id,omitempty"`
}

// CalendarEntryDTO is the public view of a slot. It omits who booked it.
type CalendarEntryDTO struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Status     string    `json:"status"`
}

type CreateBookingRequest struct {
	ResourceID      string    `json:"resource_id"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
}

type CreateRecurringRequest struct {
	ResourceID      string    `json:"resource_id"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Rule            string    `json:"rule"`
	EndDate         time.Time `json:"end_date"`
}

type SeriesResponse struct {
	ParentID     string           `json:"parent_id"`
	Count        int              `json:"count"`
	TotalPrice   decimal.Decimal  `json:"total_price"`
	Reservations []ReservationDTO `json:"reservations"`
}

type CancelResponse struct {
	Cancelled   bool           `json:"cancelled"`
	Reservation ReservationDTO `json:"reservation"`
}

func toReservationDTO(r booking.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:             string(r.ID),
		ResourceID:     string(r.ResourceID),
		MemberID:       string(r.MemberID),
		Start:          r.Start.UTC(),
		End:            r.End.UTC(),
		TotalPrice:     r.TotalPrice,
		Status:         string(r.Status),
		Recurring:      r.Recurring,
		RecurrenceRule: r.RecurrenceRule,
		ParentID:       string(r.ParentID),
	}
}

func toReservationDTOs(rs []booking.Reservation) []ReservationDTO {
	dtos := make([]ReservationDTO, len(rs))
	for i, r := range rs {
		dtos[i] = toReservationDTO(r)
	}
	return dtos
}

func toCalendarEntryDTO(r booking.Reservation) CalendarEntryDTO {
	return CalendarEntryDTO{
		ID:         string(r.ID),
		ResourceID: string(r.ResourceID),
		Start:      r.Start.UTC(),
		End:        r.End.UTC(),
		Status:     string(r.Status),
	}
}

// =============================================================================
// MEMBERS AND WALLET
// =============================================================================

type MemberDTO struct {
	ID         string          `json:"id"`
	FullName   string          `json:"full_name"`
	Balance    decimal.Decimal `json:"balance"`
	TotalSpent decimal.Decimal `json:"total_spent"`
}

type CreateMemberRequest struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
}

type DepositRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	ProofURL    string          `json:"proof_url"`
}

type TransactionDTO struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        string          `json:"kind"`
	Status      string          `json:"status"`
	RelatedID   string          `json:"related_id,omitempty"`
	Description string          `json:"description"`
	ProofURL    string          `json:"proof_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// AdminTransactionDTO is a ledger row in the admin view.
type AdminTransactionDTO struct {
	TransactionDTO
	MemberID   string `json:"member_id"`
	MemberName string `json:"member_name"`
}

type SettleResponse struct {
	Transaction TransactionDTO  `json:"transaction"`
	Balance     decimal.Decimal `json:"balance"`
}

func toMemberDTO(m booking.Member) MemberDTO {
	return MemberDTO{
		ID:         string(m.ID),
		FullName:   m.FullName,
		Balance:    m.Balance,
		TotalSpent: m.TotalSpent,
	}
}

func toTransactionDTO(ev booking.LedgerEvent) TransactionDTO {
	return TransactionDTO{
		ID:          string(ev.ID),
		Amount:      ev.Amount,
		Kind:        string(ev.Kind),
		Status:      string(ev.Status),
		RelatedID:   ev.RelatedID,
		Description: ev.Description,
		ProofURL:    ev.ProofURL,
		CreatedAt:   ev.CreatedAt.UTC(),
	}
}

func toAdminTransactionDTO(t booking.MemberTransaction) AdminTransactionDTO {
	return AdminTransactionDTO{
		TransactionDTO: toTransactionDTO(t.LedgerEvent),
		MemberID:       string(t.MemberID),
		MemberName:     t.MemberName,
	}
}

// =============================================================================
// ADMIN AND ERRORS
// =============================================================================

type CompletionResponse struct {
	Completed int `json:"completed"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse carries a client-safe message. Internal causes stay in the
// server log.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
