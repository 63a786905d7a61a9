/*
handlers.go - HTTP API handlers for the court booking engine

PURPOSE:
  Exposes booking.Service via REST. Handles HTTP request/response and JSON
  serialization, and delegates every rule to the booking package.

ENDPOINTS:
  Courts:
    GET    /api/resources                 List bookable courts
    POST   /api/resources                 Create court
    PUT    /api/resources/{id}            Update court
    DELETE /api/resources/{id}            Soft-delete court

  Calendar:
    GET    /api/calendar?from=&to=        Slots overlapping [from, to)

  Members:
    POST   /api/members                   Create member
    GET    /api/members/{id}              Member with balance
    GET    /api/members/{id}/transactions Ledger history, newest first
    POST   /api/members/{id}/deposits     Request a top-up (pending)
    GET    /api/members/{id}/bookings     The member's bookings
    POST   /api/members/{id}/bookings     Single booking
    POST   /api/members/{id}/bookings/recurring       Weekly series
    POST   /api/members/{id}/bookings/{bookingID}/cancel

  Admin:
    POST   /api/admin/deposits/{id}/approve
    POST   /api/admin/deposits/{id}/reject
    POST   /api/admin/complete            Run the completion sweep now

ERROR HANDLING:
  Errors are returned as JSON with a client-safe message from
  booking.UserMessage. The cause is logged, never sent:
  - 400: Validation errors, invalid input
  - 402: Insufficient balance
  - 403: Booking belongs to someone else
  - 404: Member, booking or transaction not found
  - 409: Slot taken, already cancelled, already processed
  - 422: Court missing or inactive
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The member id in the path is trusted.

SEE ALSO:
  - dto.go: Request/response data structures
  - middleware.go: Idempotency and metrics middleware
  - server.go: Router setup
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/warp/court-engine/booking"
	"github.com/warp/court-engine/idempotency"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service     *booking.Service
	Store       booking.Store // admin writes used by demo scenarios
	Idempotency idempotency.Store

	// Ping checks the backing store for /healthz. Optional.
	Ping func(ctx context.Context) error

	now func() time.Time
}

func NewHandler(svc *booking.Service, store booking.Store, idem idempotency.Store) *Handler {
	if idem == nil {
		idem = idempotency.NewMemoryStore(idempotency.DefaultTTL)
	}
	return &Handler{Service: svc, Store: store, Idempotency: idem, now: time.Now}
}

// Health reports liveness and, when Ping is set, store reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			log.Printf("[API] health check failed: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESOURCE HANDLERS
// =============================================================================

// ListResources returns all bookable courts.
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := h.Service.ListResources(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]ResourceDTO, len(resources))
	for i, res := range resources {
		dtos[i] = toResourceDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateResource adds a court.
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	h.saveResource(w, r, "", http.StatusCreated)
}

// UpdateResource replaces a court's name, price and active flag.
func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	h.saveResource(w, r, booking.ResourceID(chi.URLParam(r, "id")), http.StatusOK)
}

func (h *Handler) saveResource(w http.ResponseWriter, r *http.Request, id booking.ResourceID, status int) {
	var req SaveResourceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	saved, err := h.Service.SaveResource(r.Context(), booking.Resource{
		ID:           id,
		Name:         req.Name,
		Description:  req.Description,
		PricePerHour: req.PricePerHour,
		Active:       active,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, toResourceDTO(saved))
}

// DeleteResource soft-deletes a court. Existing bookings are kept.
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteResource(r.Context(), booking.ResourceID(chi.URLParam(r, "id"))); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CALENDAR
// =============================================================================

// GetCalendar returns every slot overlapping [from, to). Both default to
// the current UTC day.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	day := h.now().UTC().Truncate(24 * time.Hour)
	from, ok := parseTimeParam(w, r, "from", day)
	if !ok {
		return
	}
	to, ok := parseTimeParam(w, r, "to", from.Add(24*time.Hour))
	if !ok {
		return
	}

	rs, err := h.Service.GetCalendar(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]CalendarEntryDTO, len(rs))
	for i, res := range rs {
		dtos[i] = toCalendarEntryDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := h.Service.CreateMember(r.Context(), booking.MemberID(req.ID), req.FullName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(m))
}

func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.Service.GetMember(r.Context(), memberParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(m))
}

// GetTransactions returns the member's ledger, newest first.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	evs, err := h.Service.ListTransactions(r.Context(), memberParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]TransactionDTO, len(evs))
	for i, ev := range evs {
		dtos[i] = toTransactionDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListAllTransactions is the admin ledger view, newest first. ?status=pending
// lists deposits waiting for approval.
func (h *Handler) ListAllTransactions(w http.ResponseWriter, r *http.Request) {
	status := booking.EventStatus(r.URL.Query().Get("status"))
	txs, err := h.Service.ListAllTransactions(r.Context(), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]AdminTransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = toAdminTransactionDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RequestDeposit records a pending top-up. The balance moves on approval.
func (h *Handler) RequestDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ev, err := h.Service.RequestDeposit(r.Context(), memberParam(r), req.Amount, req.Description, req.ProofURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(ev))
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

func (h *Handler) ListMemberBookings(w http.ResponseWriter, r *http.Request) {
	rs, err := h.Service.ListMemberBookings(r.Context(), memberParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTOs(rs))
}

// CreateBooking books one slot and debits the member.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.Service.CreateSingleBooking(r.Context(), memberParam(r),
		booking.ResourceID(req.ResourceID), req.Start, req.DurationMinutes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationDTO(res))
}

// CreateRecurringBooking books a weekly series in one payment. Any
// conflicting week rejects the whole series.
func (h *Handler) CreateRecurringBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateRecurringRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rs, err := h.Service.CreateRecurringBooking(r.Context(), memberParam(r),
		booking.ResourceID(req.ResourceID), req.Start, req.DurationMinutes, req.Rule, req.EndDate)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := SeriesResponse{Count: len(rs), Reservations: toReservationDTOs(rs)}
	for _, res := range rs {
		resp.TotalPrice = resp.TotalPrice.Add(res.TotalPrice)
	}
	if len(rs) > 0 {
		resp.ParentID = string(rs[0].ParentID)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// CancelBooking cancels one reservation and refunds the member.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Cancel(r.Context(), memberParam(r), booking.ReservationID(chi.URLParam(r, "bookingID")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Cancelled: true, Reservation: toReservationDTO(res)})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

func (h *Handler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Service.ApproveDeposit(r.Context(), booking.EventID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SettleResponse{Transaction: toTransactionDTO(entry.Event), Balance: entry.Balance})
}

func (h *Handler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Service.RejectDeposit(r.Context(), booking.EventID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(ev))
}

// TriggerCompletion runs the completion sweep immediately.
func (h *Handler) TriggerCompletion(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.CompleteEnded(r.Context(), h.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CompletionResponse{Completed: n})
}

// =============================================================================
// HELPERS
// =============================================================================

func memberParam(r *http.Request) booking.MemberID {
	return booking.MemberID(chi.URLParam(r, "id"))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body.", Code: "bad_request"})
		return false
	}
	return true
}

func parseTimeParam(w http.ResponseWriter, r *http.Request, name string, def time.Time) (time.Time, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Parameter " + name + " must be RFC3339.", Code: "bad_request"})
		return time.Time{}, false
	}
	return t, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[API] encode response failed: %v", err)
	}
}

// writeError sends the client-safe message for err and logs the cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[API] %s %s failed (request %s): %v", r.Method, r.URL.Path, middleware.GetReqID(r.Context()), err)
	}
	writeJSON(w, status, ErrorResponse{Error: booking.UserMessage(err), Code: code})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, booking.ErrSlotConflict):
		return http.StatusConflict, "slot_conflict"
	case errors.Is(err, booking.ErrAlreadyCancelled):
		return http.StatusConflict, "already_cancelled"
	case errors.Is(err, booking.ErrEventNotPending):
		return http.StatusConflict, "already_processed"
	case errors.Is(err, booking.ErrDuplicateID):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, booking.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, booking.ErrNotOwner):
		return http.StatusForbidden, "not_owner"
	case errors.Is(err, booking.ErrResourceUnavailable):
		return http.StatusUnprocessableEntity, "resource_unavailable"
	case booking.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case booking.IsClientError(err):
		return http.StatusBadRequest, "invalid"
	}
	return http.StatusInternalServerError, "internal"
}
