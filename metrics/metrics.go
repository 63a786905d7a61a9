// Package metrics exposes Prometheus counters for the booking engine and
// the HTTP layer.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/warp/court-engine/booking"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "court_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "court_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	ReservationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "court_reservations_created_total",
			Help: "Reservations created, by booking kind",
		},
		[]string{"kind"},
	)

	BookingRevenueTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "court_booking_revenue_total",
			Help: "Sum of booking debits",
		},
	)

	BookingsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "court_bookings_rejected_total",
			Help: "Booking attempts rejected, by kind and reason",
		},
		[]string{"kind", "reason"},
	)

	CancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "court_cancellations_total",
			Help: "Total number of cancellations",
		},
	)

	RefundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "court_refunds_total",
			Help: "Sum of cancellation refunds",
		},
	)

	ReservationsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "court_reservations_completed_total",
			Help: "Reservations moved to completed by the sweep",
		},
	)
)

func RecordHTTPRequest(method, route, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
}

// Reason maps a booking error to a low-cardinality label.
func Reason(err error) string {
	switch {
	case errors.Is(err, booking.ErrSlotConflict):
		return "slot_conflict"
	case errors.Is(err, booking.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, booking.ErrResourceUnavailable):
		return "resource_unavailable"
	case errors.Is(err, booking.ErrMemberNotFound):
		return "member_not_found"
	case booking.IsClientError(err):
		return "invalid"
	}
	return "internal"
}

// Observer feeds engine outcomes into the package counters.
type Observer struct{}

var _ booking.Observer = Observer{}

func (Observer) BookingCreated(kind string, count int, amount decimal.Decimal) {
	ReservationsCreatedTotal.WithLabelValues(kind).Add(float64(count))
	BookingRevenueTotal.Add(amount.InexactFloat64())
}

func (Observer) BookingRejected(kind string, err error) {
	BookingsRejectedTotal.WithLabelValues(kind, Reason(err)).Inc()
}

func (Observer) BookingCancelled(refund decimal.Decimal) {
	CancellationsTotal.Inc()
	RefundsTotal.Add(refund.InexactFloat64())
}

func (Observer) ReservationsCompleted(count int) {
	ReservationsCompletedTotal.Add(float64(count))
}
