package metrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/court-engine/booking"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "/api/members/{id}/bookings", "201", 0.02)
	RecordHTTPRequest("POST", "/api/members/{id}/bookings", "201", 0.03)
	RecordHTTPRequest("POST", "/api/members/{id}/bookings", "409", 0.01)

	assert.Equal(t, float64(2), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/members/{id}/bookings", "201")))
	assert.Equal(t, float64(1), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/members/{id}/bookings", "409")))
	assert.Equal(t, 1, testutil.CollectAndCount(HTTPRequestDuration))
}

func TestObserver_BookingCreated(t *testing.T) {
	ReservationsCreatedTotal.Reset()
	revenue := testutil.ToFloat64(BookingRevenueTotal)

	Observer{}.BookingCreated(booking.KindSeries, 3, decimal.NewFromInt(150000))
	Observer{}.BookingCreated(booking.KindSingle, 1, decimal.RequireFromString("50000.50"))

	assert.Equal(t, float64(3), testutil.ToFloat64(ReservationsCreatedTotal.WithLabelValues("series")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ReservationsCreatedTotal.WithLabelValues("single")))
	assert.InDelta(t, 200000.50, testutil.ToFloat64(BookingRevenueTotal)-revenue, 0.001)
}

func TestObserver_BookingRejected(t *testing.T) {
	BookingsRejectedTotal.Reset()

	Observer{}.BookingRejected(booking.KindSingle, &booking.SlotConflictError{ResourceID: "court-a"})
	Observer{}.BookingRejected(booking.KindSingle, fmt.Errorf("wrapped: %w", booking.ErrInsufficientFunds))
	Observer{}.BookingRejected(booking.KindSeries, errors.New("disk full"))

	assert.Equal(t, float64(1), testutil.ToFloat64(BookingsRejectedTotal.WithLabelValues("single", "slot_conflict")))
	assert.Equal(t, float64(1), testutil.ToFloat64(BookingsRejectedTotal.WithLabelValues("single", "insufficient_funds")))
	assert.Equal(t, float64(1), testutil.ToFloat64(BookingsRejectedTotal.WithLabelValues("series", "internal")))
}

func TestObserver_CancelAndComplete(t *testing.T) {
	cancels := testutil.ToFloat64(CancellationsTotal)
	refunds := testutil.ToFloat64(RefundsTotal)
	completed := testutil.ToFloat64(ReservationsCompletedTotal)

	Observer{}.BookingCancelled(decimal.NewFromInt(75000))
	Observer{}.ReservationsCompleted(4)

	assert.Equal(t, float64(1), testutil.ToFloat64(CancellationsTotal)-cancels)
	assert.Equal(t, float64(75000), testutil.ToFloat64(RefundsTotal)-refunds)
	assert.Equal(t, float64(4), testutil.ToFloat64(ReservationsCompletedTotal)-completed)
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{booking.ErrSlotConflict, "slot_conflict"},
		{booking.ErrInsufficientFunds, "insufficient_funds"},
		{booking.ErrResourceUnavailable, "resource_unavailable"},
		{booking.ErrMemberNotFound, "member_not_found"},
		{booking.ErrInvalidDuration, "invalid"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Reason(tt.err))
		})
	}
}
