package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Publisher broadcasts state changes. Delivery is best effort: the engine
// calls it after commit and only logs a failure.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// Calendar actions carried in CalendarChange.Action.
const (
	ActionCreated   = "Created"
	ActionCancelled = "Cancelled"
	ActionCompleted = "Completed"
)

// CalendarChange tells calendar clients which court/day to refresh.
type CalendarChange struct {
	ResourceID    ResourceID    `json:"resource_id"`
	Date          string        `json:"date"` // YYYY-MM-DD of the slot start
	Action        string        `json:"action"`
	ReservationID ReservationID `json:"reservation_id"`
}

// CalendarChannel is the resource-scoped channel calendar clients subscribe to.
func CalendarChannel(id ResourceID) string { return fmt.Sprintf("calendar:%s", id) }

// MemberChannel is the member-scoped channel. Unused by the booking core.
func MemberChannel(id MemberID) string { return fmt.Sprintf("member:%s", id) }

func calendarChange(r Reservation, action string) CalendarChange {
	return CalendarChange{
		ResourceID:    r.ResourceID,
		Date:          r.Start.UTC().Format(time.DateOnly),
		Action:        action,
		ReservationID: r.ID,
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }

// =============================================================================
// OBSERVER - Hook for metrics
// =============================================================================

// Observer receives outcome notifications from the engine.
type Observer interface {
	BookingCreated(kind string, count int, amount decimal.Decimal)
	BookingRejected(kind string, err error)
	BookingCancelled(refund decimal.Decimal)
	ReservationsCompleted(count int)
}

// Booking kinds passed to Observer.
const (
	KindSingle = "single"
	KindSeries = "series"
)

type nopObserver struct{}

func (nopObserver) BookingCreated(string, int, decimal.Decimal) {}
func (nopObserver) BookingRejected(string, error)               {}
func (nopObserver) BookingCancelled(decimal.Decimal)            {}
func (nopObserver) ReservationsCompleted(int)                   {}
