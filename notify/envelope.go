// Package notify delivers booking.Publisher events to the outside world.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/court-engine/booking"
)

const EnvelopeVersion = 1

// Event types carried in Envelope.EventType.
const (
	EventReservationCreated   = "ReservationCreated"
	EventReservationCancelled = "ReservationCancelled"
	EventReservationCompleted = "ReservationCompleted"
	EventGeneric              = "Notification"
)

// Envelope wraps every published payload.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	Channel       string          `json:"channel"`
	CorrelationID string          `json:"correlation_id,omitempty"` // reservation id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload and stamps it.
func NewEnvelope(producer, channel string, payload any, at time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode payload: %w", err)
	}
	env := Envelope{
		EventID:      uuid.NewString(),
		EventType:    EventGeneric,
		EventVersion: EnvelopeVersion,
		OccurredAt:   at.UTC(),
		Producer:     producer,
		Channel:      channel,
		Payload:      raw,
	}
	if c, ok := payload.(booking.CalendarChange); ok {
		env.EventType = eventType(c.Action)
		env.CorrelationID = string(c.ReservationID)
	}
	return env, nil
}

func eventType(action string) string {
	switch action {
	case booking.ActionCreated:
		return EventReservationCreated
	case booking.ActionCancelled:
		return EventReservationCancelled
	case booking.ActionCompleted:
		return EventReservationCompleted
	}
	return EventGeneric
}

// UnwrapPayload decodes an envelope payload into T.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
