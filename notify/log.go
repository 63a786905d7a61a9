package notify

import (
	"context"
	"encoding/json"
	"log"

	"github.com/warp/court-engine/booking"
)

// LogPublisher writes each event to the standard logger. Used when no
// broker is configured.
type LogPublisher struct{}

var _ booking.Publisher = LogPublisher{}

func (LogPublisher) Publish(_ context.Context, channel string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	log.Printf("[Notify] %s %s", channel, b)
	return nil
}
