package events

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// AllEventTypes lists every event the booking flow publishes.
var AllEventTypes = []string{
	EventPaymentInitiated,
	EventBookingConfirmed,
	EventBookingCancelled,
	EventBookingFailed,
	EventBookingDeleted,
}

// AuditLogger returns a handler that writes each booking event to the
// structured log. Register it for every type in AllEventTypes to get a full
// audit trail.
func AuditLogger(logger *zerolog.Logger) EventHandler {
	log := logger.With().Str("component", "audit").Logger()
	return func(event *Event) error {
		var payload BookingEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			log.Warn().Err(err).Str("event", event.Type).Msg("unreadable event payload")
			return err
		}
		log.Info().
			Str("event", event.Type).
			Str("booking_id", payload.BookingID).
			Str("service", payload.ServiceName).
			Str("status", payload.Status).
			Int64("amount", payload.Amount).
			Msg("booking event")
		return nil
	}
}
