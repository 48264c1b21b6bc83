package outbox

import (
	"encoding/json"
	"time"

	"github.com/irodionov/slotbook/internal/model"
)

// Kafka topic names equal the event type, one topic per event kind.
const (
	EventHoldCreated      = "booking.hold.created.v1"
	EventBookingConfirmed = "booking.confirmed.v1"
	EventBookingCancelled = "booking.cancelled.v1"
	EventBookingExpired   = "booking.expired.v1"
)

// Event is the domain event envelope written to the outbox table inside the
// same transaction as the booking mutation it describes.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type bookingPayload struct {
	BookingID   string     `json:"booking_id"`
	TenantID    string     `json:"tenant_id"`
	StaffID     string     `json:"staff_id"`
	CustomerID  string     `json:"customer_id"`
	StartAt     time.Time  `json:"start_at"`
	EndAt       time.Time  `json:"end_at"`
	Status      string     `json:"status"`
	PriceCents  int64      `json:"price_cents"`
	DurationMin int        `json:"duration_min"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// ForBooking builds the envelope for one booking lifecycle event. The
// aggregate id is the booking id, so a hash balancer keeps one booking's
// events in order on a single partition.
func ForBooking(eventType string, b model.Booking) (Event, error) {
	payload, err := json.Marshal(bookingPayload{
		BookingID:   b.ID,
		TenantID:    b.TenantID,
		StaffID:     b.StaffID,
		CustomerID:  b.CustomerID,
		StartAt:     b.Start,
		EndAt:       b.End,
		Status:      string(b.Status),
		PriceCents:  b.PriceCents,
		DurationMin: b.DurationMin,
		ExpiresAt:   b.ExpiresAt,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

// EventForStatus maps a freshly persisted booking to its lifecycle event
// type. Holds map to hold-created only at creation time; the caller decides
// when that applies.
func EventForStatus(s model.Status) string {
	switch s {
	case model.StatusHold:
		return EventHoldCreated
	case model.StatusConfirmed:
		return EventBookingConfirmed
	case model.StatusCancelled:
		return EventBookingCancelled
	case model.StatusExpired:
		return EventBookingExpired
	}
	return ""
}
