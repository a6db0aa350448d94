package domain

import "time"

type EventType string

const (
	EventReservationCreated   EventType = "reservation.created"
	EventReservationConfirmed EventType = "reservation.confirmed"
	EventReservationExpired   EventType = "reservation.expired"
	EventRequestFulfilled     EventType = "request.fulfilled"
)

// Event is a fire-and-observe notification emitted on lifecycle transitions.
type Event struct {
	Type          EventType `json:"type"`
	BatchID       string    `json:"batch_id,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	ReservationID string    `json:"reservation_id,omitempty"`
	Quantity      int       `json:"quantity,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Key is the partitioning key for event transport.
func (e Event) Key() string {
	if e.ReservationID != "" {
		return e.ReservationID
	}
	return e.RequestID
}
