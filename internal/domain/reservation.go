package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusHeld      ReservationStatus = "held"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusFulfilled ReservationStatus = "fulfilled"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusExpired   ReservationStatus = "expired"
)

// Reservation is a time-bounded hold on a quantity of a batch for a request.
// At most one held or confirmed reservation exists per (batch, request) pair.
type Reservation struct {
	ID        string
	BatchID   string
	RequestID string
	Quantity  int
	Status    ReservationStatus
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Active reports whether the reservation still holds batch quantity.
func (r Reservation) Active() bool {
	return r.Status == ReservationStatusHeld || r.Status == ReservationStatusConfirmed
}
