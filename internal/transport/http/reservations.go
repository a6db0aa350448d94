package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/AdarshRaj19/Medshare/internal/domain"
)

// ReservationLifecycle is the minimal coordinator interface the confirmation
// and cancellation endpoints need.
type ReservationLifecycle interface {
	Confirm(ctx context.Context, reservationID string) error
	Release(ctx context.Context, reservationID string) error
	Fulfill(ctx context.Context, reservationID string) error
	Get(ctx context.Context, reservationID string) (domain.Reservation, error)
}

// HandleReservationAction routes POST /reservations/{id}/{confirm|release|fulfill}.
func HandleReservationAction(svc ReservationLifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		reservationID, action, ok := parseReservationPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		var err error
		switch action {
		case "confirm":
			err = svc.Confirm(r.Context(), reservationID)
		case "release":
			err = svc.Release(r.Context(), reservationID)
		case "fulfill":
			err = svc.Fulfill(r.Context(), reservationID)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}

		reservation, err := svc.Get(r.Context(), reservationID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := reservationResponse{
			ID:        reservation.ID,
			BatchID:   reservation.BatchID,
			RequestID: reservation.RequestID,
			Quantity:  reservation.Quantity,
			Status:    string(reservation.Status),
			ExpiresAt: reservation.ExpiresAt,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func parseReservationPath(path string) (string, string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return "", "", false
	}
	if parts[0] != "reservations" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

type reservationResponse struct {
	ID        string    `json:"id"`
	BatchID   string    `json:"batch_id"`
	RequestID string    `json:"request_id"`
	Quantity  int       `json:"quantity"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}
