package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/AdarshRaj19/Medshare/internal/app"
	"github.com/AdarshRaj19/Medshare/internal/domain"
)

// BatchIntake is the minimal interface needed to register a donated batch.
type BatchIntake interface {
	AddBatch(ctx context.Context, in app.AddBatchInput) (domain.Batch, error)
}

// HandleAddBatch returns an HTTP handler for donor batch intake.
func HandleAddBatch(svc BatchIntake) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req addBatchRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		batch, err := svc.AddBatch(r.Context(), app.AddBatchInput{
			MedicineType: req.MedicineType,
			DonorID:      req.DonorID,
			Location:     req.Location,
			Quantity:     req.Quantity,
			ExpiresAt:    req.ExpiresAt,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := addBatchResponse{
			ID:        batch.ID,
			Status:    string(batch.Status),
			Available: batch.Available(),
			ExpiresAt: batch.ExpiresAt,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type addBatchRequest struct {
	MedicineType string    `json:"medicine_type"`
	DonorID      string    `json:"donor_id"`
	Location     string    `json:"location"`
	Quantity     int       `json:"quantity"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type addBatchResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Available int       `json:"available"`
	ExpiresAt time.Time `json:"expires_at"`
}
