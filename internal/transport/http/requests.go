package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/AdarshRaj19/Medshare/internal/app"
	"github.com/AdarshRaj19/Medshare/internal/domain"
)

// RequestSubmitter is the minimal interface needed to file an NGO request.
type RequestSubmitter interface {
	SubmitRequest(ctx context.Context, in app.SubmitRequestInput) (domain.Request, error)
}

// HandleSubmitRequest returns an HTTP handler for NGO request submission.
func HandleSubmitRequest(svc RequestSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req submitRequestRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		priority := req.Priority
		if priority == "" {
			priority = string(domain.PriorityMedium)
		}

		request, err := svc.SubmitRequest(r.Context(), app.SubmitRequestInput{
			NGOID:        req.NGOID,
			MedicineType: req.MedicineType,
			Quantity:     req.Quantity,
			Priority:     domain.Priority(priority),
			Deadline:     req.Deadline,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := submitRequestResponse{
			ID:       request.ID,
			Status:   string(request.Status),
			Priority: string(request.Priority),
			Deadline: request.Deadline,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type submitRequestRequest struct {
	NGOID        string    `json:"ngo_id"`
	MedicineType string    `json:"medicine_type"`
	Quantity     int       `json:"quantity"`
	Priority     string    `json:"priority"`
	Deadline     time.Time `json:"deadline"`
}

type submitRequestResponse struct {
	ID       string    `json:"id"`
	Status   string    `json:"status"`
	Priority string    `json:"priority"`
	Deadline time.Time `json:"deadline"`
}
