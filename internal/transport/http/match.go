package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/AdarshRaj19/Medshare/internal/app"
)

// MatchRunner is the minimal interface for triggering an allocation pass.
type MatchRunner interface {
	RunPass(ctx context.Context) (app.MatchReport, error)
}

// HandleRunMatch triggers a matching pass on demand; the periodic driver
// calls the same operation on its schedule.
func HandleRunMatch(svc MatchRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		report, err := svc.RunPass(r.Context())
		if err != nil && report.Proposed == 0 {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		resp := matchReportResponse{
			Proposed:  report.Proposed,
			Reserved:  report.Reserved,
			Skipped:   report.Skipped,
			Conflicts: report.Conflicts,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type matchReportResponse struct {
	Proposed  int `json:"proposed"`
	Reserved  int `json:"reserved"`
	Skipped   int `json:"skipped"`
	Conflicts int `json:"conflicts"`
}
