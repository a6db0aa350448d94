package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AdarshRaj19/Medshare/internal/domain"
)

const (
	codeMethodNotAllowed     = "method_not_allowed"
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeInvalidID            = "invalid_id"
	codeInvalidQuantity      = "invalid_quantity"
	codeInvalidPriority      = "invalid_priority"
	codeExpiryInPast         = "expiry_in_past"
	codeDeadlineInPast       = "deadline_in_past"
	codeMedicineTypeRequired = "medicine_type_required"
	codeDonorRequired        = "donor_required"
	codeNGORequired          = "ngo_required"
	codeBatchNotFound        = "batch_not_found"
	codeRequestNotFound      = "request_not_found"
	codeReservationNotFound  = "reservation_not_found"
	codeInsufficientStock    = "insufficient_stock"
	codeBatchExpired         = "batch_expired"
	codeReservationExpired   = "reservation_expired"
	codeInvalidState         = "invalid_state"
	codeMatchingConflict     = "matching_conflict"
	codeForbidden            = "forbidden"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps core sentinel errors to HTTP status and code.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case errors.Is(err, domain.ErrInvalidPriority):
		writeError(w, http.StatusBadRequest, codeInvalidPriority, err.Error())
	case errors.Is(err, domain.ErrExpiryInPast):
		writeError(w, http.StatusBadRequest, codeExpiryInPast, err.Error())
	case errors.Is(err, domain.ErrDeadlineInPast):
		writeError(w, http.StatusBadRequest, codeDeadlineInPast, err.Error())
	case errors.Is(err, domain.ErrMedicineTypeRequired):
		writeError(w, http.StatusBadRequest, codeMedicineTypeRequired, err.Error())
	case errors.Is(err, domain.ErrDonorRequired):
		writeError(w, http.StatusBadRequest, codeDonorRequired, err.Error())
	case errors.Is(err, domain.ErrNGORequired):
		writeError(w, http.StatusBadRequest, codeNGORequired, err.Error())
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrBatchNotFound):
		writeError(w, http.StatusNotFound, codeBatchNotFound, err.Error())
	case errors.Is(err, domain.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, codeRequestNotFound, err.Error())
	case errors.Is(err, domain.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, codeReservationNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		writeError(w, http.StatusConflict, codeInsufficientStock, err.Error())
	case errors.Is(err, domain.ErrBatchExpired):
		writeError(w, http.StatusConflict, codeBatchExpired, err.Error())
	case errors.Is(err, domain.ErrReservationExpired):
		writeError(w, http.StatusConflict, codeReservationExpired, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, codeInvalidState, err.Error())
	case errors.Is(err, domain.ErrMatchingConflict):
		writeError(w, http.StatusConflict, codeMatchingConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
