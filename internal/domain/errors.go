package domain

import "errors"

var (
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrExpiryInPast         = errors.New("expiry date in the past")
	ErrDeadlineInPast       = errors.New("deadline in the past")
	ErrInvalidPriority      = errors.New("invalid priority")
	ErrMedicineTypeRequired = errors.New("medicine type required")
	ErrDonorRequired        = errors.New("donor id required")
	ErrNGORequired          = errors.New("ngo id required")
	ErrInvalidID            = errors.New("invalid id")

	ErrBatchNotFound       = errors.New("batch not found")
	ErrRequestNotFound     = errors.New("request not found")
	ErrReservationNotFound = errors.New("reservation not found")

	ErrInsufficientStock = errors.New("insufficient stock")
	ErrBatchExpired      = errors.New("batch expired")

	// ErrConcurrentModification means a batch's availability moved between
	// the matching snapshot and commit; retried internally before being
	// surfaced as ErrMatchingConflict.
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrMatchingConflict       = errors.New("matching conflict")

	ErrReservationExists  = errors.New("active reservation already exists for pair")
	ErrReservationExpired = errors.New("reservation expired")
	ErrInvalidState       = errors.New("invalid state for operation")

	// ErrInvariantViolation indicates a logic defect, not a caller mistake.
	ErrInvariantViolation = errors.New("invariant violation")
)
