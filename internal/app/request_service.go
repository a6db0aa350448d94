package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AdarshRaj19/Medshare/internal/clock"
	"github.com/AdarshRaj19/Medshare/internal/domain"
)

type RequestRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateRequest(ctx context.Context, request domain.Request) error
	GetRequest(ctx context.Context, requestID string) (domain.Request, error)
	GetRequestForUpdate(ctx context.Context, requestID string) (domain.Request, error)
	UpdateFulfillment(ctx context.Context, requestID string, fulfilled int, status domain.RequestStatus) error
	UpdateStatus(ctx context.Context, requestID string, status domain.RequestStatus) error
	ListExpiredOpen(ctx context.Context, now time.Time) ([]string, error)
}

// RequestService is the ledger of NGO requests and their fulfillment state.
type RequestService struct {
	repo   RequestRepository
	clock  clock.Clock
	events Publisher
}

func NewRequestService(repo RequestRepository, clk clock.Clock, events Publisher) *RequestService {
	return &RequestService{
		repo:   repo,
		clock:  clk,
		events: events,
	}
}

type SubmitRequestInput struct {
	NGOID        string
	MedicineType string
	Quantity     int
	Priority     domain.Priority
	Deadline     time.Time
}

func (s *RequestService) SubmitRequest(ctx context.Context, in SubmitRequestInput) (domain.Request, error) {
	if strings.TrimSpace(in.NGOID) == "" {
		return domain.Request{}, domain.ErrNGORequired
	}
	if strings.TrimSpace(in.MedicineType) == "" {
		return domain.Request{}, domain.ErrMedicineTypeRequired
	}
	if in.Quantity <= 0 {
		return domain.Request{}, domain.ErrInvalidQuantity
	}
	if _, err := domain.ParsePriority(string(in.Priority)); err != nil {
		return domain.Request{}, err
	}

	now := s.clock.Now()
	if !in.Deadline.After(now) {
		return domain.Request{}, domain.ErrDeadlineInPast
	}

	request := domain.Request{
		ID:           newID(),
		NGOID:        in.NGOID,
		MedicineType: strings.TrimSpace(in.MedicineType),
		Quantity:     in.Quantity,
		Priority:     in.Priority,
		Status:       domain.RequestStatusOpen,
		Deadline:     in.Deadline,
		CreatedAt:    now,
	}

	if err := s.repo.CreateRequest(ctx, request); err != nil {
		return domain.Request{}, err
	}
	return request, nil
}

func (s *RequestService) GetRequest(ctx context.Context, requestID string) (domain.Request, error) {
	if requestID == "" {
		return domain.Request{}, domain.ErrInvalidID
	}
	return s.repo.GetRequest(ctx, requestID)
}

// RecordFulfillment adds distributed quantity to the request. The request
// becomes fulfilled once the full quantity is covered, partially matched
// otherwise.
func (s *RequestService) RecordFulfillment(ctx context.Context, requestID string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}

	var fulfilledEvent *domain.Event
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		request, err := s.repo.GetRequestForUpdate(txCtx, requestID)
		if err != nil {
			return err
		}
		if request.Terminal() {
			return domain.ErrInvalidState
		}
		if request.Fulfilled+qty > request.Quantity {
			return fmt.Errorf("%w: fulfillment %d exceeds remaining %d on request %s",
				domain.ErrInvariantViolation, qty, request.Quantity-request.Fulfilled, requestID)
		}

		fulfilled := request.Fulfilled + qty
		status := domain.RequestStatusPartiallyMatched
		if fulfilled >= request.Quantity {
			status = domain.RequestStatusFulfilled
			fulfilledEvent = &domain.Event{
				Type:       domain.EventRequestFulfilled,
				RequestID:  requestID,
				Quantity:   fulfilled,
				OccurredAt: s.clock.Now(),
			}
		}
		return s.repo.UpdateFulfillment(txCtx, requestID, fulfilled, status)
	})
	if err != nil {
		return err
	}

	if fulfilledEvent != nil {
		publish(ctx, s.events, *fulfilledEvent)
	}
	return nil
}

// Cancel closes a request. Cancelling an already terminal request is a no-op.
func (s *RequestService) Cancel(ctx context.Context, requestID string) error {
	if requestID == "" {
		return domain.ErrInvalidID
	}
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		request, err := s.repo.GetRequestForUpdate(txCtx, requestID)
		if err != nil {
			return err
		}
		if request.Terminal() {
			return nil
		}
		return s.repo.UpdateStatus(txCtx, requestID, domain.RequestStatusCancelled)
	})
}

// SweepExpired moves open requests past their deadline to expired and returns
// their IDs for forced release of any held reservations.
func (s *RequestService) SweepExpired(ctx context.Context) ([]string, error) {
	now := s.clock.Now()
	candidates, err := s.repo.ListExpiredOpen(ctx, now)
	if err != nil {
		return nil, err
	}

	var expired []string
	var errs []error
	for _, requestID := range candidates {
		err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
			request, err := s.repo.GetRequestForUpdate(txCtx, requestID)
			if err != nil {
				return err
			}
			if request.Terminal() || request.Deadline.After(now) {
				return nil
			}
			if err := s.repo.UpdateStatus(txCtx, requestID, domain.RequestStatusExpired); err != nil {
				return err
			}
			expired = append(expired, requestID)
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep request %s: %w", requestID, err))
		}
	}
	return expired, errors.Join(errs...)
}
