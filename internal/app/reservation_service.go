package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AdarshRaj19/Medshare/internal/clock"
	"github.com/AdarshRaj19/Medshare/internal/domain"
)

type ReservationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateReservation(ctx context.Context, reservation domain.Reservation) error
	GetReservation(ctx context.Context, reservationID string) (domain.Reservation, error)
	GetReservationForUpdate(ctx context.Context, reservationID string) (domain.Reservation, error)
	UpdateReservationStatus(ctx context.Context, reservationID string, status domain.ReservationStatus) error
	ListExpiredHeld(ctx context.Context, now time.Time) ([]string, error)
	ListActiveByBatch(ctx context.Context, batchID string) ([]string, error)
	ListActiveByRequest(ctx context.Context, requestID string) ([]string, error)
}

// BatchGuard is the slice of the batch registry the coordinator moves
// quantity through. Calls made inside a coordinator transaction join it.
type BatchGuard interface {
	ReserveQuantity(ctx context.Context, batchID string, qty int) error
	ReleaseQuantity(ctx context.Context, batchID string, qty int) error
	Distribute(ctx context.Context, batchID string, qty int) error
}

// FulfillmentRecorder is the slice of the request ledger used on fulfillment.
type FulfillmentRecorder interface {
	RecordFulfillment(ctx context.Context, requestID string, qty int) error
}

// ReservationService coordinates the lifecycle of a hold on batch quantity:
// held -> confirmed -> fulfilled, or released / expired.
type ReservationService struct {
	repo     ReservationRepository
	batches  BatchGuard
	requests FulfillmentRecorder
	clock    clock.Clock
	events   Publisher
	holdTTL  time.Duration
}

const defaultHoldTTL = 15 * time.Minute

func NewReservationService(
	repo ReservationRepository,
	batches BatchGuard,
	requests FulfillmentRecorder,
	clk clock.Clock,
	events Publisher,
	opts ...ReservationServiceOption,
) *ReservationService {
	svc := &ReservationService{
		repo:     repo,
		batches:  batches,
		requests: requests,
		clock:    clk,
		events:   events,
		holdTTL:  defaultHoldTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ReservationServiceOption func(*ReservationService)

// WithHoldTTL overrides the default TTL for new holds.
func WithHoldTTL(d time.Duration) ReservationServiceOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

type CreateReservationInput struct {
	BatchID   string
	RequestID string
	Quantity  int
	// SnapshotAvailable is the batch availability the matching pass saw.
	// When the commit-time check fails but the snapshot had room, the
	// failure is reported as a concurrent modification so the caller can
	// re-fetch and retry.
	SnapshotAvailable int
}

func (s *ReservationService) Create(ctx context.Context, in CreateReservationInput) (domain.Reservation, error) {
	if in.BatchID == "" || in.RequestID == "" {
		return domain.Reservation{}, domain.ErrInvalidID
	}
	if in.Quantity <= 0 {
		return domain.Reservation{}, domain.ErrInvalidQuantity
	}

	now := s.clock.Now()
	reservation := domain.Reservation{
		ID:        newID(),
		BatchID:   in.BatchID,
		RequestID: in.RequestID,
		Quantity:  in.Quantity,
		Status:    domain.ReservationStatusHeld,
		ExpiresAt: now.Add(s.holdTTL),
		CreatedAt: now,
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.batches.ReserveQuantity(txCtx, in.BatchID, in.Quantity); err != nil {
			if errors.Is(err, domain.ErrInsufficientStock) && in.SnapshotAvailable >= in.Quantity {
				return domain.ErrConcurrentModification
			}
			return err
		}
		// Unique (batch, request) active pair; violation rolls the
		// reserve back with the transaction.
		return s.repo.CreateReservation(txCtx, reservation)
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	publish(ctx, s.events, domain.Event{
		Type:          domain.EventReservationCreated,
		BatchID:       reservation.BatchID,
		RequestID:     reservation.RequestID,
		ReservationID: reservation.ID,
		Quantity:      reservation.Quantity,
		OccurredAt:    now,
	})
	return reservation, nil
}

func (s *ReservationService) Get(ctx context.Context, reservationID string) (domain.Reservation, error) {
	if reservationID == "" {
		return domain.Reservation{}, domain.ErrInvalidID
	}
	return s.repo.GetReservation(ctx, reservationID)
}

// Confirm moves a held reservation to confirmed, stopping its TTL.
func (s *ReservationService) Confirm(ctx context.Context, reservationID string) error {
	if reservationID == "" {
		return domain.ErrInvalidID
	}

	now := s.clock.Now()
	var confirmed domain.Reservation
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		reservation, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != domain.ReservationStatusHeld {
			return domain.ErrInvalidState
		}
		if !reservation.ExpiresAt.After(now) {
			return domain.ErrReservationExpired
		}
		if err := s.repo.UpdateReservationStatus(txCtx, reservationID, domain.ReservationStatusConfirmed); err != nil {
			return err
		}
		confirmed = reservation
		return nil
	})
	if err != nil {
		return err
	}

	publish(ctx, s.events, domain.Event{
		Type:          domain.EventReservationConfirmed,
		BatchID:       confirmed.BatchID,
		RequestID:     confirmed.RequestID,
		ReservationID: reservationID,
		Quantity:      confirmed.Quantity,
		OccurredAt:    now,
	})
	return nil
}

// Release returns a reservation's quantity to its batch. Idempotent:
// releasing a reservation already released, expired, or fulfilled is a no-op.
func (s *ReservationService) Release(ctx context.Context, reservationID string) error {
	if reservationID == "" {
		return domain.ErrInvalidID
	}

	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		reservation, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}
		if !reservation.Active() {
			return nil
		}
		if err := s.batches.ReleaseQuantity(txCtx, reservation.BatchID, reservation.Quantity); err != nil {
			return err
		}
		return s.repo.UpdateReservationStatus(txCtx, reservationID, domain.ReservationStatusReleased)
	})
}

// Fulfill terminates a confirmed reservation: its quantity moves from
// reserved to distributed and the request's fulfillment is recorded, in one
// transaction.
func (s *ReservationService) Fulfill(ctx context.Context, reservationID string) error {
	if reservationID == "" {
		return domain.ErrInvalidID
	}

	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		reservation, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != domain.ReservationStatusConfirmed {
			return domain.ErrInvalidState
		}
		if err := s.batches.Distribute(txCtx, reservation.BatchID, reservation.Quantity); err != nil {
			return err
		}
		if err := s.requests.RecordFulfillment(txCtx, reservation.RequestID, reservation.Quantity); err != nil {
			return err
		}
		return s.repo.UpdateReservationStatus(txCtx, reservationID, domain.ReservationStatusFulfilled)
	})
}

// SweepExpired expires held reservations past their TTL and returns their
// quantity to the batch. Best effort per reservation.
func (s *ReservationService) SweepExpired(ctx context.Context) (int, error) {
	now := s.clock.Now()
	candidates, err := s.repo.ListExpiredHeld(ctx, now)
	if err != nil {
		return 0, err
	}

	swept := 0
	var errs []error
	for _, reservationID := range candidates {
		var expired domain.Reservation
		err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
			reservation, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
			if err != nil {
				return err
			}
			if reservation.Status != domain.ReservationStatusHeld || reservation.ExpiresAt.After(now) {
				return nil
			}
			if err := s.batches.ReleaseQuantity(txCtx, reservation.BatchID, reservation.Quantity); err != nil {
				return err
			}
			if err := s.repo.UpdateReservationStatus(txCtx, reservationID, domain.ReservationStatusExpired); err != nil {
				return err
			}
			expired = reservation
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep reservation %s: %w", reservationID, err))
			continue
		}
		if expired.ID != "" {
			swept++
			publish(ctx, s.events, domain.Event{
				Type:          domain.EventReservationExpired,
				BatchID:       expired.BatchID,
				RequestID:     expired.RequestID,
				ReservationID: expired.ID,
				Quantity:      expired.Quantity,
				OccurredAt:    now,
			})
		}
	}
	return swept, errors.Join(errs...)
}

// ReleaseForBatches force-releases the active reservations of batches that
// just expired: expired stock may not be distributed even if already held.
func (s *ReservationService) ReleaseForBatches(ctx context.Context, batchIDs []string) error {
	var errs []error
	for _, batchID := range batchIDs {
		ids, err := s.repo.ListActiveByBatch(ctx, batchID)
		if err != nil {
			errs = append(errs, fmt.Errorf("list reservations for batch %s: %w", batchID, err))
			continue
		}
		for _, id := range ids {
			if err := s.Release(ctx, id); err != nil {
				errs = append(errs, fmt.Errorf("release reservation %s: %w", id, err))
			}
		}
	}
	return errors.Join(errs...)
}

// ReleaseForRequests force-releases the active reservations of requests that
// passed their deadline.
func (s *ReservationService) ReleaseForRequests(ctx context.Context, requestIDs []string) error {
	var errs []error
	for _, requestID := range requestIDs {
		ids, err := s.repo.ListActiveByRequest(ctx, requestID)
		if err != nil {
			errs = append(errs, fmt.Errorf("list reservations for request %s: %w", requestID, err))
			continue
		}
		for _, id := range ids {
			if err := s.Release(ctx, id); err != nil {
				errs = append(errs, fmt.Errorf("release reservation %s: %w", id, err))
			}
		}
	}
	return errors.Join(errs...)
}
