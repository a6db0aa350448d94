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

type BatchRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateBatch(ctx context.Context, batch domain.Batch) error
	GetBatch(ctx context.Context, batchID string) (domain.Batch, error)
	GetBatchForUpdate(ctx context.Context, batchID string) (domain.Batch, error)
	UpdateCounters(ctx context.Context, batchID string, reserved, distributed int, status domain.BatchStatus) error
	UpdateStatus(ctx context.Context, batchID string, status domain.BatchStatus) error
	ListExpiredActive(ctx context.Context, now time.Time) ([]string, error)
	ArchiveTerminal(ctx context.Context, cutoff time.Time) (int, error)
}

// BatchService is the registry of donated medicine batches. It owns the
// reserved/distributed counters and guards every move with the batch row lock.
type BatchService struct {
	repo      BatchRepository
	clock     clock.Clock
	retention time.Duration
}

const defaultRetention = 90 * 24 * time.Hour

func NewBatchService(repo BatchRepository, clk clock.Clock, opts ...BatchServiceOption) *BatchService {
	svc := &BatchService{
		repo:      repo,
		clock:     clk,
		retention: defaultRetention,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type BatchServiceOption func(*BatchService)

// WithRetention overrides how long terminal batches are kept before archiving.
func WithRetention(d time.Duration) BatchServiceOption {
	return func(s *BatchService) {
		if d > 0 {
			s.retention = d
		}
	}
}

type AddBatchInput struct {
	MedicineType string
	DonorID      string
	Location     string
	Quantity     int
	ExpiresAt    time.Time
}

func (s *BatchService) AddBatch(ctx context.Context, in AddBatchInput) (domain.Batch, error) {
	if strings.TrimSpace(in.MedicineType) == "" {
		return domain.Batch{}, domain.ErrMedicineTypeRequired
	}
	if strings.TrimSpace(in.DonorID) == "" {
		return domain.Batch{}, domain.ErrDonorRequired
	}
	if in.Quantity <= 0 {
		return domain.Batch{}, domain.ErrInvalidQuantity
	}

	now := s.clock.Now()
	if !in.ExpiresAt.After(now) {
		return domain.Batch{}, domain.ErrExpiryInPast
	}

	batch := domain.Batch{
		ID:           newID(),
		MedicineType: strings.TrimSpace(in.MedicineType),
		DonorID:      in.DonorID,
		Location:     in.Location,
		Quantity:     in.Quantity,
		Status:       domain.BatchStatusActive,
		ExpiresAt:    in.ExpiresAt,
		CreatedAt:    now,
	}

	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return domain.Batch{}, err
	}
	return batch, nil
}

func (s *BatchService) GetBatch(ctx context.Context, batchID string) (domain.Batch, error) {
	if batchID == "" {
		return domain.Batch{}, domain.ErrInvalidID
	}
	return s.repo.GetBatch(ctx, batchID)
}

// ReserveQuantity moves qty from available to reserved. The check and the
// update happen under the batch row lock, so available never goes negative.
func (s *BatchService) ReserveQuantity(ctx context.Context, batchID string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}

	now := s.clock.Now()
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		batch, err := s.repo.GetBatchForUpdate(txCtx, batchID)
		if err != nil {
			return err
		}
		if batch.ExpiredAt(now) {
			return domain.ErrBatchExpired
		}
		if qty > batch.Available() {
			return domain.ErrInsufficientStock
		}
		return s.repo.UpdateCounters(txCtx, batchID, batch.Reserved+qty, batch.Distributed, batch.Status)
	})
}

// ReleaseQuantity returns qty from reserved to available.
func (s *BatchService) ReleaseQuantity(ctx context.Context, batchID string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}

	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		batch, err := s.repo.GetBatchForUpdate(txCtx, batchID)
		if err != nil {
			return err
		}
		if qty > batch.Reserved {
			return fmt.Errorf("%w: release %d exceeds reserved %d on batch %s",
				domain.ErrInvariantViolation, qty, batch.Reserved, batchID)
		}
		return s.repo.UpdateCounters(txCtx, batchID, batch.Reserved-qty, batch.Distributed, batch.Status)
	})
}

// Distribute converts qty from reserved to distributed. A batch with nothing
// left to give transitions to depleted.
func (s *BatchService) Distribute(ctx context.Context, batchID string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}

	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		batch, err := s.repo.GetBatchForUpdate(txCtx, batchID)
		if err != nil {
			return err
		}
		if qty > batch.Reserved {
			return fmt.Errorf("%w: distribute %d exceeds reserved %d on batch %s",
				domain.ErrInvariantViolation, qty, batch.Reserved, batchID)
		}

		reserved := batch.Reserved - qty
		distributed := batch.Distributed + qty
		status := batch.Status
		if status == domain.BatchStatusActive && reserved == 0 && batch.Quantity-distributed == 0 {
			status = domain.BatchStatusDepleted
		}
		return s.repo.UpdateCounters(txCtx, batchID, reserved, distributed, status)
	})
}

// SweepExpired transitions past-expiry batches to expired and returns their
// IDs so the caller can force-release any reservations still holding stock.
// Best effort: one failing batch does not block the rest.
func (s *BatchService) SweepExpired(ctx context.Context) ([]string, error) {
	now := s.clock.Now()
	candidates, err := s.repo.ListExpiredActive(ctx, now)
	if err != nil {
		return nil, err
	}

	var expired []string
	var errs []error
	for _, batchID := range candidates {
		err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
			batch, err := s.repo.GetBatchForUpdate(txCtx, batchID)
			if err != nil {
				return err
			}
			// Re-check under lock; another sweeper may have won.
			if batch.Status != domain.BatchStatusActive || batch.ExpiresAt.After(now) {
				return nil
			}
			if err := s.repo.UpdateStatus(txCtx, batchID, domain.BatchStatusExpired); err != nil {
				return err
			}
			expired = append(expired, batchID)
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep batch %s: %w", batchID, err))
		}
	}
	return expired, errors.Join(errs...)
}

// ArchiveTerminal stamps depleted/expired batches older than the retention
// window. Archived batches stay queryable but leave all listings.
func (s *BatchService) ArchiveTerminal(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.retention)
	return s.repo.ArchiveTerminal(ctx, cutoff)
}
