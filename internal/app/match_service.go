package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AdarshRaj19/Medshare/internal/clock"
	"github.com/AdarshRaj19/Medshare/internal/domain"
)

// maxReserveRetries bounds re-attempts after a concurrent modification.
const maxReserveRetries = 3

// MatchSnapshotter reads the lock-free snapshot a matching pass works on.
type MatchSnapshotter interface {
	ListAvailableBatches(ctx context.Context, now time.Time) ([]domain.Batch, error)
	ListOpenRequests(ctx context.Context, now time.Time) ([]domain.Request, error)
	GetBatch(ctx context.Context, batchID string) (domain.Batch, error)
}

// ReservationCreator is the slice of the coordinator the matcher commits
// proposals through.
type ReservationCreator interface {
	Create(ctx context.Context, in CreateReservationInput) (domain.Reservation, error)
}

// MatchService runs the allocation pass: snapshot without locks, propose via
// the policy, then apply each proposal under the batch row lock with
// commit-time re-validation.
type MatchService struct {
	snapshots    MatchSnapshotter
	reservations ReservationCreator
	policy       MatchPolicy
	clock        clock.Clock
}

func NewMatchService(snapshots MatchSnapshotter, reservations ReservationCreator, clk clock.Clock, opts ...MatchServiceOption) *MatchService {
	svc := &MatchService{
		snapshots:    snapshots,
		reservations: reservations,
		policy:       GreedyPolicy{},
		clock:        clk,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type MatchServiceOption func(*MatchService)

// WithPolicy swaps the default greedy policy.
func WithPolicy(p MatchPolicy) MatchServiceOption {
	return func(s *MatchService) {
		if p != nil {
			s.policy = p
		}
	}
}

// MatchReport summarizes one pass.
type MatchReport struct {
	Proposed  int
	Reserved  int
	Skipped   int
	Conflicts int
}

// RunPass recomputes proposals from a fresh snapshot and applies them.
// Conflicts that survive the retry bound are reported, not fatal to the pass.
func (s *MatchService) RunPass(ctx context.Context) (MatchReport, error) {
	now := s.clock.Now()
	batches, err := s.snapshots.ListAvailableBatches(ctx, now)
	if err != nil {
		return MatchReport{}, fmt.Errorf("snapshot batches: %w", err)
	}
	requests, err := s.snapshots.ListOpenRequests(ctx, now)
	if err != nil {
		return MatchReport{}, fmt.Errorf("snapshot requests: %w", err)
	}

	proposals := s.policy.Propose(batches, requests, now)

	available := make(map[string]int, len(batches))
	for _, b := range batches {
		available[b.ID] = b.Available()
	}

	report := MatchReport{Proposed: len(proposals)}
	var errs []error
	for _, p := range proposals {
		switch err := s.apply(ctx, p, available[p.BatchID]); {
		case err == nil:
			report.Reserved++
		case errors.Is(err, errSkipProposal):
			report.Skipped++
		case errors.Is(err, domain.ErrMatchingConflict):
			report.Conflicts++
			errs = append(errs, fmt.Errorf("batch %s request %s: %w", p.BatchID, p.RequestID, err))
		default:
			errs = append(errs, fmt.Errorf("apply proposal batch %s request %s: %w", p.BatchID, p.RequestID, err))
		}
	}
	return report, errors.Join(errs...)
}

// errSkipProposal marks proposals made stale by legitimate interleaving,
// such as the batch expiring or another pass reserving the pair.
var errSkipProposal = errors.New("proposal skipped")

func (s *MatchService) apply(ctx context.Context, p Proposal, snapshotAvailable int) error {
	qty := p.Quantity

	for attempt := 0; attempt < maxReserveRetries; attempt++ {
		_, err := s.reservations.Create(ctx, CreateReservationInput{
			BatchID:           p.BatchID,
			RequestID:         p.RequestID,
			Quantity:          qty,
			SnapshotAvailable: snapshotAvailable,
		})
		if err == nil {
			return nil
		}

		switch {
		case errors.Is(err, domain.ErrConcurrentModification):
			// Re-fetch and retry the pair with a clamped quantity.
			batch, ferr := s.snapshots.GetBatch(ctx, p.BatchID)
			if ferr != nil {
				return ferr
			}
			if batch.ExpiredAt(s.clock.Now()) || batch.Available() <= 0 {
				return errSkipProposal
			}
			snapshotAvailable = batch.Available()
			qty = min(qty, snapshotAvailable)
		case errors.Is(err, domain.ErrBatchExpired),
			errors.Is(err, domain.ErrInsufficientStock),
			errors.Is(err, domain.ErrReservationExists):
			return errSkipProposal
		default:
			return err
		}
	}
	return domain.ErrMatchingConflict
}
