package app

import (
	"sort"
	"time"

	"github.com/AdarshRaj19/Medshare/internal/domain"
)

// Proposal is a suggested allocation of batch quantity to a request. It is
// advisory until the reservation coordinator commits it.
type Proposal struct {
	BatchID   string
	RequestID string
	Quantity  int
}

// MatchPolicy turns a snapshot of batches and requests into proposals.
// Policies run without locks; proposals are re-validated at commit time.
type MatchPolicy interface {
	Propose(batches []domain.Batch, requests []domain.Request, now time.Time) []Proposal
}

// GreedyPolicy allocates earliest-deadline-first within priority tiers,
// consuming earliest-expiring batches first to minimize spoilage. Greedy,
// not globally optimal, but deterministic and explainable.
type GreedyPolicy struct{}

func (GreedyPolicy) Propose(batches []domain.Batch, requests []domain.Request, now time.Time) []Proposal {
	type stock struct {
		batch     domain.Batch
		remaining int
	}

	// Eligible stock per medicine type, earliest expiry first.
	byType := make(map[string][]*stock)
	for _, b := range batches {
		if b.Status != domain.BatchStatusActive || b.ExpiredAt(now) {
			continue
		}
		if b.Available() <= 0 {
			continue
		}
		byType[b.MedicineType] = append(byType[b.MedicineType], &stock{batch: b, remaining: b.Available()})
	}
	for _, stocks := range byType {
		sort.Slice(stocks, func(i, j int) bool {
			a, b := stocks[i].batch, stocks[j].batch
			if !a.ExpiresAt.Equal(b.ExpiresAt) {
				return a.ExpiresAt.Before(b.ExpiresAt)
			}
			return a.ID < b.ID
		})
	}

	open := make([]domain.Request, 0, len(requests))
	for _, r := range requests {
		if r.Status != domain.RequestStatusOpen && r.Status != domain.RequestStatusPartiallyMatched {
			continue
		}
		if !r.Deadline.After(now) || r.Remaining() <= 0 {
			continue
		}
		open = append(open, r)
	}
	// Priority desc, deadline asc, creation asc; ID as the final tie-break
	// so repeated passes over the same snapshot agree.
	sort.Slice(open, func(i, j int) bool {
		a, b := open[i], open[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if !a.Deadline.Equal(b.Deadline) {
			return a.Deadline.Before(b.Deadline)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	var proposals []Proposal
	for _, r := range open {
		need := r.Remaining()
		for _, st := range byType[r.MedicineType] {
			if need == 0 {
				break
			}
			if st.remaining == 0 {
				continue
			}
			qty := min(need, st.remaining)
			proposals = append(proposals, Proposal{
				BatchID:   st.batch.ID,
				RequestID: r.ID,
				Quantity:  qty,
			})
			st.remaining -= qty
			need -= qty
		}
	}
	return proposals
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
