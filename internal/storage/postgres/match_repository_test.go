package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/AdarshRaj19/Medshare/internal/domain"
	"github.com/AdarshRaj19/Medshare/internal/testutil"
)

func TestMatchRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewMatchRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	t.Run("ListAvailableBatches orders by expiry and hides empty stock", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()

		lateID := testutil.InsertBatch(t, ctx, pool, domain.Batch{
			MedicineType: "insulin", DonorID: "donor-1", Quantity: 50,
			ExpiresAt: now.Add(48 * time.Hour),
		})
		soonID := testutil.InsertBatch(t, ctx, pool, domain.Batch{
			MedicineType: "insulin", DonorID: "donor-1", Quantity: 50,
			ExpiresAt: now.Add(12 * time.Hour),
		})
		// Fully committed stock never reaches the policy.
		testutil.InsertBatch(t, ctx, pool, domain.Batch{
			MedicineType: "insulin", DonorID: "donor-1", Quantity: 50,
			Reserved: 30, Distributed: 20,
			ExpiresAt: now.Add(48 * time.Hour),
		})
		// Neither does already-expired stock, whatever its status says.
		testutil.InsertBatch(t, ctx, pool, domain.Batch{
			MedicineType: "insulin", DonorID: "donor-1", Quantity: 50,
			ExpiresAt: now.Add(-time.Minute),
		})

		batches, err := repo.ListAvailableBatches(ctx, now)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(batches) != 2 {
			t.Fatalf("expected 2 batches, got %d", len(batches))
		}
		if batches[0].ID != soonID || batches[1].ID != lateID {
			t.Fatalf("expected [%s %s], got [%s %s]", soonID, lateID, batches[0].ID, batches[1].ID)
		}
	})

	t.Run("ListOpenRequests carries pending from active reservations", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()

		batchID := testutil.InsertBatch(t, ctx, pool, domain.Batch{
			MedicineType: "insulin", DonorID: "donor-1", Quantity: 100,
			Reserved: 30, ExpiresAt: now.Add(24 * time.Hour),
		})
		requestID := testutil.InsertRequest(t, ctx, pool, domain.Request{
			NGOID: "ngo-1", MedicineType: "insulin", Quantity: 60,
			Status: domain.RequestStatusPartiallyMatched,
			Deadline: now.Add(24 * time.Hour),
		})
		plainID := testutil.InsertRequest(t, ctx, pool, domain.Request{
			NGOID: "ngo-2", MedicineType: "insulin", Quantity: 20,
			Deadline: now.Add(24 * time.Hour),
		})
		// Past deadline and terminal rows stay out of the snapshot.
		testutil.InsertRequest(t, ctx, pool, domain.Request{
			NGOID: "ngo-3", MedicineType: "insulin", Quantity: 20,
			Deadline: now.Add(-time.Minute),
		})
		testutil.InsertRequest(t, ctx, pool, domain.Request{
			NGOID: "ngo-4", MedicineType: "insulin", Quantity: 20,
			Status:   domain.RequestStatusCancelled,
			Deadline: now.Add(24 * time.Hour),
		})

		testutil.InsertReservation(t, ctx, pool, domain.Reservation{
			BatchID: batchID, RequestID: requestID, Quantity: 30,
			ExpiresAt: now.Add(10 * time.Minute),
		})

		requests, err := repo.ListOpenRequests(ctx, now)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(requests) != 2 {
			t.Fatalf("expected 2 requests, got %d", len(requests))
		}

		byID := map[string]domain.Request{}
		for _, r := range requests {
			byID[r.ID] = r
		}
		if got := byID[requestID]; got.Pending != 30 || got.Remaining() != 30 {
			t.Fatalf("expected pending 30 remaining 30, got %+v", got)
		}
		if got := byID[plainID]; got.Pending != 0 || got.Remaining() != 20 {
			t.Fatalf("expected pending 0 remaining 20, got %+v", got)
		}
	})

	t.Run("GetBatch reads live state", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()

		batchID := testutil.InsertBatch(t, ctx, pool, domain.Batch{
			MedicineType: "insulin", DonorID: "donor-1", Quantity: 100,
			Reserved: 40, ExpiresAt: now.Add(24 * time.Hour),
		})

		got, err := repo.GetBatch(ctx, batchID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Available() != 60 {
			t.Fatalf("expected available 60, got %d", got.Available())
		}
	})
}
