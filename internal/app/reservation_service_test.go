package app

import (
	"context"
	"testing"
	"time"

	"github.com/AdarshRaj19/Medshare/internal/clock"
	"github.com/AdarshRaj19/Medshare/internal/domain"
)

type reservationFixture struct {
	svc       *ReservationService
	batches   *fakeBatchRepo
	requests  *fakeRequestRepo
	res       *fakeReservationRepo
	clock     *clock.Stepped
	published *capturingPublisher
}

func newReservationFixture(t *testing.T, now time.Time, batches []domain.Batch, requests []domain.Request) *reservationFixture {
	t.Helper()
	clk := clock.NewStepped(now)
	batchRepo := newFakeBatchRepo(batches...)
	requestRepo := newFakeRequestRepo(requests...)
	resRepo := newFakeReservationRepo(batchRepo, requestRepo)
	events := &capturingPublisher{}

	batchSvc := NewBatchService(batchRepo, clk)
	requestSvc := NewRequestService(requestRepo, clk, events)
	svc := NewReservationService(resRepo, batchSvc, requestSvc, clk, events, WithHoldTTL(15*time.Minute))

	return &reservationFixture{
		svc: svc, batches: batchRepo, requests: requestRepo,
		res: resRepo, clock: clk, published: events,
	}
}

func TestReservationService_Create(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("holds quantity and emits created event", func(t *testing.T) {
		fx := newReservationFixture(t, now,
			[]domain.Batch{{ID: "b1", MedicineType: "insulin", Quantity: 100, Status: domain.BatchStatusActive, ExpiresAt: now.Add(30 * 24 * time.Hour)}},
			[]domain.Request{{ID: "r1", MedicineType: "insulin", Quantity: 40, Status: domain.RequestStatusOpen, Deadline: now.Add(24 * time.Hour)}},
		)

		reservation, err := fx.svc.Create(context.Background(), CreateReservationInput{
			BatchID: "b1", RequestID: "r1", Quantity: 40, SnapshotAvailable: 100,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if reservation.Status != domain.ReservationStatusHeld {
			t.Fatalf("expected held, got %s", reservation.Status)
		}
		if reservation.ExpiresAt != now.Add(15*time.Minute) {
			t.Fatalf("expected TTL expiry %v, got %v", now.Add(15*time.Minute), reservation.ExpiresAt)
		}
		if got := fx.batches.batches["b1"].Available(); got != 60 {
			t.Fatalf("expected batch available 60, got %d", got)
		}
		if len(fx.published.events) != 1 || fx.published.events[0].Type != domain.EventReservationCreated {
			t.Fatalf("expected reservation.created event, got %v", fx.published.events)
		}
	})

	t.Run("snapshot drift surfaces as concurrent modification", func(t *testing.T) {
		fx := newReservationFixture(t, now,
			[]domain.Batch{{ID: "b1", MedicineType: "insulin", Quantity: 100, Reserved: 95, Status: domain.BatchStatusActive, ExpiresAt: now.Add(24 * time.Hour)}},
			nil,
		)

		// Snapshot said 100 available; another actor took 95 since.
		_, err := fx.svc.Create(context.Background(), CreateReservationInput{
			BatchID: "b1", RequestID: "r1", Quantity: 40, SnapshotAvailable: 100,
		})
		if err != domain.ErrConcurrentModification {
			t.Fatalf("expected ErrConcurrentModification, got %v", err)
		}
		if got := fx.batches.batches["b1"].Reserved; got != 95 {
			t.Fatalf("expected reserved unchanged at 95, got %d", got)
		}
	})

	t.Run("genuinely insufficient stock passes through", func(t *testing.T) {
		fx := newReservationFixture(t, now,
			[]domain.Batch{{ID: "b1", MedicineType: "insulin", Quantity: 10, Status: domain.BatchStatusActive, ExpiresAt: now.Add(24 * time.Hour)}},
			nil,
		)

		_, err := fx.svc.Create(context.Background(), CreateReservationInput{
			BatchID: "b1", RequestID: "r1", Quantity: 40, SnapshotAvailable: 10,
		})
		if err != domain.ErrInsufficientStock {
			t.Fatalf("expected ErrInsufficientStock, got %v", err)
		}
	})

	t.Run("second active hold on the same pair is rejected", func(t *testing.T) {
		fx := newReservationFixture(t, now,
			[]domain.Batch{{ID: "b1", MedicineType: "insulin", Quantity: 100, Status: domain.BatchStatusActive, ExpiresAt: now.Add(24 * time.Hour)}},
			nil,
		)

		if _, err := fx.svc.Create(context.Background(), CreateReservationInput{
			BatchID: "b1", RequestID: "r1", Quantity: 10, SnapshotAvailable: 100,
		}); err != nil {
			t.Fatalf("first create: %v", err)
		}
		_, err := fx.svc.Create(context.Background(), CreateReservationInput{
			BatchID: "b1", RequestID: "r1", Quantity: 10, SnapshotAvailable: 90,
		})
		if err != domain.ErrReservationExists {
			t.Fatalf("expected ErrReservationExists, got %v", err)
		}
		// The failed insert must not leak reserved quantity.
		if got := fx.batches.batches["b1"].Reserved; got != 10 {
			t.Fatalf("expected reserved 10, got %d", got)
		}
	})
}

func TestReservationService_ConfirmAndFulfill(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	setup := func(t *testing.T) (*reservationFixture, domain.Reservation) {
		fx := newReservationFixture(t, now,
			[]domain.Batch{{ID: "b1", MedicineType: "insulin", Quantity: 100, Status: domain.BatchStatusActive, ExpiresAt: now.Add(30 * 24 * time.Hour)}},
			[]domain.Request{{ID: "r1", MedicineType: "insulin", Quantity: 40, Status: domain.RequestStatusOpen, Deadline: now.Add(24 * time.Hour)}},
		)
		reservation, err := fx.svc.Create(context.Background(), CreateReservationInput{
			BatchID: "b1", RequestID: "r1", Quantity: 40, SnapshotAvailable: 100,
		})
		if err != nil {
			t.Fatalf("create reservation: %v", err)
		}
		return fx, reservation
	}

	t.Run("confirm then fulfill distributes and records", func(t *testing.T) {
		fx, reservation := setup(t)

		if err := fx.svc.Confirm(context.Background(), reservation.ID); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if err := fx.svc.Fulfill(context.Background(), reservation.ID); err != nil {
			t.Fatalf("fulfill: %v", err)
		}

		batch := fx.batches.batches["b1"]
		if batch.Distributed != 40 || batch.Reserved != 0 {
			t.Fatalf("expected distributed 40 reserved 0, got %d/%d", batch.Distributed, batch.Reserved)
		}
		request := fx.requests.requests["r1"]
		if request.Fulfilled != 40 || request.Status != domain.RequestStatusFulfilled {
			t.Fatalf("expected request fulfilled, got %d %s", request.Fulfilled, request.Status)
		}
		stored := fx.res.reservations[reservation.ID]
		if stored.Status != domain.ReservationStatusFulfilled {
			t.Fatalf("expected reservation fulfilled, got %s", stored.Status)
		}

		types := []domain.EventType{}
		for _, ev := range fx.published.events {
			types = append(types, ev.Type)
		}
		want := []domain.EventType{domain.EventReservationCreated, domain.EventReservationConfirmed, domain.EventRequestFulfilled}
		if len(types) != len(want) {
			t.Fatalf("expected events %v, got %v", want, types)
		}
		for i := range want {
			if types[i] != want[i] {
				t.Fatalf("expected events %v, got %v", want, types)
			}
		}
	})

	t.Run("confirm requires held state", func(t *testing.T) {
		fx, reservation := setup(t)
		if err := fx.svc.Confirm(context.Background(), reservation.ID); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if err := fx.svc.Confirm(context.Background(), reservation.ID); err != domain.ErrInvalidState {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("confirm after TTL reports expiry", func(t *testing.T) {
		fx, reservation := setup(t)
		fx.clock.Advance(16 * time.Minute)
		if err := fx.svc.Confirm(context.Background(), reservation.ID); err != domain.ErrReservationExpired {
			t.Fatalf("expected ErrReservationExpired, got %v", err)
		}
	})

	t.Run("fulfill requires confirmed state", func(t *testing.T) {
		fx, reservation := setup(t)
		if err := fx.svc.Fulfill(context.Background(), reservation.ID); err != domain.ErrInvalidState {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
	})
}

func TestReservationService_Release(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("release restores availability and is idempotent", func(t *testing.T) {
		fx := newReservationFixture(t, now,
			[]domain.Batch{{ID: "b1", MedicineType: "insulin", Quantity: 100, Status: domain.BatchStatusActive, ExpiresAt: now.Add(24 * time.Hour)}},
			nil,
		)
		reservation, err := fx.svc.Create(context.Background(), CreateReservationInput{
			BatchID: "b1", RequestID: "r1", Quantity: 30, SnapshotAvailable: 100,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		if err := fx.svc.Release(context.Background(), reservation.ID); err != nil {
			t.Fatalf("release: %v", err)
		}
		if got := fx.batches.batches["b1"].Available(); got != 100 {
			t.Fatalf("expected available 100, got %d", got)
		}

		// Second release is a no-op, not an error, and counters hold.
		if err := fx.svc.Release(context.Background(), reservation.ID); err != nil {
			t.Fatalf("repeat release: %v", err)
		}
		b := fx.batches.batches["b1"]
		if b.Reserved != 0 || b.Available() != 100 {
			t.Fatalf("expected counters unchanged, got reserved %d available %d", b.Reserved, b.Available())
		}
	})

	t.Run("unknown reservation", func(t *testing.T) {
		fx := newReservationFixture(t, now, nil, nil)
		if err := fx.svc.Release(context.Background(), "missing"); err != domain.ErrReservationNotFound {
			t.Fatalf("expected ErrReservationNotFound, got %v", err)
		}
	})
}

func TestReservationService_SweepExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	fx := newReservationFixture(t, now,
		[]domain.Batch{{ID: "b1", MedicineType: "insulin", Quantity: 100, Status: domain.BatchStatusActive, ExpiresAt: now.Add(24 * time.Hour)}},
		nil,
	)
	reservation, err := fx.svc.Create(context.Background(), CreateReservationInput{
		BatchID: "b1", RequestID: "r1", Quantity: 25, SnapshotAvailable: 100,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := fx.batches.batches["b1"].Available(); got != 75 {
		t.Fatalf("expected available 75 before sweep, got %d", got)
	}

	// Within TTL nothing expires.
	fx.clock.Advance(10 * time.Minute)
	swept, err := fx.svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 {
		t.Fatalf("expected nothing swept, got %d", swept)
	}

	// Past TTL the hold auto-expires and availability is restored.
	fx.clock.Advance(6 * time.Minute)
	swept, err = fx.svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept, got %d", swept)
	}
	if got := fx.res.reservations[reservation.ID].Status; got != domain.ReservationStatusExpired {
		t.Fatalf("expected expired, got %s", got)
	}
	if got := fx.batches.batches["b1"].Available(); got != 100 {
		t.Fatalf("expected available restored to 100, got %d", got)
	}

	last := fx.published.events[len(fx.published.events)-1]
	if last.Type != domain.EventReservationExpired {
		t.Fatalf("expected reservation.expired event, got %s", last.Type)
	}
}

func TestReservationService_ReleaseForBatches(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := newReservationFixture(t, now,
		[]domain.Batch{{ID: "b1", MedicineType: "insulin", Quantity: 100, Status: domain.BatchStatusActive, ExpiresAt: now.Add(time.Hour)}},
		nil,
	)
	reservation, err := fx.svc.Create(context.Background(), CreateReservationInput{
		BatchID: "b1", RequestID: "r1", Quantity: 40, SnapshotAvailable: 100,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The batch expires; its held reservation must be force-released even
	// though the reservation's own TTL has not elapsed.
	if err := fx.batches.UpdateStatus(context.Background(), "b1", domain.BatchStatusExpired); err != nil {
		t.Fatalf("mark expired: %v", err)
	}
	if err := fx.svc.ReleaseForBatches(context.Background(), []string{"b1"}); err != nil {
		t.Fatalf("release for batches: %v", err)
	}
	if got := fx.res.reservations[reservation.ID].Status; got != domain.ReservationStatusReleased {
		t.Fatalf("expected released, got %s", got)
	}
	if got := fx.batches.batches["b1"].Reserved; got != 0 {
		t.Fatalf("expected reserved 0, got %d", got)
	}
}

type fakeReservationRepo struct {
	reservations map[string]domain.Reservation
	batches      *fakeBatchRepo
	requests     *fakeRequestRepo
}

func newFakeReservationRepo(batches *fakeBatchRepo, requests *fakeRequestRepo) *fakeReservationRepo {
	return &fakeReservationRepo{
		reservations: make(map[string]domain.Reservation),
		batches:      batches,
		requests:     requests,
	}
}

// WithTx emulates the joined transaction: batch and request mutations made
// inside fn are rolled back together with reservation writes when fn fails.
func (f *fakeReservationRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	savedReservations := cloneMap(f.reservations)
	savedBatches := cloneMap(f.batches.batches)
	savedRequests := cloneMap(f.requests.requests)
	if err := fn(ctx); err != nil {
		f.reservations = savedReservations
		f.batches.batches = savedBatches
		f.requests.requests = savedRequests
		return err
	}
	return nil
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (f *fakeReservationRepo) CreateReservation(_ context.Context, reservation domain.Reservation) error {
	for _, existing := range f.reservations {
		if existing.BatchID == reservation.BatchID &&
			existing.RequestID == reservation.RequestID && existing.Active() {
			return domain.ErrReservationExists
		}
	}
	f.reservations[reservation.ID] = reservation
	return nil
}

func (f *fakeReservationRepo) GetReservation(_ context.Context, reservationID string) (domain.Reservation, error) {
	r, ok := f.reservations[reservationID]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return r, nil
}

func (f *fakeReservationRepo) GetReservationForUpdate(ctx context.Context, reservationID string) (domain.Reservation, error) {
	return f.GetReservation(ctx, reservationID)
}

func (f *fakeReservationRepo) UpdateReservationStatus(_ context.Context, reservationID string, status domain.ReservationStatus) error {
	r, ok := f.reservations[reservationID]
	if !ok {
		return domain.ErrReservationNotFound
	}
	r.Status = status
	f.reservations[reservationID] = r
	return nil
}

func (f *fakeReservationRepo) ListExpiredHeld(_ context.Context, now time.Time) ([]string, error) {
	var ids []string
	for id, r := range f.reservations {
		if r.Status == domain.ReservationStatusHeld && !r.ExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeReservationRepo) ListActiveByBatch(_ context.Context, batchID string) ([]string, error) {
	var ids []string
	for id, r := range f.reservations {
		if r.BatchID == batchID && r.Active() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeReservationRepo) ListActiveByRequest(_ context.Context, requestID string) ([]string, error) {
	var ids []string
	for id, r := range f.reservations {
		if r.RequestID == requestID && r.Active() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
