package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/AdarshRaj19/Medshare/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MatchRepository serves the matching engine's lock-free snapshot reads.
type MatchRepository struct {
	pool *pgxpool.Pool
}

func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

func (r *MatchRepository) ListAvailableBatches(ctx context.Context, now time.Time) ([]domain.Batch, error) {
	query := `
SELECT ` + batchColumns + `
FROM batches
WHERE status = 'active'
  AND expires_at > $1
  AND archived_at IS NULL
  AND quantity - reserved - distributed > 0
ORDER BY expires_at, id`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list available batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ListOpenRequests returns open and partially matched requests with a live
// deadline, each carrying the quantity already held by active reservations so
// the policy nets it out of the remaining need.
func (r *MatchRepository) ListOpenRequests(ctx context.Context, now time.Time) ([]domain.Request, error) {
	query := `
SELECT ` + prefixedRequestColumns("r") + `, COALESCE(held.pending, 0)
FROM requests r
LEFT JOIN (
	SELECT request_id, SUM(quantity) AS pending
	FROM reservations
	WHERE status IN ('held', 'confirmed')
	GROUP BY request_id
) held ON held.request_id = r.id
WHERE r.status IN ('open', 'partially_matched') AND r.deadline > $1
ORDER BY r.created_at, r.id`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list open requests: %w", err)
	}
	defer rows.Close()

	var requests []domain.Request
	for rows.Next() {
		var req domain.Request
		var priority, status string
		err := rows.Scan(
			&req.ID,
			&req.NGOID,
			&req.MedicineType,
			&req.Quantity,
			&req.Fulfilled,
			&priority,
			&status,
			&req.Deadline,
			&req.CreatedAt,
			&req.Pending,
		)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		req.Priority = domain.Priority(priority)
		req.Status = domain.RequestStatus(status)
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (r *MatchRepository) GetBatch(ctx context.Context, batchID string) (domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`

	b, err := scanBatch(r.pool.QueryRow(ctx, query, batchID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Batch{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Batch{}, domain.ErrBatchNotFound
		}
		return domain.Batch{}, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

func prefixedRequestColumns(alias string) string {
	return alias + ".id, " + alias + ".ngo_id, " + alias + ".medicine_type, " +
		alias + ".quantity, " + alias + ".fulfilled, " + alias + ".priority, " +
		alias + ".status, " + alias + ".deadline, " + alias + ".created_at"
}
