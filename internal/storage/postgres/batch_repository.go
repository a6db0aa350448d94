package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/AdarshRaj19/Medshare/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BatchRepository struct {
	pool *pgxpool.Pool
}

func NewBatchRepository(pool *pgxpool.Pool) *BatchRepository {
	return &BatchRepository{pool: pool}
}

func (r *BatchRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const batchColumns = `id, medicine_type, donor_id, location, quantity, reserved, distributed, status, expires_at, created_at, archived_at`

func scanBatch(row pgx.Row) (domain.Batch, error) {
	var b domain.Batch
	var status string
	err := row.Scan(
		&b.ID,
		&b.MedicineType,
		&b.DonorID,
		&b.Location,
		&b.Quantity,
		&b.Reserved,
		&b.Distributed,
		&status,
		&b.ExpiresAt,
		&b.CreatedAt,
		&b.ArchivedAt,
	)
	if err != nil {
		return domain.Batch{}, err
	}
	b.Status = domain.BatchStatus(status)
	return b, nil
}

func (r *BatchRepository) CreateBatch(ctx context.Context, batch domain.Batch) error {
	const stmt = `
INSERT INTO batches (id, medicine_type, donor_id, location, quantity, reserved, distributed, status, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.exec(ctx, stmt,
		batch.ID,
		batch.MedicineType,
		batch.DonorID,
		batch.Location,
		batch.Quantity,
		batch.Reserved,
		batch.Distributed,
		batch.Status,
		batch.ExpiresAt,
		batch.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isCheckViolation(err) {
			return domain.ErrInvalidQuantity
		}
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

func (r *BatchRepository) GetBatch(ctx context.Context, batchID string) (domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`
	return r.getBatch(ctx, query, batchID)
}

func (r *BatchRepository) GetBatchForUpdate(ctx context.Context, batchID string) (domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1 FOR UPDATE`
	return r.getBatch(ctx, query, batchID)
}

func (r *BatchRepository) getBatch(ctx context.Context, query, batchID string) (domain.Batch, error) {
	b, err := scanBatch(r.queryRow(ctx, query, batchID))
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

func (r *BatchRepository) UpdateCounters(ctx context.Context, batchID string, reserved, distributed int, status domain.BatchStatus) error {
	const stmt = `UPDATE batches SET reserved = $2, distributed = $3, status = $4 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, batchID, reserved, distributed, status)
	if err != nil {
		if isCheckViolation(err) {
			// The CHECK constraints restate reserved + distributed <= quantity;
			// tripping one means a counter move surviving review was wrong.
			return fmt.Errorf("%w: batch %s counters reserved=%d distributed=%d",
				domain.ErrInvariantViolation, batchID, reserved, distributed)
		}
		return fmt.Errorf("update batch counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBatchNotFound
	}
	return nil
}

func (r *BatchRepository) UpdateStatus(ctx context.Context, batchID string, status domain.BatchStatus) error {
	const stmt = `UPDATE batches SET status = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, batchID, status)
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBatchNotFound
	}
	return nil
}

func (r *BatchRepository) ListExpiredActive(ctx context.Context, now time.Time) ([]string, error) {
	const query = `
SELECT id
FROM batches
WHERE status = 'active' AND expires_at <= $1 AND archived_at IS NULL
ORDER BY expires_at`

	rows, err := r.query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list expired batches: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired batch: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ArchiveTerminal stamps terminal batches whose lifecycle ended before the
// cutoff: expired batches by expiry date, depleted ones by creation date
// (there is no terminal timestamp to anchor on).
func (r *BatchRepository) ArchiveTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	const stmt = `
UPDATE batches
SET archived_at = NOW()
WHERE archived_at IS NULL
  AND ((status = 'expired' AND expires_at <= $1) OR (status = 'depleted' AND created_at <= $1))`

	tag, err := r.exec(ctx, stmt, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive batches: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *BatchRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *BatchRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *BatchRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
