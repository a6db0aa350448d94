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

type RequestRepository struct {
	pool *pgxpool.Pool
}

func NewRequestRepository(pool *pgxpool.Pool) *RequestRepository {
	return &RequestRepository{pool: pool}
}

func (r *RequestRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const requestColumns = `id, ngo_id, medicine_type, quantity, fulfilled, priority, status, deadline, created_at`

func scanRequest(row pgx.Row) (domain.Request, error) {
	var req domain.Request
	var priority, status string
	err := row.Scan(
		&req.ID,
		&req.NGOID,
		&req.MedicineType,
		&req.Quantity,
		&req.Fulfilled,
		&priority,
		&status,
		&req.Deadline,
		&req.CreatedAt,
	)
	if err != nil {
		return domain.Request{}, err
	}
	req.Priority = domain.Priority(priority)
	req.Status = domain.RequestStatus(status)
	return req, nil
}

func (r *RequestRepository) CreateRequest(ctx context.Context, request domain.Request) error {
	const stmt = `
INSERT INTO requests (id, ngo_id, medicine_type, quantity, fulfilled, priority, status, deadline, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.exec(ctx, stmt,
		request.ID,
		request.NGOID,
		request.MedicineType,
		request.Quantity,
		request.Fulfilled,
		request.Priority,
		request.Status,
		request.Deadline,
		request.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isCheckViolation(err) {
			return domain.ErrInvalidQuantity
		}
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

func (r *RequestRepository) GetRequest(ctx context.Context, requestID string) (domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	return r.getRequest(ctx, query, requestID)
}

func (r *RequestRepository) GetRequestForUpdate(ctx context.Context, requestID string) (domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1 FOR UPDATE`
	return r.getRequest(ctx, query, requestID)
}

func (r *RequestRepository) getRequest(ctx context.Context, query, requestID string) (domain.Request, error) {
	req, err := scanRequest(r.queryRow(ctx, query, requestID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Request{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Request{}, domain.ErrRequestNotFound
		}
		return domain.Request{}, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}

func (r *RequestRepository) UpdateFulfillment(ctx context.Context, requestID string, fulfilled int, status domain.RequestStatus) error {
	const stmt = `UPDATE requests SET fulfilled = $2, status = $3 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, requestID, fulfilled, status)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: request %s fulfilled=%d", domain.ErrInvariantViolation, requestID, fulfilled)
		}
		return fmt.Errorf("update request fulfillment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

func (r *RequestRepository) UpdateStatus(ctx context.Context, requestID string, status domain.RequestStatus) error {
	const stmt = `UPDATE requests SET status = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, requestID, status)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

func (r *RequestRepository) ListExpiredOpen(ctx context.Context, now time.Time) ([]string, error) {
	const query = `
SELECT id
FROM requests
WHERE status IN ('open', 'partially_matched') AND deadline <= $1
ORDER BY deadline`

	rows, err := r.query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list expired requests: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired request: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *RequestRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *RequestRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *RequestRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
