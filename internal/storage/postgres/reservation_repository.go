package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AdarshRaj19/Medshare/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

func (r *ReservationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const reservationColumns = `id, batch_id, request_id, quantity, status, expires_at, created_at`

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var res domain.Reservation
	var status string
	err := row.Scan(
		&res.ID,
		&res.BatchID,
		&res.RequestID,
		&res.Quantity,
		&status,
		&res.ExpiresAt,
		&res.CreatedAt,
	)
	if err != nil {
		return domain.Reservation{}, err
	}
	res.Status = domain.ReservationStatus(status)
	return res, nil
}

func (r *ReservationRepository) CreateReservation(ctx context.Context, reservation domain.Reservation) error {
	const stmt = `
INSERT INTO reservations (id, batch_id, request_id, quantity, status, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.exec(ctx, stmt,
		reservation.ID,
		reservation.BatchID,
		reservation.RequestID,
		reservation.Quantity,
		reservation.Status,
		reservation.ExpiresAt,
		reservation.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrReservationExists
		}
		if constraint, ok := foreignKeyConstraint(err); ok {
			if strings.Contains(constraint, "batch") {
				return domain.ErrBatchNotFound
			}
			return domain.ErrRequestNotFound
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetReservation(ctx context.Context, reservationID string) (domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	return r.getReservation(ctx, query, reservationID)
}

func (r *ReservationRepository) GetReservationForUpdate(ctx context.Context, reservationID string) (domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`
	return r.getReservation(ctx, query, reservationID)
}

func (r *ReservationRepository) getReservation(ctx context.Context, query, reservationID string) (domain.Reservation, error) {
	res, err := scanReservation(r.queryRow(ctx, query, reservationID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Reservation{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

func (r *ReservationRepository) UpdateReservationStatus(ctx context.Context, reservationID string, status domain.ReservationStatus) error {
	const stmt = `UPDATE reservations SET status = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, reservationID, status)
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

func (r *ReservationRepository) ListExpiredHeld(ctx context.Context, now time.Time) ([]string, error) {
	const query = `
SELECT id
FROM reservations
WHERE status = 'held' AND expires_at <= $1
ORDER BY expires_at`

	return r.listIDs(ctx, query, now)
}

func (r *ReservationRepository) ListActiveByBatch(ctx context.Context, batchID string) ([]string, error) {
	const query = `
SELECT id
FROM reservations
WHERE batch_id = $1 AND status IN ('held', 'confirmed')
ORDER BY created_at`

	return r.listIDs(ctx, query, batchID)
}

func (r *ReservationRepository) ListActiveByRequest(ctx context.Context, requestID string) ([]string, error) {
	const query = `
SELECT id
FROM reservations
WHERE request_id = $1 AND status IN ('held', 'confirmed')
ORDER BY created_at`

	return r.listIDs(ctx, query, requestID)
}

func (r *ReservationRepository) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reservation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, err
	}
	return ids, nil
}

func (r *ReservationRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ReservationRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *ReservationRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
