package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/jackc/pgx/v5"
)

const reservationColumns = `id, user_id, event_id, ticket_type_id, quantity, status, expires_at, created_at`

func (s *Store) CreateReservation(ctx context.Context, r domain.Reservation) error {
	const stmt = `
INSERT INTO reservations (id, user_id, event_id, ticket_type_id, quantity, status, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.q(ctx).Exec(ctx, stmt,
		r.ID,
		r.UserID,
		r.EventID,
		r.TicketTypeID,
		r.Quantity,
		r.Status,
		r.ExpiresAt,
		r.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrTicketTypeNotFound
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (s *Store) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	const query = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	return s.getReservation(ctx, query, id)
}

// GetReservationForUpdate locks the reservation row for the surrounding
// transaction.
func (s *Store) GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error) {
	const query = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`
	return s.getReservation(ctx, query, id)
}

// UpdateReservationStatus moves a reservation from one status to another.
// It fails with domain.ErrReservationNotPending when the row is no longer
// in the expected status.
func (s *Store) UpdateReservationStatus(ctx context.Context, id string, from, to domain.ReservationStatus) error {
	const stmt = `UPDATE reservations SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`

	tag, err := s.q(ctx).Exec(ctx, stmt, id, from, to)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("update reservation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotPending
	}
	return nil
}

// ListExpiredReservations returns pending reservations whose expiry is
// before now, oldest first.
func (s *Store) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	const query = `
SELECT ` + reservationColumns + `
FROM reservations
WHERE status = 'pending' AND expires_at < $1
ORDER BY expires_at
LIMIT $2`

	rows, err := s.q(ctx).Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired reservations rows: %w", err)
	}
	return out, nil
}

func (s *Store) getReservation(ctx context.Context, query, id string) (domain.Reservation, error) {
	r, err := scanReservation(s.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Reservation{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var r domain.Reservation
	err := row.Scan(&r.ID, &r.UserID, &r.EventID, &r.TicketTypeID, &r.Quantity, &r.Status, &r.ExpiresAt, &r.CreatedAt)
	return r, err
}
