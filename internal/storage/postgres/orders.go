package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, reservation_id, user_id, total_cents, status, idempotency_key, payment_id, paid_at, failure_reason, created_at`

// CreateOrder inserts a pending order. A reused idempotency key yields
// domain.ErrDuplicateIdempotencyKey; a second order for the same
// reservation yields domain.ErrOrderAlreadyExists.
func (s *Store) CreateOrder(ctx context.Context, o domain.Order) error {
	const stmt = `
INSERT INTO orders (id, reservation_id, user_id, total_cents, status, idempotency_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.q(ctx).Exec(ctx, stmt,
		o.ID,
		o.ReservationID,
		o.UserID,
		o.TotalCents,
		o.Status,
		o.IdempotencyKey,
		o.CreatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolationOf(err, "orders_idempotency_key_key"):
			return domain.ErrDuplicateIdempotencyKey
		case isUniqueViolationOf(err, "orders_reservation_id_key"):
			return domain.ErrOrderAlreadyExists
		case isInvalidUUID(err):
			return domain.ErrInvalidID
		case isForeignKeyViolation(err):
			return domain.ErrReservationNotFound
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return s.getOrder(ctx, query, id)
}

func (s *Store) GetOrderForUpdate(ctx context.Context, id string) (domain.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return s.getOrder(ctx, query, id)
}

// FindOrderByIdempotencyKey returns nil when no order carries key.
func (s *Store) FindOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`

	o, err := scanOrder(s.q(ctx).QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find order by idempotency key: %w", err)
	}
	return &o, nil
}

func (s *Store) CompleteOrder(ctx context.Context, id, paymentID string, paidAt time.Time) error {
	const stmt = `
UPDATE orders
SET status = 'completed', payment_id = $2, paid_at = $3, updated_at = NOW()
WHERE id = $1 AND status = 'pending'`

	tag, err := s.q(ctx).Exec(ctx, stmt, id, paymentID, paidAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("complete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotPending
	}
	return nil
}

func (s *Store) FailOrder(ctx context.Context, id, reason string) error {
	const stmt = `
UPDATE orders
SET status = 'failed', failure_reason = $2, updated_at = NOW()
WHERE id = $1 AND status = 'pending'`

	tag, err := s.q(ctx).Exec(ctx, stmt, id, reason)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("fail order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotPending
	}
	return nil
}

func (s *Store) getOrder(ctx context.Context, query, id string) (domain.Order, error) {
	o, err := scanOrder(s.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o             domain.Order
		paymentID     *string
		failureReason *string
	)
	if err := row.Scan(&o.ID, &o.ReservationID, &o.UserID, &o.TotalCents, &o.Status,
		&o.IdempotencyKey, &paymentID, &o.PaidAt, &failureReason, &o.CreatedAt); err != nil {
		return domain.Order{}, err
	}
	if paymentID != nil {
		o.PaymentID = *paymentID
	}
	if failureReason != nil {
		o.FailureReason = *failureReason
	}
	return o, nil
}
