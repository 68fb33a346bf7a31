package postgres

import (
	"context"
	"fmt"

	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/jackc/pgx/v5"
)

const ticketColumns = `id, ticket_type_id, reservation_id, status, price_cents, reserved_at, reserved_until, code`

// LockClaimableTickets locks up to limit available or released units of a
// ticket type, skipping rows held by concurrent claims.
func (s *Store) LockClaimableTickets(ctx context.Context, ticketTypeID string, limit int) ([]domain.Ticket, error) {
	const query = `
SELECT ` + ticketColumns + `
FROM tickets
WHERE ticket_type_id = $1 AND status IN ('available', 'released')
ORDER BY created_at, id
LIMIT $2
FOR UPDATE SKIP LOCKED`

	return s.queryTickets(ctx, "lock claimable tickets", query, ticketTypeID, limit)
}

// CountTickets returns how many units of a ticket type have been materialized.
func (s *Store) CountTickets(ctx context.Context, ticketTypeID string) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE ticket_type_id = $1`

	var n int
	if err := s.q(ctx).QueryRow(ctx, query, ticketTypeID).Scan(&n); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return n, nil
}

// BindTickets marks the given units reserved under hold.
func (s *Store) BindTickets(ctx context.Context, ticketIDs []string, hold domain.TicketHold) error {
	if len(ticketIDs) == 0 {
		return nil
	}
	const stmt = `
UPDATE tickets
SET status = 'reserved', reservation_id = $2, price_cents = $3, reserved_at = $4, reserved_until = $5, updated_at = NOW()
WHERE id = ANY($1::uuid[])`

	tag, err := s.q(ctx).Exec(ctx, stmt, ticketIDs, hold.ReservationID, hold.PriceCents, hold.ReservedAt, hold.ReservedUntil)
	if err != nil {
		return fmt.Errorf("bind tickets: %w", err)
	}
	if int(tag.RowsAffected()) != len(ticketIDs) {
		return fmt.Errorf("bind tickets: bound %d of %d", tag.RowsAffected(), len(ticketIDs))
	}
	return nil
}

// CreateReservedTickets materializes n new units already bound to hold.
func (s *Store) CreateReservedTickets(ctx context.Context, ticketTypeID string, n int, hold domain.TicketHold) ([]domain.Ticket, error) {
	if n <= 0 {
		return nil, nil
	}
	const stmt = `
INSERT INTO tickets (ticket_type_id, reservation_id, status, price_cents, reserved_at, reserved_until)
SELECT $1::uuid, $2::uuid, 'reserved', $3::bigint, $4::timestamptz, $5::timestamptz
FROM generate_series(1, $6::int)
RETURNING ` + ticketColumns

	return s.queryTickets(ctx, "create reserved tickets", stmt,
		ticketTypeID, hold.ReservationID, hold.PriceCents, hold.ReservedAt, hold.ReservedUntil, n)
}

// ListTicketsByReservation locks and returns the units bound to a reservation.
func (s *Store) ListTicketsByReservation(ctx context.Context, reservationID string) ([]domain.Ticket, error) {
	const query = `
SELECT ` + ticketColumns + `
FROM tickets
WHERE reservation_id = $1
ORDER BY id
FOR UPDATE`

	return s.queryTickets(ctx, "list reservation tickets", query, reservationID)
}

// ReleaseTickets returns units to the pool, clearing their binding.
func (s *Store) ReleaseTickets(ctx context.Context, ticketIDs []string) error {
	if len(ticketIDs) == 0 {
		return nil
	}
	const stmt = `
UPDATE tickets
SET status = 'released', reservation_id = NULL, reserved_at = NULL, reserved_until = NULL, updated_at = NOW()
WHERE id = ANY($1::uuid[]) AND status = 'reserved'`

	if _, err := s.q(ctx).Exec(ctx, stmt, ticketIDs); err != nil {
		return fmt.Errorf("release tickets: %w", err)
	}
	return nil
}

// SellTicket marks a reserved unit sold under code. A code already used by
// another unit yields domain.ErrTicketCodeTaken and leaves the surrounding
// transaction usable.
func (s *Store) SellTicket(ctx context.Context, ticketID, code string) error {
	const stmt = `
UPDATE tickets
SET status = 'sold', code = $2, updated_at = NOW()
WHERE id = $1 AND status = 'reserved'`

	err := withSavepoint(ctx, func(q querier) error {
		tag, err := q.Exec(ctx, stmt, ticketID, code)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("ticket %s is not reserved", ticketID)
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrTicketCodeTaken
		}
		return fmt.Errorf("sell ticket: %w", err)
	}
	return nil
}

func (s *Store) queryTickets(ctx context.Context, op, sql string, args ...any) ([]domain.Ticket, error) {
	rows, err := s.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return tickets, nil
}

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var (
		t             domain.Ticket
		reservationID *string
		price         *int64
		code          *string
	)
	if err := row.Scan(&t.ID, &t.TicketTypeID, &reservationID, &t.Status, &price,
		&t.ReservedAt, &t.ReservedUntil, &code); err != nil {
		return domain.Ticket{}, err
	}
	if reservationID != nil {
		t.ReservationID = *reservationID
	}
	if price != nil {
		t.PriceCents = *price
	}
	if code != nil {
		t.Code = *code
	}
	return t, nil
}
