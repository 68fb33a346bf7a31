package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateEvent(ctx context.Context, event domain.Event) (domain.Event, error) {
	const stmt = `INSERT INTO events (name, starts_at) VALUES ($1, $2) RETURNING id, name, starts_at`

	var e domain.Event
	if err := s.q(ctx).QueryRow(ctx, stmt, event.Name, event.StartsAt).Scan(&e.ID, &e.Name, &e.StartsAt); err != nil {
		return domain.Event{}, fmt.Errorf("create event: %w", err)
	}
	return e, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]domain.Event, error) {
	const query = `SELECT id, name, starts_at FROM events ORDER BY starts_at, created_at`

	rows, err := s.q(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.StartsAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events rows: %w", err)
	}
	return events, nil
}

func (s *Store) EventExists(ctx context.Context, eventID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`

	var exists bool
	if err := s.q(ctx).QueryRow(ctx, query, eventID).Scan(&exists); err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("event exists: %w", err)
	}
	return exists, nil
}

func (s *Store) CreateTicketType(ctx context.Context, tt domain.TicketType) (domain.TicketType, error) {
	const stmt = `
INSERT INTO ticket_types (event_id, name, price_cents, total_capacity)
VALUES ($1, $2, $3, $4)
RETURNING id, event_id, name, price_cents, total_capacity, reserved_count, sold_count, version`

	created, err := scanTicketType(s.q(ctx).QueryRow(ctx, stmt, tt.EventID, tt.Name, tt.PriceCents, tt.TotalCapacity))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.TicketType{}, domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.TicketType{}, domain.ErrEventNotFound
		}
		return domain.TicketType{}, fmt.Errorf("create ticket type: %w", err)
	}
	return created, nil
}

func (s *Store) ListTicketTypesByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	const query = `
SELECT id, event_id, name, price_cents, total_capacity, reserved_count, sold_count, version
FROM ticket_types
WHERE event_id = $1
ORDER BY created_at, name`

	rows, err := s.q(ctx).Query(ctx, query, eventID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list ticket types: %w", err)
	}
	defer rows.Close()

	types := []domain.TicketType{}
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket type: %w", err)
		}
		types = append(types, tt)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list ticket types rows: %w", err)
	}
	return types, nil
}

func (s *Store) GetTicketType(ctx context.Context, id string) (domain.TicketType, error) {
	const query = `
SELECT id, event_id, name, price_cents, total_capacity, reserved_count, sold_count, version
FROM ticket_types
WHERE id = $1`

	tt, err := scanTicketType(s.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.TicketType{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TicketType{}, domain.ErrTicketTypeNotFound
		}
		return domain.TicketType{}, fmt.Errorf("get ticket type: %w", err)
	}
	return tt, nil
}

func scanTicketType(row pgx.Row) (domain.TicketType, error) {
	var tt domain.TicketType
	err := row.Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.PriceCents,
		&tt.TotalCapacity, &tt.ReservedCount, &tt.SoldCount, &tt.Version)
	return tt, err
}
