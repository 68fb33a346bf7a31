package postgres

import (
	"context"
	"fmt"

	"github.com/cimillas/ticket-inventory/internal/domain"
)

// ClaimInventory adds quantity to the reserved count only if the counter
// is still at observedVersion and the capacity invariant holds afterwards.
// A stale version yields domain.ErrVersionConflict.
func (s *Store) ClaimInventory(ctx context.Context, ticketTypeID string, quantity int, observedVersion int64) error {
	const stmt = `
UPDATE ticket_types
SET reserved_count = reserved_count + $2, version = version + 1, updated_at = NOW()
WHERE id = $1 AND version = $3 AND reserved_count + sold_count + $2 <= total_capacity`

	tag, err := s.q(ctx).Exec(ctx, stmt, ticketTypeID, quantity, observedVersion)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("claim inventory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// ReleaseInventory returns quantity reserved units to the pool.
func (s *Store) ReleaseInventory(ctx context.Context, ticketTypeID string, quantity int) error {
	const stmt = `
UPDATE ticket_types
SET reserved_count = reserved_count - $2, version = version + 1, updated_at = NOW()
WHERE id = $1 AND reserved_count >= $2`

	tag, err := s.q(ctx).Exec(ctx, stmt, ticketTypeID, quantity)
	if err != nil {
		return fmt.Errorf("release inventory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("release inventory %s: reserved count below %d", ticketTypeID, quantity)
	}
	return nil
}

// SellInventory moves quantity units from reserved to sold.
func (s *Store) SellInventory(ctx context.Context, ticketTypeID string, quantity int) error {
	const stmt = `
UPDATE ticket_types
SET reserved_count = reserved_count - $2, sold_count = sold_count + $2, version = version + 1, updated_at = NOW()
WHERE id = $1 AND reserved_count >= $2`

	tag, err := s.q(ctx).Exec(ctx, stmt, ticketTypeID, quantity)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("sell inventory %s: capacity check: %w", ticketTypeID, err)
		}
		return fmt.Errorf("sell inventory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sell inventory %s: reserved count below %d", ticketTypeID, quantity)
	}
	return nil
}
