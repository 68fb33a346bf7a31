package postgres

import (
	"context"
	"fmt"

	"github.com/cimillas/ticket-inventory/internal/domain"
)

func (s *Store) PaymentEventExists(ctx context.Context, eventID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM payment_events WHERE event_id = $1)`

	var exists bool
	if err := s.q(ctx).QueryRow(ctx, query, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("payment event exists: %w", err)
	}
	return exists, nil
}

// CreatePaymentEvent records a gateway notification. A repeated external
// event id yields domain.ErrDuplicatePaymentEvent.
func (s *Store) CreatePaymentEvent(ctx context.Context, e domain.PaymentEvent) error {
	const stmt = `
INSERT INTO payment_events (event_id, order_id, payment_id, status, payload, processed_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	_, err := s.q(ctx).Exec(ctx, stmt, e.EventID, e.OrderID, e.PaymentID, e.Status, string(payload), e.ProcessedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicatePaymentEvent
		}
		if isUntranslatableCharacter(err) {
			return fmt.Errorf("%w: payload not storable", domain.ErrInvalidWebhook)
		}
		return fmt.Errorf("create payment event: %w", err)
	}
	return nil
}
