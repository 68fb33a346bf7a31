package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cimillas/ticket-inventory/internal/outbox"
)

const outboxMaxRetries = 5

// Enqueue writes an outbox row using the transaction carried by ctx, if any.
func (s *Store) Enqueue(ctx context.Context, e outbox.Event) error {
	const stmt = `
INSERT INTO outbox (aggregate_type, aggregate_id, type, payload)
VALUES ($1, $2, $3, $4)`

	if _, err := s.q(ctx).Exec(ctx, stmt, e.AggregateType, e.AggregateID, e.Type, string(e.Payload)); err != nil {
		return fmt.Errorf("enqueue %s: %w", e.Type, err)
	}
	return nil
}

// LockBatch leases up to batchSize pending rows (or rows whose lease ran
// out) to relayID.
func (s *Store) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	const stmt = `
UPDATE outbox
SET status = 'in_progress', relay_id = $1, lease_until = NOW() + $3::interval
WHERE id IN (
	SELECT id FROM outbox
	WHERE status = 'pending' OR (status = 'in_progress' AND lease_until < NOW())
	ORDER BY id
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
RETURNING id, aggregate_type, aggregate_id, type, payload, created_at, status, retry_count, last_error`

	rows, err := s.q(ctx).Query(ctx, stmt, relayID, batchSize, lease)
	if err != nil {
		return nil, fmt.Errorf("lock outbox batch: %w", err)
	}
	defer rows.Close()

	var events []outbox.Event
	for rows.Next() {
		var e outbox.Event
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Type, &e.Payload,
			&e.CreatedAt, &e.Status, &e.RetryCount, &e.LastError); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock outbox batch rows: %w", err)
	}
	return events, nil
}

func (s *Store) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	const stmt = `UPDATE outbox SET status = 'sent', lease_until = NULL WHERE id = ANY($1)`

	if _, err := s.q(ctx).Exec(ctx, stmt, ids); err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

// MarkFailed puts the row back to pending until it has been retried
// outboxMaxRetries times, after which it stays failed.
func (s *Store) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	const stmt = `
UPDATE outbox
SET retry_count = retry_count + 1,
	last_error = $2,
	lease_until = NULL,
	status = CASE WHEN retry_count + 1 >= $3 THEN 'failed' ELSE 'pending' END
WHERE id = $1`

	if _, err := s.q(ctx).Exec(ctx, stmt, id, errMsg, outboxMaxRetries); err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}
