package outbox

import (
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Event types published by the inventory engine.
const (
	TypeReservationCreated   = "reservation.created"
	TypeReservationExpired   = "reservation.expired"
	TypeReservationCancelled = "reservation.cancelled"
	TypeOrderCreated         = "order.created"
	TypeOrderCompleted       = "order.completed"
	TypeOrderFailed          = "order.failed"
)

// Event is a row of the outbox table, written in the same transaction as
// the state change it describes.
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	CreatedAt     time.Time
	Status        Status
	RetryCount    int
	LastError     *string
}

// NewEvent marshals payload into an Event ready to be enqueued.
func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       b,
		Status:        StatusPending,
	}, nil
}
