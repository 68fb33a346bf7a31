package domain

import (
	"encoding/json"
	"time"
)

// PaymentEvent is the append-only record of a gateway notification. Its
// external event id is the deduplication key.
type PaymentEvent struct {
	EventID     string
	OrderID     string
	PaymentID   string
	Status      string
	Payload     json.RawMessage
	ProcessedAt time.Time
}
