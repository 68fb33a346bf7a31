package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// Order prices a reservation. Completed and failed are reached only through
// payment confirmation or failure.
type Order struct {
	ID             string
	ReservationID  string
	UserID         string
	TotalCents     int64
	Status         OrderStatus
	IdempotencyKey string
	PaymentID      string
	PaidAt         *time.Time
	FailureReason  string
	CreatedAt      time.Time
}
