package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusExpired   ReservationStatus = "expired"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// Reservation is a time-boxed hold over a quantity of tickets for one user.
type Reservation struct {
	ID           string
	UserID       string
	EventID      string
	TicketTypeID string
	Quantity     int
	Status       ReservationStatus
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Lapsed reports whether the hold has passed its expiry at now.
func (r Reservation) Lapsed(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
