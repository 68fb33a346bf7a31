package domain

import "time"

type TicketStatus string

const (
	TicketStatusAvailable TicketStatus = "available"
	TicketStatusReserved  TicketStatus = "reserved"
	TicketStatusSold      TicketStatus = "sold"
	TicketStatusReleased  TicketStatus = "released"
)

// Claimable reports whether a unit in this status can be bound to a new
// reservation. Released units go back into the pool.
func (s TicketStatus) Claimable() bool {
	return s == TicketStatusAvailable || s == TicketStatusReleased
}

// Ticket is a single sellable unit of a ticket type.
type Ticket struct {
	ID            string
	TicketTypeID  string
	ReservationID string
	Status        TicketStatus
	// PriceCents is frozen when the unit is bound to a reservation.
	PriceCents    int64
	ReservedAt    *time.Time
	ReservedUntil *time.Time
	Code          string
}

// TicketHold describes the binding applied to units claimed by a reservation.
type TicketHold struct {
	ReservationID string
	PriceCents    int64
	ReservedAt    time.Time
	ReservedUntil time.Time
}

// CountByTicketType groups tickets by their own ticket type id.
func CountByTicketType(tickets []Ticket) map[string]int {
	counts := make(map[string]int)
	for _, t := range tickets {
		counts[t.TicketTypeID]++
	}
	return counts
}
