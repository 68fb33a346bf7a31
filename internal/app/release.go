package app

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/internal/outbox"
)

// EventQueue records domain events in the caller's transaction.
type EventQueue interface {
	Enqueue(ctx context.Context, event outbox.Event) error
}

// ReleaseRepository is what every path that hands tickets back to the pool
// needs.
type ReleaseRepository interface {
	EventQueue
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error)
	UpdateReservationStatus(ctx context.Context, id string, from, to domain.ReservationStatus) error
	ListTicketsByReservation(ctx context.Context, reservationID string) ([]domain.Ticket, error)
	ReleaseTickets(ctx context.Context, ticketIDs []string) error
	ReleaseInventory(ctx context.Context, ticketTypeID string, quantity int) error
}

type reservationEvent struct {
	ReservationID string    `json:"reservation_id"`
	UserID        string    `json:"user_id"`
	TicketTypeID  string    `json:"ticket_type_id"`
	Quantity      int       `json:"quantity"`
	Status        string    `json:"status"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// releaseReservation moves a pending reservation to status and returns its
// units to the pool. Counters are decremented per unit's own ticket type.
// It must run inside a transaction that already locked the reservation row.
func releaseReservation(ctx context.Context, repo ReleaseRepository, res domain.Reservation, status domain.ReservationStatus) (int, error) {
	if err := repo.UpdateReservationStatus(ctx, res.ID, domain.ReservationStatusPending, status); err != nil {
		return 0, err
	}

	tickets, err := repo.ListTicketsByReservation(ctx, res.ID)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ID)
	}
	if err := repo.ReleaseTickets(ctx, ids); err != nil {
		return 0, err
	}

	counts := domain.CountByTicketType(tickets)
	for _, typeID := range slices.Sorted(maps.Keys(counts)) {
		if err := repo.ReleaseInventory(ctx, typeID, counts[typeID]); err != nil {
			return 0, err
		}
	}

	eventType := outbox.TypeReservationExpired
	if status == domain.ReservationStatusCancelled {
		eventType = outbox.TypeReservationCancelled
	}
	res.Status = status
	if err := enqueueReservation(ctx, repo, eventType, res); err != nil {
		return 0, err
	}
	return len(tickets), nil
}

func enqueueReservation(ctx context.Context, q EventQueue, eventType string, res domain.Reservation) error {
	ev, err := outbox.NewEvent("reservation", res.ID, eventType, reservationEvent{
		ReservationID: res.ID,
		UserID:        res.UserID,
		TicketTypeID:  res.TicketTypeID,
		Quantity:      res.Quantity,
		Status:        string(res.Status),
		ExpiresAt:     res.ExpiresAt.UTC(),
	})
	if err != nil {
		return err
	}
	return q.Enqueue(ctx, ev)
}
