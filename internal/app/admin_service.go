package app

import (
	"context"
	"time"

	"github.com/cimillas/ticket-inventory/internal/clock"
	"github.com/cimillas/ticket-inventory/internal/domain"
)

type AdminRepository interface {
	CreateEvent(ctx context.Context, event domain.Event) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	EventExists(ctx context.Context, eventID string) (bool, error)
	CreateTicketType(ctx context.Context, tt domain.TicketType) (domain.TicketType, error)
	ListTicketTypesByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error)
}

// AdminService manages the catalog the inventory engine sells from.
type AdminService struct {
	repo  AdminRepository
	clock clock.Clock
}

func NewAdminService(repo AdminRepository, clk clock.Clock) *AdminService {
	return &AdminService{
		repo:  repo,
		clock: clk,
	}
}

type CreateEventInput struct {
	Name     string
	StartsAt *time.Time
}

func (s *AdminService) CreateEvent(ctx context.Context, in CreateEventInput) (domain.Event, error) {
	if in.Name == "" {
		return domain.Event{}, domain.ErrEventNameRequired
	}
	startsAt := s.clock.Now()
	if in.StartsAt != nil {
		startsAt = *in.StartsAt
	}

	return s.repo.CreateEvent(ctx, domain.Event{
		Name:     in.Name,
		StartsAt: startsAt,
	})
}

func (s *AdminService) ListEvents(ctx context.Context) ([]domain.Event, error) {
	return s.repo.ListEvents(ctx)
}

type CreateTicketTypeInput struct {
	EventID       string
	Name          string
	PriceCents    int64
	TotalCapacity int
}

func (s *AdminService) CreateTicketType(ctx context.Context, in CreateTicketTypeInput) (domain.TicketType, error) {
	if in.EventID == "" {
		return domain.TicketType{}, domain.ErrInvalidID
	}
	if in.Name == "" {
		return domain.TicketType{}, domain.ErrTicketTypeNameMissing
	}
	if in.TotalCapacity <= 0 {
		return domain.TicketType{}, domain.ErrInvalidCapacity
	}
	if in.PriceCents < 0 {
		return domain.TicketType{}, domain.ErrInvalidPrice
	}

	return s.repo.CreateTicketType(ctx, domain.TicketType{
		EventID:       in.EventID,
		Name:          in.Name,
		PriceCents:    in.PriceCents,
		TotalCapacity: in.TotalCapacity,
	})
}

func (s *AdminService) ListTicketTypes(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidID
	}
	exists, err := s.repo.EventExists(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrEventNotFound
	}
	return s.repo.ListTicketTypesByEvent(ctx, eventID)
}
