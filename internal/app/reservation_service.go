package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cimillas/ticket-inventory/internal/clock"
	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/internal/metrics"
	"github.com/cimillas/ticket-inventory/internal/outbox"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type ReservationRepository interface {
	ReleaseRepository
	GetTicketType(ctx context.Context, id string) (domain.TicketType, error)
	EventExists(ctx context.Context, eventID string) (bool, error)
	ClaimInventory(ctx context.Context, ticketTypeID string, quantity int, observedVersion int64) error
	CreateReservation(ctx context.Context, r domain.Reservation) error
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
	LockClaimableTickets(ctx context.Context, ticketTypeID string, limit int) ([]domain.Ticket, error)
	CountTickets(ctx context.Context, ticketTypeID string) (int, error)
	CreateReservedTickets(ctx context.Context, ticketTypeID string, n int, hold domain.TicketHold) ([]domain.Ticket, error)
	BindTickets(ctx context.Context, ticketIDs []string, hold domain.TicketHold) error
}

type ReservationService struct {
	repo        ReservationRepository
	clock       clock.Clock
	log         *zap.Logger
	metrics     *metrics.Metrics
	ttl         time.Duration
	maxQuantity int
	maxAttempts int
	backoffBase time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

const (
	defaultReservationTTL = 10 * time.Minute
	defaultMaxQuantity    = 10
	defaultClaimAttempts  = 3
	defaultBackoffBase    = 100 * time.Millisecond
)

func NewReservationService(repo ReservationRepository, clk clock.Clock, log *zap.Logger, m *metrics.Metrics, opts ...ReservationServiceOption) *ReservationService {
	svc := &ReservationService{
		repo:        repo,
		clock:       clk,
		log:         log,
		metrics:     m,
		ttl:         defaultReservationTTL,
		maxQuantity: defaultMaxQuantity,
		maxAttempts: defaultClaimAttempts,
		backoffBase: defaultBackoffBase,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ReservationServiceOption func(*ReservationService)

// WithReservationTTL overrides how long a new reservation holds its tickets.
func WithReservationTTL(d time.Duration) ReservationServiceOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func WithMaxPerReservation(n int) ReservationServiceOption {
	return func(s *ReservationService) {
		if n > 0 {
			s.maxQuantity = n
		}
	}
}

// WithClaimRetry sets how many times a claim is attempted on version
// conflicts and the first backoff delay, which doubles per attempt.
func WithClaimRetry(attempts int, base time.Duration) ReservationServiceOption {
	return func(s *ReservationService) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
		if base >= 0 {
			s.backoffBase = base
		}
	}
}

func WithSleep(fn func(ctx context.Context, d time.Duration) error) ReservationServiceOption {
	return func(s *ReservationService) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

type CreateReservationInput struct {
	TicketTypeID string
	UserID       string
	Quantity     int
}

func (s *ReservationService) CreateReservation(ctx context.Context, in CreateReservationInput) (res domain.Reservation, err error) {
	ctx, span := startSpan(ctx, "ReservationService.CreateReservation",
		attribute.String("ticket_type_id", in.TicketTypeID),
		attribute.Int("quantity", in.Quantity),
	)
	defer func() { endSpan(span, err) }()

	if in.UserID == "" {
		return domain.Reservation{}, domain.ErrUserIDRequired
	}
	if in.Quantity < 1 || in.Quantity > s.maxQuantity {
		return domain.Reservation{}, domain.ErrInvalidQuantity
	}
	if in.TicketTypeID == "" {
		return domain.Reservation{}, domain.ErrInvalidID
	}

	tt, err := s.repo.GetTicketType(ctx, in.TicketTypeID)
	if err != nil {
		return domain.Reservation{}, err
	}
	exists, err := s.repo.EventExists(ctx, tt.EventID)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !exists {
		return domain.Reservation{}, domain.ErrEventNotFound
	}

	for attempt := 1; ; attempt++ {
		res, err = s.claimOnce(ctx, in)
		if err == nil {
			s.metrics.ClaimAttempts(attempt)
			s.metrics.ReservationResult("created")
			s.log.Info("reservation created",
				zap.String("reservation_id", res.ID),
				zap.String("ticket_type_id", res.TicketTypeID),
				zap.Int("quantity", res.Quantity),
				zap.Int("attempts", attempt),
			)
			return res, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			s.metrics.ReservationResult(claimResult(err))
			return domain.Reservation{}, err
		}

		s.metrics.VersionConflict()
		if attempt >= s.maxAttempts {
			s.metrics.ClaimAttempts(attempt)
			s.metrics.ReservationResult("busy")
			s.log.Warn("reservation claim gave up after version conflicts",
				zap.String("ticket_type_id", in.TicketTypeID),
				zap.Int("attempts", attempt),
			)
			return domain.Reservation{}, domain.ErrSystemBusy
		}
		if err := s.sleep(ctx, s.backoffBase<<(attempt-1)); err != nil {
			return domain.Reservation{}, err
		}
	}
}

// claimOnce runs one optimistic claim. A concurrent writer surfaces as
// domain.ErrVersionConflict and nothing is left behind.
func (s *ReservationService) claimOnce(ctx context.Context, in CreateReservationInput) (domain.Reservation, error) {
	var result domain.Reservation

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		tt, err := s.repo.GetTicketType(txCtx, in.TicketTypeID)
		if err != nil {
			return err
		}
		if err := tt.CheckClaim(in.Quantity); err != nil {
			return err
		}
		if err := s.repo.ClaimInventory(txCtx, tt.ID, in.Quantity, tt.Version); err != nil {
			return err
		}

		now := s.clock.Now()
		res := domain.Reservation{
			ID:           newUUID(),
			UserID:       in.UserID,
			EventID:      tt.EventID,
			TicketTypeID: tt.ID,
			Quantity:     in.Quantity,
			Status:       domain.ReservationStatusPending,
			ExpiresAt:    now.Add(s.ttl),
			CreatedAt:    now,
		}
		if err := s.repo.CreateReservation(txCtx, res); err != nil {
			return err
		}

		hold := domain.TicketHold{
			ReservationID: res.ID,
			PriceCents:    tt.PriceCents,
			ReservedAt:    now,
			ReservedUntil: res.ExpiresAt,
		}
		if err := s.bindUnits(txCtx, tt, in.Quantity, hold); err != nil {
			return err
		}

		if err := enqueueReservation(txCtx, s.repo, outbox.TypeReservationCreated, res); err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

// bindUnits reuses available or released units first and materializes the
// shortfall, never beyond the ticket type's capacity.
func (s *ReservationService) bindUnits(ctx context.Context, tt domain.TicketType, quantity int, hold domain.TicketHold) error {
	units, err := s.repo.LockClaimableTickets(ctx, tt.ID, quantity)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	if err := s.repo.BindTickets(ctx, ids, hold); err != nil {
		return err
	}

	shortfall := quantity - len(units)
	if shortfall == 0 {
		return nil
	}
	materialized, err := s.repo.CountTickets(ctx, tt.ID)
	if err != nil {
		return err
	}
	if materialized+shortfall > tt.TotalCapacity {
		return fmt.Errorf("ticket pool for %s exhausted: %d units exist, %d more needed, capacity %d",
			tt.ID, materialized, shortfall, tt.TotalCapacity)
	}
	_, err = s.repo.CreateReservedTickets(ctx, tt.ID, shortfall, hold)
	return err
}

// CancelReservation releases a pending reservation on behalf of its owner.
func (s *ReservationService) CancelReservation(ctx context.Context, reservationID, userID string) (res domain.Reservation, err error) {
	ctx, span := startSpan(ctx, "ReservationService.CancelReservation", attribute.String("reservation_id", reservationID))
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return domain.Reservation{}, domain.ErrUserIDRequired
	}

	var released int
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}
		if current.UserID != userID {
			return domain.ErrNotReservationOwner
		}
		if current.Status != domain.ReservationStatusPending {
			return domain.ErrReservationNotPending
		}
		released, err = releaseReservation(txCtx, s.repo, current, domain.ReservationStatusCancelled)
		if err != nil {
			return err
		}
		current.Status = domain.ReservationStatusCancelled
		res = current
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	s.metrics.Released(string(domain.ReservationStatusCancelled))
	s.log.Info("reservation cancelled", zap.String("reservation_id", res.ID), zap.Int("tickets", released))
	return res, nil
}

func (s *ReservationService) GetReservation(ctx context.Context, reservationID string) (domain.Reservation, error) {
	if reservationID == "" {
		return domain.Reservation{}, domain.ErrInvalidID
	}
	return s.repo.GetReservation(ctx, reservationID)
}

// Availability returns the current counter of a ticket type.
func (s *ReservationService) Availability(ctx context.Context, ticketTypeID string) (domain.TicketType, error) {
	if ticketTypeID == "" {
		return domain.TicketType{}, domain.ErrInvalidID
	}
	return s.repo.GetTicketType(ctx, ticketTypeID)
}

func claimResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientInventory):
		return "insufficient"
	case errors.Is(err, domain.ErrTicketTypeNotFound), errors.Is(err, domain.ErrEventNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
