package app

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/cimillas/ticket-inventory/internal/clock"
	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/internal/metrics"
	"github.com/cimillas/ticket-inventory/internal/outbox"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type OrderRepository interface {
	ReleaseRepository
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	GetOrderForUpdate(ctx context.Context, id string) (domain.Order, error)
	FindOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	CreateOrder(ctx context.Context, order domain.Order) error
	CompleteOrder(ctx context.Context, id, paymentID string, paidAt time.Time) error
	FailOrder(ctx context.Context, id, reason string) error
	SellTicket(ctx context.Context, ticketID, code string) error
	SellInventory(ctx context.Context, ticketTypeID string, quantity int) error
}

type OrderService struct {
	repo      OrderRepository
	clock     clock.Clock
	log       *zap.Logger
	metrics   *metrics.Metrics
	newCode   func() (string, error)
	codeTries int
}

func NewOrderService(repo OrderRepository, clk clock.Clock, log *zap.Logger, m *metrics.Metrics, opts ...OrderServiceOption) *OrderService {
	svc := &OrderService{
		repo:      repo,
		clock:     clk,
		log:       log,
		metrics:   m,
		newCode:   newTicketCode,
		codeTries: 5,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type OrderServiceOption func(*OrderService)

// WithCodeGenerator replaces the redemption code source.
func WithCodeGenerator(fn func() (string, error)) OrderServiceOption {
	return func(s *OrderService) {
		if fn != nil {
			s.newCode = fn
		}
	}
}

type CreateOrderInput struct {
	ReservationID  string
	UserID         string
	IdempotencyKey string
}

type CreateOrderResult struct {
	Order   domain.Order
	Created bool
}

type orderEvent struct {
	OrderID       string `json:"order_id"`
	ReservationID string `json:"reservation_id"`
	UserID        string `json:"user_id"`
	TotalCents    int64  `json:"total_cents"`
	Status        string `json:"status"`
	PaymentID     string `json:"payment_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (result CreateOrderResult, err error) {
	ctx, span := startSpan(ctx, "OrderService.CreateOrder", attribute.String("reservation_id", in.ReservationID))
	defer func() { endSpan(span, err) }()

	if in.ReservationID == "" {
		return CreateOrderResult{}, domain.ErrInvalidID
	}
	if in.UserID == "" {
		return CreateOrderResult{}, domain.ErrUserIDRequired
	}

	if in.IdempotencyKey != "" {
		existing, err := s.repo.FindOrderByIdempotencyKey(ctx, in.IdempotencyKey)
		if err != nil {
			return CreateOrderResult{}, err
		}
		if existing != nil {
			return CreateOrderResult{Order: *existing, Created: false}, nil
		}
	}

	now := s.clock.Now()
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservationForUpdate(txCtx, in.ReservationID)
		if err != nil {
			return err
		}
		if res.UserID != in.UserID {
			return domain.ErrNotReservationOwner
		}
		if res.Status != domain.ReservationStatusPending {
			return domain.ErrReservationNotPending
		}
		if res.Lapsed(now) {
			return domain.ErrReservationExpired
		}

		tickets, err := s.repo.ListTicketsByReservation(txCtx, res.ID)
		if err != nil {
			return err
		}
		var total int64
		for _, t := range tickets {
			total += t.PriceCents
		}

		key := in.IdempotencyKey
		if key == "" {
			key = newUUID()
		}
		order := domain.Order{
			ID:             newUUID(),
			ReservationID:  res.ID,
			UserID:         in.UserID,
			TotalCents:     total,
			Status:         domain.OrderStatusPending,
			IdempotencyKey: key,
			CreatedAt:      now,
		}
		if err := s.repo.CreateOrder(txCtx, order); err != nil {
			return err
		}
		if err := s.enqueueOrder(txCtx, outbox.TypeOrderCreated, order); err != nil {
			return err
		}
		result = CreateOrderResult{Order: order, Created: true}
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
		// Lost an insert race on the same key: replay the winner.
		existing, findErr := s.repo.FindOrderByIdempotencyKey(ctx, in.IdempotencyKey)
		if findErr != nil {
			return CreateOrderResult{}, findErr
		}
		if existing != nil {
			return CreateOrderResult{Order: *existing, Created: false}, nil
		}
	}
	if err != nil {
		return CreateOrderResult{}, err
	}

	s.metrics.Order(string(domain.OrderStatusPending))
	s.log.Info("order created",
		zap.String("order_id", result.Order.ID),
		zap.String("reservation_id", result.Order.ReservationID),
		zap.Int64("total_cents", result.Order.TotalCents),
	)
	return result, nil
}

// ConfirmPayment completes a pending order and sells its tickets. A
// completed order is returned unchanged.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID, paymentID string) (order domain.Order, err error) {
	ctx, span := startSpan(ctx, "OrderService.ConfirmPayment", attribute.String("order_id", orderID))
	defer func() { endSpan(span, err) }()

	if orderID == "" {
		return domain.Order{}, domain.ErrInvalidID
	}

	var replay bool
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		o, err := s.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		switch o.Status {
		case domain.OrderStatusCompleted:
			order, replay = o, true
			return nil
		case domain.OrderStatusFailed, domain.OrderStatusRefunded:
			return domain.ErrOrderNotPending
		}

		res, err := s.repo.GetReservationForUpdate(txCtx, o.ReservationID)
		if err != nil {
			return err
		}
		if res.Status != domain.ReservationStatusPending {
			return domain.ErrReservationClosed
		}

		tickets, err := s.repo.ListTicketsByReservation(txCtx, res.ID)
		if err != nil {
			return err
		}
		for _, t := range tickets {
			if err := s.sellTicket(txCtx, t.ID); err != nil {
				return err
			}
		}
		counts := domain.CountByTicketType(tickets)
		for _, typeID := range slices.Sorted(maps.Keys(counts)) {
			if err := s.repo.SellInventory(txCtx, typeID, counts[typeID]); err != nil {
				return err
			}
		}

		if err := s.repo.UpdateReservationStatus(txCtx, res.ID, domain.ReservationStatusPending, domain.ReservationStatusConfirmed); err != nil {
			return err
		}
		now := s.clock.Now()
		if err := s.repo.CompleteOrder(txCtx, o.ID, paymentID, now); err != nil {
			return err
		}
		o.Status = domain.OrderStatusCompleted
		o.PaymentID = paymentID
		o.PaidAt = &now
		if err := s.enqueueOrder(txCtx, outbox.TypeOrderCompleted, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	if !replay {
		s.metrics.Order(string(domain.OrderStatusCompleted))
		s.log.Info("payment confirmed", zap.String("order_id", order.ID), zap.String("payment_id", paymentID))
	}
	return order, nil
}

// FailPayment marks a pending order failed and, if its reservation is still
// pending, releases the held tickets as expired.
func (s *OrderService) FailPayment(ctx context.Context, orderID, reason string) (order domain.Order, err error) {
	ctx, span := startSpan(ctx, "OrderService.FailPayment", attribute.String("order_id", orderID))
	defer func() { endSpan(span, err) }()

	if orderID == "" {
		return domain.Order{}, domain.ErrInvalidID
	}

	var (
		replay   bool
		released bool
	)
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		o, err := s.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		switch o.Status {
		case domain.OrderStatusFailed:
			order, replay = o, true
			return nil
		case domain.OrderStatusCompleted, domain.OrderStatusRefunded:
			return domain.ErrOrderNotPending
		}

		res, err := s.repo.GetReservationForUpdate(txCtx, o.ReservationID)
		if err != nil {
			return err
		}
		if err := s.repo.FailOrder(txCtx, o.ID, reason); err != nil {
			return err
		}
		if res.Status == domain.ReservationStatusPending {
			if _, err := releaseReservation(txCtx, s.repo, res, domain.ReservationStatusExpired); err != nil {
				return err
			}
			released = true
		}
		o.Status = domain.OrderStatusFailed
		o.FailureReason = reason
		if err := s.enqueueOrder(txCtx, outbox.TypeOrderFailed, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	if !replay {
		s.metrics.Order(string(domain.OrderStatusFailed))
		if released {
			s.metrics.Released(string(domain.ReservationStatusExpired))
		}
		s.log.Info("payment failed",
			zap.String("order_id", order.ID),
			zap.String("reason", reason),
			zap.Bool("released", released),
		)
	}
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrInvalidID
	}
	return s.repo.GetOrder(ctx, orderID)
}

func (s *OrderService) sellTicket(ctx context.Context, ticketID string) error {
	var err error
	for i := 0; i < s.codeTries; i++ {
		var code string
		code, err = s.newCode()
		if err != nil {
			return err
		}
		err = s.repo.SellTicket(ctx, ticketID, code)
		if !errors.Is(err, domain.ErrTicketCodeTaken) {
			return err
		}
	}
	return err
}

func (s *OrderService) enqueueOrder(ctx context.Context, eventType string, o domain.Order) error {
	ev, err := outbox.NewEvent("order", o.ID, eventType, orderEvent{
		OrderID:       o.ID,
		ReservationID: o.ReservationID,
		UserID:        o.UserID,
		TotalCents:    o.TotalCents,
		Status:        string(o.Status),
		PaymentID:     o.PaymentID,
		FailureReason: o.FailureReason,
	})
	if err != nil {
		return err
	}
	return s.repo.Enqueue(ctx, ev)
}
