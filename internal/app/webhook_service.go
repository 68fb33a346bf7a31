package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/cimillas/ticket-inventory/internal/clock"
	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type PaymentEventRepository interface {
	PaymentEventExists(ctx context.Context, eventID string) (bool, error)
	CreatePaymentEvent(ctx context.Context, e domain.PaymentEvent) error
}

// PaymentProcessor applies a gateway outcome to an order.
type PaymentProcessor interface {
	ConfirmPayment(ctx context.Context, orderID, paymentID string) (domain.Order, error)
	FailPayment(ctx context.Context, orderID, reason string) (domain.Order, error)
}

// DedupCache is an optional fast path in front of the payment event table.
type DedupCache interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type WebhookService struct {
	repo    PaymentEventRepository
	orders  PaymentProcessor
	cache   DedupCache
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics
}

type WebhookServiceOption func(*WebhookService)

func WithDedupCache(c DedupCache) WebhookServiceOption {
	return func(s *WebhookService) {
		s.cache = c
	}
}

func NewWebhookService(repo PaymentEventRepository, orders PaymentProcessor, clk clock.Clock, log *zap.Logger, m *metrics.Metrics, opts ...WebhookServiceOption) *WebhookService {
	s := &WebhookService{
		repo:    repo,
		orders:  orders,
		clock:   clk,
		log:     log,
		metrics: m,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WebhookEvent is a payment gateway notification.
type WebhookEvent struct {
	EventID   string    `json:"event_id"`
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	Status    string    `json:"status"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	// Raw is the body as received; it is stored verbatim when set.
	Raw json.RawMessage `json:"-"`
}

const (
	WebhookActionConfirmed = "confirmed"
	WebhookActionFailed    = "failed"
	WebhookActionRecorded  = "recorded"
	WebhookActionDuplicate = "duplicate"
)

type WebhookResult struct {
	Duplicate bool
	Action    string
}

// ProcessWebhook records a gateway notification once per external event id
// and drives the matching order transition. Repeats are acknowledged
// without side effects.
func (s *WebhookService) ProcessWebhook(ctx context.Context, in WebhookEvent) (result WebhookResult, err error) {
	ctx, span := startSpan(ctx, "WebhookService.ProcessWebhook",
		attribute.String("event_id", in.EventID),
		attribute.String("status", in.Status),
	)
	defer func() { endSpan(span, err) }()

	if in.EventID == "" || in.OrderID == "" || in.Status == "" {
		return WebhookResult{}, domain.ErrInvalidWebhook
	}

	if s.seen(ctx, in.EventID) {
		return s.duplicate(in), nil
	}
	exists, err := s.repo.PaymentEventExists(ctx, in.EventID)
	if err != nil {
		return WebhookResult{}, err
	}
	if exists {
		s.mark(ctx, in.EventID)
		return s.duplicate(in), nil
	}

	payload := in.Raw
	if len(payload) == 0 {
		if payload, err = json.Marshal(in); err != nil {
			return WebhookResult{}, err
		}
	}
	record := domain.PaymentEvent{
		EventID:     in.EventID,
		OrderID:     in.OrderID,
		PaymentID:   in.PaymentID,
		Status:      in.Status,
		Payload:     payload,
		ProcessedAt: s.clock.Now(),
	}
	if err := s.repo.CreatePaymentEvent(ctx, record); err != nil {
		if errors.Is(err, domain.ErrDuplicatePaymentEvent) {
			s.mark(ctx, in.EventID)
			return s.duplicate(in), nil
		}
		return WebhookResult{}, err
	}
	s.mark(ctx, in.EventID)

	status := strings.ToLower(in.Status)
	switch status {
	case "approved", "completed":
		if _, err := s.orders.ConfirmPayment(ctx, in.OrderID, in.PaymentID); err != nil {
			s.metrics.WebhookEvent("error")
			return WebhookResult{}, err
		}
		result = WebhookResult{Action: WebhookActionConfirmed}
	case "rejected", "failed":
		if _, err := s.orders.FailPayment(ctx, in.OrderID, status); err != nil {
			s.metrics.WebhookEvent("error")
			return WebhookResult{}, err
		}
		result = WebhookResult{Action: WebhookActionFailed}
	default:
		s.log.Warn("unhandled payment status", zap.String("event_id", in.EventID), zap.String("status", in.Status))
		result = WebhookResult{Action: WebhookActionRecorded}
	}

	s.metrics.WebhookEvent(result.Action)
	s.log.Info("payment webhook processed",
		zap.String("event_id", in.EventID),
		zap.String("order_id", in.OrderID),
		zap.String("action", result.Action),
	)
	return result, nil
}

// SimulateApproval feeds an approved notification through the normal
// ingestion path.
func (s *WebhookService) SimulateApproval(ctx context.Context, eventID, orderID, paymentID string) (WebhookResult, error) {
	return s.ProcessWebhook(ctx, WebhookEvent{
		EventID:   eventID,
		OrderID:   orderID,
		PaymentID: paymentID,
		Status:    "approved",
		Timestamp: s.clock.Now(),
	})
}

func (s *WebhookService) duplicate(in WebhookEvent) WebhookResult {
	s.metrics.WebhookEvent(WebhookActionDuplicate)
	s.log.Info("duplicate payment webhook ignored", zap.String("event_id", in.EventID))
	return WebhookResult{Duplicate: true, Action: WebhookActionDuplicate}
}

func (s *WebhookService) seen(ctx context.Context, eventID string) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Seen(ctx, eventID)
	if err != nil {
		s.log.Warn("dedup cache lookup failed", zap.String("event_id", eventID), zap.Error(err))
		return false
	}
	return ok
}

func (s *WebhookService) mark(ctx context.Context, eventID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Mark(ctx, eventID); err != nil {
		s.log.Warn("dedup cache mark failed", zap.String("event_id", eventID), zap.Error(err))
	}
}
