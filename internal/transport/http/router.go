package http

import (
	"net/http"

	"github.com/cimillas/ticket-inventory/internal/metrics"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Services groups the handlers' collaborators. Simulator may be nil, in
// which case the simulate endpoint is not mounted.
type Services struct {
	Reservations interface {
		ReservationCreator
		ReservationCanceller
		ReservationReader
		AvailabilityReader
	}
	Orders interface {
		OrderCreator
		OrderReader
	}
	Webhooks  WebhookProcessor
	Simulator PaymentSimulator
	Admin     interface {
		AdminEventService
		AdminTicketTypeService
	}
}

// RouterConfig carries the ambient pieces of the HTTP stack.
type RouterConfig struct {
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	CORSOrigins []string
	ReadyChecks map[string]ReadinessCheck
}

// NewRouter mounts every endpoint behind the logging, CORS and tracing
// middleware.
func NewRouter(svc Services, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return RequestLogger(next, cfg.Logger, cfg.Metrics)
	})
	r.Use(CORS(cfg.CORSOrigins))
	r.Use(Tracing)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", HealthHandler)
	r.Get("/ready", HandleReady(cfg.ReadyChecks))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/reservations", HandleCreateReservation(svc.Reservations))
	r.Get("/reservations/{id}", HandleGetReservation(svc.Reservations))
	r.Delete("/reservations/{id}", HandleCancelReservation(svc.Reservations))
	r.Get("/ticket-types/{id}/availability", HandleAvailability(svc.Reservations))

	r.Post("/orders", HandleCreateOrder(svc.Orders))
	r.Get("/orders/{id}", HandleGetOrder(svc.Orders))

	r.Post("/webhooks/payment", HandlePaymentWebhook(svc.Webhooks))
	if svc.Simulator != nil {
		r.Post("/webhooks/payment/simulate", HandleSimulatePayment(svc.Simulator))
	}

	r.HandleFunc("/admin/events", HandleAdminEvents(svc.Admin))
	r.HandleFunc("/admin/events/{id}/ticket-types", HandleAdminTicketTypes(svc.Admin))

	return r
}
