package http

import (
	"context"
	"net/http"
	"time"

	"github.com/cimillas/ticket-inventory/internal/app"
	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/go-chi/chi/v5"
)

const idempotencyHeader = "Idempotency-Key"

type OrderCreator interface {
	CreateOrder(ctx context.Context, in app.CreateOrderInput) (app.CreateOrderResult, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
}

// HandleCreateOrder returns an HTTP handler that prices a reservation into
// an order. A replayed idempotency key answers 200 with the original order.
func HandleCreateOrder(svc OrderCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.ReservationID == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "reservation_id is required")
			return
		}
		key := r.Header.Get(idempotencyHeader)
		if key == "" {
			key = req.IdempotencyKey
		}
		userID := req.UserID
		if userID == "" {
			userID = r.Header.Get(userIDHeader)
		}

		res, err := svc.CreateOrder(r.Context(), app.CreateOrderInput{
			ReservationID:  req.ReservationID,
			UserID:         userID,
			IdempotencyKey: key,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, newOrderResponse(res.Order))
	}
}

func HandleGetOrder(svc OrderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := svc.GetOrder(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newOrderResponse(order))
	}
}

type createOrderRequest struct {
	ReservationID  string `json:"reservation_id"`
	UserID         string `json:"user_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type orderResponse struct {
	ID             string     `json:"id"`
	ReservationID  string     `json:"reservation_id"`
	UserID         string     `json:"user_id"`
	TotalCents     int64      `json:"total_cents"`
	Status         string     `json:"status"`
	IdempotencyKey string     `json:"idempotency_key"`
	PaymentID      string     `json:"payment_id,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func newOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:             o.ID,
		ReservationID:  o.ReservationID,
		UserID:         o.UserID,
		TotalCents:     o.TotalCents,
		Status:         string(o.Status),
		IdempotencyKey: o.IdempotencyKey,
		PaymentID:      o.PaymentID,
		PaidAt:         o.PaidAt,
		FailureReason:  o.FailureReason,
		CreatedAt:      o.CreatedAt,
	}
}
