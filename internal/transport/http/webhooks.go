package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/cimillas/ticket-inventory/internal/app"
	"github.com/google/uuid"
)

const maxWebhookBody = 1 << 20

type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, in app.WebhookEvent) (app.WebhookResult, error)
}

type PaymentSimulator interface {
	SimulateApproval(ctx context.Context, eventID, orderID, paymentID string) (app.WebhookResult, error)
}

// HandlePaymentWebhook ingests a gateway notification. Duplicates are
// acknowledged with 200 so the gateway stops retrying.
func HandlePaymentWebhook(svc WebhookProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		var event app.WebhookEvent
		if err := json.Unmarshal(body, &event); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if hasNUL(body) {
			writeError(w, http.StatusBadRequest, codeInvalidWebhook, "webhook body contains NUL characters")
			return
		}
		event.Raw = body

		result, err := svc.ProcessWebhook(r.Context(), event)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, webhookResponse{
			Received:  true,
			Duplicate: result.Duplicate,
			Action:    result.Action,
		})
	}
}

// HandleSimulatePayment approves an order through the webhook path. It is
// only mounted when the simulator is enabled.
func HandleSimulatePayment(svc PaymentSimulator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req simulatePaymentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.OrderID == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "order_id is required")
			return
		}
		if req.PaymentID == "" {
			req.PaymentID = "sim_" + uuid.NewString()
		}

		eventID := "sim_evt_" + uuid.NewString()
		result, err := svc.SimulateApproval(r.Context(), eventID, req.OrderID, req.PaymentID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, simulatePaymentResponse{
			EventID:   eventID,
			PaymentID: req.PaymentID,
			Action:    result.Action,
		})
	}
}

// hasNUL reports whether any key or string value in a JSON document
// decodes to a NUL character, which Postgres JSONB cannot store.
func hasNUL(body []byte) bool {
	dec := json.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		if s, ok := tok.(string); ok && strings.ContainsRune(s, 0) {
			return true
		}
	}
}

type webhookResponse struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate"`
	Action    string `json:"action"`
}

type simulatePaymentRequest struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id,omitempty"`
}

type simulatePaymentResponse struct {
	EventID   string `json:"event_id"`
	PaymentID string `json:"payment_id"`
	Action    string `json:"action"`
}
