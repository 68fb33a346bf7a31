package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cimillas/ticket-inventory/internal/app"
	"github.com/cimillas/ticket-inventory/internal/domain"
)

type stubOrderService struct {
	result app.CreateOrderResult
	order  domain.Order
	err    error
	lastIn app.CreateOrderInput
}

func (s *stubOrderService) CreateOrder(_ context.Context, in app.CreateOrderInput) (app.CreateOrderResult, error) {
	s.lastIn = in
	return s.result, s.err
}

func (s *stubOrderService) GetOrder(_ context.Context, _ string) (domain.Order, error) {
	return s.order, s.err
}

func TestHandleCreateOrder(t *testing.T) {
	t.Parallel()

	order := domain.Order{
		ID:             "ord-1",
		ReservationID:  "res-1",
		UserID:         "user-1",
		TotalCents:     5000,
		Status:         domain.OrderStatusPending,
		IdempotencyKey: "key-1",
	}

	tests := []struct {
		name       string
		body       string
		key        string
		created    bool
		svcErr     error
		wantStatus int
		wantCode   string
		wantKey    string
	}{
		{
			name:       "created with header key",
			body:       `{"reservation_id":"res-1","user_id":"user-1"}`,
			key:        "key-1",
			created:    true,
			wantStatus: http.StatusCreated,
			wantKey:    "key-1",
		},
		{
			name:       "key from body",
			body:       `{"reservation_id":"res-1","user_id":"user-1","idempotency_key":"key-2"}`,
			created:    true,
			wantStatus: http.StatusCreated,
			wantKey:    "key-2",
		},
		{
			name:       "header wins over body",
			body:       `{"reservation_id":"res-1","user_id":"user-1","idempotency_key":"key-2"}`,
			key:        "key-1",
			created:    true,
			wantStatus: http.StatusCreated,
			wantKey:    "key-1",
		},
		{
			name:       "replay",
			body:       `{"reservation_id":"res-1","user_id":"user-1"}`,
			key:        "key-1",
			wantStatus: http.StatusOK,
			wantKey:    "key-1",
		},
		{
			name:       "missing reservation id",
			body:       `{"user_id":"user-1"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   codeMissingRequiredField,
		},
		{
			name:       "expired",
			body:       `{"reservation_id":"res-1","user_id":"user-1"}`,
			svcErr:     domain.ErrReservationExpired,
			wantStatus: http.StatusConflict,
			wantCode:   codeReservationExpired,
		},
		{
			name:       "second order",
			body:       `{"reservation_id":"res-1","user_id":"user-1"}`,
			key:        "other",
			svcErr:     domain.ErrOrderAlreadyExists,
			wantStatus: http.StatusConflict,
			wantCode:   codeOrderAlreadyExists,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := &stubOrderService{
				result: app.CreateOrderResult{Order: order, Created: tc.created},
				err:    tc.svcErr,
			}
			req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(tc.body))
			if tc.key != "" {
				req.Header.Set(idempotencyHeader, tc.key)
			}
			rec := httptest.NewRecorder()
			HandleCreateOrder(svc).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d (%s)", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantCode != "" {
				if got := decodeErrorCode(t, rec.Body.Bytes()); got != tc.wantCode {
					t.Fatalf("expected code %s, got %s", tc.wantCode, got)
				}
				return
			}
			if svc.lastIn.IdempotencyKey != tc.wantKey {
				t.Fatalf("expected key %q, got %q", tc.wantKey, svc.lastIn.IdempotencyKey)
			}

			var resp orderResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.ID != "ord-1" || resp.TotalCents != 5000 || resp.Status != "pending" {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestHandleGetOrder(t *testing.T) {
	t.Parallel()

	svc := &stubOrderService{order: domain.Order{ID: "ord-1", Status: domain.OrderStatusCompleted, PaymentID: "pay-1"}}
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/orders/ord-1", nil), "id", "ord-1")
	rec := httptest.NewRecorder()
	HandleGetOrder(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp orderResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "completed" || resp.PaymentID != "pay-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
