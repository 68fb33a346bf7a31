package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cimillas/ticket-inventory/internal/domain"
	"go.uber.org/zap"
)

func newStubRouter(simulator bool) http.Handler {
	webhooks := &stubWebhookService{}
	svc := Services{
		Reservations: &stubReservationService{res: domain.Reservation{ID: "res-1"}},
		Orders:       &stubOrderService{},
		Webhooks:     webhooks,
		Admin:        &stubAdminService{},
	}
	if simulator {
		svc.Simulator = webhooks
	}
	return NewRouter(svc, RouterConfig{Logger: zap.NewNop(), CORSOrigins: []string{"*"}})
}

func TestNewRouter_Routes(t *testing.T) {
	t.Parallel()

	router := newStubRouter(false)

	tests := []struct {
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/reservations/res-1", "", http.StatusOK},
		{http.MethodDelete, "/reservations/res-1", "", http.StatusOK},
		{http.MethodGet, "/ticket-types/tt-1/availability", "", http.StatusOK},
		{http.MethodGet, "/admin/events", "", http.StatusOK},
		{http.MethodGet, "/admin/events/evt-1/ticket-types", "", http.StatusOK},
		{http.MethodGet, "/ready", "", http.StatusOK},
		{http.MethodGet, "/missing", "", http.StatusNotFound},
		{http.MethodPut, "/reservations/res-1", "", http.StatusMethodNotAllowed},
		{http.MethodPost, "/webhooks/payment/simulate", `{"order_id":"ord-1"}`, http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d (%s)", tc.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestNewRouter_SimulatorMounted(t *testing.T) {
	t.Parallel()

	router := newStubRouter(true)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/simulate", bytes.NewBufferString(`{"order_id":"ord-1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestNewRouter_CORSPreflight(t *testing.T) {
	t.Parallel()

	router := newStubRouter(false)
	req := httptest.NewRequest(http.MethodOptions, "/reservations/res-1", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, DELETE, OPTIONS" {
		t.Fatalf("unexpected allow methods %q", got)
	}
}

func TestNewRouter_NotFoundIsJSON(t *testing.T) {
	t.Parallel()

	router := newStubRouter(false)
	req := httptest.NewRequest(http.MethodGet, "/seats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	if got := decodeErrorCode(t, rec.Body.Bytes()); got != codeNotFound {
		t.Fatalf("expected code %s, got %s", codeNotFound, got)
	}
}
