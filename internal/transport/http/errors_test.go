package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cimillas/ticket-inventory/internal/domain"
)

func TestWriteDomainError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"ticket type missing", domain.ErrTicketTypeNotFound, http.StatusNotFound, codeTicketTypeNotFound},
		{"order missing wrapped", fmt.Errorf("load: %w", domain.ErrOrderNotFound), http.StatusNotFound, codeOrderNotFound},
		{"bad quantity", domain.ErrInvalidQuantity, http.StatusBadRequest, codeInvalidQuantity},
		{"wrong owner", domain.ErrNotReservationOwner, http.StatusBadRequest, codeNotReservationOwner},
		{"not pending", domain.ErrReservationNotPending, http.StatusBadRequest, codeReservationNotPending},
		{"insufficient", &domain.InsufficientInventoryError{Available: 2, Requested: 5}, http.StatusConflict, codeInsufficientInventory},
		{"expired", domain.ErrReservationExpired, http.StatusConflict, codeReservationExpired},
		{"closed", domain.ErrReservationClosed, http.StatusConflict, codeReservationClosed},
		{"busy", fmt.Errorf("%w: 3 attempts", domain.ErrSystemBusy), http.StatusConflict, codeSystemBusy},
		{"version conflict", domain.ErrVersionConflict, http.StatusInternalServerError, codeInternalError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, codeInternalError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			writeDomainError(rec, tc.err)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Code != tc.wantCode {
				t.Fatalf("expected code %s, got %s", tc.wantCode, resp.Code)
			}
		})
	}
}

func TestWriteDomainError_CarriesInventoryNumbers(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeDomainError(rec, &domain.InsufficientInventoryError{Available: 2, Requested: 5})

	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "only 2 available, requested 5" {
		t.Fatalf("unexpected message %q", resp.Error)
	}
}
