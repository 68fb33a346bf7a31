package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cimillas/ticket-inventory/internal/domain"
)

const (
	codeMethodNotAllowed      = "method_not_allowed"
	codeNotFound              = "not_found"
	codeInvalidRequestBody    = "invalid_request_body"
	codeMissingRequiredField  = "missing_required_field"
	codeInvalidStartsAt       = "invalid_starts_at"
	codeInvalidID             = "invalid_id"
	codeEventNameRequired     = "event_name_required"
	codeTicketTypeNameMissing = "ticket_type_name_required"
	codeInvalidQuantity       = "invalid_quantity"
	codeInvalidCapacity       = "invalid_capacity"
	codeInvalidPrice          = "invalid_price"
	codeUserIDRequired        = "user_id_required"
	codeNotReservationOwner   = "not_reservation_owner"
	codeReservationNotPending = "reservation_not_pending"
	codeInvalidWebhook        = "invalid_webhook"
	codeInsufficientInventory = "insufficient_inventory"
	codeReservationExpired    = "reservation_expired"
	codeReservationClosed     = "reservation_closed"
	codeOrderAlreadyExists    = "order_already_exists"
	codeOrderNotPending       = "order_not_pending"
	codeSystemBusy            = "system_busy"
	codeTicketTypeNotFound    = "ticket_type_not_found"
	codeEventNotFound         = "event_not_found"
	codeReservationNotFound   = "reservation_not_found"
	codeOrderNotFound         = "order_not_found"
	codeForbidden             = "forbidden"
	codeInternalError         = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

var domainErrors = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrTicketTypeNotFound, http.StatusNotFound, codeTicketTypeNotFound},
	{domain.ErrEventNotFound, http.StatusNotFound, codeEventNotFound},
	{domain.ErrReservationNotFound, http.StatusNotFound, codeReservationNotFound},
	{domain.ErrOrderNotFound, http.StatusNotFound, codeOrderNotFound},

	{domain.ErrInvalidQuantity, http.StatusBadRequest, codeInvalidQuantity},
	{domain.ErrInvalidID, http.StatusBadRequest, codeInvalidID},
	{domain.ErrInvalidCapacity, http.StatusBadRequest, codeInvalidCapacity},
	{domain.ErrInvalidPrice, http.StatusBadRequest, codeInvalidPrice},
	{domain.ErrEventNameRequired, http.StatusBadRequest, codeEventNameRequired},
	{domain.ErrTicketTypeNameMissing, http.StatusBadRequest, codeTicketTypeNameMissing},
	{domain.ErrUserIDRequired, http.StatusBadRequest, codeUserIDRequired},
	{domain.ErrNotReservationOwner, http.StatusBadRequest, codeNotReservationOwner},
	{domain.ErrReservationNotPending, http.StatusBadRequest, codeReservationNotPending},
	{domain.ErrInvalidWebhook, http.StatusBadRequest, codeInvalidWebhook},

	{domain.ErrInsufficientInventory, http.StatusConflict, codeInsufficientInventory},
	{domain.ErrReservationExpired, http.StatusConflict, codeReservationExpired},
	{domain.ErrReservationClosed, http.StatusConflict, codeReservationClosed},
	{domain.ErrOrderAlreadyExists, http.StatusConflict, codeOrderAlreadyExists},
	{domain.ErrOrderNotPending, http.StatusConflict, codeOrderNotPending},
	{domain.ErrSystemBusy, http.StatusConflict, codeSystemBusy},
}

// writeDomainError maps a service error to its HTTP status. Anything not
// classified is reported as an opaque internal error.
func writeDomainError(w http.ResponseWriter, err error) {
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
