package http

import (
	"context"
	"net/http"
	"time"

	"github.com/cimillas/ticket-inventory/internal/app"
	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/go-chi/chi/v5"
)

const userIDHeader = "X-User-Id"

type ReservationCreator interface {
	CreateReservation(ctx context.Context, in app.CreateReservationInput) (domain.Reservation, error)
}

type ReservationCanceller interface {
	CancelReservation(ctx context.Context, reservationID, userID string) (domain.Reservation, error)
}

type ReservationReader interface {
	GetReservation(ctx context.Context, reservationID string) (domain.Reservation, error)
}

type AvailabilityReader interface {
	Availability(ctx context.Context, ticketTypeID string) (domain.TicketType, error)
}

// HandleCreateReservation returns an HTTP handler for reserving tickets.
func HandleCreateReservation(svc ReservationCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createReservationRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.TicketTypeID == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "ticket_type_id is required")
			return
		}
		userID := req.UserID
		if userID == "" {
			userID = r.Header.Get(userIDHeader)
		}

		res, err := svc.CreateReservation(r.Context(), app.CreateReservationInput{
			TicketTypeID: req.TicketTypeID,
			UserID:       userID,
			Quantity:     req.Quantity,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newReservationResponse(res))
	}
}

// HandleCancelReservation releases a reservation on behalf of the user in
// the X-User-Id header.
func HandleCancelReservation(svc ReservationCanceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.CancelReservation(r.Context(), chi.URLParam(r, "id"), r.Header.Get(userIDHeader))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newReservationResponse(res))
	}
}

func HandleGetReservation(svc ReservationReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.GetReservation(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newReservationResponse(res))
	}
}

func HandleAvailability(svc AvailabilityReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tt, err := svc.Availability(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, availabilityResponse{
			TicketTypeID: tt.ID,
			Total:        tt.TotalCapacity,
			Reserved:     tt.ReservedCount,
			Sold:         tt.SoldCount,
			Available:    tt.Available(),
			Version:      tt.Version,
		})
	}
}

type createReservationRequest struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
	UserID       string `json:"user_id,omitempty"`
}

type reservationResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	EventID      string    `json:"event_id"`
	TicketTypeID string    `json:"ticket_type_id"`
	Quantity     int       `json:"quantity"`
	Status       string    `json:"status"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func newReservationResponse(res domain.Reservation) reservationResponse {
	return reservationResponse{
		ID:           res.ID,
		UserID:       res.UserID,
		EventID:      res.EventID,
		TicketTypeID: res.TicketTypeID,
		Quantity:     res.Quantity,
		Status:       string(res.Status),
		ExpiresAt:    res.ExpiresAt,
		CreatedAt:    res.CreatedAt,
	}
}

type availabilityResponse struct {
	TicketTypeID string `json:"ticket_type_id"`
	Total        int    `json:"total"`
	Reserved     int    `json:"reserved"`
	Sold         int    `json:"sold"`
	Available    int    `json:"available"`
	Version      int64  `json:"version"`
}
