package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTicketTypeNotFound  = errors.New("ticket type not found")
	ErrEventNotFound       = errors.New("event not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrOrderNotFound       = errors.New("order not found")

	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrInvalidID             = errors.New("invalid id")
	ErrInvalidCapacity       = errors.New("invalid capacity")
	ErrInvalidPrice          = errors.New("invalid price")
	ErrEventNameRequired     = errors.New("event name required")
	ErrTicketTypeNameMissing = errors.New("ticket type name required")
	ErrNotReservationOwner   = errors.New("reservation belongs to another user")
	ErrReservationNotPending = errors.New("reservation is not pending")
	ErrInvalidWebhook        = errors.New("invalid webhook event")
	ErrUserIDRequired        = errors.New("user id required")

	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrReservationExpired    = errors.New("reservation expired")
	ErrOrderAlreadyExists    = errors.New("order already exists for reservation")
	ErrOrderNotPending       = errors.New("order is not pending")
	ErrReservationClosed     = errors.New("reservation is no longer pending")
	ErrSystemBusy            = errors.New("system busy, try again")

	// Storage-level uniqueness signals handled inside the app layer.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
	ErrDuplicatePaymentEvent   = errors.New("payment event already recorded")
	ErrTicketCodeTaken         = errors.New("ticket code already taken")

	// ErrVersionConflict is returned by a conditioned counter write whose
	// observed version is stale. The reservation engine retries on it.
	ErrVersionConflict = errors.New("inventory version conflict")
)

// InsufficientInventoryError carries the numbers behind a capacity rejection.
type InsufficientInventoryError struct {
	Available int
	Requested int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("only %d available, requested %d", e.Available, e.Requested)
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}
