package domain

// TicketType is a priced category of tickets for an event. Its counters
// form the inventory counter guarded by Version.
type TicketType struct {
	ID            string
	EventID       string
	Name          string
	PriceCents    int64
	TotalCapacity int
	ReservedCount int
	SoldCount     int
	Version       int64
}

// Available is the capacity not yet reserved or sold.
func (t TicketType) Available() int {
	return t.TotalCapacity - t.ReservedCount - t.SoldCount
}

// CheckClaim reports whether quantity units can be claimed against the
// counter as observed.
func (t TicketType) CheckClaim(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if available := t.Available(); available < quantity {
		return &InsufficientInventoryError{Available: max(available, 0), Requested: quantity}
	}
	return nil
}
