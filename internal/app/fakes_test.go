package app

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/internal/outbox"
)

type fakeTxKey struct{}

// fakeStore is an in-memory store. Transactions are serialized by a single
// mutex and rolled back by restoring a snapshot.
type fakeStore struct {
	mu sync.Mutex

	events        map[string]bool
	ticketTypes   map[string]domain.TicketType
	tickets       map[string]domain.Ticket
	ticketOrder   []string
	reservations  map[string]domain.Reservation
	orders        map[string]domain.Order
	paymentEvents map[string]domain.PaymentEvent
	outbox        []outbox.Event
	codes         map[string]bool
	seq           int

	// claimConflicts makes the next n ClaimInventory calls report a stale
	// version.
	claimConflicts int
	claimCalls     int
	// statusErrs fails UpdateReservationStatus for a reservation id.
	statusErrs map[string]error
}

type fakeSnapshot struct {
	ticketTypes   map[string]domain.TicketType
	tickets       map[string]domain.Ticket
	ticketOrder   []string
	reservations  map[string]domain.Reservation
	orders        map[string]domain.Order
	paymentEvents map[string]domain.PaymentEvent
	outbox        []outbox.Event
	codes         map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:        map[string]bool{},
		ticketTypes:   map[string]domain.TicketType{},
		tickets:       map[string]domain.Ticket{},
		reservations:  map[string]domain.Reservation{},
		orders:        map[string]domain.Order{},
		paymentEvents: map[string]domain.PaymentEvent{},
		codes:         map[string]bool{},
		statusErrs:    map[string]error{},
	}
}

func (f *fakeStore) addTicketType(tt domain.TicketType) {
	f.events[tt.EventID] = true
	if tt.Version == 0 {
		tt.Version = 1
	}
	f.ticketTypes[tt.ID] = tt
}

func (f *fakeStore) guard(ctx context.Context) func() {
	if ctx.Value(fakeTxKey{}) != nil {
		return func() {}
	}
	f.mu.Lock()
	return f.mu.Unlock
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := fakeSnapshot{
		ticketTypes:   maps.Clone(f.ticketTypes),
		tickets:       maps.Clone(f.tickets),
		ticketOrder:   slices.Clone(f.ticketOrder),
		reservations:  maps.Clone(f.reservations),
		orders:        maps.Clone(f.orders),
		paymentEvents: maps.Clone(f.paymentEvents),
		outbox:        slices.Clone(f.outbox),
		codes:         maps.Clone(f.codes),
	}
	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		f.ticketTypes = snap.ticketTypes
		f.tickets = snap.tickets
		f.ticketOrder = snap.ticketOrder
		f.reservations = snap.reservations
		f.orders = snap.orders
		f.paymentEvents = snap.paymentEvents
		f.outbox = snap.outbox
		f.codes = snap.codes
		return err
	}
	return nil
}

func (f *fakeStore) Enqueue(ctx context.Context, e outbox.Event) error {
	defer f.guard(ctx)()
	f.seq++
	e.ID = int64(f.seq)
	f.outbox = append(f.outbox, e)
	return nil
}

func (f *fakeStore) outboxTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, e := range f.outbox {
		types = append(types, e.Type)
	}
	return types
}

func (f *fakeStore) GetTicketType(ctx context.Context, id string) (domain.TicketType, error) {
	defer f.guard(ctx)()
	tt, ok := f.ticketTypes[id]
	if !ok {
		return domain.TicketType{}, domain.ErrTicketTypeNotFound
	}
	return tt, nil
}

func (f *fakeStore) EventExists(ctx context.Context, eventID string) (bool, error) {
	defer f.guard(ctx)()
	return f.events[eventID], nil
}

func (f *fakeStore) ClaimInventory(ctx context.Context, ticketTypeID string, quantity int, observedVersion int64) error {
	defer f.guard(ctx)()
	f.claimCalls++
	if f.claimConflicts > 0 {
		f.claimConflicts--
		return domain.ErrVersionConflict
	}
	tt, ok := f.ticketTypes[ticketTypeID]
	if !ok || tt.Version != observedVersion || tt.ReservedCount+tt.SoldCount+quantity > tt.TotalCapacity {
		return domain.ErrVersionConflict
	}
	tt.ReservedCount += quantity
	tt.Version++
	f.ticketTypes[ticketTypeID] = tt
	return nil
}

func (f *fakeStore) ReleaseInventory(ctx context.Context, ticketTypeID string, quantity int) error {
	defer f.guard(ctx)()
	tt := f.ticketTypes[ticketTypeID]
	if tt.ReservedCount < quantity {
		return fmt.Errorf("release %d from %d reserved", quantity, tt.ReservedCount)
	}
	tt.ReservedCount -= quantity
	tt.Version++
	f.ticketTypes[ticketTypeID] = tt
	return nil
}

func (f *fakeStore) SellInventory(ctx context.Context, ticketTypeID string, quantity int) error {
	defer f.guard(ctx)()
	tt := f.ticketTypes[ticketTypeID]
	if tt.ReservedCount < quantity {
		return fmt.Errorf("sell %d from %d reserved", quantity, tt.ReservedCount)
	}
	tt.ReservedCount -= quantity
	tt.SoldCount += quantity
	tt.Version++
	f.ticketTypes[ticketTypeID] = tt
	return nil
}

func (f *fakeStore) CreateReservation(ctx context.Context, r domain.Reservation) error {
	defer f.guard(ctx)()
	f.reservations[r.ID] = r
	return nil
}

func (f *fakeStore) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	defer f.guard(ctx)()
	r, ok := f.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return r, nil
}

func (f *fakeStore) GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error) {
	return f.GetReservation(ctx, id)
}

func (f *fakeStore) UpdateReservationStatus(ctx context.Context, id string, from, to domain.ReservationStatus) error {
	defer f.guard(ctx)()
	if err := f.statusErrs[id]; err != nil {
		return err
	}
	r, ok := f.reservations[id]
	if !ok || r.Status != from {
		return domain.ErrReservationNotPending
	}
	r.Status = to
	f.reservations[id] = r
	return nil
}

func (f *fakeStore) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	defer f.guard(ctx)()
	var out []domain.Reservation
	for _, r := range f.reservations {
		if r.Status == domain.ReservationStatusPending && r.ExpiresAt.Before(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) LockClaimableTickets(ctx context.Context, ticketTypeID string, limit int) ([]domain.Ticket, error) {
	defer f.guard(ctx)()
	var out []domain.Ticket
	for _, id := range f.ticketOrder {
		t := f.tickets[id]
		if t.TicketTypeID == ticketTypeID && t.Status.Claimable() {
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CountTickets(ctx context.Context, ticketTypeID string) (int, error) {
	defer f.guard(ctx)()
	n := 0
	for _, t := range f.tickets {
		if t.TicketTypeID == ticketTypeID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) BindTickets(ctx context.Context, ticketIDs []string, hold domain.TicketHold) error {
	defer f.guard(ctx)()
	for _, id := range ticketIDs {
		f.tickets[id] = bindTicket(f.tickets[id], hold)
	}
	return nil
}

func (f *fakeStore) CreateReservedTickets(ctx context.Context, ticketTypeID string, n int, hold domain.TicketHold) ([]domain.Ticket, error) {
	defer f.guard(ctx)()
	var out []domain.Ticket
	for i := 0; i < n; i++ {
		f.seq++
		t := bindTicket(domain.Ticket{ID: fmt.Sprintf("ticket-%d", f.seq), TicketTypeID: ticketTypeID}, hold)
		f.tickets[t.ID] = t
		f.ticketOrder = append(f.ticketOrder, t.ID)
		out = append(out, t)
	}
	return out, nil
}

func bindTicket(t domain.Ticket, hold domain.TicketHold) domain.Ticket {
	reservedAt, reservedUntil := hold.ReservedAt, hold.ReservedUntil
	t.Status = domain.TicketStatusReserved
	t.ReservationID = hold.ReservationID
	t.PriceCents = hold.PriceCents
	t.ReservedAt = &reservedAt
	t.ReservedUntil = &reservedUntil
	return t
}

func (f *fakeStore) ListTicketsByReservation(ctx context.Context, reservationID string) ([]domain.Ticket, error) {
	defer f.guard(ctx)()
	var out []domain.Ticket
	for _, id := range f.ticketOrder {
		if t := f.tickets[id]; t.ReservationID == reservationID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ticketsByStatus(status domain.TicketStatus) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tickets {
		if t.Status == status {
			n++
		}
	}
	return n
}

func (f *fakeStore) ReleaseTickets(ctx context.Context, ticketIDs []string) error {
	defer f.guard(ctx)()
	for _, id := range ticketIDs {
		t := f.tickets[id]
		if t.Status != domain.TicketStatusReserved {
			continue
		}
		t.Status = domain.TicketStatusReleased
		t.ReservationID = ""
		t.ReservedAt = nil
		t.ReservedUntil = nil
		f.tickets[id] = t
	}
	return nil
}

func (f *fakeStore) SellTicket(ctx context.Context, ticketID, code string) error {
	defer f.guard(ctx)()
	if f.codes[code] {
		return domain.ErrTicketCodeTaken
	}
	t := f.tickets[ticketID]
	if t.Status != domain.TicketStatusReserved {
		return fmt.Errorf("ticket %s is not reserved", ticketID)
	}
	t.Status = domain.TicketStatusSold
	t.Code = code
	f.tickets[ticketID] = t
	f.codes[code] = true
	return nil
}

func (f *fakeStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	defer f.guard(ctx)()
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeStore) GetOrderForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return f.GetOrder(ctx, id)
}

func (f *fakeStore) FindOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	defer f.guard(ctx)()
	for _, o := range f.orders {
		if o.IdempotencyKey == key {
			return &o, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateOrder(ctx context.Context, order domain.Order) error {
	defer f.guard(ctx)()
	for _, o := range f.orders {
		if o.IdempotencyKey == order.IdempotencyKey {
			return domain.ErrDuplicateIdempotencyKey
		}
		if o.ReservationID == order.ReservationID {
			return domain.ErrOrderAlreadyExists
		}
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeStore) CompleteOrder(ctx context.Context, id, paymentID string, paidAt time.Time) error {
	defer f.guard(ctx)()
	o := f.orders[id]
	if o.Status != domain.OrderStatusPending {
		return domain.ErrOrderNotPending
	}
	o.Status = domain.OrderStatusCompleted
	o.PaymentID = paymentID
	o.PaidAt = &paidAt
	f.orders[id] = o
	return nil
}

func (f *fakeStore) FailOrder(ctx context.Context, id, reason string) error {
	defer f.guard(ctx)()
	o := f.orders[id]
	if o.Status != domain.OrderStatusPending {
		return domain.ErrOrderNotPending
	}
	o.Status = domain.OrderStatusFailed
	o.FailureReason = reason
	f.orders[id] = o
	return nil
}

func (f *fakeStore) PaymentEventExists(ctx context.Context, eventID string) (bool, error) {
	defer f.guard(ctx)()
	_, ok := f.paymentEvents[eventID]
	return ok, nil
}

func (f *fakeStore) CreatePaymentEvent(ctx context.Context, e domain.PaymentEvent) error {
	defer f.guard(ctx)()
	if _, ok := f.paymentEvents[e.EventID]; ok {
		return domain.ErrDuplicatePaymentEvent
	}
	f.paymentEvents[e.EventID] = e
	return nil
}

func (f *fakeStore) ticketType(id string) domain.TicketType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticketTypes[id]
}

func (f *fakeStore) reservation(id string) domain.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reservations[id]
}
