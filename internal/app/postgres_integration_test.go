package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cimillas/ticket-inventory/internal/app"
	"github.com/cimillas/ticket-inventory/internal/clock"
	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/internal/storage/postgres"
	"github.com/cimillas/ticket-inventory/internal/testutil"
	"go.uber.org/zap/zaptest"
)

func TestReservationLifecycle_Postgres(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	store := postgres.NewStore(pool)
	log := zaptest.NewLogger(t)

	t.Run("concurrent claims never oversell", func(t *testing.T) {
		const (
			capacity = 20
			callers  = 30
		)
		testutil.TruncateAll(t, ctx, pool)
		_, ttID := testutil.InsertEventAndTicketType(t, ctx, pool, capacity, 1500)
		// Every conflict means another claim committed, so a caller can
		// conflict at most capacity times before seeing the counter full.
		svc := app.NewReservationService(store, clock.NewSystem(), log, nil,
			app.WithClaimRetry(capacity+30, 0))

		var (
			wg           sync.WaitGroup
			succeeded    atomic.Int64
			insufficient atomic.Int64
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.CreateReservation(ctx, app.CreateReservationInput{TicketTypeID: ttID, UserID: "u", Quantity: 1})
				switch {
				case err == nil:
					succeeded.Add(1)
				case errors.Is(err, domain.ErrInsufficientInventory):
					insufficient.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if succeeded.Load() != capacity || insufficient.Load() != callers-capacity {
			t.Fatalf("expected %d reserved and %d rejected, got %d and %d",
				capacity, callers-capacity, succeeded.Load(), insufficient.Load())
		}
		tt := testutil.TicketType(t, ctx, pool, ttID)
		if tt.ReservedCount != capacity {
			t.Fatalf("expected reserved %d, got %+v", capacity, tt)
		}
		if got := testutil.CountTicketsByStatus(t, ctx, pool, ttID, domain.TicketStatusReserved); got != capacity {
			t.Fatalf("expected %d reserved units, got %d", capacity, got)
		}
	})

	t.Run("order paid through webhook sells the units", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		_, ttID := testutil.InsertEventAndTicketType(t, ctx, pool, 10, 2000)
		clk := clock.NewSystem()
		reservations := app.NewReservationService(store, clk, log, nil)
		orders := app.NewOrderService(store, clk, log, nil)
		webhooks := app.NewWebhookService(store, orders, clk, log, nil)

		res, err := reservations.CreateReservation(ctx, app.CreateReservationInput{TicketTypeID: ttID, UserID: "u1", Quantity: 3})
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		created, err := orders.CreateOrder(ctx, app.CreateOrderInput{ReservationID: res.ID, UserID: "u1", IdempotencyKey: "k1"})
		if err != nil {
			t.Fatalf("order: %v", err)
		}
		if created.Order.TotalCents != 6000 {
			t.Fatalf("expected total 6000, got %d", created.Order.TotalCents)
		}
		replay, err := orders.CreateOrder(ctx, app.CreateOrderInput{ReservationID: res.ID, UserID: "u1", IdempotencyKey: "k1"})
		if err != nil || replay.Created || replay.Order.ID != created.Order.ID {
			t.Fatalf("expected replay, got %+v %v", replay, err)
		}

		ev := app.WebhookEvent{EventID: "evt-1", OrderID: created.Order.ID, PaymentID: "pay-1", Status: "approved"}
		for i := 0; i < 2; i++ {
			if _, err := webhooks.ProcessWebhook(ctx, ev); err != nil {
				t.Fatalf("webhook %d: %v", i, err)
			}
		}

		tt := testutil.TicketType(t, ctx, pool, ttID)
		if tt.ReservedCount != 0 || tt.SoldCount != 3 {
			t.Fatalf("unexpected counter: %+v", tt)
		}
		if got := testutil.CountTicketsByStatus(t, ctx, pool, ttID, domain.TicketStatusSold); got != 3 {
			t.Fatalf("expected 3 sold units, got %d", got)
		}
	})

	t.Run("sweeper returns lapsed units", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		_, ttID := testutil.InsertEventAndTicketType(t, ctx, pool, 5, 1000)
		clk := clock.NewManual(time.Now().UTC())
		reservations := app.NewReservationService(store, clk, log, nil, app.WithReservationTTL(time.Minute))
		sweeper := app.NewSweeper(store, clk, log, nil)

		if _, err := reservations.CreateReservation(ctx, app.CreateReservationInput{TicketTypeID: ttID, UserID: "u", Quantity: 5}); err != nil {
			t.Fatalf("reserve: %v", err)
		}
		clk.Advance(2 * time.Minute)

		got, err := sweeper.Sweep(ctx)
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if got.Released != 1 {
			t.Fatalf("expected 1 released, got %+v", got)
		}
		if tt := testutil.TicketType(t, ctx, pool, ttID); tt.ReservedCount != 0 {
			t.Fatalf("expected reserved 0, got %d", tt.ReservedCount)
		}

		// Released units are claimed again without growing the pool.
		if _, err := reservations.CreateReservation(ctx, app.CreateReservationInput{TicketTypeID: ttID, UserID: "u2", Quantity: 5}); err != nil {
			t.Fatalf("re-reserve: %v", err)
		}
		if n, err := store.CountTickets(ctx, ttID); err != nil || n != 5 {
			t.Fatalf("expected 5 units total, got %d %v", n, err)
		}
	})
}
