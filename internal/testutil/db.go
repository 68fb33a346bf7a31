package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testDBLockID int64 = 801234568

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// NewTestPool connects to TEST_DATABASE_URL, or to a throwaway Postgres
// container shared by the test binary. The test is skipped when neither is
// reachable.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		var err error
		dsn, err = containerURL()
		if err != nil {
			t.Skipf("skipping Postgres integration tests: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	cfg.MaxConns = 8

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skipping Postgres integration tests: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
	})

	lockTestDB(t, pool)

	return pool
}

func containerURL() (string, error) {
	containerOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		c, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("ticket_inventory"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(45*time.Second),
			),
		)
		if err != nil {
			containerErr = err
			return
		}
		containerDSN, containerErr = c.ConnectionString(ctx, "sslmode=disable")
	})
	return containerDSN, containerErr
}

func ApplyMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
}

func TruncateAll(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(ctx, `
TRUNCATE outbox, payment_events, orders, tickets, reservations, ticket_types, events RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

// InsertEventAndTicketType creates an event with one ticket type and
// returns both ids.
func InsertEventAndTicketType(t *testing.T, ctx context.Context, pool *pgxpool.Pool, capacity int, priceCents int64) (eventID, ticketTypeID string) {
	t.Helper()
	if err := pool.QueryRow(ctx,
		`INSERT INTO events (name, starts_at) VALUES ($1, NOW() + INTERVAL '30 days') RETURNING id`,
		"Concert",
	).Scan(&eventID); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO ticket_types (event_id, name, price_cents, total_capacity) VALUES ($1, $2, $3, $4) RETURNING id`,
		eventID, "General", priceCents, capacity,
	).Scan(&ticketTypeID); err != nil {
		t.Fatalf("insert ticket type: %v", err)
	}
	return
}

func InsertReservation(t *testing.T, ctx context.Context, pool *pgxpool.Pool, r domain.Reservation) {
	t.Helper()
	_, err := pool.Exec(ctx, `
INSERT INTO reservations (id, user_id, event_id, ticket_type_id, quantity, status, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.UserID, r.EventID, r.TicketTypeID, r.Quantity, r.Status, r.ExpiresAt,
	)
	if err != nil {
		t.Fatalf("insert reservation: %v", err)
	}
}

// TicketType reads a counter row directly.
func TicketType(t *testing.T, ctx context.Context, pool *pgxpool.Pool, id string) domain.TicketType {
	t.Helper()
	var tt domain.TicketType
	err := pool.QueryRow(ctx, `
SELECT id, event_id, name, price_cents, total_capacity, reserved_count, sold_count, version
FROM ticket_types WHERE id = $1`, id).
		Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.PriceCents, &tt.TotalCapacity, &tt.ReservedCount, &tt.SoldCount, &tt.Version)
	if err != nil {
		t.Fatalf("read ticket type: %v", err)
	}
	return tt
}

// CountTicketsByStatus returns how many units of a ticket type are in status.
func CountTicketsByStatus(t *testing.T, ctx context.Context, pool *pgxpool.Pool, ticketTypeID string, status domain.TicketStatus) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE ticket_type_id = $1 AND status = $2`,
		ticketTypeID, status,
	).Scan(&n); err != nil {
		t.Fatalf("count tickets: %v", err)
	}
	return n
}

func lockTestDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire lock conn: %v", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, testDBLockID); err != nil {
		conn.Release()
		t.Fatalf("acquire test lock: %v", err)
	}

	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, testDBLockID)
		conn.Release()
	})
}
