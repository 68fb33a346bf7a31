package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestCache(t *testing.T, ttl time.Duration) *DedupCache {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rdb, err := NewClient(ctx, url)
	if err != nil {
		t.Skipf("skipping Redis tests: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return NewDedupCache(rdb, ttl)
}

func TestDedupCache_MarkThenSeen(t *testing.T) {
	cache := newTestCache(t, time.Minute)
	ctx := context.Background()
	id := "evt_" + uuid.NewString()

	seen, err := cache.Seen(ctx, id)
	if err != nil || seen {
		t.Fatalf("expected unseen, got %v %v", seen, err)
	}
	if err := cache.Mark(ctx, id); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := cache.Mark(ctx, id); err != nil {
		t.Fatalf("second mark: %v", err)
	}
	seen, err = cache.Seen(ctx, id)
	if err != nil || !seen {
		t.Fatalf("expected seen, got %v %v", seen, err)
	}
}

func TestDedupCache_EntriesExpire(t *testing.T) {
	cache := newTestCache(t, 50*time.Millisecond)
	ctx := context.Background()
	id := "evt_" + uuid.NewString()

	if err := cache.Mark(ctx, id); err != nil {
		t.Fatalf("mark: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	seen, err := cache.Seen(ctx, id)
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if seen {
		t.Fatal("expected entry to expire")
	}
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	if _, err := NewClient(context.Background(), "not a url"); err == nil {
		t.Fatal("expected parse error")
	}
}
