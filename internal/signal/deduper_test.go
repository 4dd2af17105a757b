package signal_test

import (
	"context"
	"testing"
	"time"

	"quorum/internal/signal"
)

func TestMemoryOnce(t *testing.T) {
	ctx := context.Background()
	d := signal.NewMemoryOnce(time.Hour)
	if !d.AcquireOnce(ctx, "reminder", "task-1") {
		t.Fatalf("first acquire should win")
	}
	if d.AcquireOnce(ctx, "reminder", "task-1") {
		t.Fatalf("duplicate acquire should lose")
	}
	// scopes are independent
	if !d.AcquireOnce(ctx, "other", "task-1") {
		t.Fatalf("different scope should win")
	}
	if !d.AcquireOnce(ctx, "reminder", "task-2") {
		t.Fatalf("different id should win")
	}
}

func TestMemoryOnceExpires(t *testing.T) {
	ctx := context.Background()
	d := signal.NewMemoryOnce(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d.SetNow(func() time.Time { return now })
	if !d.AcquireOnce(ctx, "reminder", "task-1") {
		t.Fatalf("first acquire should win")
	}
	now = now.Add(30 * time.Second)
	if d.AcquireOnce(ctx, "reminder", "task-1") {
		t.Fatalf("acquire within ttl should lose")
	}
	now = now.Add(2 * time.Minute)
	if !d.AcquireOnce(ctx, "reminder", "task-1") {
		t.Fatalf("acquire after ttl should win again")
	}
}
