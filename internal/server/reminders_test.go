package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"quorum/internal/config"
	"quorum/internal/db"
	"quorum/internal/domain"
	"quorum/internal/migrate"
	"quorum/internal/repo"
	"quorum/internal/resolver"
	"quorum/internal/signal"
)

func TestReminderSweepDeliversOnce(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	ctx := context.Background()

	past := "2024-01-01T08:00:00Z"
	future := "2030-01-01T00:00:00Z"
	seed := func(id string, esc string) {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		defer tx.Rollback()
		e := esc
		if err := r.InsertTaskTx(ctx, tx, domain.TaskRecord{
			ID: id, SenderID: "mary", RecipientID: "john", Type: "request",
			Priority: 4, Urgency: 4, OriginalText: "overdue work", Status: domain.TaskUnread,
			CreatedAt: "2024-01-01T00:00:00Z", EscalationAt: &e,
			Context:   map[string]string{"category": "technical"},
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	seed("task-overdue", past)
	seed("task-future", future)

	var delivered atomic.Int32
	var lastPayload reminderPayload
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("X-Quorum-Event") != "task.escalation.reminder" {
			t.Errorf("missing event header")
		}
		if req.Header.Get("X-Quorum-Secret") != "s3cret" {
			t.Errorf("missing secret header")
		}
		_ = json.NewDecoder(req.Body).Decode(&lastPayload)
		delivered.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	l := &reminderLoop{
		cfg: ReminderConfig{
			URL:      hook.URL,
			Secret:   "s3cret",
			Repo:     r,
			Resolver: resolver.New(config.Default()),
			Once:     signal.NewMemoryOnce(time.Hour),
			Logger:   zap.NewNop(),
			Now:      func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
		},
		client: hook.Client(),
	}
	l.sweep(ctx)
	if got := delivered.Load(); got != 1 {
		t.Fatalf("delivered = %d, want 1", got)
	}
	if lastPayload.TaskID != "task-overdue" || lastPayload.RecipientID != "john" {
		t.Fatalf("payload = %+v", lastPayload)
	}
	if lastPayload.EscalateTo != "dana" {
		t.Fatalf("escalate_to = %q, want dana", lastPayload.EscalateTo)
	}

	// second sweep finds the same overdue task but the dedupe guard holds
	l.sweep(ctx)
	if got := delivered.Load(); got != 1 {
		t.Fatalf("delivered after second sweep = %d, want 1", got)
	}
}
