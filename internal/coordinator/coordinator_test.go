package coordinator_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"quorum/internal/compose"
	"quorum/internal/config"
	"quorum/internal/coordinator"
	"quorum/internal/db"
	"quorum/internal/directory"
	"quorum/internal/domain"
	"quorum/internal/inbox"
	"quorum/internal/migrate"
	"quorum/internal/resolver"
)

type testEnv struct {
	Coord *coordinator.Coordinator
	Inbox *inbox.Store
	Ctx   context.Context
	Dir   string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := openEnv(t, dir)
	return env
}

func openEnv(t *testing.T, dir string) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	d := directory.New(cfg)
	ib := inbox.New(conn, zap.NewNop())
	ib.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	coord := coordinator.New(conn, ib, resolver.New(cfg), compose.New(cfg, d, nil), zap.NewNop())
	coord.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	n := 0
	coord.NewID = func() string { n++; return fmt.Sprintf("dec-%d", n) }
	return testEnv{Coord: coord, Inbox: ib, Ctx: context.Background(), Dir: dir}
}

func TestStartFansOutOneTaskPerResponder(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Coord.Start(env.Ctx, "strategic", "mary", "Acquire DataCo for $2M")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if d.Status != domain.DecisionAwaitingResponses {
		t.Fatalf("status = %s, want awaiting_responses", d.Status)
	}
	want := []string{"john", "isac", "priya"}
	if len(d.Required) != len(want) {
		t.Fatalf("required = %v, want %v", d.Required, want)
	}
	for i, id := range want {
		if d.Required[i] != id {
			t.Fatalf("required[%d] = %s, want %s", i, d.Required[i], id)
		}
	}
	for _, id := range want {
		tasks, err := env.Inbox.GetRanked(env.Ctx, id)
		if err != nil {
			t.Fatalf("inbox %s: %v", id, err)
		}
		if len(tasks) != 1 {
			t.Fatalf("inbox %s has %d tasks, want 1", id, len(tasks))
		}
		task := tasks[0]
		if task.Status != domain.TaskUnread {
			t.Fatalf("task status = %s, want unread", task.Status)
		}
		if task.Type != "request" {
			t.Fatalf("task type = %s, want request", task.Type)
		}
		if task.DecisionID == nil || *task.DecisionID != d.ID {
			t.Fatalf("task decision_id = %v, want %s", task.DecisionID, d.ID)
		}
		if task.ThreadID != d.ID {
			t.Fatalf("task thread_id = %s, want %s", task.ThreadID, d.ID)
		}
	}
	// initiator never receives their own fan-out task
	tasks, _ := env.Inbox.GetRanked(env.Ctx, "mary")
	if len(tasks) != 0 {
		t.Fatalf("initiator inbox has %d tasks, want 0", len(tasks))
	}
}

func TestResponseFanInAndRuling(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Coord.Start(env.Ctx, "strategic", "mary", "Open a Berlin office")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.Coord.RecordResponse(env.Ctx, d.ID, "isac", "approve", "budget allows it"); err != nil {
		t.Fatalf("isac respond: %v", err)
	}
	if _, err := env.Coord.RecordResponse(env.Ctx, d.ID, "john", "approve", ""); err != nil {
		t.Fatalf("john respond: %v", err)
	}
	st, err := env.Coord.Status(env.Ctx, d.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != domain.DecisionAwaitingResponses {
		t.Fatalf("status = %s after 2/3 responses", st.Status)
	}
	if len(st.PendingResponders) != 1 || st.PendingResponders[0] != "priya" {
		t.Fatalf("pending = %v, want [priya]", st.PendingResponders)
	}
	if _, err := env.Coord.RecordResponse(env.Ctx, d.ID, "priya", "reject", "wrong timing"); err != nil {
		t.Fatalf("priya respond: %v", err)
	}
	st, _ = env.Coord.Status(env.Ctx, d.ID)
	if st.Status != domain.DecisionAwaitingRuling {
		t.Fatalf("status = %s after all responses, want awaiting_ruling", st.Status)
	}
	if !st.AwaitingRuling {
		t.Fatalf("awaiting_ruling flag not set")
	}
	if st.ReceivedCount != 3 || st.RequiredCount != 3 {
		t.Fatalf("counts = %d/%d, want 3/3", st.ReceivedCount, st.RequiredCount)
	}

	res, err := env.Coord.RecordRuling(env.Ctx, d.ID, "mary", "approved with a reduced budget")
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	if res.Status != domain.DecisionComplete {
		t.Fatalf("status = %s after ruling, want complete", res.Status)
	}
	if res.FinalRuling == nil || *res.FinalRuling != "approved with a reduced budget" {
		t.Fatalf("final ruling = %v", res.FinalRuling)
	}
	if res.RuledAt == nil {
		t.Fatalf("ruled_at not stamped")
	}
}

func TestResponseOrderDoesNotMatter(t *testing.T) {
	env := newTestEnv(t)
	orders := [][]string{
		{"john", "isac", "priya"},
		{"priya", "isac", "john"},
	}
	for _, order := range orders {
		d, err := env.Coord.Start(env.Ctx, "strategic", "mary", "Quarterly plan")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		for _, responder := range order {
			if _, err := env.Coord.RecordResponse(env.Ctx, d.ID, responder, "approve", ""); err != nil {
				t.Fatalf("respond %s: %v", responder, err)
			}
		}
		st, _ := env.Coord.Status(env.Ctx, d.ID)
		if st.Status != domain.DecisionAwaitingRuling {
			t.Fatalf("order %v: status = %s, want awaiting_ruling", order, st.Status)
		}
	}
}

func TestDuplicateResponseKeepsLatest(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Coord.Start(env.Ctx, "budget", "mary", "Raise the tooling budget")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.Coord.RecordResponse(env.Ctx, d.ID, "isac", "reject", "too expensive"); err != nil {
		t.Fatalf("first response: %v", err)
	}
	res, err := env.Coord.RecordResponse(env.Ctx, d.ID, "isac", "approve", "found the budget")
	if err != nil {
		t.Fatalf("second response: %v", err)
	}
	if len(res.Responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(res.Responses))
	}
	if res.Responses["isac"].Decision != "approve" {
		t.Fatalf("kept %q, want latest", res.Responses["isac"].Decision)
	}
}

func TestResponseConflicts(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Coord.Start(env.Ctx, "technical", "john", "Migrate to the new queue")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// required set for technical initiated by john is just dana
	var ce domain.ConflictError
	if _, err := env.Coord.RecordResponse(env.Ctx, d.ID, "priya", "approve", ""); !errors.As(err, &ce) {
		t.Fatalf("unknown responder: err = %v, want conflict", err)
	}
	st, _ := env.Coord.Status(env.Ctx, d.ID)
	if st.ReceivedCount != 0 {
		t.Fatalf("state changed by conflicting response")
	}

	if _, err := env.Coord.RecordResponse(env.Ctx, d.ID, "dana", "approve", ""); err != nil {
		t.Fatalf("dana respond: %v", err)
	}
	// decision moved to awaiting_ruling; a late re-response is a conflict
	if _, err := env.Coord.RecordResponse(env.Ctx, d.ID, "dana", "reject", ""); !errors.As(err, &ce) {
		t.Fatalf("late response: err = %v, want conflict", err)
	}
}

func TestRulingConflicts(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Coord.Start(env.Ctx, "budget", "mary", "New data platform line item")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	var ce domain.ConflictError
	if _, err := env.Coord.RecordRuling(env.Ctx, d.ID, "mary", "approved"); !errors.As(err, &ce) {
		t.Fatalf("premature ruling: err = %v, want conflict", err)
	}
	if _, err := env.Coord.RecordResponse(env.Ctx, d.ID, "isac", "approve", ""); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if _, err := env.Coord.RecordRuling(env.Ctx, d.ID, "mary", "approved"); err != nil {
		t.Fatalf("rule: %v", err)
	}
	if _, err := env.Coord.RecordRuling(env.Ctx, d.ID, "mary", "changed my mind"); !errors.As(err, &ce) {
		t.Fatalf("second ruling: err = %v, want conflict", err)
	}
	st, _ := env.Coord.Status(env.Ctx, d.ID)
	if st.FinalRuling == nil || *st.FinalRuling != "approved" {
		t.Fatalf("second ruling overwrote the first: %v", st.FinalRuling)
	}
}

func TestStartValidation(t *testing.T) {
	env := newTestEnv(t)
	var ve domain.ValidationError
	if _, err := env.Coord.Start(env.Ctx, "astrology", "mary", "Consult the stars"); !errors.As(err, &ve) {
		t.Fatalf("unknown category: err = %v, want validation error", err)
	}
	if _, err := env.Coord.Start(env.Ctx, "strategic", "mary", ""); !errors.As(err, &ve) {
		t.Fatalf("empty proposal: err = %v, want validation error", err)
	}
	if _, err := env.Coord.Start(env.Ctx, "strategic", "", "Proposal"); !errors.As(err, &ve) {
		t.Fatalf("empty initiator: err = %v, want validation error", err)
	}
}

func TestResponderTaskCompletedOnResponse(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Coord.Start(env.Ctx, "hiring", "mary", "Backfill the SRE role")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.Coord.RecordResponse(env.Ctx, d.ID, "john", "approve", ""); err != nil {
		t.Fatalf("respond: %v", err)
	}
	tasks, err := env.Inbox.GetRanked(env.Ctx, "john")
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Status != domain.TaskCompleted {
		t.Fatalf("responder task not completed: %+v", tasks)
	}
	if tasks[0].CompletedAt == nil {
		t.Fatalf("completed_at not stamped")
	}
	// priya has not responded yet, her task stays open
	open, _ := env.Inbox.GetRanked(env.Ctx, "priya")
	if len(open) != 1 || open[0].Status != domain.TaskUnread {
		t.Fatalf("unrelated task touched: %+v", open)
	}
}

func TestCancelCascadesToOpenTasks(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Coord.Start(env.Ctx, "strategic", "mary", "Shelve the expansion")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.Coord.RecordResponse(env.Ctx, d.ID, "john", "approve", ""); err != nil {
		t.Fatalf("respond: %v", err)
	}
	res, err := env.Coord.Cancel(env.Ctx, d.ID, "mary")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.Status != domain.DecisionCancelled {
		t.Fatalf("status = %s, want cancelled", res.Status)
	}
	for _, id := range []string{"isac", "priya"} {
		tasks, _ := env.Inbox.GetRanked(env.Ctx, id)
		if len(tasks) != 1 || tasks[0].Status != domain.TaskCancelled {
			t.Fatalf("%s task not cancelled: %+v", id, tasks)
		}
	}
	// john's task completed before the cancel; terminal states never move
	tasks, _ := env.Inbox.GetRanked(env.Ctx, "john")
	if tasks[0].Status != domain.TaskCompleted {
		t.Fatalf("completed task mutated by cancel: %s", tasks[0].Status)
	}
	var ce domain.ConflictError
	if _, err := env.Coord.Cancel(env.Ctx, d.ID, "mary"); !errors.As(err, &ce) {
		t.Fatalf("double cancel: err = %v, want conflict", err)
	}
}

func TestWaitAwaitingRuling(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Coord.Start(env.Ctx, "budget", "mary", "Approve the vendor contract")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(env.Ctx, 5*time.Second)
		defer cancel()
		done <- env.Coord.WaitAwaitingRuling(ctx, d.ID)
	}()
	// give the waiter a moment to park on the watch channel
	time.Sleep(20 * time.Millisecond)
	if _, err := env.Coord.RecordResponse(env.Ctx, d.ID, "isac", "approve", ""); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestWaitReturnsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Coord.Start(env.Ctx, "budget", "mary", "Another line item")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(env.Ctx, 5*time.Second)
		defer cancel()
		done <- env.Coord.WaitComplete(ctx, d.ID)
	}()
	time.Sleep(20 * time.Millisecond)
	if _, err := env.Coord.Cancel(env.Ctx, d.ID, "mary"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	var ce domain.ConflictError
	if err := <-done; !errors.As(err, &ce) {
		t.Fatalf("wait after cancel: err = %v, want conflict", err)
	}
}

func TestResumeAfterRestart(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Coord.Start(env.Ctx, "strategic", "mary", "Survive a restart")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.Coord.RecordResponse(env.Ctx, d.ID, "john", "approve", ""); err != nil {
		t.Fatalf("respond before restart: %v", err)
	}

	// a fresh coordinator over the same workspace picks up where we left off
	env2 := openEnv(t, env.Dir)
	if err := env2.Coord.Resume(env2.Ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	st, err := env2.Coord.Status(env2.Ctx, d.ID)
	if err != nil {
		t.Fatalf("status after restart: %v", err)
	}
	if st.Status != domain.DecisionAwaitingResponses || st.ReceivedCount != 1 {
		t.Fatalf("restart lost state: %+v", st)
	}
	if _, err := env2.Coord.RecordResponse(env2.Ctx, d.ID, "isac", "approve", ""); err != nil {
		t.Fatalf("respond after restart: %v", err)
	}
	if _, err := env2.Coord.RecordResponse(env2.Ctx, d.ID, "priya", "approve", ""); err != nil {
		t.Fatalf("respond after restart: %v", err)
	}
	if _, err := env2.Coord.RecordRuling(env2.Ctx, d.ID, "mary", "approved"); err != nil {
		t.Fatalf("rule after restart: %v", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Coord.Start(env.Ctx, "budget", "mary", "First")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.Coord.Start(env.Ctx, "budget", "mary", "Second"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.Coord.RecordResponse(env.Ctx, a.ID, "isac", "approve", ""); err != nil {
		t.Fatalf("respond: %v", err)
	}
	all, err := env.Coord.List(env.Ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("list = %d, want 2", len(all))
	}
	awaiting, err := env.Coord.List(env.Ctx, domain.DecisionAwaitingRuling)
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(awaiting) != 1 || awaiting[0].DecisionID != a.ID {
		t.Fatalf("filtered list = %+v", awaiting)
	}
}

func TestBusPublishesLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id, ch := env.Coord.Bus.Subscribe(16)
	defer env.Coord.Bus.Unsubscribe(id)
	d, err := env.Coord.Start(env.Ctx, "budget", "mary", "Watch the bus")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case n := <-ch:
		if n.Type != "decision.started" || n.DecisionID != d.ID {
			t.Fatalf("notification = %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatalf("no bus notification for start")
	}
}
