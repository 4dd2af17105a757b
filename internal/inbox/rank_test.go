package inbox_test

import (
	"testing"

	"quorum/internal/domain"
	"quorum/internal/inbox"
)

func rec(id, status, taskType string, urgency int, createdAt string) domain.TaskRecord {
	return domain.TaskRecord{
		ID:          id,
		RecipientID: "dana",
		SenderID:    "mary",
		Type:        taskType,
		Status:      status,
		Priority:    3,
		Urgency:     urgency,
		CreatedAt:   createdAt,
	}
}

func TestUrgentView(t *testing.T) {
	tasks := []domain.TaskRecord{
		rec("a", domain.TaskUnread, "request", 5, "2024-01-01T10:00:00Z"),
		rec("b", domain.TaskInProgress, "request", 4, "2024-01-01T09:00:00Z"),
		rec("r", domain.TaskRead, "request", 5, "2024-01-01T08:30:00Z"),
		rec("c", domain.TaskUnread, "request", 3, "2024-01-01T08:00:00Z"),
		rec("d", domain.TaskCompleted, "request", 5, "2024-01-01T07:00:00Z"),
	}
	got := inbox.Urgent(tasks)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("urgent = %+v", ids(got))
	}
}

func TestPendingDecisionsView(t *testing.T) {
	tasks := []domain.TaskRecord{
		rec("a", domain.TaskUnread, "request", 3, "2024-01-01T10:00:00Z"),
		rec("b", domain.TaskInProgress, "direct_order", 3, "2024-01-01T09:00:00Z"),
		rec("r", domain.TaskRead, "request", 3, "2024-01-01T08:30:00Z"),
		rec("c", domain.TaskUnread, "notification", 3, "2024-01-01T08:00:00Z"),
		rec("d", domain.TaskCancelled, "request", 3, "2024-01-01T07:00:00Z"),
	}
	got := inbox.PendingDecisions(tasks)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("pending = %+v", ids(got))
	}
}

func TestUnreadViewNewestFirstCapped(t *testing.T) {
	tasks := []domain.TaskRecord{
		rec("old", domain.TaskUnread, "request", 3, "2024-01-01T08:00:00Z"),
		rec("new", domain.TaskUnread, "request", 3, "2024-01-01T10:00:00Z"),
		rec("mid", domain.TaskUnread, "request", 3, "2024-01-01T09:00:00Z"),
		rec("read", domain.TaskRead, "request", 3, "2024-01-01T11:00:00Z"),
	}
	got := inbox.UnreadView(tasks, 2)
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "mid" {
		t.Fatalf("unread = %+v", ids(got))
	}
	all := inbox.UnreadView(tasks, 0)
	if len(all) != 3 {
		t.Fatalf("uncapped unread = %d, want 3", len(all))
	}
}

func TestSummarize(t *testing.T) {
	tasks := []domain.TaskRecord{
		rec("a", domain.TaskUnread, "request", 5, "2024-01-01T10:00:00Z"),
		rec("b", domain.TaskInProgress, "direct_order", 4, "2024-01-01T09:00:00Z"),
		rec("e", domain.TaskRead, "request", 5, "2024-01-01T08:30:00Z"),
		rec("c", domain.TaskUnread, "notification", 2, "2024-01-01T08:00:00Z"),
		rec("d", domain.TaskCompleted, "request", 5, "2024-01-01T07:00:00Z"),
	}
	s := inbox.Summarize(tasks)
	if s.Total != 5 {
		t.Fatalf("total = %d", s.Total)
	}
	if s.Unread != 2 {
		t.Fatalf("unread = %d", s.Unread)
	}
	if s.Urgent != 2 {
		t.Fatalf("urgent = %d", s.Urgent)
	}
	if s.PendingDecisions != 2 {
		t.Fatalf("pending = %d", s.PendingDecisions)
	}
	if len(s.RecentTasks) != 2 || s.RecentTasks[0].ID != "a" {
		t.Fatalf("recent = %+v", ids(s.RecentTasks))
	}
}

func ids(tasks []domain.TaskRecord) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
