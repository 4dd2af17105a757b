package inbox

import (
	"context"
	"sort"

	"quorum/internal/domain"
)

// Derived views over a recipient's task set. These are pure functions over
// an already-ranked slice so dashboards stay consistent across refreshes.

// pendingDecisionTypes are the task types that represent an open obligation
// to decide something.
var pendingDecisionTypes = map[string]bool{
	"request":      true,
	"direct_order": true,
}

// actionable is the status filter shared by the urgent and pending-decision
// views: only unread and in_progress tasks count. A task in read sits in
// neither view until the recipient picks it up.
func actionable(status string) bool {
	return status == domain.TaskUnread || status == domain.TaskInProgress
}

// Urgent keeps actionable tasks with urgency >= 4, preserving ranked order.
func Urgent(tasks []domain.TaskRecord) []domain.TaskRecord {
	var out []domain.TaskRecord
	for _, t := range tasks {
		if actionable(t.Status) && t.Urgency >= 4 {
			out = append(out, t)
		}
	}
	return out
}

// PendingDecisions keeps actionable request/direct_order tasks in ranked order.
func PendingDecisions(tasks []domain.TaskRecord) []domain.TaskRecord {
	var out []domain.TaskRecord
	for _, t := range tasks {
		if actionable(t.Status) && pendingDecisionTypes[t.Type] {
			out = append(out, t)
		}
	}
	return out
}

// UnreadView returns unread tasks most-recent-first, capped at limit when
// limit > 0.
func UnreadView(tasks []domain.TaskRecord, limit int) []domain.TaskRecord {
	var out []domain.TaskRecord
	for _, t := range tasks {
		if t.Status == domain.TaskUnread {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Summary is the dashboard counter block for one recipient.
type Summary struct {
	Total            int                 `json:"total"`
	Unread           int                 `json:"unread"`
	Urgent           int                 `json:"urgent"`
	PendingDecisions int                 `json:"pending_decisions"`
	RecentTasks      []domain.TaskRecord `json:"recent_tasks"`
}

const recentTasksCap = 5

// Summarize computes the dashboard counters from a ranked task set.
func Summarize(tasks []domain.TaskRecord) Summary {
	s := Summary{Total: len(tasks)}
	for _, t := range tasks {
		if t.Status == domain.TaskUnread {
			s.Unread++
		}
	}
	s.Urgent = len(Urgent(tasks))
	s.PendingDecisions = len(PendingDecisions(tasks))
	s.RecentTasks = UnreadView(tasks, recentTasksCap)
	return s
}

// DashboardSummary loads and summarizes one recipient's inbox.
func (s *Store) DashboardSummary(ctx context.Context, recipientID string) (Summary, error) {
	tasks, err := s.GetRanked(ctx, recipientID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(tasks), nil
}
