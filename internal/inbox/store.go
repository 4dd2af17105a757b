package inbox

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quorum/internal/domain"
	"quorum/internal/events"
	"quorum/internal/metrics"
	"quorum/internal/repo"
)

// Store owns all task-record mutation. Records are addressed by id (plus
// recipient for status updates), never handed out as shared references.
type Store struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Logger *zap.Logger
	Now    func() time.Time
}

func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Logger: logger,
		Now:    time.Now,
	}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreateTask persists a new task record, assigning an id when absent. New
// records always start unread.
func (s *Store) CreateTask(ctx context.Context, t domain.TaskRecord) (domain.TaskRecord, error) {
	if t.RecipientID == "" {
		return t, domain.Validationf("recipient is required")
	}
	if t.SenderID == "" {
		return t, domain.Validationf("sender is required")
	}
	if t.OriginalText == "" {
		return t, domain.Validationf("original text is required")
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.ThreadID == "" {
		t.ThreadID = t.ID
	}
	t.Status = domain.TaskUnread
	t.ReadAt = nil
	t.CompletedAt = nil
	if t.CreatedAt == "" {
		t.CreatedAt = s.now().UTC().Format(time.RFC3339)
	}
	t.Priority = clamp(t.Priority, domain.PriorityMedium)
	t.Urgency = clamp(t.Urgency, domain.PriorityMedium)

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertTaskTx(ctx, tx, t); err != nil {
		return t, err
	}
	if err := s.Events.Append(ctx, tx, "task.created", "task", t.ID, t.SenderID, events.EventPayload{
		"recipient": t.RecipientID,
		"type":      t.Type,
		"priority":  t.Priority,
		"urgency":   t.Urgency,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	metrics.TasksCreated.WithLabelValues(t.Type).Inc()
	s.Logger.Info("task created",
		zap.String("task_id", t.ID),
		zap.String("recipient", t.RecipientID),
		zap.String("type", t.Type),
		zap.Int("priority", t.Priority),
		zap.Int("urgency", t.Urgency),
	)
	return t, nil
}

// UpdateStatus applies the monotonic lifecycle rules. Backward or repeated
// transitions are idempotent no-ops that return the unchanged record; the
// second of two racing completions observes a success, not an error.
//
// The record is read and written under one transaction, and the write is
// guarded by the status that was read, so racing updates to the same task
// serialize: the loser sees the winner's record instead of overwriting it.
func (s *Store) UpdateStatus(ctx context.Context, taskID, recipientID, newStatus string) (domain.TaskRecord, error) {
	if domain.TaskStatusRank(newStatus) < 0 && !domain.TerminalTaskStatus(newStatus) {
		return domain.TaskRecord{}, domain.Validationf("unknown task status %q", newStatus)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskRecord{}, err
	}
	defer tx.Rollback()
	t, err := s.Repo.GetTaskForRecipientTx(ctx, tx, taskID, recipientID)
	if err != nil {
		return t, err
	}
	if !transitionApplies(t.Status, newStatus) {
		return t, nil
	}
	prev := t.Status
	t.Status = newStatus
	nowStr := s.now().UTC().Format(time.RFC3339)
	// read_at and completed_at stamp exactly once, at the transition in.
	if newStatus == domain.TaskRead && t.ReadAt == nil {
		t.ReadAt = &nowStr
	}
	if newStatus == domain.TaskCompleted && t.CompletedAt == nil {
		t.CompletedAt = &nowStr
	}
	applied, err := s.Repo.UpdateTaskStatusTx(ctx, tx, t, prev)
	if err != nil {
		return t, err
	}
	if !applied {
		// a concurrent writer moved the record between our read and write;
		// observe its result as the idempotent no-op
		tx.Rollback()
		return s.Repo.GetTaskForRecipient(ctx, taskID, recipientID)
	}
	if err := s.Events.Append(ctx, tx, "task.status.updated", "task", t.ID, recipientID, events.EventPayload{
		"from": prev,
		"to":   newStatus,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	metrics.TaskTransitions.WithLabelValues(prev, newStatus).Inc()
	s.Logger.Info("task status updated",
		zap.String("task_id", t.ID),
		zap.String("recipient", recipientID),
		zap.String("from", prev),
		zap.String("to", newStatus),
	)
	return t, nil
}

// transitionApplies decides whether newStatus actually moves the record.
// Terminal records never move again; main-line moves must go forward.
func transitionApplies(current, newStatus string) bool {
	if current == newStatus {
		return false
	}
	if domain.TerminalTaskStatus(current) {
		return false
	}
	newRank := domain.TaskStatusRank(newStatus)
	if newRank < 0 {
		// side branch, reachable from any non-terminal state
		return true
	}
	return newRank > domain.TaskStatusRank(current)
}

func (s *Store) MarkRead(ctx context.Context, taskID, recipientID string) (domain.TaskRecord, error) {
	return s.UpdateStatus(ctx, taskID, recipientID, domain.TaskRead)
}

func (s *Store) MarkCompleted(ctx context.Context, taskID, recipientID string) (domain.TaskRecord, error) {
	return s.UpdateStatus(ctx, taskID, recipientID, domain.TaskCompleted)
}

func (s *Store) Get(ctx context.Context, taskID, recipientID string) (domain.TaskRecord, error) {
	return s.Repo.GetTaskForRecipient(ctx, taskID, recipientID)
}

// GetRanked returns the recipient's tasks in dashboard order: priority desc,
// urgency desc, newest first, insertion order on full ties.
func (s *Store) GetRanked(ctx context.Context, recipientID string) ([]domain.TaskRecord, error) {
	return s.Repo.ListTasksByRecipient(ctx, recipientID)
}

// CancelOpenForDecision transitions every still-open task of a decision to
// cancelled so no obligation is orphaned.
func (s *Store) CancelOpenForDecision(ctx context.Context, decisionID, actorID string) error {
	open, err := s.Repo.ListOpenTasksByDecision(ctx, decisionID)
	if err != nil {
		return err
	}
	for _, t := range open {
		if _, err := s.UpdateStatus(ctx, t.ID, t.RecipientID, domain.TaskCancelled); err != nil {
			s.Logger.Warn("cancel open task failed",
				zap.String("task_id", t.ID),
				zap.String("decision_id", decisionID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func clamp(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}
