package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"quorum/internal/domain"
	"quorum/internal/metrics"
	"quorum/internal/repo"
	"quorum/internal/resolver"
	"quorum/internal/signal"
)

const (
	defaultReminderInterval = 30 * time.Second
	defaultReminderTimeout  = 5 * time.Second
)

// ReminderConfig wires the background escalation loop. Resolver supplies the
// category's escalation route so the reminder names who to chase next.
type ReminderConfig struct {
	URL      string
	Secret   string
	Interval time.Duration
	Repo     repo.Repo
	Resolver *resolver.Resolver
	Once     signal.Once
	Logger   *zap.Logger
	Now      func() time.Time
}

// reminderLoop watches for open tasks past their escalation timestamp and
// posts one reminder per task to the configured endpoint. Escalation is
// advisory: the task itself is never mutated.
type reminderLoop struct {
	cfg    ReminderConfig
	client *http.Client
}

// StartReminderLoop starts the loop unless no URL is configured. The loop
// stops when ctx is cancelled.
func StartReminderLoop(ctx context.Context, cfg ReminderConfig) {
	if strings.TrimSpace(cfg.URL) == "" {
		return
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultReminderInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Once == nil {
		cfg.Once = signal.NewMemoryOnce(24 * time.Hour)
	}
	l := &reminderLoop{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultReminderTimeout},
	}
	go l.run(ctx)
}

func (l *reminderLoop) run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()
	for {
		l.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (l *reminderLoop) sweep(ctx context.Context) {
	now := l.cfg.Now().UTC().Format(time.RFC3339)
	tasks, err := l.cfg.Repo.ListTasksPastEscalation(ctx, now)
	if err != nil {
		l.cfg.Logger.Warn("reminder sweep failed", zap.Error(err))
		return
	}
	for _, t := range tasks {
		if !l.cfg.Once.AcquireOnce(ctx, "reminder", t.ID) {
			continue
		}
		if err := l.postReminder(ctx, t); err != nil {
			l.cfg.Logger.Warn("reminder delivery failed",
				zap.String("task_id", t.ID),
				zap.String("recipient", t.RecipientID),
				zap.Error(err),
			)
			continue
		}
		metrics.RemindersSent.Inc()
		l.cfg.Logger.Info("reminder sent",
			zap.String("task_id", t.ID),
			zap.String("recipient", t.RecipientID),
		)
	}
}

type reminderPayload struct {
	TaskID       string `json:"task_id"`
	RecipientID  string `json:"recipient_id"`
	SenderID     string `json:"sender_id"`
	Type         string `json:"type"`
	Priority     int    `json:"priority"`
	Urgency      int    `json:"urgency"`
	Status       string `json:"status"`
	Text         string `json:"text"`
	EscalationAt string `json:"escalation_at"`
	DueAt        string `json:"due_at,omitempty"`
	EscalateTo   string `json:"escalate_to,omitempty"`
}

func (l *reminderLoop) postReminder(ctx context.Context, t domain.TaskRecord) error {
	body := reminderPayload{
		TaskID:      t.ID,
		RecipientID: t.RecipientID,
		SenderID:    t.SenderID,
		Type:        t.Type,
		Priority:    t.Priority,
		Urgency:     t.Urgency,
		Status:      t.Status,
		Text:        t.OriginalText,
	}
	if t.EscalationAt != nil {
		body.EscalationAt = *t.EscalationAt
	}
	if t.DueAt != nil {
		body.DueAt = *t.DueAt
	}
	if l.cfg.Resolver != nil {
		body.EscalateTo = l.cfg.Resolver.EscalationTarget(t.Context["category"])
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Quorum-Event", "task.escalation.reminder")
	req.Header.Set("X-Quorum-Delivery", t.ID)
	if strings.TrimSpace(l.cfg.Secret) != "" {
		req.Header.Set("X-Quorum-Secret", l.cfg.Secret)
	}
	res, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}
