package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"quorum/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- decisions ---

func (r Repo) InsertDecisionTx(ctx context.Context, tx *sql.Tx, d domain.Decision) error {
	required, err := marshalStrings(d.Required)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO decisions(id,initiator_id,category,proposal,required_json,status,final_ruling,ruled_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.InitiatorID, d.Category, d.Proposal, required, d.Status, optional(d.FinalRuling), optional(d.RuledAt), d.CreatedAt, d.UpdatedAt)
	return err
}

func (r Repo) UpdateDecisionTx(ctx context.Context, tx *sql.Tx, d domain.Decision) error {
	res, err := tx.ExecContext(ctx, `UPDATE decisions SET status=?, final_ruling=?, ruled_at=?, updated_at=? WHERE id=?`,
		d.Status, optional(d.FinalRuling), optional(d.RuledAt), d.UpdatedAt, d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetDecision(ctx context.Context, id string) (domain.Decision, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,initiator_id,category,proposal,required_json,status,final_ruling,ruled_at,created_at,updated_at FROM decisions WHERE id=?`, id)
	d, err := scanDecision(row)
	if err != nil {
		return d, err
	}
	if d.Responses, err = r.responses(ctx, id); err != nil {
		return d, err
	}
	if d.DispatchErrors, err = r.dispatchErrors(ctx, id); err != nil {
		return d, err
	}
	return d, nil
}

type decisionScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row decisionScanner) (domain.Decision, error) {
	var d domain.Decision
	var required string
	var ruling, ruledAt sql.NullString
	err := row.Scan(&d.ID, &d.InitiatorID, &d.Category, &d.Proposal, &required, &d.Status, &ruling, &ruledAt, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if err := json.Unmarshal([]byte(required), &d.Required); err != nil {
		return d, fmt.Errorf("decision %s required set: %w", d.ID, err)
	}
	if ruling.Valid {
		d.FinalRuling = &ruling.String
	}
	if ruledAt.Valid {
		d.RuledAt = &ruledAt.String
	}
	return d, nil
}

func (r Repo) ListDecisions(ctx context.Context, status string) ([]domain.Decision, error) {
	query := `SELECT id,initiator_id,category,proposal,required_json,status,final_ruling,ruled_at,created_at,updated_at FROM decisions`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListActiveDecisions returns every instance that still waits for signals.
func (r Repo) ListActiveDecisions(ctx context.Context) ([]domain.Decision, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,initiator_id,category,proposal,required_json,status,final_ruling,ruled_at,created_at,updated_at
FROM decisions WHERE status NOT IN (?,?,?) ORDER BY created_at ASC`,
		domain.DecisionComplete, domain.DecisionCancelled, domain.DecisionFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Responses, err = r.responses(ctx, out[i].ID); err != nil {
			return nil, err
		}
		if out[i].DispatchErrors, err = r.dispatchErrors(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpsertResponseTx stores one responder's answer, keeping only the latest
// value on resubmission.
func (r Repo) UpsertResponseTx(ctx context.Context, tx *sql.Tx, decisionID string, resp domain.Response) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO responses(decision_id,responder_id,decision,reason,ts) VALUES (?,?,?,?,?)
ON CONFLICT(decision_id,responder_id) DO UPDATE SET decision=excluded.decision, reason=excluded.reason, ts=excluded.ts`,
		decisionID, resp.ResponderID, resp.Decision, nullable(resp.Reason), resp.TS)
	return err
}

func (r Repo) responses(ctx context.Context, decisionID string) (map[string]domain.Response, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT responder_id,decision,COALESCE(reason,''),ts FROM responses WHERE decision_id=?`, decisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]domain.Response{}
	for rows.Next() {
		var resp domain.Response
		if err := rows.Scan(&resp.ResponderID, &resp.Decision, &resp.Reason, &resp.TS); err != nil {
			return nil, err
		}
		out[resp.ResponderID] = resp
	}
	return out, rows.Err()
}

func (r Repo) InsertDispatchErrorTx(ctx context.Context, tx *sql.Tx, de domain.DispatchError) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO dispatch_errors(decision_id,recipient_id,error,ts) VALUES (?,?,?,?)
ON CONFLICT(decision_id,recipient_id) DO UPDATE SET error=excluded.error, ts=excluded.ts`,
		de.DecisionID, de.RecipientID, de.Error, de.TS)
	return err
}

func (r Repo) dispatchErrors(ctx context.Context, decisionID string) ([]domain.DispatchError, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT decision_id,recipient_id,error,ts FROM dispatch_errors WHERE decision_id=? ORDER BY ts ASC, recipient_id ASC`, decisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.DispatchError
	for rows.Next() {
		var de domain.DispatchError
		if err := rows.Scan(&de.DecisionID, &de.RecipientID, &de.Error, &de.TS); err != nil {
			return nil, err
		}
		out = append(out, de)
	}
	return out, rows.Err()
}

// --- tasks ---

const taskColumns = `id,decision_id,thread_id,sender_id,recipient_id,type,priority,urgency,mood,original_text,personalized_text,context_json,status,created_at,due_at,escalation_at,read_at,completed_at,related_json,factors_json`

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.TaskRecord) error {
	contextJSON, err := marshalStringMap(t.Context)
	if err != nil {
		return err
	}
	related, err := marshalStrings(t.RelatedEntities)
	if err != nil {
		return err
	}
	factors, err := marshalStrings(t.DecisionFactors)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, optional(t.DecisionID), nullable(t.ThreadID), t.SenderID, t.RecipientID, t.Type, t.Priority, t.Urgency,
		nullable(t.Mood), t.OriginalText, nullable(t.PersonalizedText), contextJSON, t.Status, t.CreatedAt,
		optional(t.DueAt), optional(t.EscalationAt), optional(t.ReadAt), optional(t.CompletedAt), related, factors)
	return err
}

// UpdateTaskStatusTx writes the record's status and stamps, guarded by the
// status the caller read. Zero rows means either the record is gone or a
// concurrent writer moved it first; the caller reloads to tell the two apart.
func (r Repo) UpdateTaskStatusTx(ctx context.Context, tx *sql.Tx, t domain.TaskRecord, prevStatus string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, read_at=?, completed_at=? WHERE id=? AND recipient_id=? AND status=?`,
		t.Status, optional(t.ReadAt), optional(t.CompletedAt), t.ID, t.RecipientID, prevStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.TaskRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row)
}

// GetTaskForRecipient scopes the lookup to id+recipient; a mismatch is NotFound.
func (r Repo) GetTaskForRecipient(ctx context.Context, id, recipientID string) (domain.TaskRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=? AND recipient_id=?`, id, recipientID)
	return scanTask(row)
}

// GetTaskForRecipientTx is GetTaskForRecipient inside a transaction, used so
// status updates read and write the record under the same tx.
func (r Repo) GetTaskForRecipientTx(ctx context.Context, tx *sql.Tx, id, recipientID string) (domain.TaskRecord, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=? AND recipient_id=?`, id, recipientID)
	return scanTask(row)
}

type taskScanner interface {
	Scan(dest ...any) error
}

func scanTask(row taskScanner) (domain.TaskRecord, error) {
	var t domain.TaskRecord
	var decisionID, threadID, mood, personalized, contextJSON sql.NullString
	var dueAt, escAt, readAt, completedAt, related, factors sql.NullString
	err := row.Scan(&t.ID, &decisionID, &threadID, &t.SenderID, &t.RecipientID, &t.Type, &t.Priority, &t.Urgency,
		&mood, &t.OriginalText, &personalized, &contextJSON, &t.Status, &t.CreatedAt,
		&dueAt, &escAt, &readAt, &completedAt, &related, &factors)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if decisionID.Valid {
		t.DecisionID = &decisionID.String
	}
	t.ThreadID = threadID.String
	t.Mood = mood.String
	t.PersonalizedText = personalized.String
	if contextJSON.Valid && contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &t.Context); err != nil {
			return t, fmt.Errorf("task %s context: %w", t.ID, err)
		}
	}
	t.DueAt = fromNull(dueAt)
	t.EscalationAt = fromNull(escAt)
	t.ReadAt = fromNull(readAt)
	t.CompletedAt = fromNull(completedAt)
	if related.Valid && related.String != "" {
		if err := json.Unmarshal([]byte(related.String), &t.RelatedEntities); err != nil {
			return t, fmt.Errorf("task %s related entities: %w", t.ID, err)
		}
	}
	if factors.Valid && factors.String != "" {
		if err := json.Unmarshal([]byte(factors.String), &t.DecisionFactors); err != nil {
			return t, fmt.Errorf("task %s decision factors: %w", t.ID, err)
		}
	}
	return t, nil
}

// ListTasksByRecipient returns a recipient's tasks ranked by priority then
// urgency then recency. The rowid tiebreak keeps the order stable across
// calls when everything else is equal.
func (r Repo) ListTasksByRecipient(ctx context.Context, recipientID string) ([]domain.TaskRecord, error) {
	return r.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE recipient_id=?
ORDER BY priority DESC, urgency DESC, created_at DESC, rowid ASC`, recipientID)
}

func (r Repo) ListOpenTasksByDecision(ctx context.Context, decisionID string) ([]domain.TaskRecord, error) {
	return r.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE decision_id=? AND status IN (?,?,?) ORDER BY rowid ASC`,
		decisionID, domain.TaskUnread, domain.TaskRead, domain.TaskInProgress)
}

// ListTasksPastEscalation finds open tasks whose advisory escalation
// timestamp has passed.
func (r Repo) ListTasksPastEscalation(ctx context.Context, now string) ([]domain.TaskRecord, error) {
	return r.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE escalation_at IS NOT NULL AND escalation_at<=? AND status IN (?,?,?) ORDER BY escalation_at ASC`,
		now, domain.TaskUnread, domain.TaskRead, domain.TaskInProgress)
}

func (r Repo) queryTasks(ctx context.Context, query string, args ...any) ([]domain.TaskRecord, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.TaskRecord
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- events ---

func (r Repo) ListEvents(ctx context.Context, afterID int64, limit int) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if afterID > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, afterID)
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- helpers ---

func marshalStrings(in []string) (string, error) {
	if in == nil {
		in = []string{}
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func marshalStringMap(in map[string]string) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func optional(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
