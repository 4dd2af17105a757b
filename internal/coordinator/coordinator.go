package coordinator

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quorum/internal/compose"
	"quorum/internal/domain"
	"quorum/internal/events"
	"quorum/internal/inbox"
	"quorum/internal/metrics"
	"quorum/internal/repo"
	"quorum/internal/resolver"
)

// Coordinator drives decision instances end to end: fan-out of task
// obligations to required responders, fan-in of their responses, then the
// authority's final ruling. Each instance is a single logical thread of
// control; signal delivery is serialized per instance and waiters suspend
// on a notify channel, never polling.
type Coordinator struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Inbox    *inbox.Store
	Resolver *resolver.Resolver
	Composer *compose.Composer
	Bus      *Bus
	Logger   *zap.Logger
	Now      func() time.Time
	NewID    func() string

	mu        sync.Mutex
	instances map[string]*instance
}

// instance serializes signals for one decision and carries the watch
// channel waiters block on. The channel is closed and replaced under the
// lock on every state change, so the response map is always committed
// before any waiter re-evaluates its predicate.
type instance struct {
	mu    sync.Mutex
	watch chan struct{}
}

const (
	dispatchAttempts = 3
	dispatchBackoff  = 50 * time.Millisecond
)

func New(db *sql.DB, ib *inbox.Store, res *resolver.Resolver, comp *compose.Composer, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Inbox:     ib,
		Resolver:  res,
		Composer:  comp,
		Bus:       NewBus(),
		Logger:    logger,
		Now:       time.Now,
		NewID:     func() string { return uuid.New().String() },
		instances: make(map[string]*instance),
	}
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Coordinator) instance(id string) *instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.instances[id]
	if !ok {
		inst = &instance{watch: make(chan struct{})}
		c.instances[id] = inst
	}
	return inst
}

func (c *Coordinator) retire(id string) {
	c.mu.Lock()
	delete(c.instances, id)
	c.mu.Unlock()
}

// notify wakes every waiter on inst. Callers hold inst.mu and have already
// committed the state change.
func (inst *instance) notify() {
	close(inst.watch)
	inst.watch = make(chan struct{})
}

// Start validates the proposal, resolves the required responders, fans out
// one task per responder and leaves the instance awaiting responses.
// Dispatch failures are recorded per recipient and never abort the
// remaining fan-out; the instance fails only when no responder could be
// reached at all.
func (c *Coordinator) Start(ctx context.Context, category, initiatorID, proposal string) (domain.Decision, error) {
	if proposal == "" {
		return domain.Decision{}, domain.Validationf("proposal is required")
	}
	if initiatorID == "" {
		return domain.Decision{}, domain.Validationf("initiator is required")
	}
	if !c.Resolver.Known(category) {
		return domain.Decision{}, domain.Validationf("unknown category %q", category)
	}
	required := c.Resolver.Required(category, initiatorID)
	if len(required) == 0 {
		return domain.Decision{}, domain.Validationf("category %q has no responders besides the initiator", category)
	}

	now := c.now().UTC().Format(time.RFC3339)
	d := domain.Decision{
		ID:          c.NewID(),
		InitiatorID: initiatorID,
		Category:    category,
		Proposal:    proposal,
		Required:    required,
		Responses:   map[string]domain.Response{},
		Status:      domain.DecisionCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := c.Repo.InsertDecisionTx(ctx, tx, d); err != nil {
		return d, err
	}
	if err := c.Events.Append(ctx, tx, "decision.started", "decision", d.ID, initiatorID, events.EventPayload{
		"category": category,
		"required": required,
	}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	metrics.DecisionsStarted.WithLabelValues(category).Inc()
	c.Logger.Info("decision started",
		zap.String("decision_id", d.ID),
		zap.String("category", category),
		zap.String("initiator", initiatorID),
		zap.Strings("required", required),
	)

	inst := c.instance(d.ID)
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if err := c.setStatus(ctx, &d, domain.DecisionDispatching, initiatorID); err != nil {
		return d, err
	}
	failed := c.dispatch(ctx, &d)

	next := domain.DecisionAwaitingResponses
	if failed == len(required) {
		next = domain.DecisionFailed
	}
	if err := c.setStatus(ctx, &d, next, initiatorID); err != nil {
		return d, err
	}
	if next == domain.DecisionFailed {
		metrics.DecisionsCompleted.WithLabelValues(domain.DecisionFailed).Inc()
		c.Logger.Error("decision dispatch failed for every responder", zap.String("decision_id", d.ID))
	}
	inst.notify()
	c.Bus.PublishNew("decision.started", d.ID, map[string]string{"category": category, "status": d.Status})
	d.DispatchErrors, _ = c.dispatchErrorsFor(ctx, d.ID)
	return d, nil
}

// dispatch composes and creates one task per required responder, retrying
// transient store failures with doubling backoff. Returns the number of
// responders whose dispatch exhausted its retries.
func (c *Coordinator) dispatch(ctx context.Context, d *domain.Decision) int {
	failed := 0
	for _, responderID := range d.Required {
		req := c.Composer.Compose(d.Category, d.InitiatorID, responderID, d.Proposal, 0)
		req.DecisionID = &d.ID
		req.ThreadID = d.ID
		if err := c.createWithRetry(ctx, req); err != nil {
			failed++
			c.recordDispatchError(ctx, d.ID, responderID, err)
		}
	}
	return failed
}

func (c *Coordinator) createWithRetry(ctx context.Context, req domain.TaskRecord) error {
	var err error
	backoff := dispatchBackoff
	for attempt := 0; attempt < dispatchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if _, err = c.Inbox.CreateTask(ctx, req); err == nil {
			return nil
		}
		var ve domain.ValidationError
		if errors.As(err, &ve) {
			return err
		}
	}
	return err
}

// recordDispatchError makes the failure visible in Status() so an operator
// can notify the responder out of band. The decision keeps waiting.
func (c *Coordinator) recordDispatchError(ctx context.Context, decisionID, recipientID string, cause error) {
	metrics.DispatchFailures.Inc()
	c.Logger.Error("task dispatch failed",
		zap.String("decision_id", decisionID),
		zap.String("recipient", recipientID),
		zap.Error(cause),
	)
	de := domain.DispatchError{
		DecisionID:  decisionID,
		RecipientID: recipientID,
		Error:       cause.Error(),
		TS:          c.now().UTC().Format(time.RFC3339),
	}
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		c.Logger.Error("record dispatch error", zap.Error(err))
		return
	}
	defer tx.Rollback()
	if err := c.Repo.InsertDispatchErrorTx(ctx, tx, de); err != nil {
		c.Logger.Error("record dispatch error", zap.Error(err))
		return
	}
	if err := c.Events.Append(ctx, tx, "decision.dispatch.failed", "decision", decisionID, recipientID, events.EventPayload{
		"recipient": recipientID,
		"error":     cause.Error(),
	}); err != nil {
		c.Logger.Error("record dispatch error", zap.Error(err))
		return
	}
	if err := tx.Commit(); err != nil {
		c.Logger.Error("record dispatch error", zap.Error(err))
	}
}

func (c *Coordinator) setStatus(ctx context.Context, d *domain.Decision, status, actorID string) error {
	d.Status = status
	d.UpdatedAt = c.now().UTC().Format(time.RFC3339)
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := c.Repo.UpdateDecisionTx(ctx, tx, *d); err != nil {
		return err
	}
	if err := c.Events.Append(ctx, tx, "decision.status", "decision", d.ID, actorID, events.EventPayload{"status": status}); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordResponse stores one responder's answer. Resubmission by the same
// responder keeps only the latest value. A response from outside the
// required set, or after the instance left awaiting_responses, is a
// conflict: logged, ignored, state unchanged. When the response set becomes
// exactly the required set the instance moves to awaiting_ruling.
func (c *Coordinator) RecordResponse(ctx context.Context, decisionID, responderID, decisionText, reason string) (domain.Decision, error) {
	if responderID == "" || decisionText == "" {
		return domain.Decision{}, domain.Validationf("responder and decision are required")
	}
	inst := c.instance(decisionID)
	inst.mu.Lock()
	defer inst.mu.Unlock()

	d, err := c.Repo.GetDecision(ctx, decisionID)
	if err != nil {
		return d, err
	}
	if d.Status == domain.DecisionAwaitingRuling || d.Status == domain.DecisionComplete ||
		d.Status == domain.DecisionCancelled || d.Status == domain.DecisionFailed {
		metrics.ConflictSignals.WithLabelValues("late_response").Inc()
		c.Logger.Warn("response ignored: decision no longer accepts responses",
			zap.String("decision_id", decisionID),
			zap.String("responder", responderID),
			zap.String("status", d.Status),
		)
		return d, domain.Conflictf("decision %s is %s", decisionID, d.Status)
	}
	if !contains(d.Required, responderID) {
		metrics.ConflictSignals.WithLabelValues("unknown_responder").Inc()
		c.Logger.Warn("response ignored: responder not in required set",
			zap.String("decision_id", decisionID),
			zap.String("responder", responderID),
		)
		return d, domain.Conflictf("responder %s not required for decision %s", responderID, decisionID)
	}

	resp := domain.Response{
		ResponderID: responderID,
		Decision:    decisionText,
		Reason:      reason,
		TS:          c.now().UTC().Format(time.RFC3339),
	}
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := c.Repo.UpsertResponseTx(ctx, tx, decisionID, resp); err != nil {
		return d, err
	}
	if err := c.Events.Append(ctx, tx, "decision.response.recorded", "decision", decisionID, responderID, events.EventPayload{
		"decision": decisionText,
	}); err != nil {
		return d, err
	}

	// Update the response map before evaluating the wait predicate.
	if d.Responses == nil {
		d.Responses = map[string]domain.Response{}
	}
	d.Responses[responderID] = resp
	allIn := len(d.Pending()) == 0
	if allIn {
		d.Status = domain.DecisionAwaitingRuling
		d.UpdatedAt = c.now().UTC().Format(time.RFC3339)
		if err := c.Repo.UpdateDecisionTx(ctx, tx, d); err != nil {
			return d, err
		}
		if err := c.Events.Append(ctx, tx, "decision.awaiting_ruling", "decision", decisionID, responderID, nil); err != nil {
			return d, err
		}
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	metrics.ResponsesRecorded.Inc()
	c.Logger.Info("response recorded",
		zap.String("decision_id", decisionID),
		zap.String("responder", responderID),
		zap.Bool("awaiting_ruling", allIn),
	)
	c.completeResponderTask(ctx, decisionID, responderID)
	inst.notify()
	c.Bus.PublishNew("decision.response.recorded", decisionID, map[string]string{"responder": responderID, "status": d.Status})
	return d, nil
}

// completeResponderTask closes the responder's fan-out obligation once their
// answer is in. Best effort; the response is already durable.
func (c *Coordinator) completeResponderTask(ctx context.Context, decisionID, responderID string) {
	open, err := c.Repo.ListOpenTasksByDecision(ctx, decisionID)
	if err != nil {
		c.Logger.Warn("list open decision tasks", zap.String("decision_id", decisionID), zap.Error(err))
		return
	}
	for _, t := range open {
		if t.RecipientID != responderID {
			continue
		}
		if _, err := c.Inbox.MarkCompleted(ctx, t.ID, responderID); err != nil {
			c.Logger.Warn("complete responder task",
				zap.String("task_id", t.ID),
				zap.String("responder", responderID),
				zap.Error(err),
			)
		}
	}
}

// RecordRuling stores the authority's final ruling. Valid only while the
// instance awaits a ruling; a second ruling is a conflict.
func (c *Coordinator) RecordRuling(ctx context.Context, decisionID, actorID, rulingText string) (domain.Decision, error) {
	if rulingText == "" {
		return domain.Decision{}, domain.Validationf("ruling text is required")
	}
	inst := c.instance(decisionID)
	inst.mu.Lock()
	defer inst.mu.Unlock()

	d, err := c.Repo.GetDecision(ctx, decisionID)
	if err != nil {
		return d, err
	}
	if d.Status != domain.DecisionAwaitingRuling {
		metrics.ConflictSignals.WithLabelValues("premature_or_second_ruling").Inc()
		c.Logger.Warn("ruling ignored",
			zap.String("decision_id", decisionID),
			zap.String("status", d.Status),
		)
		return d, domain.Conflictf("decision %s is %s, not awaiting a ruling", decisionID, d.Status)
	}
	now := c.now().UTC().Format(time.RFC3339)
	d.FinalRuling = &rulingText
	d.RuledAt = &now
	d.Status = domain.DecisionComplete
	d.UpdatedAt = now
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := c.Repo.UpdateDecisionTx(ctx, tx, d); err != nil {
		return d, err
	}
	if err := c.Events.Append(ctx, tx, "decision.ruled", "decision", decisionID, actorID, events.EventPayload{
		"ruling": rulingText,
	}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	metrics.DecisionsCompleted.WithLabelValues(domain.DecisionComplete).Inc()
	c.Logger.Info("decision ruled",
		zap.String("decision_id", decisionID),
		zap.String("actor", actorID),
	)
	inst.notify()
	c.Bus.PublishNew("decision.ruled", decisionID, map[string]string{"ruling": rulingText})
	c.retire(decisionID)
	return d, nil
}

// Cancel aborts an instance before completion and cancels its still-open
// tasks so no obligation is orphaned.
func (c *Coordinator) Cancel(ctx context.Context, decisionID, actorID string) (domain.Decision, error) {
	inst := c.instance(decisionID)
	inst.mu.Lock()
	defer inst.mu.Unlock()

	d, err := c.Repo.GetDecision(ctx, decisionID)
	if err != nil {
		return d, err
	}
	if d.Status == domain.DecisionComplete || d.Status == domain.DecisionCancelled {
		return d, domain.Conflictf("decision %s already %s", decisionID, d.Status)
	}
	d.Status = domain.DecisionCancelled
	d.UpdatedAt = c.now().UTC().Format(time.RFC3339)
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := c.Repo.UpdateDecisionTx(ctx, tx, d); err != nil {
		return d, err
	}
	if err := c.Events.Append(ctx, tx, "decision.cancelled", "decision", decisionID, actorID, nil); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	if err := c.Inbox.CancelOpenForDecision(ctx, decisionID, actorID); err != nil {
		c.Logger.Warn("cancel open tasks", zap.String("decision_id", decisionID), zap.Error(err))
	}
	metrics.DecisionsCompleted.WithLabelValues(domain.DecisionCancelled).Inc()
	c.Logger.Info("decision cancelled",
		zap.String("decision_id", decisionID),
		zap.String("actor", actorID),
	)
	inst.notify()
	c.Bus.PublishNew("decision.cancelled", decisionID, nil)
	c.retire(decisionID)
	return d, nil
}

// Status is the point-in-time view of one instance. Non-mutating and safe
// to call in any state, including after completion.
type Status struct {
	DecisionID        string                     `json:"decision_id"`
	Category          string                     `json:"category"`
	InitiatorID       string                     `json:"initiator_id"`
	Proposal          string                     `json:"proposal"`
	Status            string                     `json:"status"`
	RequiredCount     int                        `json:"required_count"`
	ReceivedCount     int                        `json:"received_count"`
	PendingResponders []string                   `json:"pending_responders"`
	Responses         map[string]domain.Response `json:"responses"`
	AwaitingRuling    bool                       `json:"awaiting_ruling"`
	FinalRuling       *string                    `json:"final_ruling,omitempty"`
	DispatchErrors    []domain.DispatchError     `json:"dispatch_errors,omitempty"`
}

func (c *Coordinator) Status(ctx context.Context, decisionID string) (Status, error) {
	d, err := c.Repo.GetDecision(ctx, decisionID)
	if err != nil {
		return Status{}, err
	}
	return statusOf(d), nil
}

func statusOf(d domain.Decision) Status {
	pending := d.Pending()
	if pending == nil {
		pending = []string{}
	}
	responses := d.Responses
	if responses == nil {
		responses = map[string]domain.Response{}
	}
	return Status{
		DecisionID:        d.ID,
		Category:          d.Category,
		InitiatorID:       d.InitiatorID,
		Proposal:          d.Proposal,
		Status:            d.Status,
		RequiredCount:     len(d.Required),
		ReceivedCount:     len(responses),
		PendingResponders: pending,
		Responses:         responses,
		AwaitingRuling:    d.AwaitingRuling(),
		FinalRuling:       d.FinalRuling,
		DispatchErrors:    d.DispatchErrors,
	}
}

// WaitAwaitingRuling blocks until every required response is in (or the
// instance terminates). Waiters suspend on the instance watch channel and
// re-evaluate the predicate after each signal.
func (c *Coordinator) WaitAwaitingRuling(ctx context.Context, decisionID string) error {
	return c.waitFor(ctx, decisionID, func(status string) bool {
		return status == domain.DecisionAwaitingRuling || status == domain.DecisionComplete
	})
}

// WaitComplete blocks until the final ruling is recorded or the instance
// terminates without one.
func (c *Coordinator) WaitComplete(ctx context.Context, decisionID string) error {
	return c.waitFor(ctx, decisionID, func(status string) bool {
		return status == domain.DecisionComplete
	})
}

func (c *Coordinator) waitFor(ctx context.Context, decisionID string, done func(status string) bool) error {
	for {
		inst := c.instance(decisionID)
		inst.mu.Lock()
		d, err := c.Repo.GetDecision(ctx, decisionID)
		watch := inst.watch
		inst.mu.Unlock()
		if err != nil {
			return err
		}
		if done(d.Status) {
			return nil
		}
		if d.Status == domain.DecisionCancelled || d.Status == domain.DecisionFailed {
			return domain.Conflictf("decision %s is %s", decisionID, d.Status)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-watch:
		}
	}
}

// Resume re-registers every non-terminal instance after a restart so
// waiting decisions pick up at their exact suspension point.
func (c *Coordinator) Resume(ctx context.Context) error {
	active, err := c.Repo.ListActiveDecisions(ctx)
	if err != nil {
		return err
	}
	for _, d := range active {
		c.instance(d.ID)
		c.Logger.Info("decision resumed",
			zap.String("decision_id", d.ID),
			zap.String("status", d.Status),
			zap.Int("received", len(d.Responses)),
			zap.Int("required", len(d.Required)),
		)
	}
	return nil
}

// List returns decision status views, newest first.
func (c *Coordinator) List(ctx context.Context, statusFilter string) ([]Status, error) {
	decisions, err := c.Repo.ListDecisions(ctx, statusFilter)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(decisions))
	for _, d := range decisions {
		full, err := c.Repo.GetDecision(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, statusOf(full))
	}
	return out, nil
}

func (c *Coordinator) dispatchErrorsFor(ctx context.Context, decisionID string) ([]domain.DispatchError, error) {
	d, err := c.Repo.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	return d.DispatchErrors, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
