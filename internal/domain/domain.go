package domain

// Decision statuses.
const (
	DecisionCreated           = "created"
	DecisionDispatching       = "dispatching"
	DecisionAwaitingResponses = "awaiting_responses"
	DecisionAwaitingRuling    = "awaiting_ruling"
	DecisionComplete          = "complete"
	DecisionCancelled         = "cancelled"
	DecisionFailed            = "failed"
)

// Task statuses. The main lifecycle is unread -> read -> in_progress -> completed;
// delegated, deferred and cancelled are terminal side branches.
const (
	TaskUnread     = "unread"
	TaskRead       = "read"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskDelegated  = "delegated"
	TaskDeferred   = "deferred"
	TaskCancelled  = "cancelled"
)

// Priority and urgency share the same 1-5 ordinal scale.
const (
	PriorityTrivial = 1
	PriorityLow     = 2
	PriorityMedium  = 3
	PriorityHigh    = 4
	PriorityUrgent  = 5
)

type Decision struct {
	ID             string              `json:"id"`
	InitiatorID    string              `json:"initiator_id"`
	Category       string              `json:"category"`
	Proposal       string              `json:"proposal"`
	Required       []string            `json:"required"`
	Responses      map[string]Response `json:"responses,omitempty"`
	Status         string              `json:"status" enum:"created,dispatching,awaiting_responses,awaiting_ruling,complete,cancelled,failed"`
	FinalRuling    *string             `json:"final_ruling,omitempty"`
	RuledAt        *string             `json:"ruled_at,omitempty" format:"date-time"`
	DispatchErrors []DispatchError     `json:"dispatch_errors,omitempty"`
	CreatedAt      string              `json:"created_at" format:"date-time"`
	UpdatedAt      string              `json:"updated_at" format:"date-time"`
}

// Pending returns required responders that have not responded yet, in
// required order. Required order is fixed at resolution time.
func (d Decision) Pending() []string {
	var out []string
	for _, id := range d.Required {
		if _, ok := d.Responses[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// AwaitingRuling is true iff every required response is in and no ruling
// has been recorded.
func (d Decision) AwaitingRuling() bool {
	return len(d.Pending()) == 0 && len(d.Required) > 0 && d.FinalRuling == nil &&
		d.Status != DecisionCancelled && d.Status != DecisionFailed
}

type Response struct {
	ResponderID string `json:"responder_id"`
	Decision    string `json:"decision"`
	Reason      string `json:"reason,omitempty"`
	TS          string `json:"ts" format:"date-time"`
}

// DispatchError records a fan-out failure for one recipient after retries
// were exhausted. It never aborts the decision; operators act on it out of band.
type DispatchError struct {
	DecisionID  string `json:"decision_id"`
	RecipientID string `json:"recipient_id"`
	Error       string `json:"error"`
	TS          string `json:"ts" format:"date-time"`
}

type TaskRecord struct {
	ID               string            `json:"id"`
	DecisionID       *string           `json:"decision_id,omitempty"`
	ThreadID         string            `json:"thread_id,omitempty"`
	SenderID         string            `json:"sender_id"`
	RecipientID      string            `json:"recipient_id"`
	Type             string            `json:"type"`
	Priority         int               `json:"priority" minimum:"1" maximum:"5"`
	Urgency          int               `json:"urgency" minimum:"1" maximum:"5"`
	Mood             string            `json:"mood,omitempty"`
	OriginalText     string            `json:"original_text"`
	PersonalizedText string            `json:"personalized_text,omitempty"`
	Context          map[string]string `json:"context,omitempty"`
	Status           string            `json:"status" enum:"unread,read,in_progress,completed,delegated,deferred,cancelled"`
	CreatedAt        string            `json:"created_at" format:"date-time"`
	DueAt            *string           `json:"due_at,omitempty" format:"date-time"`
	EscalationAt     *string           `json:"escalation_at,omitempty" format:"date-time"`
	ReadAt           *string           `json:"read_at,omitempty" format:"date-time"`
	CompletedAt      *string           `json:"completed_at,omitempty" format:"date-time"`
	RelatedEntities  []string          `json:"related_entities,omitempty"`
	DecisionFactors  []string          `json:"decision_factors,omitempty"`
}

// TerminalTaskStatus reports whether no further lifecycle transition applies.
func TerminalTaskStatus(status string) bool {
	switch status {
	case TaskCompleted, TaskDelegated, TaskDeferred, TaskCancelled:
		return true
	}
	return false
}

// TaskStatusRank orders the main lifecycle for monotonicity checks. Side
// branches have no rank; they are reachable from any non-terminal state.
func TaskStatusRank(status string) int {
	switch status {
	case TaskUnread:
		return 0
	case TaskRead:
		return 1
	case TaskInProgress:
		return 2
	case TaskCompleted:
		return 3
	}
	return -1
}

type Stakeholder struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Role       string             `json:"role"`
	Department string             `json:"department"`
	Style      CommunicationStyle `json:"style"`
}

type CommunicationStyle struct {
	Tone              string  `json:"tone"`
	DetailLevel       string  `json:"detail_level"`
	UrgencyMultiplier float64 `json:"urgency_multiplier"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
