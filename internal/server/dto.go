package server

import "quorum/internal/domain"

// StartDecisionRequest opens a decision in a category.
type StartDecisionRequest struct {
	Category    string `json:"category" minLength:"1" example:"strategic"`
	InitiatorID string `json:"initiator_id" minLength:"1" example:"mary"`
	Proposal    string `json:"proposal" minLength:"1" example:"Acquire DataCo for $2M"`
}

// RespondRequest carries one stakeholder's position.
type RespondRequest struct {
	ResponderID string `json:"responder_id" minLength:"1" example:"john"`
	Decision    string `json:"decision" minLength:"1" example:"approve"`
	Reason      string `json:"reason,omitempty" example:"fits the platform roadmap"`
}

// RuleRequest records the initiator's final ruling.
type RuleRequest struct {
	ActorID string `json:"actor_id" minLength:"1" example:"mary"`
	Ruling  string `json:"ruling" minLength:"1" example:"approved with conditions"`
}

// CancelRequest aborts a decision before completion.
type CancelRequest struct {
	ActorID string `json:"actor_id" minLength:"1" example:"mary"`
}

// CreateTaskRequest creates a standalone task record.
type CreateTaskRequest struct {
	RecipientID      string            `json:"recipient_id" minLength:"1" example:"dana"`
	SenderID         string            `json:"sender_id" minLength:"1" example:"john"`
	Type             string            `json:"type,omitempty" example:"request"`
	OriginalText     string            `json:"original_text" minLength:"1"`
	PersonalizedText string            `json:"personalized_text,omitempty"`
	Priority         int               `json:"priority,omitempty" minimum:"0" maximum:"5"`
	Urgency          int               `json:"urgency,omitempty" minimum:"0" maximum:"5"`
	Mood             string            `json:"mood,omitempty"`
	ThreadID         string            `json:"thread_id,omitempty"`
	DecisionID       string            `json:"decision_id,omitempty"`
	Context          map[string]string `json:"context,omitempty"`
	DueAt            string            `json:"due_at,omitempty" format:"date-time"`
	EscalationAt     string            `json:"escalation_at,omitempty" format:"date-time"`
	RelatedEntities  []string          `json:"related_entities,omitempty"`
	DecisionFactors  []string          `json:"decision_factors,omitempty"`
}

func (r CreateTaskRequest) toRecord() domain.TaskRecord {
	t := domain.TaskRecord{
		RecipientID:      r.RecipientID,
		SenderID:         r.SenderID,
		Type:             r.Type,
		OriginalText:     r.OriginalText,
		PersonalizedText: r.PersonalizedText,
		Priority:         r.Priority,
		Urgency:          r.Urgency,
		Mood:             r.Mood,
		ThreadID:         r.ThreadID,
		Context:          r.Context,
		RelatedEntities:  r.RelatedEntities,
		DecisionFactors:  r.DecisionFactors,
	}
	if r.DecisionID != "" {
		t.DecisionID = &r.DecisionID
	}
	if r.DueAt != "" {
		t.DueAt = &r.DueAt
	}
	if r.EscalationAt != "" {
		t.EscalationAt = &r.EscalationAt
	}
	return t
}

// UpdateTaskStatusRequest applies a lifecycle transition.
type UpdateTaskStatusRequest struct {
	RecipientID string `json:"recipient_id" minLength:"1" example:"dana"`
	Status      string `json:"status" minLength:"1" example:"completed"`
}
