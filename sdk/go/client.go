package quorumsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Quorum HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Response is one stakeholder's recorded position.
type Response struct {
	ResponderID string `json:"responder_id"`
	Decision    string `json:"decision"`
	Reason      string `json:"reason,omitempty"`
	TS          string `json:"ts"`
}

// DecisionStatus is the point-in-time view of one decision.
type DecisionStatus struct {
	DecisionID        string              `json:"decision_id"`
	Category          string              `json:"category"`
	InitiatorID       string              `json:"initiator_id"`
	Proposal          string              `json:"proposal"`
	Status            string              `json:"status"`
	RequiredCount     int                 `json:"required_count"`
	ReceivedCount     int                 `json:"received_count"`
	PendingResponders []string            `json:"pending_responders"`
	Responses         map[string]Response `json:"responses"`
	AwaitingRuling    bool                `json:"awaiting_ruling"`
	FinalRuling       *string             `json:"final_ruling,omitempty"`
}

// Task represents the API task model (partial).
type Task struct {
	ID               string `json:"id"`
	DecisionID       string `json:"decision_id,omitempty"`
	SenderID         string `json:"sender_id"`
	RecipientID      string `json:"recipient_id"`
	Type             string `json:"type"`
	Priority         int    `json:"priority"`
	Urgency          int    `json:"urgency"`
	Status           string `json:"status"`
	OriginalText     string `json:"original_text"`
	PersonalizedText string `json:"personalized_text,omitempty"`
	CreatedAt        string `json:"created_at"`
}

// InboxSummary mirrors the dashboard counters.
type InboxSummary struct {
	Total            int    `json:"total"`
	Unread           int    `json:"unread"`
	Urgent           int    `json:"urgent"`
	PendingDecisions int    `json:"pending_decisions"`
	RecentTasks      []Task `json:"recent_tasks"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// StartDecision opens a decision in a category.
func (c *Client) StartDecision(ctx context.Context, category, initiatorID, proposal string) (DecisionStatus, error) {
	body := map[string]any{
		"category":     category,
		"initiator_id": initiatorID,
		"proposal":     proposal,
	}
	var resp DecisionStatus
	err := c.do(ctx, http.MethodPost, "v0/decisions", body, &resp)
	return resp, err
}

// Respond records one stakeholder's position.
func (c *Client) Respond(ctx context.Context, decisionID, responderID, decision, reason string) (DecisionStatus, error) {
	body := map[string]any{
		"responder_id": responderID,
		"decision":     decision,
		"reason":       reason,
	}
	var resp DecisionStatus
	endpoint := fmt.Sprintf("v0/decisions/%s/responses", url.PathEscape(decisionID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Rule records the initiator's final ruling.
func (c *Client) Rule(ctx context.Context, decisionID, actorID, ruling string) (DecisionStatus, error) {
	body := map[string]any{
		"actor_id": actorID,
		"ruling":   ruling,
	}
	var resp DecisionStatus
	endpoint := fmt.Sprintf("v0/decisions/%s/ruling", url.PathEscape(decisionID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Cancel aborts an open decision.
func (c *Client) Cancel(ctx context.Context, decisionID, actorID string) (DecisionStatus, error) {
	body := map[string]any{"actor_id": actorID}
	var resp DecisionStatus
	endpoint := fmt.Sprintf("v0/decisions/%s/cancel", url.PathEscape(decisionID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// DecisionStatus fetches the current view of a decision.
func (c *Client) DecisionStatus(ctx context.Context, decisionID string) (DecisionStatus, error) {
	var resp DecisionStatus
	endpoint := fmt.Sprintf("v0/decisions/%s", url.PathEscape(decisionID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Inbox returns the ranked inbox for a recipient. view may be empty or one
// of urgent, pending, unread.
func (c *Client) Inbox(ctx context.Context, recipientID, view string, limit int) ([]Task, error) {
	endpoint := fmt.Sprintf("v0/inbox/%s", url.PathEscape(recipientID))
	q := url.Values{}
	if view != "" {
		q.Set("view", view)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// InboxSummary returns the dashboard summary for a recipient.
func (c *Client) InboxSummary(ctx context.Context, recipientID string) (InboxSummary, error) {
	var resp InboxSummary
	endpoint := fmt.Sprintf("v0/inbox/%s/summary", url.PathEscape(recipientID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetTaskStatus applies a lifecycle transition.
func (c *Client) SetTaskStatus(ctx context.Context, taskID, recipientID, status string) (Task, error) {
	body := map[string]any{
		"recipient_id": recipientID,
		"status":       status,
	}
	var resp Task
	endpoint := fmt.Sprintf("v0/tasks/%s/status", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Events returns recent audit events.
func (c *Client) Events(ctx context.Context, afterID int64, limit int) ([]Event, error) {
	endpoint := "v0/events"
	q := url.Values{}
	if afterID > 0 {
		q.Set("after_id", fmt.Sprint(afterID))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
