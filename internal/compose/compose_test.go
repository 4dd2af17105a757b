package compose_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"quorum/internal/compose"
	"quorum/internal/config"
	"quorum/internal/directory"
	"quorum/internal/domain"
)

func newComposer(t *testing.T, gen compose.TextGenerator) *compose.Composer {
	t.Helper()
	cfg := config.Default()
	c := compose.New(cfg, directory.New(cfg), gen)
	c.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestComposeIsDeterministic(t *testing.T) {
	c := newComposer(t, nil)
	a := c.Compose("strategic", "mary", "john", "Acquire DataCo", 0)
	b := c.Compose("strategic", "mary", "john", "Acquire DataCo", 0)
	if a.Urgency != b.Urgency || a.Priority != b.Priority || a.Mood != b.Mood ||
		a.PersonalizedText != b.PersonalizedText || *a.DueAt != *b.DueAt {
		t.Fatalf("compose not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestUrgencyFromKeywords(t *testing.T) {
	c := newComposer(t, nil)
	// "outage" is an urgent keyword; john's multiplier is 1.0
	got := c.Compose("technical", "mary", "john", "Production outage in the payments path", 0)
	if got.Urgency != 5 {
		t.Fatalf("urgency = %d, want 5", got.Urgency)
	}
	if got.Mood != "urgent" {
		t.Fatalf("mood = %s, want urgent override", got.Mood)
	}
	// "deadline" is a high keyword
	got = c.Compose("technical", "mary", "john", "Vendor deadline next week", 0)
	if got.Urgency != 4 {
		t.Fatalf("urgency = %d, want 4", got.Urgency)
	}
	// no keywords falls back to the configured default
	got = c.Compose("technical", "mary", "john", "Routine dependency bump", 0)
	if got.Urgency != 3 {
		t.Fatalf("urgency = %d, want default 3", got.Urgency)
	}
}

func TestUrgencyMultiplierAndClamp(t *testing.T) {
	c := newComposer(t, nil)
	// mary's multiplier is 1.2: base 5 would exceed the scale, clamps to 5
	got := c.Compose("strategic", "john", "mary", "Board asks for a decision", 5)
	if got.Urgency != 5 {
		t.Fatalf("urgency = %d, want clamped 5", got.Urgency)
	}
	// isac's multiplier is 0.9: base 2 scales down to 2 (round of 1.8)
	got = c.Compose("budget", "mary", "isac", "Minor reallocation", 2)
	if got.Urgency != 2 {
		t.Fatalf("urgency = %d, want 2", got.Urgency)
	}
	// mary again: base 3 scales to 4 (round of 3.6)
	got = c.Compose("strategic", "john", "mary", "Expansion question", 3)
	if got.Urgency != 4 {
		t.Fatalf("urgency = %d, want 4", got.Urgency)
	}
}

func TestPriorityFollowsUrgencyBand(t *testing.T) {
	c := newComposer(t, nil)
	high := c.Compose("strategic", "mary", "john", "urgent: rival bid landed", 0)
	if high.Priority != 5 {
		t.Fatalf("high-band priority = %d, want 5", high.Priority)
	}
	normal := c.Compose("strategic", "mary", "john", "Annual planning kickoff", 0)
	if normal.Priority != 4 {
		t.Fatalf("normal-band priority = %d, want 4", normal.Priority)
	}
}

func TestDueAndEscalationBands(t *testing.T) {
	c := newComposer(t, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got := c.Compose("strategic", "mary", "john", "urgent: decide today", 0)
	if *got.DueAt != now.Add(4*time.Hour).Format(time.RFC3339) {
		t.Fatalf("due_at = %s", *got.DueAt)
	}
	if *got.EscalationAt != now.Add(8*time.Hour).Format(time.RFC3339) {
		t.Fatalf("escalation_at = %s", *got.EscalationAt)
	}
}

func TestPersonalizationByTone(t *testing.T) {
	c := newComposer(t, nil)
	got := c.Compose("strategic", "mary", "john", "Acquire DataCo", 0)
	if !strings.Contains(got.PersonalizedText, "John Rivera") {
		t.Fatalf("personalized text missing recipient name: %q", got.PersonalizedText)
	}
	if !strings.Contains(got.PersonalizedText, "Acquire DataCo") {
		t.Fatalf("personalized text missing original payload: %q", got.PersonalizedText)
	}
	if got.OriginalText != "Acquire DataCo" {
		t.Fatalf("original text mutated: %q", got.OriginalText)
	}
	// unknown recipient falls through to the generic template with the raw id
	got = c.Compose("strategic", "mary", "ghost", "Acquire DataCo", 0)
	if !strings.Contains(got.PersonalizedText, "ghost") {
		t.Fatalf("generic fallback missing recipient id: %q", got.PersonalizedText)
	}
}

type failingGen struct{}

func (failingGen) Generate(string, domain.Stakeholder, map[string]string, string) (string, error) {
	return "", errors.New("generator unavailable")
}

func TestGeneratorFailureFallsBackToOriginal(t *testing.T) {
	c := newComposer(t, failingGen{})
	got := c.Compose("strategic", "mary", "john", "Acquire DataCo", 0)
	if got.PersonalizedText != "Acquire DataCo" {
		t.Fatalf("fallback text = %q, want original", got.PersonalizedText)
	}
}

func TestCategoryMetadataCarried(t *testing.T) {
	c := newComposer(t, nil)
	got := c.Compose("technical", "john", "dana", "Migrate the queue", 0)
	if got.Context["category"] != "technical" {
		t.Fatalf("context = %v", got.Context)
	}
	if len(got.DecisionFactors) != 2 || got.DecisionFactors[0] != "technical_feasibility" {
		t.Fatalf("decision factors = %v", got.DecisionFactors)
	}
	if len(got.RelatedEntities) != 1 || got.RelatedEntities[0] != "platform" {
		t.Fatalf("related entities = %v", got.RelatedEntities)
	}
	if got.Type != "request" {
		t.Fatalf("type = %s", got.Type)
	}
}
