package compose

import (
	"fmt"
	"math"
	"strings"
	"time"

	"quorum/internal/config"
	"quorum/internal/directory"
	"quorum/internal/domain"
)

// TextGenerator produces the personalized message text for one recipient.
// Implementations may call out to an external service; a failure is never
// fatal, the composer substitutes the unpersonalized original text.
type TextGenerator interface {
	Generate(category string, recipient domain.Stakeholder, context map[string]string, original string) (string, error)
}

// Composer turns raw decision payloads into task creation requests. Given
// identical inputs the output is identical; every derivation below is a pure
// table lookup so behavior stays auditable.
type Composer struct {
	cfg *config.Config
	dir *directory.Directory
	gen TextGenerator
	Now func() time.Time
}

func New(cfg *config.Config, dir *directory.Directory, gen TextGenerator) *Composer {
	if gen == nil {
		gen = TemplateGenerator{Rules: cfg.Composer}
	}
	return &Composer{cfg: cfg, dir: dir, gen: gen, Now: time.Now}
}

// Compose builds the task record for one recipient. baseUrgency <= 0 falls
// back to the configured default before keyword scanning.
func (c *Composer) Compose(category, senderID, recipientID, rawPayload string, baseUrgency int) domain.TaskRecord {
	now := c.Now().UTC()
	cat := c.cfg.Categories[category]

	urgency := c.deriveUrgency(rawPayload, baseUrgency)
	if recipient, ok := c.dir.Get(recipientID); ok {
		urgency = clampOrdinal(int(math.Round(float64(urgency) * recipient.Style.UrgencyMultiplier)))
	}

	priority := cat.NormalPriority
	if urgency >= 4 {
		priority = cat.HighPriority
	}
	if priority == 0 {
		priority = domain.PriorityMedium
	}

	taskType := cat.TaskType
	if taskType == "" {
		taskType = category
	}
	mood := cat.Mood
	if urgency >= 5 {
		mood = "urgent"
	}

	due := now.Add(time.Duration(pickBand(cat.DueHours, urgency)) * time.Hour)
	escalate := now.Add(time.Duration(pickBand(cat.EscalateHours, urgency)) * time.Hour)
	dueStr := due.Format(time.RFC3339)
	escStr := escalate.Format(time.RFC3339)

	t := domain.TaskRecord{
		SenderID:        senderID,
		RecipientID:     recipientID,
		Type:            taskType,
		Priority:        priority,
		Urgency:         urgency,
		Mood:            mood,
		OriginalText:    rawPayload,
		Status:          domain.TaskUnread,
		CreatedAt:       now.Format(time.RFC3339),
		DueAt:           &dueStr,
		EscalationAt:    &escStr,
		RelatedEntities: cat.RelatedEntity,
		DecisionFactors: cat.DecisionFactor,
		Context:         map[string]string{"category": category},
	}
	t.PersonalizedText = c.personalize(category, recipientID, rawPayload, t.Context)
	return t
}

func (c *Composer) deriveUrgency(payload string, base int) int {
	lowered := strings.ToLower(payload)
	for _, kw := range c.cfg.Composer.UrgentKeywords {
		if strings.Contains(lowered, kw) {
			return 5
		}
	}
	for _, kw := range c.cfg.Composer.HighKeywords {
		if strings.Contains(lowered, kw) {
			return 4
		}
	}
	if base > 0 {
		return clampOrdinal(base)
	}
	return c.cfg.Composer.DefaultUrgency
}

func (c *Composer) personalize(category, recipientID, original string, context map[string]string) string {
	recipient, ok := c.dir.Get(recipientID)
	if !ok {
		recipient = domain.Stakeholder{ID: recipientID, Name: recipientID}
	}
	text, err := c.gen.Generate(category, recipient, context, original)
	if err != nil || text == "" {
		return original
	}
	return text
}

func pickBand(bands config.DueBands, urgency int) int {
	h := bands.Normal
	switch {
	case urgency >= 5:
		h = bands.Urgent
	case urgency == 4:
		h = bands.High
	}
	if h <= 0 {
		h = 48
	}
	return h
}

func clampOrdinal(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

// TemplateGenerator is the default in-process text generator: a fixed
// phrasing template per directory tone, generic fallback for unknown
// recipients or tones.
type TemplateGenerator struct {
	Rules config.ComposerRules
}

func (g TemplateGenerator) Generate(category string, recipient domain.Stakeholder, _ map[string]string, original string) (string, error) {
	tmpl, ok := g.Rules.Templates[recipient.Style.Tone]
	if !ok {
		tmpl = g.Rules.GenericTemplate
	}
	if tmpl == "" {
		return original, nil
	}
	name := recipient.Name
	if name == "" {
		name = recipient.ID
	}
	return fmt.Sprintf(tmpl, name, original), nil
}
