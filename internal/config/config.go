package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models quorum.yml: the organizational rulebook. It is loaded once and
// injected at construction; nothing mutates it afterwards, so tests and tenants
// can swap the whole structure.
type Config struct {
	Org struct {
		Name string `yaml:"name"`
	} `yaml:"org"`
	Directory  map[string]StakeholderEntry `yaml:"directory"`
	Categories map[string]Category         `yaml:"categories"`
	Composer   ComposerRules               `yaml:"composer"`
}

// StakeholderEntry is the directory record for one participant.
type StakeholderEntry struct {
	Name              string  `yaml:"name"`
	Role              string  `yaml:"role"`
	Department        string  `yaml:"department"`
	Tone              string  `yaml:"tone"`
	DetailLevel       string  `yaml:"detail_level"`
	UrgencyMultiplier float64 `yaml:"urgency_multiplier"`
}

// Category holds the routing and composition rules for one decision category.
type Category struct {
	// Responders is the ordered required-responder set. The initiator is
	// excluded at resolution time even when listed here.
	Responders []string `yaml:"responders"`
	// Escalation is the fallback recipient when responders are unreachable.
	Escalation string `yaml:"escalation"`
	// TaskType tags fan-out task records ("request", "direct_order", ...).
	TaskType string `yaml:"task_type"`
	// HighPriority applies when computed urgency >= 4, NormalPriority otherwise.
	HighPriority   int `yaml:"high_priority"`
	NormalPriority int `yaml:"normal_priority"`
	// Due bands in hours, selected by computed urgency tier.
	DueHours       DueBands `yaml:"due_hours"`
	EscalateHours  DueBands `yaml:"escalate_hours"`
	Mood           string   `yaml:"mood"`
	DecisionFactor []string `yaml:"decision_factors"`
	RelatedEntity  []string `yaml:"related_entities"`
}

type DueBands struct {
	Urgent int `yaml:"urgent"`
	High   int `yaml:"high"`
	Normal int `yaml:"normal"`
}

// ComposerRules drive urgency derivation and personalization.
type ComposerRules struct {
	UrgentKeywords []string `yaml:"urgent_keywords"`
	HighKeywords   []string `yaml:"high_keywords"`
	DefaultUrgency int      `yaml:"default_urgency"`
	// Templates keyed by directory tone; "%s" slots are recipient name and text.
	Templates       map[string]string `yaml:"templates"`
	GenericTemplate string            `yaml:"generic_template"`
}

const fileName = "quorum.yml"

// Path returns the config path inside a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, fileName)
}

// Load reads and validates config from the workspace, seeding the default
// rulebook when no file exists.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates a config document.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ToYAML serializes the config for export.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate ensures the rulebook is internally consistent.
func (c *Config) Validate() error {
	if len(c.Directory) == 0 {
		return fmt.Errorf("config.directory is required")
	}
	for id, e := range c.Directory {
		if e.UrgencyMultiplier <= 0 {
			return fmt.Errorf("directory entry %s: urgency_multiplier must be > 0", id)
		}
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("config.categories is required")
	}
	for name, cat := range c.Categories {
		for _, r := range cat.Responders {
			if _, ok := c.Directory[r]; !ok {
				return fmt.Errorf("category %s responder %s not in directory", name, r)
			}
		}
		if cat.Escalation != "" {
			if _, ok := c.Directory[cat.Escalation]; !ok {
				return fmt.Errorf("category %s escalation %s not in directory", name, cat.Escalation)
			}
		}
		if cat.HighPriority < 1 || cat.HighPriority > 5 || cat.NormalPriority < 1 || cat.NormalPriority > 5 {
			return fmt.Errorf("category %s priorities must be in 1..5", name)
		}
	}
	if c.Composer.DefaultUrgency < 1 || c.Composer.DefaultUrgency > 5 {
		return fmt.Errorf("composer.default_urgency must be in 1..5")
	}
	return nil
}

// Default returns the seed rulebook used when no quorum.yml exists.
func Default() *Config {
	cfg := &Config{}
	cfg.Org.Name = "Default Org"
	cfg.Directory = map[string]StakeholderEntry{
		"mary":  {Name: "Mary Chen", Role: "CEO", Department: "executive", Tone: "direct", DetailLevel: "summary", UrgencyMultiplier: 1.2},
		"john":  {Name: "John Rivera", Role: "CTO", Department: "engineering", Tone: "analytical", DetailLevel: "full", UrgencyMultiplier: 1.0},
		"isac":  {Name: "Isac Meyer", Role: "CFO", Department: "finance", Tone: "formal", DetailLevel: "full", UrgencyMultiplier: 0.9},
		"priya": {Name: "Priya Nair", Role: "VP Product", Department: "product", Tone: "casual", DetailLevel: "summary", UrgencyMultiplier: 1.1},
		"dana":  {Name: "Dana Kowalski", Role: "Engineering Lead", Department: "engineering", Tone: "direct", DetailLevel: "full", UrgencyMultiplier: 1.0},
	}
	bands := DueBands{Urgent: 4, High: 24, Normal: 48}
	escalate := DueBands{Urgent: 8, High: 48, Normal: 96}
	cfg.Categories = map[string]Category{
		"strategic": {
			Responders:     []string{"mary", "john", "isac", "priya"},
			Escalation:     "mary",
			TaskType:       "request",
			HighPriority:   5,
			NormalPriority: 4,
			DueHours:       bands,
			EscalateHours:  escalate,
			Mood:           "serious",
			DecisionFactor: []string{"strategic_fit", "financial_impact"},
			RelatedEntity:  []string{"company_strategy"},
		},
		"competitive_threat": {
			Responders:     []string{"mary", "john", "priya"},
			Escalation:     "mary",
			TaskType:       "request",
			HighPriority:   5,
			NormalPriority: 4,
			DueHours:       DueBands{Urgent: 4, High: 12, Normal: 24},
			EscalateHours:  DueBands{Urgent: 8, High: 24, Normal: 48},
			Mood:           "urgent",
			DecisionFactor: []string{"competitive_response", "market_position"},
			RelatedEntity:  []string{"competitor"},
		},
		"technical": {
			Responders:     []string{"john", "dana"},
			Escalation:     "dana",
			TaskType:       "request",
			HighPriority:   4,
			NormalPriority: 3,
			DueHours:       bands,
			EscalateHours:  escalate,
			Mood:           "neutral",
			DecisionFactor: []string{"technical_feasibility", "competitive_response"},
			RelatedEntity:  []string{"platform"},
		},
		"budget": {
			Responders:     []string{"mary", "isac"},
			Escalation:     "isac",
			TaskType:       "request",
			HighPriority:   4,
			NormalPriority: 3,
			DueHours:       bands,
			EscalateHours:  escalate,
			Mood:           "formal",
			DecisionFactor: []string{"financial_impact", "budget_fit"},
			RelatedEntity:  []string{"budget"},
		},
		"hiring": {
			Responders:     []string{"mary", "john", "priya"},
			Escalation:     "mary",
			TaskType:       "request",
			HighPriority:   4,
			NormalPriority: 3,
			DueHours:       DueBands{Urgent: 24, High: 48, Normal: 72},
			EscalateHours:  DueBands{Urgent: 48, High: 96, Normal: 144},
			Mood:           "neutral",
			DecisionFactor: []string{"team_capacity", "budget_fit"},
			RelatedEntity:  []string{"headcount_plan"},
		},
	}
	cfg.Composer = ComposerRules{
		UrgentKeywords: []string{"urgent", "asap", "immediately", "critical", "emergency", "outage"},
		HighKeywords:   []string{"important", "soon", "priority", "deadline", "blocker"},
		DefaultUrgency: 3,
		Templates: map[string]string{
			"formal":     "Dear %s, your review is requested on the following matter: %s",
			"direct":     "%s: need your call on this. %s",
			"casual":     "Hey %s, can you take a look when you get a chance? %s",
			"analytical": "%s, please assess the details below and respond with your position. %s",
		},
		GenericTemplate: "%s, please review and respond: %s",
	}
	return cfg
}
