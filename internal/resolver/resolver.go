package resolver

import (
	"quorum/internal/config"
)

// Resolver maps a decision category to its required responders and
// escalation route. Pure lookup over the injected rulebook.
type Resolver struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Required returns the ordered responder set for a category with the
// initiator excluded. Unknown categories yield an empty list; the caller
// decides whether that is an error.
func (r *Resolver) Required(category, initiatorID string) []string {
	cat, ok := r.cfg.Categories[category]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(cat.Responders))
	for _, id := range cat.Responders {
		if id == initiatorID {
			continue
		}
		out = append(out, id)
	}
	return out
}

// EscalationTarget returns the fallback recipient for a category, or "".
func (r *Resolver) EscalationTarget(category string) string {
	return r.cfg.Categories[category].Escalation
}

// Known reports whether the category exists in the rulebook.
func (r *Resolver) Known(category string) bool {
	_, ok := r.cfg.Categories[category]
	return ok
}
