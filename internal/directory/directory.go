package directory

import (
	"sort"

	"quorum/internal/config"
	"quorum/internal/domain"
)

// Directory is the read-only stakeholder lookup. It is built once from the
// org rulebook and never mutated.
type Directory struct {
	entries map[string]domain.Stakeholder
}

func New(cfg *config.Config) *Directory {
	entries := make(map[string]domain.Stakeholder, len(cfg.Directory))
	for id, e := range cfg.Directory {
		entries[id] = domain.Stakeholder{
			ID:         id,
			Name:       e.Name,
			Role:       e.Role,
			Department: e.Department,
			Style: domain.CommunicationStyle{
				Tone:              e.Tone,
				DetailLevel:       e.DetailLevel,
				UrgencyMultiplier: e.UrgencyMultiplier,
			},
		}
	}
	return &Directory{entries: entries}
}

// Get returns the stakeholder for id; ok is false for unknown participants.
func (d *Directory) Get(id string) (domain.Stakeholder, bool) {
	s, ok := d.entries[id]
	return s, ok
}

// List returns all stakeholders ordered by id.
func (d *Directory) List() []domain.Stakeholder {
	out := make([]domain.Stakeholder, 0, len(d.entries))
	for _, s := range d.entries {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
