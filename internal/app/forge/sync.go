package forge

import (
	"fmt"

	"github.com/forgeworks/forge/internal/domain"
)

// ─── Checkpoint Sync ────────────────────────────────────────────────────────

// SyncVitals overwrites corruption and sanity from an authoritative
// checkpoint.
func (t *Tracker) SyncVitals(corruption, sanity int) {
	t.state.Corruption = domain.ClampPercent(corruption)
	t.state.Sanity = domain.ClampPercent(sanity)
	t.commit(domain.Event{
		Type:    domain.EventStateChanged,
		Message: fmt.Sprintf("checkpoint: corruption %d, sanity %d", t.state.Corruption, t.state.Sanity),
	})
}

// MergePerk folds checkpoint-reported scaling and active state into an
// acquired perk. It reports false when the perk is not acquired. Scaling is
// merged only into an active scaffold, and a cap is never lowered.
func (t *Tracker) MergePerk(d domain.PerkDraft) bool {
	i := t.state.FindPerk(d.Name)
	if i < 0 {
		return false
	}
	p := &t.state.AcquiredPerks[i]
	if d.Scaling != nil && p.Scaling.Active {
		s := &p.Scaling
		s.Level = max(1, d.Scaling.Level)
		s.XP = max(0, d.Scaling.XP)
		if d.Scaling.Uncapped {
			s.Uncapped = true
			s.MaxLevel = domain.UncappedMaxLevel
		} else if !s.Uncapped && d.Scaling.MaxLevel > s.MaxLevel {
			s.MaxLevel = d.Scaling.MaxLevel
		}
		s.Recalc()
	}
	if d.Active != nil && p.Toggleable && p.Active != *d.Active {
		p.Active = *d.Active
		if p.Active {
			t.addToggle(p.Name)
		} else {
			t.removeToggle(p.Name)
		}
	}
	t.save()
	return true
}
