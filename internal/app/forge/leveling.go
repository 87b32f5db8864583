package forge

import (
	"fmt"

	"github.com/forgeworks/forge/internal/domain"
)

// ─── Leveling Engine ────────────────────────────────────────────────────────

// AddXP adds experience to a perk and resolves every level-up it crosses in
// one pass. It reports false, without mutating anything, when the perk is
// missing or its scaffold is dormant.
func (t *Tracker) AddXP(name string, amount int) (domain.ScalingState, bool) {
	i := t.state.FindPerk(name)
	if i < 0 || amount < 0 {
		return domain.ScalingState{}, false
	}
	p := &t.state.AcquiredPerks[i]
	if !p.Scaling.Active {
		if !t.state.ScalingQualifies(p) {
			return domain.ScalingState{}, false
		}
		t.refreshScaffold(p)
	}

	s := &p.Scaling
	startLevel := s.Level
	s.XP += amount
	for {
		needed := s.Level * domain.XPPerLevel
		if s.XP < needed {
			break
		}
		if s.Level >= s.MaxLevel && !s.Uncapped {
			s.XP = needed
			break
		}
		s.XP -= needed
		s.Level++
	}
	s.Recalc()

	t.save()
	if s.Level > startLevel {
		t.emit(domain.Event{
			Type:    domain.EventLevelUp,
			Perk:    p.Name,
			Message: fmt.Sprintf("%s leveled up to Lv.%d", p.Name, s.Level),
		})
	} else {
		t.emit(domain.Event{
			Type:    domain.EventStateChanged,
			Perk:    p.Name,
			Message: fmt.Sprintf("+%d XP to %s (%s)", amount, p.Name, s.XPDisplay()),
		})
	}
	return *s, true
}

// SetLevel overrides level and xp verbatim, building a scaffold if one is
// missing. It does not run the level-up loop.
func (t *Tracker) SetLevel(name string, level, xp int) (domain.ScalingState, bool) {
	i := t.state.FindPerk(name)
	if i < 0 {
		return domain.ScalingState{}, false
	}
	p := &t.state.AcquiredPerks[i]
	if p.Scaling.Missing() {
		t.refreshScaffold(p)
	}
	p.Scaling.Level = max(1, level)
	p.Scaling.XP = max(0, xp)
	p.Scaling.Recalc()
	t.save()
	t.emit(domain.Event{
		Type:    domain.EventLevelUp,
		Perk:    p.Name,
		Message: fmt.Sprintf("%s set to %s", p.Name, p.Scaling.LevelDisplay()),
	})
	return p.Scaling, true
}
