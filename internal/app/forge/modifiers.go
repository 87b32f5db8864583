package forge

import (
	"fmt"

	"github.com/forgeworks/forge/internal/domain"
)

// ─── Global Modifiers ───────────────────────────────────────────────────────
// Both modifiers are monotonic: only Reset/Replace clears them.

// ApplyUncapped turns on the global UNCAPPED modifier. It reports false,
// without touching the state, when the modifier was already on.
func (t *Tracker) ApplyUncapped() bool {
	if t.state.HasUncapped {
		return false
	}
	t.applyUncapped()
	t.commit(domain.Event{Type: domain.EventStateChanged, Message: "UNCAPPED active: all perks unlimited"})
	return true
}

// ApplyGamer turns on the global GAMER modifier. It reports false when the
// modifier was already on.
func (t *Tracker) ApplyGamer() bool {
	if t.state.HasGamer {
		return false
	}
	t.applyGamer()
	t.commit(domain.Event{Type: domain.EventStateChanged, Message: "GAMER active: every perk can level"})
	return true
}

func (t *Tracker) applyUncapped() {
	t.state.HasUncapped = true
	for i := range t.state.AcquiredPerks {
		// refreshScaffold uncaps every perk under the global flag and only
		// activates those that already qualify.
		t.refreshScaffold(&t.state.AcquiredPerks[i])
	}
}

func (t *Tracker) applyGamer() {
	t.state.HasGamer = true
	for i := range t.state.AcquiredPerks {
		t.refreshScaffold(&t.state.AcquiredPerks[i])
	}
}

// ─── Per-perk Overrides ─────────────────────────────────────────────────────

// EnablePerkScaling adds SCALING to one perk and activates its scaffold.
func (t *Tracker) EnablePerkScaling(name string) error {
	i := t.state.FindPerk(name)
	if i < 0 {
		return t.notFound(name)
	}
	p := &t.state.AcquiredPerks[i]
	if p.Scaling.Active {
		return fmt.Errorf("%s: %w", p.Name, domain.ErrAlreadyScaling)
	}
	p.Flags = p.Flags.With(domain.FlagScaling)
	t.refreshScaffold(p)
	t.commit(domain.Event{Type: domain.EventStateChanged, Perk: p.Name, Message: fmt.Sprintf("%s now scales", p.Name)})
	return nil
}

// EnablePerkUncapped removes the level ceiling of one perk. The UNCAPPED
// flag it adds also activates the scaffold.
func (t *Tracker) EnablePerkUncapped(name string) error {
	i := t.state.FindPerk(name)
	if i < 0 {
		return t.notFound(name)
	}
	p := &t.state.AcquiredPerks[i]
	if p.Scaling.Missing() {
		t.refreshScaffold(p)
	}
	if p.Scaling.Uncapped && p.Flags.Has(domain.FlagUncapped) {
		return fmt.Errorf("%s: %w", p.Name, domain.ErrAlreadyUncapped)
	}
	p.Flags = p.Flags.With(domain.FlagUncapped)
	p.Scaling.Uncapped = true
	p.Scaling.MaxLevel = domain.UncappedMaxLevel
	t.refreshScaffold(p)
	t.commit(domain.Event{Type: domain.EventStateChanged, Perk: p.Name, Message: fmt.Sprintf("%s uncapped", p.Name)})
	return nil
}
