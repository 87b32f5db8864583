package forge

import (
	"fmt"
	"log"
	"strings"

	"github.com/forgeworks/forge/internal/domain"
)

// ─── Perk Registry ──────────────────────────────────────────────────────────

// AddPerk acquires a perk. It returns the existing perk with
// ErrAlreadyAcquired on a name collision, and an *InsufficientFundsError
// (after setting the pending marker) when the cost exceeds available points.
func (t *Tracker) AddPerk(d domain.PerkDraft) (domain.Perk, error) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return domain.Perk{}, domain.ErrNoName
	}
	if i := t.state.FindPerk(name); i >= 0 {
		return t.state.AcquiredPerks[i], domain.ErrAlreadyAcquired
	}
	d.Name = name

	// Global modifiers fire before the cost check, even if the purchase fails.
	if (d.Flags.Has(domain.FlagUncapped) || strings.Contains(strings.ToUpper(name), "UNCAPPED")) && !t.state.HasUncapped {
		t.applyUncapped()
	}
	if d.Flags.GrantsGamer() && !t.state.HasGamer {
		t.applyGamer()
	}

	perk := t.buildPerk(d)
	domain.Recompute(t.state)

	if perk.Cost > t.state.AvailablePoints {
		m := domain.PendingMarker{
			Name:   perk.Name,
			Cost:   perk.Cost,
			Needed: perk.Cost - t.state.AvailablePoints,
			Flags:  perk.Flags,
		}
		t.state.Pending = &m
		t.save()
		t.emit(domain.Event{
			Type:    domain.EventPerkPending,
			Perk:    perk.Name,
			Message: fmt.Sprintf("%s pending: need %d more CP", perk.Name, m.Needed),
		})
		return perk, &domain.InsufficientFundsError{Pending: m}
	}

	t.state.AcquiredPerks = append(t.state.AcquiredPerks, perk)
	if perk.Toggleable && perk.Active {
		t.addToggle(perk.Name)
	}
	t.history("acquired", perk.Name, perk.Cost)
	if t.state.Pending != nil && domain.SameName(t.state.Pending.Name, perk.Name) {
		t.state.Pending = nil
	}
	t.commit(domain.Event{
		Type:    domain.EventPerkAcquired,
		Perk:    perk.Name,
		Message: fmt.Sprintf("%s acquired (%d CP)", perk.Name, perk.Cost),
	})
	return perk, nil
}

// buildPerk turns a draft into a perk with a scaffold. Every perk gets a
// scaffold, dormant unless the flags or GAMER activate it.
func (t *Tracker) buildPerk(d domain.PerkDraft) domain.Perk {
	flags := append(domain.Flags{}, d.Flags...)
	p := domain.Perk{
		Name:               strings.TrimSpace(d.Name),
		Cost:               max(0, d.Cost),
		Flags:              flags,
		Description:        strings.TrimSpace(d.Description),
		ScalingDescription: d.ScalingDescription,
		Toggleable:         flags.Has(domain.FlagToggleable),
		Active:             true,
		DBLinkID:           d.DBLinkID,
		AcquiredAt:         t.now(),
		AcquiredAtResponse: t.state.ResponseCount,
	}
	if p.Toggleable && d.Active != nil {
		p.Active = *d.Active
	}
	if d.Scaling != nil {
		p.Scaling = *d.Scaling
		if p.Scaling.Level < 1 {
			p.Scaling.Level = 1
		}
	}
	t.refreshScaffold(&p)
	return p
}

// refreshScaffold builds a missing scaffold and re-derives activation,
// uncapping and display fields from the invariant. It never lowers a cap.
func (t *Tracker) refreshScaffold(p *domain.Perk) {
	if p.Flags == nil {
		p.Flags = domain.Flags{}
	}
	if p.Scaling.Missing() {
		p.Scaling = domain.NewScaffold(false, false)
	}
	p.Scaling.Active = t.state.ScalingQualifies(p)
	if t.state.HasUncapped || p.Flags.Has(domain.FlagUncapped) || p.Scaling.Uncapped {
		p.Scaling.Uncapped = true
		p.Scaling.MaxLevel = domain.UncappedMaxLevel
	}
	p.Toggleable = p.Flags.Has(domain.FlagToggleable)
	if !p.Toggleable {
		p.Active = true
	}
	p.Scaling.Recalc()
}

// EditPerk merges a partial update into an existing perk.
func (t *Tracker) EditPerk(name string, u domain.PerkUpdate) error {
	i := t.state.FindPerk(name)
	if i < 0 {
		return t.notFound(name)
	}

	flags := t.state.AcquiredPerks[i].Flags
	if u.Flags != nil {
		flags = append(domain.Flags{}, u.Flags...)
	}
	newName := t.state.AcquiredPerks[i].Name
	if u.Name != nil && strings.TrimSpace(*u.Name) != "" {
		newName = strings.TrimSpace(*u.Name)
		if j := t.state.FindPerk(newName); j >= 0 && j != i {
			return fmt.Errorf("rename %q: %w", newName, domain.ErrAlreadyAcquired)
		}
	}

	if (flags.Has(domain.FlagUncapped) || strings.Contains(strings.ToUpper(newName), "UNCAPPED")) && !t.state.HasUncapped {
		t.applyUncapped()
	}
	if flags.GrantsGamer() && !t.state.HasGamer {
		t.applyGamer()
	}

	p := &t.state.AcquiredPerks[i]
	old := *p
	t.removeToggle(p.Name)

	p.Name = newName
	p.Flags = flags
	if u.Cost != nil {
		p.Cost = max(0, *u.Cost)
	}
	if u.Description != nil {
		p.Description = strings.TrimSpace(*u.Description)
	}
	if u.ScalingDescription != nil {
		p.ScalingDescription = u.ScalingDescription
	}
	if u.Active != nil {
		p.Active = *u.Active
	}
	t.refreshScaffold(p)
	if u.Level != nil {
		p.Scaling.Level = max(1, *u.Level)
	}
	if u.XP != nil {
		p.Scaling.XP = max(0, *u.XP)
	}
	p.Scaling.Recalc()
	if p.Toggleable && p.Active {
		t.addToggle(p.Name)
	}

	t.history("edited", p.Name, p.Cost)
	t.commit(domain.Event{Type: domain.EventStateChanged, Perk: p.Name, Message: fmt.Sprintf("%s edited", old.Name)})

	if p.DBLinkID != "" && t.linker != nil {
		t.propagate(p.DBLinkID, old, *p)
	}
	return nil
}

// propagate pushes linked-perk changes to the catalog without waiting.
// A failed push does not roll back the local edit.
func (t *Tracker) propagate(id string, old, cur domain.Perk) {
	var upd domain.CatalogUpdate
	changed := false
	if old.Name != cur.Name {
		upd.Name = &cur.Name
		changed = true
	}
	if old.Cost != cur.Cost {
		upd.Cost = &cur.Cost
		changed = true
	}
	if old.Flags.String() != cur.Flags.String() {
		upd.Flags = append(domain.Flags{}, cur.Flags...)
		changed = true
	}
	if old.Description != cur.Description {
		upd.Description = &cur.Description
		changed = true
	}
	if !changed {
		return
	}
	linker := t.linker
	go func() {
		if err := linker.UpdateEntry(id, upd); err != nil {
			log.Printf("[forge] catalog propagation for %s failed: %v", id, err)
		}
	}()
}

// RemovePerk removes the first perk matching name.
func (t *Tracker) RemovePerk(name string) error {
	i := t.state.FindPerk(name)
	if i < 0 {
		return t.notFound(name)
	}
	p := t.state.AcquiredPerks[i]
	t.state.AcquiredPerks = append(t.state.AcquiredPerks[:i], t.state.AcquiredPerks[i+1:]...)
	t.removeToggle(p.Name)
	t.history("removed", p.Name, p.Cost)
	t.commit(domain.Event{Type: domain.EventPerkRemoved, Perk: p.Name, Message: fmt.Sprintf("%s removed", p.Name)})
	return nil
}

// TogglePerk flips a toggleable perk and returns the new active state.
// Toggling never changes cost accounting, so the economy is not recomputed.
func (t *Tracker) TogglePerk(name string) (bool, error) {
	i := t.state.FindPerk(name)
	if i < 0 {
		return false, t.notFound(name)
	}
	p := &t.state.AcquiredPerks[i]
	if !p.Flags.Has(domain.FlagToggleable) {
		return false, fmt.Errorf("%s: %w", p.Name, domain.ErrNotToggleable)
	}
	p.Active = !p.Active
	if p.Active {
		t.addToggle(p.Name)
	} else {
		t.removeToggle(p.Name)
	}
	t.save()
	state := "OFF"
	if p.Active {
		state = "ON"
	}
	t.emit(domain.Event{Type: domain.EventStateChanged, Perk: p.Name, Message: fmt.Sprintf("%s toggled %s", p.Name, state)})
	return p.Active, nil
}

// Perk returns a copy of the named perk.
func (t *Tracker) Perk(name string) (domain.Perk, error) {
	i := t.state.FindPerk(name)
	if i < 0 {
		return domain.Perk{}, t.notFound(name)
	}
	return t.state.AcquiredPerks[i], nil
}

// HasPerk reports whether a perk with this name is acquired.
func (t *Tracker) HasPerk(name string) bool {
	return t.state.FindPerk(name) >= 0
}

// ─── Toggle Cache ───────────────────────────────────────────────────────────

func (t *Tracker) addToggle(name string) {
	for _, n := range t.state.ActiveToggles {
		if domain.SameName(n, name) {
			return
		}
	}
	t.state.ActiveToggles = append(t.state.ActiveToggles, name)
}

func (t *Tracker) removeToggle(name string) {
	out := t.state.ActiveToggles[:0]
	for _, n := range t.state.ActiveToggles {
		if !domain.SameName(n, name) {
			out = append(out, n)
		}
	}
	t.state.ActiveToggles = out
}

func (t *Tracker) notFound(name string) error {
	names := make([]string, len(t.state.AcquiredPerks))
	for i, p := range t.state.AcquiredPerks {
		names[i] = p.Name
	}
	return &domain.NotFoundError{Name: name, Suggestion: Suggest(name, names), Err: domain.ErrPerkNotFound}
}
