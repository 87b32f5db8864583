package forge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/forgeworks/forge/internal/domain"
)

// ─── Banking Queue ──────────────────────────────────────────────────────────

// BankPerk holds a perk for later acquisition.
func (t *Tracker) BankPerk(d domain.PerkDraft, constellationKey string, src domain.BankSource) error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return domain.ErrNoName
	}
	if len(t.state.BankedPerks) >= t.cfg.BankMax {
		return fmt.Errorf("%s (%d/%d): %w", name, len(t.state.BankedPerks), t.cfg.BankMax, domain.ErrBankFull)
	}
	if t.state.FindBanked(name) >= 0 {
		return fmt.Errorf("%s: %w", name, domain.ErrAlreadyBanked)
	}
	if src == "" {
		src = domain.SourceDetected
	}

	b := domain.BankedPerk{
		Name:               name,
		Cost:               max(0, d.Cost),
		ConstellationKey:   constellationKey,
		Flags:              append(domain.Flags{}, d.Flags...),
		Description:        strings.TrimSpace(d.Description),
		ScalingDescription: d.ScalingDescription,
		DBLinkID:           d.DBLinkID,
		BankedAt:           t.now(),
		Source:             src,
	}
	if d.Scaling != nil {
		sc := *d.Scaling
		b.Scaling = &sc
	}
	t.state.BankedPerks = append(t.state.BankedPerks, b)
	domain.Recompute(t.state)
	t.mirrorPending()
	t.history("banked", b.Name, b.Cost)
	t.commit(domain.Event{Type: domain.EventStateChanged, Perk: b.Name, Message: fmt.Sprintf("%s banked (%d CP)", b.Name, b.Cost)})
	return nil
}

// AcquireBanked moves a banked perk into the acquired list. An unaffordable
// perk stays in the bank. If a same-named perk was acquired in the meantime
// the bank entry is consumed and ErrAlreadyAcquired is returned.
func (t *Tracker) AcquireBanked(name string) (domain.Perk, error) {
	i := t.state.FindBanked(name)
	if i < 0 {
		return domain.Perk{}, t.bankNotFound(name)
	}
	domain.Recompute(t.state)
	b := t.state.BankedPerks[i]
	if b.Cost > t.state.AvailablePoints {
		return domain.Perk{}, &domain.InsufficientFundsError{Pending: domain.PendingMarker{
			Name:   b.Name,
			Cost:   b.Cost,
			Needed: b.Cost - t.state.AvailablePoints,
			Flags:  b.Flags,
		}}
	}

	t.dropBanked(i)
	perk, err := t.AddPerk(b.Draft())
	if err != nil && !errors.Is(err, domain.ErrAlreadyAcquired) {
		return perk, err
	}
	if err != nil {
		// AddPerk returned before committing; persist the bank removal.
		t.commit(domain.Event{Type: domain.EventStateChanged, Perk: b.Name, Message: fmt.Sprintf("%s already acquired, bank entry consumed", b.Name)})
	}
	return perk, err
}

// DiscardBanked drops a banked perk with no economic effect.
func (t *Tracker) DiscardBanked(name string) error {
	i := t.state.FindBanked(name)
	if i < 0 {
		return t.bankNotFound(name)
	}
	b := t.state.BankedPerks[i]
	t.dropBanked(i)
	t.history("discarded", b.Name, b.Cost)
	t.commit(domain.Event{Type: domain.EventStateChanged, Perk: b.Name, Message: fmt.Sprintf("%s discarded from bank", b.Name)})
	return nil
}

// CheckAffordability returns the banked perks the character can now buy.
func (t *Tracker) CheckAffordability() []domain.BankedPerk {
	domain.Recompute(t.state)
	var out []domain.BankedPerk
	for _, b := range t.state.BankedPerks {
		if b.Cost <= t.state.AvailablePoints {
			out = append(out, b)
		}
	}
	return out
}

// Banked returns a copy of the bank.
func (t *Tracker) Banked() []domain.BankedPerk {
	return append([]domain.BankedPerk{}, t.state.BankedPerks...)
}

func (t *Tracker) dropBanked(i int) {
	name := t.state.BankedPerks[i].Name
	t.state.BankedPerks = append(t.state.BankedPerks[:i], t.state.BankedPerks[i+1:]...)
	if t.state.Pending != nil && domain.SameName(t.state.Pending.Name, name) {
		t.state.Pending = nil
	}
	t.mirrorPending()
}

// mirrorPending points the legacy pending marker at the head of the bank.
func (t *Tracker) mirrorPending() {
	if len(t.state.BankedPerks) == 0 {
		return
	}
	head := t.state.BankedPerks[0]
	t.state.Pending = &domain.PendingMarker{
		Name:   head.Name,
		Cost:   head.Cost,
		Needed: max(0, head.Cost-t.state.AvailablePoints),
		Flags:  head.Flags,
	}
}

func (t *Tracker) bankNotFound(name string) error {
	names := make([]string, len(t.state.BankedPerks))
	for i, b := range t.state.BankedPerks {
		names[i] = b.Name
	}
	return &domain.NotFoundError{Name: name, Suggestion: Suggest(name, names), Err: domain.ErrBankedNotFound}
}
