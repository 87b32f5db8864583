package session

import (
	"context"

	"github.com/forgeworks/forge/internal/app/forge"
	"github.com/forgeworks/forge/internal/app/perkdb"
	"github.com/forgeworks/forge/internal/app/roll"
	"github.com/forgeworks/forge/internal/domain"
	"github.com/forgeworks/forge/internal/infra/observability"
)

// ─── Economy ────────────────────────────────────────────────────────────────

// SetAvailablePoints adjusts the bonus so available equals target. It
// returns banked perks that became affordable.
func (s *Session) SetAvailablePoints(target int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.SetAvailablePoints(target)
	return s.afterPoints()
}

// AddBonusPoints adds to the bonus accumulator.
func (s *Session) AddBonusPoints(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.AddBonusPoints(n)
	return s.afterPoints()
}

func (s *Session) SetCorruption(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.SetCorruption(v)
}

func (s *Session) SetSanity(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.SetSanity(v)
}

// ─── Perks ──────────────────────────────────────────────────────────────────

func (s *Session) AddPerk(d domain.PerkDraft) (domain.Perk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.tracker.AddPerk(d)
	s.observe()
	return p, err
}

func (s *Session) EditPerk(name string, u domain.PerkUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.tracker.EditPerk(name, u)
	s.afterPoints()
	return err
}

// RemovePerk refunds the perk's cost.
func (s *Session) RemovePerk(name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tracker.RemovePerk(name); err != nil {
		return nil, err
	}
	return s.afterPoints(), nil
}

func (s *Session) TogglePerk(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.TogglePerk(name)
}

func (s *Session) Perk(name string) (domain.Perk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Perk(name)
}

func (s *Session) EnablePerkScaling(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.EnablePerkScaling(name)
}

func (s *Session) EnablePerkUncapped(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.EnablePerkUncapped(name)
}

// ApplyGamer activates every scaffold. It reports whether anything changed.
func (s *Session) ApplyGamer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.ApplyGamer()
}

// ApplyUncapped lifts every level cap. It reports whether anything changed.
func (s *Session) ApplyUncapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.ApplyUncapped()
}

func (s *Session) AddXP(name string, amount int) (domain.ScalingState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.AddXP(name, amount)
}

func (s *Session) SetLevel(name string, level, xp int) (domain.ScalingState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.SetLevel(name, level, xp)
}

// ─── Banking ────────────────────────────────────────────────────────────────

// BankPerk holds a manually entered perk.
func (s *Session) BankPerk(d domain.PerkDraft, constellationKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tracker.BankPerk(d, constellationKey, domain.SourceDetected); err != nil {
		return err
	}
	s.afterPoints()
	return nil
}

func (s *Session) AcquireBanked(name string) (domain.Perk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.tracker.AcquireBanked(name)
	s.afterPoints()
	return p, err
}

func (s *Session) DiscardBanked(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tracker.DiscardBanked(name); err != nil {
		return err
	}
	s.afterPoints()
	return nil
}

func (s *Session) Banked() []domain.BankedPerk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Banked()
}

// CheckAffordability lists every banked perk the character can buy now.
func (s *Session) CheckAffordability() []domain.BankedPerk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.CheckAffordability()
}

// ─── Roll ───────────────────────────────────────────────────────────────────

func (s *Session) RollSlot() roll.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roll.Slot()
}

// TriggerForgeRoll draws from key (random constellation when empty).
func (s *Session) TriggerForgeRoll(key string) (roll.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, err := s.roll.TriggerForgeRoll(key)
	if err == nil {
		observability.RollTransitions.WithLabelValues("forge").Inc()
	}
	return slot, err
}

// TriggerCreationRoll starts a generation; tier 0 picks one at random.
func (s *Session) TriggerCreationRoll(key string, tier int) (roll.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, err := s.roll.TriggerCreationRoll(key, tier)
	if err == nil {
		observability.RollTransitions.WithLabelValues("creation").Inc()
	}
	return slot, err
}

func (s *Session) AcquireRoll() (roll.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.roll.Acquire()
	if err == nil {
		observability.RollTransitions.WithLabelValues("acquire").Inc()
		s.observe()
	}
	return res, err
}

func (s *Session) BankRoll() (roll.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.roll.Bank()
	if err == nil {
		observability.RollTransitions.WithLabelValues("bank").Inc()
	}
	return res, err
}

func (s *Session) DiscardRoll() (roll.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.roll.Discard()
	if err == nil {
		observability.RollTransitions.WithLabelValues("discard").Inc()
	}
	return res, err
}

// ─── Catalog ────────────────────────────────────────────────────────────────

func (s *Session) Constellations() []domain.Constellation {
	return s.deps.Catalog.Constellations()
}

func (s *Session) CatalogEntries(key string) []domain.CatalogEntry {
	return s.deps.Catalog.Entries(key)
}

// AddConstellation registers a custom constellation and returns its key.
func (s *Session) AddConstellation(label, category string) (string, error) {
	return s.deps.Catalog.AddConstellation(label, category)
}

func (s *Session) RemoveConstellation(key string) error {
	return s.deps.Catalog.RemoveConstellation(key)
}

func (s *Session) SetGuide(key, guide string) error {
	return s.deps.Catalog.SetGuide(key, guide)
}

// ─── Profiles ───────────────────────────────────────────────────────────────

func (s *Session) Profiles() ([]string, error) {
	return s.deps.Gateway.Profiles()
}

// CreateProfile stores a new profile, seeded from the current state when
// copyCurrent is set.
func (s *Session) CreateProfile(name string, copyCurrent bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st *domain.CharacterState
	if copyCurrent {
		st = s.tracker.State()
	}
	return s.deps.Gateway.CreateProfile(name, st)
}

func (s *Session) DuplicateProfile(src, dst string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deps.Gateway.DuplicateProfile(src, dst)
}

// SwitchProfile selects a profile ("" for per-chat state) and reloads. The
// roll slot belongs to the conversation and survives.
func (s *Session) SwitchProfile(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.deps.Gateway.SwitchProfile(ctx, name)
	if err != nil {
		return "", err
	}
	return p, s.open(ctx, s.conversation)
}

// ─── Whole State ────────────────────────────────────────────────────────────

// Export serializes the full state.
func (s *Session) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Export()
}

// Import replaces the state with a previously exported document.
func (s *Session) Import(body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tracker.Import(body); err != nil {
		return err
	}
	s.resetAffordable()
	return nil
}

// Reset replaces the state with a fresh default.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.Reset()
	s.resetAffordable()
}

func (s *Session) resetAffordable() {
	s.affordable = make(map[string]bool)
	for _, b := range s.tracker.CheckAffordability() {
		s.affordable[domain.NameKey(b.Name)] = true
	}
	s.observe()
}

// TrackerStatus is the bare tracker status.
func (s *Session) TrackerStatus() forge.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Status()
}

// CatalogStats counts catalog perks per constellation.
func (s *Session) CatalogStats() []perkdb.KeyCount {
	return s.deps.Catalog.Stats()
}

// SyncCatalog pulls the remote perk database, if one exists, and adopts it.
func (s *Session) SyncCatalog(ctx context.Context) (bool, error) {
	body, ok, err := s.deps.Gateway.RemoteFile(ctx, perkdb.FileName)
	if err != nil || !ok {
		return false, err
	}
	if err := s.deps.Catalog.Adopt([]byte(body)); err != nil {
		return false, err
	}
	return true, nil
}
