// Package roll implements the single-slot roll/creation decision: a perk is
// proposed from the catalog or from a generation reply, and the player must
// acquire, bank or discard it before narrative sync may absorb that name.
package roll

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/forgeworks/forge/internal/app/narrative"
	"github.com/forgeworks/forge/internal/domain"
)

// Phase is the durable state name of the slot.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseProposalShown      Phase = "proposal_shown"
	PhaseAwaitingGeneration Phase = "awaiting_generation"
	// PhaseEmpty is a forge roll that found nothing to draw. It does not
	// block a new trigger.
	PhaseEmpty Phase = "nothing_to_draw"
)

// Kind says where the proposal comes from.
type Kind string

const (
	KindForge    Kind = "forge"
	KindCreation Kind = "creation"
)

// Slot is the persisted roll state.
type Slot struct {
	Phase              Phase             `json:"phase"`
	Kind               Kind              `json:"kind,omitempty"`
	Proposal           *domain.PerkDraft `json:"proposal,omitempty"`
	CatalogID          string            `json:"catalog_id,omitempty"`
	ConstellationKey   string            `json:"constellation_key,omitempty"`
	ConstellationLabel string            `json:"constellation_label,omitempty"`
	Tier               int               `json:"tier,omitempty"`
	Prompt             string            `json:"prompt,omitempty"`
	Strategy           string            `json:"strategy,omitempty"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Open reports whether the slot holds an undecided roll.
func (s Slot) Open() bool {
	return s.Phase == PhaseProposalShown || s.Phase == PhaseAwaitingGeneration
}

// ─── Collaborators ──────────────────────────────────────────────────────────

// SlotStore persists the slot outside process memory.
type SlotStore interface {
	LoadSlot() (Slot, error)
	SaveSlot(s Slot) error
}

// Catalog is the part of the perk database a roll needs.
type Catalog interface {
	Constellations() []domain.Constellation
	Describe(key string) (label, guide string)
	DrawRandom(key string, pick func(n int) int) (domain.CatalogEntry, error)
	AddEntry(key string, d domain.PerkDraft, source string) (domain.CatalogEntry, error)
}

// Registry is the part of the tracker a resolution needs.
type Registry interface {
	AddPerk(d domain.PerkDraft) (domain.Perk, error)
	BankPerk(d domain.PerkDraft, constellationKey string, src domain.BankSource) error
}

// ─── Machine ────────────────────────────────────────────────────────────────

// Machine drives one slot. It is not safe for concurrent use.
type Machine struct {
	slot    Slot
	store   SlotStore
	catalog Catalog
	reg     Registry
	notify  domain.Notifier
	pick    func(n int) int
	now     func() time.Time
}

// New loads the slot from store. pick returns a value in [0,n).
func New(store SlotStore, catalog Catalog, reg Registry, n domain.Notifier, pick func(n int) int) (*Machine, error) {
	if n == nil {
		n = domain.NopNotifier{}
	}
	m := &Machine{store: store, catalog: catalog, reg: reg, notify: n, pick: pick, now: time.Now}
	s, err := store.LoadSlot()
	if err != nil {
		return nil, fmt.Errorf("load roll slot: %w", err)
	}
	if s.Phase == "" {
		s.Phase = PhaseIdle
	}
	m.slot = s
	return m, nil
}

// Slot returns the current slot.
func (m *Machine) Slot() Slot { return m.slot }

// ProposedName is the perk name an open proposal reserves, or "".
func (m *Machine) ProposedName() string {
	if m.slot.Phase == PhaseProposalShown && m.slot.Proposal != nil {
		return m.slot.Proposal.Name
	}
	return ""
}

// TriggerForgeRoll draws a catalog perk. An empty constellation is not an
// error: the slot moves to PhaseEmpty and the player should try creation.
func (m *Machine) TriggerForgeRoll(key string) (Slot, error) {
	if m.slot.Open() {
		return m.slot, domain.ErrRollPending
	}
	key, label, err := m.resolveConstellation(key)
	if err != nil {
		return m.slot, err
	}

	entry, err := m.catalog.DrawRandom(key, m.pick)
	if errors.Is(err, domain.ErrNoCatalogPerks) {
		m.set(Slot{Phase: PhaseEmpty, Kind: KindForge, ConstellationKey: key, ConstellationLabel: label})
		m.emit("", fmt.Sprintf("The %s constellation has nothing to draw. Try a creation roll.", label))
		return m.slot, nil
	}
	if err != nil {
		return m.slot, err
	}

	d := entry.Draft()
	m.set(Slot{
		Phase:              PhaseProposalShown,
		Kind:               KindForge,
		Proposal:           &d,
		CatalogID:          entry.ID,
		ConstellationKey:   key,
		ConstellationLabel: label,
		Tier:               entry.Tier,
	})
	m.emit(d.Name, fmt.Sprintf("The forge offers %s (%d CP)", d.Name, d.Cost))
	return m.slot, nil
}

// TriggerCreationRoll asks for a freshly generated perk. The returned slot
// carries the prompt the host must inject into the next generation.
func (m *Machine) TriggerCreationRoll(key string, tier int) (Slot, error) {
	if m.slot.Open() {
		return m.slot, domain.ErrRollPending
	}
	key, label, err := m.resolveConstellation(key)
	if err != nil {
		return m.slot, err
	}
	if tier < 1 || tier > len(domain.TierBands) {
		tier = m.pick(len(domain.TierBands)) + 1
	}
	_, guide := m.catalog.Describe(key)

	m.set(Slot{
		Phase:              PhaseAwaitingGeneration,
		Kind:               KindCreation,
		ConstellationKey:   key,
		ConstellationLabel: label,
		Tier:               tier,
		Prompt:             GenerationPrompt(label, guide, domain.Band(tier)),
	})
	m.emit("", fmt.Sprintf("Creation roll: %s, tier %d", label, tier))
	return m.slot, nil
}

// HandleMessage feeds an AI message to a slot awaiting generation. It
// returns ErrNoProposal (non-fatal, slot unchanged) when the message has no
// recognizable perk, and (nil, nil) when nothing is awaited.
func (m *Machine) HandleMessage(text string) (*narrative.Proposal, error) {
	if m.slot.Phase != PhaseAwaitingGeneration {
		return nil, nil
	}
	p, ok := narrative.ParseCreation(text)
	if !ok {
		log.Printf("[roll] no perk proposal in message; still awaiting generation")
		m.emit("", "No perk found in that reply yet; waiting for the next one.")
		return nil, domain.ErrNoProposal
	}

	next := m.slot
	next.Phase = PhaseProposalShown
	next.Proposal = &p.Draft
	next.Prompt = ""
	next.Strategy = p.Strategy
	m.set(next)
	m.emit(p.Draft.Name, fmt.Sprintf("Generated %s (%d CP) via %s header", p.Draft.Name, p.Draft.Cost, p.Strategy))
	return &p, nil
}

// ─── Resolution ─────────────────────────────────────────────────────────────

// Outcome is how a proposal was resolved.
type Outcome string

const (
	OutcomeAcquired     Outcome = "acquired"
	OutcomeAlreadyOwned Outcome = "already_owned"
	OutcomeBanked       Outcome = "banked"
	OutcomeDiscarded    Outcome = "discarded"
)

// Resolution is the result of a player decision.
type Resolution struct {
	Outcome   Outcome               `json:"outcome"`
	Perk      string                `json:"perk,omitempty"`
	CatalogID string                `json:"catalog_id,omitempty"`
	Pending   *domain.PendingMarker `json:"pending,omitempty"`
}

// Acquire catalogs the proposal and buys it. An unaffordable perk is banked
// instead. If narrative sync already granted it, that counts as success.
func (m *Machine) Acquire() (Resolution, error) {
	d, err := m.register()
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{Perk: d.Name, CatalogID: d.DBLinkID}

	_, err = m.reg.AddPerk(d)
	var ife *domain.InsufficientFundsError
	switch {
	case err == nil:
		res.Outcome = OutcomeAcquired
	case errors.Is(err, domain.ErrAlreadyAcquired):
		res.Outcome = OutcomeAlreadyOwned
	case errors.As(err, &ife):
		if berr := m.reg.BankPerk(d, m.slot.ConstellationKey, m.source()); berr != nil {
			return res, fmt.Errorf("bank unaffordable %s: %w", d.Name, berr)
		}
		res.Outcome = OutcomeBanked
		res.Pending = &ife.Pending
	default:
		return res, err
	}

	m.clear()
	m.emit(d.Name, fmt.Sprintf("%s %s", d.Name, res.Outcome))
	return res, nil
}

// Bank catalogs the proposal and holds it in the banking queue. A failed
// bank leaves the proposal open.
func (m *Machine) Bank() (Resolution, error) {
	d, err := m.register()
	if err != nil {
		return Resolution{}, err
	}
	if err := m.reg.BankPerk(d, m.slot.ConstellationKey, m.source()); err != nil {
		return Resolution{}, err
	}
	m.clear()
	m.emit(d.Name, fmt.Sprintf("%s banked", d.Name))
	return Resolution{Outcome: OutcomeBanked, Perk: d.Name, CatalogID: d.DBLinkID}, nil
}

// Discard drops the proposal (or the pending generation) without touching
// the catalog or the economy.
func (m *Machine) Discard() (Resolution, error) {
	if m.slot.Phase == PhaseIdle {
		return Resolution{}, domain.ErrNoRoll
	}
	name := m.ProposedName()
	m.clear()
	m.emit(name, "roll discarded")
	return Resolution{Outcome: OutcomeDiscarded, Perk: name}, nil
}

// Cancel clears whatever the slot holds. Used on conversation switch.
func (m *Machine) Cancel() {
	if m.slot.Phase == PhaseIdle {
		return
	}
	log.Printf("[roll] %s roll cancelled (%s)", m.slot.Kind, m.slot.Phase)
	m.clear()
}

// register adds the proposal to the catalog (reusing the id of a same-named
// entry) and returns the draft linked to it.
func (m *Machine) register() (domain.PerkDraft, error) {
	if m.slot.Phase != PhaseProposalShown || m.slot.Proposal == nil {
		return domain.PerkDraft{}, domain.ErrNoRoll
	}
	d := *m.slot.Proposal
	entry, err := m.catalog.AddEntry(m.slot.ConstellationKey, d, string(m.source()))
	if err != nil && !errors.Is(err, domain.ErrCatalogDuplicate) {
		return d, fmt.Errorf("catalog %s: %w", d.Name, err)
	}
	d.DBLinkID = entry.ID
	m.slot.CatalogID = entry.ID
	return d, nil
}

func (m *Machine) source() domain.BankSource {
	if m.slot.Kind == KindCreation {
		return domain.SourceGeneration
	}
	return domain.SourceRoll
}

func (m *Machine) resolveConstellation(key string) (string, string, error) {
	all := m.catalog.Constellations()
	if len(all) == 0 {
		return "", "", domain.ErrConstellationNotFound
	}
	if key == "" {
		c := all[m.pick(len(all))]
		return c.Key, c.Label, nil
	}
	for _, c := range all {
		if c.Key == key {
			return c.Key, c.Label, nil
		}
	}
	return "", "", fmt.Errorf("%s: %w", key, domain.ErrConstellationNotFound)
}

func (m *Machine) set(s Slot) {
	s.UpdatedAt = m.now()
	m.slot = s
	if err := m.store.SaveSlot(s); err != nil {
		log.Printf("[roll] save slot: %v", err)
	}
}

func (m *Machine) clear() {
	m.set(Slot{Phase: PhaseIdle})
}

func (m *Machine) emit(perk, msg string) {
	m.notify.Notify(domain.Event{Type: domain.EventRoll, Perk: perk, Message: msg, Timestamp: m.now()})
}
