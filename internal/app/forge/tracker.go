// Package forge owns one character's perk economy: the perk registry, the
// leveling engine, the banking queue and the global modifiers.
//
// Every mutating method leaves the economy recomputed and the state persisted
// before it returns, so nested calls (banking → addPerk, roll → addPerk)
// always observe consistent totals.
package forge

import (
	"log"
	"time"

	"github.com/forgeworks/forge/internal/domain"
)

// Version is reported by Status.
const Version = "2.0.0"

// Config controls the economy.
type Config struct {
	Enabled       bool
	CPPerResponse int
	Threshold     int
	BankMax       int
	Debug         bool
}

// DefaultConfig returns the standard economy settings.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		CPPerResponse: domain.DefaultCPPerResponse,
		Threshold:     domain.DefaultThreshold,
		BankMax:       domain.DefaultBankMax,
	}
}

// Persister writes a state snapshot to durable storage.
type Persister interface {
	Save(st *domain.CharacterState) error
}

// CatalogLinker pushes edits of a catalog-linked perk back to the catalog.
type CatalogLinker interface {
	UpdateEntry(id string, u domain.CatalogUpdate) error
}

// Tracker mutates a single CharacterState. It is not safe for concurrent
// use; the owning session serializes access.
type Tracker struct {
	cfg     Config
	state   *domain.CharacterState
	persist Persister
	notify  domain.Notifier
	linker  CatalogLinker
	now     func() time.Time
}

// New creates a tracker over st. A nil st starts fresh.
func New(cfg Config, st *domain.CharacterState, p Persister, n domain.Notifier) *Tracker {
	if cfg.CPPerResponse <= 0 {
		cfg.CPPerResponse = domain.DefaultCPPerResponse
	}
	if cfg.BankMax <= 0 {
		cfg.BankMax = domain.DefaultBankMax
	}
	if n == nil {
		n = domain.NopNotifier{}
	}
	t := &Tracker{cfg: cfg, persist: p, notify: n, now: time.Now}
	t.load(st)
	return t
}

// SetCatalogLinker attaches the catalog that linked perk edits propagate to.
func (t *Tracker) SetCatalogLinker(l CatalogLinker) { t.linker = l }

// Config returns the economy settings.
func (t *Tracker) Config() Config { return t.cfg }

// State returns a deep copy of the current state with derived fields fresh.
func (t *Tracker) State() *domain.CharacterState {
	domain.Recompute(t.state)
	return t.state.Clone()
}

// Replace swaps in a whole new state (import, reset, conversation switch).
// It is never merged with the old one.
func (t *Tracker) Replace(st *domain.CharacterState) {
	t.load(st)
	t.commit(domain.Event{Type: domain.EventStateChanged, Message: "state replaced"})
}

// Reset replaces the state with a fresh default.
func (t *Tracker) Reset() {
	t.Replace(domain.NewCharacterState())
}

func (t *Tracker) load(st *domain.CharacterState) {
	if st == nil {
		st = domain.NewCharacterState()
	}
	if st.Threshold <= 0 {
		st.Threshold = t.cfg.Threshold
	}
	t.state = st
	for i := range t.state.AcquiredPerks {
		t.refreshScaffold(&t.state.AcquiredPerks[i])
	}
	domain.Recompute(t.state)
}

// ─── Status ─────────────────────────────────────────────────────────────────

// Status is a compact health line for the host.
type Status struct {
	Version  string `json:"version"`
	Enabled  bool   `json:"enabled"`
	Perks    int    `json:"perks"`
	Banked   int    `json:"banked"`
	Points   int    `json:"total_points"`
	Uncapped bool   `json:"uncapped"`
	Gamer    bool   `json:"gamer"`
}

// Status returns the compact status line.
func (t *Tracker) Status() Status {
	domain.Recompute(t.state)
	return Status{
		Version:  Version,
		Enabled:  t.cfg.Enabled,
		Perks:    len(t.state.AcquiredPerks),
		Banked:   len(t.state.BankedPerks),
		Points:   t.state.TotalPoints,
		Uncapped: t.state.HasUncapped,
		Gamer:    t.state.HasGamer,
	}
}

// ─── Commit Helpers ─────────────────────────────────────────────────────────

// commit recomputes, persists and notifies.
func (t *Tracker) commit(ev domain.Event) {
	domain.Recompute(t.state)
	t.save()
	t.emit(ev)
}

// save persists without recomputing. Persistence failure never rolls back
// the in-memory mutation.
func (t *Tracker) save() {
	if t.persist == nil {
		return
	}
	if err := t.persist.Save(t.state); err != nil {
		log.Printf("[forge] save failed: %v", err)
	}
}

func (t *Tracker) emit(ev domain.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = t.now()
	}
	t.debugf("%s %s", ev.Type, ev.Message)
	t.notify.Notify(ev)
}

func (t *Tracker) debugf(format string, args ...any) {
	if t.cfg.Debug {
		log.Printf("[forge] "+format, args...)
	}
}

func (t *Tracker) history(action, perk string, cost int) {
	t.state.History = append(t.state.History, domain.HistoryEntry{
		Action:    action,
		Perk:      perk,
		Cost:      cost,
		Timestamp: t.now(),
	})
}
