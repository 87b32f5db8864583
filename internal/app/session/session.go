// Package session owns the object graph for the active conversation: one
// tracker over one CharacterState, a handle on the shared perk database and
// the conversation's roll slot. Every host event and command goes through a
// Session, which serializes them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/forgeworks/forge/internal/app/forge"
	"github.com/forgeworks/forge/internal/app/gateway"
	"github.com/forgeworks/forge/internal/app/narrative"
	"github.com/forgeworks/forge/internal/app/perkdb"
	"github.com/forgeworks/forge/internal/app/reconcile"
	"github.com/forgeworks/forge/internal/app/roll"
	"github.com/forgeworks/forge/internal/domain"
	"github.com/forgeworks/forge/internal/infra/observability"
)

// Config groups the settings a session hands to its components.
type Config struct {
	Forge         forge.Config
	Reconcile     reconcile.Config
	CharacterName string
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		Forge:         forge.DefaultConfig(),
		Reconcile:     reconcile.DefaultConfig(),
		CharacterName: narrative.DefaultCharacterName,
	}
}

// MarkStore persists the last processed message sequence per conversation.
type MarkStore interface {
	LastSeq(conversation string) (int64, error)
	SetLastSeq(conversation string, seq int64) error
}

// Deps are the collaborators a session is built from.
type Deps struct {
	KV       domain.KVStore
	Marks    MarkStore
	Gateway  *gateway.Gateway
	Catalog  *perkdb.Database
	Notifier domain.Notifier
	Pick     func(n int) int // nil uses math/rand
}

// Session is safe for concurrent use.
type Session struct {
	mu   sync.Mutex
	cfg  Config
	deps Deps
	now  func() time.Time

	conversation string
	lastSeq      int64
	tracker      *forge.Tracker
	roll         *roll.Machine
	ctrl         *reconcile.Controller
	affordable   map[string]bool
}

// New opens conversation (empty for the global state).
func New(ctx context.Context, cfg Config, deps Deps, conversation string) (*Session, error) {
	if deps.KV == nil || deps.Gateway == nil || deps.Catalog == nil {
		return nil, errors.New("session: kv, gateway and catalog are required")
	}
	if deps.Notifier == nil {
		deps.Notifier = domain.NopNotifier{}
	}
	if deps.Pick == nil {
		deps.Pick = rand.IntN
	}
	if cfg.CharacterName == "" {
		cfg.CharacterName = narrative.DefaultCharacterName
	}
	s := &Session{cfg: cfg, deps: deps, now: time.Now}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.open(ctx, conversation); err != nil {
		return nil, err
	}
	return s, nil
}

// open builds the graph for conversation from storage.
func (s *Session) open(ctx context.Context, conversation string) error {
	s.deps.Gateway.SetConversation(conversation)
	st, src, err := s.deps.Gateway.Load(ctx)
	if err != nil {
		log.Printf("[session] load %q (%s): %v", conversation, src, err)
	}

	tr := forge.New(s.cfg.Forge, st, s.deps.Gateway, s.deps.Notifier)
	tr.SetCatalogLinker(s.deps.Catalog)

	m, err := roll.New(roll.NewKVSlotStore(s.deps.KV, conversation), s.deps.Catalog, tr, s.deps.Notifier, s.deps.Pick)
	if err != nil {
		return fmt.Errorf("open %q: %w", conversation, err)
	}

	s.conversation = conversation
	s.tracker = tr
	s.roll = m
	s.ctrl = reconcile.New(s.cfg.Reconcile, tr, m, s.deps.Notifier)
	s.lastSeq = -1
	if s.deps.Marks != nil {
		if seq, err := s.deps.Marks.LastSeq(conversation); err == nil {
			s.lastSeq = seq
		}
	}
	s.affordable = make(map[string]bool)
	for _, b := range tr.CheckAffordability() {
		s.affordable[domain.NameKey(b.Name)] = true
	}
	s.observe()
	if s.cfg.Forge.Debug {
		log.Printf("[session] opened %q from %s (last seq %d)", conversation, src, s.lastSeq)
	}
	return nil
}

// Conversation returns the active conversation id.
func (s *Session) Conversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation
}

// ─── Host Events ────────────────────────────────────────────────────────────

// MessageResult describes what one AI message did.
type MessageResult struct {
	Seq        int64               `json:"seq"`
	Duplicate  bool                `json:"duplicate,omitempty"`
	Proposal   *narrative.Proposal `json:"proposal,omitempty"`
	RollError  string              `json:"roll_error,omitempty"`
	Report     reconcile.Report    `json:"report"`
	Affordable []string            `json:"affordable,omitempty"`
}

// HandleMessage applies one AI message. A seq at or below the last processed
// one is a re-delivery and is ignored. The roll slot sees the message before
// reconciliation so a freshly generated proposal guards its own name.
func (s *Session) HandleMessage(seq int64, text string) (MessageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := MessageResult{Seq: seq}
	if !s.cfg.Reconcile.Enabled {
		observability.MessagesTotal.WithLabelValues("disabled").Inc()
		return res, domain.ErrTrackingDisabled
	}
	if seq <= s.lastSeq {
		observability.MessagesTotal.WithLabelValues("duplicate").Inc()
		res.Duplicate = true
		return res, nil
	}

	p, err := s.roll.HandleMessage(text)
	switch {
	case errors.Is(err, domain.ErrNoProposal):
		res.RollError = err.Error()
	case err != nil:
		log.Printf("[session] roll: %v", err)
		res.RollError = err.Error()
	case p != nil:
		res.Proposal = p
		observability.RollTransitions.WithLabelValues("generated").Inc()
	}

	rep, err := s.ctrl.ProcessMessage(text)
	if err != nil {
		return res, err
	}
	res.Report = rep

	s.lastSeq = seq
	if s.deps.Marks != nil {
		if err := s.deps.Marks.SetLastSeq(s.conversation, seq); err != nil {
			log.Printf("[session] mark seq %d: %v", seq, err)
		}
	}

	observability.MessagesTotal.WithLabelValues("processed").Inc()
	switch {
	case rep.CheckpointError != "":
		observability.CheckpointsTotal.WithLabelValues("malformed").Inc()
	case rep.Checkpoint:
		observability.CheckpointsTotal.WithLabelValues("synced").Inc()
	}
	observability.PerksDetected.WithLabelValues("added").Add(float64(len(rep.Added)))
	observability.PerksDetected.WithLabelValues("merged").Add(float64(len(rep.Merged)))
	observability.PerksDetected.WithLabelValues("pending").Add(float64(len(rep.Pending)))
	observability.PerksDetected.WithLabelValues("deferred").Add(float64(len(rep.Deferred)))
	for _, ev := range rep.XP {
		observability.XPGranted.Add(float64(ev.Amount))
	}

	res.Affordable = s.announce(rep.Affordable)
	s.observe()
	return res, nil
}

// SwitchConversation discards any open roll and reloads state for id.
func (s *Session) SwitchConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roll.Slot().Phase != roll.PhaseIdle {
		observability.RollTransitions.WithLabelValues("cancel").Inc()
	}
	s.roll.Cancel()
	if err := s.open(ctx, id); err != nil {
		return err
	}
	// A slot left behind by an earlier visit is just as stale.
	s.roll.Cancel()
	return nil
}

// announce reports banked perks that became affordable since the last check.
func (s *Session) announce(list []domain.BankedPerk) []string {
	now := make(map[string]bool, len(list))
	var fresh []string
	for _, b := range list {
		key := domain.NameKey(b.Name)
		now[key] = true
		if s.affordable[key] {
			continue
		}
		fresh = append(fresh, b.Name)
		s.deps.Notifier.Notify(domain.Event{
			Type:      domain.EventAffordable,
			Perk:      b.Name,
			Message:   fmt.Sprintf("You can now afford %s (%d CP)", b.Name, b.Cost),
			Timestamp: s.now(),
		})
	}
	s.affordable = now
	return fresh
}

func (s *Session) afterPoints() []string {
	fresh := s.announce(s.tracker.CheckAffordability())
	s.observe()
	return fresh
}

func (s *Session) observe() {
	observability.AvailablePoints.Set(float64(s.tracker.State().AvailablePoints))
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() *domain.CharacterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.State()
}

// Stats returns the rendering-layer view of the state.
func (s *Session) Stats() narrative.StatsDoc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return narrative.BuildStats(s.tracker.State())
}

// RenderCheckpoint renders the state as a fenced checkpoint block.
func (s *Session) RenderCheckpoint() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return narrative.RenderCheckpoint(s.tracker.State(), s.cfg.CharacterName, s.now())
}

// RenderSummary renders the prompt-injectable summary.
func (s *Session) RenderSummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return narrative.RenderSummary(s.tracker.State())
}

// Status extends the tracker status with session context.
type Status struct {
	forge.Status
	Conversation string     `json:"conversation"`
	Profile      string     `json:"profile,omitempty"`
	RollPhase    roll.Phase `json:"roll_phase"`
	LastSeq      int64      `json:"last_seq"`
}

// Status returns the compact status line.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Status:       s.tracker.Status(),
		Conversation: s.conversation,
		Profile:      s.deps.Gateway.ActiveProfile(),
		RollPhase:    s.roll.Slot().Phase,
		LastSeq:      s.lastSeq,
	}
}
