package roll

import (
	"errors"
	"strings"
	"testing"

	"github.com/forgeworks/forge/internal/app/forge"
	"github.com/forgeworks/forge/internal/app/perkdb"
	"github.com/forgeworks/forge/internal/domain"
	"github.com/forgeworks/forge/internal/infra/sqlite"
)

const emberReply = "The anvil rings.\n\n**[Ember Heart]** (250 CP) [SCALING, COMBAT]\n" +
	"A coal of living flame settles behind your sternum and never goes out.\n\n" +
	"SCALING:\n1-3: warm hands\n4-6: flame aura\n"

type fixture struct {
	kv      *sqlite.DB
	catalog *perkdb.Database
	tracker *forge.Tracker
	machine *Machine
}

func first(int) int { return 0 }

func newFixture(t *testing.T, cfg forge.Config) *fixture {
	t.Helper()
	kv, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kv.Close() })
	catalog, err := perkdb.Open(kv)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{kv: kv, catalog: catalog, tracker: forge.New(cfg, nil, nil, nil)}
	f.machine = f.newMachine(t)
	return f
}

func (f *fixture) newMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := New(NewKVSlotStore(f.kv, "chat-1"), f.catalog, f.tracker, nil, first)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return m
}

// ─── Triggers ───────────────────────────────────────────────────────────────

func TestTriggerForgeRoll_NothingToDraw(t *testing.T) {
	f := newFixture(t, forge.DefaultConfig())
	s, err := f.machine.TriggerForgeRoll("magic")
	if err != nil {
		t.Fatal(err)
	}
	if s.Phase != PhaseEmpty || s.Open() {
		t.Errorf("phase = %s, want %s (not open)", s.Phase, PhaseEmpty)
	}
	// An empty draw does not block a creation roll.
	if _, err := f.machine.TriggerCreationRoll("magic", 2); err != nil {
		t.Errorf("creation after empty draw: %v", err)
	}
}

func TestTriggerForgeRoll_RejectsWhilePending(t *testing.T) {
	f := newFixture(t, forge.DefaultConfig())
	f.catalog.AddEntry("weapons", domain.PerkDraft{Name: "Edge Sense", Cost: 30}, "roll")

	s, err := f.machine.TriggerForgeRoll("weapons")
	if err != nil {
		t.Fatal(err)
	}
	if s.Phase != PhaseProposalShown || f.machine.ProposedName() != "Edge Sense" || s.CatalogID == "" {
		t.Fatalf("slot = %+v", s)
	}
	if _, err := f.machine.TriggerForgeRoll("weapons"); !errors.Is(err, domain.ErrRollPending) {
		t.Errorf("second forge roll err = %v, want ErrRollPending", err)
	}
	if _, err := f.machine.TriggerCreationRoll("", 1); !errors.Is(err, domain.ErrRollPending) {
		t.Errorf("creation while pending err = %v, want ErrRollPending", err)
	}
	if _, err := f.machine.TriggerForgeRoll("nowhere"); !errors.Is(err, domain.ErrRollPending) {
		t.Errorf("pending check must come first, got %v", err)
	}
}

func TestTriggerForgeRoll_UnknownConstellation(t *testing.T) {
	f := newFixture(t, forge.DefaultConfig())
	if _, err := f.machine.TriggerForgeRoll("nowhere"); !errors.Is(err, domain.ErrConstellationNotFound) {
		t.Errorf("err = %v, want ErrConstellationNotFound", err)
	}
}

// ─── Creation ───────────────────────────────────────────────────────────────

func TestCreationRoll_SurvivesRestart(t *testing.T) {
	f := newFixture(t, forge.DefaultConfig())
	s, err := f.machine.TriggerCreationRoll("magic", 3)
	if err != nil {
		t.Fatal(err)
	}
	if s.Phase != PhaseAwaitingGeneration || !strings.Contains(s.Prompt, "CREATION ROLL") {
		t.Fatalf("slot = %+v", s)
	}
	if !strings.Contains(s.Prompt, "between 201 and 300 CP") {
		t.Errorf("prompt missing tier band:\n%s", s.Prompt)
	}

	// A new machine over the same store resumes the awaited generation.
	m := f.newMachine(t)
	if m.Slot().Phase != PhaseAwaitingGeneration {
		t.Fatalf("reloaded phase = %s", m.Slot().Phase)
	}
	if _, err := m.HandleMessage("The smith is still thinking."); !errors.Is(err, domain.ErrNoProposal) {
		t.Errorf("no-match err = %v, want ErrNoProposal", err)
	}
	if m.Slot().Phase != PhaseAwaitingGeneration {
		t.Errorf("failed parse ended the wait: %s", m.Slot().Phase)
	}

	p, err := m.HandleMessage(emberReply)
	if err != nil {
		t.Fatal(err)
	}
	if p.Draft.Name != "Ember Heart" || p.Draft.Cost != 250 || p.Strategy != "direct" {
		t.Errorf("proposal = %+v", p)
	}
	if m.ProposedName() != "Ember Heart" || m.Slot().Prompt != "" {
		t.Errorf("slot = %+v", m.Slot())
	}
	if got, _ := m.HandleMessage(emberReply); got != nil {
		t.Error("message handled while not awaiting generation")
	}
}

func TestCreationRoll_RandomTier(t *testing.T) {
	f := newFixture(t, forge.DefaultConfig())
	s, _ := f.machine.TriggerCreationRoll("magic", 0)
	if s.Tier != 1 {
		t.Errorf("tier = %d, want 1 from pick", s.Tier)
	}
}

// ─── Resolution ─────────────────────────────────────────────────────────────

func proposeEmber(t *testing.T, f *fixture) {
	t.Helper()
	if _, err := f.machine.TriggerCreationRoll("magic", 3); err != nil {
		t.Fatal(err)
	}
	if _, err := f.machine.HandleMessage(emberReply); err != nil {
		t.Fatal(err)
	}
}

func TestAcquire(t *testing.T) {
	f := newFixture(t, forge.DefaultConfig())
	f.tracker.AddBonusPoints(300)
	proposeEmber(t, f)

	res, err := f.machine.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeAcquired || res.CatalogID == "" {
		t.Errorf("resolution = %+v", res)
	}
	p, err := f.tracker.Perk("Ember Heart")
	if err != nil || p.DBLinkID != res.CatalogID {
		t.Errorf("perk = %+v, %v", p, err)
	}
	if got := f.catalog.Entries("magic"); len(got) != 1 || got[0].Source != string(domain.SourceGeneration) {
		t.Errorf("catalog = %+v", got)
	}
	if f.machine.Slot().Phase != PhaseIdle {
		t.Errorf("phase = %s, want idle", f.machine.Slot().Phase)
	}
	if _, err := f.machine.Acquire(); !errors.Is(err, domain.ErrNoRoll) {
		t.Errorf("acquire on idle err = %v", err)
	}
}

func TestAcquire_UnaffordableBanks(t *testing.T) {
	f := newFixture(t, forge.DefaultConfig())
	f.tracker.AddBonusPoints(100)
	proposeEmber(t, f)

	res, err := f.machine.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeBanked || res.Pending == nil || res.Pending.Needed != 150 {
		t.Errorf("resolution = %+v", res)
	}
	banked := f.tracker.Banked()
	if len(banked) != 1 || banked[0].Source != domain.SourceGeneration || banked[0].ConstellationKey != "magic" {
		t.Errorf("banked = %+v", banked)
	}
	if f.tracker.HasPerk("Ember Heart") {
		t.Error("unaffordable perk acquired")
	}
}

func TestAcquire_AlreadyOwned(t *testing.T) {
	f := newFixture(t, forge.DefaultConfig())
	f.tracker.AddBonusPoints(600)
	proposeEmber(t, f)
	f.tracker.AddPerk(domain.PerkDraft{Name: "ember heart", Cost: 250})

	res, err := f.machine.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeAlreadyOwned || f.machine.Slot().Phase != PhaseIdle {
		t.Errorf("resolution = %+v, phase %s", res, f.machine.Slot().Phase)
	}
	if st := f.tracker.State(); st.SpentPoints != 250 {
		t.Errorf("spent = %d, want 250 (no double charge)", st.SpentPoints)
	}
}

func TestBank_FailureKeepsProposal(t *testing.T) {
	cfg := forge.DefaultConfig()
	cfg.BankMax = 1
	f := newFixture(t, cfg)
	f.tracker.BankPerk(domain.PerkDraft{Name: "Spark", Cost: 5}, "magic", domain.SourceRoll)
	proposeEmber(t, f)

	if _, err := f.machine.Bank(); !errors.Is(err, domain.ErrBankFull) {
		t.Fatalf("err = %v, want ErrBankFull", err)
	}
	if f.machine.ProposedName() != "Ember Heart" {
		t.Errorf("proposal lost after failed bank: %+v", f.machine.Slot())
	}

	f.tracker.DiscardBanked("Spark")
	res, err := f.machine.Bank()
	if err != nil || res.Outcome != OutcomeBanked {
		t.Fatalf("retry bank = %+v, %v", res, err)
	}
	if f.machine.Slot().Phase != PhaseIdle {
		t.Errorf("phase = %s", f.machine.Slot().Phase)
	}
}

func TestDiscard_LeavesCatalogUntouched(t *testing.T) {
	f := newFixture(t, forge.DefaultConfig())
	proposeEmber(t, f)

	res, err := f.machine.Discard()
	if err != nil || res.Outcome != OutcomeDiscarded || res.Perk != "Ember Heart" {
		t.Fatalf("Discard() = %+v, %v", res, err)
	}
	if got := f.catalog.Entries("magic"); len(got) != 0 {
		t.Errorf("discard catalogued %+v", got)
	}
	if st := f.tracker.State(); len(st.AcquiredPerks) != 0 || len(st.BankedPerks) != 0 {
		t.Error("discard touched the character")
	}
	if _, err := f.machine.Discard(); !errors.Is(err, domain.ErrNoRoll) {
		t.Errorf("second discard err = %v, want ErrNoRoll", err)
	}
}

func TestCancel_ClearsDurableSlot(t *testing.T) {
	f := newFixture(t, forge.DefaultConfig())
	f.machine.TriggerCreationRoll("magic", 2)
	f.machine.Cancel()

	if f.machine.Slot().Phase != PhaseIdle {
		t.Errorf("phase = %s", f.machine.Slot().Phase)
	}
	if _, err := f.kv.GetBlob("roll_chat-1"); !errors.Is(err, domain.ErrStateNotFound) {
		t.Errorf("slot blob survived cancel: %v", err)
	}
	if m := f.newMachine(t); m.Slot().Phase != PhaseIdle {
		t.Errorf("reloaded phase = %s", m.Slot().Phase)
	}
}
