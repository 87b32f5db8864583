package perkdb

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/forgeworks/forge/internal/domain"
	"github.com/forgeworks/forge/internal/infra/sqlite"
)

type capturePublisher struct {
	mu    sync.Mutex
	names []string
	last  string
}

func (p *capturePublisher) Publish(name, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, name)
	p.last = content
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.names)
}

type stubGenerator struct {
	text string
	err  error
}

func (g stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if !strings.Contains(prompt, "constellation") {
		return "", errors.New("unexpected prompt")
	}
	return g.text, g.err
}

func newTestKV(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("sqlite.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestDatabase(t *testing.T, opts ...Option) *Database {
	t.Helper()
	d, err := Open(newTestKV(t), opts...)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	return d
}

func draft(name string, cost int, flags ...domain.Flag) domain.PerkDraft {
	return domain.PerkDraft{Name: name, Cost: cost, Flags: flags, Description: "desc"}
}

// ─── Entries ────────────────────────────────────────────────────────────────

func TestAddEntry(t *testing.T) {
	pub := &capturePublisher{}
	d := newTestDatabase(t, WithPublisher(pub))

	e, err := d.AddEntry("magic", draft("Ember Heart", 250, domain.FlagScaling), "generation")
	if err != nil {
		t.Fatalf("AddEntry() error: %v", err)
	}
	if e.ID == "" || e.Tier != 3 || e.Source != "generation" {
		t.Errorf("entry = %+v, want id, tier 3, source generation", e)
	}
	if pub.count() != 1 || pub.names[0] != FileName {
		t.Errorf("published = %v, want [%s]", pub.names, FileName)
	}

	dup, err := d.AddEntry("magic", draft("ember heart", 10), "roll")
	if !errors.Is(err, domain.ErrCatalogDuplicate) {
		t.Fatalf("duplicate err = %v, want ErrCatalogDuplicate", err)
	}
	if dup.ID != e.ID {
		t.Errorf("duplicate returned id %s, want existing %s", dup.ID, e.ID)
	}
	if got := len(d.Entries("magic")); got != 1 {
		t.Errorf("entries = %d, want 1", got)
	}

	// Same name under another constellation is a distinct entry.
	if _, err := d.AddEntry("weapons", draft("Ember Heart", 250), "roll"); err != nil {
		t.Errorf("cross-constellation add: %v", err)
	}
}

func TestAddEntry_Validation(t *testing.T) {
	d := newTestDatabase(t)
	tests := []struct {
		name string
		key  string
		d    domain.PerkDraft
		want error
	}{
		{"blank name", "magic", draft("  ", 10), domain.ErrNoName},
		{"unknown constellation", "nowhere", draft("X", 10), domain.ErrConstellationNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.AddEntry(tt.key, tt.d, "roll"); !errors.Is(err, tt.want) {
				t.Errorf("AddEntry(%q) err = %v, want %v", tt.key, err, tt.want)
			}
		})
	}
}

func TestTierForCost(t *testing.T) {
	tests := []struct {
		cost, want int
	}{
		{0, 1}, {100, 1}, {101, 2}, {200, 2}, {300, 3}, {301, 4}, {500, 4}, {700, 5}, {701, 6}, {5000, 6},
	}
	for _, tt := range tests {
		if got := domain.TierForCost(tt.cost); got != tt.want {
			t.Errorf("TierForCost(%d) = %d, want %d", tt.cost, got, tt.want)
		}
	}
}

func TestUpdateEntry(t *testing.T) {
	d := newTestDatabase(t)
	e, _ := d.AddEntry("armor", draft("Stone Ward", 40), "roll")
	d.AddEntry("armor", draft("Iron Skin", 60), "roll")

	name, cost := "Granite Ward", 450
	if err := d.UpdateEntry(e.ID, domain.CatalogUpdate{Name: &name, Cost: &cost}); err != nil {
		t.Fatalf("UpdateEntry() error: %v", err)
	}
	got, key, err := d.Entry(e.ID)
	if err != nil || key != "armor" {
		t.Fatalf("Entry() = %v, %q", err, key)
	}
	if got.Name != "Granite Ward" || got.Cost != 450 || got.Tier != 4 {
		t.Errorf("entry = %+v", got)
	}

	clash := "Iron Skin"
	if err := d.UpdateEntry(e.ID, domain.CatalogUpdate{Name: &clash}); !errors.Is(err, domain.ErrCatalogDuplicate) {
		t.Errorf("rename onto sibling err = %v, want ErrCatalogDuplicate", err)
	}
	if err := d.UpdateEntry("nope", domain.CatalogUpdate{}); !errors.Is(err, domain.ErrCatalogEntryNotFound) {
		t.Errorf("unknown id err = %v", err)
	}
}

func TestDrawRandom(t *testing.T) {
	d := newTestDatabase(t)
	if _, err := d.DrawRandom("time", func(int) int { return 0 }); !errors.Is(err, domain.ErrNoCatalogPerks) {
		t.Fatalf("empty draw err = %v, want ErrNoCatalogPerks", err)
	}
	d.AddEntry("time", draft("Haste", 30), "roll")
	d.AddEntry("time", draft("Stasis", 90), "roll")

	var gotN int
	e, err := d.DrawRandom("time", func(n int) int { gotN = n; return 1 })
	if err != nil {
		t.Fatal(err)
	}
	if gotN != 2 || e.Name != "Stasis" || e.TimesRolled != 1 {
		t.Errorf("draw = %+v (n=%d), want Stasis rolled once of 2", e, gotN)
	}
	e, _ = d.DrawRandom("time", func(int) int { return 1 })
	if e.TimesRolled != 2 {
		t.Errorf("times rolled = %d, want 2", e.TimesRolled)
	}
}

// ─── Constellations ─────────────────────────────────────────────────────────

func TestAddConstellation(t *testing.T) {
	d := newTestDatabase(t)
	key, err := d.AddConstellation("Star Forging!", "")
	if err != nil {
		t.Fatalf("AddConstellation() error: %v", err)
	}
	if key != "star_forging" {
		t.Errorf("key = %q, want star_forging", key)
	}
	all := d.Constellations()
	if len(all) != len(domain.BuiltinConstellations)+1 {
		t.Fatalf("constellations = %d", len(all))
	}
	if c := all[len(all)-1]; c.Key != key || c.Category != "custom" || c.BuiltIn {
		t.Errorf("custom = %+v", c)
	}

	tests := []struct {
		label string
		want  error
	}{
		{"", domain.ErrInvalidLabel},
		{"!!!", domain.ErrInvalidLabel},
		{"Magic", domain.ErrConstellationExists},
		{"star forging", domain.ErrConstellationExists},
	}
	for _, tt := range tests {
		if _, err := d.AddConstellation(tt.label, "x"); !errors.Is(err, tt.want) {
			t.Errorf("AddConstellation(%q) err = %v, want %v", tt.label, err, tt.want)
		}
	}
}

func TestRemoveConstellation_KeepsPerks(t *testing.T) {
	d := newTestDatabase(t)
	key, _ := d.AddConstellation("Runes", "power")
	d.AddEntry(key, draft("Glyph Sight", 20), "roll")

	if err := d.RemoveConstellation("magic"); !errors.Is(err, domain.ErrBuiltinConstellation) {
		t.Errorf("remove built-in err = %v", err)
	}
	if err := d.RemoveConstellation(key); err != nil {
		t.Fatal(err)
	}
	if err := d.RemoveConstellation(key); !errors.Is(err, domain.ErrConstellationNotFound) {
		t.Errorf("second remove err = %v", err)
	}
	if _, err := d.AddEntry(key, draft("Other", 5), "roll"); !errors.Is(err, domain.ErrConstellationNotFound) {
		t.Errorf("add to removed constellation err = %v", err)
	}

	// Re-adding the label recovers the stored perks.
	if _, err := d.AddConstellation("Runes", "power"); err != nil {
		t.Fatal(err)
	}
	if got := d.Entries(key); len(got) != 1 || got[0].Name != "Glyph Sight" {
		t.Errorf("entries after re-add = %+v", got)
	}
}

func TestGuideGeneration(t *testing.T) {
	d := newTestDatabase(t, WithGenerator(stubGenerator{text: "Runes are carved power."}, time.Second))
	key, _ := d.AddConstellation("Runes", "power")
	d.Wait()

	label, guide := d.Describe(key)
	if label != "Runes" || guide != "Runes are carved power." {
		t.Errorf("Describe() = %q, %q", label, guide)
	}
}

func TestGuideGeneration_FailureKeepsConstellation(t *testing.T) {
	d := newTestDatabase(t, WithGenerator(stubGenerator{err: errors.New("quota")}, time.Second))
	key, err := d.AddConstellation("Runes", "power")
	if err != nil {
		t.Fatal(err)
	}
	d.Wait()
	if _, guide := d.Describe(key); guide != "" {
		t.Errorf("guide = %q, want empty", guide)
	}
	if err := d.SetGuide(key, "hand written"); err != nil {
		t.Fatal(err)
	}
	if _, guide := d.Describe(key); guide != "hand written" {
		t.Errorf("manual guide = %q", guide)
	}
}

// ─── Persistence ────────────────────────────────────────────────────────────

func TestOpen_Reload(t *testing.T) {
	kv := newTestKV(t)
	d, _ := Open(kv)
	key, _ := d.AddConstellation("Runes", "power")
	d.AddEntry(key, draft("Glyph Sight", 20), "roll")
	d.AddEntry("magic", draft("Spark", 10), "roll")

	again, err := Open(kv)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(again.Entries("magic")); got != 1 {
		t.Errorf("magic entries = %d, want 1", got)
	}
	if label, _ := again.Describe(key); label != "Runes" {
		t.Errorf("custom label = %q", label)
	}
}

func TestAdopt(t *testing.T) {
	pub := &capturePublisher{}
	d := newTestDatabase(t, WithPublisher(pub))

	remote := domain.NewPerkDatabase()
	remote.Constellations["size"] = &domain.ConstellationPerks{Perks: []domain.CatalogEntry{
		{ID: "r1", Name: "Giant Step", Cost: 650},
	}}
	body, _ := json.Marshal(remote)
	if err := d.Adopt(body); err != nil {
		t.Fatal(err)
	}
	got := d.Entries("size")
	if len(got) != 1 || got[0].Tier != 5 {
		t.Errorf("adopted entries = %+v, want Giant Step tier 5", got)
	}
	if pub.count() != 0 {
		t.Error("adopting a remote catalog published it back")
	}
	if err := d.Adopt([]byte("{")); err == nil {
		t.Error("Adopt(malformed) succeeded")
	}
}

func TestSnapshot_IsCopy(t *testing.T) {
	d := newTestDatabase(t)
	d.AddEntry("magic", draft("Spark", 10, domain.FlagPassive), "roll")
	snap := d.Snapshot()
	snap.Constellations["magic"].Perks[0].Name = "Mutated"
	if d.Entries("magic")[0].Name != "Spark" {
		t.Error("snapshot aliases live catalog")
	}
	if stats := d.Stats(); len(stats) != 1 || stats[0].Count != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}
