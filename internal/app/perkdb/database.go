// Package perkdb is the shared perk catalog: perks grouped by constellation,
// deduplicated by name, drawn at random by forge rolls and mirrored to
// remote storage after every change.
package perkdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/forge/internal/domain"
	"github.com/forgeworks/forge/internal/infra/observability"
)

const (
	// FileName is the remote file holding the catalog.
	FileName = "forge_perk_database.json"

	kvKey = "perk_database"

	DefaultGuideTimeout = 30 * time.Second
)

// Database guards one catalog. It is safe for concurrent use; guide
// generation runs in the background and lands through SetGuide.
type Database struct {
	mu   sync.Mutex
	data *domain.PerkDatabase

	kv     domain.KVStore
	pub    domain.Publisher
	gen    domain.TextGenerator
	notify domain.Notifier

	guideTimeout time.Duration
	now          func() time.Time
	newID        func() string
	wg           sync.WaitGroup
}

// Option customizes a Database.
type Option func(*Database)

// WithPublisher mirrors every change to remote storage.
func WithPublisher(p domain.Publisher) Option { return func(d *Database) { d.pub = p } }

// WithGenerator enables best-effort guide generation for new constellations.
func WithGenerator(g domain.TextGenerator, timeout time.Duration) Option {
	return func(d *Database) {
		d.gen = g
		if timeout > 0 {
			d.guideTimeout = timeout
		}
	}
}

// WithNotifier reports guide generation results.
func WithNotifier(n domain.Notifier) Option { return func(d *Database) { d.notify = n } }

// Open loads the catalog from kv, or starts empty.
func Open(kv domain.KVStore, opts ...Option) (*Database, error) {
	d := &Database{
		data:         domain.NewPerkDatabase(),
		kv:           kv,
		notify:       domain.NopNotifier{},
		guideTimeout: DefaultGuideTimeout,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, o := range opts {
		o(d)
	}

	body, err := kv.GetBlob(kvKey)
	switch {
	case errors.Is(err, domain.ErrStateNotFound):
	case err != nil:
		return nil, fmt.Errorf("load perk database: %w", err)
	default:
		db, err := decode(body)
		if err != nil {
			log.Printf("[perkdb] stored catalog unreadable, starting empty: %v", err)
		} else {
			d.data = db
		}
	}
	return d, nil
}

func decode(body []byte) (*domain.PerkDatabase, error) {
	db := domain.NewPerkDatabase()
	if err := json.Unmarshal(body, db); err != nil {
		return nil, err
	}
	if db.Constellations == nil {
		db.Constellations = make(map[string]*domain.ConstellationPerks)
	}
	if db.CustomConstellations == nil {
		db.CustomConstellations = make(map[string]domain.CustomConstellation)
	}
	for _, c := range db.Constellations {
		if c == nil {
			continue
		}
		for i := range c.Perks {
			c.Perks[i].Tier = domain.TierForCost(c.Perks[i].Cost)
		}
	}
	return db, nil
}

// Adopt replaces the catalog with a remote copy without publishing it back.
func (d *Database) Adopt(body []byte) error {
	db, err := decode(body)
	if err != nil {
		return fmt.Errorf("adopt perk database: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data = db
	d.persistLocked(false)
	return nil
}

// ─── Entries ────────────────────────────────────────────────────────────────

// AddEntry catalogs a perk under key. A same-named entry in that
// constellation is returned together with ErrCatalogDuplicate.
func (d *Database) AddEntry(key string, draft domain.PerkDraft, source string) (domain.CatalogEntry, error) {
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return domain.CatalogEntry{}, domain.ErrNoName
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.knownLocked(key) {
		return domain.CatalogEntry{}, fmt.Errorf("%s: %w", key, domain.ErrConstellationNotFound)
	}
	c := d.perksLocked(key)
	for _, e := range c.Perks {
		if domain.SameName(e.Name, name) {
			return e, fmt.Errorf("%s in %s: %w", name, key, domain.ErrCatalogDuplicate)
		}
	}

	cost := max(0, draft.Cost)
	e := domain.CatalogEntry{
		ID:                 d.newID(),
		Name:               name,
		Cost:               cost,
		Tier:               domain.TierForCost(cost),
		Flags:              append(domain.Flags{}, draft.Flags...),
		Description:        strings.TrimSpace(draft.Description),
		ScalingDescription: draft.ScalingDescription,
		CreatedAt:          d.now(),
		Source:             source,
	}
	c.Perks = append(c.Perks, e)
	d.persistLocked(true)
	return e, nil
}

// UpdateEntry merges a partial update into the entry with id.
func (d *Database) UpdateEntry(id string, u domain.CatalogUpdate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, key := range domain.SortedKeys(d.data.Constellations) {
		c := d.data.Constellations[key]
		if c == nil {
			continue
		}
		for i := range c.Perks {
			if c.Perks[i].ID != id {
				continue
			}
			e := &c.Perks[i]
			if u.Name != nil && strings.TrimSpace(*u.Name) != "" {
				name := strings.TrimSpace(*u.Name)
				for j, other := range c.Perks {
					if j != i && domain.SameName(other.Name, name) {
						return fmt.Errorf("%s in %s: %w", name, key, domain.ErrCatalogDuplicate)
					}
				}
				e.Name = name
			}
			if u.Cost != nil {
				e.Cost = max(0, *u.Cost)
				e.Tier = domain.TierForCost(e.Cost)
			}
			if u.Flags != nil {
				e.Flags = append(domain.Flags{}, u.Flags...)
			}
			if u.Description != nil {
				e.Description = strings.TrimSpace(*u.Description)
			}
			d.persistLocked(true)
			return nil
		}
	}
	return fmt.Errorf("%s: %w", id, domain.ErrCatalogEntryNotFound)
}

// DrawRandom picks an entry from key and counts the roll. pick returns a
// value in [0,n).
func (d *Database) DrawRandom(key string, pick func(n int) int) (domain.CatalogEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.data.Constellations[key]
	if c == nil || len(c.Perks) == 0 {
		return domain.CatalogEntry{}, fmt.Errorf("%s: %w", key, domain.ErrNoCatalogPerks)
	}
	i := pick(len(c.Perks))
	c.Perks[i].TimesRolled++
	d.persistLocked(true)
	return c.Perks[i], nil
}

// Entries lists the perks catalogued under key.
func (d *Database) Entries(key string) []domain.CatalogEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.data.Constellations[key]
	if c == nil {
		return nil
	}
	return append([]domain.CatalogEntry{}, c.Perks...)
}

// Entry finds an entry by id.
func (d *Database) Entry(id string) (domain.CatalogEntry, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, c := range d.data.Constellations {
		if c == nil {
			continue
		}
		for _, e := range c.Perks {
			if e.ID == id {
				return e, key, nil
			}
		}
	}
	return domain.CatalogEntry{}, "", fmt.Errorf("%s: %w", id, domain.ErrCatalogEntryNotFound)
}

// ─── Constellations ─────────────────────────────────────────────────────────

// Constellations lists built-in then custom constellations.
func (d *Database) Constellations() []domain.Constellation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]domain.Constellation{}, domain.BuiltinConstellations...)
	for _, key := range domain.SortedKeys(d.data.CustomConstellations) {
		c := d.data.CustomConstellations[key]
		out = append(out, domain.Constellation{Key: key, Label: c.Label, Category: c.Category})
	}
	return out
}

// Describe returns the label and guide text for key.
func (d *Database) Describe(key string) (string, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.data.CustomConstellations[key]; ok {
		return c.Label, c.DomainGuide
	}
	guide := ""
	if c := d.data.Constellations[key]; c != nil {
		guide = c.DomainText
	}
	for _, b := range domain.BuiltinConstellations {
		if b.Key == key {
			return b.Label, guide
		}
	}
	return key, guide
}

// AddConstellation registers a custom constellation and, when a generator
// is configured, requests its guide in the background. Perks previously
// catalogued under the same key are kept.
func (d *Database) AddConstellation(label, category string) (string, error) {
	label = strings.TrimSpace(label)
	key := domain.ConstellationKey(label)
	if key == "" {
		return "", domain.ErrInvalidLabel
	}
	if domain.IsBuiltinConstellation(key) {
		return "", fmt.Errorf("%s is built in: %w", key, domain.ErrConstellationExists)
	}

	d.mu.Lock()
	if _, ok := d.data.CustomConstellations[key]; ok {
		d.mu.Unlock()
		return "", fmt.Errorf("%s: %w", key, domain.ErrConstellationExists)
	}
	category = strings.TrimSpace(category)
	if category == "" {
		category = "custom"
	}
	d.data.CustomConstellations[key] = domain.CustomConstellation{Label: label, Category: category}
	d.perksLocked(key)
	d.persistLocked(true)
	gen := d.gen
	d.mu.Unlock()

	if gen != nil {
		d.wg.Add(1)
		go d.generateGuide(gen, key, label, category)
	}
	return key, nil
}

// RemoveConstellation deletes a custom constellation record. Its perks stay
// catalogued so re-adding the key recovers them.
func (d *Database) RemoveConstellation(key string) error {
	if domain.IsBuiltinConstellation(key) {
		return fmt.Errorf("%s: %w", key, domain.ErrBuiltinConstellation)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.data.CustomConstellations[key]; !ok {
		return fmt.Errorf("%s: %w", key, domain.ErrConstellationNotFound)
	}
	delete(d.data.CustomConstellations, key)
	d.persistLocked(true)
	return nil
}

// SetGuide stores guide text for key. It is the manual path and also where
// generated guides land.
func (d *Database) SetGuide(key, guide string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.data.CustomConstellations[key]; ok {
		c.DomainGuide = strings.TrimSpace(guide)
		d.data.CustomConstellations[key] = c
		d.persistLocked(true)
		return nil
	}
	if domain.IsBuiltinConstellation(key) {
		d.perksLocked(key).DomainText = strings.TrimSpace(guide)
		d.persistLocked(true)
		return nil
	}
	return fmt.Errorf("%s: %w", key, domain.ErrConstellationNotFound)
}

func (d *Database) generateGuide(gen domain.TextGenerator, key, label, category string) {
	defer d.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), d.guideTimeout)
	defer cancel()

	text, err := gen.Generate(ctx, guidePrompt(label, category))
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty guide")
	}
	if err != nil {
		observability.GuideRequests.WithLabelValues("failed").Inc()
		log.Printf("[perkdb] guide for %s failed: %v", key, err)
		d.notify.Notify(domain.Event{
			Type:      domain.EventSyncFailed,
			Message:   fmt.Sprintf("Guide for %s could not be generated; you can write one by hand.", label),
			Timestamp: d.now(),
		})
		return
	}
	observability.GuideRequests.WithLabelValues("ok").Inc()
	if err := d.SetGuide(key, text); err != nil {
		// Removed while generating.
		log.Printf("[perkdb] guide for %s dropped: %v", key, err)
		return
	}
	d.notify.Notify(domain.Event{
		Type:      domain.EventStateChanged,
		Message:   fmt.Sprintf("Guide for %s generated", label),
		Timestamp: d.now(),
	})
}

func guidePrompt(label, category string) string {
	return fmt.Sprintf("Write a short domain guide for a Celestial Forge constellation named %q (category: %s). "+
		"Describe in two or three paragraphs what kinds of perks belong to it, the fictional sources they draw on, "+
		"and how their power grows from minor to mythic tiers. Plain prose, no headings.", label, category)
}

// Wait blocks until background guide requests finish.
func (d *Database) Wait() { d.wg.Wait() }

// ─── Snapshot / Persistence ─────────────────────────────────────────────────

// Snapshot returns a deep copy of the catalog.
func (d *Database) Snapshot() *domain.PerkDatabase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return clone(d.data)
}

// Export serializes the catalog.
func (d *Database) Export() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return json.MarshalIndent(d.data, "", "  ")
}

// Stats counts entries per constellation key, sorted by key.
func (d *Database) Stats() []KeyCount {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]KeyCount, 0, len(d.data.Constellations))
	for key, c := range d.data.Constellations {
		if c == nil {
			continue
		}
		out = append(out, KeyCount{Key: key, Count: len(c.Perks)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// KeyCount is one Stats row.
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

func (d *Database) knownLocked(key string) bool {
	if domain.IsBuiltinConstellation(key) {
		return true
	}
	_, ok := d.data.CustomConstellations[key]
	return ok
}

func (d *Database) perksLocked(key string) *domain.ConstellationPerks {
	c := d.data.Constellations[key]
	if c == nil {
		c = &domain.ConstellationPerks{Perks: []domain.CatalogEntry{}}
		d.data.Constellations[key] = c
	}
	return c
}

// persistLocked writes the local copy synchronously and hands the remote
// mirror to the publisher.
func (d *Database) persistLocked(publish bool) {
	body, err := json.Marshal(d.data)
	if err != nil {
		log.Printf("[perkdb] encode: %v", err)
		return
	}
	if err := d.kv.PutBlob(kvKey, body); err != nil {
		log.Printf("[perkdb] save: %v", err)
	}
	if publish && d.pub != nil {
		d.pub.Publish(FileName, string(body))
	}
}

func clone(db *domain.PerkDatabase) *domain.PerkDatabase {
	out := domain.NewPerkDatabase()
	for k, c := range db.Constellations {
		if c == nil {
			continue
		}
		cp := *c
		cp.Perks = make([]domain.CatalogEntry, len(c.Perks))
		for i, e := range c.Perks {
			e.Flags = append(domain.Flags{}, e.Flags...)
			cp.Perks[i] = e
		}
		out.Constellations[k] = &cp
	}
	for k, c := range db.CustomConstellations {
		out.CustomConstellations[k] = c
	}
	return out
}
