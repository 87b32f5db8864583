package domain

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// ─── Perk Database Types ────────────────────────────────────────────────────

// CatalogEntry is a discovered or generated perk in the shared catalog.
type CatalogEntry struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Cost               int               `json:"cost"`
	Tier               int               `json:"tier"`
	Flags              Flags             `json:"flags"`
	Description        string            `json:"description,omitempty"`
	ScalingDescription map[string]string `json:"scaling_description,omitempty"`
	TimesRolled        int               `json:"times_rolled"`
	CreatedAt          time.Time         `json:"created_at"`
	Source             string            `json:"source"`
}

// Draft converts the entry into acquisition input linked back to the catalog.
func (e CatalogEntry) Draft() PerkDraft {
	return PerkDraft{
		Name:               e.Name,
		Cost:               e.Cost,
		Flags:              append(Flags{}, e.Flags...),
		Description:        e.Description,
		ScalingDescription: cloneMap(e.ScalingDescription),
		DBLinkID:           e.ID,
	}
}

// CatalogUpdate is a partial catalog edit pushed from a linked perk.
type CatalogUpdate struct {
	Name        *string `json:"name,omitempty"`
	Cost        *int    `json:"cost,omitempty"`
	Flags       Flags   `json:"flags,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ConstellationPerks holds the catalogued perks under one key.
type ConstellationPerks struct {
	DomainText  string         `json:"domain_text,omitempty"`
	SourcesText string         `json:"sources_text,omitempty"`
	Perks       []CatalogEntry `json:"perks"`
}

// CustomConstellation is a user-defined category record. It lives
// independently of the perk list stored under the same key.
type CustomConstellation struct {
	Label       string `json:"label"`
	Category    string `json:"category"`
	DomainGuide string `json:"domain_guide,omitempty"`
	SourcesText string `json:"sources_text,omitempty"`
}

// PerkDatabase is the shared catalog.
type PerkDatabase struct {
	Constellations       map[string]*ConstellationPerks `json:"constellations"`
	CustomConstellations map[string]CustomConstellation `json:"custom_constellations"`
}

// NewPerkDatabase returns an empty catalog.
func NewPerkDatabase() *PerkDatabase {
	return &PerkDatabase{
		Constellations:       make(map[string]*ConstellationPerks),
		CustomConstellations: make(map[string]CustomConstellation),
	}
}

// ─── Constellations ─────────────────────────────────────────────────────────

// Constellation is a display record for a built-in or custom category.
type Constellation struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Category string `json:"category"`
	BuiltIn  bool   `json:"built_in"`
}

// BuiltinConstellations are fixed and cannot be removed.
var BuiltinConstellations = []Constellation{
	{Key: "alchemy", Label: "Alchemy", Category: "crafting", BuiltIn: true},
	{Key: "armor", Label: "Armor", Category: "crafting", BuiltIn: true},
	{Key: "clothing", Label: "Clothing", Category: "crafting", BuiltIn: true},
	{Key: "magic", Label: "Magic", Category: "power", BuiltIn: true},
	{Key: "magitech", Label: "Magitech", Category: "crafting", BuiltIn: true},
	{Key: "metallurgy", Label: "Metallurgy", Category: "crafting", BuiltIn: true},
	{Key: "quality", Label: "Quality", Category: "general", BuiltIn: true},
	{Key: "resources", Label: "Resources & Durability", Category: "general", BuiltIn: true},
	{Key: "size", Label: "Size", Category: "general", BuiltIn: true},
	{Key: "time", Label: "Time", Category: "general", BuiltIn: true},
	{Key: "vehicles", Label: "Vehicles", Category: "crafting", BuiltIn: true},
	{Key: "weapons", Label: "Weapons", Category: "crafting", BuiltIn: true},
}

// IsBuiltinConstellation reports whether key is one of the fixed keys.
func IsBuiltinConstellation(key string) bool {
	for _, c := range BuiltinConstellations {
		if c.Key == key {
			return true
		}
	}
	return false
}

var nonKeyChars = regexp.MustCompile(`[^a-z0-9]+`)

// ConstellationKey derives a normalized key from a label
// ("Star Forging!" → "star_forging").
func ConstellationKey(label string) string {
	k := nonKeyChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), "_")
	return strings.Trim(k, "_")
}

// SortedKeys returns the map keys in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ─── Tiers ──────────────────────────────────────────────────────────────────

// TierBand describes the cost range of one tier.
type TierBand struct {
	Tier    int
	Label   string
	MinCost int
	MaxCost int // 0 = unbounded
}

// TierBands are the fixed cost breakpoints.
var TierBands = []TierBand{
	{Tier: 1, Label: "Minor", MinCost: 0, MaxCost: 100},
	{Tier: 2, Label: "Lesser", MinCost: 101, MaxCost: 200},
	{Tier: 3, Label: "Moderate", MinCost: 201, MaxCost: 300},
	{Tier: 4, Label: "Greater", MinCost: 301, MaxCost: 500},
	{Tier: 5, Label: "Major", MinCost: 501, MaxCost: 700},
	{Tier: 6, Label: "Mythic", MinCost: 701, MaxCost: 0},
}

// TierForCost maps a cost onto its tier (1–6).
func TierForCost(cost int) int {
	switch {
	case cost <= 100:
		return 1
	case cost <= 200:
		return 2
	case cost <= 300:
		return 3
	case cost <= 500:
		return 4
	case cost <= 700:
		return 5
	default:
		return 6
	}
}

// Band returns the band for tier t, clamping out-of-range values.
func Band(t int) TierBand {
	if t < 1 {
		t = 1
	}
	if t > len(TierBands) {
		t = len(TierBands)
	}
	return TierBands[t-1]
}
