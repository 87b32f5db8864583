package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ─── Scaling ────────────────────────────────────────────────────────────────

const (
	DefaultMaxLevel  = 10
	UncappedMaxLevel = 999
	XPPerLevel       = 10
)

// ScalingState is the level/xp scaffold every perk carries.
// A scaffold with Active=false is dormant and must not accept XP.
type ScalingState struct {
	Level     int  `json:"level"`
	MaxLevel  int  `json:"max_level"`
	XP        int  `json:"xp"`
	XPNeeded  int  `json:"xp_needed"`
	XPPercent int  `json:"xp_percent"`
	Uncapped  bool `json:"uncapped"`
	Active    bool `json:"scaling_active"`
}

// NewScaffold returns a level-1 scaffold.
func NewScaffold(active, uncapped bool) ScalingState {
	s := ScalingState{Level: 1, MaxLevel: DefaultMaxLevel, Active: active}
	if uncapped {
		s.Uncapped = true
		s.MaxLevel = UncappedMaxLevel
	}
	s.Recalc()
	return s
}

// Missing reports whether the scaffold was never built.
func (s ScalingState) Missing() bool { return s.Level < 1 }

// Recalc refreshes the derived display fields.
func (s *ScalingState) Recalc() {
	if s.Level < 1 {
		s.Level = 1
	}
	if s.MaxLevel < 1 {
		s.MaxLevel = DefaultMaxLevel
	}
	if s.XP < 0 {
		s.XP = 0
	}
	s.XPNeeded = s.Level * XPPerLevel
	pct := int(math.Round(100 * float64(s.XP) / float64(s.XPNeeded)))
	if pct > 100 {
		pct = 100
	}
	s.XPPercent = pct
}

// LevelDisplay renders "Lv.3/10" or "Lv.3/∞".
func (s ScalingState) LevelDisplay() string {
	if s.Uncapped {
		return fmt.Sprintf("Lv.%d/∞", s.Level)
	}
	return fmt.Sprintf("Lv.%d/%d", s.Level, s.MaxLevel)
}

// XPDisplay renders "5/30 XP".
func (s ScalingState) XPDisplay() string {
	return fmt.Sprintf("%d/%d XP", s.XP, s.XPNeeded)
}

// ─── Perks ──────────────────────────────────────────────────────────────────

// Perk is an acquired ability owned by a CharacterState.
type Perk struct {
	Name               string            `json:"name"`
	Cost               int               `json:"cost"`
	Flags              Flags             `json:"flags"`
	Description        string            `json:"description"`
	ScalingDescription map[string]string `json:"scaling_description,omitempty"`
	Toggleable         bool              `json:"toggleable"`
	Active             bool              `json:"active"`
	Scaling            ScalingState      `json:"scaling"`
	DBLinkID           string            `json:"db_link_id,omitempty"`
	AcquiredAt         time.Time         `json:"acquired_at"`
	AcquiredAtResponse int               `json:"acquired_at_response"`
}

// PerkDraft is unvalidated perk input from a user, the catalog or a parser.
type PerkDraft struct {
	Name               string            `json:"name"`
	Cost               int               `json:"cost"`
	Flags              Flags             `json:"flags"`
	Description        string            `json:"description,omitempty"`
	ScalingDescription map[string]string `json:"scaling_description,omitempty"`
	Active             *bool             `json:"active,omitempty"`
	Scaling            *ScalingState     `json:"scaling,omitempty"`
	DBLinkID           string            `json:"db_link_id,omitempty"`
}

// PerkUpdate is a partial edit. Nil fields are preserved; a non-nil Flags
// replaces the flag set wholesale.
type PerkUpdate struct {
	Name               *string           `json:"name,omitempty"`
	Cost               *int              `json:"cost,omitempty"`
	Flags              Flags             `json:"flags,omitempty"`
	Description        *string           `json:"description,omitempty"`
	ScalingDescription map[string]string `json:"scaling_description,omitempty"`
	Active             *bool             `json:"active,omitempty"`
	Level              *int              `json:"level,omitempty"`
	XP                 *int              `json:"xp,omitempty"`
}

// BankSource records how a banked perk was discovered.
type BankSource string

const (
	SourceRoll       BankSource = "roll"
	SourceGeneration BankSource = "generation"
	SourceDetected   BankSource = "detected"
)

// BankedPerk is a perk seen but not yet acquired. It has no scaffold of its
// own; Scaling is only a snapshot carried over when it is acquired.
type BankedPerk struct {
	Name               string            `json:"name"`
	Cost               int               `json:"cost"`
	ConstellationKey   string            `json:"constellation_key,omitempty"`
	Flags              Flags             `json:"flags"`
	Description        string            `json:"description,omitempty"`
	ScalingDescription map[string]string `json:"scaling_description,omitempty"`
	Scaling            *ScalingState     `json:"scaling,omitempty"`
	DBLinkID           string            `json:"db_link_id,omitempty"`
	BankedAt           time.Time         `json:"banked_at"`
	Source             BankSource        `json:"source"`
}

// Draft converts the banked snapshot back into acquisition input.
func (b BankedPerk) Draft() PerkDraft {
	return PerkDraft{
		Name:               b.Name,
		Cost:               b.Cost,
		Flags:              b.Flags,
		Description:        b.Description,
		ScalingDescription: b.ScalingDescription,
		Scaling:            b.Scaling,
		DBLinkID:           b.DBLinkID,
	}
}

// PendingMarker is the legacy single "pending perk" slot.
type PendingMarker struct {
	Name   string `json:"name"`
	Cost   int    `json:"cost"`
	Needed int    `json:"needed"`
	Flags  Flags  `json:"flags,omitempty"`
}

// HistoryEntry is one audit-trail line. Never read back for logic.
type HistoryEntry struct {
	Action    string    `json:"action"`
	Perk      string    `json:"perk"`
	Cost      int       `json:"cost"`
	Timestamp time.Time `json:"ts"`
}

// ─── Names ──────────────────────────────────────────────────────────────────

// NameKey is the case-insensitive identity key of a perk name.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SameName compares two perk names case-insensitively.
func SameName(a, b string) bool {
	return NameKey(a) == NameKey(b)
}
