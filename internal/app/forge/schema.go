package forge

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/forgeworks/forge/internal/domain"
)

// ─── State Schema ───────────────────────────────────────────────────────────
// Version 1 is the flat legacy shape (base_cp/bonus_cp, nullable scaling,
// millisecond timestamps). Version 2 is domain.CharacterState. Each version
// has one explicit migration to the next.

type schemaProbe struct {
	SchemaVersion int             `json:"schema_version"`
	BaseCP        json.RawMessage `json:"base_cp"`
}

// Encode serializes a state at the current schema version.
func Encode(st *domain.CharacterState) ([]byte, error) {
	c := st.Clone()
	c.SchemaVersion = domain.SchemaVersion
	domain.Recompute(c)
	return json.MarshalIndent(c, "", "  ")
}

// Decode parses a persisted or exported state document of any known schema
// version and normalizes it. Missing fields get explicit defaults.
func Decode(body []byte) (*domain.CharacterState, error) {
	var probe schemaProbe
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedImport, err)
	}

	var st *domain.CharacterState
	switch {
	case probe.SchemaVersion == 0 && probe.BaseCP != nil:
		v1, err := decodeV1(body)
		if err != nil {
			return nil, err
		}
		st = migrateV1(v1)
	case probe.SchemaVersion == 0 || probe.SchemaVersion == domain.SchemaVersion:
		st = domain.NewCharacterState()
		if err := json.Unmarshal(body, st); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedImport, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported schema version %d", domain.ErrMalformedImport, probe.SchemaVersion)
	}

	normalize(st)
	return st, nil
}

func normalize(st *domain.CharacterState) {
	st.SchemaVersion = domain.SchemaVersion
	if st.Threshold <= 0 {
		st.Threshold = domain.DefaultThreshold
	}
	st.ResponseCount = max(0, st.ResponseCount)
	st.BasePoints = max(0, st.BasePoints)
	st.BonusPoints = max(0, st.BonusPoints)
	st.Corruption = domain.ClampPercent(st.Corruption)
	st.Sanity = domain.ClampPercent(st.Sanity)
	if st.AcquiredPerks == nil {
		st.AcquiredPerks = []domain.Perk{}
	}
	if st.BankedPerks == nil {
		st.BankedPerks = []domain.BankedPerk{}
	}
	if st.ActiveToggles == nil {
		st.ActiveToggles = []string{}
	}
	if st.History == nil {
		st.History = []domain.HistoryEntry{}
	}

	// Duplicate names can only come from hand-edited documents; keep the first.
	seen := make(map[string]bool, len(st.AcquiredPerks))
	perks := st.AcquiredPerks[:0]
	for _, p := range st.AcquiredPerks {
		p.Name = strings.TrimSpace(p.Name)
		key := domain.NameKey(p.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		p.Cost = max(0, p.Cost)
		p.Flags = domain.ParseFlags(p.Flags.Strings())
		perks = append(perks, p)
	}
	st.AcquiredPerks = perks
	for i := range st.BankedPerks {
		st.BankedPerks[i].Flags = domain.ParseFlags(st.BankedPerks[i].Flags.Strings())
	}
	domain.Recompute(st)
}

// ─── Schema v1 ──────────────────────────────────────────────────────────────

type v1Scaling struct {
	Level     int  `json:"level"`
	MaxLevel  int  `json:"maxLevel"`
	XP        int  `json:"xp"`
	XPNeeded  int  `json:"xp_needed"`
	XPPercent int  `json:"xp_percent"`
	Uncapped  bool `json:"uncapped"`
}

type v1Perk struct {
	Name             string     `json:"name"`
	Cost             int        `json:"cost"`
	Flags            []string   `json:"flags"`
	Description      string     `json:"description"`
	Toggleable       bool       `json:"toggleable"`
	Active           *bool      `json:"active"`
	Scaling          *v1Scaling `json:"scaling"`
	AcquiredAt       int64      `json:"acquired_at"`
	AcquiredResponse int        `json:"acquired_response"`
}

type v1Pending struct {
	Name     string `json:"name"`
	Cost     int    `json:"cost"`
	CPNeeded int    `json:"cp_needed"`
}

type v1History struct {
	Action string `json:"action"`
	Perk   string `json:"perk"`
	Cost   int    `json:"cost"`
	TS     int64  `json:"ts"`
}

type v1State struct {
	ResponseCount int         `json:"response_count"`
	BaseCP        int         `json:"base_cp"`
	BonusCP       int         `json:"bonus_cp"`
	Threshold     int         `json:"threshold"`
	Corruption    int         `json:"corruption"`
	Sanity        int         `json:"sanity"`
	AcquiredPerks []v1Perk    `json:"acquired_perks"`
	PendingPerk   *v1Pending  `json:"pending_perk"`
	ActiveToggles []string    `json:"active_toggles"`
	PerkHistory   []v1History `json:"perk_history"`
	HasUncapped   bool        `json:"has_uncapped"`
	HasGamer      bool        `json:"has_gamer"`
}

func decodeV1(body []byte) (*v1State, error) {
	var v v1State
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("%w: legacy state: %v", domain.ErrMalformedImport, err)
	}
	return &v, nil
}

func migrateV1(v *v1State) *domain.CharacterState {
	st := domain.NewCharacterState()
	st.ResponseCount = v.ResponseCount
	st.BasePoints = v.BaseCP
	st.BonusPoints = v.BonusCP
	st.Threshold = v.Threshold
	st.Corruption = v.Corruption
	st.Sanity = v.Sanity
	st.HasUncapped = v.HasUncapped
	st.HasGamer = v.HasGamer
	st.ActiveToggles = append(st.ActiveToggles, v.ActiveToggles...)

	for _, lp := range v.AcquiredPerks {
		p := domain.Perk{
			Name:               lp.Name,
			Cost:               lp.Cost,
			Flags:              domain.ParseFlags(lp.Flags),
			Description:        lp.Description,
			Toggleable:         lp.Toggleable,
			Active:             lp.Active == nil || *lp.Active,
			AcquiredAt:         millis(lp.AcquiredAt),
			AcquiredAtResponse: lp.AcquiredResponse,
		}
		// A null legacy scaling becomes a missing scaffold; the tracker
		// builds the dormant one on load.
		if lp.Scaling != nil {
			p.Scaling = domain.ScalingState{
				Level:    max(1, lp.Scaling.Level),
				MaxLevel: lp.Scaling.MaxLevel,
				XP:       lp.Scaling.XP,
				Uncapped: lp.Scaling.Uncapped,
			}
			p.Scaling.Recalc()
		}
		st.AcquiredPerks = append(st.AcquiredPerks, p)
	}
	if v.PendingPerk != nil && v.PendingPerk.Name != "" {
		st.Pending = &domain.PendingMarker{
			Name:   v.PendingPerk.Name,
			Cost:   v.PendingPerk.Cost,
			Needed: v.PendingPerk.CPNeeded,
		}
	}
	for _, h := range v.PerkHistory {
		st.History = append(st.History, domain.HistoryEntry{
			Action:    h.Action,
			Perk:      h.Perk,
			Cost:      h.Cost,
			Timestamp: millis(h.TS),
		})
	}
	return st
}

func millis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// ─── Export / Import ────────────────────────────────────────────────────────

// Export serializes the full state as a portable document.
func (t *Tracker) Export() ([]byte, error) {
	domain.Recompute(t.state)
	return Encode(t.state)
}

// Import replaces the whole state with a decoded document.
func (t *Tracker) Import(body []byte) error {
	st, err := Decode(body)
	if err != nil {
		return err
	}
	t.Replace(st)
	return nil
}
