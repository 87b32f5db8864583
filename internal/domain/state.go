package domain

// ─── Character State ────────────────────────────────────────────────────────

const (
	SchemaVersion        = 2
	DefaultThreshold     = 100
	DefaultBankMax       = 10
	DefaultCPPerResponse = 10
)

// CharacterState is the full economy and perk state of one chat or profile.
// The derived point fields are always recomputed; they are persisted only so
// readers of a raw blob see sensible numbers.
type CharacterState struct {
	SchemaVersion int `json:"schema_version"`

	ResponseCount int `json:"response_count"`
	BasePoints    int `json:"base_points"`
	BonusPoints   int `json:"bonus_points"`

	TotalPoints       int `json:"total_points"`
	SpentPoints       int `json:"spent_points"`
	AvailablePoints   int `json:"available_points"`
	Threshold         int `json:"threshold"`
	ThresholdProgress int `json:"threshold_progress"`

	Corruption int `json:"corruption"`
	Sanity     int `json:"sanity"`

	AcquiredPerks []Perk         `json:"acquired_perks"`
	BankedPerks   []BankedPerk   `json:"banked_perks"`
	Pending       *PendingMarker `json:"pending_perk,omitempty"`
	ActiveToggles []string       `json:"active_toggles"`
	HasUncapped   bool           `json:"has_uncapped"`
	HasGamer      bool           `json:"has_gamer"`
	History       []HistoryEntry `json:"perk_history"`
}

// NewCharacterState returns a fresh state.
func NewCharacterState() *CharacterState {
	return &CharacterState{
		SchemaVersion: SchemaVersion,
		Threshold:     DefaultThreshold,
		AcquiredPerks: []Perk{},
		BankedPerks:   []BankedPerk{},
		ActiveToggles: []string{},
		History:       []HistoryEntry{},
	}
}

// FindPerk returns the index of the first acquired perk matching name, or -1.
func (s *CharacterState) FindPerk(name string) int {
	for i := range s.AcquiredPerks {
		if SameName(s.AcquiredPerks[i].Name, name) {
			return i
		}
	}
	return -1
}

// FindBanked returns the index of the banked perk matching name, or -1.
func (s *CharacterState) FindBanked(name string) int {
	for i := range s.BankedPerks {
		if SameName(s.BankedPerks[i].Name, name) {
			return i
		}
	}
	return -1
}

// ScalingQualifies reports whether p's scaffold must be active under the
// current global modifiers.
func (s *CharacterState) ScalingQualifies(p *Perk) bool {
	return p.Flags.GrantsScaling() || s.HasGamer
}

// Clone returns a deep copy.
func (s *CharacterState) Clone() *CharacterState {
	c := *s
	c.AcquiredPerks = make([]Perk, len(s.AcquiredPerks))
	for i, p := range s.AcquiredPerks {
		p.Flags = append(Flags{}, p.Flags...)
		p.ScalingDescription = cloneMap(p.ScalingDescription)
		c.AcquiredPerks[i] = p
	}
	c.BankedPerks = make([]BankedPerk, len(s.BankedPerks))
	for i, b := range s.BankedPerks {
		b.Flags = append(Flags{}, b.Flags...)
		b.ScalingDescription = cloneMap(b.ScalingDescription)
		if b.Scaling != nil {
			sc := *b.Scaling
			b.Scaling = &sc
		}
		c.BankedPerks[i] = b
	}
	if s.Pending != nil {
		p := *s.Pending
		c.Pending = &p
	}
	c.ActiveToggles = append([]string{}, s.ActiveToggles...)
	c.History = append([]HistoryEntry{}, s.History...)
	return &c
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ClampPercent clamps v into [0,100].
func ClampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
