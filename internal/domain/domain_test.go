package domain

import (
	"errors"
	"fmt"
	"testing"
)

// ─── Flag Tests ─────────────────────────────────────────────────────────────

func TestParseFlags(t *testing.T) {
	got := ParseFlags([]string{" scaling ", "always_on", "bogus", "SCALING", "Meta Scaling"})
	want := "SCALING, ALWAYS-ON, META-SCALING"
	if got.String() != want {
		t.Errorf("ParseFlags() = %q, want %q", got.String(), want)
	}

	empty := ParseFlags(nil)
	if empty == nil || len(empty) != 0 {
		t.Errorf("ParseFlags(nil) = %#v, want empty non-nil", empty)
	}
}

func TestFlags_Grants(t *testing.T) {
	tests := []struct {
		name        string
		flags       Flags
		wantScaling bool
		wantGamer   bool
	}{
		{"plain", Flags{FlagCombat}, false, false},
		{"scaling", Flags{FlagScaling}, true, false},
		{"uncapped", Flags{FlagUncapped}, true, false},
		{"gamer", Flags{FlagGamer}, false, true},
		{"meta scaling", Flags{FlagMetaScaling, FlagUtility}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.flags.GrantsScaling(); got != tt.wantScaling {
				t.Errorf("GrantsScaling() = %v, want %v", got, tt.wantScaling)
			}
			if got := tt.flags.GrantsGamer(); got != tt.wantGamer {
				t.Errorf("GrantsGamer() = %v, want %v", got, tt.wantGamer)
			}
		})
	}
}

func TestFlags_WithCopies(t *testing.T) {
	base := Flags{FlagPassive}
	got := base.With(FlagScaling).With(FlagScaling)
	if len(got) != 2 {
		t.Fatalf("With() len = %d, want 2", len(got))
	}
	if base.Has(FlagScaling) {
		t.Error("With() mutated the receiver")
	}
}

// ─── Economy Tests ──────────────────────────────────────────────────────────

func TestRecompute(t *testing.T) {
	s := NewCharacterState()
	s.BasePoints = 250
	s.BonusPoints = 30
	s.AcquiredPerks = []Perk{{Name: "Stone Ward", Cost: 100}, {Name: "Ember", Cost: 50}}
	Recompute(s)

	if s.TotalPoints != 280 {
		t.Errorf("TotalPoints = %d, want 280", s.TotalPoints)
	}
	if s.SpentPoints != 150 {
		t.Errorf("SpentPoints = %d, want 150", s.SpentPoints)
	}
	if s.AvailablePoints != 130 {
		t.Errorf("AvailablePoints = %d, want 130", s.AvailablePoints)
	}
	if s.ThresholdProgress != 80 {
		t.Errorf("ThresholdProgress = %d, want 80", s.ThresholdProgress)
	}
	if got := ThresholdPercent(s); got != 80 {
		t.Errorf("ThresholdPercent() = %d, want 80", got)
	}
}

func TestRecompute_ZeroThreshold(t *testing.T) {
	s := &CharacterState{BasePoints: 40}
	Recompute(s)
	if s.Threshold != DefaultThreshold {
		t.Errorf("Threshold = %d, want %d", s.Threshold, DefaultThreshold)
	}
}

// ─── Scaling Tests ──────────────────────────────────────────────────────────

func TestScaffold(t *testing.T) {
	s := NewScaffold(true, false)
	if s.Level != 1 || s.MaxLevel != DefaultMaxLevel || s.XPNeeded != XPPerLevel {
		t.Fatalf("NewScaffold() = %+v", s)
	}
	s.XP = 5
	s.Recalc()
	if s.XPPercent != 50 {
		t.Errorf("XPPercent = %d, want 50", s.XPPercent)
	}
	if got := s.LevelDisplay(); got != "Lv.1/10" {
		t.Errorf("LevelDisplay() = %q, want %q", got, "Lv.1/10")
	}
	if got := s.XPDisplay(); got != "5/10 XP" {
		t.Errorf("XPDisplay() = %q, want %q", got, "5/10 XP")
	}

	u := NewScaffold(true, true)
	if u.MaxLevel != UncappedMaxLevel {
		t.Errorf("uncapped MaxLevel = %d, want %d", u.MaxLevel, UncappedMaxLevel)
	}
	if got := u.LevelDisplay(); got != "Lv.1/∞" {
		t.Errorf("LevelDisplay() = %q, want %q", got, "Lv.1/∞")
	}
	if (ScalingState{}).Missing() != true {
		t.Error("zero scaffold should be Missing")
	}
}

// ─── State Tests ────────────────────────────────────────────────────────────

func TestCharacterState_Clone(t *testing.T) {
	s := NewCharacterState()
	s.AcquiredPerks = append(s.AcquiredPerks, Perk{Name: "Stone Ward", Flags: Flags{FlagPassive}})
	sc := NewScaffold(true, false)
	s.BankedPerks = append(s.BankedPerks, BankedPerk{Name: "Ember", Scaling: &sc})

	c := s.Clone()
	c.AcquiredPerks[0].Flags[0] = FlagCombat
	c.BankedPerks[0].Scaling.Level = 7

	if s.AcquiredPerks[0].Flags[0] != FlagPassive {
		t.Error("Clone() shares perk flags")
	}
	if s.BankedPerks[0].Scaling.Level != 1 {
		t.Error("Clone() shares banked scaling")
	}
}

func TestCharacterState_Find(t *testing.T) {
	s := NewCharacterState()
	s.AcquiredPerks = []Perk{{Name: "Stone Ward"}}
	s.BankedPerks = []BankedPerk{{Name: "Ember"}}
	if got := s.FindPerk("  stone WARD "); got != 0 {
		t.Errorf("FindPerk() = %d, want 0", got)
	}
	if got := s.FindBanked("ember"); got != 0 {
		t.Errorf("FindBanked() = %d, want 0", got)
	}
	if got := s.FindPerk("ghost"); got != -1 {
		t.Errorf("FindPerk(ghost) = %d, want -1", got)
	}
}

// ─── Catalog Tests ──────────────────────────────────────────────────────────

func TestConstellationKey(t *testing.T) {
	tests := []struct{ label, want string }{
		{"Star Forging!", "star_forging"},
		{"  Resources & Durability ", "resources_durability"},
		{"magic", "magic"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := ConstellationKey(tt.label); got != tt.want {
			t.Errorf("ConstellationKey(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
	if !IsBuiltinConstellation("magic") || IsBuiltinConstellation("star_forging") {
		t.Error("IsBuiltinConstellation() misclassified a key")
	}
}

func TestTierForCost(t *testing.T) {
	tests := []struct{ cost, want int }{
		{0, 1}, {100, 1}, {101, 2}, {200, 2}, {300, 3}, {500, 4}, {700, 5}, {701, 6}, {5000, 6},
	}
	for _, tt := range tests {
		if got := TierForCost(tt.cost); got != tt.want {
			t.Errorf("TierForCost(%d) = %d, want %d", tt.cost, got, tt.want)
		}
	}
	if Band(0).Tier != 1 || Band(99).Tier != 6 {
		t.Error("Band() should clamp out-of-range tiers")
	}
}

// ─── Error Tests ────────────────────────────────────────────────────────────

func TestReasonOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"sentinel", ErrPerkNotFound, "not_found"},
		{"wrapped", fmt.Errorf("adding: %w", ErrAlreadyAcquired), "already_acquired"},
		{"funds", &InsufficientFundsError{Pending: PendingMarker{Name: "Ember", Needed: 30}}, "insufficient_funds"},
		{"banked", &NotFoundError{Name: "Ember", Err: ErrBankedNotFound}, "not_found"},
		{"roll", ErrRollPending, "roll_pending"},
		{"unknown", errors.New("disk on fire"), "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReasonOf(tt.err); got != tt.want {
				t.Errorf("ReasonOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNotFoundError_Message(t *testing.T) {
	err := &NotFoundError{Name: "Stone Wart", Suggestion: "Stone Ward", Err: ErrPerkNotFound}
	want := `perk not found: "Stone Wart" (did you mean "Stone Ward"?)`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrPerkNotFound) {
		t.Error("NotFoundError should unwrap to its sentinel")
	}
}
