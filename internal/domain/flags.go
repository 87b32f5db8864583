package domain

import "strings"

// ─── Perk Flags ─────────────────────────────────────────────────────────────
// Flags are a fixed vocabulary. Anything outside it is dropped on input.

// Flag is a single perk modifier.
type Flag string

const (
	FlagPassive         Flag = "PASSIVE"
	FlagToggleable      Flag = "TOGGLEABLE"
	FlagAlwaysOn        Flag = "ALWAYS-ON"
	FlagScaling         Flag = "SCALING"
	FlagUncapped        Flag = "UNCAPPED"
	FlagGamer           Flag = "GAMER"
	FlagMetaScaling     Flag = "META-SCALING"
	FlagPermissionGated Flag = "PERMISSION-GATED"
	FlagSelective       Flag = "SELECTIVE"
	FlagCorrupting      Flag = "CORRUPTING"
	FlagSanityTaxing    Flag = "SANITY-TAXING"
	FlagCombat          Flag = "COMBAT"
	FlagUtility         Flag = "UTILITY"
	FlagCrafting        Flag = "CRAFTING"
	FlagMental          Flag = "MENTAL"
	FlagPhysical        Flag = "PHYSICAL"
)

// AllFlags lists the vocabulary in display order.
var AllFlags = []Flag{
	FlagPassive, FlagToggleable, FlagAlwaysOn, FlagScaling, FlagUncapped,
	FlagGamer, FlagMetaScaling, FlagPermissionGated, FlagSelective,
	FlagCorrupting, FlagSanityTaxing, FlagCombat, FlagUtility, FlagCrafting,
	FlagMental, FlagPhysical,
}

var knownFlags = func() map[Flag]bool {
	m := make(map[Flag]bool, len(AllFlags))
	for _, f := range AllFlags {
		m[f] = true
	}
	return m
}()

// ParseFlag normalizes a raw token ("always_on", " scaling ") into a Flag.
func ParseFlag(raw string) (Flag, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, " ", "-")
	f := Flag(s)
	return f, knownFlags[f]
}

// Flags is an ordered set of flags.
type Flags []Flag

// ParseFlags normalizes raw tokens, dropping unknown ones and duplicates.
// The result is never nil so it always serializes as a list.
func ParseFlags(raw []string) Flags {
	out := Flags{}
	for _, r := range raw {
		if f, ok := ParseFlag(r); ok && !out.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Has reports whether f is in the set.
func (fs Flags) Has(f Flag) bool {
	for _, x := range fs {
		if x == f {
			return true
		}
	}
	return false
}

// HasAny reports whether any of the given flags is in the set.
func (fs Flags) HasAny(flags ...Flag) bool {
	for _, f := range flags {
		if fs.Has(f) {
			return true
		}
	}
	return false
}

// With returns a copy of the set including f.
func (fs Flags) With(f Flag) Flags {
	out := append(Flags{}, fs...)
	if !out.Has(f) {
		out = append(out, f)
	}
	return out
}

// Strings returns the flags as plain strings.
func (fs Flags) Strings() []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}

// String joins the flags with ", ".
func (fs Flags) String() string {
	return strings.Join(fs.Strings(), ", ")
}

// GrantsScaling reports whether the flags alone activate a scaffold.
func (fs Flags) GrantsScaling() bool {
	return fs.HasAny(FlagScaling, FlagUncapped)
}

// GrantsGamer reports whether the flags trigger the global GAMER modifier.
func (fs Flags) GrantsGamer() bool {
	return fs.HasAny(FlagGamer, FlagMetaScaling)
}
