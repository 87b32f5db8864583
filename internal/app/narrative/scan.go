package narrative

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/forgeworks/forge/internal/domain"
)

// ─── Inline Perk Mentions ───────────────────────────────────────────────────

// **IRON SKIN** (100 CP) ... [SCALING, PHYSICAL]
// The name must be uppercase-led; the match is not anchored to a line.
var inlinePerk = regexp.MustCompile(`\*\*([A-Z][A-Z\s\-']+?)\*\*\s*\((\d+)\s*CP\).*?\[([^\]]*)\]`)

// InlinePerks returns every inline perk declaration in text, in order.
func InlinePerks(text string) []domain.PerkDraft {
	var out []domain.PerkDraft
	for _, m := range inlinePerk.FindAllStringSubmatch(text, -1) {
		cost, _ := strconv.Atoi(m[2])
		out = append(out, domain.PerkDraft{
			Name:  strings.TrimSpace(m[1]),
			Cost:  cost,
			Flags: domain.ParseFlags(splitFlags(m[3])),
		})
	}
	return out
}

// ─── XP and Level-up Sentences ──────────────────────────────────────────────

// XPEvent is one narrative XP award.
type XPEvent struct {
	Perk   string
	Amount int
}

// LevelEvent is a narrative assertion that a perk reached a level.
type LevelEvent struct {
	Perk  string
	Level int
}

type xpPattern struct {
	re       *regexp.Regexp
	name, xp int
}

var xpPatterns = []xpPattern{
	// **Perk** gains 5 XP
	{re: regexp.MustCompile(`(?i)\*\*([^*]+?)\*\*\s+gains\s+(\d+)\s+XP`), name: 1, xp: 2},
	// +5 XP to **Perk**
	{re: regexp.MustCompile(`(?i)\+(\d+)\s+XP\s+to\s+\*\*([^*]+?)\*\*`), name: 2, xp: 1},
	// **Perk**: +5 XP
	{re: regexp.MustCompile(`(?i)\*\*([^*]+?)\*\*:\s*\+(\d+)\s+XP`), name: 1, xp: 2},
}

var levelUp = regexp.MustCompile(`(?i)\*\*([^*]+?)\*\*\s+leveled\s+up\s+to\s+Level\s+(\d+)`)

// XPEvents returns every XP award in text. Each pattern is applied in turn
// and all of its matches are reported.
func XPEvents(text string) []XPEvent {
	var out []XPEvent
	for _, p := range xpPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			amount, err := strconv.Atoi(m[p.xp])
			if err != nil {
				continue
			}
			out = append(out, XPEvent{Perk: strings.TrimSpace(m[p.name]), Amount: amount})
		}
	}
	return out
}

// LevelEvents returns every "leveled up to Level N" assertion in text.
func LevelEvents(text string) []LevelEvent {
	var out []LevelEvent
	for _, m := range levelUp.FindAllStringSubmatch(text, -1) {
		lvl, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		out = append(out, LevelEvent{Perk: strings.TrimSpace(m[1]), Level: lvl})
	}
	return out
}
