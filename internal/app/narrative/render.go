package narrative

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/forgeworks/forge/internal/domain"
)

// ─── Rendering ──────────────────────────────────────────────────────────────

const (
	DefaultCharacterName = "Smith"
	checkpointColor      = "#e94560"
	dateLayout           = "1/2/2006, 3:04:05 PM"
)

// SummaryTrailer is appended to the prompt summary. It asks the model to
// close its reply with a checkpoint in exactly the shape ParseCheckpoint reads.
const SummaryTrailer = "[END FORGE STATE]\n\n" +
	"At the very end of your next response, output the updated forge state as a fenced code block tagged `forge` " +
	"containing JSON of the form " +
	`{"characters":[{"characterName":"...","currentDateTime":"...","stats":{"total_cp":0,"available_cp":0,"spent_cp":0,` +
	`"corruption":0,"sanity":0,"perks":[{"name":"...","cost":0,"flags":["..."],"description":"...","active":true,` +
	`"scaling":{"level":1,"maxLevel":10,"xp":0}}],"pending_perk":"","pending_cp":0,"pending_remaining":0}}]}` +
	". Report XP as \"**Perk Name** gains N XP\" and level-ups as \"**Perk Name** leveled up to Level N\"."

// BuildStats is the stable snapshot shape rendering layers consume.
func BuildStats(st *domain.CharacterState) StatsDoc {
	s := st.Clone()
	domain.Recompute(s)

	perks := make(perkList, 0, len(s.AcquiredPerks))
	for _, p := range s.AcquiredPerks {
		active := p.Active
		doc := PerkDoc{
			Name:        p.Name,
			Cost:        flexInt(p.Cost),
			Flags:       flagList(p.Flags.Strings()),
			FlagsStr:    p.Flags.String(),
			Description: p.Description,
			Toggleable:  p.Toggleable,
			Active:      &active,
			HasScaling:  p.Scaling.Active,
			IsUncapped:  p.Scaling.Uncapped,
		}
		if p.Scaling.Active {
			doc.Scaling = &ScalingDoc{
				Level:        flexInt(p.Scaling.Level),
				MaxLevel:     flexInt(p.Scaling.MaxLevel),
				XP:           flexInt(p.Scaling.XP),
				XPNeeded:     flexInt(p.Scaling.XPNeeded),
				XPPercent:    flexInt(p.Scaling.XPPercent),
				Uncapped:     p.Scaling.Uncapped,
				LevelDisplay: p.Scaling.LevelDisplay(),
				XPDisplay:    p.Scaling.XPDisplay(),
			}
		}
		perks = append(perks, doc)
	}

	out := StatsDoc{
		TotalCP:           flexInt(s.TotalPoints),
		AvailableCP:       flexInt(s.AvailablePoints),
		SpentCP:           flexInt(s.SpentPoints),
		ThresholdProgress: flexInt(s.ThresholdProgress),
		ThresholdMax:      flexInt(s.Threshold),
		ThresholdPercent:  flexInt(domain.ThresholdPercent(s)),
		Corruption:        flexInt(s.Corruption),
		Sanity:            flexInt(s.Sanity),
		PerkCount:         flexInt(len(s.AcquiredPerks)),
		Perks:             perks,
	}
	if s.Pending != nil {
		out.PendingPerk = s.Pending.Name
		out.PendingCP = flexInt(s.Pending.Cost)
		out.PendingRemaining = flexInt(s.Pending.Needed)
	}
	return out
}

// BuildDocument wraps the snapshot in the checkpoint document.
func BuildDocument(st *domain.CharacterState, characterName string, now time.Time) Document {
	if characterName == "" {
		characterName = DefaultCharacterName
	}
	stats := BuildStats(st)
	return Document{Characters: []CharacterDoc{{
		CharacterName:   characterName,
		CurrentDateTime: now.Format(dateLayout),
		BgColor:         checkpointColor,
		Stats:           &stats,
	}}}
}

// RenderCheckpoint renders the fenced ```forge block.
func RenderCheckpoint(st *domain.CharacterState, characterName string, now time.Time) (string, error) {
	body, err := json.MarshalIndent(BuildDocument(st, characterName, now), "", "  ")
	if err != nil {
		return "", fmt.Errorf("render checkpoint: %w", err)
	}
	return "```forge\n" + string(body) + "\n```", nil
}

// RenderSummary renders the compact [FORGE STATE] block followed by the
// instructional trailer.
func RenderSummary(st *domain.CharacterState) string {
	s := st.Clone()
	domain.Recompute(s)

	var b strings.Builder
	b.WriteString("[FORGE STATE]\n")
	fmt.Fprintf(&b, "CP: %d total | %d available | %d spent\n", s.TotalPoints, s.AvailablePoints, s.SpentPoints)
	fmt.Fprintf(&b, "Threshold: %d/%d\n", s.ThresholdProgress, s.Threshold)
	fmt.Fprintf(&b, "Corruption: %d/100 | Sanity: %d/100\n", s.Corruption, s.Sanity)

	var mods []string
	if s.HasUncapped {
		mods = append(mods, "UNCAPPED ACTIVE")
	}
	if s.HasGamer {
		mods = append(mods, "GAMER ACTIVE")
	}
	if len(mods) > 0 {
		b.WriteString(strings.Join(mods, " | ") + "\n")
	}

	fmt.Fprintf(&b, "PERKS (%d):\n", len(s.AcquiredPerks))
	if len(s.AcquiredPerks) == 0 {
		b.WriteString("(none)\n")
	}
	for _, p := range s.AcquiredPerks {
		fmt.Fprintf(&b, "- %s (%d CP) [%s]", p.Name, p.Cost, p.Flags.String())
		if p.Scaling.Active {
			fmt.Fprintf(&b, " [%s — %s]", p.Scaling.LevelDisplay(), p.Scaling.XPDisplay())
		}
		if p.Toggleable {
			if p.Active {
				b.WriteString(" [ON]")
			} else {
				b.WriteString(" [OFF]")
			}
		}
		b.WriteString("\n")
	}

	if len(s.BankedPerks) > 0 {
		fmt.Fprintf(&b, "BANKED (%d):\n", len(s.BankedPerks))
		for _, bp := range s.BankedPerks {
			fmt.Fprintf(&b, "- %s (%d CP)\n", bp.Name, bp.Cost)
		}
	}
	if s.Pending != nil {
		fmt.Fprintf(&b, "PENDING: %s (%d CP — need %d more)\n", s.Pending.Name, s.Pending.Cost, s.Pending.Needed)
	}

	b.WriteString(SummaryTrailer)
	return b.String()
}
