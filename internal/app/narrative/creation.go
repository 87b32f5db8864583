package narrative

import (
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/forgeworks/forge/internal/domain"
)

// ─── Creation Parsing ───────────────────────────────────────────────────────
// A creation roll asks the model for a brand-new perk in a fixed header
// format. Replies drift from that format, so the header is tried with an
// ordered list of named strategies and the first hit wins.

// Proposal is a perk parsed from a creation reply.
type Proposal struct {
	Draft    domain.PerkDraft
	Strategy string
}

// Strategy is one named way of finding a generated perk.
type Strategy struct {
	Name  string
	Parse func(text string) (domain.PerkDraft, bool)
}

// CreationStrategies are tried in order.
var CreationStrategies = []Strategy{
	{Name: "direct", Parse: parseDirect},
	{Name: "labeled", Parse: parseLabeled},
	{Name: "checkpoint", Parse: parseCheckpointPending},
}

// ParseCreation runs the strategies in priority order.
func ParseCreation(text string) (Proposal, bool) {
	for _, s := range CreationStrategies {
		if d, ok := s.Parse(text); ok {
			return Proposal{Draft: d, Strategy: s.Name}, true
		}
	}
	return Proposal{}, false
}

// **[Ember Heart]** (200 CP) [SCALING, MAGIC] at the start of a line.
var directHeader = regexp.MustCompile(`(?m)^\*\*\[?([^\]*\n]+?)\]?\*\*\s*\((\d+)\s*CP\)[^\n]*?\[([^\]\n]*)\]`)

// PERK NAME: Ember Heart (200 CP) [SCALING], bold markers optional.
var labeledHeader = regexp.MustCompile(`(?mi)^\s*(?:\*\*)?PERK\s+NAME:\s*(?:\*\*)?\s*\[?([^\]*\n(]+?)\]?\s*(?:\*\*)?\s*\((\d+)\s*CP\)(?:[^\n]*?\[([^\]\n]*)\])?`)

var nameLabel = regexp.MustCompile(`(?i)^PERK\s+NAME:`)

func parseDirect(text string) (domain.PerkDraft, bool) {
	d, ok := parseHeader(directHeader, text)
	if ok && nameLabel.MatchString(d.Name) {
		// Mislabeled header; leave it to the labeled strategy.
		return domain.PerkDraft{}, false
	}
	return d, ok
}

func parseLabeled(text string) (domain.PerkDraft, bool) {
	return parseHeader(labeledHeader, text)
}

func parseHeader(re *regexp.Regexp, text string) (domain.PerkDraft, bool) {
	loc := re.FindStringSubmatchIndex(text)
	if loc == nil {
		return domain.PerkDraft{}, false
	}
	name := strings.TrimSpace(text[loc[2]:loc[3]])
	if name == "" {
		return domain.PerkDraft{}, false
	}
	cost, _ := strconv.Atoi(text[loc[4]:loc[5]])
	var flags domain.Flags
	if loc[6] >= 0 {
		flags = domain.ParseFlags(splitFlags(text[loc[6]:loc[7]]))
	} else {
		flags = domain.Flags{}
	}
	desc, scaling := ExtractDetails(text[loc[1]:])
	return domain.PerkDraft{
		Name:               name,
		Cost:               cost,
		Flags:              flags,
		Description:        desc,
		ScalingDescription: scaling,
	}, true
}

// parseCheckpointPending falls back to the pending perk a checkpoint block
// mentions when the reply has no usable header.
func parseCheckpointPending(text string) (domain.PerkDraft, bool) {
	cp, err := ParseCheckpoint(text)
	if err != nil {
		log.Printf("[narrative] checkpoint fallback: %v", err)
		return domain.PerkDraft{}, false
	}
	if cp == nil || cp.PendingName == "" {
		return domain.PerkDraft{}, false
	}
	d := domain.PerkDraft{Name: cp.PendingName, Cost: cp.PendingCost, Flags: domain.Flags{}}
	for _, p := range cp.Perks {
		if domain.SameName(p.Name, cp.PendingName) {
			d.Flags = p.Flags
			d.Description = p.Description
			if d.Cost == 0 {
				d.Cost = p.Cost
			}
			break
		}
	}
	return d, true
}

// ─── Description and Scaling Text ───────────────────────────────────────────

var (
	scalingMarker  = regexp.MustCompile(`(?im)^\s*(?:\*\*)?SCALING:(?:\*\*)?`)
	uncappedLine   = regexp.MustCompile(`(?im)^\s*(?:\*\*)?UNCAPPED:(?:\*\*)?\s*(.+?)\s*$`)
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	scalingLine    = regexp.MustCompile(`(?i)^\s*[-*•]?\s*(?:lv\.?|level)?\s*(\d+(?:\s*-\s*\d+)?)\s*:\s*(.+?)\s*$`)
	spaces         = regexp.MustCompile(`\s+`)
)

const (
	maxDescParagraphs = 3
	minParagraphLen   = 20
)

// ExtractDetails reads the text following a perk header. The description is
// up to three substantial paragraphs before "SCALING:". Lines under
// "SCALING:" of the form "1-3: text" become the scaling map, and an
// "UNCAPPED:" line is stored under the "uncapped" key.
func ExtractDetails(body string) (string, map[string]string) {
	body = strings.ReplaceAll(StripCheckpoint(body), "\r\n", "\n")

	scaling := map[string]string{}
	if m := uncappedLine.FindStringSubmatch(body); m != nil {
		scaling["uncapped"] = m[1]
		body = uncappedLine.ReplaceAllString(body, "")
	}

	descPart, scalingPart := body, ""
	if loc := scalingMarker.FindStringIndex(body); loc != nil {
		descPart, scalingPart = body[:loc[0]], body[loc[1]:]
	}

	var paras []string
	for _, p := range paragraphBreak.Split(descPart, -1) {
		p = strings.TrimSpace(p)
		if len(p) <= minParagraphLen {
			continue
		}
		paras = append(paras, p)
		if len(paras) == maxDescParagraphs {
			break
		}
	}

	for _, line := range strings.Split(scalingPart, "\n") {
		m := scalingLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		scaling[spaces.ReplaceAllString(m[1], "")] = m[2]
	}

	if len(scaling) == 0 {
		scaling = nil
	}
	return strings.Join(paras, "\n\n"), scaling
}
