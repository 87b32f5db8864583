// Package narrative holds the stateless text scanners that read one AI
// message (checkpoint block, inline perk mentions, creation headers, XP and
// level-up sentences) and the renderers that write state back into text.
package narrative

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/forgeworks/forge/internal/domain"
)

// ─── Checkpoint Document ────────────────────────────────────────────────────
// The same shape is rendered into outgoing text and parsed back from the
// model's reply. Parsing is lenient: numbers may arrive as strings, flags as
// a comma string, perks as a "Name (N CP) | ..." string.

// Document is the payload of a ```forge block.
type Document struct {
	Characters []CharacterDoc `json:"characters"`
}

// CharacterDoc is one character entry. Older replies put the stats fields
// directly on the character instead of under "stats".
type CharacterDoc struct {
	CharacterName   string    `json:"characterName"`
	CurrentDateTime string    `json:"currentDateTime"`
	BgColor         string    `json:"bgColor,omitempty"`
	Stats           *StatsDoc `json:"stats,omitempty"`
}

// StatsDoc is the economy and perk snapshot.
type StatsDoc struct {
	TotalCP           flexInt  `json:"total_cp"`
	AvailableCP       flexInt  `json:"available_cp"`
	SpentCP           flexInt  `json:"spent_cp"`
	ThresholdProgress flexInt  `json:"threshold_progress"`
	ThresholdMax      flexInt  `json:"threshold_max"`
	ThresholdPercent  flexInt  `json:"threshold_percent"`
	Corruption        flexInt  `json:"corruption"`
	Sanity            flexInt  `json:"sanity"`
	PerkCount         flexInt  `json:"perk_count"`
	Perks             perkList `json:"perks"`
	PendingPerk       string   `json:"pending_perk"`
	PendingCP         flexInt  `json:"pending_cp"`
	PendingRemaining  flexInt  `json:"pending_remaining"`
}

// PerkDoc is one perk inside a checkpoint.
type PerkDoc struct {
	Name        string      `json:"name"`
	Cost        flexInt     `json:"cost"`
	Flags       flagList    `json:"flags"`
	FlagsStr    string      `json:"flags_str,omitempty"`
	Description string      `json:"description,omitempty"`
	Toggleable  bool        `json:"toggleable"`
	Active      *bool       `json:"active,omitempty"`
	HasScaling  bool        `json:"has_scaling"`
	IsUncapped  bool        `json:"is_uncapped"`
	Scaling     *ScalingDoc `json:"scaling"`
}

// ScalingDoc is a rendered scaffold.
type ScalingDoc struct {
	Level        flexInt `json:"level"`
	MaxLevel     flexInt `json:"maxLevel"`
	XP           flexInt `json:"xp"`
	XPNeeded     flexInt `json:"xp_needed"`
	XPPercent    flexInt `json:"xp_percent"`
	Uncapped     bool    `json:"uncapped"`
	LevelDisplay string  `json:"level_display,omitempty"`
	XPDisplay    string  `json:"xp_display,omitempty"`
}

// Draft converts a checkpoint perk into registry input. Scaling is carried
// only when the model reported one.
func (p PerkDoc) Draft() domain.PerkDraft {
	d := domain.PerkDraft{
		Name:        strings.TrimSpace(p.Name),
		Cost:        max(0, int(p.Cost)),
		Flags:       domain.ParseFlags(p.Flags),
		Description: strings.TrimSpace(p.Description),
		Active:      p.Active,
	}
	if len(p.Flags) == 0 && p.FlagsStr != "" {
		d.Flags = domain.ParseFlags(splitFlags(p.FlagsStr))
	}
	if p.Scaling != nil {
		s := domain.ScalingState{
			Level:    max(1, int(p.Scaling.Level)),
			MaxLevel: int(p.Scaling.MaxLevel),
			XP:       max(0, int(p.Scaling.XP)),
			Uncapped: p.Scaling.Uncapped || p.IsUncapped,
		}
		s.Recalc()
		d.Scaling = &s
	}
	return d
}

// ─── Lenient JSON Types ─────────────────────────────────────────────────────

var leadingInt = regexp.MustCompile(`-?\d+`)

// flexInt accepts 12, 12.0, "12" and "12 CP". Anything else decodes as 0.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, _ := strconv.Atoi(leadingInt.FindString(s))
		*n = flexInt(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		*n = 0
		return nil
	}
	*n = flexInt(int(f))
	return nil
}

// flagList accepts ["A","B"] or "A, B".
type flagList []string

func (l *flagList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*l = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = splitFlags(s)
		return nil
	}
	var arr []string
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	*l = arr
	return nil
}

var flagSeparators = regexp.MustCompile(`[,\s]+`)

func splitFlags(s string) []string {
	var out []string
	for _, part := range flagSeparators.Split(s, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// perkList accepts a list of perk objects or a "Name (N CP) | ..." string.
type perkList []PerkDoc

func (l *perkList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*l = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = parsePerkString(s)
		return nil
	}
	var arr []PerkDoc
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	*l = arr
	return nil
}

var perkStringEntry = regexp.MustCompile(`(.+?)\s*\((\d+)\s*CP\)`)

func parsePerkString(s string) []PerkDoc {
	var out []PerkDoc
	for _, part := range strings.Split(s, "|") {
		m := perkStringEntry.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		cost, _ := strconv.Atoi(m[2])
		out = append(out, PerkDoc{Name: strings.TrimSpace(m[1]), Cost: flexInt(cost)})
	}
	return out
}

// NormalizePerks turns a raw checkpoint "perks" value (list of objects or a
// delimited string) into drafts. Entries without a name are dropped.
func NormalizePerks(raw json.RawMessage) ([]domain.PerkDraft, error) {
	var l perkList
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	return drafts(l), nil
}

func drafts(l perkList) []domain.PerkDraft {
	out := make([]domain.PerkDraft, 0, len(l))
	for _, p := range l {
		d := p.Draft()
		if d.Name == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

// ─── Checkpoint Extraction ──────────────────────────────────────────────────

var checkpointBlock = regexp.MustCompile("(?s)```forge\\s*(.*?)```")

// Checkpoint is the authoritative snapshot parsed from one message.
type Checkpoint struct {
	CharacterName    string
	TotalPoints      int
	AvailablePoints  int
	Corruption       int
	Sanity           int
	Perks            []domain.PerkDraft
	PendingName      string
	PendingCost      int
	PendingRemaining int
}

// HasCheckpoint reports whether text carries a checkpoint block at all.
func HasCheckpoint(text string) bool {
	return checkpointBlock.MatchString(text)
}

// ParseCheckpoint extracts the first checkpoint block. It returns (nil, nil)
// when there is no block and an error wrapping ErrMalformedCheckpoint when
// the block is present but unreadable.
func ParseCheckpoint(text string) (*Checkpoint, error) {
	m := checkpointBlock.FindStringSubmatch(text)
	if m == nil {
		return nil, nil
	}
	var raw struct {
		Characters []json.RawMessage `json:"characters"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedCheckpoint, err)
	}
	if len(raw.Characters) == 0 {
		return nil, fmt.Errorf("%w: no characters", domain.ErrMalformedCheckpoint)
	}

	var char CharacterDoc
	if err := json.Unmarshal(raw.Characters[0], &char); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedCheckpoint, err)
	}
	stats := char.Stats
	if stats == nil {
		stats = &StatsDoc{}
		if err := json.Unmarshal(raw.Characters[0], stats); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedCheckpoint, err)
		}
	}

	return &Checkpoint{
		CharacterName:    char.CharacterName,
		TotalPoints:      int(stats.TotalCP),
		AvailablePoints:  int(stats.AvailableCP),
		Corruption:       domain.ClampPercent(int(stats.Corruption)),
		Sanity:           domain.ClampPercent(int(stats.Sanity)),
		Perks:            drafts(stats.Perks),
		PendingName:      strings.TrimSpace(stats.PendingPerk),
		PendingCost:      max(0, int(stats.PendingCP)),
		PendingRemaining: max(0, int(stats.PendingRemaining)),
	}, nil
}

// StripCheckpoint removes every checkpoint block from text.
func StripCheckpoint(text string) string {
	return checkpointBlock.ReplaceAllString(text, "")
}
