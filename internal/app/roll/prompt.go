package roll

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/forgeworks/forge/internal/domain"
)

// GenerationPrompt is the directive injected into the next generation of a
// creation roll. The header format it asks for is what the direct creation
// strategy parses.
func GenerationPrompt(label, guide string, band domain.TierBand) string {
	var b strings.Builder
	b.WriteString("[CELESTIAL FORGE: CREATION ROLL]\n")
	fmt.Fprintf(&b, "Constellation: %s\n", label)
	if band.MaxCost > 0 {
		fmt.Fprintf(&b, "Tier %d (%s): cost between %d and %d CP\n", band.Tier, band.Label, band.MinCost, band.MaxCost)
	} else {
		fmt.Fprintf(&b, "Tier %d (%s): cost above %d CP\n", band.Tier, band.Label, band.MinCost-1)
	}
	if guide = strings.TrimSpace(guide); guide != "" {
		b.WriteString("Domain guide:\n" + guide + "\n")
	}
	b.WriteString("Invent one new perk from this constellation. Begin a line with exactly:\n")
	b.WriteString("**[Perk Name]** (COST CP) [FLAG, FLAG]\n")
	b.WriteString("Flags must come from: ")
	for i, f := range domain.AllFlags {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(f))
	}
	b.WriteString(".\nFollow with one to three paragraphs of description, then a line \"SCALING:\" ")
	b.WriteString("with lines like \"1-3: effect\", and optionally a line \"UNCAPPED: effect beyond the cap\".\n")
	return b.String()
}

// ─── KV-backed Slot Store ───────────────────────────────────────────────────

// KVSlotStore keeps one slot per conversation in the local KV store, so an
// awaited generation survives a restart between partial replies.
type KVSlotStore struct {
	kv  domain.KVStore
	key string
}

// NewKVSlotStore binds a slot to conversation id.
func NewKVSlotStore(kv domain.KVStore, conversation string) *KVSlotStore {
	if conversation == "" {
		conversation = "global"
	}
	return &KVSlotStore{kv: kv, key: "roll_" + conversation}
}

// LoadSlot returns the stored slot, or an idle one.
func (s *KVSlotStore) LoadSlot() (Slot, error) {
	body, err := s.kv.GetBlob(s.key)
	if errors.Is(err, domain.ErrStateNotFound) {
		return Slot{Phase: PhaseIdle}, nil
	}
	if err != nil {
		return Slot{}, err
	}
	var slot Slot
	if err := json.Unmarshal(body, &slot); err != nil {
		return Slot{Phase: PhaseIdle}, nil
	}
	return slot, nil
}

// SaveSlot persists the slot. An idle slot deletes the key.
func (s *KVSlotStore) SaveSlot(slot Slot) error {
	if slot.Phase == PhaseIdle {
		return s.kv.DeleteBlob(s.key)
	}
	body, err := json.Marshal(slot)
	if err != nil {
		return err
	}
	return s.kv.PutBlob(s.key, body)
}
