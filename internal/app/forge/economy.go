package forge

import (
	"fmt"

	"github.com/forgeworks/forge/internal/domain"
)

// ─── Economy Commands ───────────────────────────────────────────────────────

// TickResponse counts one processed AI message and re-derives base points.
func (t *Tracker) TickResponse() {
	t.state.ResponseCount++
	t.state.BasePoints = t.state.ResponseCount * t.cfg.CPPerResponse
	domain.Recompute(t.state)
	t.save()
	t.debugf("response %d, total %d", t.state.ResponseCount, t.state.TotalPoints)
}

// SetAvailablePoints adjusts the bonus accumulator so that available points
// equal target. Bonus never drops below zero, so a target below what base
// points alone provide is not reachable.
func (t *Tracker) SetAvailablePoints(target int) {
	domain.Recompute(t.state)
	needed := target - t.state.AvailablePoints
	t.state.BonusPoints = max(0, t.state.BonusPoints+needed)
	t.commit(domain.Event{
		Type:    domain.EventStateChanged,
		Message: fmt.Sprintf("available points set to %d", target),
	})
}

// AddBonusPoints adds to the bonus accumulator.
func (t *Tracker) AddBonusPoints(amount int) {
	t.state.BonusPoints = max(0, t.state.BonusPoints+amount)
	t.commit(domain.Event{
		Type:    domain.EventStateChanged,
		Message: fmt.Sprintf("bonus %+d points", amount),
	})
}

// SetCorruption sets corruption, clamped to [0,100].
func (t *Tracker) SetCorruption(v int) {
	t.state.Corruption = domain.ClampPercent(v)
	t.commit(domain.Event{Type: domain.EventStateChanged, Message: fmt.Sprintf("corruption %d", t.state.Corruption)})
}

// SetSanity sets sanity, clamped to [0,100].
func (t *Tracker) SetSanity(v int) {
	t.state.Sanity = domain.ClampPercent(v)
	t.commit(domain.Event{Type: domain.EventStateChanged, Message: fmt.Sprintf("sanity %d", t.state.Sanity)})
}

// SetPendingMarker overwrites the legacy pending slot.
func (t *Tracker) SetPendingMarker(m domain.PendingMarker) {
	t.state.Pending = &m
	t.commit(domain.Event{Type: domain.EventPerkPending, Perk: m.Name, Message: fmt.Sprintf("pending %s (%d CP)", m.Name, m.Cost)})
}
