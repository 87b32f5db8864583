// Package reconcile applies one AI message to a character: the checkpoint
// block first, then inline perk mentions, then narrative XP, then the
// response tick.
package reconcile

import (
	"errors"
	"fmt"
	"log"

	"github.com/forgeworks/forge/internal/app/forge"
	"github.com/forgeworks/forge/internal/app/narrative"
	"github.com/forgeworks/forge/internal/domain"
)

// Config gates the controller.
type Config struct {
	Enabled             bool
	AutoParseCheckpoint bool
	Debug               bool
}

// DefaultConfig enables tracking and checkpoint sync.
func DefaultConfig() Config {
	return Config{Enabled: true, AutoParseCheckpoint: true}
}

// Guard exposes the perk an open roll is waiting on. ProposedName returns ""
// when nothing is pending.
type Guard interface {
	ProposedName() string
}

// Report describes what one message changed.
type Report struct {
	Checkpoint      bool                   `json:"checkpoint"`
	CheckpointError string                 `json:"checkpoint_error,omitempty"`
	Added           []string               `json:"added,omitempty"`
	Merged          []string               `json:"merged,omitempty"`
	Pending         []string               `json:"pending,omitempty"`
	Deferred        []string               `json:"deferred,omitempty"`
	XP              []narrative.XPEvent    `json:"xp,omitempty"`
	LevelUps        []narrative.LevelEvent `json:"level_ups,omitempty"`
	Affordable      []domain.BankedPerk    `json:"affordable,omitempty"`
}

// Controller orchestrates the parsers against one tracker.
type Controller struct {
	cfg     Config
	tracker *forge.Tracker
	guard   Guard
	notify  domain.Notifier
}

// New creates a controller. guard may be nil.
func New(cfg Config, tr *forge.Tracker, guard Guard, n domain.Notifier) *Controller {
	if n == nil {
		n = domain.NopNotifier{}
	}
	return &Controller{cfg: cfg, tracker: tr, guard: guard, notify: n}
}

// ProcessMessage applies one AI message. Parse failures in one channel never
// stop the others.
func (c *Controller) ProcessMessage(text string) (Report, error) {
	var rep Report
	if !c.cfg.Enabled {
		return rep, domain.ErrTrackingDisabled
	}

	if c.cfg.AutoParseCheckpoint {
		cp, err := narrative.ParseCheckpoint(text)
		switch {
		case err != nil:
			log.Printf("[reconcile] checkpoint skipped: %v", err)
			rep.CheckpointError = err.Error()
		case cp != nil:
			rep.Checkpoint = true
			c.syncCheckpoint(cp, &rep)
		}
	}

	for _, d := range narrative.InlinePerks(text) {
		if c.tracker.HasPerk(d.Name) {
			continue
		}
		if c.deferred(d.Name, &rep) {
			continue
		}
		c.add(d, &rep)
	}

	for _, ev := range narrative.XPEvents(text) {
		if _, ok := c.tracker.AddXP(ev.Perk, ev.Amount); ok {
			rep.XP = append(rep.XP, ev)
		}
	}
	for _, ev := range narrative.LevelEvents(text) {
		p, err := c.tracker.Perk(ev.Perk)
		if err != nil || !p.Scaling.Active {
			continue
		}
		if _, ok := c.tracker.SetLevel(ev.Perk, ev.Level, 0); ok {
			rep.LevelUps = append(rep.LevelUps, ev)
		}
	}

	c.tracker.TickResponse()
	rep.Affordable = c.tracker.CheckAffordability()
	if c.cfg.Debug {
		log.Printf("[reconcile] added=%v merged=%v pending=%v deferred=%v xp=%d",
			rep.Added, rep.Merged, rep.Pending, rep.Deferred, len(rep.XP))
	}
	return rep, nil
}

// syncCheckpoint applies the authoritative block: vitals overwrite, existing
// perks merge, new perks are added unless an open roll owns the name.
func (c *Controller) syncCheckpoint(cp *narrative.Checkpoint, rep *Report) {
	c.tracker.SyncVitals(cp.Corruption, cp.Sanity)

	for _, d := range cp.Perks {
		if c.tracker.MergePerk(d) {
			rep.Merged = append(rep.Merged, d.Name)
			continue
		}
		if c.deferred(d.Name, rep) {
			continue
		}
		c.add(d, rep)
	}

	if cp.PendingName != "" {
		c.tracker.SetPendingMarker(domain.PendingMarker{
			Name:   cp.PendingName,
			Cost:   cp.PendingCost,
			Needed: cp.PendingRemaining,
		})
	}
}

func (c *Controller) deferred(name string, rep *Report) bool {
	if c.guard == nil {
		return false
	}
	proposed := c.guard.ProposedName()
	if proposed == "" || !domain.SameName(proposed, name) {
		return false
	}
	log.Printf("[reconcile] %s deferred: roll decision pending", name)
	rep.Deferred = append(rep.Deferred, name)
	c.notify.Notify(domain.Event{
		Type:    domain.EventCheckpointSkip,
		Perk:    name,
		Message: fmt.Sprintf("%s awaits your roll decision", name),
	})
	return true
}

func (c *Controller) add(d domain.PerkDraft, rep *Report) {
	_, err := c.tracker.AddPerk(d)
	switch {
	case err == nil:
		rep.Added = append(rep.Added, d.Name)
	case errors.Is(err, domain.ErrInsufficientFunds):
		rep.Pending = append(rep.Pending, d.Name)
	case errors.Is(err, domain.ErrAlreadyAcquired):
	default:
		log.Printf("[reconcile] add %q: %v", d.Name, err)
	}
}
