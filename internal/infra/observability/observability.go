// Package observability records what the tracker did: an in-memory event
// journal for the host UI and Prometheus metrics for operators.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/forgeworks/forge/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Event Journal
// ═══════════════════════════════════════════════════════════════════════════

// Journal keeps the most recent notifications in a ring buffer. It
// implements domain.Notifier and forwards each event to an optional next
// notifier.
type Journal struct {
	mu        sync.Mutex
	events    []domain.Event
	maxEvents int
	enabled   bool
	next      domain.Notifier
}

// JournalConfig configures the journal.
type JournalConfig struct {
	Enabled   bool
	MaxEvents int // ring buffer size (default 500)
}

// DefaultJournalConfig returns production defaults.
func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		Enabled:   true,
		MaxEvents: 500,
	}
}

// NewJournal creates a journal. next may be nil.
func NewJournal(cfg JournalConfig, next domain.Notifier) *Journal {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultJournalConfig().MaxEvents
	}
	return &Journal{
		events:    make([]domain.Event, 0, cfg.MaxEvents),
		maxEvents: cfg.MaxEvents,
		enabled:   cfg.Enabled,
		next:      next,
	}
}

// Notify records ev and counts it by type.
func (j *Journal) Notify(ev domain.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	EventsTotal.WithLabelValues(string(ev.Type)).Inc()

	if j.enabled {
		j.mu.Lock()
		// Ring buffer: overwrite oldest if at capacity
		if len(j.events) >= j.maxEvents {
			j.events = j.events[1:]
		}
		j.events = append(j.events, ev)
		j.mu.Unlock()
	}

	if j.next != nil {
		j.next.Notify(ev)
	}
}

// Events returns a copy of the most recent events, oldest first.
func (j *Journal) Events(limit int) []domain.Event {
	j.mu.Lock()
	defer j.mu.Unlock()

	if limit <= 0 || limit > len(j.events) {
		limit = len(j.events)
	}
	start := len(j.events) - limit
	out := make([]domain.Event, limit)
	copy(out, j.events[start:])
	return out
}

// Since returns the events recorded after t.
func (j *Journal) Since(t time.Time) []domain.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.Event
	for _, ev := range j.events {
		if ev.Timestamp.After(t) {
			out = append(out, ev)
		}
	}
	return out
}

// Count returns the number of recorded events.
func (j *Journal) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.events)
}

// Reset clears all recorded events.
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = j.events[:0]
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Tracker Metrics ────────────────────────────────────────────────────────

// EventsTotal counts notifications by type.
var EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "forge",
	Subsystem: "tracker",
	Name:      "events_total",
	Help:      "Total tracker notifications by type.",
}, []string{"type"})

// MessagesTotal counts AI messages by outcome (processed, duplicate, disabled).
var MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "forge",
	Subsystem: "reconcile",
	Name:      "messages_total",
	Help:      "Total AI messages received by outcome.",
}, []string{"result"})

// CheckpointsTotal counts checkpoint blocks by parse result.
var CheckpointsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "forge",
	Subsystem: "reconcile",
	Name:      "checkpoints_total",
	Help:      "Total checkpoint blocks by parse result (synced, malformed).",
}, []string{"result"})

// PerksDetected counts perks applied by reconciliation, by outcome.
var PerksDetected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "forge",
	Subsystem: "reconcile",
	Name:      "perks_total",
	Help:      "Perks seen by reconciliation by outcome (added, merged, pending, deferred).",
}, []string{"outcome"})

// XPGranted sums narrative XP applied.
var XPGranted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "forge",
	Subsystem: "reconcile",
	Name:      "xp_granted_total",
	Help:      "Total narrative XP applied to perks.",
})

// AvailablePoints tracks the active character's available CP.
var AvailablePoints = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "forge",
	Subsystem: "tracker",
	Name:      "available_points",
	Help:      "Available CP of the active character.",
})

// ─── Roll Metrics ───────────────────────────────────────────────────────────

// RollTransitions counts roll session actions (forge, creation, acquire,
// bank, discard, cancel).
var RollTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "forge",
	Subsystem: "roll",
	Name:      "transitions_total",
	Help:      "Total roll session transitions by action.",
}, []string{"action"})

// ─── Remote Sync Metrics ────────────────────────────────────────────────────

// RemoteSyncs counts remote patch attempts by result (ok, retry, dropped,
// superseded).
var RemoteSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "forge",
	Subsystem: "remote",
	Name:      "syncs_total",
	Help:      "Total remote file sync attempts by result.",
}, []string{"result"})

// RemoteSyncLatency tracks remote patch latency.
var RemoteSyncLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "forge",
	Subsystem: "remote",
	Name:      "sync_latency_ms",
	Help:      "Remote patch latency in milliseconds.",
	Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
})

// RemoteQueueDepth tracks files waiting for a remote patch.
var RemoteQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "forge",
	Subsystem: "remote",
	Name:      "queue_depth",
	Help:      "Files waiting to be mirrored remotely.",
})

// GuideRequests counts constellation guide generations by result.
var GuideRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "forge",
	Subsystem: "generation",
	Name:      "guide_requests_total",
	Help:      "Total constellation guide generations by result.",
}, []string{"result"})
