package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/forgeworks/forge/internal/domain"
)

// ─── Journal ────────────────────────────────────────────────────────────────

type sink struct{ got []domain.Event }

func (s *sink) Notify(ev domain.Event) { s.got = append(s.got, ev) }

func TestJournal_RecordsAndForwards(t *testing.T) {
	next := &sink{}
	j := NewJournal(DefaultJournalConfig(), next)

	j.Notify(domain.Event{Type: domain.EventPerkAcquired, Perk: "Iron Skin", Message: "acquired"})

	if j.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", j.Count())
	}
	ev := j.Events(1)[0]
	if ev.Perk != "Iron Skin" {
		t.Errorf("Perk = %q, want Iron Skin", ev.Perk)
	}
	if ev.Timestamp.IsZero() {
		t.Error("Timestamp not stamped")
	}
	if len(next.got) != 1 {
		t.Errorf("forwarded %d events, want 1", len(next.got))
	}
}

func TestJournal_RingBuffer_Overflow(t *testing.T) {
	j := NewJournal(JournalConfig{Enabled: true, MaxEvents: 3}, nil)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		j.Notify(domain.Event{Type: domain.EventStateChanged, Perk: name})
	}
	if j.Count() != 3 {
		t.Fatalf("Count() = %d, want 3 (ring buffer cap)", j.Count())
	}
	events := j.Events(0)
	if events[0].Perk != "c" || events[2].Perk != "e" {
		t.Errorf("kept %v, want c..e", []string{events[0].Perk, events[1].Perk, events[2].Perk})
	}
	if got := j.Events(2); len(got) != 2 || got[0].Perk != "d" {
		t.Errorf("Events(2) = %+v", got)
	}
}

func TestJournal_Disabled(t *testing.T) {
	next := &sink{}
	j := NewJournal(JournalConfig{Enabled: false, MaxEvents: 10}, next)
	j.Notify(domain.Event{Type: domain.EventRoll})
	if j.Count() != 0 {
		t.Errorf("disabled journal Count() = %d, want 0", j.Count())
	}
	if len(next.got) != 1 {
		t.Error("disabled journal must still forward")
	}
}

func TestJournal_Since(t *testing.T) {
	j := NewJournal(DefaultJournalConfig(), nil)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	j.Notify(domain.Event{Type: domain.EventRoll, Timestamp: base})
	j.Notify(domain.Event{Type: domain.EventRoll, Timestamp: base.Add(time.Minute)})
	if got := j.Since(base); len(got) != 1 {
		t.Errorf("Since() = %d events, want 1", len(got))
	}
	j.Reset()
	if j.Count() != 0 {
		t.Error("Reset() left events")
	}
}

// ─── Metrics ────────────────────────────────────────────────────────────────

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if out.Counter != nil {
		return out.GetCounter().GetValue()
	}
	return out.GetGauge().GetValue()
}

func TestJournal_CountsEventsByType(t *testing.T) {
	c := EventsTotal.WithLabelValues(string(domain.EventLevelUp))
	before := value(t, c)
	j := NewJournal(DefaultJournalConfig(), nil)
	j.Notify(domain.Event{Type: domain.EventLevelUp})
	j.Notify(domain.Event{Type: domain.EventLevelUp})
	if got := value(t, c) - before; got != 2 {
		t.Errorf("events_total{type=level_up} delta = %v, want 2", got)
	}
}

func TestMetrics_Registered(t *testing.T) {
	// promauto panics on duplicate registration; touching each vector
	// confirms the label sets are valid.
	MessagesTotal.WithLabelValues("processed").Inc()
	CheckpointsTotal.WithLabelValues("synced").Inc()
	PerksDetected.WithLabelValues("added").Inc()
	RollTransitions.WithLabelValues("forge").Inc()
	RemoteSyncs.WithLabelValues("ok").Inc()
	GuideRequests.WithLabelValues("ok").Inc()
	XPGranted.Add(5)
	AvailablePoints.Set(42)
	RemoteQueueDepth.Set(0)
	RemoteSyncLatency.Observe(12)

	if got := value(t, AvailablePoints); got != 42 {
		t.Errorf("available_points = %v, want 42", got)
	}
}
