package domain

import (
	"context"
	"time"
)

// ─── Boundary Interfaces ────────────────────────────────────────────────────
// Infrastructure implements these; the app layer depends on them.

// KVStore is the durable local key-value store for opaque blobs.
type KVStore interface {
	GetBlob(key string) ([]byte, error) // ErrStateNotFound if absent
	PutBlob(key string, body []byte) error
	DeleteBlob(key string) error
	ListKeys(prefix string) ([]string, error)
}

// DocumentStore is the remote multi-file document.
type DocumentStore interface {
	// ReadAll returns every file keyed by name.
	ReadAll(ctx context.Context) (map[string]string, error)

	// Patch replaces the content of the named files.
	Patch(ctx context.Context, files map[string]string) error
}

// Publisher mirrors a named file to remote storage without blocking the
// caller. Failures are handled (logged, retried or dropped) by the publisher.
type Publisher interface {
	Publish(name, content string)
}

// TextGenerator is the optional AI text-generation capability.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ─── Notifications ──────────────────────────────────────────────────────────

// EventType classifies a state notification.
type EventType string

const (
	EventStateChanged   EventType = "state_changed"
	EventPerkAcquired   EventType = "perk_acquired"
	EventPerkPending    EventType = "perk_pending"
	EventPerkRemoved    EventType = "perk_removed"
	EventLevelUp        EventType = "level_up"
	EventAffordable     EventType = "affordable"
	EventRoll           EventType = "roll"
	EventSyncFailed     EventType = "sync_failed"
	EventCheckpointSkip EventType = "checkpoint_skip"
)

// Event is a UI-facing notification.
type Event struct {
	Type      EventType `json:"type"`
	Perk      string    `json:"perk,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives UI-facing notifications. Implementations must not block.
type Notifier interface {
	Notify(ev Event)
}

// NopNotifier discards every event.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(Event) {}
