// Package gateway loads and saves character state. A load walks a fixed
// fallback order: the active profile, its remote file, the chat blob, the
// global blob, the legacy remote file, and finally a fresh state.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/forgeworks/forge/internal/app/forge"
	"github.com/forgeworks/forge/internal/domain"
)

const (
	// LegacyFile is the single-file remote layout migrated on first read.
	LegacyFile = "celestial_forge_data.json"

	profileFilePrefix = "forge_profile_"
	profileFileExt    = ".json"

	chatKeyPrefix    = "cfr_"
	globalKey        = "cfr_global"
	profileKeyPrefix = "profile_"
	activeProfileKey = "active_profile"

	DefaultRemoteTimeout = 15 * time.Second
)

// Source says which layer a load came from.
type Source string

const (
	SourceProfile       Source = "profile"
	SourceRemoteProfile Source = "remote_profile"
	SourceChat          Source = "chat"
	SourceGlobal        Source = "global"
	SourceLegacy        Source = "legacy"
	SourceFresh         Source = "fresh"
)

var unsafeName = regexp.MustCompile(`[^a-z0-9_-]+`)

// SanitizeProfile folds a profile name into its storage form.
func SanitizeProfile(name string) string {
	s := unsafeName.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	return strings.Trim(s, "_")
}

// ProfileFile is the remote file name of a profile.
func ProfileFile(name string) string {
	return profileFilePrefix + SanitizeProfile(name) + profileFileExt
}

// Gateway is safe for concurrent use.
type Gateway struct {
	mu      sync.Mutex
	kv      domain.KVStore
	remote  domain.DocumentStore
	pub     domain.Publisher
	timeout time.Duration

	chatID  string
	profile string
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithRemote enables remote reads (profile files, legacy migration) and
// remote profile mirroring.
func WithRemote(store domain.DocumentStore, pub domain.Publisher, timeout time.Duration) Option {
	return func(g *Gateway) {
		g.remote = store
		g.pub = pub
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

// New creates a gateway and restores the active profile selection.
func New(kv domain.KVStore, opts ...Option) *Gateway {
	g := &Gateway{kv: kv, timeout: DefaultRemoteTimeout}
	for _, o := range opts {
		o(g)
	}
	if body, err := kv.GetBlob(activeProfileKey); err == nil {
		g.profile = SanitizeProfile(string(body))
	}
	return g
}

// SetConversation selects the chat whose blob backs non-profile state.
func (g *Gateway) SetConversation(chatID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chatID = strings.TrimSpace(chatID)
}

// Conversation returns the current chat id.
func (g *Gateway) Conversation() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.chatID
}

// ActiveProfile returns the selected profile, or "".
func (g *Gateway) ActiveProfile() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.profile
}

// ─── Load / Save ────────────────────────────────────────────────────────────

// Load walks the fallback order. Unreadable blobs are logged and skipped.
func (g *Gateway) Load(ctx context.Context) (*domain.CharacterState, Source, error) {
	g.mu.Lock()
	profile, chatID := g.profile, g.chatID
	g.mu.Unlock()

	if profile != "" {
		if st, ok := g.loadKey(profileKey(profile)); ok {
			return st, SourceProfile, nil
		}
		if st, ok := g.loadRemote(ctx, ProfileFile(profile)); ok {
			g.writeLocal(profileKey(profile), st)
			return st, SourceRemoteProfile, nil
		}
	}
	if chatID != "" {
		if st, ok := g.loadKey(chatKey(chatID)); ok {
			return st, SourceChat, nil
		}
	}
	if st, ok := g.loadKey(globalKey); ok {
		return st, SourceGlobal, nil
	}
	if st, ok := g.loadRemote(ctx, LegacyFile); ok {
		log.Printf("[gateway] migrated %s", LegacyFile)
		if err := g.Save(st); err != nil {
			return st, SourceLegacy, err
		}
		return st, SourceLegacy, nil
	}
	return domain.NewCharacterState(), SourceFresh, nil
}

// Save writes st under the current key and mirrors profile state remotely.
// It implements forge.Persister.
func (g *Gateway) Save(st *domain.CharacterState) error {
	body, err := forge.Encode(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	g.mu.Lock()
	profile, key := g.profile, g.currentKeyLocked()
	g.mu.Unlock()

	if err := g.kv.PutBlob(key, body); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	if profile != "" && g.pub != nil {
		g.pub.Publish(ProfileFile(profile), string(body))
	}
	return nil
}

// RemoteFile reads one named remote file. ok is false when remote storage is
// disabled or the file is absent.
func (g *Gateway) RemoteFile(ctx context.Context, name string) (string, bool, error) {
	if g.remote == nil {
		return "", false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	files, err := g.remote.ReadAll(ctx)
	if err != nil {
		return "", false, fmt.Errorf("read remote: %w", err)
	}
	content, ok := files[name]
	return content, ok && strings.TrimSpace(content) != "", nil
}

func (g *Gateway) currentKeyLocked() string {
	if g.profile != "" {
		return profileKey(g.profile)
	}
	if g.chatID != "" {
		return chatKey(g.chatID)
	}
	return globalKey
}

func (g *Gateway) loadKey(key string) (*domain.CharacterState, bool) {
	body, err := g.kv.GetBlob(key)
	if err != nil {
		if !errors.Is(err, domain.ErrStateNotFound) {
			log.Printf("[gateway] read %s: %v", key, err)
		}
		return nil, false
	}
	st, err := forge.Decode(body)
	if err != nil {
		log.Printf("[gateway] %s unreadable, skipping: %v", key, err)
		return nil, false
	}
	return st, true
}

func (g *Gateway) loadRemote(ctx context.Context, name string) (*domain.CharacterState, bool) {
	content, ok, err := g.RemoteFile(ctx, name)
	if err != nil {
		log.Printf("[gateway] %v", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	st, err := forge.Decode([]byte(content))
	if err != nil {
		log.Printf("[gateway] remote %s unreadable, skipping: %v", name, err)
		return nil, false
	}
	return st, true
}

func (g *Gateway) writeLocal(key string, st *domain.CharacterState) {
	body, err := forge.Encode(st)
	if err != nil {
		return
	}
	if err := g.kv.PutBlob(key, body); err != nil {
		log.Printf("[gateway] cache %s: %v", key, err)
	}
}

func chatKey(id string) string { return chatKeyPrefix + id }
func profileKey(p string) string { return profileKeyPrefix + p }

// ─── Profiles ───────────────────────────────────────────────────────────────

// Profiles lists stored profile names.
func (g *Gateway) Profiles() ([]string, error) {
	keys, err := g.kv.ListKeys(profileKeyPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, profileKeyPrefix))
	}
	return names, nil
}

// CreateProfile stores st as a new profile.
func (g *Gateway) CreateProfile(name string, st *domain.CharacterState) (string, error) {
	p := SanitizeProfile(name)
	if p == "" {
		return "", domain.ErrInvalidProfile
	}
	if _, err := g.kv.GetBlob(profileKey(p)); err == nil {
		return "", fmt.Errorf("%s: %w", p, domain.ErrProfileExists)
	}
	if st == nil {
		st = domain.NewCharacterState()
	}
	body, err := forge.Encode(st)
	if err != nil {
		return "", err
	}
	if err := g.kv.PutBlob(profileKey(p), body); err != nil {
		return "", err
	}
	if g.pub != nil {
		g.pub.Publish(ProfileFile(p), string(body))
	}
	return p, nil
}

// DuplicateProfile copies profile src into a new profile dst.
func (g *Gateway) DuplicateProfile(src, dst string) (string, error) {
	st, ok := g.loadKey(profileKey(SanitizeProfile(src)))
	if !ok {
		return "", fmt.Errorf("%s: %w", src, domain.ErrProfileNotFound)
	}
	return g.CreateProfile(dst, st)
}

// SwitchProfile selects a profile; "" returns to per-chat state. A profile
// known only remotely is accepted and fetched on the next Load.
func (g *Gateway) SwitchProfile(ctx context.Context, name string) (string, error) {
	p := SanitizeProfile(name)
	if p != "" {
		if _, err := g.kv.GetBlob(profileKey(p)); err != nil {
			if _, ok, _ := g.RemoteFile(ctx, ProfileFile(p)); !ok {
				return "", fmt.Errorf("%s: %w", p, domain.ErrProfileNotFound)
			}
		}
	}

	g.mu.Lock()
	g.profile = p
	g.mu.Unlock()

	var err error
	if p == "" {
		err = g.kv.DeleteBlob(activeProfileKey)
	} else {
		err = g.kv.PutBlob(activeProfileKey, []byte(p))
	}
	if err != nil {
		return p, fmt.Errorf("persist active profile: %w", err)
	}
	return p, nil
}
