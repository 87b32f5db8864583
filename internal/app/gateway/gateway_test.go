package gateway

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/forgeworks/forge/internal/app/forge"
	"github.com/forgeworks/forge/internal/domain"
	"github.com/forgeworks/forge/internal/infra/sqlite"
)

type fakeRemote struct {
	mu        sync.Mutex
	files     map[string]string
	err       error
	published map[string]string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{files: map[string]string{}, published: map[string]string{}}
}

func (r *fakeRemote) ReadAll(ctx context.Context) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make(map[string]string, len(r.files))
	for k, v := range r.files {
		out[k] = v
	}
	return out, nil
}

func (r *fakeRemote) Patch(ctx context.Context, files map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range files {
		r.files[k] = v
	}
	return nil
}

func (r *fakeRemote) Publish(name, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[name] = content
}

func newTestKV(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func stateWithBonus(n int) *domain.CharacterState {
	st := domain.NewCharacterState()
	st.BonusPoints = n
	domain.Recompute(st)
	return st
}

func putState(t *testing.T, kv domain.KVStore, key string, st *domain.CharacterState) {
	t.Helper()
	body, err := forge.Encode(st)
	if err != nil {
		t.Fatal(err)
	}
	kv.PutBlob(key, body)
}

func TestSanitizeProfile(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Main", "main"},
		{"  Jane's Run #2 ", "jane_s_run_2"},
		{"alt-save_1", "alt-save_1"},
		{"???", ""},
	}
	for _, tt := range tests {
		if got := SanitizeProfile(tt.in); got != tt.want {
			t.Errorf("SanitizeProfile(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := ProfileFile("Jane's Run"); got != "forge_profile_jane_s_run.json" {
		t.Errorf("ProfileFile = %q", got)
	}
}

// ─── Load order ─────────────────────────────────────────────────────────────

func TestLoad_FallbackOrder(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)
	remote := newFakeRemote()
	g := New(kv, WithRemote(remote, remote, 0))

	st, src, err := g.Load(ctx)
	if err != nil || src != SourceFresh || st.TotalPoints != 0 {
		t.Fatalf("empty load = %v, %v", src, err)
	}

	legacy := `{"base_cp": 40, "bonus_cp": 5, "acquired_perks": []}`
	remote.files[LegacyFile] = legacy
	st, src, _ = g.Load(ctx)
	if src != SourceLegacy || st.TotalPoints != 45 {
		t.Errorf("legacy load = %s total %d, want legacy 45", src, st.TotalPoints)
	}
	// The migrated state now lives in the global blob.
	if _, src, _ = g.Load(ctx); src != SourceGlobal {
		t.Errorf("after migration src = %s, want global", src)
	}

	g.SetConversation("chat-9")
	putState(t, kv, "cfr_chat-9", stateWithBonus(70))
	st, src, _ = g.Load(ctx)
	if src != SourceChat || st.TotalPoints != 70 {
		t.Errorf("chat load = %s total %d", src, st.TotalPoints)
	}

	g.CreateProfile("Main", stateWithBonus(5))
	g.SwitchProfile(ctx, "Main")
	st, src, _ = g.Load(ctx)
	if src != SourceProfile || st.TotalPoints != 5 {
		t.Errorf("profile load = %s total %d", src, st.TotalPoints)
	}
}

func TestLoad_RemoteProfile(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)
	remote := newFakeRemote()
	body, _ := forge.Encode(stateWithBonus(300))
	remote.files[ProfileFile("Shared")] = string(body)
	g := New(kv, WithRemote(remote, remote, 0))

	if _, err := g.SwitchProfile(ctx, "Shared"); err != nil {
		t.Fatalf("switch to remote-only profile: %v", err)
	}
	st, src, _ := g.Load(ctx)
	if src != SourceRemoteProfile || st.TotalPoints != 300 {
		t.Errorf("load = %s total %d", src, st.TotalPoints)
	}
	// Cached locally for the next load.
	if _, src, _ = g.Load(ctx); src != SourceProfile {
		t.Errorf("second load src = %s, want profile", src)
	}
}

func TestLoad_SkipsCorruptBlob(t *testing.T) {
	kv := newTestKV(t)
	kv.PutBlob("cfr_chat-1", []byte("{not json"))
	putState(t, kv, "cfr_global", stateWithBonus(12))
	g := New(kv)
	g.SetConversation("chat-1")

	st, src, err := g.Load(context.Background())
	if err != nil || src != SourceGlobal || st.TotalPoints != 12 {
		t.Errorf("load = %s total %d err %v", src, st.TotalPoints, err)
	}
}

func TestLoad_RemoteFailureFallsThrough(t *testing.T) {
	remote := newFakeRemote()
	remote.err = errors.New("offline")
	g := New(newTestKV(t), WithRemote(remote, remote, 0))
	if _, src, err := g.Load(context.Background()); err != nil || src != SourceFresh {
		t.Errorf("load = %s, %v; want fresh", src, err)
	}
}

// ─── Save ───────────────────────────────────────────────────────────────────

func TestSave_Keys(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)
	remote := newFakeRemote()
	g := New(kv, WithRemote(remote, remote, 0))

	g.Save(stateWithBonus(1))
	if _, err := kv.GetBlob("cfr_global"); err != nil {
		t.Errorf("no-chat save missing global blob: %v", err)
	}
	g.SetConversation("c2")
	g.Save(stateWithBonus(2))
	if _, err := kv.GetBlob("cfr_c2"); err != nil {
		t.Errorf("chat save missing: %v", err)
	}
	if len(remote.published) != 0 {
		t.Errorf("chat state published remotely: %v", remote.published)
	}

	g.CreateProfile("Main", nil)
	g.SwitchProfile(ctx, "Main")
	g.Save(stateWithBonus(3))
	if _, ok := remote.published["forge_profile_main.json"]; !ok {
		t.Errorf("profile save not published: %v", remote.published)
	}
	st, _, _ := g.Load(ctx)
	if st.BonusPoints != 3 {
		t.Errorf("profile bonus = %d, want 3", st.BonusPoints)
	}
}

// ─── Profiles ───────────────────────────────────────────────────────────────

func TestProfiles(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)
	g := New(kv)

	if _, err := g.CreateProfile("Main", stateWithBonus(10)); err != nil {
		t.Fatal(err)
	}
	if _, err := g.CreateProfile("main", nil); !errors.Is(err, domain.ErrProfileExists) {
		t.Errorf("duplicate create err = %v", err)
	}
	if _, err := g.CreateProfile("  ", nil); !errors.Is(err, domain.ErrInvalidProfile) {
		t.Errorf("blank create err = %v", err)
	}
	if _, err := g.DuplicateProfile("Main", "Alt"); err != nil {
		t.Fatal(err)
	}
	if _, err := g.DuplicateProfile("ghost", "x"); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Errorf("duplicate missing err = %v", err)
	}
	names, _ := g.Profiles()
	if !reflect.DeepEqual(names, []string{"alt", "main"}) {
		t.Errorf("Profiles() = %v", names)
	}

	if _, err := g.SwitchProfile(ctx, "ghost"); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Errorf("switch missing err = %v", err)
	}
	g.SwitchProfile(ctx, "Alt")
	if st, _, _ := g.Load(ctx); st.BonusPoints != 10 {
		t.Errorf("alt bonus = %d, want copy of main", st.BonusPoints)
	}

	// The selection survives a restart.
	if again := New(kv); again.ActiveProfile() != "alt" {
		t.Errorf("restored profile = %q", again.ActiveProfile())
	}
	g.SwitchProfile(ctx, "")
	if again := New(kv); again.ActiveProfile() != "" {
		t.Errorf("cleared profile restored as %q", again.ActiveProfile())
	}
}
