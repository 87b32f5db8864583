package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/forgeworks/forge/internal/app/gateway"
	"github.com/forgeworks/forge/internal/app/perkdb"
	"github.com/forgeworks/forge/internal/app/session"
	"github.com/forgeworks/forge/internal/domain"
	"github.com/forgeworks/forge/internal/infra/observability"
	"github.com/forgeworks/forge/internal/infra/sqlite"
)

// ─── Setup ──────────────────────────────────────────────────────────────────

func setupServer(t *testing.T) (http.Handler, *observability.Journal) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	journal := observability.NewJournal(observability.DefaultJournalConfig(), nil)
	catalog, err := perkdb.Open(db, perkdb.WithNotifier(journal))
	if err != nil {
		t.Fatal(err)
	}
	sess, err := session.New(context.Background(), session.DefaultConfig(), session.Deps{
		KV:       db,
		Marks:    db,
		Gateway:  gateway.New(db),
		Catalog:  catalog,
		Notifier: journal,
		Pick:     func(int) int { return 0 },
	}, "chat-1")
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(sess, journal)
	srv.EnableMetrics()
	return srv.Handler(), journal
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func errorReason(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	e, ok := decodeBody(t, w)["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in %s", w.Body.String())
	}
	return e
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	h, _ := setupServer(t)
	w := do(t, h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decodeBody(t, w); resp["status"] != "ok" {
		t.Errorf("status = %v", resp["status"])
	}
}

func TestMessages(t *testing.T) {
	h, _ := setupServer(t)

	w := do(t, h, http.MethodPost, "/api/messages", map[string]any{"seq": 0, "text": "The forge hums."})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = do(t, h, http.MethodPost, "/api/messages", map[string]any{"seq": 0, "text": "The forge hums."})
	if resp := decodeBody(t, w); resp["duplicate"] != true {
		t.Errorf("redelivery not flagged: %v", resp)
	}

	w = do(t, h, http.MethodGet, "/api/state", nil)
	if resp := decodeBody(t, w); resp["total_points"] != float64(10) {
		t.Errorf("total_points = %v, want 10", resp["total_points"])
	}

	if w := do(t, h, http.MethodPost, "/api/messages", map[string]any{"text": "no seq"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing seq: got %d", w.Code)
	}
}

func TestPerkLifecycle(t *testing.T) {
	h, _ := setupServer(t)
	do(t, h, http.MethodPost, "/api/points/bonus", map[string]int{"amount": 100})

	w := do(t, h, http.MethodPost, "/api/perks", map[string]any{"name": "Stone Ward", "cost": 40, "flags": []string{"TOGGLEABLE"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("add: got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodGet, "/api/perks/Stone%20Ward", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: got %d", w.Code)
	}
	w = do(t, h, http.MethodPost, "/api/perks/stone%20ward/toggle", nil)
	if resp := decodeBody(t, w); resp["active"] != false {
		t.Errorf("toggle = %v, want inactive", resp)
	}

	w = do(t, h, http.MethodDelete, "/api/perks/Stone%20Wart", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("remove typo: got %d", w.Code)
	}
	if e := errorReason(t, w); e["reason"] != "not_found" || e["suggestion"] != "Stone Ward" {
		t.Errorf("error = %v", e)
	}

	w = do(t, h, http.MethodDelete, "/api/perks/Stone%20Ward", nil)
	if resp := decodeBody(t, w); resp["available_points"] != float64(100) {
		t.Errorf("refund = %v", resp)
	}
}

func TestAddPerk_Errors(t *testing.T) {
	h, _ := setupServer(t)

	w := do(t, h, http.MethodPost, "/api/perks", map[string]any{"name": "Void Heart", "cost": 300})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unaffordable: got %d", w.Code)
	}
	e := errorReason(t, w)
	if e["reason"] != "insufficient_funds" {
		t.Errorf("reason = %v", e["reason"])
	}
	if pending, ok := e["pending"].(map[string]any); !ok || pending["needed"] != float64(300) {
		t.Errorf("pending = %v", e["pending"])
	}

	if w := do(t, h, http.MethodPost, "/api/perks", map[string]any{"cost": 10}); w.Code != http.StatusBadRequest {
		t.Errorf("no name: got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/perks", strings.NewReader("{bad"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: got %d", rec.Code)
	}
}

func TestRollFlow(t *testing.T) {
	h, _ := setupServer(t)
	do(t, h, http.MethodPost, "/api/points/bonus", map[string]int{"amount": 400})

	w := do(t, h, http.MethodPost, "/api/roll/creation", map[string]any{"constellation": "magic", "tier": 3})
	if w.Code != http.StatusOK {
		t.Fatalf("creation: got %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodPost, "/api/roll/forge", map[string]any{"constellation": "magic"}); w.Code != http.StatusConflict {
		t.Errorf("second trigger: got %d, want 409", w.Code)
	}

	reply := "**[Ember Heart]** (250 CP) [SCALING]\nA coal of living flame.\n"
	w = do(t, h, http.MethodPost, "/api/messages", map[string]any{"seq": 1, "text": reply})
	if resp := decodeBody(t, w); resp["proposal"] == nil {
		t.Fatalf("no proposal: %v", resp)
	}

	w = do(t, h, http.MethodPost, "/api/roll/acquire", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("acquire: got %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodPost, "/api/roll/discard", nil); w.Code != http.StatusNotFound {
		t.Errorf("discard idle: got %d, want 404", w.Code)
	}
	w = do(t, h, http.MethodGet, "/api/constellations/magic/perks", nil)
	var entries []domain.CatalogEntry
	json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) != 1 || entries[0].Name != "Ember Heart" {
		t.Errorf("catalog = %+v", entries)
	}
}

func TestConversationSwitch(t *testing.T) {
	h, _ := setupServer(t)
	do(t, h, http.MethodPost, "/api/points/bonus", map[string]int{"amount": 25})

	w := do(t, h, http.MethodPost, "/api/conversation", map[string]string{"id": "chat-2"})
	if w.Code != http.StatusOK {
		t.Fatalf("switch: got %d", w.Code)
	}
	resp := decodeBody(t, w)
	if resp["conversation"] != "chat-2" || resp["total_points"] != float64(0) {
		t.Errorf("status = %v", resp)
	}
}

func TestCheckpointAndSummary(t *testing.T) {
	h, _ := setupServer(t)
	w := do(t, h, http.MethodGet, "/api/checkpoint", nil)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), "```forge") {
		t.Errorf("checkpoint = %d %q", w.Code, w.Body.String())
	}
	w = do(t, h, http.MethodGet, "/api/summary", nil)
	if !strings.Contains(w.Body.String(), "[FORGE STATE]") {
		t.Errorf("summary = %q", w.Body.String())
	}
}

func TestConstellations(t *testing.T) {
	h, _ := setupServer(t)

	w := do(t, h, http.MethodPost, "/api/constellations", map[string]string{"label": "Clockwork"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add: got %d: %s", w.Code, w.Body.String())
	}
	key := decodeBody(t, w)["key"].(string)

	if w := do(t, h, http.MethodPost, "/api/constellations", map[string]string{"label": "Clockwork"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate: got %d", w.Code)
	}
	if w := do(t, h, http.MethodPut, "/api/constellations/"+key+"/guide", map[string]string{"guide": "Gears."}); w.Code != http.StatusNoContent {
		t.Errorf("guide: got %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/constellations/magic", nil); w.Code != http.StatusConflict {
		t.Errorf("remove builtin: got %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/constellations/"+key, nil); w.Code != http.StatusNoContent {
		t.Errorf("remove custom: got %d", w.Code)
	}
}

func TestProfiles(t *testing.T) {
	h, _ := setupServer(t)
	do(t, h, http.MethodPost, "/api/points/bonus", map[string]int{"amount": 15})

	w := do(t, h, http.MethodPost, "/api/profiles", map[string]any{"name": "Alt Run", "copy_current": true})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: got %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodPost, "/api/profiles", map[string]any{"name": "alt run"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate: got %d", w.Code)
	}
	w = do(t, h, http.MethodPost, "/api/profile", map[string]string{"name": "alt_run"})
	if resp := decodeBody(t, w); resp["profile"] != "alt_run" || resp["total_points"] != float64(15) {
		t.Errorf("switch = %v", resp)
	}
	if w := do(t, h, http.MethodPost, "/api/profile", map[string]string{"name": "nobody"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown: got %d", w.Code)
	}
}

func TestEvents(t *testing.T) {
	h, journal := setupServer(t)
	do(t, h, http.MethodPost, "/api/perks", map[string]any{"name": "Void Heart", "cost": 300})
	do(t, h, http.MethodPost, "/api/points/bonus", map[string]int{"amount": 5})

	w := do(t, h, http.MethodGet, "/api/events?limit=1", nil)
	var events []domain.Event
	if err := json.Unmarshal(w.Body.Bytes(), &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || journal.Count() < 2 {
		t.Errorf("events = %d of %d", len(events), journal.Count())
	}
	if w := do(t, h, http.MethodGet, "/api/events?limit=x", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: got %d", w.Code)
	}
}

func TestMetrics(t *testing.T) {
	h, _ := setupServer(t)
	do(t, h, http.MethodPost, "/api/messages", map[string]any{"seq": 0, "text": "hi"})
	w := do(t, h, http.MethodGet, "/metrics", nil)
	if !strings.Contains(w.Body.String(), "forge_reconcile_messages_total") {
		t.Error("metrics missing forge_reconcile_messages_total")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNoName, http.StatusBadRequest},
		{domain.ErrAlreadyAcquired, http.StatusConflict},
		{domain.ErrBankFull, http.StatusUnprocessableEntity},
		{domain.ErrNoRoll, http.StatusNotFound},
		{domain.ErrTrackingDisabled, http.StatusServiceUnavailable},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(domain.ReasonOf(tt.err)); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
