package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/forgeworks/forge/internal/domain"
)

// ─── Host Events ────────────────────────────────────────────────────────────
// POST /api/messages      {seq, text}  one finished AI message
// POST /api/conversation  {id}         the host switched chats

type messageRequest struct {
	Seq  *int64 `json:"seq"`
	Text string `json:"text"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Seq == nil {
		badRequest(w, "seq is required")
		return
	}
	res, err := s.session.HandleMessage(*req.Seq, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSwitchConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.session.SwitchConversation(r.Context(), req.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Status())
}

// ─── Reads ──────────────────────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Stats())
}

// handleCheckpoint returns the fenced block as plain text so the host can
// paste it into the prompt verbatim.
func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	out, err := s.session.RenderCheckpoint()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, out)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, s.session.RenderSummary())
}

// ─── Whole State ────────────────────────────────────────────────────────────

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	body, err := s.session.Export()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="forge_export.json"`)
	w.Write(body)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 8<<20))
	if err != nil {
		badRequest(w, "read body: "+err.Error())
		return
	}
	if err := s.session.Import(body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.session.Reset()
	writeJSON(w, http.StatusOK, s.session.Status())
}

// ─── Economy ────────────────────────────────────────────────────────────────

type pointsResponse struct {
	Available  int      `json:"available_points"`
	Total      int      `json:"total_points"`
	Affordable []string `json:"affordable,omitempty"`
}

func (s *Server) points(affordable []string) pointsResponse {
	st := s.session.Snapshot()
	return pointsResponse{Available: st.AvailablePoints, Total: st.TotalPoints, Affordable: affordable}
}

func (s *Server) handleSetAvailable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value int `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.points(s.session.SetAvailablePoints(req.Value)))
}

func (s *Server) handleAddBonus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.points(s.session.AddBonusPoints(req.Amount)))
}

func (s *Server) handleVitals(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Corruption *int `json:"corruption"`
		Sanity     *int `json:"sanity"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Corruption != nil {
		s.session.SetCorruption(*req.Corruption)
	}
	if req.Sanity != nil {
		s.session.SetSanity(*req.Sanity)
	}
	st := s.session.Snapshot()
	writeJSON(w, http.StatusOK, map[string]int{"corruption": st.Corruption, "sanity": st.Sanity})
}

// ─── Perks ──────────────────────────────────────────────────────────────────

func (s *Server) handleListPerks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot().AcquiredPerks)
}

func (s *Server) handleAddPerk(w http.ResponseWriter, r *http.Request) {
	var d domain.PerkDraft
	if !decode(w, r, &d) {
		return
	}
	p, err := s.session.AddPerk(d)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPerk(w http.ResponseWriter, r *http.Request) {
	p, err := s.session.Perk(pathParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleEditPerk(w http.ResponseWriter, r *http.Request) {
	var u domain.PerkUpdate
	if !decode(w, r, &u) {
		return
	}
	name := pathParam(r, "name")
	if err := s.session.EditPerk(name, u); err != nil {
		writeError(w, err)
		return
	}
	if u.Name != nil {
		name = *u.Name
	}
	p, err := s.session.Perk(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRemovePerk(w http.ResponseWriter, r *http.Request) {
	affordable, err := s.session.RemovePerk(pathParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.points(affordable))
}

func (s *Server) handleTogglePerk(w http.ResponseWriter, r *http.Request) {
	active, err := s.session.TogglePerk(pathParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (s *Server) handleEnableScaling(w http.ResponseWriter, r *http.Request) {
	s.perkCommand(w, r, s.session.EnablePerkScaling)
}

func (s *Server) handleEnableUncapped(w http.ResponseWriter, r *http.Request) {
	s.perkCommand(w, r, s.session.EnablePerkUncapped)
}

// perkCommand runs fn on the named perk and responds with the result.
func (s *Server) perkCommand(w http.ResponseWriter, r *http.Request, fn func(string) error) {
	name := pathParam(r, "name")
	if err := fn(name); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.session.Perk(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAddXP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	sc, ok := s.session.AddXP(pathParam(r, "name"), req.Amount)
	writeJSON(w, http.StatusOK, map[string]any{"scaling": sc, "applied": ok})
}

func (s *Server) handleSetLevel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level int `json:"level"`
		XP    int `json:"xp"`
	}
	if !decode(w, r, &req) {
		return
	}
	sc, ok := s.session.SetLevel(pathParam(r, "name"), req.Level, req.XP)
	writeJSON(w, http.StatusOK, map[string]any{"scaling": sc, "applied": ok})
}

func (s *Server) handleApplyGamer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"changed": s.session.ApplyGamer()})
}

func (s *Server) handleApplyUncapped(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"changed": s.session.ApplyUncapped()})
}

// ─── Banking ────────────────────────────────────────────────────────────────

func (s *Server) handleListBanked(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Banked())
}

func (s *Server) handleBankPerk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		domain.PerkDraft
		Constellation string `json:"constellation"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.session.BankPerk(req.PerkDraft, req.Constellation); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.session.Banked())
}

func (s *Server) handleAffordable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.CheckAffordability())
}

func (s *Server) handleAcquireBanked(w http.ResponseWriter, r *http.Request) {
	p, err := s.session.AcquireBanked(pathParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDiscardBanked(w http.ResponseWriter, r *http.Request) {
	if err := s.session.DiscardBanked(pathParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Banked())
}

// ─── Roll ───────────────────────────────────────────────────────────────────

func (s *Server) handleRollSlot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.RollSlot())
}

type rollRequest struct {
	Constellation string `json:"constellation"`
	Tier          int    `json:"tier"`
}

func (s *Server) handleForgeRoll(w http.ResponseWriter, r *http.Request) {
	var req rollRequest
	if !decode(w, r, &req) {
		return
	}
	slot, err := s.session.TriggerForgeRoll(req.Constellation)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func (s *Server) handleCreationRoll(w http.ResponseWriter, r *http.Request) {
	var req rollRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Tier < 0 || req.Tier > len(domain.TierBands) {
		badRequest(w, "tier out of range")
		return
	}
	slot, err := s.session.TriggerCreationRoll(req.Constellation, req.Tier)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func (s *Server) handleRollAcquire(w http.ResponseWriter, r *http.Request) {
	res, err := s.session.AcquireRoll()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRollBank(w http.ResponseWriter, r *http.Request) {
	res, err := s.session.BankRoll()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRollDiscard(w http.ResponseWriter, r *http.Request) {
	res, err := s.session.DiscardRoll()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Catalog ────────────────────────────────────────────────────────────────

func (s *Server) handleListConstellations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Constellations())
}

func (s *Server) handleAddConstellation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label    string `json:"label"`
		Category string `json:"category"`
	}
	if !decode(w, r, &req) {
		return
	}
	key, err := s.session.AddConstellation(req.Label, req.Category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (s *Server) handleRemoveConstellation(w http.ResponseWriter, r *http.Request) {
	if err := s.session.RemoveConstellation(pathParam(r, "key")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetGuide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Guide string `json:"guide"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.session.SetGuide(pathParam(r, "key"), req.Guide); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCatalogPerks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.CatalogEntries(pathParam(r, "key")))
}

func (s *Server) handleCatalogStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.CatalogStats())
}

func (s *Server) handleCatalogSync(w http.ResponseWriter, r *http.Request) {
	adopted, err := s.session.SyncCatalog(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"adopted": adopted})
}

// ─── Profiles ───────────────────────────────────────────────────────────────

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	names, err := s.session.Profiles()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles": names,
		"active":   s.session.Status().Profile,
	})
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		CopyCurrent bool   `json:"copy_current"`
	}
	if !decode(w, r, &req) {
		return
	}
	p, err := s.session.CreateProfile(req.Name, req.CopyCurrent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"profile": p})
}

func (s *Server) handleDuplicateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	p, err := s.session.DuplicateProfile(pathParam(r, "name"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"profile": p})
}

func (s *Server) handleSwitchProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if _, err := s.session.SwitchProfile(r.Context(), req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Status())
}

// ─── Events ─────────────────────────────────────────────────────────────────

// handleEvents returns the journal. ?since=<RFC3339> filters by time,
// otherwise ?limit=N returns the newest N (default 50).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			badRequest(w, "since must be RFC3339")
			return
		}
		writeJSON(w, http.StatusOK, s.journal.Since(t))
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.journal.Events(limit))
}
