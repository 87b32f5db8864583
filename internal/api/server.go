// Package api provides the HTTP surface the chat host talks to: message
// events, conversation switches, state reads and every tracker command.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgeworks/forge/internal/app/session"
	"github.com/forgeworks/forge/internal/domain"
	"github.com/forgeworks/forge/internal/infra/observability"
)

// Version is reported by /api/version.
const Version = "0.3.0"

// Server is the forge HTTP API server.
type Server struct {
	session        *session.Session
	journal        *observability.Journal
	metricsEnabled bool
}

// NewServer creates a server over s. journal may be nil, in which case
// /api/events is not mounted.
func NewServer(s *session.Session, journal *observability.Journal) *Server {
	return &Server{session: s, journal: journal}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})
	})

	r.Route("/api", func(r chi.Router) {
		// Host events
		r.Post("/messages", s.handleMessage)
		r.Post("/conversation", s.handleSwitchConversation)

		// Reads
		r.Get("/status", s.handleStatus)
		r.Get("/state", s.handleState)
		r.Get("/stats", s.handleStats)
		r.Get("/checkpoint", s.handleCheckpoint)
		r.Get("/summary", s.handleSummary)

		// Whole state
		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)
		r.Post("/reset", s.handleReset)

		// Economy
		r.Post("/points/available", s.handleSetAvailable)
		r.Post("/points/bonus", s.handleAddBonus)
		r.Post("/vitals", s.handleVitals)

		// Perks
		r.Route("/perks", func(r chi.Router) {
			r.Get("/", s.handleListPerks)
			r.Post("/", s.handleAddPerk)
			r.Get("/{name}", s.handleGetPerk)
			r.Patch("/{name}", s.handleEditPerk)
			r.Delete("/{name}", s.handleRemovePerk)
			r.Post("/{name}/toggle", s.handleTogglePerk)
			r.Post("/{name}/scaling", s.handleEnableScaling)
			r.Post("/{name}/uncapped", s.handleEnableUncapped)
			r.Post("/{name}/xp", s.handleAddXP)
			r.Post("/{name}/level", s.handleSetLevel)
		})
		r.Post("/modifiers/gamer", s.handleApplyGamer)
		r.Post("/modifiers/uncapped", s.handleApplyUncapped)

		// Banking
		r.Route("/bank", func(r chi.Router) {
			r.Get("/", s.handleListBanked)
			r.Post("/", s.handleBankPerk)
			r.Get("/affordable", s.handleAffordable)
			r.Post("/{name}/acquire", s.handleAcquireBanked)
			r.Delete("/{name}", s.handleDiscardBanked)
		})

		// Roll
		r.Route("/roll", func(r chi.Router) {
			r.Get("/", s.handleRollSlot)
			r.Post("/forge", s.handleForgeRoll)
			r.Post("/creation", s.handleCreationRoll)
			r.Post("/acquire", s.handleRollAcquire)
			r.Post("/bank", s.handleRollBank)
			r.Post("/discard", s.handleRollDiscard)
		})

		// Catalog
		r.Route("/constellations", func(r chi.Router) {
			r.Get("/", s.handleListConstellations)
			r.Post("/", s.handleAddConstellation)
			r.Delete("/{key}", s.handleRemoveConstellation)
			r.Put("/{key}/guide", s.handleSetGuide)
			r.Get("/{key}/perks", s.handleCatalogPerks)
		})
		r.Get("/catalog/stats", s.handleCatalogStats)
		r.Post("/catalog/sync", s.handleCatalogSync)

		// Profiles
		r.Get("/profiles", s.handleListProfiles)
		r.Post("/profiles", s.handleCreateProfile)
		r.Post("/profiles/{name}/duplicate", s.handleDuplicateProfile)
		r.Post("/profile", s.handleSwitchProfile)

		if s.journal != nil {
			r.Get("/events", s.handleEvents)
		}
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response carrying the stable reason code.
// Typed errors add their payload.
func writeError(w http.ResponseWriter, err error) {
	reason := domain.ReasonOf(err)
	body := map[string]any{
		"message": err.Error(),
		"type":    "error",
		"reason":  reason,
	}
	var funds *domain.InsufficientFundsError
	if errors.As(err, &funds) {
		body["pending"] = funds.Pending
	}
	var nf *domain.NotFoundError
	if errors.As(err, &nf) && nf.Suggestion != "" {
		body["suggestion"] = nf.Suggestion
	}
	writeJSON(w, statusFor(reason), map[string]any{"error": body})
}

// badRequest reports a request that could not be decoded.
func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{"message": msg, "type": "error", "reason": "bad_request"},
	})
}

func statusFor(reason string) int {
	switch reason {
	case "not_found", "no_roll":
		return http.StatusNotFound
	case "no_name", "invalid_label", "invalid_profile", "malformed_checkpoint",
		"malformed_import", "not_toggleable":
		return http.StatusBadRequest
	case "already_acquired", "already_scaling", "already_uncapped", "already_banked",
		"duplicate", "constellation_exists", "builtin_constellation", "roll_pending",
		"profile_exists":
		return http.StatusConflict
	case "insufficient_funds", "bank_full", "no_perks_available", "no_proposal":
		return http.StatusUnprocessableEntity
	case "tracking_disabled", "no_generator":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// pathParam returns an unescaped URL parameter. Perk names carry spaces.
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// corsMiddleware adds CORS headers so a browser-hosted chat UI can call in.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
