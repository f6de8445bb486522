// ABOUTME: HTTP API consumed by the game service
// ABOUTME: Persona CRUD, settings, transform, notify, and round bookkeeping
package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/harper/veil/internal/core"
	"github.com/harper/veil/internal/models"
)

// Server exposes the relay's state to the game service. Callers are trusted;
// the deployment keeps this listener off the public network.
type Server struct {
	registry    *core.Registry
	settings    *core.SettingsService
	transformer *core.Transformer
	notifier    *core.Notifier
	gw          core.Gateway
	log         zerolog.Logger

	// requireMember gates can_play on gateway membership. Off, everyone
	// may play.
	requireMember bool
}

// NewServer creates the API server.
func NewServer(registry *core.Registry, settings *core.SettingsService, transformer *core.Transformer, notifier *core.Notifier, gw core.Gateway, requireMember bool, log zerolog.Logger) *Server {
	return &Server{
		registry:      registry,
		settings:      settings,
		transformer:   transformer,
		notifier:      notifier,
		gw:            gw,
		log:           log.With().Str("component", "httpapi").Logger(),
		requireMember: requireMember,
	}
}

// Handler returns the routed API wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/{user}", s.handleCanPlay)
	mux.HandleFunc("GET /users/{user}/roles/{role}", s.handleHasRole)
	mux.HandleFunc("GET /users/{user}/personas", s.handleListPersonas)
	mux.HandleFunc("POST /users/{user}/personas", s.handleCreatePersona)
	mux.HandleFunc("GET /users/{user}/settings", s.handleGetSettings)
	mux.HandleFunc("POST /users/{user}/settings", s.handleSetSettings)
	mux.HandleFunc("POST /users/{user}/transform", s.handleTransform)
	mux.HandleFunc("POST /notify", s.handleNotify)
	mux.HandleFunc("POST /round-over", s.handleRoundOver)
	mux.HandleFunc("GET /personas/{persona}", s.handleGetPersona)
	mux.HandleFunc("PATCH /personas/{persona}", s.handleRenamePersona)
	mux.HandleFunc("DELETE /personas/{persona}", s.handleDeletePersona)
	mux.HandleFunc("POST /personas/purge", s.handlePurge)
	return requestLogger(s.log, mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleCanPlay(w http.ResponseWriter, r *http.Request) {
	user, ok := pathID(r, "user")
	if !ok {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	canPlay := true
	if s.requireMember {
		canPlay = s.gw.UserExists(user)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"can_play": canPlay})
}

func (s *Server) handleHasRole(w http.ResponseWriter, r *http.Request) {
	user, ok := pathID(r, "user")
	role, ok2 := pathID(r, "role")
	if !ok || !ok2 {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.gw.MemberHasRole(user, role))
}

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	user, ok := pathID(r, "user")
	if !ok {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	personas, err := s.registry.ListActive(r.Context(), user)
	if err != nil {
		s.log.Error().Err(err).Msg("persona list failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(personas))
	for i := range personas {
		out = append(out, map[string]any{
			"id":   personas[i].ID,
			"name": personas[i].Name,
			"temp": personas[i].Temp,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type personaRequest struct {
	Name string `json:"name"`
	Temp bool   `json:"temp"`
	Sudo bool   `json:"sudo"`
}

func (s *Server) handleCreatePersona(w http.ResponseWriter, r *http.Request) {
	user, ok := pathID(r, "user")
	if !ok {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	var req personaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	p, err := s.registry.Create(r.Context(), user, req.Name, req.Temp, req.Sudo)
	if errors.Is(err, core.ErrNameConflict) {
		writeJSON(w, http.StatusForbidden, map[string]string{"result": "taken"})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("persona create failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": "success", "id": p.ID})
}

type settingEntry struct {
	Name    string `json:"name"`
	Display string `json:"display"`
	Blurb   string `json:"blurb"`
	Value   bool   `json:"value"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	user, ok := pathID(r, "user")
	if !ok {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	cfg, err := s.settings.Get(r.Context(), user)
	if err != nil {
		s.log.Error().Err(err).Msg("settings lookup failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	entries := make([]settingEntry, 0, len(models.SettingDescriptors))
	for _, d := range models.SettingDescriptors {
		value, _ := cfg.Flag(d.Name)
		entries = append(entries, settingEntry{Name: d.Name, Display: d.Display, Blurb: d.Blurb, Value: value})
	}

	bits, err := s.settings.EntropyBits(r.Context(), user)
	if err != nil {
		s.log.Error().Err(err).Msg("entropy failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	// An empty comparison population has no finite estimate; that is null
	// on the wire.
	var entropy *float64
	if !math.IsInf(bits, 1) {
		entropy = &bits
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": entries, "entropy": entropy})
}

func (s *Server) handleSetSettings(w http.ResponseWriter, r *http.Request) {
	user, ok := pathID(r, "user")
	if !ok {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	var enabled []string
	if err := json.NewDecoder(r.Body).Decode(&enabled); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if err := s.settings.Set(r.Context(), user, enabled); err != nil {
		s.log.Error().Err(err).Msg("settings write failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	user, ok := pathID(r, "user")
	if !ok {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	var req struct {
		Text    string `json:"text"`
		Persona int64  `json:"persona"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	text, err := s.transformer.Transform(r.Context(), req.Text, req.Persona, user)
	if errors.Is(err, core.ErrRewriteUnavailable) {
		http.Error(w, "rewriter unavailable", http.StatusBadGateway)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("transform failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Parent  int64  `json:"parent"`
		Reply   int64  `json:"reply"`
		Persona int64  `json:"persona"`
		User    int64  `json:"user"`
		URL     string `json:"url"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	err := s.notifier.Notify(r.Context(), core.NotifyRequest{
		ParentOwner: req.Parent,
		ReplyOwner:  req.Reply,
		PersonaID:   req.Persona,
		UserID:      req.User,
		URL:         req.URL,
		Content:     req.Content,
	})
	if errors.Is(err, core.ErrNotFound) {
		http.Error(w, "no such persona", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("notify failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoundOver(w http.ResponseWriter, r *http.Request) {
	// The body is either a role id or an explicit list of user ids.
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	var targets []int64
	var roleID int64
	if err := json.Unmarshal(raw, &roleID); err == nil {
		targets = s.gw.RoleMembers(roleID)
	} else if err := json.Unmarshal(raw, &targets); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	for _, id := range targets {
		if !s.gw.UserExists(id) {
			continue
		}
		if err := s.gw.SendUser(r.Context(), id, "everyone has finished guessing", nil); err != nil {
			s.log.Warn().Err(err).Int64("user", id).Msg("round-over delivery failed")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "persona")
	if !ok {
		http.Error(w, "bad persona id", http.StatusBadRequest)
		return
	}
	p, err := s.registry.Get(r.Context(), id)
	if errors.Is(err, core.ErrNotFound) {
		http.Error(w, "no such persona", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("persona lookup failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": p.Name})
}

func (s *Server) handleRenamePersona(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "persona")
	if !ok {
		http.Error(w, "bad persona id", http.StatusBadRequest)
		return
	}
	var req personaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	_, err := s.registry.Rename(r.Context(), id, req.Name, req.Sudo)
	if errors.Is(err, core.ErrNameConflict) {
		writeJSON(w, http.StatusForbidden, map[string]string{"result": "taken"})
		return
	}
	if errors.Is(err, core.ErrNotFound) {
		http.Error(w, "no such persona", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("persona rename failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "success"})
}

func (s *Server) handleDeletePersona(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "persona")
	if !ok {
		http.Error(w, "bad persona id", http.StatusBadRequest)
		return
	}
	if err := s.registry.Deactivate(r.Context(), id); err != nil {
		s.log.Error().Err(err).Msg("persona deactivate failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	n, err := s.registry.PurgeTemporary(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("purge failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.log.Info().Int64("purged", n).Msg("temporary personas purged")
	w.WriteHeader(http.StatusNoContent)
}
