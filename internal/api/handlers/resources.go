package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/voxdesk/voxdesk/console-plane/internal/api/middleware"
	"github.com/voxdesk/voxdesk/console-plane/internal/store"
	"github.com/voxdesk/voxdesk/console-plane/internal/tools"
	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

func (h *Handlers) ListVoices(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())

	voices, err := h.Upstream.ListVoices(r.Context(), sess.IDToken)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if voices == nil {
		voices = []models.Voice{}
	}
	respondJSON(w, http.StatusOK, voices)
}

func (h *Handlers) GetVoice(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	voiceID := chi.URLParam(r, "voiceId")

	voice, err := h.Upstream.GetVoice(r.Context(), sess.IDToken, voiceID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, voice)
}

func (h *Handlers) ListKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())

	docs, err := h.Upstream.ListKnowledgeBase(r.Context(), sess.IDToken, sess.Effective().ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if docs == nil {
		docs = []models.KnowledgeBaseDoc{}
	}
	respondJSON(w, http.StatusOK, docs)
}

// ── Secrets ─────────────────────────────────────────────────

type secretRequest struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	AgentID string `json:"agent_id,omitempty"`
}

// CreateSecret stores a custom-llm API key in the upstream secret store and
// records the issued reference for janitor bookkeeping. The raw value is
// never persisted on this side.
func (h *Handlers) CreateSecret(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())

	var req secretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.Value == "" {
		respondError(w, http.StatusBadRequest, "Secret name and value are required")
		return
	}

	ref, err := h.Upstream.CreateSecret(r.Context(), sess.IDToken, req.Name, req.Value)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	rec := &models.SecretRecord{
		SecretID:  ref.SecretID,
		UserID:    sess.Effective().ID,
		AgentID:   req.AgentID,
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.CreateSecretRecord(r.Context(), rec); err != nil {
		log.Warn().Err(err).Str("secret", ref.SecretID).Msg("secret bookkeeping failed")
	}

	respondJSON(w, http.StatusCreated, ref)
}

func (h *Handlers) UpdateSecret(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	secretID := chi.URLParam(r, "secretId")

	var req secretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.Value == "" {
		respondError(w, http.StatusBadRequest, "Secret name and value are required")
		return
	}

	ref, err := h.Upstream.UpdateSecret(r.Context(), sess.IDToken, secretID, req.Name, req.Value)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ref)
}

// DeleteSecret releases a secret reference. When the upstream delete fails
// the release is recorded as requested so the janitor retries it, and the
// failure is surfaced to the caller.
func (h *Handlers) DeleteSecret(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	secretID := chi.URLParam(r, "secretId")
	now := time.Now().UTC()

	if err := h.Upstream.DeleteSecret(r.Context(), sess.IDToken, secretID); err != nil {
		if merr := h.Store.MarkSecretReleaseRequested(r.Context(), secretID, now); merr != nil && !store.IsNotFound(merr) {
			log.Warn().Err(merr).Str("secret", secretID).Msg("secret bookkeeping failed")
		}
		respondServiceError(w, err)
		return
	}

	if merr := h.Store.MarkSecretReleased(r.Context(), secretID, now); merr != nil && !store.IsNotFound(merr) {
		log.Warn().Err(merr).Str("secret", secretID).Msg("secret bookkeeping failed")
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

// ── Tools ───────────────────────────────────────────────────

type buildToolRequest struct {
	Variant string     `json:"variant"`
	Form    tools.Form `json:"form"`
}

// BuildTool constructs a tool spec for the requested variant. Reserved
// variants come back with their fixed names and generated schemas; webhook
// forms are validated field by field.
func (h *Handlers) BuildTool(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())

	var req buildToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	spec, verr := tools.BuildSpec(tools.Variant(req.Variant), req.Form, h.Upstream.BaseURL(), sess.Effective().ID)
	if verr != nil {
		respondServiceError(w, verr)
		return
	}
	respondJSON(w, http.StatusOK, spec)
}

// ListToolVariants reports which tool variants an agent can still add. The
// tool named by the current query parameter is exempt from the
// one-per-reserved-variant rule so editing in place stays possible.
func (h *Handlers) ListToolVariants(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	current := r.URL.Query().Get("current")

	cfg, err := h.editorFor(r, agentID).Refresh(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	variants := tools.AvailableVariants(cfg.Tools, current)
	respondJSON(w, http.StatusOK, map[string]interface{}{"variants": variants})
}
