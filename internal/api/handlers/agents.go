package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/voxdesk/voxdesk/console-plane/internal/agentcfg"
	"github.com/voxdesk/voxdesk/console-plane/internal/api/middleware"
	"github.com/voxdesk/voxdesk/console-plane/internal/datacollection"
	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

// editorFor builds a configuration editor bound to the request's effective
// user. The bearer credential is always the real principal's token;
// impersonation only changes the subject user id.
func (h *Handlers) editorFor(r *http.Request, agentID string) *agentcfg.Editor {
	sess := middleware.GetSession(r.Context())
	return agentcfg.NewEditor(h.Upstream, h.Store, sess.IDToken, sess.Effective().ID, agentID)
}

func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())

	agents, err := h.Upstream.ListAgents(r.Context(), sess.IDToken, sess.Effective().ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if agents == nil {
		agents = []models.AgentSummary{}
	}
	respondJSON(w, http.StatusOK, agents)
}

func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())

	var req models.CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Agent name is required")
		return
	}

	rec, err := h.Upstream.CreateAgent(r.Context(), sess.IDToken, sess.Effective().ID, &req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Info().Str("agent", rec.AgentID).Str("user", sess.Effective().ID).Msg("agent created")
	respondJSON(w, http.StatusCreated, models.Normalize(rec))
}

// GetAgent returns the normalized configuration: every optional upstream
// field filled with its documented default.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	cfg, err := h.editorFor(r, agentID).Refresh(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

// GetAgentDetail is the aggregate load behind the agent editing screen: the
// agent record plus voice detail, voice list and knowledge base. Only the
// agent fetch is fatal; the rest degrade into warnings.
func (h *Handlers) GetAgentDetail(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	res, err := h.editorFor(r, agentID).Load(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// PatchAgent reconciles an edited draft back into the upstream record:
// validate tools, coerce data-collection constants, strip UI-only fields,
// PATCH, then refetch and return the canonical state.
func (h *Handlers) PatchAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	var draft models.AgentConfig
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	for name, v := range draft.DataCollection {
		if v.ConstantValue != nil {
			coerced := datacollection.CoerceConstantValue(*v.ConstantValue, v.ConstantValueType)
			v.ConstantValue = &coerced
			draft.DataCollection[name] = v
		}
	}

	ed := h.editorFor(r, agentID)
	if _, err := ed.Refresh(r.Context()); err != nil {
		respondServiceError(w, err)
		return
	}
	if err := ed.AdoptDraft(r.Context(), &draft); err != nil {
		respondServiceError(w, err)
		return
	}

	cfg, err := ed.Save(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	agentID := chi.URLParam(r, "agentId")

	if err := h.Upstream.DeleteAgent(r.Context(), sess.IDToken, sess.Effective().ID, agentID); err != nil {
		respondServiceError(w, err)
		return
	}

	log.Info().Str("agent", agentID).Str("user", sess.Effective().ID).Msg("agent deleted")
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
