package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/voxdesk/voxdesk/console-plane/internal/api/middleware"
	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string           `json:"token"`
	User      models.Principal `json:"user"`
	IsAdmin   bool             `json:"is_admin"`
	ExpiresAt string           `json:"expires_at"`
}

func (h *Handlers) newSessionResponse(r *http.Request, sess *models.Session) sessionResponse {
	return sessionResponse{
		Token:     sess.Token,
		User:      sess.Effective(),
		IsAdmin:   h.Identity.IsAdmin(r.Context(), sess),
		ExpiresAt: sess.ExpiresAt.Format(timeFormat),
	}
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

func (h *Handlers) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess, err := h.Identity.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Info().Str("user", sess.Real.ID).Msg("account created")
	respondJSON(w, http.StatusCreated, h.newSessionResponse(r, sess))
}

func (h *Handlers) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess, err := h.Identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, h.newSessionResponse(r, sess))
}

// SignOut tears down the session. Any active impersonation dies with it.
func (h *Handlers) SignOut(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if err := h.Identity.Logout(r.Context(), sess); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

func (h *Handlers) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.Identity.SendPasswordReset(r.Context(), req.Email); err != nil {
		respondServiceError(w, err)
		return
	}
	// Same response whether or not the account exists.
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset email sent"})
}

// Me reports the session's effective identity alongside the real one, so the
// dashboard can render the impersonation banner.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user":          sess.Effective(),
		"real":          sess.Real,
		"impersonating": sess.Impersonated != nil,
		"is_admin":      h.Identity.IsAdmin(r.Context(), sess),
	})
}

func (h *Handlers) Impersonate(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	targetID := chi.URLParam(r, "userId")

	if err := h.Identity.ImpersonateUser(r.Context(), sess, targetID); err != nil {
		respondServiceError(w, err)
		return
	}

	log.Info().Str("admin", sess.Real.ID).Str("target", targetID).Msg("impersonation started")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user":          sess.Effective(),
		"real":          sess.Real,
		"impersonating": true,
	})
}

func (h *Handlers) StopImpersonation(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())

	if err := h.Identity.StopImpersonation(r.Context(), sess); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user":          sess.Effective(),
		"real":          sess.Real,
		"impersonating": false,
	})
}

// ListUsers is the admin-only user picker backing the impersonation UI.
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())

	users, err := h.Identity.ListUsers(r.Context(), sess)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if users == nil {
		users = []models.RoleRecord{}
	}
	respondJSON(w, http.StatusOK, users)
}
