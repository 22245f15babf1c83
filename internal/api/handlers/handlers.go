// Package handlers implements the HTTP handlers for the VoxDesk console
// plane. Handlers resolve the subject user through the session's effective
// identity, so admin impersonation transparently redirects every data route
// while the upstream bearer credential stays the real principal's.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/voxdesk/voxdesk/console-plane/internal/agentcfg"
	"github.com/voxdesk/voxdesk/console-plane/internal/datacollection"
	"github.com/voxdesk/voxdesk/console-plane/internal/identity"
	"github.com/voxdesk/voxdesk/console-plane/internal/store"
	"github.com/voxdesk/voxdesk/console-plane/internal/tools"
	"github.com/voxdesk/voxdesk/console-plane/internal/upstream"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store    store.Store
	Identity *identity.Service
	Upstream upstream.Client
	Version  string
}

// New creates a new Handlers instance with all dependencies.
func New(s store.Store, svc *identity.Service, up upstream.Client, version string) *Handlers {
	return &Handlers{
		Store:    s,
		Identity: svc,
		Upstream: up,
		Version:  version,
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps domain errors onto HTTP statuses. Upstream API
// errors pass through with their original status.
func respondServiceError(w http.ResponseWriter, err error) {
	var verr *tools.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error": verr.Message,
			"field": verr.Field,
		})
		return
	}
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		respondError(w, status, apiErr.Message)
		return
	}
	if store.IsNotFound(err) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	switch {
	case errors.Is(err, identity.ErrSessionNotFound):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, identity.ErrNotAdmin):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, identity.ErrImpersonateNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, identity.ErrTooManyAttempts):
		respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrAccountDisabled),
		errors.Is(err, identity.ErrEmailInUse),
		errors.Is(err, identity.ErrWeakPassword),
		errors.Is(err, identity.ErrSignUpDisabled):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrSignInFailed),
		errors.Is(err, identity.ErrSignUpFailed),
		errors.Is(err, identity.ErrLogoutFailed):
		respondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, agentcfg.ErrSaveInFlight),
		errors.Is(err, datacollection.ErrNameExists):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
