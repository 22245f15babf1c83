// Package models defines the shared data model for the VoxDesk console plane:
// principals and role records, console sessions, agent configuration records
// (raw upstream shape and normalized draft shape), tool specs, data-collection
// variables, and the small wire types consumed from the upstream platform API.
package models

import (
	"time"
)

// ── Roles & Principals ───────────────────────────────────────

// Role is the console-level role attached to a principal.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// RoleRecord is the per-user document kept in the role store, keyed by the
// principal's id. Shape mirrors the document-store contract.
type RoleRecord struct {
	UserID         string    `json:"user_id" db:"user_id"`
	Email          string    `json:"email" db:"email"`
	Role           Role      `json:"role" db:"role"`
	CreatedByAdmin bool      `json:"createdByAdmin" db:"created_by_admin"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// Principal is an authenticated identity. Exactly one real Principal exists
// per session; at most one additional Principal may be held as impersonated.
type Principal struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// IsAdmin reports whether this principal carries the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// ── Sessions ─────────────────────────────────────────────────

// Session is one signed-in console session. The real principal is set at
// sign-in; the impersonated principal is set by an explicit admin action.
// The bearer credential (IDToken) always belongs to the real principal;
// impersonation changes the subject user id, never the credential.
type Session struct {
	Token        string     `json:"token"`
	Real         Principal  `json:"real"`
	Impersonated *Principal `json:"impersonated,omitempty"`
	IDToken      string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	LastSeenAt   time.Time  `json:"last_seen_at"`
}

// Effective returns the principal all data operations are scoped to:
// the impersonated principal if present, the real one otherwise.
// It is derived on every call and never stored.
func (s *Session) Effective() Principal {
	if s.Impersonated != nil {
		return *s.Impersonated
	}
	return s.Real
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// ── Voices ───────────────────────────────────────────────────

// Voice is one TTS voice as returned by the upstream voice catalog.
type Voice struct {
	VoiceID    string            `json:"voice_id"`
	Name       string            `json:"name"`
	Category   string            `json:"category,omitempty"`
	PreviewURL string            `json:"preview_url,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// ── Knowledge Base ───────────────────────────────────────────

// KnowledgeBaseRef is one document reference attached to an agent.
// Membership on an agent is a set keyed by ID.
type KnowledgeBaseRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// KnowledgeBaseDoc is one document in a user's knowledge-base collection.
type KnowledgeBaseDoc struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ── Secrets ──────────────────────────────────────────────────

// SecretRef is a reference to a secret held by the upstream secret store.
// The raw secret value never appears in this repo.
type SecretRef struct {
	SecretID string `json:"secret_id"`
}

// SecretRecord is the console plane's bookkeeping row for an issued secret
// reference. ReleaseRequestedAt is set when an upstream delete was attempted
// but not confirmed; the janitor retries those. ReleasedAt is set once the
// secret is confirmed gone upstream.
type SecretRecord struct {
	SecretID           string     `json:"secret_id" db:"secret_id"`
	UserID             string     `json:"user_id" db:"user_id"`
	AgentID            string     `json:"agent_id" db:"agent_id"`
	Name               string     `json:"name" db:"name"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	ReleaseRequestedAt *time.Time `json:"release_requested_at,omitempty" db:"release_requested_at"`
	ReleasedAt         *time.Time `json:"released_at,omitempty" db:"released_at"`
}
