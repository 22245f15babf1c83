// Package store provides the storage interface and implementations for the
// VoxDesk console plane: role records (the per-user document the dashboard
// keys permissions on), console sessions, and secret-reference bookkeeping.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

// Store is the primary storage interface for the console plane.
// All handler code depends on this interface, making it easy to swap
// between in-memory (tests, zero-config), SQLite, and PostgreSQL backends.
type Store interface {
	RoleStore
	SessionStore
	SecretStore

	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Role Store ──────────────────────────────────────────────

// RoleStore manages per-user role documents keyed by principal id.
type RoleStore interface {
	GetRole(ctx context.Context, userID string) (*models.RoleRecord, error)
	UpsertRole(ctx context.Context, rec *models.RoleRecord) error
	ListRoles(ctx context.Context) ([]models.RoleRecord, error)
	DeleteRole(ctx context.Context, userID string) error
}

// ── Session Store ───────────────────────────────────────────

// SessionStore manages console sessions keyed by opaque session token.
type SessionStore interface {
	GetSession(ctx context.Context, token string) (*models.Session, error)
	CreateSession(ctx context.Context, session *models.Session) error
	UpdateSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, token string) error

	// DeleteExpiredSessions removes sessions past their expiry and returns
	// how many were removed. Used by the janitor.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// ── Secret Store ────────────────────────────────────────────

// SecretStore tracks secret references issued by the upstream secret store so
// orphaned references can be released even when the inline best-effort delete
// fails.
type SecretStore interface {
	CreateSecretRecord(ctx context.Context, rec *models.SecretRecord) error
	GetSecretRecord(ctx context.Context, secretID string) (*models.SecretRecord, error)

	// MarkSecretReleaseRequested records that an upstream delete was issued
	// but not confirmed; the janitor retries these.
	MarkSecretReleaseRequested(ctx context.Context, secretID string, at time.Time) error

	// MarkSecretReleased records that the secret is confirmed gone upstream.
	MarkSecretReleased(ctx context.Context, secretID string, at time.Time) error

	// ListPendingSecretReleases returns unreleased records whose release was
	// requested before the cutoff.
	ListPendingSecretReleases(ctx context.Context, cutoff time.Time) ([]models.SecretRecord, error)

	DeleteSecretRecord(ctx context.Context, secretID string) error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// IsNotFound reports whether err is a store not-found error.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}
