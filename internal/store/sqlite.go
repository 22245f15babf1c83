// SQLite-backed Store implementation.
// Single-file database, no external services. This is the default persistent
// backend for self-hosted deployments.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the console database under dataDir and
// runs migrations.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "console.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS roles (
		user_id          TEXT PRIMARY KEY,
		email            TEXT NOT NULL,
		role             TEXT NOT NULL,
		created_by_admin INTEGER NOT NULL DEFAULT 0,
		created_at       DATETIME NOT NULL,
		updated_at       DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions (
		token             TEXT PRIMARY KEY,
		real_principal    TEXT NOT NULL,
		impersonated      TEXT,
		id_token          TEXT NOT NULL DEFAULT '',
		created_at        DATETIME NOT NULL,
		expires_at        DATETIME NOT NULL,
		last_seen_at      DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
	CREATE TABLE IF NOT EXISTS secrets (
		secret_id            TEXT PRIMARY KEY,
		user_id              TEXT NOT NULL,
		agent_id             TEXT NOT NULL DEFAULT '',
		name                 TEXT NOT NULL DEFAULT '',
		created_at           DATETIME NOT NULL,
		release_requested_at DATETIME,
		released_at          DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_secrets_user ON secrets(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteStore) Close() error                   { return s.db.Close() }

// ── Role Store ──────────────────────────────────────────────

func (s *SQLiteStore) GetRole(ctx context.Context, userID string) (*models.RoleRecord, error) {
	var rec models.RoleRecord
	var createdByAdmin int
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, email, role, created_by_admin, created_at, updated_at FROM roles WHERE user_id = ?`,
		userID,
	).Scan(&rec.UserID, &rec.Email, &rec.Role, &createdByAdmin, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "role record", Key: userID}
	}
	if err != nil {
		return nil, err
	}
	rec.CreatedByAdmin = createdByAdmin != 0
	return &rec, nil
}

func (s *SQLiteStore) UpsertRole(ctx context.Context, rec *models.RoleRecord) error {
	createdByAdmin := 0
	if rec.CreatedByAdmin {
		createdByAdmin = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roles (user_id, email, role, created_by_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email = excluded.email,
			role = excluded.role,
			created_by_admin = excluded.created_by_admin,
			updated_at = excluded.updated_at`,
		rec.UserID, rec.Email, rec.Role, createdByAdmin, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (s *SQLiteStore) ListRoles(ctx context.Context) ([]models.RoleRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, email, role, created_by_admin, created_at, updated_at FROM roles ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RoleRecord
	for rows.Next() {
		var rec models.RoleRecord
		var createdByAdmin int
		if err := rows.Scan(&rec.UserID, &rec.Email, &rec.Role, &createdByAdmin, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.CreatedByAdmin = createdByAdmin != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteRole(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE user_id = ?`, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Entity: "role record", Key: userID}
	}
	return nil
}

// ── Session Store ───────────────────────────────────────────

func (s *SQLiteStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	var sess models.Session
	var realJSON string
	var impJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT token, real_principal, impersonated, id_token, created_at, expires_at, last_seen_at
		 FROM sessions WHERE token = ?`, token,
	).Scan(&sess.Token, &realJSON, &impJSON, &sess.IDToken, &sess.CreatedAt, &sess.ExpiresAt, &sess.LastSeenAt)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "session", Key: token}
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(realJSON), &sess.Real); err != nil {
		return nil, fmt.Errorf("decode session principal: %w", err)
	}
	if impJSON.Valid && impJSON.String != "" {
		var imp models.Principal
		if err := json.Unmarshal([]byte(impJSON.String), &imp); err != nil {
			return nil, fmt.Errorf("decode impersonated principal: %w", err)
		}
		sess.Impersonated = &imp
	}
	return &sess, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session *models.Session) error {
	realJSON, impJSON, err := encodeSessionPrincipals(session)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, real_principal, impersonated, id_token, created_at, expires_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.Token, realJSON, impJSON, session.IDToken,
		session.CreatedAt, session.ExpiresAt, session.LastSeenAt)
	return err
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, session *models.Session) error {
	realJSON, impJSON, err := encodeSessionPrincipals(session)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET real_principal = ?, impersonated = ?, id_token = ?, expires_at = ?, last_seen_at = ?
		WHERE token = ?`,
		realJSON, impJSON, session.IDToken, session.ExpiresAt, session.LastSeenAt, session.Token)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Entity: "session", Key: session.Token}
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Entity: "session", Key: token}
	}
	return nil
}

func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func encodeSessionPrincipals(session *models.Session) (string, sql.NullString, error) {
	realJSON, err := json.Marshal(session.Real)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("encode session principal: %w", err)
	}
	var impJSON sql.NullString
	if session.Impersonated != nil {
		b, err := json.Marshal(session.Impersonated)
		if err != nil {
			return "", sql.NullString{}, fmt.Errorf("encode impersonated principal: %w", err)
		}
		impJSON = sql.NullString{String: string(b), Valid: true}
	}
	return string(realJSON), impJSON, nil
}

// ── Secret Store ────────────────────────────────────────────

func (s *SQLiteStore) CreateSecretRecord(ctx context.Context, rec *models.SecretRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secrets (secret_id, user_id, agent_id, name, created_at, release_requested_at, released_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(secret_id) DO UPDATE SET
			user_id = excluded.user_id,
			agent_id = excluded.agent_id,
			name = excluded.name`,
		rec.SecretID, rec.UserID, rec.AgentID, rec.Name, rec.CreatedAt, rec.ReleaseRequestedAt, rec.ReleasedAt)
	return err
}

func (s *SQLiteStore) GetSecretRecord(ctx context.Context, secretID string) (*models.SecretRecord, error) {
	var rec models.SecretRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT secret_id, user_id, agent_id, name, created_at, release_requested_at, released_at
		FROM secrets WHERE secret_id = ?`, secretID,
	).Scan(&rec.SecretID, &rec.UserID, &rec.AgentID, &rec.Name, &rec.CreatedAt, &rec.ReleaseRequestedAt, &rec.ReleasedAt)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "secret record", Key: secretID}
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) MarkSecretReleaseRequested(ctx context.Context, secretID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE secrets SET release_requested_at = ? WHERE secret_id = ?`, at, secretID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Entity: "secret record", Key: secretID}
	}
	return nil
}

func (s *SQLiteStore) MarkSecretReleased(ctx context.Context, secretID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE secrets SET released_at = ? WHERE secret_id = ?`, at, secretID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Entity: "secret record", Key: secretID}
	}
	return nil
}

func (s *SQLiteStore) ListPendingSecretReleases(ctx context.Context, cutoff time.Time) ([]models.SecretRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT secret_id, user_id, agent_id, name, created_at, release_requested_at, released_at
		FROM secrets
		WHERE released_at IS NULL AND release_requested_at IS NOT NULL AND release_requested_at < ?`,
		cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SecretRecord
	for rows.Next() {
		var rec models.SecretRecord
		if err := rows.Scan(&rec.SecretID, &rec.UserID, &rec.AgentID, &rec.Name, &rec.CreatedAt, &rec.ReleaseRequestedAt, &rec.ReleasedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteSecretRecord(ctx context.Context, secretID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE secret_id = ?`, secretID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Entity: "secret record", Key: secretID}
	}
	return nil
}
