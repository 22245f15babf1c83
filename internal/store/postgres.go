// PostgreSQL-backed Store implementation.
// Used when multiple console-plane replicas share one database.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and runs migrations.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Info().Msg("postgres store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS vd_roles (
		user_id          TEXT PRIMARY KEY,
		email            TEXT NOT NULL,
		role             TEXT NOT NULL,
		created_by_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS vd_sessions (
		token          TEXT PRIMARY KEY,
		real_principal JSONB NOT NULL,
		impersonated   JSONB,
		id_token       TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL,
		expires_at     TIMESTAMPTZ NOT NULL,
		last_seen_at   TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_vd_sessions_expires ON vd_sessions (expires_at);
	CREATE TABLE IF NOT EXISTS vd_secrets (
		secret_id            TEXT PRIMARY KEY,
		user_id              TEXT NOT NULL,
		agent_id             TEXT NOT NULL DEFAULT '',
		name                 TEXT NOT NULL DEFAULT '',
		created_at           TIMESTAMPTZ NOT NULL,
		release_requested_at TIMESTAMPTZ,
		released_at          TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_vd_secrets_user ON vd_secrets (user_id);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// ── Role Store ──────────────────────────────────────────────

func (s *PostgresStore) GetRole(ctx context.Context, userID string) (*models.RoleRecord, error) {
	var rec models.RoleRecord
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, email, role, created_by_admin, created_at, updated_at FROM vd_roles WHERE user_id = $1`,
		userID,
	).Scan(&rec.UserID, &rec.Email, &rec.Role, &rec.CreatedByAdmin, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "role record", Key: userID}
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) UpsertRole(ctx context.Context, rec *models.RoleRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vd_roles (user_id, email, role, created_by_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			created_by_admin = EXCLUDED.created_by_admin,
			updated_at = EXCLUDED.updated_at`,
		rec.UserID, rec.Email, rec.Role, rec.CreatedByAdmin, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (s *PostgresStore) ListRoles(ctx context.Context) ([]models.RoleRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, email, role, created_by_admin, created_at, updated_at FROM vd_roles ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RoleRecord
	for rows.Next() {
		var rec models.RoleRecord
		if err := rows.Scan(&rec.UserID, &rec.Email, &rec.Role, &rec.CreatedByAdmin, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteRole(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM vd_roles WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "role record", Key: userID}
	}
	return nil
}

// ── Session Store ───────────────────────────────────────────

func (s *PostgresStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	var sess models.Session
	var realJSON []byte
	var impJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT token, real_principal, impersonated, id_token, created_at, expires_at, last_seen_at
		 FROM vd_sessions WHERE token = $1`, token,
	).Scan(&sess.Token, &realJSON, &impJSON, &sess.IDToken, &sess.CreatedAt, &sess.ExpiresAt, &sess.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "session", Key: token}
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(realJSON, &sess.Real); err != nil {
		return nil, fmt.Errorf("decode session principal: %w", err)
	}
	if len(impJSON) > 0 {
		var imp models.Principal
		if err := json.Unmarshal(impJSON, &imp); err != nil {
			return nil, fmt.Errorf("decode impersonated principal: %w", err)
		}
		sess.Impersonated = &imp
	}
	return &sess, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, session *models.Session) error {
	realJSON, impJSON, err := marshalPrincipals(session)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO vd_sessions (token, real_principal, impersonated, id_token, created_at, expires_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.Token, realJSON, impJSON, session.IDToken,
		session.CreatedAt, session.ExpiresAt, session.LastSeenAt)
	return err
}

func (s *PostgresStore) UpdateSession(ctx context.Context, session *models.Session) error {
	realJSON, impJSON, err := marshalPrincipals(session)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE vd_sessions SET real_principal = $1, impersonated = $2, id_token = $3, expires_at = $4, last_seen_at = $5
		WHERE token = $6`,
		realJSON, impJSON, session.IDToken, session.ExpiresAt, session.LastSeenAt, session.Token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "session", Key: session.Token}
	}
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, token string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM vd_sessions WHERE token = $1`, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "session", Key: token}
	}
	return nil
}

func (s *PostgresStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM vd_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func marshalPrincipals(session *models.Session) ([]byte, []byte, error) {
	realJSON, err := json.Marshal(session.Real)
	if err != nil {
		return nil, nil, fmt.Errorf("encode session principal: %w", err)
	}
	var impJSON []byte
	if session.Impersonated != nil {
		impJSON, err = json.Marshal(session.Impersonated)
		if err != nil {
			return nil, nil, fmt.Errorf("encode impersonated principal: %w", err)
		}
	}
	return realJSON, impJSON, nil
}

// ── Secret Store ────────────────────────────────────────────

func (s *PostgresStore) CreateSecretRecord(ctx context.Context, rec *models.SecretRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vd_secrets (secret_id, user_id, agent_id, name, created_at, release_requested_at, released_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (secret_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			agent_id = EXCLUDED.agent_id,
			name = EXCLUDED.name`,
		rec.SecretID, rec.UserID, rec.AgentID, rec.Name, rec.CreatedAt, rec.ReleaseRequestedAt, rec.ReleasedAt)
	return err
}

func (s *PostgresStore) GetSecretRecord(ctx context.Context, secretID string) (*models.SecretRecord, error) {
	var rec models.SecretRecord
	err := s.pool.QueryRow(ctx, `
		SELECT secret_id, user_id, agent_id, name, created_at, release_requested_at, released_at
		FROM vd_secrets WHERE secret_id = $1`, secretID,
	).Scan(&rec.SecretID, &rec.UserID, &rec.AgentID, &rec.Name, &rec.CreatedAt, &rec.ReleaseRequestedAt, &rec.ReleasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "secret record", Key: secretID}
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) MarkSecretReleaseRequested(ctx context.Context, secretID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vd_secrets SET release_requested_at = $1 WHERE secret_id = $2`, at, secretID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "secret record", Key: secretID}
	}
	return nil
}

func (s *PostgresStore) MarkSecretReleased(ctx context.Context, secretID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vd_secrets SET released_at = $1 WHERE secret_id = $2`, at, secretID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "secret record", Key: secretID}
	}
	return nil
}

func (s *PostgresStore) ListPendingSecretReleases(ctx context.Context, cutoff time.Time) ([]models.SecretRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT secret_id, user_id, agent_id, name, created_at, release_requested_at, released_at
		FROM vd_secrets
		WHERE released_at IS NULL AND release_requested_at IS NOT NULL AND release_requested_at < $1`,
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

func (s *PostgresStore) DeleteSecretRecord(ctx context.Context, secretID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM vd_secrets WHERE secret_id = $1`, secretID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "secret record", Key: secretID}
	}
	return nil
}
