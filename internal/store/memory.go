// In-memory Store implementation.
// Used for local dev and tests. Supports file-based snapshot persistence so
// role records and sessions survive restarts.

package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Roles    map[string]*models.RoleRecord   `json:"roles"`    // key: user_id
	Sessions map[string]*persistedSession    `json:"sessions"` // key: token
	Secrets  map[string]*models.SecretRecord `json:"secrets"`  // key: secret_id
}

// persistedSession carries the upstream bearer credential, which Session
// itself excludes from JSON so it never leaks through API responses.
type persistedSession struct {
	models.Session
	IDTokenValue string `json:"id_token"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu       sync.RWMutex
	roles    map[string]*models.RoleRecord
	sessions map[string]*models.Session
	secrets  map[string]*models.SecretRecord

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutine to stop
	closeOnce    sync.Once
}

// NewMemoryStore creates a new in-memory store. If dataDir is non-empty,
// data is persisted to a JSON snapshot in that directory.
func NewMemoryStore(dataDir string) *MemoryStore {
	m := &MemoryStore{
		roles:    make(map[string]*models.RoleRecord),
		sessions: make(map[string]*models.Session),
		secrets:  make(map[string]*models.SecretRecord),
		saveCh:   make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
	}

	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("cannot create data dir, persistence disabled")
		} else {
			m.snapshotPath = filepath.Join(dataDir, "console.json")
			m.load()
			go m.saveLoop()
		}
	}
	return m
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.doneCh)
		if m.snapshotPath != "" {
			m.save()
		}
	})
	return nil
}

// ── Persistence ─────────────────────────────────────────────

func (m *MemoryStore) load() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", m.snapshotPath).Msg("cannot read snapshot")
		}
		return
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("corrupt snapshot, starting empty")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Roles != nil {
		m.roles = snap.Roles
	}
	for token, ps := range snap.Sessions {
		sess := ps.Session
		sess.IDToken = ps.IDTokenValue
		m.sessions[token] = &sess
	}
	if snap.Secrets != nil {
		m.secrets = snap.Secrets
	}
	log.Info().Int("roles", len(m.roles)).Int("sessions", len(m.sessions)).Msg("snapshot loaded")
}

// markDirty schedules a debounced snapshot write.
func (m *MemoryStore) markDirty() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
	}
}

func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			// Debounce a burst of writes into one snapshot.
			time.Sleep(250 * time.Millisecond)
			m.save()
		}
	}
}

func (m *MemoryStore) save() {
	m.mu.RLock()
	snap := snapshot{
		Roles:    make(map[string]*models.RoleRecord, len(m.roles)),
		Sessions: make(map[string]*persistedSession, len(m.sessions)),
		Secrets:  make(map[string]*models.SecretRecord, len(m.secrets)),
	}
	for k, v := range m.roles {
		snap.Roles[k] = v
	}
	for k, v := range m.sessions {
		snap.Sessions[k] = &persistedSession{Session: *v, IDTokenValue: v.IDToken}
	}
	for k, v := range m.secrets {
		snap.Secrets[k] = v
	}
	m.mu.RUnlock()

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("cannot marshal snapshot")
		return
	}
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		log.Warn().Err(err).Msg("cannot write snapshot")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Warn().Err(err).Msg("cannot move snapshot into place")
	}
}

// ── Role Store ──────────────────────────────────────────────

func (m *MemoryStore) GetRole(ctx context.Context, userID string) (*models.RoleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.roles[userID]
	if !ok {
		return nil, &ErrNotFound{Entity: "role record", Key: userID}
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) UpsertRole(ctx context.Context, rec *models.RoleRecord) error {
	m.mu.Lock()
	cp := *rec
	m.roles[rec.UserID] = &cp
	m.mu.Unlock()
	m.markDirty()
	return nil
}

func (m *MemoryStore) ListRoles(ctx context.Context) ([]models.RoleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RoleRecord, 0, len(m.roles))
	for _, rec := range m.roles {
		out = append(out, *rec)
	}
	return out, nil
}

func (m *MemoryStore) DeleteRole(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer func() { m.mu.Unlock(); m.markDirty() }()
	if _, ok := m.roles[userID]; !ok {
		return &ErrNotFound{Entity: "role record", Key: userID}
	}
	delete(m.roles, userID)
	return nil
}

// ── Session Store ───────────────────────────────────────────

func (m *MemoryStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[token]
	if !ok {
		return nil, &ErrNotFound{Entity: "session", Key: token}
	}
	cp := *sess
	if sess.Impersonated != nil {
		imp := *sess.Impersonated
		cp.Impersonated = &imp
	}
	return &cp, nil
}

func (m *MemoryStore) CreateSession(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	cp := *session
	m.sessions[session.Token] = &cp
	m.mu.Unlock()
	m.markDirty()
	return nil
}

func (m *MemoryStore) UpdateSession(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer func() { m.mu.Unlock(); m.markDirty() }()
	if _, ok := m.sessions[session.Token]; !ok {
		return &ErrNotFound{Entity: "session", Key: session.Token}
	}
	cp := *session
	m.sessions[session.Token] = &cp
	return nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, token string) error {
	m.mu.Lock()
	defer func() { m.mu.Unlock(); m.markDirty() }()
	if _, ok := m.sessions[token]; !ok {
		return &ErrNotFound{Entity: "session", Key: token}
	}
	delete(m.sessions, token)
	return nil
}

func (m *MemoryStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	removed := 0
	for token, sess := range m.sessions {
		if sess.Expired(now) {
			delete(m.sessions, token)
			removed++
		}
	}
	m.mu.Unlock()
	if removed > 0 {
		m.markDirty()
	}
	return removed, nil
}

// ── Secret Store ────────────────────────────────────────────

func (m *MemoryStore) CreateSecretRecord(ctx context.Context, rec *models.SecretRecord) error {
	m.mu.Lock()
	cp := *rec
	m.secrets[rec.SecretID] = &cp
	m.mu.Unlock()
	m.markDirty()
	return nil
}

func (m *MemoryStore) GetSecretRecord(ctx context.Context, secretID string) (*models.SecretRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.secrets[secretID]
	if !ok {
		return nil, &ErrNotFound{Entity: "secret record", Key: secretID}
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) MarkSecretReleaseRequested(ctx context.Context, secretID string, at time.Time) error {
	m.mu.Lock()
	defer func() { m.mu.Unlock(); m.markDirty() }()
	rec, ok := m.secrets[secretID]
	if !ok {
		return &ErrNotFound{Entity: "secret record", Key: secretID}
	}
	t := at
	rec.ReleaseRequestedAt = &t
	return nil
}

func (m *MemoryStore) MarkSecretReleased(ctx context.Context, secretID string, at time.Time) error {
	m.mu.Lock()
	defer func() { m.mu.Unlock(); m.markDirty() }()
	rec, ok := m.secrets[secretID]
	if !ok {
		return &ErrNotFound{Entity: "secret record", Key: secretID}
	}
	t := at
	rec.ReleasedAt = &t
	return nil
}

func (m *MemoryStore) ListPendingSecretReleases(ctx context.Context, cutoff time.Time) ([]models.SecretRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.SecretRecord
	for _, rec := range m.secrets {
		if rec.ReleasedAt != nil || rec.ReleaseRequestedAt == nil {
			continue
		}
		if rec.ReleaseRequestedAt.Before(cutoff) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteSecretRecord(ctx context.Context, secretID string) error {
	m.mu.Lock()
	defer func() { m.mu.Unlock(); m.markDirty() }()
	if _, ok := m.secrets[secretID]; !ok {
		return &ErrNotFound{Entity: "secret record", Key: secretID}
	}
	delete(m.secrets, secretID)
	return nil
}
