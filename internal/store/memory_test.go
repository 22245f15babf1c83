package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/voxdesk/voxdesk/console-plane/internal/store"
	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

func newTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRoleCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	rec := &models.RoleRecord{UserID: "u1", Email: "u1@example.com", Role: models.RoleUser, CreatedAt: now, UpdatedAt: now}
	if err := s.UpsertRole(ctx, rec); err != nil {
		t.Fatalf("UpsertRole() error = %v", err)
	}

	got, err := s.GetRole(ctx, "u1")
	if err != nil {
		t.Fatalf("GetRole() error = %v", err)
	}
	if got.Email != "u1@example.com" || got.Role != models.RoleUser {
		t.Errorf("GetRole() = %+v", got)
	}

	// Upsert overwrites.
	rec.Role = models.RoleAdmin
	if err := s.UpsertRole(ctx, rec); err != nil {
		t.Fatalf("UpsertRole(update) error = %v", err)
	}
	got, _ = s.GetRole(ctx, "u1")
	if got.Role != models.RoleAdmin {
		t.Errorf("Role = %q after upsert, want admin", got.Role)
	}

	all, err := s.ListRoles(ctx)
	if err != nil || len(all) != 1 {
		t.Errorf("ListRoles() = %v, %v, want one record", all, err)
	}

	if err := s.DeleteRole(ctx, "u1"); err != nil {
		t.Fatalf("DeleteRole() error = %v", err)
	}
	if _, err := s.GetRole(ctx, "u1"); !store.IsNotFound(err) {
		t.Errorf("GetRole() after delete error = %v, want not-found", err)
	}
}

func TestGetRole_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRole(context.Background(), "ghost")
	if !store.IsNotFound(err) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	sess := &models.Session{
		Token:     "tok-1",
		Real:      models.Principal{ID: "u1", Email: "u1@example.com", Role: models.RoleAdmin},
		IDToken:   "bearer-1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	got, err := s.GetSession(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.IDToken != "bearer-1" {
		t.Error("bearer credential lost in the store")
	}

	// Updates keep the stored copy isolated from the caller's struct.
	got.Impersonated = &models.Principal{ID: "u2"}
	if err := s.UpdateSession(ctx, got); err != nil {
		t.Fatalf("UpdateSession() error = %v", err)
	}
	got.Impersonated.ID = "mutated"

	reread, _ := s.GetSession(ctx, "tok-1")
	if reread.Impersonated == nil || reread.Impersonated.ID != "u2" {
		t.Errorf("Impersonated = %+v, want isolated copy with u2", reread.Impersonated)
	}

	if err := s.DeleteSession(ctx, "tok-1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := s.GetSession(ctx, "tok-1"); !store.IsNotFound(err) {
		t.Errorf("GetSession() after delete error = %v, want not-found", err)
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	fresh := &models.Session{Token: "fresh", ExpiresAt: now.Add(time.Hour)}
	stale := &models.Session{Token: "stale", ExpiresAt: now.Add(-time.Hour)}
	for _, sess := range []*models.Session{fresh, stale} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession(%s) error = %v", sess.Token, err)
		}
	}

	removed, err := s.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := s.GetSession(ctx, "fresh"); err != nil {
		t.Error("fresh session should survive the sweep")
	}
	if _, err := s.GetSession(ctx, "stale"); !store.IsNotFound(err) {
		t.Error("stale session should be gone")
	}
}

func TestSecretReleaseBookkeeping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := &models.SecretRecord{SecretID: "sec-1", UserID: "u1", Name: "llm key", CreatedAt: now}
	if err := s.CreateSecretRecord(ctx, rec); err != nil {
		t.Fatalf("CreateSecretRecord() error = %v", err)
	}

	// Not pending until a release was requested.
	pending, err := s.ListPendingSecretReleases(ctx, now.Add(time.Minute))
	if err != nil || len(pending) != 0 {
		t.Errorf("pending = %v, %v, want empty", pending, err)
	}

	if err := s.MarkSecretReleaseRequested(ctx, "sec-1", now.Add(-time.Minute)); err != nil {
		t.Fatalf("MarkSecretReleaseRequested() error = %v", err)
	}
	pending, _ = s.ListPendingSecretReleases(ctx, now)
	if len(pending) != 1 || pending[0].SecretID != "sec-1" {
		t.Fatalf("pending = %v, want [sec-1]", pending)
	}

	if err := s.MarkSecretReleased(ctx, "sec-1", now); err != nil {
		t.Fatalf("MarkSecretReleased() error = %v", err)
	}
	pending, _ = s.ListPendingSecretReleases(ctx, now.Add(time.Minute))
	if len(pending) != 0 {
		t.Errorf("released secret still pending: %v", pending)
	}

	got, _ := s.GetSecretRecord(ctx, "sec-1")
	if got.ReleasedAt == nil {
		t.Error("ReleasedAt not recorded")
	}
}

func TestSnapshotPersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	now := time.Now().UTC()

	s := store.NewMemoryStore(dir)
	err := s.UpsertRole(ctx, &models.RoleRecord{UserID: "u1", Email: "u1@example.com", Role: models.RoleAdmin, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("UpsertRole() error = %v", err)
	}
	err = s.CreateSession(ctx, &models.Session{
		Token:     "tok-1",
		Real:      models.Principal{ID: "u1", Role: models.RoleAdmin},
		IDToken:   "bearer-1",
		ExpiresAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	s.Close() // flushes the snapshot

	reopened := store.NewMemoryStore(dir)
	defer reopened.Close()

	role, err := reopened.GetRole(ctx, "u1")
	if err != nil {
		t.Fatalf("GetRole() after reopen error = %v", err)
	}
	if role.Role != models.RoleAdmin {
		t.Errorf("Role = %q after reopen", role.Role)
	}

	sess, err := reopened.GetSession(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetSession() after reopen error = %v", err)
	}
	if sess.IDToken != "bearer-1" {
		t.Error("bearer credential must survive the snapshot round trip")
	}
}
