package janitor_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/voxdesk/voxdesk/console-plane/internal/janitor"
	"github.com/voxdesk/voxdesk/console-plane/internal/store"
	"github.com/voxdesk/voxdesk/console-plane/internal/upstream"
	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

// fakeSecretDeleter scripts just the upstream call the janitor makes.
type fakeSecretDeleter struct {
	upstream.Client

	mu      sync.Mutex
	deletes []string
	errs    map[string]error
}

func (f *fakeSecretDeleter) DeleteSecret(ctx context.Context, token, secretID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, secretID)
	return f.errs[secretID]
}

func seedPendingSecret(t *testing.T, s store.Store, secretID string, requestedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	err := s.CreateSecretRecord(ctx, &models.SecretRecord{
		SecretID: secretID, UserID: "u1", Name: "key", CreatedAt: requestedAt,
	})
	if err != nil {
		t.Fatalf("CreateSecretRecord(%s) error = %v", secretID, err)
	}
	if err := s.MarkSecretReleaseRequested(ctx, secretID, requestedAt); err != nil {
		t.Fatalf("MarkSecretReleaseRequested(%s) error = %v", secretID, err)
	}
}

func TestRunCycle_PurgesExpiredSessions(t *testing.T) {
	s := store.NewMemoryStore("")
	defer s.Close()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, sess := range []*models.Session{
		{Token: "fresh", ExpiresAt: now.Add(time.Hour)},
		{Token: "stale-1", ExpiresAt: now.Add(-time.Hour)},
		{Token: "stale-2", ExpiresAt: now.Add(-time.Minute)},
	} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession(%s) error = %v", sess.Token, err)
		}
	}

	j := janitor.New(s, &fakeSecretDeleter{}, nil, "svc-token", "@every 10m")
	stats := j.RunCycle(ctx)

	if stats.SessionsPurged != 2 {
		t.Errorf("SessionsPurged = %d, want 2", stats.SessionsPurged)
	}
	if len(stats.Errors) != 0 {
		t.Errorf("Errors = %v", stats.Errors)
	}
	if _, err := s.GetSession(ctx, "fresh"); err != nil {
		t.Error("unexpired session must survive the cycle")
	}
}

func TestRunCycle_RetriesSecretReleases(t *testing.T) {
	s := store.NewMemoryStore("")
	defer s.Close()
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)

	seedPendingSecret(t, s, "sec-ok", past)
	seedPendingSecret(t, s, "sec-gone", past)
	seedPendingSecret(t, s, "sec-busy", past)

	up := &fakeSecretDeleter{errs: map[string]error{
		"sec-gone": &upstream.APIError{Status: http.StatusNotFound},
		"sec-busy": &upstream.APIError{Status: http.StatusServiceUnavailable},
	}}
	j := janitor.New(s, up, nil, "svc-token", "@every 10m")
	stats := j.RunCycle(ctx)

	// A 404 upstream counts as released; only the hard failure stays pending.
	if stats.SecretsReleased != 2 {
		t.Errorf("SecretsReleased = %d, want 2", stats.SecretsReleased)
	}
	if stats.SecretsPending != 1 {
		t.Errorf("SecretsPending = %d, want 1", stats.SecretsPending)
	}

	for _, id := range []string{"sec-ok", "sec-gone"} {
		rec, err := s.GetSecretRecord(ctx, id)
		if err != nil {
			t.Fatalf("GetSecretRecord(%s) error = %v", id, err)
		}
		if rec.ReleasedAt == nil {
			t.Errorf("%s not marked released", id)
		}
	}
	busy, _ := s.GetSecretRecord(ctx, "sec-busy")
	if busy.ReleasedAt != nil {
		t.Error("sec-busy must stay pending for the next cycle")
	}

	// The next cycle picks the failure back up.
	up.mu.Lock()
	delete(up.errs, "sec-busy")
	up.mu.Unlock()
	stats = j.RunCycle(ctx)
	if stats.SecretsReleased != 1 || stats.SecretsPending != 0 {
		t.Errorf("second cycle = %+v, want the leftover released", stats)
	}
}

func TestRunCycle_SkipsUnrequestedSecrets(t *testing.T) {
	s := store.NewMemoryStore("")
	defer s.Close()
	ctx := context.Background()

	err := s.CreateSecretRecord(ctx, &models.SecretRecord{
		SecretID: "sec-live", UserID: "u1", Name: "key", CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateSecretRecord() error = %v", err)
	}

	up := &fakeSecretDeleter{}
	j := janitor.New(s, up, nil, "svc-token", "@every 10m")
	j.RunCycle(ctx)

	up.mu.Lock()
	defer up.mu.Unlock()
	if len(up.deletes) != 0 {
		t.Errorf("deletes = %v, live secrets must not be touched", up.deletes)
	}
}
