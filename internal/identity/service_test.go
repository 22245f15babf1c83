package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxdesk/voxdesk/console-plane/internal/config"
	"github.com/voxdesk/voxdesk/console-plane/internal/identity"
	"github.com/voxdesk/voxdesk/console-plane/internal/idp"
	"github.com/voxdesk/voxdesk/console-plane/internal/store"
	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

// fakeIDP is a scriptable identity provider.
type fakeIDP struct {
	signInErr  error
	signUpErr  error
	signOutErr error
	signOuts   int
}

func (f *fakeIDP) SignIn(ctx context.Context, email, password string) (*idp.AuthResult, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return &idp.AuthResult{UserID: "uid-" + email, Email: email, IDToken: "idtok-" + email}, nil
}

func (f *fakeIDP) SignUp(ctx context.Context, email, password string) (*idp.AuthResult, error) {
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	return &idp.AuthResult{UserID: "uid-" + email, Email: email, IDToken: "idtok-" + email}, nil
}

func (f *fakeIDP) SignOut(ctx context.Context, idToken string) error {
	f.signOuts++
	return f.signOutErr
}

func (f *fakeIDP) SendPasswordResetEmail(ctx context.Context, email string) error {
	return nil
}

func newTestService(t *testing.T, provider idp.Client) (*identity.Service, store.Store) {
	t.Helper()
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	svc := identity.NewService(s, provider, config.SessionConfig{
		TTL:          time.Hour,
		SignInPerMin: 600,
		SignInBurst:  100,
	})
	return svc, s
}

func seedRole(t *testing.T, s store.Store, userID, email string, role models.Role) {
	t.Helper()
	now := time.Now().UTC()
	err := s.UpsertRole(context.Background(), &models.RoleRecord{
		UserID:    userID,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("UpsertRole() error = %v", err)
	}
}

func TestSignIn_OpensSession(t *testing.T) {
	svc, s := newTestService(t, &fakeIDP{})
	seedRole(t, s, "uid-ada@example.com", "ada@example.com", models.RoleAdmin)

	sess, err := svc.SignIn(context.Background(), " Ada@Example.com ", "hunter22")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if sess.Real.ID != "uid-ada@example.com" {
		t.Errorf("Real.ID = %q", sess.Real.ID)
	}
	if sess.Real.Role != models.RoleAdmin {
		t.Errorf("Real.Role = %q, want admin", sess.Real.Role)
	}
	if sess.IDToken == "" {
		t.Error("session should carry the provider bearer token")
	}

	got, err := svc.Resolve(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Real.ID != sess.Real.ID {
		t.Errorf("Resolve().Real.ID = %q, want %q", got.Real.ID, sess.Real.ID)
	}
}

func TestSignIn_DefaultsMissingRole(t *testing.T) {
	svc, s := newTestService(t, &fakeIDP{})

	sess, err := svc.SignIn(context.Background(), "new@example.com", "pw")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if sess.Real.Role != models.RoleUser {
		t.Errorf("Role = %q, want default user", sess.Real.Role)
	}

	rec, err := s.GetRole(context.Background(), sess.Real.ID)
	if err != nil {
		t.Fatalf("role record not created: %v", err)
	}
	if rec.Role != models.RoleUser {
		t.Errorf("stored role = %q, want user", rec.Role)
	}
}

func TestSignIn_ErrorTranslation(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{idp.CodeInvalidEmail, identity.ErrInvalidEmail},
		{idp.CodeUserDisabled, identity.ErrAccountDisabled},
		{idp.CodeUserNotFound, identity.ErrInvalidCredentials},
		{idp.CodeWrongPassword, identity.ErrInvalidCredentials},
		{"auth/unknown", identity.ErrSignInFailed},
	}
	for _, tt := range tests {
		svc, _ := newTestService(t, &fakeIDP{signInErr: &idp.ProviderError{Code: tt.code}})
		_, err := svc.SignIn(context.Background(), "a@example.com", "pw")
		if !errors.Is(err, tt.want) {
			t.Errorf("SignIn with %s: error = %v, want %v", tt.code, err, tt.want)
		}
	}
}

func TestSignUp_ErrorTranslation(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{idp.CodeEmailAlreadyInUse, identity.ErrEmailInUse},
		{idp.CodeWeakPassword, identity.ErrWeakPassword},
		{idp.CodeOperationNotAllowed, identity.ErrSignUpDisabled},
		{idp.CodeInvalidEmail, identity.ErrInvalidEmail},
	}
	for _, tt := range tests {
		svc, _ := newTestService(t, &fakeIDP{signUpErr: &idp.ProviderError{Code: tt.code}})
		_, err := svc.SignUp(context.Background(), "a@example.com", "pw")
		if !errors.Is(err, tt.want) {
			t.Errorf("SignUp with %s: error = %v, want %v", tt.code, err, tt.want)
		}
	}
}

func TestSignIn_RateLimited(t *testing.T) {
	s := store.NewMemoryStore("")
	defer s.Close()
	svc := identity.NewService(s, &fakeIDP{signInErr: &idp.ProviderError{Code: idp.CodeWrongPassword}}, config.SessionConfig{
		TTL:          time.Hour,
		SignInPerMin: 0.001, // effectively no refill during the test
		SignInBurst:  2,
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := svc.SignIn(ctx, "brute@example.com", "guess"); !errors.Is(err, identity.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: error = %v, want invalid credentials", i, err)
		}
	}
	if _, err := svc.SignIn(ctx, "brute@example.com", "guess"); !errors.Is(err, identity.ErrTooManyAttempts) {
		t.Fatalf("third attempt: error = %v, want ErrTooManyAttempts", err)
	}
	// Other emails are unaffected.
	if _, err := svc.SignIn(ctx, "calm@example.com", "guess"); errors.Is(err, identity.ErrTooManyAttempts) {
		t.Error("limiter leaked across emails")
	}
}

func TestImpersonation_Lifecycle(t *testing.T) {
	idpFake := &fakeIDP{}
	svc, s := newTestService(t, idpFake)
	seedRole(t, s, "uid-admin@example.com", "admin@example.com", models.RoleAdmin)
	seedRole(t, s, "user-x", "x@example.com", models.RoleUser)

	ctx := context.Background()
	sess, err := svc.SignIn(ctx, "admin@example.com", "pw")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	adminID := sess.Real.ID
	token := sess.IDToken

	if err := svc.ImpersonateUser(ctx, sess, "user-x"); err != nil {
		t.Fatalf("ImpersonateUser() error = %v", err)
	}
	if got := sess.Effective().ID; got != "user-x" {
		t.Errorf("Effective().ID = %q, want user-x", got)
	}
	if !svc.IsAdmin(ctx, sess) {
		t.Error("IsAdmin must keep answering from the real principal")
	}
	if sess.IDToken != token {
		t.Error("impersonation must not change the bearer credential")
	}

	// Survives a session reload.
	reloaded, err := svc.Resolve(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if reloaded.Effective().ID != "user-x" {
		t.Errorf("reloaded Effective().ID = %q, want user-x", reloaded.Effective().ID)
	}

	if err := svc.StopImpersonation(ctx, sess); err != nil {
		t.Fatalf("StopImpersonation() error = %v", err)
	}
	if got := sess.Effective().ID; got != adminID {
		t.Errorf("Effective().ID = %q, want %q after stop", got, adminID)
	}
	// Stopping twice is a no-op.
	if err := svc.StopImpersonation(ctx, sess); err != nil {
		t.Errorf("second StopImpersonation() error = %v", err)
	}
}

func TestImpersonation_NonAdminRejected(t *testing.T) {
	svc, s := newTestService(t, &fakeIDP{})
	seedRole(t, s, "uid-plain@example.com", "plain@example.com", models.RoleUser)
	seedRole(t, s, "user-x", "x@example.com", models.RoleUser)

	ctx := context.Background()
	sess, err := svc.SignIn(ctx, "plain@example.com", "pw")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	if err := svc.ImpersonateUser(ctx, sess, "user-x"); !errors.Is(err, identity.ErrNotAdmin) {
		t.Errorf("error = %v, want ErrNotAdmin", err)
	}
	if sess.Impersonated != nil {
		t.Error("impersonation set despite rejection")
	}
}

func TestImpersonation_UnknownTarget(t *testing.T) {
	svc, s := newTestService(t, &fakeIDP{})
	seedRole(t, s, "uid-admin@example.com", "admin@example.com", models.RoleAdmin)

	ctx := context.Background()
	sess, _ := svc.SignIn(ctx, "admin@example.com", "pw")

	if err := svc.ImpersonateUser(ctx, sess, "ghost"); !errors.Is(err, identity.ErrImpersonateNotFound) {
		t.Errorf("error = %v, want ErrImpersonateNotFound", err)
	}
}

func TestLogout_ClearsSessionAndImpersonation(t *testing.T) {
	idpFake := &fakeIDP{}
	svc, s := newTestService(t, idpFake)
	seedRole(t, s, "uid-admin@example.com", "admin@example.com", models.RoleAdmin)
	seedRole(t, s, "user-x", "x@example.com", models.RoleUser)

	ctx := context.Background()
	sess, _ := svc.SignIn(ctx, "admin@example.com", "pw")
	if err := svc.ImpersonateUser(ctx, sess, "user-x"); err != nil {
		t.Fatalf("ImpersonateUser() error = %v", err)
	}

	if err := svc.Logout(ctx, sess); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if idpFake.signOuts != 1 {
		t.Errorf("provider sign-outs = %d, want 1", idpFake.signOuts)
	}
	if _, err := svc.Resolve(ctx, sess.Token); !errors.Is(err, identity.ErrSessionNotFound) {
		t.Errorf("Resolve() after logout error = %v, want ErrSessionNotFound", err)
	}
}

func TestResolve_ExpiredSession(t *testing.T) {
	s := store.NewMemoryStore("")
	defer s.Close()
	svc := identity.NewService(s, &fakeIDP{}, config.SessionConfig{
		TTL:          -time.Minute, // sessions are born expired
		SignInPerMin: 600,
		SignInBurst:  100,
	})

	ctx := context.Background()
	sess, err := svc.SignIn(ctx, "a@example.com", "pw")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if _, err := svc.Resolve(ctx, sess.Token); !errors.Is(err, identity.ErrSessionNotFound) {
		t.Errorf("Resolve() error = %v, want ErrSessionNotFound", err)
	}
}

func TestListUsers_AdminOnly(t *testing.T) {
	svc, s := newTestService(t, &fakeIDP{})
	seedRole(t, s, "uid-admin@example.com", "admin@example.com", models.RoleAdmin)
	seedRole(t, s, "uid-plain@example.com", "plain@example.com", models.RoleUser)

	ctx := context.Background()
	admin, _ := svc.SignIn(ctx, "admin@example.com", "pw")
	plain, _ := svc.SignIn(ctx, "plain@example.com", "pw")

	users, err := svc.ListUsers(ctx, admin)
	if err != nil {
		t.Fatalf("ListUsers(admin) error = %v", err)
	}
	if len(users) != 2 {
		t.Errorf("ListUsers() returned %d records, want 2", len(users))
	}

	if _, err := svc.ListUsers(ctx, plain); !errors.Is(err, identity.ErrNotAdmin) {
		t.Errorf("ListUsers(plain) error = %v, want ErrNotAdmin", err)
	}
}
