// Package identity owns the authenticated principal: sign-in/sign-up against
// the identity provider, the per-user role record, console sessions, and the
// admin impersonation mechanism.
//
// Impersonation is identity indirection, not a session swap. The effective
// principal (impersonated if present, real otherwise) is derived on every
// read and scopes which user's data is displayed and edited; authorization
// checks always run against the real principal, so privilege can never
// escalate through impersonation chaining.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/voxdesk/voxdesk/console-plane/internal/config"
	"github.com/voxdesk/voxdesk/console-plane/internal/idp"
	"github.com/voxdesk/voxdesk/console-plane/internal/store"
	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

// User-facing errors. Raw provider/transport errors never reach the client
// for auth flows; they are translated to one of these fixed messages.
var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrAccountDisabled    = errors.New("this account has been disabled")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSignInFailed       = errors.New("failed to sign in")
	ErrEmailInUse         = errors.New("an account with this email already exists")
	ErrWeakPassword       = errors.New("password is too weak")
	ErrSignUpDisabled     = errors.New("email sign-up is currently disabled")
	ErrSignUpFailed       = errors.New("failed to create account")
	ErrLogoutFailed       = errors.New("failed to log out")
	ErrTooManyAttempts    = errors.New("too many sign-in attempts, try again later")

	ErrNotAdmin             = errors.New("only admins can impersonate users")
	ErrImpersonateNotFound  = errors.New("user to impersonate was not found")
	ErrSessionNotFound      = errors.New("session not found or expired")
)

// Service implements the identity and session operations.
type Service struct {
	store   store.Store
	idp     idp.Client
	ttl     time.Duration
	limiter *signInLimiter
	now     func() time.Time
}

// NewService creates the identity service.
func NewService(s store.Store, provider idp.Client, cfg config.SessionConfig) *Service {
	return &Service{
		store:   s,
		idp:     provider,
		ttl:     cfg.TTL,
		limiter: newSignInLimiter(cfg.SignInPerMin, cfg.SignInBurst),
		now:     time.Now,
	}
}

// SignIn authenticates against the identity provider and opens a console
// session carrying the real principal and the provider bearer token.
func (s *Service) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !s.limiter.Allow(email) {
		return nil, ErrTooManyAttempts
	}

	res, err := s.idp.SignIn(ctx, email, password)
	if err != nil {
		log.Debug().Str("email", email).Str("code", idp.ErrorCode(err)).Msg("sign-in rejected")
		return nil, translateSignIn(err)
	}

	role, err := s.roleOrDefault(ctx, res.UserID, res.Email)
	if err != nil {
		log.Error().Err(err).Str("user", res.UserID).Msg("role record lookup failed")
		return nil, ErrSignInFailed
	}

	sess := s.newSession(res, role)
	if err := s.store.CreateSession(ctx, sess); err != nil {
		log.Error().Err(err).Msg("create session failed")
		return nil, ErrSignInFailed
	}
	log.Info().Str("user", res.UserID).Str("role", string(role.Role)).Msg("signed in")
	return sess, nil
}

// SignUp creates a provider account, writes the default role record
// (role "user") keyed by the new principal's id, and opens a session.
func (s *Service) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	res, err := s.idp.SignUp(ctx, email, password)
	if err != nil {
		return nil, translateSignUp(err)
	}

	now := s.now().UTC()
	role := &models.RoleRecord{
		UserID:    res.UserID,
		Email:     res.Email,
		Role:      models.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.UpsertRole(ctx, role); err != nil {
		log.Error().Err(err).Str("user", res.UserID).Msg("write default role record failed")
		return nil, ErrSignUpFailed
	}

	sess := s.newSession(res, role)
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, ErrSignUpFailed
	}
	log.Info().Str("user", res.UserID).Msg("account created")
	return sess, nil
}

// Logout destroys the provider session and the console session. Destroying
// the session also drops any active impersonation, so stale impersonation
// state cannot outlive a sign-out.
func (s *Service) Logout(ctx context.Context, sess *models.Session) error {
	if err := s.idp.SignOut(ctx, sess.IDToken); err != nil {
		log.Warn().Err(err).Str("user", sess.Real.ID).Msg("provider sign-out failed")
		return ErrLogoutFailed
	}
	if err := s.store.DeleteSession(ctx, sess.Token); err != nil && !store.IsNotFound(err) {
		return ErrLogoutFailed
	}
	return nil
}

// ResetSignInLimiter drops the accumulated per-email sign-in limiters.
// Called periodically by the janitor so the limiter map stays bounded.
func (s *Service) ResetSignInLimiter() {
	s.limiter.Reset()
}

// SendPasswordReset asks the provider to email a reset link.
func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	if err := s.idp.SendPasswordResetEmail(ctx, strings.ToLower(strings.TrimSpace(email))); err != nil {
		if idp.ErrorCode(err) == idp.CodeInvalidEmail {
			return ErrInvalidEmail
		}
		// Do not leak whether the account exists.
		log.Debug().Err(err).Msg("password reset request failed")
	}
	return nil
}

// Resolve loads and validates the session for a bearer token.
func (s *Service) Resolve(ctx context.Context, token string) (*models.Session, error) {
	sess, err := s.store.GetSession(ctx, token)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	if sess.Expired(s.now()) {
		_ = s.store.DeleteSession(ctx, token)
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Touch records session activity. Best-effort.
func (s *Service) Touch(ctx context.Context, sess *models.Session) {
	sess.LastSeenAt = s.now().UTC()
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		log.Debug().Err(err).Msg("session touch failed")
	}
}

// IsAdmin is the authorization predicate. It is always answered from the
// real principal's role record, never the impersonated one.
func (s *Service) IsAdmin(ctx context.Context, sess *models.Session) bool {
	role, err := s.store.GetRole(ctx, sess.Real.ID)
	if err != nil {
		// Fall back to the role captured at sign-in.
		return sess.Real.IsAdmin()
	}
	return role.Role == models.RoleAdmin
}

// ImpersonateUser makes targetID the effective identity for this session.
// Admin-only. The constructed principal is not an authenticated session:
// upstream calls keep using the real admin's bearer token, only the subject
// user id changes.
func (s *Service) ImpersonateUser(ctx context.Context, sess *models.Session, targetID string) error {
	if !s.IsAdmin(ctx, sess) {
		return ErrNotAdmin
	}
	rec, err := s.store.GetRole(ctx, targetID)
	if err != nil {
		if store.IsNotFound(err) {
			return ErrImpersonateNotFound
		}
		return err
	}
	sess.Impersonated = &models.Principal{
		ID:        rec.UserID,
		Email:     rec.Email,
		Role:      rec.Role,
		CreatedAt: rec.CreatedAt,
	}
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		sess.Impersonated = nil
		return err
	}
	log.Info().Str("admin", sess.Real.ID).Str("target", targetID).Msg("impersonation started")
	return nil
}

// StopImpersonation reverts the effective identity to the real principal.
// A no-op when nothing is being impersonated.
func (s *Service) StopImpersonation(ctx context.Context, sess *models.Session) error {
	if sess.Impersonated == nil {
		return nil
	}
	target := sess.Impersonated.ID
	sess.Impersonated = nil
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return err
	}
	log.Info().Str("admin", sess.Real.ID).Str("target", target).Msg("impersonation stopped")
	return nil
}

// ListUsers returns all role records. Admin-only, used by the user admin UI.
func (s *Service) ListUsers(ctx context.Context, sess *models.Session) ([]models.RoleRecord, error) {
	if !s.IsAdmin(ctx, sess) {
		return nil, ErrNotAdmin
	}
	return s.store.ListRoles(ctx)
}

// ── Internals ───────────────────────────────────────────────

func (s *Service) newSession(res *idp.AuthResult, role *models.RoleRecord) *models.Session {
	now := s.now().UTC()
	return &models.Session{
		Token: uuid.New().String(),
		Real: models.Principal{
			ID:        res.UserID,
			Email:     res.Email,
			Role:      role.Role,
			CreatedAt: role.CreatedAt,
		},
		IDToken:    res.IDToken,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
		LastSeenAt: now,
	}
}

// roleOrDefault fetches the role record, creating a default "user" record
// when one is missing (accounts created before the role store existed).
func (s *Service) roleOrDefault(ctx context.Context, userID, email string) (*models.RoleRecord, error) {
	rec, err := s.store.GetRole(ctx, userID)
	if err == nil {
		return rec, nil
	}
	if !store.IsNotFound(err) {
		return nil, err
	}
	now := s.now().UTC()
	rec = &models.RoleRecord{
		UserID:    userID,
		Email:     email,
		Role:      models.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.UpsertRole(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func translateSignIn(err error) error {
	switch idp.ErrorCode(err) {
	case idp.CodeInvalidEmail:
		return ErrInvalidEmail
	case idp.CodeUserDisabled:
		return ErrAccountDisabled
	case idp.CodeUserNotFound, idp.CodeWrongPassword:
		return ErrInvalidCredentials
	}
	return ErrSignInFailed
}

func translateSignUp(err error) error {
	switch idp.ErrorCode(err) {
	case idp.CodeEmailAlreadyInUse:
		return ErrEmailInUse
	case idp.CodeWeakPassword:
		return ErrWeakPassword
	case idp.CodeOperationNotAllowed:
		return ErrSignUpDisabled
	case idp.CodeInvalidEmail:
		return ErrInvalidEmail
	}
	return ErrSignUpFailed
}
