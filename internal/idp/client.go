// Package idp is the HTTP client for the managed identity provider the
// console authenticates against. The console plane never stores passwords;
// it exchanges them for provider tokens and keeps only the resulting session.
//
// The provider reports failures as coded errors (auth/invalid-email,
// auth/wrong-password, ...). This package surfaces those codes unchanged;
// translating them to user-facing messages is the identity module's job.
package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Provider error codes consumed by the identity module.
const (
	CodeInvalidEmail        = "auth/invalid-email"
	CodeUserDisabled        = "auth/user-disabled"
	CodeUserNotFound        = "auth/user-not-found"
	CodeWrongPassword       = "auth/wrong-password"
	CodeEmailAlreadyInUse   = "auth/email-already-in-use"
	CodeOperationNotAllowed = "auth/operation-not-allowed"
	CodeWeakPassword        = "auth/weak-password"
)

// ProviderError is a coded failure returned by the identity provider.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// ErrorCode extracts the provider error code from err, or "" if err is not a
// ProviderError.
func ErrorCode(err error) string {
	if pe, ok := err.(*ProviderError); ok {
		return pe.Code
	}
	return ""
}

// AuthResult is a successful sign-in or sign-up.
type AuthResult struct {
	UserID  string
	Email   string
	IDToken string
}

// Client calls the identity provider. Swappable for a fake in tests.
type Client interface {
	SignIn(ctx context.Context, email, password string) (*AuthResult, error)
	SignUp(ctx context.Context, email, password string) (*AuthResult, error)
	SignOut(ctx context.Context, idToken string) error
	SendPasswordResetEmail(ctx context.Context, email string) error
}

// HTTPClient implements Client against the provider's REST accounts API.
type HTTPClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPClient creates a provider client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// accountsResponse is the provider's account-endpoint response shape.
type accountsResponse struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
	IDToken string `json:"idToken"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *HTTPClient) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	return c.accountsCall(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
}

func (c *HTTPClient) SignUp(ctx context.Context, email, password string) (*AuthResult, error) {
	return c.accountsCall(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
}

func (c *HTTPClient) SignOut(ctx context.Context, idToken string) error {
	_, err := c.accountsCall(ctx, "accounts:signOut", map[string]any{
		"idToken": idToken,
	})
	return err
}

func (c *HTTPClient) SendPasswordResetEmail(ctx context.Context, email string) error {
	_, err := c.accountsCall(ctx, "accounts:sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	})
	return err
}

func (c *HTTPClient) accountsCall(ctx context.Context, endpoint string, body map[string]any) (*AuthResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/%s?key=%s", c.baseURL, endpoint, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	var out accountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}

	if resp.StatusCode >= 400 || out.Error != nil {
		msg := ""
		if out.Error != nil {
			msg = out.Error.Message
		}
		return nil, &ProviderError{Code: codeFromProviderMessage(msg), Message: msg}
	}

	return &AuthResult{UserID: out.LocalID, Email: out.Email, IDToken: out.IDToken}, nil
}

// codeFromProviderMessage maps the provider's uppercase wire messages to the
// stable auth/* codes the rest of the system keys on.
func codeFromProviderMessage(msg string) string {
	// Some messages carry suffixes like "WEAK_PASSWORD : Password should be
	// at least 6 characters"; match on the leading token.
	head := msg
	if i := strings.IndexAny(msg, " :"); i > 0 {
		head = msg[:i]
	}
	switch head {
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return CodeInvalidEmail
	case "USER_DISABLED":
		return CodeUserDisabled
	case "EMAIL_NOT_FOUND":
		return CodeUserNotFound
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "MISSING_PASSWORD":
		return CodeWrongPassword
	case "EMAIL_EXISTS":
		return CodeEmailAlreadyInUse
	case "OPERATION_NOT_ALLOWED":
		return CodeOperationNotAllowed
	case "WEAK_PASSWORD":
		return CodeWeakPassword
	}
	return "auth/unknown"
}
