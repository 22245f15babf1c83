// Package upstream is the HTTP client for the voice platform API: the
// external service that actually owns agents, voices, knowledge-base
// documents, and secrets. The console plane consumes its contract; it never
// reimplements the platform's business logic.
//
// Every call is authorized as the real signed-in principal: the bearer token
// is passed per request and impersonation only ever changes the {userId}
// path segment.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

// APIError is a non-2xx platform response. Message carries the decoded
// backend error text when the backend supplied one.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upstream %d", e.Status)
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	ae, ok := err.(*APIError)
	return ok && ae.Status == http.StatusNotFound
}

// Client is the platform API surface the console consumes. Swappable for a
// fake in tests.
type Client interface {
	// BaseURL is the platform root, used when generating webhook tool
	// endpoints that point back at the platform.
	BaseURL() string

	ListAgents(ctx context.Context, token, userID string) ([]models.AgentSummary, error)
	CreateAgent(ctx context.Context, token, userID string, req *models.CreateAgentRequest) (*models.AgentRecord, error)
	GetAgent(ctx context.Context, token, userID, agentID string) (*models.AgentRecord, error)
	PatchAgent(ctx context.Context, token, userID, agentID string, payload *models.AgentRecord) (*models.AgentRecord, error)
	DeleteAgent(ctx context.Context, token, userID, agentID string) error

	GetVoice(ctx context.Context, token, voiceID string) (*models.Voice, error)
	ListVoices(ctx context.Context, token string) ([]models.Voice, error)

	ListKnowledgeBase(ctx context.Context, token, userID string) ([]models.KnowledgeBaseDoc, error)

	CreateSecret(ctx context.Context, token, name, value string) (*models.SecretRef, error)
	UpdateSecret(ctx context.Context, token, secretID, name, value string) (*models.SecretRef, error)
	DeleteSecret(ctx context.Context, token, secretID string) error
}

// HTTPClient implements Client over HTTP+JSON.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a platform client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// BaseURL returns the configured platform base URL. Tool builders embed it in
// generated booking webhook URLs.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

// ── Agents ──────────────────────────────────────────────────

func (c *HTTPClient) ListAgents(ctx context.Context, token, userID string) ([]models.AgentSummary, error) {
	var out []models.AgentSummary
	err := c.do(ctx, token, http.MethodGet, "/agents/"+url.PathEscape(userID), nil, &out)
	return out, err
}

func (c *HTTPClient) CreateAgent(ctx context.Context, token, userID string, req *models.CreateAgentRequest) (*models.AgentRecord, error) {
	var out models.AgentRecord
	if err := c.do(ctx, token, http.MethodPost, "/agents/"+url.PathEscape(userID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetAgent(ctx context.Context, token, userID, agentID string) (*models.AgentRecord, error) {
	var out models.AgentRecord
	path := "/agents/" + url.PathEscape(userID) + "/" + url.PathEscape(agentID)
	if err := c.do(ctx, token, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) PatchAgent(ctx context.Context, token, userID, agentID string, payload *models.AgentRecord) (*models.AgentRecord, error) {
	var out models.AgentRecord
	path := "/agents/" + url.PathEscape(userID) + "/" + url.PathEscape(agentID)
	if err := c.do(ctx, token, http.MethodPatch, path, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) DeleteAgent(ctx context.Context, token, userID, agentID string) error {
	path := "/agents/" + url.PathEscape(userID) + "/" + url.PathEscape(agentID)
	return c.do(ctx, token, http.MethodDelete, path, nil, nil)
}

// ── Voices ──────────────────────────────────────────────────

func (c *HTTPClient) GetVoice(ctx context.Context, token, voiceID string) (*models.Voice, error) {
	var out models.Voice
	if err := c.do(ctx, token, http.MethodGet, "/voices/get-voice/"+url.PathEscape(voiceID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListVoices(ctx context.Context, token string) ([]models.Voice, error) {
	// The list endpoint wraps its payload.
	var out struct {
		Voices []models.Voice `json:"voices"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/voices/list-voices", nil, &out); err != nil {
		return nil, err
	}
	return out.Voices, nil
}

// ── Knowledge base ──────────────────────────────────────────

func (c *HTTPClient) ListKnowledgeBase(ctx context.Context, token, userID string) ([]models.KnowledgeBaseDoc, error) {
	var out []models.KnowledgeBaseDoc
	err := c.do(ctx, token, http.MethodGet, "/knowledge-base/"+url.PathEscape(userID), nil, &out)
	return out, err
}

// ── Secrets ─────────────────────────────────────────────────

type secretRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (c *HTTPClient) CreateSecret(ctx context.Context, token, name, value string) (*models.SecretRef, error) {
	var out models.SecretRef
	if err := c.do(ctx, token, http.MethodPost, "/secrets/create", secretRequest{Name: name, Value: value}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) UpdateSecret(ctx context.Context, token, secretID, name, value string) (*models.SecretRef, error) {
	var out models.SecretRef
	if err := c.do(ctx, token, http.MethodPatch, "/secrets/"+url.PathEscape(secretID), secretRequest{Name: name, Value: value}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) DeleteSecret(ctx context.Context, token, secretID string) error {
	return c.do(ctx, token, http.MethodDelete, "/secrets/"+url.PathEscape(secretID), nil, nil)
}

// ── Plumbing ────────────────────────────────────────────────

func (c *HTTPClient) do(ctx context.Context, token, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("upstream unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode upstream response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && len(data) > 0 {
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
			Detail  string `json:"detail"`
		}
		if json.Unmarshal(data, &body) == nil {
			switch {
			case body.Message != "":
				apiErr.Message = body.Message
			case body.Error != "":
				apiErr.Message = body.Error
			case body.Detail != "":
				apiErr.Message = body.Detail
			}
		}
	}
	return apiErr
}
