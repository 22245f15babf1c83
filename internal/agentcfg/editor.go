// Package agentcfg implements the agent configuration editing model: loading
// an upstream record into a normalized draft, tracking edits against the
// last-saved canonical copy, and reconciling the draft back into a PATCH.
//
// The editor owns two copies of the configuration. The canonical copy is the
// last state confirmed by the platform; the draft is what the user is
// editing. Any edit marks the draft dirty; saving PATCHes the draft,
// refetches the canonical state rather than trusting the echoed payload, and
// only then clears the dirty flag. Cancel restores the draft from canonical.
package agentcfg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/voxdesk/voxdesk/console-plane/internal/store"
	"github.com/voxdesk/voxdesk/console-plane/internal/tools"
	"github.com/voxdesk/voxdesk/console-plane/internal/upstream"
	"github.com/voxdesk/voxdesk/console-plane/pkg/models"
)

var (
	// ErrSaveInFlight rejects overlapping saves for the same agent.
	ErrSaveInFlight = errors.New("a save is already in progress")

	// ErrStaleLoad marks a load whose result was superseded by a newer one
	// before it completed. Callers discard the result.
	ErrStaleLoad = errors.New("load superseded by a newer load")

	// ErrNotLoaded is returned by operations that need a loaded agent.
	ErrNotLoaded = errors.New("agent not loaded")
)

// Warnings name the secondary fetches that degraded during a load. The
// primary agent fetch failing is fatal; these are not.
const (
	WarnVoiceUnavailable         = "voice detail unavailable"
	WarnVoiceListUnavailable     = "voice list unavailable"
	WarnKnowledgeBaseUnavailable = "knowledge base unavailable"
)

// LoadResult is the aggregate state a fresh load produces.
type LoadResult struct {
	Agent         *models.AgentConfig       `json:"agent"`
	Voice         *models.Voice             `json:"voice,omitempty"`
	Voices        []models.Voice            `json:"voices"`
	KnowledgeBase []models.KnowledgeBaseDoc `json:"knowledge_base"`
	Warnings      []string                  `json:"warnings,omitempty"`
}

// Editor edits one agent's configuration on behalf of one effective user.
// The bearer token is always the real principal's credential.
type Editor struct {
	upstream upstream.Client
	secrets  store.SecretStore

	token   string
	userID  string
	agentID string

	// generation guards against stale loads overwriting newer state when the
	// user navigates quickly between agents.
	generation atomic.Uint64

	mu        sync.Mutex
	canonical *models.AgentConfig
	draft     *models.AgentConfig
	dirty     bool
	saving    bool
}

// NewEditor creates an editor bound to one (user, agent) pair.
func NewEditor(up upstream.Client, secrets store.SecretStore, token, userID, agentID string) *Editor {
	return &Editor{
		upstream: up,
		secrets:  secrets,
		token:    token,
		userID:   userID,
		agentID:  agentID,
	}
}

// Load fetches the agent record and its supporting collections.
//
// The primary agent fetch is awaited first; its failure is fatal to the
// load. The selected voice's detail (whose id comes from the agent record),
// the full voice list, and the knowledge-base list then run concurrently;
// each failing only degrades its own section, recorded as a warning.
//
// If another Load starts before this one finishes, the slower result is
// discarded and ErrStaleLoad returned.
func (e *Editor) Load(ctx context.Context) (*LoadResult, error) {
	gen := e.generation.Add(1)

	rec, err := e.upstream.GetAgent(ctx, e.token, e.userID, e.agentID)
	if err != nil {
		return nil, err
	}
	cfg := models.Normalize(rec)

	res := &LoadResult{Agent: cfg}
	var (
		warnMu  sync.Mutex
		g, gctx = errgroup.WithContext(ctx)
	)
	warn := func(w string) {
		warnMu.Lock()
		res.Warnings = append(res.Warnings, w)
		warnMu.Unlock()
	}

	if cfg.VoiceID != "" {
		g.Go(func() error {
			voice, err := e.upstream.GetVoice(gctx, e.token, cfg.VoiceID)
			if err != nil {
				log.Warn().Err(err).Str("voice", cfg.VoiceID).Msg("voice detail fetch failed")
				warn(WarnVoiceUnavailable)
				return nil
			}
			res.Voice = voice
			return nil
		})
	}
	g.Go(func() error {
		voices, err := e.upstream.ListVoices(gctx, e.token)
		if err != nil {
			log.Warn().Err(err).Msg("voice list fetch failed")
			warn(WarnVoiceListUnavailable)
			return nil
		}
		res.Voices = voices
		return nil
	})
	g.Go(func() error {
		docs, err := e.upstream.ListKnowledgeBase(gctx, e.token, e.userID)
		if err != nil {
			log.Warn().Err(err).Msg("knowledge base fetch failed")
			warn(WarnKnowledgeBaseUnavailable)
			return nil
		}
		res.KnowledgeBase = docs
		return nil
	})
	_ = g.Wait() // goroutines never return errors, they degrade

	if e.generation.Load() != gen {
		return nil, ErrStaleLoad
	}

	e.mu.Lock()
	e.canonical = cfg
	e.draft = cfg.Clone()
	e.dirty = false
	e.mu.Unlock()

	if res.Voices == nil {
		res.Voices = []models.Voice{}
	}
	if res.KnowledgeBase == nil {
		res.KnowledgeBase = []models.KnowledgeBaseDoc{}
	}
	return res, nil
}

// Refresh fetches only the agent record and adopts it as the canonical and
// draft state. Unlike Load it skips the supporting collections; save flows
// use it to establish a baseline before adopting an edited draft.
func (e *Editor) Refresh(ctx context.Context) (*models.AgentConfig, error) {
	rec, err := e.upstream.GetAgent(ctx, e.token, e.userID, e.agentID)
	if err != nil {
		return nil, err
	}
	cfg := models.Normalize(rec)

	e.mu.Lock()
	e.canonical = cfg
	e.draft = cfg.Clone()
	e.dirty = false
	e.mu.Unlock()
	return cfg.Clone(), nil
}

// AdoptDraft replaces the draft with an externally edited configuration and
// marks it dirty. When the canonical copy shows the agent held a custom-llm
// secret and the incoming draft has moved off custom-llm, the secret is
// released the same way SetLLM does.
func (e *Editor) AdoptDraft(ctx context.Context, cfg *models.AgentConfig) error {
	if cfg == nil {
		return errors.New("nil draft")
	}
	e.mu.Lock()
	var heldSecret string
	if e.canonical != nil &&
		e.canonical.Prompt.LLM == models.LLMCustom && cfg.Prompt.LLM != models.LLMCustom &&
		e.canonical.Prompt.CustomLLM != nil && e.canonical.Prompt.CustomLLM.APIKey != nil {
		heldSecret = e.canonical.Prompt.CustomLLM.APIKey.SecretID
	}
	e.draft = cfg.Clone()
	if e.draft.Prompt.LLM != models.LLMCustom {
		e.draft.Prompt.CustomLLM = nil
	}
	e.dirty = true
	e.mu.Unlock()

	if heldSecret != "" {
		e.releaseSecret(ctx, heldSecret)
	}
	return nil
}

// ApplyChange mutates the draft and marks it dirty. The flag is set
// unconditionally on every call. A no-op reassignment still enables the
// save action, matching the dashboard's observable behavior.
func (e *Editor) ApplyChange(mutate func(*models.AgentConfig)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.draft == nil {
		return ErrNotLoaded
	}
	mutate(e.draft)
	e.dirty = true
	return nil
}

// SetLLM changes the draft's llm selection. Moving away from "custom-llm"
// releases any held secret reference from the upstream secret store: this is
// cleanup, so failures are logged and retried by the janitor, never surfaced,
// and never block the change itself.
func (e *Editor) SetLLM(ctx context.Context, llm string) error {
	e.mu.Lock()
	if e.draft == nil {
		e.mu.Unlock()
		return ErrNotLoaded
	}
	prev := e.draft.Prompt.LLM
	var heldSecret string
	if prev == models.LLMCustom && llm != models.LLMCustom &&
		e.draft.Prompt.CustomLLM != nil && e.draft.Prompt.CustomLLM.APIKey != nil {
		heldSecret = e.draft.Prompt.CustomLLM.APIKey.SecretID
	}
	e.draft.Prompt.LLM = llm
	if llm != models.LLMCustom {
		e.draft.Prompt.CustomLLM = nil
	} else if e.draft.Prompt.CustomLLM == nil {
		e.draft.Prompt.CustomLLM = &models.CustomLLMConfig{}
	}
	e.dirty = true
	e.mu.Unlock()

	if heldSecret != "" {
		e.releaseSecret(ctx, heldSecret)
	}
	return nil
}

// releaseSecret deletes a secret reference upstream, best-effort. The
// bookkeeping record lets the janitor retry when the delete does not go
// through.
func (e *Editor) releaseSecret(ctx context.Context, secretID string) {
	now := time.Now().UTC()
	if err := e.upstream.DeleteSecret(ctx, e.token, secretID); err != nil {
		log.Warn().Err(err).Str("secret", secretID).Msg("secret release failed, janitor will retry")
		if e.secrets != nil {
			if merr := e.secrets.MarkSecretReleaseRequested(ctx, secretID, now); merr != nil && !store.IsNotFound(merr) {
				log.Warn().Err(merr).Str("secret", secretID).Msg("secret bookkeeping failed")
			}
		}
		return
	}
	if e.secrets != nil {
		if merr := e.secrets.MarkSecretReleased(ctx, secretID, now); merr != nil && !store.IsNotFound(merr) {
			log.Warn().Err(merr).Str("secret", secretID).Msg("secret bookkeeping failed")
		}
	}
	log.Info().Str("secret", secretID).Msg("secret released")
}

// validateDraft runs the save-blocking field checks: the tool list and the
// fixed language and turn-mode enumerations. Empty language and turn mode
// are allowed; SavePayload and upstream defaulting handle them.
func validateDraft(cfg *models.AgentConfig) *tools.ValidationError {
	if cfg.Language != "" && !models.IsSupportedLanguage(cfg.Language) {
		return &tools.ValidationError{
			Field:   "language",
			Message: fmt.Sprintf("Unsupported language %q", cfg.Language),
		}
	}
	if cfg.Turn.Mode != "" && !isTurnMode(cfg.Turn.Mode) {
		return &tools.ValidationError{
			Field:   "turn.mode",
			Message: fmt.Sprintf("Unsupported turn mode %q", cfg.Turn.Mode),
		}
	}
	return tools.ValidateSpecs(cfg.Tools)
}

func isTurnMode(mode string) bool {
	for _, m := range models.TurnModes {
		if m == mode {
			return true
		}
	}
	return false
}

// Save validates the draft, PATCHes the reconciled payload upstream, then
// refetches and adopts the canonical state. The dirty flag survives a failed
// save; overlapping saves for the same agent are rejected.
func (e *Editor) Save(ctx context.Context) (*models.AgentConfig, error) {
	e.mu.Lock()
	if e.draft == nil {
		e.mu.Unlock()
		return nil, ErrNotLoaded
	}
	if e.saving {
		e.mu.Unlock()
		return nil, ErrSaveInFlight
	}
	if verr := validateDraft(e.draft); verr != nil {
		e.mu.Unlock()
		return nil, verr
	}
	e.saving = true
	payload := e.draft.SavePayload()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.saving = false
		e.mu.Unlock()
	}()

	if _, err := e.upstream.PatchAgent(ctx, e.token, e.userID, e.agentID, payload); err != nil {
		return nil, err
	}

	// Reload canonical state; the echoed response is not trusted.
	rec, err := e.upstream.GetAgent(ctx, e.token, e.userID, e.agentID)
	if err != nil {
		return nil, err
	}
	cfg := models.Normalize(rec)

	e.mu.Lock()
	e.canonical = cfg
	e.draft = cfg.Clone()
	e.dirty = false
	e.mu.Unlock()
	return cfg, nil
}

// Cancel discards the draft, restoring it from the canonical copy.
// Calling it repeatedly without intervening edits is a no-op.
func (e *Editor) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.canonical == nil {
		return ErrNotLoaded
	}
	e.draft = e.canonical.Clone()
	e.dirty = false
	return nil
}

// Dirty reports whether the draft has unsaved changes.
func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// Draft returns a copy of the current draft, or nil before the first load.
func (e *Editor) Draft() *models.AgentConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.draft == nil {
		return nil
	}
	return e.draft.Clone()
}

// Canonical returns a copy of the last-saved configuration, or nil before
// the first load.
func (e *Editor) Canonical() *models.AgentConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.canonical == nil {
		return nil
	}
	return e.canonical.Clone()
}
