package models

import (
	"fmt"
	"strings"
)

// ── LLM / Model Resolution ───────────────────────────────────

// LLMCustom is the sentinel llm value meaning "bring your own endpoint".
// While it is selected, prompt.custom_llm must be populated; when the llm
// moves away from it, any held secret reference must be released upstream.
const LLMCustom = "custom-llm"

// ModelType is the console-level TTS model family. Combined with the agent's
// language it resolves deterministically to an upstream model_id.
type ModelType string

const (
	ModelTurbo ModelType = "turbo"
	ModelFlash ModelType = "flash"
)

// ComputeModelID resolves a model family plus language to the upstream
// model_id. English uses the v2 models, everything else the v2_5 multilingual
// builds. The mapping is exact: ModelTypeFromID(ComputeModelID(t, l)) == t.
func ComputeModelID(t ModelType, language string) string {
	base := "eleven_flash"
	if t == ModelTurbo {
		base = "eleven_turbo"
	}
	if language == "en" {
		return base + "_v2"
	}
	return base + "_v2_5"
}

// ModelTypeFromID reconstructs the model family from an upstream model_id
// by substring match on "turbo".
func ModelTypeFromID(modelID string) ModelType {
	if strings.Contains(modelID, "turbo") {
		return ModelTurbo
	}
	return ModelFlash
}

// SupportedLanguages is the fixed language list offered by the console.
var SupportedLanguages = []string{
	"en", "es", "fr", "de", "it", "pt", "pl", "hi", "ar", "ru",
	"ja", "zh", "ko", "nl", "tr", "sv", "id", "uk", "el", "cs",
	"fi", "ro", "da", "bg", "ms", "sk", "hr", "ta", "fil", "hu",
}

// IsSupportedLanguage reports whether code is in SupportedLanguages.
func IsSupportedLanguage(code string) bool {
	for _, l := range SupportedLanguages {
		if l == code {
			return true
		}
	}
	return false
}

// ── Conversation Initiation ──────────────────────────────────

// InitiationMode says who speaks first. On the wire this is encoded in
// first_message: empty string means the user speaks first, anything else is
// the agent's greeting. The mode wins over the raw draft text at save time.
type InitiationMode string

const (
	InitiationBot  InitiationMode = "bot"
	InitiationUser InitiationMode = "user"
)

// DeriveInitiationMode decodes the first_message sentinel.
func DeriveInitiationMode(firstMessage string) InitiationMode {
	if firstMessage == "" {
		return InitiationUser
	}
	return InitiationBot
}

// ── Defaults & Ranges ────────────────────────────────────────

const (
	DefaultTemperature     = 0.0
	DefaultTTSLatency      = 0
	DefaultTTSStability    = 0.5
	DefaultTTSSpeed        = 1.0
	DefaultTTSSimilarity   = 0.8
	DefaultTurnTimeout     = 7.0
	DefaultSilenceTimeout  = -1.0 // disabled
	DefaultTurnMode        = "turn"
	DefaultRetentionDays   = -1 // keep forever
	MinTTSSpeed            = 0.7
	MaxTTSSpeed            = 1.2
	MaxTTSLatency          = 4
	MinTurnTimeout         = 1.0
	MaxTurnTimeout         = 30.0
	MaxSilenceTimeout      = 300.0
	MaxRetentionDays       = 365
	WebhookContentTypeJSON = "application/json"
)

// TurnModes are the accepted turn.mode values.
var TurnModes = []string{"silence", "turn"}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampTemperature bounds an LLM temperature to [0,1].
func ClampTemperature(v float64) float64 { return clampFloat(v, 0, 1) }

// ClampSilenceTimeout maps any negative value to the -1 "disabled" sentinel
// and bounds positive values to [0,300].
func ClampSilenceTimeout(v float64) float64 {
	if v < 0 {
		return DefaultSilenceTimeout
	}
	return clampFloat(v, 0, MaxSilenceTimeout)
}

// ClampRetentionDays maps any negative value to -1 and bounds the rest to
// [0,365].
func ClampRetentionDays(v int) int {
	if v < 0 {
		return DefaultRetentionDays
	}
	return clampInt(v, 0, MaxRetentionDays)
}

// FormatSilenceTimeout renders the silence-end-call timeout for display:
// "Disabled" for the -1 sentinel, otherwise seconds with one decimal.
func FormatSilenceTimeout(v float64) string {
	if v < 0 {
		return "Disabled"
	}
	return fmt.Sprintf("%.1fs", v)
}

// SplitKeywords turns a comma-separated ASR keyword string into a normalized
// list: entries are trimmed and empties dropped. Never returns empty strings.
func SplitKeywords(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NormalizeKeywords applies the SplitKeywords rules to an already-split list.
func NormalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		if t := strings.TrimSpace(k); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// DedupeKnowledgeBase drops duplicate document ids, keeping first occurrence.
func DedupeKnowledgeBase(refs []KnowledgeBaseRef) []KnowledgeBaseRef {
	if len(refs) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(refs))
	out := make([]KnowledgeBaseRef, 0, len(refs))
	for _, r := range refs {
		if r.ID == "" || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

// ── Upstream (raw) agent record ──────────────────────────────

// AgentRecord is the agent configuration exactly as the upstream platform API
// returns it. Optional sections and defaulted scalars are pointers so that
// "absent" is distinguishable from a zero value; Normalize collapses all of
// them into the fully-populated AgentConfig the rest of the code works with.
type AgentRecord struct {
	AgentID          string                  `json:"agent_id,omitempty"`
	Name             string                  `json:"name"`
	Prompt           *PromptRecord           `json:"prompt,omitempty"`
	FirstMessage     *string                 `json:"first_message,omitempty"`
	VoiceID          string                  `json:"voice_id,omitempty"`
	Language         string                  `json:"language,omitempty"`
	ModelID          string                  `json:"model_id,omitempty"`
	TTS              *TTSRecord              `json:"tts,omitempty"`
	Turn             *TurnRecord             `json:"turn,omitempty"`
	ASR              *ASRRecord              `json:"asr,omitempty"`
	KnowledgeBase    []KnowledgeBaseRef      `json:"knowledge_base,omitempty"`
	Tools            []ToolSpec              `json:"tools,omitempty"`
	PlatformSettings *PlatformSettingsRecord `json:"platform_settings,omitempty"`
}

// PromptRecord is the prompt section of the upstream agent record.
type PromptRecord struct {
	Prompt      string           `json:"prompt,omitempty"`
	LLM         string           `json:"llm,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	CustomLLM   *CustomLLMConfig `json:"custom_llm,omitempty"`
}

// CustomLLMConfig configures a bring-your-own LLM endpoint. Present only
// while prompt.llm == "custom-llm". APIKey holds a secret reference issued by
// the upstream secret store, never the raw key.
type CustomLLMConfig struct {
	URL     string     `json:"url"`
	ModelID string     `json:"model_id,omitempty"`
	APIKey  *SecretRef `json:"api_key,omitempty"`
}

// TTSRecord is the voice-synthesis section of the upstream agent record.
type TTSRecord struct {
	OptimizeStreamingLatency *int     `json:"optimize_streaming_latency,omitempty"`
	Stability                *float64 `json:"stability,omitempty"`
	Speed                    *float64 `json:"speed,omitempty"`
	SimilarityBoost          *float64 `json:"similarity_boost,omitempty"`
}

// TurnRecord is the turn-taking section of the upstream agent record.
type TurnRecord struct {
	TurnTimeout           *float64 `json:"turn_timeout,omitempty"`
	SilenceEndCallTimeout *float64 `json:"silence_end_call_timeout,omitempty"`
	Mode                  string   `json:"mode,omitempty"`
}

// ASRRecord is the speech-recognition section of the upstream agent record.
type ASRRecord struct {
	Keywords []string `json:"keywords,omitempty"`
}

// PlatformSettingsRecord is the platform_settings section of the upstream
// agent record.
type PlatformSettingsRecord struct {
	DataCollection     map[string]DataCollectionVariable `json:"data_collection,omitempty"`
	WorkspaceOverrides *WorkspaceOverrides               `json:"workspace_overrides,omitempty"`
	Privacy            *PrivacyRecord                    `json:"privacy,omitempty"`
}

// WorkspaceOverrides carries the optional conversation-initiation webhook.
// The whole object is omitted from save payloads when the URL is blank.
type WorkspaceOverrides struct {
	ConversationInitiationClientDataWebhook *WebhookOverride `json:"conversation_initiation_client_data_webhook,omitempty"`
}

// WebhookOverride is the conversation-initiation webhook target. Headers are
// fixed to JSON content type.
type WebhookOverride struct {
	URL            string            `json:"url"`
	RequestHeaders map[string]string `json:"request_headers,omitempty"`
}

// PrivacyRecord is the privacy section of the upstream agent record.
type PrivacyRecord struct {
	RecordVoice                  *bool `json:"record_voice,omitempty"`
	RetentionDays                *int  `json:"retention_days,omitempty"`
	DeleteTranscriptAndPII       *bool `json:"delete_transcript_and_pii,omitempty"`
	DeleteAudio                  *bool `json:"delete_audio,omitempty"`
	ApplyToExistingConversations *bool `json:"apply_to_existing_conversations,omitempty"`
	ZeroRetentionMode            *bool `json:"zero_retention_mode,omitempty"`
}

// CreateAgentRequest is the reduced initial shape sent to the upstream
// create endpoint. Everything else is filled with defaults server-side.
type CreateAgentRequest struct {
	Name     string `json:"name"`
	VoiceID  string `json:"voice_id,omitempty"`
	Language string `json:"language,omitempty"`
}

// AgentSummary is one row in the agent list.
type AgentSummary struct {
	AgentID  string `json:"agent_id"`
	Name     string `json:"name"`
	VoiceID  string `json:"voice_id,omitempty"`
	Language string `json:"language,omitempty"`
}

// ── Normalized agent configuration ───────────────────────────

// PromptConfig is the normalized prompt section.
type PromptConfig struct {
	Prompt      string           `json:"prompt"`
	LLM         string           `json:"llm"`
	Temperature float64          `json:"temperature"`
	CustomLLM   *CustomLLMConfig `json:"custom_llm,omitempty"`
}

// TTSConfig is the normalized voice-synthesis section. All fields carry their
// documented defaults after Normalize.
type TTSConfig struct {
	OptimizeStreamingLatency int     `json:"optimize_streaming_latency"` // [0,4]
	Stability                float64 `json:"stability"`                  // [0,1]
	Speed                    float64 `json:"speed"`                      // [0.7,1.2]
	SimilarityBoost          float64 `json:"similarity_boost"`           // [0,1]
}

// TurnConfig is the normalized turn-taking section.
type TurnConfig struct {
	TurnTimeout           float64 `json:"turn_timeout"`             // [1,30] seconds
	SilenceEndCallTimeout float64 `json:"silence_end_call_timeout"` // -1 disabled, else [0,300]
	Mode                  string  `json:"mode"`                     // "silence" | "turn"
}

// PrivacySettings is the normalized privacy section.
type PrivacySettings struct {
	RecordVoice                  bool `json:"record_voice"`
	RetentionDays                int  `json:"retention_days"` // -1 keep forever, else [0,365]
	DeleteTranscriptAndPII       bool `json:"delete_transcript_and_pii"`
	DeleteAudio                  bool `json:"delete_audio"`
	ApplyToExistingConversations bool `json:"apply_to_existing_conversations"`
	ZeroRetentionMode            bool `json:"zero_retention_mode"`
}

// AgentConfig is the fully-populated, editable agent configuration. It is
// produced by Normalize and observed by every editor and handler; no field is
// optional, so read sites never default-check. ConversationInitiationMode and
// per-variable constant_value_type are console-only and stripped again at the
// SavePayload boundary.
type AgentConfig struct {
	AgentID                    string                            `json:"agent_id"`
	Name                       string                            `json:"name"`
	Prompt                     PromptConfig                      `json:"prompt"`
	FirstMessage               string                            `json:"first_message"`
	ConversationInitiationMode InitiationMode                    `json:"conversation_initiation_mode"`
	VoiceID                    string                            `json:"voice_id"`
	Language                   string                            `json:"language"`
	ModelType                  ModelType                         `json:"model_type"`
	TTS                        TTSConfig                         `json:"tts"`
	Turn                       TurnConfig                        `json:"turn"`
	ASRKeywords                []string                          `json:"asr_keywords"`
	KnowledgeBase              []KnowledgeBaseRef                `json:"knowledge_base"`
	Tools                      []ToolSpec                        `json:"tools"`
	DataCollection             map[string]DataCollectionVariable `json:"data_collection"`
	WebhookOverrideURL         string                            `json:"webhook_override_url"`
	Privacy                    PrivacySettings                   `json:"privacy"`
}

// Normalize converts a raw upstream record into a fully-populated AgentConfig,
// filling every optional field with its documented default. This is the single
// defaulting boundary; "omit if blank" logic reappears only in SavePayload.
func Normalize(rec *AgentRecord) *AgentConfig {
	cfg := &AgentConfig{
		AgentID:  rec.AgentID,
		Name:     rec.Name,
		VoiceID:  rec.VoiceID,
		Language: rec.Language,
		Prompt: PromptConfig{
			Temperature: DefaultTemperature,
		},
		TTS: TTSConfig{
			OptimizeStreamingLatency: DefaultTTSLatency,
			Stability:                DefaultTTSStability,
			Speed:                    DefaultTTSSpeed,
			SimilarityBoost:          DefaultTTSSimilarity,
		},
		Turn: TurnConfig{
			TurnTimeout:           DefaultTurnTimeout,
			SilenceEndCallTimeout: DefaultSilenceTimeout,
			Mode:                  DefaultTurnMode,
		},
		Privacy: PrivacySettings{
			RecordVoice:   true,
			RetentionDays: DefaultRetentionDays,
		},
		DataCollection: map[string]DataCollectionVariable{},
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}

	if p := rec.Prompt; p != nil {
		cfg.Prompt.Prompt = p.Prompt
		cfg.Prompt.LLM = p.LLM
		if p.Temperature != nil {
			cfg.Prompt.Temperature = ClampTemperature(*p.Temperature)
		}
		if p.LLM == LLMCustom && p.CustomLLM != nil {
			c := *p.CustomLLM
			cfg.Prompt.CustomLLM = &c
		}
	}

	if rec.FirstMessage != nil {
		cfg.FirstMessage = *rec.FirstMessage
	}
	cfg.ConversationInitiationMode = DeriveInitiationMode(cfg.FirstMessage)

	cfg.ModelType = ModelTypeFromID(rec.ModelID)

	if t := rec.TTS; t != nil {
		if t.OptimizeStreamingLatency != nil {
			cfg.TTS.OptimizeStreamingLatency = clampInt(*t.OptimizeStreamingLatency, 0, MaxTTSLatency)
		}
		if t.Stability != nil {
			cfg.TTS.Stability = clampFloat(*t.Stability, 0, 1)
		}
		if t.Speed != nil {
			cfg.TTS.Speed = clampFloat(*t.Speed, MinTTSSpeed, MaxTTSSpeed)
		}
		if t.SimilarityBoost != nil {
			cfg.TTS.SimilarityBoost = clampFloat(*t.SimilarityBoost, 0, 1)
		}
	}

	if tu := rec.Turn; tu != nil {
		if tu.TurnTimeout != nil {
			cfg.Turn.TurnTimeout = clampFloat(*tu.TurnTimeout, MinTurnTimeout, MaxTurnTimeout)
		}
		if tu.SilenceEndCallTimeout != nil {
			cfg.Turn.SilenceEndCallTimeout = ClampSilenceTimeout(*tu.SilenceEndCallTimeout)
		}
		if tu.Mode != "" {
			cfg.Turn.Mode = tu.Mode
		}
	}

	if rec.ASR != nil {
		cfg.ASRKeywords = NormalizeKeywords(rec.ASR.Keywords)
	}

	cfg.KnowledgeBase = DedupeKnowledgeBase(rec.KnowledgeBase)
	cfg.Tools = append([]ToolSpec(nil), rec.Tools...)

	if ps := rec.PlatformSettings; ps != nil {
		for name, v := range ps.DataCollection {
			if v.ConstantValueType == "" {
				v.ConstantValueType = ValueTypeString
			}
			cfg.DataCollection[name] = v
		}
		if ps.WorkspaceOverrides != nil && ps.WorkspaceOverrides.ConversationInitiationClientDataWebhook != nil {
			cfg.WebhookOverrideURL = ps.WorkspaceOverrides.ConversationInitiationClientDataWebhook.URL
		}
		if pr := ps.Privacy; pr != nil {
			if pr.RecordVoice != nil {
				cfg.Privacy.RecordVoice = *pr.RecordVoice
			}
			if pr.RetentionDays != nil {
				cfg.Privacy.RetentionDays = ClampRetentionDays(*pr.RetentionDays)
			}
			if pr.DeleteTranscriptAndPII != nil {
				cfg.Privacy.DeleteTranscriptAndPII = *pr.DeleteTranscriptAndPII
			}
			if pr.DeleteAudio != nil {
				cfg.Privacy.DeleteAudio = *pr.DeleteAudio
			}
			if pr.ApplyToExistingConversations != nil {
				cfg.Privacy.ApplyToExistingConversations = *pr.ApplyToExistingConversations
			}
			if pr.ZeroRetentionMode != nil {
				cfg.Privacy.ZeroRetentionMode = *pr.ZeroRetentionMode
			}
		}
	}

	return cfg
}

// SavePayload builds the outgoing PATCH body for an edited AgentConfig:
//   - first_message is re-derived from the initiation mode; mode "user"
//     forces "" regardless of the draft's raw text,
//   - model_id is resolved from model family + language,
//   - per-variable constant_value_type is stripped,
//   - the workspace webhook override is omitted entirely when its URL is
//     blank or whitespace,
//   - custom_llm rides along only while llm == "custom-llm".
func (c *AgentConfig) SavePayload() *AgentRecord {
	firstMessage := c.FirstMessage
	if c.ConversationInitiationMode == InitiationUser {
		firstMessage = ""
	}

	temp := ClampTemperature(c.Prompt.Temperature)
	prompt := &PromptRecord{
		Prompt:      c.Prompt.Prompt,
		LLM:         c.Prompt.LLM,
		Temperature: &temp,
	}
	if c.Prompt.LLM == LLMCustom && c.Prompt.CustomLLM != nil {
		cl := *c.Prompt.CustomLLM
		prompt.CustomLLM = &cl
	}

	latency := clampInt(c.TTS.OptimizeStreamingLatency, 0, MaxTTSLatency)
	stability := clampFloat(c.TTS.Stability, 0, 1)
	speed := clampFloat(c.TTS.Speed, MinTTSSpeed, MaxTTSSpeed)
	similarity := clampFloat(c.TTS.SimilarityBoost, 0, 1)

	turnTimeout := clampFloat(c.Turn.TurnTimeout, MinTurnTimeout, MaxTurnTimeout)
	silence := ClampSilenceTimeout(c.Turn.SilenceEndCallTimeout)

	rec := &AgentRecord{
		Name:          c.Name,
		Prompt:        prompt,
		FirstMessage:  &firstMessage,
		VoiceID:       c.VoiceID,
		Language:      c.Language,
		ModelID:       ComputeModelID(c.ModelType, c.Language),
		TTS:           &TTSRecord{OptimizeStreamingLatency: &latency, Stability: &stability, Speed: &speed, SimilarityBoost: &similarity},
		Turn:          &TurnRecord{TurnTimeout: &turnTimeout, SilenceEndCallTimeout: &silence, Mode: c.Turn.Mode},
		ASR:           &ASRRecord{Keywords: NormalizeKeywords(c.ASRKeywords)},
		KnowledgeBase: DedupeKnowledgeBase(c.KnowledgeBase),
		Tools:         append([]ToolSpec(nil), c.Tools...),
	}

	ps := &PlatformSettingsRecord{}
	if len(c.DataCollection) > 0 {
		ps.DataCollection = make(map[string]DataCollectionVariable, len(c.DataCollection))
		for name, v := range c.DataCollection {
			v.ConstantValueType = "" // console-only hint
			ps.DataCollection[name] = v
		}
	}
	if url := strings.TrimSpace(c.WebhookOverrideURL); url != "" {
		ps.WorkspaceOverrides = &WorkspaceOverrides{
			ConversationInitiationClientDataWebhook: &WebhookOverride{
				URL:            url,
				RequestHeaders: map[string]string{"Content-Type": WebhookContentTypeJSON},
			},
		}
	}
	recordVoice := c.Privacy.RecordVoice
	retention := ClampRetentionDays(c.Privacy.RetentionDays)
	delTranscript := c.Privacy.DeleteTranscriptAndPII
	delAudio := c.Privacy.DeleteAudio
	applyExisting := c.Privacy.ApplyToExistingConversations
	zeroRetention := c.Privacy.ZeroRetentionMode
	ps.Privacy = &PrivacyRecord{
		RecordVoice:                  &recordVoice,
		RetentionDays:                &retention,
		DeleteTranscriptAndPII:       &delTranscript,
		DeleteAudio:                  &delAudio,
		ApplyToExistingConversations: &applyExisting,
		ZeroRetentionMode:            &zeroRetention,
	}
	rec.PlatformSettings = ps

	return rec
}

// Clone returns a deep copy of the config, suitable for keeping a canonical
// snapshot separate from the draft being edited.
func (c *AgentConfig) Clone() *AgentConfig {
	cp := *c
	if c.Prompt.CustomLLM != nil {
		cl := *c.Prompt.CustomLLM
		if c.Prompt.CustomLLM.APIKey != nil {
			key := *c.Prompt.CustomLLM.APIKey
			cl.APIKey = &key
		}
		cp.Prompt.CustomLLM = &cl
	}
	cp.ASRKeywords = append([]string(nil), c.ASRKeywords...)
	cp.KnowledgeBase = append([]KnowledgeBaseRef(nil), c.KnowledgeBase...)
	cp.Tools = append([]ToolSpec(nil), c.Tools...)
	cp.DataCollection = make(map[string]DataCollectionVariable, len(c.DataCollection))
	for k, v := range c.DataCollection {
		cp.DataCollection[k] = v
	}
	return &cp
}
