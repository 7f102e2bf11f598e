// Package config defines the typed configuration surface for the relay.
// Absent fields materialize their documented defaults; validation runs
// once at load time and configuration errors are fatal at startup.
package config

import (
	"fmt"
	"regexp"

	"github.com/wxrelay/wxrelay/internal/bus"
)

// Config is the root configuration structure.
type Config struct {
	SelfUserID string          `json:"self_user_id"`
	Persona    PersonaConfig   `json:"persona"`
	Trigger    TriggerConfig   `json:"trigger"`
	API        APIConfig       `json:"api"`
	Limits     LimitsConfig    `json:"limits"`
	Storage    StorageConfig   `json:"storage"`
	Dedupe     DedupeConfig    `json:"dedupe"`
	RateLimit  RateLimitConfig `json:"rate_limit"`
	Failure    FailureConfig   `json:"failure"`
	Vision     VisionConfig    `json:"vision"`
	Reply      ReplyConfig     `json:"reply"`
	Adapter    AdapterConfig   `json:"adapter"`
}

// PersonaConfig carries the system prompts. Scope-specific prompts are
// appended to the global one on their own line.
type PersonaConfig struct {
	GlobalPrompt  string `json:"global_prompt"`
	PrivatePrompt string `json:"private_prompt"`
	GroupPrompt   string `json:"group_prompt"`
}

// PromptForScope returns the effective system prompt for a scope.
func (p PersonaConfig) PromptForScope(scope bus.Scope) string {
	switch {
	case scope == bus.ScopeGroup && p.GroupPrompt != "":
		return p.GlobalPrompt + "\n" + p.GroupPrompt
	case scope == bus.ScopePrivate && p.PrivatePrompt != "":
		return p.GlobalPrompt + "\n" + p.PrivatePrompt
	default:
		return p.GlobalPrompt
	}
}

// TriggerConfig decides whether an inbound event warrants a reply.
type TriggerConfig struct {
	PrivateMode     string   `json:"private_mode"` // always | keyword | regex
	PrivateKeywords []string `json:"private_keywords"`
	PrivateRegex    string   `json:"private_regex"`
	GroupMode       string   `json:"group_mode"` // mention | mention_keyword
	GroupKeywords   []string `json:"group_keywords"`
}

// APIConfig describes the model endpoint.
type APIConfig struct {
	Endpoint               string         `json:"endpoint"`
	APIKeyEnv              string         `json:"api_key_env"`
	TimeoutSeconds         int            `json:"timeout_seconds"`
	Stream                 bool           `json:"stream"`
	Model                  string         `json:"model"`
	MaxOutputTokens        int            `json:"max_output_tokens"`
	ContinuousConversation bool           `json:"continuous_conversation"`
	SummaryPrompt          string         `json:"summary_prompt"`
	MaxContextTokens       int            `json:"max_context_tokens"`
	ExtraParams            map[string]any `json:"extra_params"`
}

// LimitsConfig holds the token budgets.
type LimitsConfig struct {
	TokenBudget            int `json:"token_budget"`
	MaxGroupOutputTokens   int `json:"max_group_output_tokens"`
	MaxPrivateOutputTokens int `json:"max_private_output_tokens"`
	MaxSingleMessageTokens int `json:"max_single_message_tokens"`
}

// MaxOutputTokens returns the per-scope reply cap, also bounded by the
// model's own maximum.
func (l LimitsConfig) MaxOutputTokens(scope bus.Scope, apiMax int) int {
	limit := l.MaxPrivateOutputTokens
	if scope == bus.ScopeGroup {
		limit = l.MaxGroupOutputTokens
	}
	if apiMax > 0 && apiMax < limit {
		return apiMax
	}
	return limit
}

type StorageConfig struct {
	BaseDir     string `json:"base_dir"`
	ReplyDBPath string `json:"reply_db_path"` // empty disables the SQLite mirror
}

type DedupeConfig struct {
	WindowSeconds int `json:"window_seconds"`
}

type RateLimitConfig struct {
	SessionCooldownSeconds int `json:"session_cooldown_seconds"`
	UserCooldownSeconds    int `json:"user_cooldown_seconds"`
}

type FailureConfig struct {
	MaxConsecutiveFailures int    `json:"max_consecutive_failures"`
	CooldownSeconds        int    `json:"cooldown_seconds"`
	FallbackReply          string `json:"fallback_reply"`
}

type VisionConfig struct {
	EnablePrivate bool `json:"enable_private"`
	EnableGroup   bool `json:"enable_group"`
}

// ReplyConfig short-circuits reply generation with fixed canned replies.
type ReplyConfig struct {
	PrivateFixedReply string `json:"private_fixed_reply"`
	GroupFixedReply   string `json:"group_fixed_reply"`
}

// AdapterConfig describes the wxauto HTTP bridge.
type AdapterConfig struct {
	BaseURL             string  `json:"base_url"`
	PollIntervalSeconds float64 `json:"poll_interval_seconds"`
	SendRatePerSecond   float64 `json:"send_rate_per_second"`
	TimeoutSeconds      int     `json:"timeout_seconds"`
}

// Default returns a Config with the documented defaults.
func Default() *Config {
	return &Config{
		Persona: PersonaConfig{
			GlobalPrompt: "你是一个有用的微信助手。",
		},
		Trigger: TriggerConfig{
			PrivateMode: "always",
			GroupMode:   "mention",
		},
		API: APIConfig{
			Endpoint:         "https://api.openai.com/v1/chat/completions",
			APIKeyEnv:        "OPENAI_API_KEY",
			TimeoutSeconds:   60,
			Model:            "gpt-4o-mini",
			MaxOutputTokens:  800,
			SummaryPrompt:    "请将以下对话历史精简为一条要点式总结，保留重要事实、偏好与未完成事项。",
			MaxContextTokens: 4096,
		},
		Limits: LimitsConfig{
			TokenBudget:            4096,
			MaxGroupOutputTokens:   512,
			MaxPrivateOutputTokens: 800,
			MaxSingleMessageTokens: 2048,
		},
		Storage: StorageConfig{
			BaseDir: "data/wxrelay",
		},
		Dedupe: DedupeConfig{
			WindowSeconds: 60,
		},
		RateLimit: RateLimitConfig{
			SessionCooldownSeconds: 3,
			UserCooldownSeconds:    2,
		},
		Failure: FailureConfig{
			MaxConsecutiveFailures: 3,
			CooldownSeconds:        60,
			FallbackReply:          "抱歉，我暂时无法回复，请稍后再试。",
		},
		Vision: VisionConfig{
			EnablePrivate: true,
			EnableGroup:   true,
		},
		Adapter: AdapterConfig{
			BaseURL:             "http://127.0.0.1:39990",
			PollIntervalSeconds: 0.5,
			SendRatePerSecond:   1,
			TimeoutSeconds:      10,
		},
	}
}

// Validate checks the loaded configuration once at startup.
func (c *Config) Validate() error {
	if c.API.Endpoint == "" {
		return fmt.Errorf("api.endpoint is required")
	}
	// Only the variable name is validated here. Whether it is exported
	// is checked where the key is needed, so offline commands like
	// sessions work without one.
	if c.API.APIKeyEnv == "" {
		return fmt.Errorf("api.api_key_env is required")
	}
	switch c.Trigger.PrivateMode {
	case "always", "keyword", "regex":
	default:
		return fmt.Errorf("trigger.private_mode %q is not one of always, keyword, regex", c.Trigger.PrivateMode)
	}
	switch c.Trigger.GroupMode {
	case "mention", "mention_keyword":
	default:
		return fmt.Errorf("trigger.group_mode %q is not one of mention, mention_keyword", c.Trigger.GroupMode)
	}
	if c.Trigger.PrivateMode == "regex" {
		if c.Trigger.PrivateRegex == "" {
			return fmt.Errorf("trigger.private_regex is required in regex mode")
		}
		if _, err := regexp.Compile(c.Trigger.PrivateRegex); err != nil {
			return fmt.Errorf("trigger.private_regex: %w", err)
		}
	}
	if c.Limits.TokenBudget <= 0 {
		return fmt.Errorf("limits.token_budget must be positive")
	}
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Adapter.BaseURL == "" {
		return fmt.Errorf("adapter.base_url is required")
	}
	return nil
}
