package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wxrelay/wxrelay/internal/bus"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Limits.TokenBudget != 4096 {
		t.Errorf("TokenBudget = %d, want default 4096", cfg.Limits.TokenBudget)
	}
	if cfg.Trigger.PrivateMode != "always" {
		t.Errorf("PrivateMode = %q, want default always", cfg.Trigger.PrivateMode)
	}
	if !cfg.Vision.EnablePrivate {
		t.Error("vision defaults on for private chats")
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	t.Setenv("MY_KEY", "k")
	t.Setenv("WXRELAY_MODEL", "env-model")

	path := filepath.Join(t.TempDir(), "config.json5")
	content := `{
	// relay config
	api: { model: "file-model", api_key_env: "MY_KEY" },
	trigger: { private_mode: "keyword", private_keywords: ["bot"] },
	limits: { token_budget: 2048 },
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Model != "env-model" {
		t.Errorf("Model = %q, env override must win", cfg.API.Model)
	}
	if cfg.Limits.TokenBudget != 2048 {
		t.Errorf("TokenBudget = %d, want 2048", cfg.Limits.TokenBudget)
	}
	if cfg.Trigger.PrivateMode != "keyword" || len(cfg.Trigger.PrivateKeywords) != 1 {
		t.Errorf("trigger section not applied: %+v", cfg.Trigger)
	}
	// Untouched sections keep defaults.
	if cfg.Failure.MaxConsecutiveFailures != 3 {
		t.Errorf("failure defaults lost: %+v", cfg.Failure)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		// Only the name of the key variable is required; offline
		// commands must load config without a key exported.
		{"unexported api key var", func(c *Config) { c.API.APIKeyEnv = "WXRELAY_TEST_KEY_NOT_SET" }, ""},
		{"missing api key env name", func(c *Config) { c.API.APIKeyEnv = "" }, "api_key_env"},
		{"missing endpoint", func(c *Config) { c.API.Endpoint = "" }, "endpoint"},
		{"bad private mode", func(c *Config) { c.Trigger.PrivateMode = "sometimes" }, "private_mode"},
		{"bad group mode", func(c *Config) { c.Trigger.GroupMode = "never" }, "group_mode"},
		{"regex mode without regex", func(c *Config) { c.Trigger.PrivateMode = "regex" }, "private_regex"},
		{"invalid regex", func(c *Config) {
			c.Trigger.PrivateMode = "regex"
			c.Trigger.PrivateRegex = "("
		}, "private_regex"},
		{"zero budget", func(c *Config) { c.Limits.TokenBudget = 0 }, "token_budget"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestPromptForScope(t *testing.T) {
	p := PersonaConfig{GlobalPrompt: "base", GroupPrompt: "group extra"}
	if got := p.PromptForScope(bus.ScopeGroup); got != "base\ngroup extra" {
		t.Errorf("group prompt = %q", got)
	}
	if got := p.PromptForScope(bus.ScopePrivate); got != "base" {
		t.Errorf("private prompt = %q", got)
	}
}

func TestMaxOutputTokens(t *testing.T) {
	l := LimitsConfig{MaxGroupOutputTokens: 512, MaxPrivateOutputTokens: 800}
	if got := l.MaxOutputTokens(bus.ScopeGroup, 1000); got != 512 {
		t.Errorf("group cap = %d, want 512", got)
	}
	if got := l.MaxOutputTokens(bus.ScopePrivate, 600); got != 600 {
		t.Errorf("private cap bounded by model max = %d, want 600", got)
	}
}
