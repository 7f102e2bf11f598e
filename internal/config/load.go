package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file over the defaults, then overlays
// env vars. A missing file yields the defaults; a malformed file or a
// failed validation is a startup error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("WXRELAY_ENDPOINT", &c.API.Endpoint)
	envStr("WXRELAY_MODEL", &c.API.Model)
	envStr("WXRELAY_API_KEY_ENV", &c.API.APIKeyEnv)
	envStr("WXRELAY_BASE_DIR", &c.Storage.BaseDir)
	envStr("WXRELAY_ADAPTER_URL", &c.Adapter.BaseURL)
	envStr("WXRELAY_SELF_USER_ID", &c.SelfUserID)
}
