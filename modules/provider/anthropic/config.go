package anthropic

import (
	"errors"
	"os"
	"time"
)

// defaultModel is the model used when none is specified.
// Pinned to a dated release for reproducibility.
const defaultModel = "claude-sonnet-4-5-20250929"

// defaultAPIKeyEnv is consulted when neither api_key nor api_key_env is set.
const defaultAPIKeyEnv = "ANTHROPIC_API_KEY"

// defaultTimeout is the HTTP response-header timeout applied to the
// underlying transport. Streaming responses are not affected once the
// first byte arrives.
const defaultTimeout = 30 * time.Second

// Config holds the YAML-decoded configuration for the Anthropic provider.
type Config struct {
	APIKey    string        `yaml:"api_key"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// defaults fills in zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}

func (c *Config) validate() error {
	if c.MaxTokens < 0 {
		return errors.New("provider.anthropic: max_tokens must not be negative")
	}
	if c.Timeout < 0 {
		return errors.New("provider.anthropic: timeout must not be negative")
	}
	return nil
}

// resolveAPIKey returns the literal key, else the named environment
// variable, else ANTHROPIC_API_KEY.
func (c *Config) resolveAPIKey(lookup func(string) (string, bool)) string {
	if c.APIKey != "" {
		return c.APIKey
	}
	name := c.APIKeyEnv
	if name == "" {
		name = defaultAPIKeyEnv
	}
	if v, ok := lookup(name); ok {
		return v
	}
	return ""
}

// Credential returns the API key the client will use, for registration
// with the log redactor. It is empty when none can be resolved.
func (c Config) Credential() string {
	return c.resolveAPIKey(os.LookupEnv)
}
