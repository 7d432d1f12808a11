package openai

import (
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	defaultModel           = "gpt-4o"
	defaultModerationModel = "omni-moderation-latest"
	defaultAPIKeyEnv       = "OPENAI_API_KEY"
)

// Config holds the YAML-decoded configuration for the OpenAI provider.
type Config struct {
	APIKey          string   `yaml:"api_key"`
	APIKeyEnv       string   `yaml:"api_key_env"`
	Model           string   `yaml:"model"`
	ModerationModel string   `yaml:"moderation_model"`
	BaseURL         string   `yaml:"base_url"`
	MaxTokens       int      `yaml:"max_tokens"`
	Temperature     *float64 `yaml:"temperature"`
	Timeout         string   `yaml:"timeout"`
}

// defaults fills zero-valued fields with sensible defaults.
func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.ModerationModel == "" {
		c.ModerationModel = defaultModerationModel
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
}

func (c *Config) validate() error {
	if c.MaxTokens < 0 {
		return errors.New("provider.openai: max_tokens must not be negative")
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("provider.openai: invalid timeout %q: %w", c.Timeout, err)
	}
	return nil
}

// parsedTimeout returns the timeout as a time.Duration.
// Assumes the value has been checked by validate.
func (c *Config) parsedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// resolveAPIKey returns the literal key, else the named environment
// variable, else OPENAI_API_KEY.
func (c *Config) resolveAPIKey(lookup func(string) (string, bool)) string {
	if c.APIKey != "" {
		return c.APIKey
	}
	name := c.APIKeyEnv
	if name == "" {
		name = defaultAPIKeyEnv
	}
	v, _ := lookup(name)
	return v
}

// Credential returns the API key the client will use, for registration
// with the log redactor. It is empty when none can be resolved.
func (c Config) Credential() string {
	return c.resolveAPIKey(os.LookupEnv)
}
