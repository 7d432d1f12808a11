package gateway

import (
	"errors"
	"net"
	"time"
)

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string        `yaml:"bind"`
	Auth            AuthConfig    `yaml:"auth"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes bounds a generate request or stream opening frame.
	MaxBodyBytes int `yaml:"max_body_bytes"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		// A single-shot call may spend 7s in back-off plus four upstream attempts.
		c.WriteTimeout = 3 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 256 << 10
	}
}

// Validate checks the bind address.
func (c Config) Validate() error {
	if c.Bind == "" {
		return nil
	}
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + c.Bind)
	}
	return nil
}

// AuthConfig configures authentication for the /v1 and /status routes.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
