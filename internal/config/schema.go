// Package config handles YAML configuration loading, environment variable
// expansion and structural validation for inovy.
package config

import (
	"time"

	ctxengine "github.com/Inovico-app/inovy-sub002/internal/context"
	"github.com/Inovico-app/inovy-sub002/internal/gateway"
	"github.com/Inovico-app/inovy-sub002/internal/guard"
	"github.com/Inovico-app/inovy-sub002/internal/orchestrator"
	"github.com/Inovico-app/inovy-sub002/internal/pool"
	"github.com/Inovico-app/inovy-sub002/internal/provider"
	"github.com/Inovico-app/inovy-sub002/internal/security"
	"github.com/Inovico-app/inovy-sub002/internal/telemetry"
	"github.com/Inovico-app/inovy-sub002/modules/memory/sqlite"
	"github.com/Inovico-app/inovy-sub002/modules/provider/anthropic"
	"github.com/Inovico-app/inovy-sub002/modules/provider/openai"
)

// Storage drivers.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Audit sinks.
const (
	AuditSQLite = "sqlite"
	AuditJSONL  = "jsonl"
	AuditNone   = "none"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir holds the database and default audit log. Default: ./data.
	DataDir string `yaml:"data_dir"`

	Log       LogConfig                `yaml:"log"`
	Server    gateway.Config           `yaml:"server"`
	Pool      pool.Config              `yaml:"pool"`
	Providers ProvidersConfig          `yaml:"providers"`
	Chat      orchestrator.Config      `yaml:"chat"`
	Guard     GuardConfig              `yaml:"guard"`
	Context   ContextConfig            `yaml:"context"`
	Storage   StorageConfig            `yaml:"storage"`
	Audit     AuditConfig              `yaml:"audit"`
	Retrieval RetrievalConfig          `yaml:"retrieval"`
	RateLimit security.RateLimitConfig `yaml:"rate_limit"`
	Telemetry telemetry.Config         `yaml:"telemetry"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error. Default: info.
	Format string `yaml:"format"` // text or json. Default: text.
}

// ProvidersConfig lists the upstreams placed in the pool. A nil entry
// leaves that provider out.
type ProvidersConfig struct {
	OpenAI    *openai.Config    `yaml:"openai"`
	Anthropic *anthropic.Config `yaml:"anthropic"`
}

// Names returns the configured providers in a stable order.
func (p ProvidersConfig) Names() []provider.Name {
	var names []provider.Name
	if p.OpenAI != nil {
		names = append(names, provider.OpenAI)
	}
	if p.Anthropic != nil {
		names = append(names, provider.Anthropic)
	}
	return names
}

// Has reports whether name is configured.
func (p ProvidersConfig) Has(name provider.Name) bool {
	switch name {
	case provider.OpenAI:
		return p.OpenAI != nil
	case provider.Anthropic:
		return p.Anthropic != nil
	}
	return false
}

// GuardConfig holds the process-wide interceptor chain settings.
type GuardConfig struct {
	// Moderation enables the OpenAI moderation classifier. It requires
	// the openai provider. When off, both moderation stages pass.
	Moderation bool `yaml:"moderation"`

	// AuditTimeout bounds one detached audit write. Default: 10s.
	AuditTimeout time.Duration `yaml:"audit_timeout"`

	// PII is the personal-data policy for gateway requests. Default:
	// redact at confidence 0.7.
	PII guard.PIIConfig `yaml:"pii"`

	// Audit switches the audit stage for gateway requests. Default: on.
	Audit guard.AuditConfig `yaml:"audit"`
}

// ContextConfig tunes the conversation context manager.
type ContextConfig struct {
	ctxengine.Config `yaml:",inline"`

	// SummaryProvider serves summarization calls. Default: the chat provider.
	SummaryProvider provider.Name `yaml:"summary_provider"`
}

// StorageConfig selects the conversation and note store.
type StorageConfig struct {
	Driver string        `yaml:"driver"` // sqlite or memory. Default: sqlite.
	SQLite sqlite.Config `yaml:"sqlite"`
}

// AuditConfig selects the audit sink and its retention.
type AuditConfig struct {
	// Sink is sqlite, jsonl or none. Default: sqlite with the sqlite
	// driver, jsonl otherwise.
	Sink string `yaml:"sink"`

	// Path is the JSONL file. Default: {DataDir}/audit.jsonl.
	Path string `yaml:"path"`

	// Retention prunes older sqlite entries. Zero keeps everything.
	Retention time.Duration `yaml:"retention"`

	// Schedule is the cron expression for pruning. Default: @daily.
	Schedule string `yaml:"schedule"`
}

// RetrievalConfig bounds the project context added to each prompt.
type RetrievalConfig struct {
	MaxNotes  int `yaml:"max_notes"`
	MaxTokens int `yaml:"max_tokens"`
}

// ApplyDefaults fills zero values that depend on other fields.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Chat.ChatProvider == "" {
		if names := c.Providers.Names(); len(names) == 1 {
			c.Chat.ChatProvider = names[0]
		} else {
			c.Chat.ChatProvider = provider.OpenAI
		}
	}
	if c.Context.SummaryProvider == "" {
		c.Context.SummaryProvider = c.Chat.ChatProvider
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageSQLite
	}
	if c.Audit.Sink == "" {
		if c.Storage.Driver == StorageSQLite {
			c.Audit.Sink = AuditSQLite
		} else {
			c.Audit.Sink = AuditJSONL
		}
	}
}
