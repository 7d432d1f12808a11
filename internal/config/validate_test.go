package config

import (
	"strings"
	"testing"
	"time"

	"github.com/Inovico-app/inovy-sub002/internal/gateway"
	"github.com/Inovico-app/inovy-sub002/internal/provider"
	"github.com/Inovico-app/inovy-sub002/modules/provider/anthropic"
	"github.com/Inovico-app/inovy-sub002/modules/provider/openai"
)

// validConfig returns a defaulted config with both providers.
func validConfig() *Config {
	cfg := &Config{
		Version: "1",
		Providers: ProvidersConfig{
			OpenAI:    &openai.Config{},
			Anthropic: &anthropic.Config{},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()

	if err := Validate(validConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"missing version", func(c *Config) { c.Version = "" }, "version field is required"},
		{"unsupported version", func(c *Config) { c.Version = "99" }, "unsupported version"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad bind", func(c *Config) { c.Server = gateway.Config{Bind: "nowhere"} }, "server"},
		{"no providers", func(c *Config) { c.Providers = ProvidersConfig{} }, "at least one provider"},
		{"chat provider unconfigured", func(c *Config) {
			c.Providers.Anthropic = nil
			c.Chat.ChatProvider = provider.Anthropic
		}, "chat.chat_provider references unconfigured"},
		{"unknown summary provider", func(c *Config) { c.Context.SummaryProvider = "mistral" }, "unknown provider"},
		{"moderation without openai", func(c *Config) {
			c.Providers.OpenAI = nil
			c.Chat.ChatProvider = provider.Anthropic
			c.Context.SummaryProvider = provider.Anthropic
			c.Guard.Moderation = true
		}, "guard.moderation requires"},
		{"unknown pii mode", func(c *Config) { c.Guard.PII.Mode = "mask" }, "guard.pii.mode"},
		{"pii confidence above one", func(c *Config) { c.Guard.PII.MinConfidence = 5 }, "guard.pii.min_confidence"},
		{"negative pii confidence", func(c *Config) { c.Guard.PII.MinConfidence = -0.1 }, "guard.pii.min_confidence"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.driver"},
		{"sqlite audit without sqlite", func(c *Config) { c.Storage.Driver = StorageMemory }, "audit.sink sqlite requires"},
		{"unknown sink", func(c *Config) { c.Audit.Sink = "syslog" }, "audit.sink must be"},
		{"bad schedule", func(c *Config) { c.Audit.Schedule = "every tuesday" }, "audit.schedule"},
		{"negative retention", func(c *Config) { c.Audit.Retention = -time.Hour }, "audit.retention"},
		{"telemetry without endpoint", func(c *Config) { c.Telemetry.Enabled = true }, "telemetry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.Storage.Driver = "postgres"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"version", "at least one provider", "storage.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q: %v", want, err)
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	t.Run("single provider becomes chat provider", func(t *testing.T) {
		t.Parallel()
		cfg := &Config{Providers: ProvidersConfig{Anthropic: &anthropic.Config{}}}
		cfg.ApplyDefaults()
		if cfg.Chat.ChatProvider != provider.Anthropic || cfg.Context.SummaryProvider != provider.Anthropic {
			t.Errorf("chat %q, summary %q", cfg.Chat.ChatProvider, cfg.Context.SummaryProvider)
		}
	})

	t.Run("audit sink follows driver", func(t *testing.T) {
		t.Parallel()
		cfg := &Config{Storage: StorageConfig{Driver: StorageMemory}}
		cfg.ApplyDefaults()
		if cfg.Audit.Sink != AuditJSONL {
			t.Errorf("sink = %q, want jsonl", cfg.Audit.Sink)
		}

		cfg = &Config{}
		cfg.ApplyDefaults()
		if cfg.Storage.Driver != StorageSQLite || cfg.Audit.Sink != AuditSQLite {
			t.Errorf("driver %q, sink %q", cfg.Storage.Driver, cfg.Audit.Sink)
		}
	})
}
