package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Inovico-app/inovy-sub002/internal/cron"
	"github.com/Inovico-app/inovy-sub002/internal/guard"
	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// Validate checks the structural validity of a Config. Call ApplyDefaults
// first; every problem found is reported.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("config: log.level: %w", err))
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("config: log.format must be text or json, got %q", cfg.Log.Format))
	}

	if err := cfg.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: server: %w", err))
	}

	errs = append(errs, validateProviders(cfg)...)
	errs = append(errs, validateStorage(cfg)...)

	if cfg.Retrieval.MaxNotes < 0 || cfg.Retrieval.MaxTokens < 0 {
		errs = append(errs, errors.New("config: retrieval limits must not be negative"))
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func validateProviders(cfg *Config) []error {
	var errs []error

	if len(cfg.Providers.Names()) == 0 {
		errs = append(errs, errors.New("config: at least one provider must be configured"))
	}

	for _, ref := range []struct {
		field string
		name  provider.Name
	}{
		{"chat.chat_provider", cfg.Chat.ChatProvider},
		{"context.summary_provider", cfg.Context.SummaryProvider},
	} {
		switch ref.name {
		case provider.OpenAI, provider.Anthropic:
			if !cfg.Providers.Has(ref.name) {
				errs = append(errs, fmt.Errorf("config: %s references unconfigured provider %q", ref.field, ref.name))
			}
		default:
			errs = append(errs, fmt.Errorf("config: %s: unknown provider %q", ref.field, ref.name))
		}
	}

	if cfg.Guard.Moderation && cfg.Providers.OpenAI == nil {
		errs = append(errs, errors.New("config: guard.moderation requires the openai provider"))
	}
	if cfg.Guard.AuditTimeout < 0 {
		errs = append(errs, errors.New("config: guard.audit_timeout must not be negative"))
	}
	switch cfg.Guard.PII.Mode {
	case "", guard.PIIModeRedact, guard.PIIModeBlock:
	default:
		errs = append(errs, fmt.Errorf("config: guard.pii.mode must be redact or block, got %q", cfg.Guard.PII.Mode))
	}
	if c := cfg.Guard.PII.MinConfidence; c < 0 || c > 1 {
		errs = append(errs, fmt.Errorf("config: guard.pii.min_confidence must be within [0, 1], got %v", c))
	}
	return errs
}

func validateStorage(cfg *Config) []error {
	var errs []error

	switch cfg.Storage.Driver {
	case StorageSQLite, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("config: storage.driver must be sqlite or memory, got %q", cfg.Storage.Driver))
	}

	switch cfg.Audit.Sink {
	case AuditSQLite:
		if cfg.Storage.Driver != StorageSQLite {
			errs = append(errs, errors.New("config: audit.sink sqlite requires storage.driver sqlite"))
		}
	case AuditJSONL, AuditNone:
	default:
		errs = append(errs, fmt.Errorf("config: audit.sink must be sqlite, jsonl or none, got %q", cfg.Audit.Sink))
	}

	if cfg.Audit.Retention < 0 {
		errs = append(errs, errors.New("config: audit.retention must not be negative"))
	}
	if cfg.Audit.Schedule != "" {
		if err := cron.ValidateSchedule(cfg.Audit.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("config: audit.schedule: %w", err))
		}
	}
	return errs
}
