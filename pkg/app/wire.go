package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Inovico-app/inovy-sub002/internal/audit"
	"github.com/Inovico-app/inovy-sub002/internal/config"
	ctxengine "github.com/Inovico-app/inovy-sub002/internal/context"
	"github.com/Inovico-app/inovy-sub002/internal/cron"
	"github.com/Inovico-app/inovy-sub002/internal/gateway"
	"github.com/Inovico-app/inovy-sub002/internal/guard"
	"github.com/Inovico-app/inovy-sub002/internal/memory"
	"github.com/Inovico-app/inovy-sub002/internal/orchestrator"
	"github.com/Inovico-app/inovy-sub002/internal/pii"
	"github.com/Inovico-app/inovy-sub002/internal/pool"
	"github.com/Inovico-app/inovy-sub002/internal/provider"
	"github.com/Inovico-app/inovy-sub002/internal/security"
	"github.com/Inovico-app/inovy-sub002/internal/telemetry"
	"github.com/Inovico-app/inovy-sub002/modules/memory/sqlite"
	"github.com/Inovico-app/inovy-sub002/modules/provider/anthropic"
	"github.com/Inovico-app/inovy-sub002/modules/provider/openai"
)

// BuildParams are process-level inputs to Build.
type BuildParams struct {
	Version string

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer
}

// App is the wired pipeline. Build creates it; Start and Stop run it.
type App struct {
	Logger       *slog.Logger
	Pool         *pool.Pool
	Orchestrator *orchestrator.Orchestrator
	Gateway      *gateway.Gateway
	Registry     *prometheus.Registry
	Notes        memory.NoteStore

	scheduler  *cron.Scheduler
	background *guard.Detached

	// closers run in reverse order on Stop.
	closers []func(context.Context) error
}

// Build wires every component from cfg. cfg must have been validated.
// On error, anything already opened is released.
func Build(ctx context.Context, cfg *config.Config, params BuildParams) (_ *App, err error) {
	a := &App{background: &guard.Detached{}}
	defer func() {
		if err != nil {
			_ = a.close(context.WithoutCancel(ctx))
		}
	}()

	credentials := security.NewCredentialStore()
	registerCredentials(credentials, cfg)
	redactor := security.NewRedactor()
	redactor.AddScrubber(pii.NewDetector())
	redactor.SyncCredentials(credentials)

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := NewLogger(cfg.Log, out, redactor)
	a.Logger = logger

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, params.Version)
	if err != nil {
		return nil, err
	}
	a.onClose(shutdownTracing)

	var (
		conversations memory.ConversationStore
		db            *sqlite.DB
	)
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		db, err = sqlite.Open(ctx, cfg.Storage.SQLite, cfg.DataDir, logger)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return db.Close() })
		conversations = db.Conversations()
		a.Notes = db.Notes()
	default:
		conversations = memory.NewInMemoryConversationStore()
		a.Notes = memory.NewInMemoryNoteStore()
	}

	auditStore, err := a.openAudit(cfg, db, redactor)
	if err != nil {
		return nil, err
	}

	p, err := pool.New(poolSpecs(cfg.Providers, logger), cfg.Pool, pool.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	a.Pool = p

	guardDeps := guard.Deps{
		Background:   a.background,
		AuditTimeout: cfg.Guard.AuditTimeout,
		Logger:       logger,
	}
	if auditStore != nil {
		guardDeps.Audit = auditStore
	}
	if cfg.Guard.Moderation {
		moderator, err := openai.NewModerator(*cfg.Providers.OpenAI, logger.With("component", "moderation"))
		if err != nil {
			return nil, fmt.Errorf("moderation: %w", err)
		}
		guardDeps.Classifier = moderator
	} else {
		logger.Warn("content moderation disabled, moderation stages pass every message")
	}

	summarizer := ctxengine.NewGuardedSummarizer(p, cfg.Context.SummaryProvider, guardDeps)
	contexts := ctxengine.NewManager(conversations, summarizer, cfg.Context.Config, logger)

	a.Orchestrator, err = orchestrator.New(orchestrator.Deps{
		Upstream: p,
		Guard:    guardDeps,
		Context:  contexts,
		Store:    conversations,
		Source:   memory.NewRetriever(a.Notes, cfg.Retrieval.MaxNotes, cfg.Retrieval.MaxTokens),
		Logger:   logger,
	}, cfg.Chat)
	if err != nil {
		return nil, err
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.Collector(),
	)

	limiter := security.NewRateLimiter(cfg.RateLimit)
	a.Gateway, err = gateway.New(cfg.Server, gateway.Deps{
		Generator: a.Orchestrator,
		Pool:      p,
		Registry:  a.Registry,
		Limiter:   limiter,
		Policy:    gateway.Policy{PII: cfg.Guard.PII, Audit: cfg.Guard.Audit},
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	a.scheduler = cron.NewScheduler(logger)
	a.Registry.MustRegister(a.scheduler.Collector())
	jobs := []cron.Job{
		&cron.PoolHealthJob{Pool: p, Interval: p.HealthCheckInterval(), Logger: logger},
		&limiterSweepJob{limiter: limiter, logger: logger},
	}
	if db != nil && cfg.Audit.Sink == config.AuditSQLite && cfg.Audit.Retention > 0 {
		jobs = append(jobs, &cron.AuditRetentionJob{
			Store:        db.Audit(),
			MaxAge:       cfg.Audit.Retention,
			Logger:       logger,
			ScheduleExpr: cfg.Audit.Schedule,
		})
	}
	for _, j := range jobs {
		if err := a.scheduler.RegisterJob(j); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// Start prunes expired audit entries once, then launches the scheduler
// and the HTTP gateway.
func (a *App) Start(ctx context.Context) error {
	if slices.Contains(a.scheduler.Jobs(), auditRetentionJob) {
		if err := a.scheduler.RunNow(ctx, auditRetentionJob); err != nil {
			return err
		}
	}
	if err := a.scheduler.Start(); err != nil {
		return err
	}
	if err := a.Gateway.Start(ctx); err != nil {
		_ = a.scheduler.Stop(ctx)
		return err
	}
	return nil
}

// Stop shuts the gateway down, waits for detached audit writes and
// releases storage and tracing.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if a.Gateway != nil {
		errs = append(errs, a.Gateway.Stop(ctx))
	}
	if a.scheduler != nil {
		errs = append(errs, a.scheduler.Stop(ctx))
	}
	a.background.Wait()
	errs = append(errs, a.close(ctx))
	return errors.Join(errs...)
}

const auditRetentionJob = "audit_retention"

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	for _, fn := range slices.Backward(a.closers) {
		errs = append(errs, fn(ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openAudit returns the configured audit sink, or nil when auditing is off.
func (a *App) openAudit(cfg *config.Config, db *sqlite.DB, redactor *security.Redactor) (audit.Store, error) {
	switch cfg.Audit.Sink {
	case config.AuditSQLite:
		return db.Audit(), nil
	case config.AuditJSONL:
		path := cfg.Audit.Path
		if path == "" {
			path = filepath.Join(cfg.DataDir, "audit.jsonl")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("audit: create directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("audit: open %s: %w", path, err)
		}
		a.onClose(func(context.Context) error { return f.Close() })
		return audit.NewJSONLStore(audit.JSONLConfig{Writer: f, Scrubber: redactor}), nil
	default:
		return nil, nil
	}
}

// poolSpecs builds one pool spec per configured provider.
func poolSpecs(providers config.ProvidersConfig, logger *slog.Logger) []pool.Spec {
	var specs []pool.Spec
	if c := providers.OpenAI; c != nil {
		l := logger.With("provider", provider.OpenAI)
		specs = append(specs, pool.Spec{Name: provider.OpenAI, Factory: func(int) (provider.Provider, error) {
			return openai.New(*c, l)
		}})
	}
	if c := providers.Anthropic; c != nil {
		l := logger.With("provider", provider.Anthropic)
		specs = append(specs, pool.Spec{Name: provider.Anthropic, Factory: func(int) (provider.Provider, error) {
			return anthropic.New(*c, l)
		}})
	}
	return specs
}

// registerCredentials records every configured secret so the log
// redactor can mask it.
func registerCredentials(store *security.CredentialStore, cfg *config.Config) {
	if c := cfg.Providers.OpenAI; c != nil {
		store.Set("openai_api_key", c.Credential())
	}
	if c := cfg.Providers.Anthropic; c != nil {
		store.Set("anthropic_api_key", c.Credential())
	}
	store.Set("gateway_bearer_token", cfg.Server.Auth.BearerToken)
	store.Set("gateway_basic_pass", cfg.Server.Auth.BasicPass)
	for k, v := range cfg.Telemetry.Headers {
		store.Set("telemetry_header_"+k, v)
	}
}

// NewLogger builds the process logger. Every record passes through the
// redactor before it reaches w.
func NewLogger(cfg config.LogConfig, w io.Writer, redactor *security.Redactor) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if cfg.Format == "json" {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor))
}

// limiterSweepJob drops idle rate-limit windows.
type limiterSweepJob struct {
	limiter *security.RateLimiter
	logger  *slog.Logger
}

func (j *limiterSweepJob) Name() string     { return "rate_limit_sweep" }
func (j *limiterSweepJob) Schedule() string { return "@every 10m" }

func (j *limiterSweepJob) Run(context.Context) error {
	if n := j.limiter.Forget(); n > 0 {
		j.logger.Debug("rate limiter: idle organizations forgotten", "count", n)
	}
	return nil
}
