package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Inovico-app/inovy-sub002/internal/pii"
	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// defaultBackground serves chains built without Deps.Background.
var defaultBackground = &Detached{}

// Chain is the fixed seven-stage pipeline for one request.
type Chain struct {
	cfg    Config
	stages [7]Interceptor
	audit  *auditStage
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New builds the chain for one request. The stage order is fixed.
func New(deps Deps, cfg Config) *Chain {
	cfg = cfg.withDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("organization", cfg.OrganizationID, "conversation", cfg.ConversationID)

	detector := deps.Detector
	if detector == nil {
		detector = pii.NewDetector()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/Inovico-app/inovy-sub002/internal/guard")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	background := deps.Background
	if background == nil {
		background = defaultBackground
	}
	timeout := deps.AuditTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	auditor := &auditStage{
		store:      deps.Audit,
		background: background,
		timeout:    timeout,
		logger:     logger,
		now:        now,
	}

	return &Chain{
		cfg: cfg,
		stages: [7]Interceptor{
			&inputModeration{classifier: deps.Classifier, logger: logger},
			&piiInput{detector: detector, logger: logger},
			&injectionGuard{logger: logger},
			&topicGuard{logger: logger},
			&piiOutput{detector: detector, logger: logger},
			&outputValidation{classifier: deps.Classifier, logger: logger},
			auditor,
		},
		audit:  auditor,
		logger: logger,
		tracer: tracer,
		now:    now,
	}
}

// Stages returns the stage order of the chain.
func (c *Chain) Stages() []Stage {
	out := make([]Stage, len(c.stages))
	for i, s := range c.stages {
		out[i] = s.Stage()
	}
	return out
}

// Config returns the effective per-request configuration.
func (c *Chain) Config() Config { return c.cfg }

// Invoke runs a single-shot call through the chain. A *Violation from
// stages 1-4 is returned before model is called.
func (c *Chain) Invoke(ctx context.Context, req provider.CompletionRequest, model ModelFunc) (Response, error) {
	call := c.newCall(req, false)
	if err := c.before(ctx, call); err != nil {
		return Response{}, err
	}

	out, err := model(ctx, call.Request)
	if err != nil {
		c.audit.recordFailed(ctx, call)
		return Response{}, err
	}

	resp := &Response{Text: out.Content, Usage: out.Usage, FinishReason: out.FinishReason}
	for _, s := range c.stages[StagePIIOutput-1:] {
		if err := c.traced(ctx, s.Stage(), func(ctx context.Context) error {
			return s.AfterCall(ctx, call, resp)
		}); err != nil {
			c.audit.recordFailed(ctx, call)
			return Response{}, fmt.Errorf("guard: %s: %w", s.Stage(), err)
		}
	}
	return *resp, nil
}

// InvokeStreaming runs stages 1-4, opens the stream and relays it
// through the per-block state machine. A *Violation is returned before
// open is called. The returned channel closes when the upstream ends or
// ctx is cancelled.
func (c *Chain) InvokeStreaming(ctx context.Context, req provider.CompletionRequest, open StreamFunc) (<-chan provider.StreamChunk, error) {
	call := c.newCall(req, true)
	if err := c.before(ctx, call); err != nil {
		return nil, err
	}

	src, err := open(ctx, call.Request)
	if err != nil {
		c.audit.recordFailed(ctx, call)
		return nil, err
	}

	out := make(chan provider.StreamChunk)
	r := &relay{chain: c, call: call, out: out, blocks: make(map[string]*strings.Builder)}
	go r.run(ctx, src)
	return out, nil
}

func (c *Chain) newCall(req provider.CompletionRequest, streaming bool) *Call {
	return &Call{
		Config:    c.cfg,
		Request:   req.Clone(),
		Streaming: streaming,
		Started:   c.now(),
	}
}

// before runs stages 1-4 in order, stopping at the first error.
func (c *Chain) before(ctx context.Context, call *Call) error {
	for _, s := range c.stages[:StageTopic] {
		err := c.traced(ctx, s.Stage(), func(ctx context.Context) error {
			return s.BeforeCall(ctx, call)
		})
		if err == nil {
			continue
		}
		if v, ok := AsViolation(err); ok {
			c.audit.recordBlocked(ctx, call, v)
			return v
		}
		return fmt.Errorf("guard: %s: %w", s.Stage(), err)
	}
	return nil
}

// traced runs fn inside a span named after the stage.
func (c *Chain) traced(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "guard."+stage.String())
	defer span.End()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	if v, ok := AsViolation(err); ok {
		span.SetAttributes(attribute.String("guard.violation", string(v.Kind)))
		span.SetStatus(codes.Error, "blocked")
		return err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "stage failed")
	return err
}

// afterBlock runs the block-level stages (5 and 6) on a completed block.
func (c *Chain) afterBlock(ctx context.Context, call *Call, block *Block) error {
	for _, s := range c.stages[StagePIIOutput-1 : StageAudit-1] {
		if err := c.traced(ctx, s.Stage(), func(ctx context.Context) error {
			return s.AfterBlock(ctx, call, block)
		}); err != nil {
			return fmt.Errorf("guard: %s: %w", s.Stage(), err)
		}
	}
	return nil
}

// afterStream runs the stream-completion hooks of stages 5-7.
func (c *Chain) afterStream(ctx context.Context, call *Call, resp *Response) {
	for _, s := range c.stages[StagePIIOutput-1:] {
		if err := c.traced(ctx, s.Stage(), func(ctx context.Context) error {
			return s.AfterStream(ctx, call, resp)
		}); err != nil {
			c.logger.Warn("guard: stream completion stage failed", "stage", s.Stage().String(), "error", err)
		}
	}
}
