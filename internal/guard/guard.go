// Package guard wraps every model invocation in a fixed chain of seven
// policy stages: input moderation, PII input, injection, topic, PII
// output, output validation and audit. The chain is built once per
// request and supports single-shot and streaming calls.
package guard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Inovico-app/inovy-sub002/internal/audit"
	"github.com/Inovico-app/inovy-sub002/internal/pii"
	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// Stage identifies one position in the chain.
type Stage int

// Chain stages in execution order.
const (
	StageInputModeration Stage = iota + 1
	StagePIIInput
	StageInjection
	StageTopic
	StagePIIOutput
	StageOutputValidation
	StageAudit
)

var stageNames = map[Stage]string{
	StageInputModeration:  "input_moderation",
	StagePIIInput:         "pii_input",
	StageInjection:        "injection",
	StageTopic:            "topic",
	StagePIIOutput:        "pii_output",
	StageOutputValidation: "output_validation",
	StageAudit:            "audit",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return "unknown"
}

// PIIMode selects how the input stage treats detected personal data.
type PIIMode string

// PII handling modes.
const (
	PIIModeRedact PIIMode = "redact"
	PIIModeBlock  PIIMode = "block"
)

// ChatContext tells the chain what kind of call it is guarding.
type ChatContext string

// Known chat contexts.
const (
	ChatContextChat    ChatContext = "chat"
	ChatContextSummary ChatContext = "conversation-summary"
)

// PIIConfig controls the PII stages.
type PIIConfig struct {
	Mode          PIIMode `json:"mode" yaml:"mode"`
	MinConfidence float64 `json:"minConfidence" yaml:"min_confidence"`
}

// AuditConfig controls the audit stage. A nil Enabled means enabled.
type AuditConfig struct {
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled"`
}

// Config is the per-request configuration of a chain.
type Config struct {
	OrganizationID string      `json:"organizationId"`
	UserID         string      `json:"userId"`
	ConversationID string      `json:"conversationId"`
	ProjectID      string      `json:"projectId,omitempty"`
	ChatContext    ChatContext `json:"chatContext"`
	RequestType    string      `json:"requestType"`
	PII            PIIConfig   `json:"pii"`
	Audit          AuditConfig `json:"audit"`
}

// withDefaults returns a copy of c with zero-value fields filled in.
func (c Config) withDefaults() Config {
	if c.ChatContext == "" {
		c.ChatContext = ChatContextChat
	}
	if c.PII.Mode == "" {
		c.PII.Mode = PIIModeRedact
	}
	if c.PII.MinConfidence <= 0 || c.PII.MinConfidence > 1 {
		c.PII.MinConfidence = pii.DefaultMinConfidence
	}
	return c
}

// AuditEnabled reports whether the audit stage records this request.
func (c Config) AuditEnabled() bool {
	return c.Audit.Enabled == nil || *c.Audit.Enabled
}

// WithAudit returns a copy of c with auditing switched on or off.
func (c Config) WithAudit(enabled bool) Config {
	c.Audit.Enabled = &enabled
	return c
}

// Classification is the verdict of a content-classification oracle.
type Classification struct {
	Flagged    bool     `json:"flagged"`
	Categories []string `json:"categories,omitempty"`
}

// Classifier is a content-moderation oracle.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// Detector finds and redacts personal data.
type Detector interface {
	Detect(text string, minConfidence float64) []pii.Detection
	Redact(text string, dets []pii.Detection) string
}

// Detached runs best-effort background tasks that must outlive the
// request that spawned them. Wait blocks until all spawned tasks end.
type Detached struct {
	wg sync.WaitGroup
}

// Go runs fn in a new goroutine tracked by d.
func (d *Detached) Go(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// Wait blocks until every task started with Go has returned.
func (d *Detached) Wait() {
	d.wg.Wait()
}

// Deps are the long-lived collaborators shared by every chain.
type Deps struct {
	// Classifier is the moderation oracle. When nil, both moderation
	// stages log and pass (fail-open).
	Classifier Classifier

	// Detector finds personal data. Defaults to pii.NewDetector().
	Detector Detector

	// Audit receives one entry per invocation. When nil, auditing is off.
	Audit audit.Store

	// Background runs detached audit writes. Defaults to an internal group.
	Background *Detached

	// AuditTimeout bounds one detached audit write. Default: 10s.
	AuditTimeout time.Duration

	Logger *slog.Logger
	Tracer trace.Tracer

	// Now is injectable for testing. Defaults to time.Now.
	Now func() time.Time
}

// ModelFunc performs the single-shot model call being guarded.
type ModelFunc func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)

// StreamFunc opens the streaming model call being guarded.
type StreamFunc func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)

// Call is the state carried through the chain for one invocation.
// Stages 1-4 may rewrite Request; later stages read it.
type Call struct {
	Config    Config
	Request   provider.CompletionRequest
	Streaming bool
	Started   time.Time

	// InputPII lists the PII types found in the latest user message.
	InputPII []string
}

// LatestUserText returns the content of the most recent user message.
func (c *Call) LatestUserText() string {
	if i := c.Request.LastUserIndex(); i >= 0 {
		return c.Request.Messages[i].Content
	}
	return ""
}

func (c *Call) setLatestUserText(s string) {
	if i := c.Request.LastUserIndex(); i >= 0 {
		c.Request.Messages[i].Content = s
	}
}

// Response is the model output as seen by the after-call stages.
type Response struct {
	Text         string
	Usage        provider.TokenUsage
	FinishReason provider.FinishReason

	// Moderated is set when output validation replaced the text.
	Moderated bool

	// Aborted is set when a stream ended before upstream completion.
	Aborted bool
}

// Block is one completed streamed text block.
type Block struct {
	ID        string
	Text      string
	Moderated bool
}

// Interceptor is one stage of the chain.
type Interceptor interface {
	Stage() Stage

	// BeforeCall runs ahead of the model call. Returning an error,
	// typically a *Violation, stops the chain.
	BeforeCall(ctx context.Context, call *Call) error

	// AfterCall runs on the complete single-shot response.
	AfterCall(ctx context.Context, call *Call, resp *Response) error

	// AfterBlock runs when a streamed text block ends.
	AfterBlock(ctx context.Context, call *Call, block *Block) error

	// AfterStream runs once the stream is over, with the accumulated text.
	AfterStream(ctx context.Context, call *Call, resp *Response) error
}

// passthrough provides no-op implementations for stages that only act
// at some of the hook points.
type passthrough struct{}

func (passthrough) BeforeCall(context.Context, *Call) error             { return nil }
func (passthrough) AfterCall(context.Context, *Call, *Response) error   { return nil }
func (passthrough) AfterBlock(context.Context, *Call, *Block) error     { return nil }
func (passthrough) AfterStream(context.Context, *Call, *Response) error { return nil }
