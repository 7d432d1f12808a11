// Package orchestrator turns a user prompt into one guarded chat turn:
// it assembles the context window, runs the interceptor chain around a
// pooled model call and records the turn in the conversation store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	ctxengine "github.com/Inovico-app/inovy-sub002/internal/context"
	"github.com/Inovico-app/inovy-sub002/internal/guard"
	"github.com/Inovico-app/inovy-sub002/internal/memory"
	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// Sentinel errors.
var (
	ErrEmptyPrompt = errors.New("orchestrator: empty prompt")
	ErrNoUpstream  = errors.New("orchestrator: no upstream configured")
)

// summaryPrefix introduces the conversation summary in the prompt.
const summaryPrefix = "Summary of earlier conversation:\n"

// Upstream performs model calls against a named provider, typically the
// resource pool.
type Upstream interface {
	Complete(ctx context.Context, name provider.Name, req provider.CompletionRequest) (provider.CompletionResponse, error)
	Stream(ctx context.Context, name provider.Name, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
}

// ContextSource returns project knowledge relevant to a query, already
// formatted for the prompt. An empty string means nothing relevant.
type ContextSource interface {
	Retrieve(ctx context.Context, query, projectID string) (string, error)
}

// Config holds the chat-turn settings.
type Config struct {
	// ChatProvider is the upstream serving chat turns. Default: openai.
	ChatProvider provider.Name `yaml:"chat_provider"`

	// SystemPrompt leads every chat request.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxContextTokens bounds the history window. Zero uses the context
	// manager's budget.
	MaxContextTokens int `yaml:"max_context_tokens"`

	// MaxTokens caps the completion. Zero uses the provider default.
	MaxTokens int `yaml:"max_tokens"`

	Temperature *float64 `yaml:"temperature"`
}

func (c Config) withDefaults() Config {
	if c.ChatProvider == "" {
		c.ChatProvider = provider.OpenAI
	}
	return c
}

// Deps are the collaborators of an Orchestrator. Upstream is required.
type Deps struct {
	Upstream Upstream
	Guard    guard.Deps

	// Context builds history windows. When nil, turns carry no history.
	Context *ctxengine.Manager

	// Store records completed turns. When nil, nothing is persisted.
	Store memory.ConversationStore

	// Source supplies retrieved project context. Optional.
	Source ContextSource

	Logger *slog.Logger
}

// Result is the outcome of a single-shot turn.
type Result struct {
	Text         string                `json:"text"`
	Usage        provider.TokenUsage   `json:"usage"`
	FinishReason provider.FinishReason `json:"finishReason,omitempty"`
	Moderated    bool                  `json:"moderated,omitempty"`
}

// Orchestrator runs guarded chat turns. It is safe for concurrent use.
type Orchestrator struct {
	deps   Deps
	config Config
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Upstream == nil {
		return nil, ErrNoUpstream
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Guard.Logger == nil {
		deps.Guard.Logger = logger
	}
	return &Orchestrator{deps: deps, config: cfg.withDefaults(), logger: logger}, nil
}

// Generate runs one single-shot turn. A *guard.Violation is returned
// unchanged so callers can show its UserMessage.
func (o *Orchestrator) Generate(ctx context.Context, prompt string, cfg guard.Config) (Result, error) {
	req, err := o.buildRequest(ctx, prompt, cfg)
	if err != nil {
		return Result{}, err
	}

	var sanitized string
	chain := guard.New(o.deps.Guard, cfg)
	resp, err := chain.Invoke(ctx, req, func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
		sanitized = userText(req)
		return o.deps.Upstream.Complete(ctx, o.config.ChatProvider, req)
	})
	if err != nil {
		return Result{}, err
	}

	o.persist(ctx, cfg.ConversationID, sanitized, resp.Text)
	return Result{
		Text:         resp.Text,
		Usage:        resp.Usage,
		FinishReason: resp.FinishReason,
		Moderated:    resp.Moderated,
	}, nil
}

// GenerateStream runs one streaming turn. Violations raised before the
// model call are returned directly; the channel closes after the turn
// has been recorded.
func (o *Orchestrator) GenerateStream(ctx context.Context, prompt string, cfg guard.Config) (<-chan provider.StreamChunk, error) {
	req, err := o.buildRequest(ctx, prompt, cfg)
	if err != nil {
		return nil, err
	}

	var sanitized string
	chain := guard.New(o.deps.Guard, cfg)
	src, err := chain.InvokeStreaming(ctx, req, func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
		sanitized = userText(req)
		return o.deps.Upstream.Stream(ctx, o.config.ChatProvider, req)
	})
	if err != nil {
		return nil, err
	}

	out := make(chan provider.StreamChunk)
	go o.forward(ctx, src, out, cfg.ConversationID, sanitized)
	return out, nil
}

// forward relays src to out while tracking the delivered text of each
// block. A turn that completes is persisted before out closes.
func (o *Orchestrator) forward(ctx context.Context, src <-chan provider.StreamChunk, out chan<- provider.StreamChunk, conversationID, userMsg string) {
	defer close(out)

	acc := newTranscript()
	completed := true
	for chunk := range src {
		acc.add(chunk)
		if chunk.Type == provider.ChunkError {
			completed = false
		}
		select {
		case out <- chunk:
		case <-ctx.Done():
			completed = false
			// The guard relay closes src once it observes ctx.
			for range src {
			}
			return
		}
	}
	if !completed || ctx.Err() != nil {
		return
	}
	o.persist(ctx, conversationID, userMsg, acc.text())
}

func (o *Orchestrator) buildRequest(ctx context.Context, prompt string, cfg guard.Config) (provider.CompletionRequest, error) {
	if strings.TrimSpace(prompt) == "" {
		return provider.CompletionRequest{}, ErrEmptyPrompt
	}

	var msgs []provider.LLMMessage
	if o.config.SystemPrompt != "" {
		msgs = append(msgs, system(o.config.SystemPrompt))
	}

	var window ctxengine.Window
	if o.deps.Context != nil && cfg.ConversationID != "" {
		w, err := o.deps.Context.GetContext(ctx, cfg.ConversationID, o.config.MaxContextTokens)
		if err != nil {
			return provider.CompletionRequest{}, fmt.Errorf("orchestrator: %w", err)
		}
		window = w
	}
	if window.Summary != "" {
		msgs = append(msgs, system(summaryPrefix+window.Summary))
	}

	if o.deps.Source != nil {
		section, err := o.deps.Source.Retrieve(ctx, prompt, cfg.ProjectID)
		switch {
		case err != nil:
			o.logger.Warn("orchestrator: context retrieval failed, continuing without it",
				"conversation", cfg.ConversationID, "error", err)
		case section != "":
			msgs = append(msgs, system(section))
		}
	}

	msgs = append(msgs, window.Messages...)
	msgs = append(msgs, provider.LLMMessage{Role: provider.MessageRoleUser, Content: prompt})

	return provider.CompletionRequest{
		Messages:    msgs,
		MaxTokens:   o.config.MaxTokens,
		Temperature: o.config.Temperature,
	}, nil
}

// persist records the user turn and the answer. Failures are logged; the
// caller already holds the answer.
func (o *Orchestrator) persist(ctx context.Context, conversationID, userMsg, answer string) {
	if o.deps.Store == nil || conversationID == "" {
		return
	}
	msgs := []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: userMsg}}
	if answer != "" {
		msgs = append(msgs, provider.LLMMessage{Role: provider.MessageRoleAssistant, Content: answer})
	}
	if err := o.deps.Store.Append(context.WithoutCancel(ctx), conversationID, msgs...); err != nil {
		o.logger.Error("orchestrator: persisting turn failed", "conversation", conversationID, "error", err)
	}
}

func system(text string) provider.LLMMessage {
	return provider.LLMMessage{Role: provider.MessageRoleSystem, Content: text}
}

func userText(req provider.CompletionRequest) string {
	if i := req.LastUserIndex(); i >= 0 {
		return req.Messages[i].Content
	}
	return ""
}
