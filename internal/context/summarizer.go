package ctxengine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Inovico-app/inovy-sub002/internal/guard"
	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// ErrSummarizationFailed indicates that no summary could be produced.
var ErrSummarizationFailed = errors.New("ctxengine: summarization failed")

// Summarizer produces a condensed summary of a conversation segment.
type Summarizer interface {
	Summarize(ctx context.Context, conversationID string, messages []provider.LLMMessage) (string, error)
}

// Completer performs a single-shot completion on a named upstream,
// typically through the resource pool.
type Completer interface {
	Complete(ctx context.Context, name provider.Name, req provider.CompletionRequest) (provider.CompletionResponse, error)
}

const summaryInstructions = `You summarize meeting-assistant conversations for later reference.
Write a concise summary of the transcript with these sections:
Topics: the subjects discussed.
Decisions: what was agreed.
Action items: tasks with owners where known.
Open questions: anything left unresolved.
Use only information from the transcript. Omit empty sections.`

// summaryMaxTokens caps the length of a generated summary.
const summaryMaxTokens = 1024

// GuardedSummarizer summarizes through the interceptor chain: a
// single-shot call with auditing off and PII redacted, sent to one
// named upstream.
type GuardedSummarizer struct {
	completer Completer
	upstream  provider.Name
	deps      guard.Deps
}

// Compile-time interface check.
var _ Summarizer = (*GuardedSummarizer)(nil)

// NewGuardedSummarizer returns a summarizer calling upstream through c.
func NewGuardedSummarizer(c Completer, upstream provider.Name, deps guard.Deps) *GuardedSummarizer {
	return &GuardedSummarizer{completer: c, upstream: upstream, deps: deps}
}

// Summarize flattens messages into a transcript and asks the model for a
// structured summary.
func (s *GuardedSummarizer) Summarize(ctx context.Context, conversationID string, messages []provider.LLMMessage) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: no messages", ErrSummarizationFailed)
	}

	cfg := guard.Config{
		ConversationID: conversationID,
		ChatContext:    guard.ChatContextSummary,
		RequestType:    string(guard.ChatContextSummary),
		PII:            guard.PIIConfig{Mode: guard.PIIModeRedact},
	}.WithAudit(false)

	req := provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleSystem, Content: summaryInstructions},
			{Role: provider.MessageRoleUser, Content: FlattenTranscript(messages)},
		},
		MaxTokens: summaryMaxTokens,
	}

	resp, err := guard.New(s.deps, cfg).Invoke(ctx, req, func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
		return s.completer.Complete(ctx, s.upstream, req)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSummarizationFailed, err)
	}
	if resp.Moderated {
		return "", fmt.Errorf("%w: output withheld by moderation", ErrSummarizationFailed)
	}

	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return "", fmt.Errorf("%w: empty response", ErrSummarizationFailed)
	}
	return summary, nil
}
