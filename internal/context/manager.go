package ctxengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// ErrNoSummarizer is returned by Summarize when the manager has none.
var ErrNoSummarizer = errors.New("ctxengine: no summarizer configured")

// Summary is a persisted conversation summary. Covers is the number of
// leading history messages it replaces.
type Summary struct {
	Text   string
	Covers int
}

// Store is the conversation persistence the manager reads and writes.
type Store interface {
	// LoadMessages returns the full history in chronological order.
	LoadMessages(ctx context.Context, conversationID string) ([]provider.LLMMessage, error)

	// GetSummary returns the stored summary, or the zero Summary.
	GetSummary(ctx context.Context, conversationID string) (Summary, error)

	// SaveSummary replaces the stored summary.
	SaveSummary(ctx context.Context, conversationID string, s Summary) error
}

// Window is the context prepared for one model call.
type Window struct {
	// Messages is the pruned, chronological tail of the history.
	Messages []provider.LLMMessage

	// Summary condenses the history before Messages. Empty when none.
	Summary string

	// Tokens is the estimate of Messages plus Summary.
	Tokens int

	// Summarized is true when Summary was generated by this call.
	Summarized bool
}

// Manager builds token-bounded windows over stored conversations.
// It is safe for concurrent use when its Store and Summarizer are.
type Manager struct {
	store      Store
	summarizer Summarizer
	config     Config
	logger     *slog.Logger
}

// NewManager creates a Manager. A nil summarizer disables summary
// generation; cached summaries are still used.
func NewManager(store Store, summarizer Summarizer, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:      store,
		summarizer: summarizer,
		config:     cfg.withDefaults(),
		logger:     logger,
	}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.config }

// Summarize summarizes messages, which must be the leading messages of
// the conversation, and persists the result. A persistence failure is
// logged; the summary is still returned.
func (m *Manager) Summarize(ctx context.Context, conversationID string, messages []provider.LLMMessage) (string, error) {
	if m.summarizer == nil {
		return "", ErrNoSummarizer
	}
	text, err := m.summarizer.Summarize(ctx, conversationID, messages)
	if err != nil {
		return "", err
	}
	if err := m.store.SaveSummary(ctx, conversationID, Summary{Text: text, Covers: len(messages)}); err != nil {
		m.logger.Warn("ctxengine: saving summary failed", "conversation", conversationID, "error", err)
	}
	return text, nil
}

// GetContext loads the conversation and returns a window that fits in
// maxTokens minus the reserve. A zero maxTokens uses the configured
// budget. Load failures are returned; summarization failures are logged
// and the window is built without a summary.
func (m *Manager) GetContext(ctx context.Context, conversationID string, maxTokens int) (Window, error) {
	if maxTokens <= 0 {
		maxTokens = m.config.MaxContextTokens
	}

	history, err := m.store.LoadMessages(ctx, conversationID)
	if err != nil {
		return Window{}, fmt.Errorf("ctxengine: loading history: %w", err)
	}

	summary, err := m.store.GetSummary(ctx, conversationID)
	if err != nil {
		m.logger.Warn("ctxengine: loading summary failed", "conversation", conversationID, "error", err)
		summary = Summary{}
	}
	if summary.Covers > len(history) {
		summary = Summary{}
	}

	var fresh bool
	if m.needsSummary(history, summary) {
		split := m.summarySplit(len(history))
		text, err := m.Summarize(ctx, conversationID, history[:split])
		switch {
		case err == nil:
			summary = Summary{Text: text, Covers: split}
			fresh = true
		case errors.Is(err, ErrNoSummarizer):
		default:
			m.logger.Warn("ctxengine: summarization failed, continuing without summary",
				"conversation", conversationID, "error", err)
		}
	}

	tail := history
	if summary.Text != "" {
		tail = history[summary.Covers:]
	} else {
		summary = Summary{}
	}

	reserve := m.config.ReserveTokens + EstimateTokens(summary.Text)
	msgs := PruneToTokenBudget(tail, maxTokens, reserve)

	return Window{
		Messages:   msgs,
		Summary:    summary.Text,
		Tokens:     EstimateMessages(msgs) + EstimateTokens(summary.Text),
		Summarized: fresh,
	}, nil
}

// needsSummary reports whether the history past the cached summary is
// long enough to summarize. A cached summary is reused until more than
// RetainRecent messages have accumulated beyond the verbatim tail.
func (m *Manager) needsSummary(history []provider.LLMMessage, cached Summary) bool {
	if len(history) < 2 {
		return false
	}
	if cached.Text != "" {
		uncovered := len(history) - cached.Covers
		return uncovered > 2*m.config.RetainRecent
	}
	return m.shouldSummarize(len(history), EstimateMessages(history))
}

func (m *Manager) shouldSummarize(count, tokens int) bool {
	return tokens > m.config.SummaryThreshold || count > m.config.MaxMessages
}

// summarySplit returns how many leading messages to summarize, keeping
// RetainRecent verbatim but always summarizing at least one.
func (m *Manager) summarySplit(n int) int {
	split := n - m.config.RetainRecent
	if split < 1 {
		split = n - 1
	}
	return split
}
