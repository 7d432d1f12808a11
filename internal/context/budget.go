package ctxengine

import (
	"strings"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// EstimateTokens approximates the token count of text as ceil(len/4).
// Every budget in the package is computed with it.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// EstimateMessage returns the estimated tokens of one message, counting
// inlined tool-call records.
func EstimateMessage(m provider.LLMMessage) int {
	if len(m.ToolCalls) == 0 {
		return EstimateTokens(m.Content)
	}
	return EstimateTokens(m.Content + toolCallText(m.ToolCalls))
}

// EstimateMessages returns the total estimated tokens for a slice of messages.
func EstimateMessages(messages []provider.LLMMessage) int {
	total := 0
	for i := range messages {
		total += EstimateMessage(messages[i])
	}
	return total
}

// ShouldSummarize reports whether a history of messageCount messages and
// tokenCount estimated tokens needs a summary.
func ShouldSummarize(messageCount, tokenCount, threshold int) bool {
	return tokenCount > threshold || messageCount > DefaultMaxMessages
}

// PruneToTokenBudget keeps the most recent messages whose combined
// estimate fits in maxTokens-reserveTokens. A history that already fits
// is returned unchanged. Walking backward, it stops at the first message
// that would overflow, so a large message hides everything older than it.
// The most recent message is always kept, even when it alone overflows.
func PruneToTokenBudget(messages []provider.LLMMessage, maxTokens, reserveTokens int) []provider.LLMMessage {
	if len(messages) == 0 {
		return messages
	}
	budget := maxTokens - reserveTokens
	if EstimateMessages(messages) <= budget {
		return messages
	}

	start := len(messages)
	used := 0
	for i := len(messages) - 1; i >= 0; i-- {
		t := EstimateMessage(messages[i])
		if used+t > budget {
			break
		}
		used += t
		start = i
	}
	if start == len(messages) {
		start = len(messages) - 1
	}

	out := make([]provider.LLMMessage, len(messages)-start)
	copy(out, messages[start:])
	return out
}

// FlattenTranscript renders messages as role-labelled lines with tool
// calls inlined, for use as summarization input.
func FlattenTranscript(messages []provider.LLMMessage) string {
	var b strings.Builder
	for i := range messages {
		m := messages[i]
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(roleLabel(m))
		b.WriteString(": ")
		b.WriteString(m.Content)
		if len(m.ToolCalls) > 0 {
			if m.Content != "" {
				b.WriteByte(' ')
			}
			b.WriteString(toolCallText(m.ToolCalls))
		}
	}
	return b.String()
}

// roleLabel avoids a "System:" prefix, which the injection stage treats
// as a delimiter.
func roleLabel(m provider.LLMMessage) string {
	switch m.Role {
	case provider.MessageRoleUser:
		return "User"
	case provider.MessageRoleAssistant:
		return "Assistant"
	case provider.MessageRoleTool:
		if m.ToolID != "" {
			return "Tool result (" + m.ToolID + ")"
		}
		return "Tool result"
	default:
		return "Note"
	}
}

func toolCallText(calls []provider.ToolCall) string {
	var b strings.Builder
	for i, tc := range calls {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("[tool call ")
		b.WriteString(tc.Name)
		b.WriteByte('(')
		b.Write(tc.Arguments)
		b.WriteString(")]")
	}
	return b.String()
}
