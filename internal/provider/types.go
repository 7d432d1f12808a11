package provider

import "encoding/json"

// MessageRole identifies the sender of a message in a conversation.
type MessageRole string

// MessageRole constants for conversation messages.
const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// FinishReason describes why the model stopped generating.
type FinishReason string

// FinishReason constants for model completion termination.
const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolUse   FinishReason = "tool_use"
	FinishReasonFiltering FinishReason = "filtering"
)

// LLMMessage represents a single message in a conversation.
type LLMMessage struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Name      string      `json:"name,omitempty"`
	ToolID    string      `json:"tool_id,omitempty"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
}

// ToolCall represents a tool invocation recorded on an assistant message.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// CompletionRequest is the input to a Provider.Complete or Provider.Stream call.
type CompletionRequest struct {
	Messages    []LLMMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	Stop        []string     `json:"stop,omitempty"`
}

// LastUserIndex returns the index of the most recent user message, or -1.
func (r CompletionRequest) LastUserIndex() int {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == MessageRoleUser {
			return i
		}
	}
	return -1
}

// Clone returns a copy of the request whose message slice can be
// modified without affecting the original.
func (r CompletionRequest) Clone() CompletionRequest {
	out := r
	out.Messages = append([]LLMMessage(nil), r.Messages...)
	out.Stop = append([]string(nil), r.Stop...)
	return out
}

// CompletionResponse is the output of a Provider.Complete call.
type CompletionResponse struct {
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        TokenUsage   `json:"usage"`
}

// ChunkType tags the kind of event carried by a StreamChunk.
type ChunkType string

// Stream event types. Text events for one block ID always arrive as
// text-start, zero or more text-delta, then text-end.
const (
	ChunkTextStart ChunkType = "text-start"
	ChunkTextDelta ChunkType = "text-delta"
	ChunkTextEnd   ChunkType = "text-end"
	ChunkFinish    ChunkType = "finish"
	ChunkError     ChunkType = "error"
)

// StreamChunk represents one event of a streaming completion response.
type StreamChunk struct {
	Type  ChunkType `json:"type"`
	ID    string    `json:"id,omitempty"`
	Delta string    `json:"delta,omitempty"`

	// Replace marks a corrective text-delta: the visible text of block
	// ID becomes exactly Delta instead of having Delta appended.
	Replace bool `json:"replace,omitempty"`

	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        *TokenUsage  `json:"usage,omitempty"`
	Err          error        `json:"-"`
}

// TokenUsage tracks token consumption for a completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of two usages.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}
