package openai

import (
	"strings"

	sdkopenai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// buildParams maps a CompletionRequest onto Chat Completions parameters.
func buildParams(req provider.CompletionRequest, cfg *Config) sdkopenai.ChatCompletionNewParams {
	params := sdkopenai.ChatCompletionNewParams{
		Model:    shared.ChatModel(cfg.Model),
		Messages: convertMessages(req.Messages),
	}

	maxTokens := cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = sdkopenai.Int(int64(maxTokens))
	}

	temp := cfg.Temperature
	if req.Temperature != nil {
		temp = req.Temperature
	}
	if temp != nil {
		params.Temperature = sdkopenai.Float(*temp)
	}
	if len(req.Stop) > 0 {
		params.Stop = sdkopenai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	return params
}

// convertMessages maps conversation messages onto SDK message params.
// Recorded tool traffic is rendered as text: requests carry no tool
// definitions, so the API would reject native tool messages.
func convertMessages(msgs []provider.LLMMessage) []sdkopenai.ChatCompletionMessageParamUnion {
	out := make([]sdkopenai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case provider.MessageRoleSystem:
			out = append(out, sdkopenai.SystemMessage(m.Content))
		case provider.MessageRoleUser:
			out = append(out, sdkopenai.UserMessage(m.Content))
		case provider.MessageRoleAssistant:
			out = append(out, sdkopenai.AssistantMessage(assistantText(m)))
		case provider.MessageRoleTool:
			out = append(out, sdkopenai.UserMessage("Tool result ("+m.ToolID+"): "+m.Content))
		}
	}
	return out
}

func assistantText(m provider.LLMMessage) string {
	if len(m.ToolCalls) == 0 {
		return m.Content
	}
	var b strings.Builder
	b.WriteString(m.Content)
	for _, tc := range m.ToolCalls {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("[tool call " + tc.Name + "(" + string(tc.Arguments) + ")]")
	}
	return b.String()
}

// convertCompletion maps the first choice of a chat completion.
func convertCompletion(out *sdkopenai.ChatCompletion) provider.CompletionResponse {
	resp := provider.CompletionResponse{Usage: convertUsage(out.Usage)}
	if len(out.Choices) > 0 {
		resp.Content = out.Choices[0].Message.Content
		resp.FinishReason = convertFinishReason(string(out.Choices[0].FinishReason))
	}
	return resp
}

func convertUsage(u sdkopenai.CompletionUsage) provider.TokenUsage {
	return provider.TokenUsage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
	}
}

// convertFinishReason maps an OpenAI finish reason to a FinishReason.
func convertFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "length":
		return provider.FinishReasonLength
	case "tool_calls", "function_call":
		return provider.FinishReasonToolUse
	case "content_filter":
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReasonStop
	}
}
