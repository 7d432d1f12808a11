package anthropic

import (
	"encoding/json"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// convertRequest builds Messages API parameters. Every system message,
// wherever it sits, becomes a system block so that guard and context
// instructions reach the model in their original order.
func convertRequest(req provider.CompletionRequest, cfg *Config) sdkanthropic.MessageNewParams {
	system, turns := hoistSystem(req.Messages)

	maxTokens := cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	params := sdkanthropic.MessageNewParams{
		Model:         sdkanthropic.Model(cfg.Model),
		MaxTokens:     int64(maxTokens),
		System:        system,
		Messages:      convertTurns(turns),
		StopSequences: req.Stop,
	}
	if req.Temperature != nil {
		params.Temperature = sdkanthropic.Float(*req.Temperature)
	}
	return params
}

func hoistSystem(msgs []provider.LLMMessage) ([]sdkanthropic.TextBlockParam, []provider.LLMMessage) {
	var (
		system []sdkanthropic.TextBlockParam
		turns  = make([]provider.LLMMessage, 0, len(msgs))
	)
	for _, m := range msgs {
		if m.Role != provider.MessageRoleSystem {
			turns = append(turns, m)
			continue
		}
		if m.Content != "" {
			system = append(system, sdkanthropic.TextBlockParam{Text: m.Content})
		}
	}
	return system, turns
}

// convertTurns maps user, assistant and tool turns. A run of tool results
// is sent as one user message, which is what the API expects after a
// multi-call assistant turn.
func convertTurns(msgs []provider.LLMMessage) []sdkanthropic.MessageParam {
	out := make([]sdkanthropic.MessageParam, 0, len(msgs))
	for i := 0; i < len(msgs); i++ {
		switch m := msgs[i]; m.Role {
		case provider.MessageRoleUser:
			out = append(out, sdkanthropic.NewUserMessage(sdkanthropic.NewTextBlock(m.Content)))
		case provider.MessageRoleAssistant:
			out = append(out, convertAssistantMessage(m))
		case provider.MessageRoleTool:
			var results []sdkanthropic.ContentBlockParamUnion
			for ; i < len(msgs) && msgs[i].Role == provider.MessageRoleTool; i++ {
				results = append(results, sdkanthropic.NewToolResultBlock(msgs[i].ToolID, msgs[i].Content, false))
			}
			i--
			out = append(out, sdkanthropic.NewUserMessage(results...))
		}
	}
	return out
}

// convertAssistantMessage converts an assistant message, including any tool
// calls, into an Anthropic assistant message with mixed content blocks.
func convertAssistantMessage(msg provider.LLMMessage) sdkanthropic.MessageParam {
	var blocks []sdkanthropic.ContentBlockParamUnion

	if msg.Content != "" {
		blocks = append(blocks, sdkanthropic.NewTextBlock(msg.Content))
	}

	for _, tc := range msg.ToolCalls {
		// json.RawMessage marshals as-is, so arguments are not double-encoded.
		input := any(tc.Arguments)
		if len(tc.Arguments) == 0 {
			input = json.RawMessage("{}")
		}
		blocks = append(blocks, sdkanthropic.NewToolUseBlock(tc.ID, input, tc.Name))
	}

	return sdkanthropic.NewAssistantMessage(blocks...)
}

// convertResponse transforms an Anthropic SDK Message into a CompletionResponse.
// Only text blocks contribute to the content.
func convertResponse(msg *sdkanthropic.Message) provider.CompletionResponse {
	var content strings.Builder
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(sdkanthropic.TextBlock); ok {
			if content.Len() > 0 {
				content.WriteByte('\n')
			}
			content.WriteString(v.Text)
		}
	}

	return provider.CompletionResponse{
		Content:      content.String(),
		FinishReason: convertStopReason(msg.StopReason),
		Usage: provider.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

// convertStopReason maps an Anthropic stop reason to a FinishReason.
func convertStopReason(reason sdkanthropic.StopReason) provider.FinishReason {
	switch reason {
	case sdkanthropic.StopReasonEndTurn, sdkanthropic.StopReasonStopSequence:
		return provider.FinishReasonStop
	case sdkanthropic.StopReasonMaxTokens:
		return provider.FinishReasonLength
	case sdkanthropic.StopReasonToolUse:
		return provider.FinishReasonToolUse
	case sdkanthropic.StopReasonRefusal:
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReasonStop
	}
}
