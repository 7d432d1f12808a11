package openai

import (
	"context"

	sdkopenai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// textBlockID names the single text block of a chat completion stream.
const textBlockID = "txt-0"

const streamBufferSize = 16

// Stream sends a streaming chat completion request. The response text is
// reported as one block: text-start, its deltas, text-end, then finish.
func (c *Client) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	params := buildParams(req, &c.config)
	params.StreamOptions = sdkopenai.ChatCompletionStreamOptionsParam{
		IncludeUsage: sdkopenai.Bool(true),
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)

	// Pull the first chunk here so HTTP errors reach the caller directly.
	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close()
		if err != nil {
			return nil, mapError(err)
		}
		ch := make(chan provider.StreamChunk)
		close(ch)
		return ch, nil
	}

	first := stream.Current()
	ch := make(chan provider.StreamChunk, streamBufferSize)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()
		relay(ctx, stream, first, ch)
	}()
	return ch, nil
}

type streamState struct {
	started bool
	ended   bool
	reason  provider.FinishReason
	usage   *provider.TokenUsage
}

func relay(
	ctx context.Context,
	stream *ssestream.Stream[sdkopenai.ChatCompletionChunk],
	first sdkopenai.ChatCompletionChunk,
	ch chan<- provider.StreamChunk,
) {
	var st streamState

	if !st.handle(ctx, first, ch) {
		return
	}
	for stream.Next() {
		if !st.handle(ctx, stream.Current(), ch) {
			return
		}
	}
	if err := stream.Err(); err != nil {
		emit(ctx, ch, provider.StreamChunk{Type: provider.ChunkError, Err: mapError(err)})
		return
	}

	if st.started && !st.ended {
		if !emit(ctx, ch, provider.StreamChunk{Type: provider.ChunkTextEnd, ID: textBlockID}) {
			return
		}
	}
	if st.reason == "" {
		st.reason = provider.FinishReasonStop
	}
	emit(ctx, ch, provider.StreamChunk{Type: provider.ChunkFinish, FinishReason: st.reason, Usage: st.usage})
}

// handle translates one SSE chunk. It reports false once the consumer
// has gone away.
func (st *streamState) handle(ctx context.Context, chunk sdkopenai.ChatCompletionChunk, ch chan<- provider.StreamChunk) bool {
	// With include_usage the final chunk has no choices, only usage.
	if chunk.Usage.TotalTokens > 0 {
		u := convertUsage(chunk.Usage)
		st.usage = &u
	}

	for _, choice := range chunk.Choices {
		if choice.Index != 0 {
			continue
		}
		if text := choice.Delta.Content; text != "" && !st.ended {
			if !st.started {
				st.started = true
				if !emit(ctx, ch, provider.StreamChunk{Type: provider.ChunkTextStart, ID: textBlockID}) {
					return false
				}
			}
			if !emit(ctx, ch, provider.StreamChunk{Type: provider.ChunkTextDelta, ID: textBlockID, Delta: text}) {
				return false
			}
		}
		if choice.FinishReason != "" {
			st.reason = convertFinishReason(string(choice.FinishReason))
			if st.started && !st.ended {
				st.ended = true
				if !emit(ctx, ch, provider.StreamChunk{Type: provider.ChunkTextEnd, ID: textBlockID}) {
					return false
				}
			}
		}
	}
	return true
}

// emit sends a StreamChunk to the channel, respecting context cancellation.
func emit(ctx context.Context, ch chan<- provider.StreamChunk, chunk provider.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
