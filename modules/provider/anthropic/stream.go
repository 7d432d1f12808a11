package anthropic

import (
	"context"
	"strconv"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// streamBufferSize bounds how far the SSE reader may run ahead of the consumer.
const streamBufferSize = 16

// Stream sends a streaming completion request and returns a channel of
// StreamChunks. Each text content block is reported as text-start, its
// deltas, then text-end, using the block index as the ID. The channel is
// closed when the stream ends or ctx is cancelled.
func (a *Client) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	params := convertRequest(req, &a.config)

	stream := a.client.Messages.NewStreaming(ctx, params)

	// Consume the first event synchronously so connection errors (auth,
	// network, 4xx) are returned directly instead of mid-stream.
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

		consume(ctx, stream, first, ch)
	}()

	return ch, nil
}

// streamState tracks accumulated state across SSE events for a single stream.
type streamState struct {
	// inputTokens captured from MessageStartEvent.
	inputTokens int64

	// open holds the indices of text blocks that saw a start but no stop.
	open map[int64]bool
}

func consume(
	ctx context.Context,
	stream *ssestream.Stream[sdkanthropic.MessageStreamEventUnion],
	first sdkanthropic.MessageStreamEventUnion,
	ch chan<- provider.StreamChunk,
) {
	state := streamState{open: make(map[int64]bool)}

	if !processEvent(ctx, &state, first, ch) {
		return
	}
	for stream.Next() {
		if ctx.Err() != nil {
			return
		}
		if !processEvent(ctx, &state, stream.Current(), ch) {
			return
		}
	}

	if err := stream.Err(); err != nil {
		emit(ctx, ch, provider.StreamChunk{Type: provider.ChunkError, Err: mapError(err)})
	}
}

// processEvent translates one SSE event. It reports false once the
// consumer has gone away.
func processEvent(
	ctx context.Context,
	state *streamState,
	event sdkanthropic.MessageStreamEventUnion,
	ch chan<- provider.StreamChunk,
) bool {
	switch ev := event.AsAny().(type) {
	case sdkanthropic.MessageStartEvent:
		state.inputTokens = ev.Message.Usage.InputTokens

	case sdkanthropic.ContentBlockStartEvent:
		if ev.ContentBlock.Type != "text" {
			return true
		}
		state.open[ev.Index] = true
		if !emit(ctx, ch, provider.StreamChunk{Type: provider.ChunkTextStart, ID: blockID(ev.Index)}) {
			return false
		}
		// A start event may already carry text.
		if text := ev.ContentBlock.Text; text != "" {
			return emit(ctx, ch, provider.StreamChunk{Type: provider.ChunkTextDelta, ID: blockID(ev.Index), Delta: text})
		}

	case sdkanthropic.ContentBlockDeltaEvent:
		delta, ok := ev.Delta.AsAny().(sdkanthropic.TextDelta)
		if !ok || !state.open[ev.Index] {
			return true
		}
		return emit(ctx, ch, provider.StreamChunk{Type: provider.ChunkTextDelta, ID: blockID(ev.Index), Delta: delta.Text})

	case sdkanthropic.ContentBlockStopEvent:
		if !state.open[ev.Index] {
			return true
		}
		delete(state.open, ev.Index)
		return emit(ctx, ch, provider.StreamChunk{Type: provider.ChunkTextEnd, ID: blockID(ev.Index)})

	case sdkanthropic.MessageDeltaEvent:
		out := ev.Usage.OutputTokens
		return emit(ctx, ch, provider.StreamChunk{
			Type:         provider.ChunkFinish,
			FinishReason: convertStopReason(ev.Delta.StopReason),
			Usage: &provider.TokenUsage{
				PromptTokens:     int(state.inputTokens),
				CompletionTokens: int(out),
				TotalTokens:      int(state.inputTokens + out),
			},
		})
	}
	return true
}

func blockID(index int64) string {
	return "txt-" + strconv.FormatInt(index, 10)
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
