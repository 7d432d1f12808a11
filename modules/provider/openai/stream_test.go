package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

func sse(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, l := range lines {
			_, _ = w.Write([]byte("data: " + l + "\n\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func chunkJSON(content, finish string) string {
	fr := "null"
	if finish != "" {
		fr = `"` + finish + `"`
	}
	delta := `{}`
	if content != "" {
		delta = `{"role":"assistant","content":"` + content + `"}`
	}
	return `{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":` + delta + `,"finish_reason":` + fr + `}]}`
}

const usageChunk = `{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":4,"completion_tokens":3,"total_tokens":7}}`

func drain(ch <-chan provider.StreamChunk) []provider.StreamChunk {
	var out []provider.StreamChunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestStream_SingleTextBlock(t *testing.T) {
	t.Parallel()

	c := testServer(t, "POST /v1/chat/completions", sse(
		chunkJSON("Hel", ""),
		chunkJSON("lo", ""),
		chunkJSON("", "stop"),
		usageChunk,
		"[DONE]",
	))

	ch, err := c.Stream(context.Background(), hello())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	chunks := drain(ch)

	var types []string
	var text strings.Builder
	for _, ck := range chunks {
		types = append(types, string(ck.Type))
		if ck.Type == provider.ChunkTextDelta {
			text.WriteString(ck.Delta)
		}
		if ck.Type != provider.ChunkFinish && ck.ID != textBlockID {
			t.Errorf("%s chunk id = %q", ck.Type, ck.ID)
		}
	}
	if got, want := strings.Join(types, ","), "text-start,text-delta,text-delta,text-end,finish"; got != want {
		t.Errorf("types = %s, want %s", got, want)
	}
	if text.String() != "Hello" {
		t.Errorf("text = %q", text.String())
	}

	fin := chunks[len(chunks)-1]
	if fin.FinishReason != provider.FinishReasonStop || fin.Usage == nil || fin.Usage.TotalTokens != 7 {
		t.Errorf("finish = %+v usage %+v", fin, fin.Usage)
	}
}

func TestStream_ClosesBlockWithoutFinishReason(t *testing.T) {
	t.Parallel()

	c := testServer(t, "POST /v1/chat/completions", sse(chunkJSON("partial", ""), "[DONE]"))

	ch, err := c.Stream(context.Background(), hello())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var types []string
	for _, ck := range drain(ch) {
		types = append(types, string(ck.Type))
	}
	if got, want := strings.Join(types, ","), "text-start,text-delta,text-end,finish"; got != want {
		t.Errorf("types = %s, want %s", got, want)
	}
}

func TestStream_InitialError(t *testing.T) {
	t.Parallel()

	c := testServer(t, "POST /v1/chat/completions",
		jsonReply(http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`))

	ch, err := c.Stream(context.Background(), hello())
	if !errors.Is(err, provider.ErrRateLimit) {
		t.Fatalf("expected ErrRateLimit, got %v", err)
	}
	if ch != nil {
		t.Error("channel should be nil on initial error")
	}
}
