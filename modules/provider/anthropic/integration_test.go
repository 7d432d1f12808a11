//go:build integration

package anthropic

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// Needs ANTHROPIC_API_KEY: go test -tags=integration ./modules/provider/anthropic/...

func TestIntegration_LiveAPI(t *testing.T) {
	c, err := New(Config{}, nil)
	if err != nil {
		t.Skipf("anthropic client unavailable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	req := provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleSystem, Content: "Answer with a single lowercase word."},
			{Role: provider.MessageRoleUser, Content: "Reply with: ready"},
		},
		MaxTokens: 16,
	}

	t.Run("model lookup", func(t *testing.T) {
		if err := c.HealthCheck(ctx); err != nil {
			t.Fatalf("HealthCheck: %v", err)
		}
	})

	t.Run("complete", func(t *testing.T) {
		resp, err := c.Complete(ctx, req)
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if !strings.Contains(strings.ToLower(resp.Content), "ready") || resp.Usage.TotalTokens == 0 {
			t.Errorf("content %q usage %+v", resp.Content, resp.Usage)
		}
	})

	t.Run("stream blocks", func(t *testing.T) {
		ch, err := c.Stream(ctx, req)
		if err != nil {
			t.Fatalf("Stream: %v", err)
		}
		var text strings.Builder
		var sawFinish bool
		for chunk := range ch {
			switch chunk.Type {
			case provider.ChunkError:
				t.Fatalf("stream error: %v", chunk.Err)
			case provider.ChunkTextDelta:
				if chunk.ID != "txt-0" {
					t.Errorf("block id %q, want txt-0", chunk.ID)
				}
				text.WriteString(chunk.Delta)
			case provider.ChunkFinish:
				sawFinish = true
			}
		}
		if !sawFinish || !strings.Contains(strings.ToLower(text.String()), "ready") {
			t.Errorf("finish %v, text %q", sawFinish, text.String())
		}
	})
}
