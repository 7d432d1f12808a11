package provider_test

import (
	"context"
	"testing"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
	"github.com/Inovico-app/inovy-sub002/internal/provider/providertest"
)

func TestMockProviderSatisfiesInterface(t *testing.T) {
	t.Parallel()

	mock := providertest.Text("ok")

	resp, err := mock.Complete(context.Background(), provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q, want %q", resp.Content, "ok")
	}
	if mock.ModelName() != "mock" {
		t.Errorf("ModelName() = %q, want %q", mock.ModelName(), "mock")
	}
	if mock.CompleteCalls() != 1 {
		t.Errorf("CompleteCalls() = %d, want 1", mock.CompleteCalls())
	}
}

func TestMockStreamBlockShape(t *testing.T) {
	t.Parallel()

	ch, err := providertest.Text("hi").Stream(context.Background(), provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	got := providertest.Collect(ch)

	want := []provider.ChunkType{provider.ChunkTextStart, provider.ChunkTextDelta, provider.ChunkTextEnd}
	if len(got) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(got), len(want))
	}
	for i, c := range got {
		if c.Type != want[i] {
			t.Errorf("chunk[%d].Type = %q, want %q", i, c.Type, want[i])
		}
		if c.ID != "b0" {
			t.Errorf("chunk[%d].ID = %q, want b0", i, c.ID)
		}
	}
}
