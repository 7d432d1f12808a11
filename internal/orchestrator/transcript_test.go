package orchestrator

import (
	"testing"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

func TestTranscript(t *testing.T) {
	t.Parallel()

	start := func(id string) provider.StreamChunk {
		return provider.StreamChunk{Type: provider.ChunkTextStart, ID: id}
	}
	delta := func(id, s string) provider.StreamChunk {
		return provider.StreamChunk{Type: provider.ChunkTextDelta, ID: id, Delta: s}
	}
	replace := func(id, s string) provider.StreamChunk {
		return provider.StreamChunk{Type: provider.ChunkTextDelta, ID: id, Delta: s, Replace: true}
	}
	end := func(id string) provider.StreamChunk {
		return provider.StreamChunk{Type: provider.ChunkTextEnd, ID: id}
	}

	tests := []struct {
		name   string
		chunks []provider.StreamChunk
		want   string
	}{
		{"single block", []provider.StreamChunk{start("a"), delta("a", "Hel"), delta("a", "lo"), end("a")}, "Hello"},
		{"replace resets", []provider.StreamChunk{start("a"), delta("a", "mail x@y.nl"), replace("a", "mail [EMAIL]"), end("a")}, "mail [EMAIL]"},
		{"open block excluded", []provider.StreamChunk{start("a"), delta("a", "done"), end("a"), start("b"), delta("b", "half")}, "done"},
		{"first-seen order", []provider.StreamChunk{start("a"), start("b"), delta("b", "2"), delta("a", "1"), end("b"), end("a")}, "12"},
		{
			name: "reopened block appends",
			chunks: []provider.StreamChunk{
				start("a"), delta("a", "Summary sent. "), end("a"),
				start("a"), delta("a", "Copy to x@y.nl"), replace("a", "Copy to [EMAIL]"), end("a"),
			},
			want: "Summary sent. Copy to [EMAIL]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := newTranscript()
			for _, c := range tt.chunks {
				tr.add(c)
			}
			if got := tr.text(); got != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
		})
	}
}
