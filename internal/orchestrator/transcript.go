package orchestrator

import (
	"strings"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// transcript rebuilds the text a stream consumer saw. A Replace delta
// resets the open segment of its block; only segments that reached
// text-end count, and a reopened block appends to its earlier text.
type transcript struct {
	open   map[string]*strings.Builder
	order  []string
	closed map[string]string
}

func newTranscript() *transcript {
	return &transcript{
		open:   make(map[string]*strings.Builder),
		closed: make(map[string]string),
	}
}

func (t *transcript) add(chunk provider.StreamChunk) {
	switch chunk.Type {
	case provider.ChunkTextStart:
		t.start(chunk.ID)
	case provider.ChunkTextDelta:
		b, ok := t.open[chunk.ID]
		if !ok {
			b = t.start(chunk.ID)
		}
		if chunk.Replace {
			b.Reset()
		}
		b.WriteString(chunk.Delta)
	case provider.ChunkTextEnd:
		if b, ok := t.open[chunk.ID]; ok {
			t.closed[chunk.ID] += b.String()
			delete(t.open, chunk.ID)
		}
	}
}

func (t *transcript) start(id string) *strings.Builder {
	_, opened := t.open[id]
	_, closed := t.closed[id]
	if !opened && !closed {
		t.order = append(t.order, id)
	}
	b := &strings.Builder{}
	t.open[id] = b
	return b
}

func (t *transcript) text() string {
	var sb strings.Builder
	for _, id := range t.order {
		sb.WriteString(t.closed[id])
	}
	return sb.String()
}
