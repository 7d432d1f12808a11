package guard

import (
	"context"
	"strings"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// relay forwards a model stream downstream while keeping one text
// accumulator per open block. Chunks keep their order and ids; only a
// block's text may change, through a corrective delta emitted just
// before its text-end.
type relay struct {
	chain *Chain
	call  *Call
	out   chan<- provider.StreamChunk

	blocks map[string]*strings.Builder // open blocks
	order  []string                    // block ids in first-seen order
	final  map[string]string           // text of closed blocks, as delivered

	usage     provider.TokenUsage
	finish    provider.FinishReason
	moderated bool
}

func (r *relay) run(ctx context.Context, src <-chan provider.StreamChunk) {
	defer close(r.out)

	r.final = make(map[string]string)
	completed := r.pump(ctx, src)

	if completed && !r.closeOpen(ctx) {
		completed = false
	}

	resp := &Response{
		Text:         r.text(),
		Usage:        r.usage,
		FinishReason: r.finish,
		Moderated:    r.moderated,
		Aborted:      !completed,
	}
	r.chain.afterStream(context.WithoutCancel(ctx), r.call, resp)
}

// pump relays chunks until the upstream closes (true) or the consumer
// goes away or a stage fails (false).
func (r *relay) pump(ctx context.Context, src <-chan provider.StreamChunk) bool {
	for {
		var chunk provider.StreamChunk
		var ok bool
		select {
		case <-ctx.Done():
			return false
		case chunk, ok = <-src:
			if !ok {
				return true
			}
		}

		if !r.handle(ctx, chunk) {
			return false
		}
	}
}

func (r *relay) handle(ctx context.Context, chunk provider.StreamChunk) bool {
	switch chunk.Type {
	case provider.ChunkTextStart:
		if _, open := r.blocks[chunk.ID]; open {
			r.chain.logger.Warn("guard: duplicate text-start dropped", "block", chunk.ID)
			return true
		}
		r.open(chunk.ID)
		return r.emit(ctx, chunk)

	case provider.ChunkTextDelta:
		b, open := r.blocks[chunk.ID]
		if !open {
			if !r.emit(ctx, provider.StreamChunk{Type: provider.ChunkTextStart, ID: chunk.ID}) {
				return false
			}
			b = r.open(chunk.ID)
		}
		if chunk.Replace {
			b.Reset()
		}
		b.WriteString(chunk.Delta)
		return r.emit(ctx, chunk)

	case provider.ChunkTextEnd:
		if _, open := r.blocks[chunk.ID]; !open {
			if _, closed := r.final[chunk.ID]; closed {
				r.chain.logger.Warn("guard: duplicate text-end dropped", "block", chunk.ID)
				return true
			}
			if !r.emit(ctx, provider.StreamChunk{Type: provider.ChunkTextStart, ID: chunk.ID}) {
				return false
			}
			r.open(chunk.ID)
		}
		return r.endBlock(ctx, chunk)

	case provider.ChunkFinish:
		if chunk.Usage != nil {
			r.usage = *chunk.Usage
		}
		r.finish = chunk.FinishReason
		return r.emit(ctx, chunk)

	case provider.ChunkError:
		// Text already streamed still passes the block stages before
		// the error goes out.
		if r.closeOpen(ctx) {
			r.emit(ctx, chunk)
		}
		return false

	default:
		return r.emit(ctx, chunk)
	}
}

// closeOpen ends every open block in first-seen order so each text-start
// downstream has a matching text-end.
func (r *relay) closeOpen(ctx context.Context) bool {
	for _, id := range r.order {
		if _, open := r.blocks[id]; open {
			if !r.endBlock(ctx, provider.StreamChunk{Type: provider.ChunkTextEnd, ID: id}) {
				return false
			}
		}
	}
	return true
}

func (r *relay) open(id string) *strings.Builder {
	b := &strings.Builder{}
	r.blocks[id] = b
	if _, seen := r.final[id]; !seen {
		r.order = append(r.order, id)
	}
	return b
}

// endBlock runs the block-level stages on the accumulated segment and, if
// they changed it, emits a corrective delta ahead of the text-end. The
// corrective delta replaces the current segment only.
func (r *relay) endBlock(ctx context.Context, end provider.StreamChunk) bool {
	raw := r.blocks[end.ID].String()
	delete(r.blocks, end.ID)

	block := &Block{ID: end.ID, Text: raw}
	if err := r.chain.afterBlock(ctx, r.call, block); err != nil {
		r.chain.logger.Error("guard: block processing failed", "block", end.ID, "error", err)
		r.emit(ctx, provider.StreamChunk{Type: provider.ChunkError, ID: end.ID, Err: err})
		return false
	}
	if block.Moderated {
		r.moderated = true
	}
	// A reopened id continues its block; earlier segments stay delivered.
	r.final[end.ID] += block.Text

	if block.Text != raw {
		fix := provider.StreamChunk{Type: provider.ChunkTextDelta, ID: end.ID, Delta: block.Text, Replace: true}
		if !r.emit(ctx, fix) {
			return false
		}
	}
	return r.emit(ctx, end)
}

func (r *relay) emit(ctx context.Context, chunk provider.StreamChunk) bool {
	select {
	case r.out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// text joins the delivered text of closed blocks in first-seen order.
// Blocks left open by an aborted stream never passed the output stages
// and are excluded.
func (r *relay) text() string {
	var sb strings.Builder
	for _, id := range r.order {
		sb.WriteString(r.final[id])
	}
	return sb.String()
}
