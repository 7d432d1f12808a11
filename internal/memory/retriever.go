package memory

import (
	"context"
	"strings"

	ctxengine "github.com/Inovico-app/inovy-sub002/internal/context"
)

// Retriever turns note search results into a prompt section bounded by
// a note count and a token budget.
type Retriever struct {
	store     NoteStore
	maxNotes  int
	maxTokens int
}

// NewRetriever creates a Retriever. Non-positive limits default to 5
// notes and 1000 tokens.
func NewRetriever(store NoteStore, maxNotes, maxTokens int) *Retriever {
	if maxNotes <= 0 {
		maxNotes = 5
	}
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return &Retriever{store: store, maxNotes: maxNotes, maxTokens: maxTokens}
}

// Retrieve returns the formatted notes relevant to query within a
// project, or an empty string when nothing matches.
func (r *Retriever) Retrieve(ctx context.Context, query, projectID string) (string, error) {
	if r.store == nil {
		return "", nil
	}
	notes, err := r.store.Search(ctx, projectID, query, r.maxNotes)
	if err != nil {
		return "", err
	}

	var picked []string
	used := 0
	for i := range notes {
		tokens := ctxengine.EstimateTokens(notes[i].Content)
		if used+tokens > r.maxTokens {
			break
		}
		picked = append(picked, notes[i].Content)
		used += tokens
	}
	return FormatNotes(picked), nil
}

// FormatNotes formats note contents into a single prompt section.
// Returns an empty string if no notes are provided.
func FormatNotes(notes []string) string {
	if len(notes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Relevant Project Context\n\n")
	for _, n := range notes {
		b.WriteString("- ")
		b.WriteString(n)
		b.WriteString("\n")
	}
	return b.String()
}
