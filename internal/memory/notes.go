package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNoteNotFound indicates the requested note does not exist.
var ErrNoteNotFound = errors.New("memory: note not found")

// Note is a piece of project knowledge, such as a meeting decision or
// an excerpt from project documentation.
type Note struct {
	ID        string
	ProjectID string
	Content   string
	Source    string // where the note came from, e.g. a meeting id
	Tags      []string
	CreatedAt time.Time
}

// NoteStore indexes project notes for retrieval.
// Implementations must be safe for concurrent use.
type NoteStore interface {
	// Index stores a note, replacing any note with the same ID.
	Index(ctx context.Context, note Note) error

	// Search returns up to topK notes of a project relevant to query,
	// most relevant first. An empty projectID searches all projects.
	Search(ctx context.Context, projectID, query string, topK int) ([]Note, error)

	// Delete removes a note by ID.
	Delete(ctx context.Context, id string) error

	// Len returns the total number of stored notes.
	Len() int
}

// InMemoryNoteStore is a thread-safe, in-memory NoteStore. Search ranks
// notes by how many query terms they contain.
type InMemoryNoteStore struct {
	mu    sync.RWMutex
	notes []Note
	index map[string]int // id → index in notes slice
}

// NewInMemoryNoteStore creates a new empty note store.
func NewInMemoryNoteStore() *InMemoryNoteStore {
	return &InMemoryNoteStore{
		index: make(map[string]int),
	}
}

// Compile-time interface check.
var _ NoteStore = (*InMemoryNoteStore)(nil)

// Index stores a note.
func (s *InMemoryNoteStore) Index(_ context.Context, note Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, exists := s.index[note.ID]; exists {
		s.notes[i] = note
		return nil
	}
	s.index[note.ID] = len(s.notes)
	s.notes = append(s.notes, note)
	return nil
}

// Search ranks the project's notes by matched query terms.
func (s *InMemoryNoteStore) Search(_ context.Context, projectID, query string, topK int) ([]Note, error) {
	if topK <= 0 {
		return nil, nil
	}
	terms := Terms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		note  Note
		score int
	}
	var hits []hit
	for i := range s.notes {
		n := s.notes[i]
		if projectID != "" && n.ProjectID != projectID {
			continue
		}
		content := strings.ToLower(n.Content)
		score := 0
		for _, t := range terms {
			if strings.Contains(content, t) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{note: n, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]Note, len(hits))
	for i := range hits {
		out[i] = hits[i].note
	}
	return out, nil
}

// Delete removes a note by ID.
func (s *InMemoryNoteStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[id]
	if !ok {
		return ErrNoteNotFound
	}

	// Replace with last element and shrink (swap-delete).
	last := len(s.notes) - 1
	if idx != last {
		s.notes[idx] = s.notes[last]
		s.index[s.notes[idx].ID] = idx
	}
	s.notes = s.notes[:last]
	delete(s.index, id)
	return nil
}

// Len returns the total number of stored notes.
func (s *InMemoryNoteStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}

// stopwords are dropped from queries before matching.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "what": {}, "who": {}, "was": {},
	"were": {}, "are": {}, "about": {}, "from": {}, "that": {}, "this": {},
	"het": {}, "een": {}, "van": {}, "wat": {}, "wie": {}, "voor": {}, "met": {},
}

// Terms splits a query into distinct lowercase search terms of at least
// three characters, skipping common stopwords.
func Terms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r == '-' || r == '_' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || r > 127)
	})
	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
