package memory_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Inovico-app/inovy-sub002/internal/memory"
)

func testNote(id, project, content string) memory.Note {
	return memory.Note{
		ID:        id,
		ProjectID: project,
		Content:   content,
		Source:    "test",
		CreatedAt: time.Now(),
	}
}

func seedNotes(t *testing.T, store memory.NoteStore, notes ...memory.Note) {
	t.Helper()
	for _, n := range notes {
		if err := store.Index(context.Background(), n); err != nil {
			t.Fatalf("Index(%q): unexpected error: %v", n.ID, err)
		}
	}
}

func TestInMemoryNoteStore_SearchRanksByMatchedTerms(t *testing.T) {
	t.Parallel()

	store := memory.NewInMemoryNoteStore()
	seedNotes(t, store,
		testNote("1", "p1", "The team chose Postgres for the billing service."),
		testNote("2", "p1", "Billing migration deadline is March; Postgres cluster owned by Anna."),
		testNote("3", "p1", "Lunch is on Fridays."),
		testNote("4", "p2", "Postgres billing notes for another project."),
	)

	got, err := store.Search(context.Background(), "p1", "Who owns the Postgres billing migration?", 5)
	if err != nil {
		t.Fatalf("Search: unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search: got %d notes, want 2", len(got))
	}
	if got[0].ID != "2" || got[1].ID != "1" {
		t.Errorf("Search order = [%s %s], want [2 1]", got[0].ID, got[1].ID)
	}
}

func TestInMemoryNoteStore_SearchAllProjects(t *testing.T) {
	t.Parallel()

	store := memory.NewInMemoryNoteStore()
	seedNotes(t, store,
		testNote("1", "p1", "roadmap review"),
		testNote("2", "p2", "roadmap draft"),
	)

	got, err := store.Search(context.Background(), "", "roadmap", 10)
	if err != nil {
		t.Fatalf("Search: unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Search: got %d notes, want 2", len(got))
	}
}

func TestInMemoryNoteStore_SearchLimits(t *testing.T) {
	t.Parallel()

	store := memory.NewInMemoryNoteStore()
	for i := range 10 {
		seedNotes(t, store, testNote(fmt.Sprint(i), "p", "sprint planning notes"))
	}

	tests := []struct {
		name  string
		query string
		topK  int
		want  int
	}{
		{"topK caps", "sprint", 3, 3},
		{"zero topK", "sprint", 0, 0},
		{"only stopwords", "what was the", 5, 0},
		{"no match", "budget", 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := store.Search(context.Background(), "p", tt.query, tt.topK)
			if err != nil {
				t.Fatalf("Search: unexpected error: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Search(%q, %d) = %d notes, want %d", tt.query, tt.topK, len(got), tt.want)
			}
		})
	}
}

func TestInMemoryNoteStore_IndexReplaces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewInMemoryNoteStore()
	seedNotes(t, store, testNote("1", "p", "original content"), testNote("1", "p", "updated content"))

	if store.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", store.Len())
	}
	got, _ := store.Search(ctx, "p", "updated", 1)
	if len(got) != 1 || got[0].Content != "updated content" {
		t.Errorf("Search after update = %+v", got)
	}
}

func TestInMemoryNoteStore_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewInMemoryNoteStore()
	seedNotes(t, store,
		testNote("a", "p", "alpha note"),
		testNote("b", "p", "beta note"),
		testNote("c", "p", "gamma note"),
	)

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: unexpected error: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", store.Len())
	}
	got, _ := store.Search(ctx, "p", "gamma", 1)
	if len(got) != 1 || got[0].ID != "c" {
		t.Errorf("moved note not found after swap-delete: %+v", got)
	}
	if err := store.Delete(ctx, "a"); !errors.Is(err, memory.ErrNoteNotFound) {
		t.Errorf("Delete missing: err = %v, want ErrNoteNotFound", err)
	}
}

func TestInMemoryNoteStore_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewInMemoryNoteStore()

	var wg sync.WaitGroup
	for g := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				n := testNote(fmt.Sprintf("g%d-n%d", g, i), "p", fmt.Sprintf("goroutine %d note %d content", g, i))
				if err := store.Index(ctx, n); err != nil {
					t.Errorf("Index: unexpected error: %v", err)
				}
			}
		}()
	}
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if _, err := store.Search(ctx, "p", "content", 5); err != nil {
					t.Errorf("Search: unexpected error: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if got := store.Len(); got != 500 {
		t.Fatalf("Len() = %d, want 500", got)
	}
}

func TestTerms(t *testing.T) {
	t.Parallel()

	got := strings.Join(memory.Terms("What did the Q3-roadmap say about roadmap, budget & the API?"), ",")
	want := "did,q3-roadmap,say,roadmap,budget,api"
	if got != want {
		t.Errorf("Terms = %q, want %q", got, want)
	}
}

func TestRetriever_RespectsTokenBudget(t *testing.T) {
	t.Parallel()

	store := memory.NewInMemoryNoteStore()
	seedNotes(t, store,
		testNote("1", "p", "launch "+strings.Repeat("a", 36)), // 11 tokens
		testNote("2", "p", "launch "+strings.Repeat("b", 36)),
		testNote("3", "p", "launch "+strings.Repeat("c", 36)),
	)

	r := memory.NewRetriever(store, 5, 25)
	out, err := r.Retrieve(context.Background(), "launch", "p")
	if err != nil {
		t.Fatalf("Retrieve: unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "## Relevant Project Context") {
		t.Errorf("missing heading: %q", out)
	}
	if n := strings.Count(out, "\n- "); n != 2 {
		t.Errorf("notes included = %d, want 2", n)
	}
}

func TestRetriever_NoMatchIsEmpty(t *testing.T) {
	t.Parallel()

	r := memory.NewRetriever(memory.NewInMemoryNoteStore(), 0, 0)
	out, err := r.Retrieve(context.Background(), "anything relevant", "p")
	if err != nil || out != "" {
		t.Errorf("Retrieve = %q, %v; want empty, nil", out, err)
	}
}
