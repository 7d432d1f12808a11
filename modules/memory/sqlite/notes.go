package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Inovico-app/inovy-sub002/internal/memory"
)

var _ memory.NoteStore = (*NoteStore)(nil)

// NoteStore implements memory.NoteStore on SQLite with FTS5 ranking.
type NoteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Index stores or replaces a note. The FTS5 index follows via triggers.
func (s *NoteStore) Index(ctx context.Context, note memory.Note) error {
	tags, err := json.Marshal(note.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: marshal tags: %w", err)
	}

	createdAt := note.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	// An upsert fires the update trigger; INSERT OR REPLACE would delete
	// the row without notifying the external-content FTS table.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notes (id, project_id, content, source, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			content    = excluded.content,
			source     = excluded.source,
			tags       = excluded.tags,
			created_at = excluded.created_at`,
		note.ID, note.ProjectID, note.Content, note.Source, string(tags),
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: index note: %w", err)
	}
	return nil
}

// Search returns up to topK notes matching any term of query, ranked by
// FTS5 bm25. An empty projectID searches all projects.
func (s *NoteStore) Search(ctx context.Context, projectID, query string, topK int) ([]memory.Note, error) {
	match := matchExpr(query)
	if match == "" || topK <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.project_id, n.content, n.source, n.tags, n.created_at
		FROM notes_fts
		JOIN notes n ON n.rowid = notes_fts.rowid
		WHERE notes_fts MATCH ?
		  AND (? = '' OR n.project_id = ?)
		ORDER BY rank
		LIMIT ?`,
		match, projectID, projectID, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search notes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanNotes(rows)
}

// matchExpr turns free text into an FTS5 query that ORs the quoted
// search terms, so user punctuation cannot break the MATCH syntax.
func matchExpr(query string) string {
	terms := memory.Terms(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// Delete removes a note by ID. Returns memory.ErrNoteNotFound if the note
// does not exist.
func (s *NoteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: delete note: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return memory.ErrNoteNotFound
	}
	return nil
}

// Len returns the total number of stored notes.
func (s *NoteStore) Len() int {
	var count int
	if err := s.db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM notes").Scan(&count); err != nil {
		s.logger.Error("sqlite: count notes failed", "error", err)
		return 0
	}
	return count
}

func scanNotes(rows *sql.Rows) ([]memory.Note, error) {
	var notes []memory.Note
	for rows.Next() {
		var (
			note      memory.Note
			tags      string
			createdAt string
		)
		if err := rows.Scan(&note.ID, &note.ProjectID, &note.Content, &note.Source, &tags, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan note: %w", err)
		}
		if tags != "" && tags != "[]" && tags != "null" {
			if err := json.Unmarshal([]byte(tags), &note.Tags); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal tags: %w", err)
			}
		}
		if createdAt != "" {
			t, err := time.Parse(time.RFC3339Nano, createdAt)
			if err != nil {
				return nil, fmt.Errorf("sqlite: parse created_at %q: %w", createdAt, err)
			}
			note.CreatedAt = t
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan notes rows: %w", err)
	}
	return notes, nil
}
