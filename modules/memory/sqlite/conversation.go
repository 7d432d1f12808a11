package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	ctxengine "github.com/Inovico-app/inovy-sub002/internal/context"
	"github.com/Inovico-app/inovy-sub002/internal/memory"
	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

var _ memory.ConversationStore = (*ConversationStore)(nil)

// ConversationStore implements memory.ConversationStore on SQLite.
type ConversationStore struct {
	db *sql.DB
}

// Append adds messages to the end of a conversation in one transaction.
func (s *ConversationStore) Append(ctx context.Context, conversationID string, msgs ...provider.LLMMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM messages WHERE conversation_id = ?", conversationID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("sqlite: next seq: %w", err)
	}

	for _, msg := range msgs {
		toolCalls := []byte("[]")
		if len(msg.ToolCalls) > 0 {
			if toolCalls, err = json.Marshal(msg.ToolCalls); err != nil {
				return fmt.Errorf("sqlite: marshal tool_calls: %w", err)
			}
		}
		seq++
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, seq, role, content, name, tool_id, tool_calls)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			conversationID, seq, string(msg.Role), msg.Content, msg.Name, msg.ToolID, string(toolCalls),
		); err != nil {
			return fmt.Errorf("sqlite: append message: %w", err)
		}
	}

	return tx.Commit()
}

// LoadMessages returns a conversation in chronological order.
func (s *ConversationStore) LoadMessages(ctx context.Context, conversationID string) ([]provider.LLMMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, name, tool_id, tool_calls
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []provider.LLMMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load messages rows: %w", err)
	}
	return msgs, nil
}

// SaveSummary stores a summary, replacing any previous one.
func (s *ConversationStore) SaveSummary(ctx context.Context, conversationID string, summary ctxengine.Summary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO summaries (conversation_id, summary, covers, updated_at)
		VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))`,
		conversationID, summary.Text, summary.Covers,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save summary: %w", err)
	}
	return nil
}

// GetSummary returns the stored summary, or the zero Summary.
func (s *ConversationStore) GetSummary(ctx context.Context, conversationID string) (ctxengine.Summary, error) {
	var sum ctxengine.Summary
	err := s.db.QueryRowContext(ctx,
		"SELECT summary, covers FROM summaries WHERE conversation_id = ?", conversationID,
	).Scan(&sum.Text, &sum.Covers)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ctxengine.Summary{}, nil
		}
		return ctxengine.Summary{}, fmt.Errorf("sqlite: get summary: %w", err)
	}
	return sum, nil
}

// Purge removes all messages and the summary of a conversation.
func (s *ConversationStore) Purge(ctx context.Context, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin purge tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("sqlite: purge messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM summaries WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("sqlite: purge summaries: %w", err)
	}
	return tx.Commit()
}

// Len returns the number of messages stored for a conversation.
func (s *ConversationStore) Len(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count messages: %w", err)
	}
	return count, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (provider.LLMMessage, error) {
	var (
		msg       provider.LLMMessage
		role      string
		toolCalls string
	)
	if err := s.Scan(&role, &msg.Content, &msg.Name, &msg.ToolID, &toolCalls); err != nil {
		return msg, fmt.Errorf("sqlite: scan message: %w", err)
	}
	msg.Role = provider.MessageRole(role)

	if toolCalls != "" && toolCalls != "[]" {
		if err := json.Unmarshal([]byte(toolCalls), &msg.ToolCalls); err != nil {
			return msg, fmt.Errorf("sqlite: unmarshal tool_calls: %w", err)
		}
	}
	return msg, nil
}
