package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Inovico-app/inovy-sub002/internal/audit"
)

var _ audit.Store = (*AuditStore)(nil)

// AuditStore implements audit.Store on SQLite.
type AuditStore struct {
	db *sql.DB
}

// Append writes one entry. Entries without an ID or timestamp get one.
func (s *AuditStore) Append(ctx context.Context, e audit.Entry) error {
	if e.ID == "" {
		e.ID = audit.NewID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	piiTypes, err := json.Marshal(e.PIITypes)
	if err != nil {
		return fmt.Errorf("sqlite: marshal pii_types: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (
			id, ts, organization_id, user_id, conversation_id, project_id,
			chat_context, request_type, streaming, outcome, violation, pii_types,
			input_preview, output_preview,
			prompt_tokens, completion_tokens, total_tokens, latency_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, formatTime(e.Timestamp), e.OrganizationID, e.UserID, e.ConversationID, e.ProjectID,
		e.ChatContext, e.RequestType, boolInt(e.Streaming), string(e.Outcome), e.Violation, string(piiTypes),
		e.InputPreview, e.OutputPreview,
		e.PromptTokens, e.CompletionTokens, e.TotalTokens, e.LatencyMS,
	)
	if err != nil {
		return fmt.Errorf("sqlite: append audit entry: %w", err)
	}
	return nil
}

// PruneBefore deletes entries older than cutoff and reports how many
// were removed.
func (s *AuditStore) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_log WHERE ts < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune audit log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(n), nil
}

// Recent returns the newest entries of an organization, newest first.
func (s *AuditStore) Recent(ctx context.Context, organizationID string, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, organization_id, user_id, conversation_id, project_id,
		       chat_context, request_type, streaming, outcome, violation, pii_types,
		       input_preview, output_preview,
		       prompt_tokens, completion_tokens, total_tokens, latency_ms
		FROM audit_log
		WHERE organization_id = ?
		ORDER BY ts DESC
		LIMIT ?`,
		organizationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []audit.Entry
	for rows.Next() {
		var (
			e         audit.Entry
			ts        string
			streaming int
			outcome   string
			piiTypes  string
		)
		if err := rows.Scan(
			&e.ID, &ts, &e.OrganizationID, &e.UserID, &e.ConversationID, &e.ProjectID,
			&e.ChatContext, &e.RequestType, &streaming, &outcome, &e.Violation, &piiTypes,
			&e.InputPreview, &e.OutputPreview,
			&e.PromptTokens, &e.CompletionTokens, &e.TotalTokens, &e.LatencyMS,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("sqlite: parse ts %q: %w", ts, err)
		}
		e.Streaming = streaming != 0
		e.Outcome = audit.Outcome(outcome)
		if piiTypes != "" && piiTypes != "[]" && piiTypes != "null" {
			if err := json.Unmarshal([]byte(piiTypes), &e.PIITypes); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal pii_types: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: audit rows: %w", err)
	}
	return out, nil
}

// formatTime renders t in UTC with fixed-width fractional seconds so
// that lexical order in the ts column matches chronological order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
