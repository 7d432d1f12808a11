// Package audit defines the record written for every guarded model
// invocation and the stores that persist it.
package audit

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// PreviewLimit bounds, in runes, the input and output text kept in an entry.
const PreviewLimit = 500

// Outcome classifies how a guarded invocation ended.
type Outcome string

// Invocation outcomes.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeModerated Outcome = "moderated"
	OutcomeAborted   Outcome = "aborted"
	OutcomeFailed    Outcome = "failed"
)

// Entry is one audit record. Text fields hold sanitized previews only.
type Entry struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	ProjectID      string    `json:"project_id,omitempty"`
	ChatContext    string    `json:"chat_context,omitempty"`
	RequestType    string    `json:"request_type,omitempty"`
	Streaming      bool      `json:"streaming"`
	Outcome        Outcome   `json:"outcome"`
	Violation      string    `json:"violation,omitempty"`
	PIITypes       []string  `json:"pii_types,omitempty"`

	InputPreview  string `json:"input_preview"`
	OutputPreview string `json:"output_preview,omitempty"`

	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalTokens      int   `json:"total_tokens"`
	LatencyMS        int64 `json:"latency_ms"`
}

// Store persists audit entries. Append is called from a detached task;
// implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, e Entry) error
}

// NewID returns a fresh entry identifier.
func NewID() string {
	return uuid.New().String()
}

// Preview truncates s to at most limit runes, appending an ellipsis
// when text was cut.
func Preview(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + "…"
		}
		n++
	}
	return s
}
