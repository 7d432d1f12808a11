package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Scrubber removes sensitive substrings from text before it is written.
type Scrubber interface {
	Redact(s string) string
}

// JSONLConfig configures a JSONLStore.
type JSONLConfig struct {
	// Writer is the destination for JSONL output. If nil, entries are only
	// dispatched to OnEntry (useful for testing).
	Writer io.Writer

	// Scrubber, if non-nil, is applied to the previews before writing.
	Scrubber Scrubber

	// OnEntry, if non-nil, is called for every entry (used in tests).
	OnEntry func(Entry)

	// Now overrides time.Now for testing. Defaults to time.Now.
	Now func() time.Time
}

// JSONLStore writes audit entries as JSON Lines.
type JSONLStore struct {
	writer   io.Writer
	scrubber Scrubber
	onEntry  func(Entry)
	now      func() time.Time
	mu       sync.Mutex
}

// Compile-time interface check.
var _ Store = (*JSONLStore)(nil)

// NewJSONLStore creates a store with the given configuration.
func NewJSONLStore(cfg JSONLConfig) *JSONLStore {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &JSONLStore{
		writer:   cfg.Writer,
		scrubber: cfg.Scrubber,
		onEntry:  cfg.OnEntry,
		now:      now,
	}
}

// Append fills in ID and Timestamp when missing, scrubs previews and
// writes one line.
func (s *JSONLStore) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if s.scrubber != nil {
		e.InputPreview = s.scrubber.Redact(e.InputPreview)
		e.OutputPreview = s.scrubber.Redact(e.OutputPreview)
	}

	// Dispatch and write under the same lock to keep ordering consistent.
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.onEntry != nil {
		s.onEntry(e)
	}
	if s.writer != nil {
		if err := json.NewEncoder(s.writer).Encode(e); err != nil {
			return fmt.Errorf("audit: writing entry: %w", err)
		}
	}
	return nil
}
