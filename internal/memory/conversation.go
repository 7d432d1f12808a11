// Package memory provides conversation and project-note storage
// interfaces with in-memory implementations.
package memory

import (
	"context"
	"sync"

	ctxengine "github.com/Inovico-app/inovy-sub002/internal/context"
	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// ConversationStore persists conversation messages and their summary.
// Implementations must be safe for concurrent use.
type ConversationStore interface {
	ctxengine.Store

	// Append adds messages to the end of the conversation.
	Append(ctx context.Context, conversationID string, msgs ...provider.LLMMessage) error

	// Purge removes all messages and the summary of a conversation.
	Purge(ctx context.Context, conversationID string) error
}

// conversation holds the history and summary for a single conversation.
type conversation struct {
	messages []provider.LLMMessage
	summary  ctxengine.Summary
}

// InMemoryConversationStore is a thread-safe, in-memory ConversationStore.
type InMemoryConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
}

// NewInMemoryConversationStore creates a new empty store.
func NewInMemoryConversationStore() *InMemoryConversationStore {
	return &InMemoryConversationStore{
		conversations: make(map[string]*conversation),
	}
}

// Compile-time interface check.
var _ ConversationStore = (*InMemoryConversationStore)(nil)

func (s *InMemoryConversationStore) getOrCreate(id string) *conversation {
	c, ok := s.conversations[id]
	if !ok {
		c = &conversation{}
		s.conversations[id] = c
	}
	return c
}

// Append adds messages to the conversation.
func (s *InMemoryConversationStore) Append(ctx context.Context, conversationID string, msgs ...provider.LLMMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.getOrCreate(conversationID)
	c.messages = append(c.messages, msgs...)
	return nil
}

// LoadMessages returns a copy of the full conversation.
func (s *InMemoryConversationStore) LoadMessages(ctx context.Context, conversationID string) ([]provider.LLMMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	result := make([]provider.LLMMessage, len(c.messages))
	copy(result, c.messages)
	return result, nil
}

// SaveSummary stores a summary, replacing any previous one.
func (s *InMemoryConversationStore) SaveSummary(ctx context.Context, conversationID string, summary ctxengine.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(conversationID).summary = summary
	return nil
}

// GetSummary returns the stored summary, or the zero Summary.
func (s *InMemoryConversationStore) GetSummary(ctx context.Context, conversationID string) (ctxengine.Summary, error) {
	if err := ctx.Err(); err != nil {
		return ctxengine.Summary{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return ctxengine.Summary{}, nil
	}
	return c.summary, nil
}

// Purge removes all history and the summary of a conversation.
func (s *InMemoryConversationStore) Purge(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	return nil
}

// Len returns the number of messages stored for a conversation.
func (s *InMemoryConversationStore) Len(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return 0
	}
	return len(c.messages)
}
