package security

import (
	"slices"
	"sync"
)

// CredentialStore holds the upstream API keys resolved at startup, keyed
// by provider name. A Redactor synced from it removes those keys from
// logs. Safe for concurrent use.
type CredentialStore struct {
	mu    sync.RWMutex
	creds map[string]string
}

// NewCredentialStore creates an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]string)}
}

// Set stores or replaces a credential. Empty values are ignored.
func (s *CredentialStore) Set(name, value string) {
	if value == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[name] = value
}

// Get returns a credential and whether it exists.
func (s *CredentialStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.creds[name]
	return v, ok
}

// Names returns the sorted credential names.
func (s *CredentialStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.creds))
	for name := range s.creds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Values returns every credential value, longest first, so a Redactor
// never leaves the tail of a key that contains a shorter one.
func (s *CredentialStore) Values() []string {
	s.mu.RLock()
	values := make([]string, 0, len(s.creds))
	for _, v := range s.creds {
		values = append(values, v)
	}
	s.mu.RUnlock()

	slices.SortFunc(values, func(a, b string) int { return len(b) - len(a) })
	return values
}

// Len returns the number of stored credentials.
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}
