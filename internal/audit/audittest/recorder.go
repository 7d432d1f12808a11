// Package audittest provides test doubles for the audit package.
package audittest

import (
	"context"
	"sync"

	"github.com/Inovico-app/inovy-sub002/internal/audit"
)

// Recorder is an in-memory audit.Store. Err, when set, is returned from
// every Append after the entry is recorded.
type Recorder struct {
	Err error

	mu      sync.Mutex
	entries []audit.Entry
}

// Compile-time interface check.
var _ audit.Store = (*Recorder)(nil)

// Append records e.
func (r *Recorder) Append(_ context.Context, e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return r.Err
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Entry(nil), r.entries...)
}
