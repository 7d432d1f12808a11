package security

import (
	"fmt"
	"slices"
	"sync"
	"testing"
)

func TestCredentialStore(t *testing.T) {
	t.Parallel()

	s := NewCredentialStore()
	s.Set("openai", "sk-first")
	s.Set("anthropic", "sk-ant-second")
	s.Set("openai", "sk-replaced")
	s.Set("empty", "")

	if v, ok := s.Get("openai"); !ok || v != "sk-replaced" {
		t.Errorf("Get(openai) = %q, %v", v, ok)
	}
	if _, ok := s.Get("empty"); ok {
		t.Error("empty credential was stored")
	}
	if _, ok := s.Get("missing"); ok {
		t.Error("Get(missing) reported ok")
	}
	if got := s.Names(); !slices.Equal(got, []string{"anthropic", "openai"}) {
		t.Errorf("Names() = %v", got)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestCredentialStore_ValuesLongestFirst(t *testing.T) {
	t.Parallel()

	s := NewCredentialStore()
	s.Set("short", "abc")
	s.Set("long", "abcdef")

	if got := s.Values(); !slices.Equal(got, []string{"abcdef", "abc"}) {
		t.Errorf("Values() = %v", got)
	}

	r := &Redactor{}
	r.SyncCredentials(s)
	if got := r.Redact("key abcdef"); got != "key "+RedactPlaceholder {
		t.Errorf("Redact = %q", got)
	}
}

func TestCredentialStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := NewCredentialStore()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Set(fmt.Sprintf("key-%d", i), "value")
		}()
		go func() {
			defer wg.Done()
			_ = s.Values()
		}()
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Errorf("Len() = %d, want 50", s.Len())
	}
}
