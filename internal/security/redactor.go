// Package security keeps secrets and personal data out of logs and
// persisted records, limits request rates per organization and bounds
// untrusted request bodies.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches map keys that likely hold secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|key|credential)`)

// Scrubber rewrites text to remove sensitive content, for example a PII
// detector replacing entities with typed placeholders.
type Scrubber interface {
	Scrub(text string) string
}

// Redactor replaces secrets in strings and maps. It matches known key
// formats, literal credential values loaded at runtime, and, when
// scrubbers are attached, personal data. Safe for concurrent use.
type Redactor struct {
	mu        sync.RWMutex
	patterns  []*regexp.Regexp
	literals  []string
	scrubbers []Scrubber
}

// NewRedactor returns a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern registers an extra secret pattern.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral registers a literal secret. Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// AddScrubber attaches a scrubber that runs after secret redaction.
func (r *Redactor) AddScrubber(s Scrubber) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrubbers = append(r.scrubbers, s)
}

// SyncCredentials replaces the literal secrets with the values held by
// store.
func (r *Redactor) SyncCredentials(store *CredentialStore) {
	values := store.Values()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = values
}

// Redact returns s with every known secret replaced by RedactPlaceholder
// and every attached scrubber applied.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns, literals, scrubbers := r.patterns, r.literals, r.scrubbers
	r.mu.RUnlock()

	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	for _, sc := range scrubbers {
		s = sc.Scrub(s)
	}
	return s
}

// RedactMap walks a decoded YAML or JSON document in place. Values under
// secret-looking keys are replaced outright; other strings go through
// Redact.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if secretKeyPattern.MatchString(k) {
			if s, ok := v.(string); ok && s != "" {
				m[k] = RedactPlaceholder
				continue
			}
		}
		switch val := v.(type) {
		case map[string]any:
			r.RedactMap(val)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					r.RedactMap(sub)
				}
			}
		case string:
			if redacted := r.Redact(val); redacted != val {
				m[k] = redacted
			}
		}
	}
}

// DefaultPatterns returns the key formats redacted by default: OpenAI
// and Anthropic API keys and bearer tokens.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Anthropic before OpenAI: both start with "sk-".
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{20,}`),
		regexp.MustCompile(`sk-(proj-)?[a-zA-Z0-9\-_]{20,}`),
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-._~+/]{16,}=*`),
	}
}
