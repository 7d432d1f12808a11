// Package ctxengine turns unbounded conversation history into a
// token-bounded window for one model call, summarizing older turns when
// the history grows too long.
package ctxengine

// DefaultMaxMessages is the message count above which a conversation
// is summarized regardless of its token estimate.
const DefaultMaxMessages = 20

// Config holds the tuning knobs for the context manager.
type Config struct {
	// MaxContextTokens is the hard context budget. Default: 8000.
	MaxContextTokens int `yaml:"max_context_tokens"`

	// ReserveTokens is kept free for the system prompt and the new turn.
	// Default: 2000.
	ReserveTokens int `yaml:"reserve_tokens"`

	// SummaryThreshold triggers summarization when the history estimate
	// exceeds it. Default: 6000.
	SummaryThreshold int `yaml:"summary_threshold"`

	// MaxMessages triggers summarization when the history holds more
	// messages. Default: 20.
	MaxMessages int `yaml:"max_messages"`

	// RetainRecent is the number of most recent messages left out of a
	// summary and sent verbatim. Default: 10.
	RetainRecent int `yaml:"retain_recent"`
}

// withDefaults returns a copy of cfg with zero-valued fields replaced by
// sensible defaults.
func (cfg Config) withDefaults() Config {
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = 8000
	}
	if cfg.ReserveTokens <= 0 {
		cfg.ReserveTokens = 2000
	}
	if cfg.SummaryThreshold <= 0 {
		cfg.SummaryThreshold = 6000
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}
	if cfg.RetainRecent <= 0 {
		cfg.RetainRecent = 10
	}
	return cfg
}
