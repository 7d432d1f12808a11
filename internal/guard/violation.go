package guard

import (
	"errors"
	"fmt"
)

// Kind names the policy a violation belongs to.
type Kind string

// Violation kinds.
const (
	KindModeration Kind = "moderation"
	KindPII        Kind = "pii"
	KindInjection  Kind = "injection"
	KindTopic      Kind = "topic"
)

// SeverityBlock is the only severity raised by the chain.
const SeverityBlock = "block"

// userMessages are the fixed, non-revealing texts shown to end users.
var userMessages = map[Kind]string{
	KindModeration: "Your message was flagged by content safety and could not be processed.",
	KindPII:        "Your message appears to contain personal information. Please remove it and try again.",
	KindInjection:  "Your message was blocked because it appears to try to change how the assistant operates.",
	KindTopic:      "Your message concerns a topic the assistant cannot help with.",
}

// Violation is a policy veto raised by a chain stage. It is fatal to
// the current request and must never be retried. Details carry
// classification metadata only, never matched text or raw content.
type Violation struct {
	Kind     Kind           `json:"kind"`
	Severity string         `json:"severity"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

func newViolation(kind Kind, msg string, details map[string]any) *Violation {
	return &Violation{Kind: kind, Severity: SeverityBlock, Message: msg, Details: details}
}

func (v *Violation) Error() string {
	return fmt.Sprintf("guardrail violation (%s): %s", v.Kind, v.Message)
}

// NonRetryable marks violations so retry logic never repeats the call.
func (v *Violation) NonRetryable() bool { return true }

// UserMessage returns the fixed explanation shown to the end user.
func (v *Violation) UserMessage() string {
	if m, ok := userMessages[v.Kind]; ok {
		return m
	}
	return "Your message could not be processed."
}

// AsViolation extracts a *Violation from err's chain.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
