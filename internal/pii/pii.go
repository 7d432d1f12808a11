// Package pii detects and redacts personal data in free text: email
// addresses, phone numbers, IBANs, payment card numbers, Dutch citizen
// service numbers (BSN) and IPv4 addresses.
package pii

import (
	"regexp"
	"slices"
	"sort"
	"strings"
)

// Type names a category of personal data.
type Type string

// Detected categories.
const (
	TypeEmail      Type = "EMAIL"
	TypePhone      Type = "PHONE"
	TypeIBAN       Type = "IBAN"
	TypeCreditCard Type = "CREDIT_CARD"
	TypeBSN        Type = "BSN"
	TypeIPAddress  Type = "IP_ADDRESS"
)

// DefaultMinConfidence is the threshold used when callers pass zero.
const DefaultMinConfidence = 0.7

// Detection is one located entity. Start and End are byte offsets into
// the scanned text. The raw value is deliberately not stored.
type Detection struct {
	Type       Type    `json:"type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Placeholder returns the replacement text for a detection type.
func Placeholder(t Type) string {
	return "[" + string(t) + "]"
}

// rule is one detection family: a candidate pattern plus a scorer that
// assigns confidence to a match (zero discards it).
type rule struct {
	typ   Type
	re    *regexp.Regexp
	score func(match string) float64
}

var rules = []rule{
	{
		typ:   TypeEmail,
		re:    regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
		score: func(string) float64 { return 0.95 },
	},
	{
		typ:   TypeIBAN,
		re:    regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,3})?\b`),
		score: scoreIBAN,
	},
	{
		typ:   TypeCreditCard,
		re:    regexp.MustCompile(`\b\d(?:[ -]?\d){12,18}\b`),
		score: scoreCard,
	},
	{
		typ:   TypeBSN,
		re:    regexp.MustCompile(`\b\d{9}\b`),
		score: scoreBSN,
	},
	{
		typ:   TypePhone,
		re:    regexp.MustCompile(`(?:\+\d{1,3}[ .-]?|\b0)\d{1,3}[ .-]?\d{3,4}[ .-]?\d{3,4}\b`),
		score: func(string) float64 { return 0.75 },
	},
	{
		typ:   TypeIPAddress,
		re:    regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		score: scoreIPv4,
	},
}

// Detector finds personal data with the built-in rule set. The zero
// value is ready to use and safe for concurrent use.
type Detector struct{}

// NewDetector returns a Detector.
func NewDetector() *Detector { return &Detector{} }

// Detect returns non-overlapping detections at or above minConfidence,
// ordered by position. When two candidates overlap the more confident
// one wins, then the longer one.
func (*Detector) Detect(text string, minConfidence float64) []Detection {
	if text == "" {
		return nil
	}
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}

	var candidates []Detection
	for _, r := range rules {
		for _, loc := range r.re.FindAllStringIndex(text, -1) {
			conf := r.score(text[loc[0]:loc[1]])
			if conf < minConfidence {
				continue
			}
			candidates = append(candidates, Detection{Type: r.typ, Start: loc[0], End: loc[1], Confidence: conf})
		}
	}
	return resolveOverlaps(candidates)
}

// Redact replaces every detection span with its placeholder. Spans are
// applied right to left so earlier offsets stay valid. Detections that
// fall outside text or overlap an already-applied span are ignored.
func (*Detector) Redact(text string, dets []Detection) string {
	if len(dets) == 0 {
		return text
	}
	ordered := slices.Clone(dets)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	out := text
	limit := len(text)
	for _, d := range ordered {
		if d.Start < 0 || d.End > limit || d.Start >= d.End {
			continue
		}
		out = out[:d.Start] + Placeholder(d.Type) + out[d.End:]
		limit = d.Start
	}
	return out
}

// Scrub detects and redacts in one step using the default threshold.
func (d *Detector) Scrub(text string) string {
	return d.Redact(text, d.Detect(text, DefaultMinConfidence))
}

// Types returns the distinct detection types, sorted, for logging.
func Types(dets []Detection) []string {
	seen := make(map[Type]struct{}, len(dets))
	var out []string
	for _, d := range dets {
		if _, ok := seen[d.Type]; ok {
			continue
		}
		seen[d.Type] = struct{}{}
		out = append(out, string(d.Type))
	}
	sort.Strings(out)
	return out
}

func resolveOverlaps(cands []Detection) []Detection {
	if len(cands) == 0 {
		return nil
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Confidence != cands[j].Confidence {
			return cands[i].Confidence > cands[j].Confidence
		}
		return cands[i].End-cands[i].Start > cands[j].End-cands[j].Start
	})

	var kept []Detection
	for _, c := range cands {
		if !slices.ContainsFunc(kept, func(k Detection) bool { return c.Start < k.End && k.Start < c.End }) {
			kept = append(kept, c)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
