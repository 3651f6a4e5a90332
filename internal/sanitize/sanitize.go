// Package sanitize masks personal data in a message before it is sent to a
// hosted model, and puts the originals back into the model's answer.
//
// Usage:
//
//	s := sanitize.New(sanitize.DefaultPatterns())
//	masked, tm := s.Redact(message)
//	// send masked to the model
//	answer = tm.Restore(answer)
package sanitize

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

// TokenMap holds the bidirectional mapping for one message. Not safe for
// concurrent Redact calls; Restore may be called from any goroutine.
type TokenMap struct {
	toToken   map[string]string // original value -> «LABEL_N»
	fromToken map[string]string // «LABEL_N» -> original value
	next      map[string]int    // per-label counter
}

func newTokenMap() *TokenMap {
	return &TokenMap{
		toToken:   make(map[string]string),
		fromToken: make(map[string]string),
		next:      make(map[string]int),
	}
}

// register records a mapping and returns the placeholder token.
// If the original was already registered, the existing token is returned.
func (m *TokenMap) register(label, original string) string {
	if tok, ok := m.toToken[original]; ok {
		return tok
	}
	m.next[label]++
	tok := fmt.Sprintf("«%s_%d»", label, m.next[label])
	m.toToken[original] = tok
	m.fromToken[tok] = original
	return tok
}

// Restore replaces all placeholder tokens in text with their original values.
func (m *TokenMap) Restore(text string) string {
	if m == nil {
		return text
	}
	for tok, orig := range m.fromToken {
		text = strings.ReplaceAll(text, tok, orig)
	}
	return text
}

// IsEmpty reports whether no replacements were recorded.
func (m *TokenMap) IsEmpty() bool {
	return m == nil || len(m.toToken) == 0
}

// Count returns the number of distinct values that were redacted.
func (m *TokenMap) Count() int {
	if m == nil {
		return 0
	}
	return len(m.toToken)
}

// Redaction describes a single redacted value for display.
type Redaction struct {
	Token    string `json:"token"`
	Original string `json:"original"`
}

// Redactions returns all recorded replacements ordered by token.
func (m *TokenMap) Redactions() []Redaction {
	if m == nil {
		return nil
	}
	out := make([]Redaction, 0, len(m.fromToken))
	for tok, orig := range m.fromToken {
		out = append(out, Redaction{Token: tok, Original: orig})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

// tokenPlaceholderRe matches our own markers so they are never re-redacted.
var tokenPlaceholderRe = regexp.MustCompile(`«[A-Z]+_\d+»`)

// Sanitizer runs its classifiers and swaps detected spans for placeholders.
type Sanitizer struct {
	classifiers []Classifier
}

// New creates a Sanitizer from an ordered list of classifiers.
func New(classifiers ...Classifier) *Sanitizer {
	return &Sanitizer{classifiers: classifiers}
}

// Redact returns text with every detected span replaced by a placeholder,
// plus the map needed to restore them.
func (s *Sanitizer) Redact(text string) (string, *TokenMap) {
	tm := newTokenMap()
	var spans []Span
	for _, c := range s.classifiers {
		spans = append(spans, c.Classify(text)...)
	}
	if len(spans) == 0 {
		return text, tm
	}

	spans = validSpans(text, spans)
	spans = deduplicateSpans(spans)

	// Register left to right so numbering follows reading order, then
	// replace right to left so earlier offsets stay valid.
	tokens := make([]string, len(spans))
	for i, sp := range spans {
		tokens[i] = tm.register(sp.Label, text[sp.Start:sp.End])
	}
	out := text
	for i := len(spans) - 1; i >= 0; i-- {
		sp := spans[i]
		out = out[:sp.Start] + tokens[i] + out[sp.End:]
	}
	slog.Debug("sanitize: redacted", "count", tm.Count())
	return out, tm
}

// validSpans drops spans with bad offsets, spans that split a UTF-8
// sequence, and spans covering an existing placeholder.
func validSpans(text string, spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	for _, sp := range spans {
		if sp.Start < 0 || sp.End > len(text) || sp.Start >= sp.End {
			continue
		}
		if !isRuneBoundary(text, sp.Start) || !isRuneBoundary(text, sp.End) {
			continue
		}
		if tokenPlaceholderRe.MatchString(text[sp.Start:sp.End]) {
			continue
		}
		out = append(out, sp)
	}
	return out
}

// deduplicateSpans sorts by start and drops spans overlapping an earlier
// kept one. For equal starts the first classifier's span wins.
func deduplicateSpans(spans []Span) []Span {
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	out := make([]Span, 0, len(spans))
	lastEnd := -1
	for _, sp := range spans {
		if sp.Start >= lastEnd {
			out = append(out, sp)
			lastEnd = sp.End
		}
	}
	return out
}

func isRuneBoundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}
