package sanitize

import "regexp"

// Span describes a sensitive substring detected within a text.
type Span struct {
	Start int    // byte offset of the first character (UTF-8)
	End   int    // byte offset one past the last character
	Label string // e.g. "EMAIL", "PHONE", "CARD", "IBAN"
}

// Classifier detects sensitive spans in a text string.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(text string) []Span
}

// pattern is one labelled regular expression.
type pattern struct {
	label string
	re    *regexp.Regexp
	valid func(string) bool
}

// Patterns is a rule-based Classifier for personal data that commonly
// appears in pasted messages.
type Patterns struct {
	rules []pattern
}

// DefaultPatterns detects emails, IBANs, payment card numbers and phone
// numbers. Order matters: earlier rules win on overlap.
func DefaultPatterns() *Patterns {
	return &Patterns{rules: []pattern{
		{label: "EMAIL", re: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
		{label: "IBAN", re: regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,3})?\b`)},
		{label: "CARD", re: regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`), valid: luhn},
		{label: "PHONE", re: regexp.MustCompile(`(?:\+\d{1,3}[ \-.]?)?(?:\(\d{2,4}\)[ \-.]?)?\d{3,4}[ \-.]?\d{3,4}(?:[ \-.]?\d{2,4})?`), valid: phoneDigits},
	}}
}

// Classify implements Classifier.
func (p *Patterns) Classify(text string) []Span {
	var spans []Span
	for _, r := range p.rules {
		for _, loc := range r.re.FindAllStringIndex(text, -1) {
			if r.valid != nil && !r.valid(text[loc[0]:loc[1]]) {
				continue
			}
			spans = append(spans, Span{Start: loc[0], End: loc[1], Label: r.label})
		}
	}
	return spans
}

// luhn reports whether the digits in s pass the Luhn checksum.
func luhn(s string) bool {
	sum, n := 0, 0
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
		n++
	}
	return n >= 13 && sum%10 == 0
}

// phoneDigits rejects short numbers like years or prices.
func phoneDigits(s string) bool {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			n++
		}
	}
	return n >= 9 && n <= 15
}
