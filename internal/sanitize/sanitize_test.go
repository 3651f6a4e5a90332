package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact_MasksAndRestores(t *testing.T) {
	s := New(DefaultPatterns())
	msg := "Hi, this is your bank. Email support@bank-secure.com or call +1 415 555 0199. " +
		"Confirm card 4111 1111 1111 1111 and IBAN DE89 3704 0044 0532 0130 00."

	masked, tm := s.Redact(msg)

	assert.NotContains(t, masked, "support@bank-secure.com")
	assert.NotContains(t, masked, "4111 1111 1111 1111")
	assert.NotContains(t, masked, "DE89 3704 0044 0532 0130 00")
	assert.NotContains(t, masked, "555 0199")
	assert.Contains(t, masked, "«EMAIL_1»")
	assert.Contains(t, masked, "«CARD_1»")
	assert.Contains(t, masked, "«IBAN_1»")
	assert.Contains(t, masked, "«PHONE_1»")
	assert.Equal(t, 4, tm.Count())

	assert.Equal(t, msg, tm.Restore(masked))
}

func TestRedact_SameValueSameToken(t *testing.T) {
	s := New(DefaultPatterns())
	masked, tm := s.Redact("write a@b.io, then again a@b.io, or c@d.io")

	assert.Equal(t, 2, tm.Count())
	assert.Equal(t, 2, strings.Count(masked, "«EMAIL_1»"))
	assert.Contains(t, masked, "«EMAIL_2»")

	red := tm.Redactions()
	require.Len(t, red, 2)
	assert.Equal(t, "«EMAIL_1»", red[0].Token)
	assert.Equal(t, "a@b.io", red[0].Original)
}

func TestRedact_NothingToMask(t *testing.T) {
	s := New(DefaultPatterns())
	msg := "See you at 5 for dinner in 2024"
	masked, tm := s.Redact(msg)
	assert.Equal(t, msg, masked)
	assert.True(t, tm.IsEmpty())
}

func TestRedact_InvalidCardNotMasked(t *testing.T) {
	s := New(DefaultPatterns())
	masked, _ := s.Redact("order 1234 5678 9012 3456 shipped")
	assert.NotContains(t, masked, "«CARD_")
}

type fixedClassifier []Span

func (f fixedClassifier) Classify(string) []Span { return f }

func TestRedact_DropsBadAndOverlappingSpans(t *testing.T) {
	text := "abc «EMAIL_1» défg"
	s := New(fixedClassifier{
		{Start: -1, End: 2, Label: "X"},
		{Start: 0, End: 3, Label: "X"},
		{Start: 1, End: 2, Label: "Y"},                    // overlaps the first kept span
		{Start: 4, End: 4 + len("«EMAIL_1»"), Label: "Z"}, // placeholder
		{Start: len(text) - 4, End: len(text), Label: "X"},
		{Start: len(text) - 3, End: len(text) - 2, Label: "X"}, // splits é
	})
	masked, tm := s.Redact(text)
	assert.Equal(t, 2, tm.Count())
	assert.True(t, strings.HasPrefix(masked, "«X_1» «EMAIL_1»"))
	assert.Equal(t, text, tm.Restore(masked))
}

func TestNilTokenMap(t *testing.T) {
	var tm *TokenMap
	assert.True(t, tm.IsEmpty())
	assert.Equal(t, "x", tm.Restore("x"))
	assert.Nil(t, tm.Redactions())
}
