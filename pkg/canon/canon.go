// Package canon turns free-form utterance text into the lookup key shared by
// ingestion and query time. Both sides must go through [Canonicalize] or
// exact matching stops working.
package canon

import (
	"strings"
	"unicode"
)

// punctuation maps typographic punctuation to the ASCII form players type.
var punctuation = strings.NewReplacer(
	"’", "'",
	"‘", "'",
	"“", `"`,
	"”", `"`,
	"–", "-",
	"—", "-",
	"•", "-",
	"…", "...",
)

// Canonicalize returns the canonical form of text. Smart punctuation is
// folded to ASCII and the text is lowercased. Runes other than letters,
// numbers and alphabetic combining marks become spaces, and whitespace
// collapses to single interior spaces. It is pure and idempotent.
func Canonicalize(text string) string {
	text = strings.ToLower(punctuation.Replace(text))
	text = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Other_Alphabetic, r) {
			return r
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(text), " ")
}
