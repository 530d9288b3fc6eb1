// Package text prepares job text for the voice model.
package text

import (
	"regexp"
	"strings"
)

const whitespaceRegexPattern = `\s+`

// Punctuation the model's tokenizer does not handle well.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
	nbsp         = "\u00a0"
)

// Normalizer cleans job text without changing its wording.
type Normalizer struct {
	whitespacePattern *regexp.Regexp
	punctuation       *strings.Replacer
}

// NewNormalizer creates a Normalizer with its patterns compiled upfront.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		punctuation: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			nbsp, " ",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize folds typographic quotes and dashes to ASCII and collapses runs of whitespace,
// including line breaks, into single spaces.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return text
	}

	text = n.punctuation.Replace(text)
	text = n.whitespacePattern.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}
