// Package text prepares input text before it reaches the synthesis service.
package text

import (
	"errors"
	"regexp"
	"strings"
)

// Punctuation the synthesis model reads poorly.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

// ErrTextEmpty is returned when nothing speakable is left after normalization.
var ErrTextEmpty = errors.New("text cannot be empty")

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	punctuation       = strings.NewReplacer(
		emDash, " - ",
		enDash, "-",
		figureDash, "-",
		ellipsisChar, ellipsis,
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
	)
)

// Normalize replaces typographic punctuation with ASCII, collapses runs of
// whitespace into single spaces and trims the result.
func Normalize(text string) (string, error) {
	normalized := punctuation.Replace(text)
	normalized = whitespacePattern.ReplaceAllString(normalized, " ")
	normalized = strings.TrimSpace(normalized)

	if normalized == "" {
		return "", ErrTextEmpty
	}

	return normalized, nil
}
