package common

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxTitleLength = 60

var whitespaceRuns = regexp.MustCompile(`\s+`)

// SessionTitle derives a display title from a conversation's opening message:
// whitespace collapsed, truncated on a word boundary where possible. Returns
// fallback when the message carries no usable text.
func SessionTitle(message, fallback string) string {
	title := whitespaceRuns.ReplaceAllString(strings.TrimSpace(message), " ")
	if title == "" {
		return fallback
	}
	if utf8.RuneCountInString(title) <= maxTitleLength {
		return title
	}

	runes := []rune(title)
	cut := maxTitleLength
	if idx := strings.LastIndex(string(runes[:maxTitleLength]), " "); idx > maxTitleLength/2 {
		cut = idx
	}
	return strings.TrimRight(string(runes[:cut]), " ") + "..."
}
