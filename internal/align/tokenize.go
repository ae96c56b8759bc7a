package align

import (
	"regexp"
	"strings"
)

var (
	parenRe = regexp.MustCompile(`\([^)]*\)`)
	// \w would be ASCII-only here; accented letters must survive intact.
	punctRe = regexp.MustCompile(`[^\p{L}\p{N}_']+`)

	smartPunct = strings.NewReplacer("…", "...", "’", "'", "‘", "'")
)

// Tokenize normalizes reference text into comparison tokens: parenthetical
// content removed, smart punctuation mapped to ASCII, lower-cased, all
// punctuation except apostrophes dropped.
func Tokenize(text string) []string {
	text = parenRe.ReplaceAllString(text, " ")
	text = strings.ToLower(smartPunct.Replace(text))
	text = punctRe.ReplaceAllString(text, " ")
	return strings.Fields(text)
}

// NormalizeToken applies the same normalization to a single hypothesis word.
// The result may be empty for purely non-lexical tokens.
func NormalizeToken(word string) string {
	w := strings.ToLower(smartPunct.Replace(strings.TrimSpace(word)))
	return punctRe.ReplaceAllString(w, "")
}
