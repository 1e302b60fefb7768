package transcript

import (
	"regexp"
	"strings"
)

var (
	sentenceEnd     = regexp.MustCompile(`([.!?]+["']?)\s+`)
	midTextBoundary = regexp.MustCompile(`[.!?]+["']?\s+[A-Z\x{00C0}-\x{017F}]`)
	hasContent      = regexp.MustCompile(`[\p{L}\p{N}]`)
)

// SplitSentences breaks text at sentence-ending punctuation followed by
// whitespace. Text without such a boundary is returned whole.
func SplitSentences(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var out []string
	last := 0
	for _, m := range sentenceEnd.FindAllStringSubmatchIndex(trimmed, -1) {
		if s := strings.TrimSpace(trimmed[last:m[3]]); s != "" {
			out = append(out, s)
		}
		last = m[1]
	}
	if rest := strings.TrimSpace(trimmed[last:]); rest != "" {
		out = append(out, rest)
	}
	if len(out) == 0 {
		return []string{trimmed}
	}
	return out
}

// HasMultipleSentences reports whether a sentence boundary occurs before
// the end of text.
func HasMultipleSentences(text string) bool {
	return midTextBoundary.MatchString(strings.TrimSpace(text))
}

// IsValidSentence accepts text of at least two characters containing a
// letter or digit. Terminal punctuation is not required.
func IsValidSentence(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < 2 {
		return false
	}
	return hasContent.MatchString(trimmed)
}
