// Package dedupe identifies sentences that already exist, either exactly by
// content hash or approximately by edit distance.
package dedupe

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Normalize concatenates the sentence texts after cleaning each part.
// It trims whitespace, lowercases, and normalizes line endings for each field
// before joining them.
func Normalize(english, target string) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}
	return normalizePart(english) + "\n" + normalizePart(target)
}

// Hash returns the SHA-256 of the normalized texts as a hex string.
func Hash(english, target string) string {
	sum := sha256.Sum256([]byte(Normalize(english, target)))
	return fmt.Sprintf("%x", sum)
}
