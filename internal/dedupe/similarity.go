package dedupe

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"github.com/samber/lo"

	"github.com/conorfennell/recall/internal/domain"
)

// DefaultThreshold is the similarity at or above which two texts are
// reported as duplicates.
const DefaultThreshold = 0.8

// Field selects which sentence text a candidate is compared against.
type Field string

const (
	FieldEnglish Field = "english"
	FieldTarget  Field = "target"
	FieldBoth    Field = "both"
)

// Match is an existing sentence similar to a candidate text.
type Match struct {
	Sentence   domain.Sentence `json:"sentence"`
	Similarity float64         `json:"similarity"`
	MatchType  Field           `json:"matchType"`
}

// Similarity scores two strings between 0 (unrelated) and 1 (identical,
// ignoring case and surrounding whitespace).
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	d := levenshtein.Distance(a, b, nil)
	return 1 - float64(d)/float64(max(la, lb))
}

// FindMatches compares text with every sentence's English text, and with its
// target text when field is FieldTarget. A sentence whose English and target
// texts both reach the threshold is reported as FieldBoth. Results are
// ordered by similarity, highest first.
func FindMatches(text string, sentences []domain.Sentence, field Field, threshold float64) []Match {
	var matches []Match
	for _, s := range sentences {
		var similarity float64
		matchType := FieldEnglish

		var englishSim, targetSim float64
		if s.EnglishText != "" {
			englishSim = Similarity(text, s.EnglishText)
			similarity = englishSim
		}
		if s.TargetText != "" {
			targetSim = Similarity(text, s.TargetText)
			if field == FieldTarget && targetSim > similarity {
				similarity = targetSim
				matchType = FieldTarget
			}
		}
		if s.EnglishText != "" && s.TargetText != "" && englishSim >= threshold && targetSim >= threshold {
			similarity = max(englishSim, targetSim)
			matchType = FieldBoth
		}

		if similarity >= threshold {
			matches = append(matches, Match{Sentence: s, Similarity: similarity, MatchType: matchType})
		}
	}
	slices.SortStableFunc(matches, func(a, b Match) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	return matches
}

// SegmentMatches holds the duplicates found for one transcribed segment.
type SegmentMatches struct {
	OriginalMatches []Match `json:"originalMatches"`
	EnglishMatches  []Match `json:"englishMatches"`
	// BothMatch is set when one sentence matches both texts.
	BothMatch bool `json:"bothMatch"`
}

// FindSegmentMatches checks a segment's target-language and English text.
func FindSegmentMatches(original, english string, sentences []domain.Sentence, threshold float64) SegmentMatches {
	res := SegmentMatches{
		OriginalMatches: FindMatches(original, sentences, FieldTarget, threshold),
		EnglishMatches:  FindMatches(english, sentences, FieldEnglish, threshold),
	}
	englishIDs := lo.Map(res.EnglishMatches, func(m Match, _ int) string { return m.Sentence.ID })
	res.BothMatch = lo.SomeBy(res.OriginalMatches, func(m Match) bool {
		return lo.Contains(englishIDs, m.Sentence.ID)
	})
	return res
}
