// Package transcript turns a transcribed recording into inbox sentences.
// Speech recognition and translation are collaborators supplied by the caller.
package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/conorfennell/recall/internal/domain"
)

// RawSegment is one timed span as returned by a speech recognizer.
type RawSegment struct {
	Start float64
	End   float64
	Text  string
}

// Transcription is the recognizer output for a whole recording.
type Transcription struct {
	Segments []RawSegment
	// Language is the detected language, as a name ("hungarian") or code.
	Language string
	Duration float64
}

// Transcriber converts speech to timed text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename, expectedLanguage string) (Transcription, error)
}

// Translator renders one sentence in English.
type Translator interface {
	Translate(ctx context.Context, sentence, sourceLanguage string) (string, error)
}

// Result is a transcription split into one sentence per segment.
type Result struct {
	Segments         []domain.Segment `json:"segments"`
	DetectedLanguage string           `json:"detectedLanguage"`
	LanguageMatch    bool             `json:"languageMatch"`
	Duration         float64          `json:"duration"`
}

// Process transcribes audio, splits every recognized span into sentences
// with proportionally divided timings, and translates each sentence. A
// sentence whose translation fails is kept with empty English text.
func Process(ctx context.Context, tr Transcriber, tl Translator, audio []byte, filename, expectedLanguage string) (Result, error) {
	raw, err := tr.Transcribe(ctx, audio, filename, expectedLanguage)
	if err != nil {
		return Result{}, fmt.Errorf("failed to transcribe %s: %w", filename, err)
	}

	var segments []domain.Segment
	for i, seg := range raw.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts := SplitSentences(text)
		step := (seg.End - seg.Start) / float64(len(parts))
		for j, part := range parts {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			start := seg.Start + float64(j)*step
			end := seg.Start + float64(j+1)*step
			if j == len(parts)-1 {
				end = seg.End
			}
			english, err := tl.Translate(ctx, part, expectedLanguage)
			if err != nil {
				slog.Warn("Translation failed, keeping sentence untranslated", "segment", i, "sentence", j, "error", err)
				english = ""
			}
			segments = append(segments, domain.Segment{
				ID:           fmt.Sprintf("segment-%d", len(segments)),
				Start:        start,
				End:          end,
				OriginalText: part,
				EnglishText:  strings.TrimSpace(english),
			})
		}
	}

	detected := LanguageCode(raw.Language)
	return Result{
		Segments:         segments,
		DetectedLanguage: detected,
		LanguageMatch:    LanguageMatches(raw.Language, expectedLanguage),
		Duration:         raw.Duration,
	}, nil
}

var languageNameToCode = map[string]string{
	"hungarian":  "hu",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"russian":    "ru",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"arabic":     "ar",
	"hindi":      "hi",
	"polish":     "pl",
	"turkish":    "tr",
	"dutch":      "nl",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "no",
	"finnish":    "fi",
	"czech":      "cs",
}

// LanguageCode maps a recognizer language name to its ISO 639-1 code.
// Unknown names are returned lowercased; empty input yields "unknown".
func LanguageCode(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return "unknown"
	}
	if code, ok := languageNameToCode[lower]; ok {
		return code
	}
	return lower
}

// LanguageMatches reports whether the detected language is the expected
// one. Any language matches when none is expected.
func LanguageMatches(detected, expected string) bool {
	if expected == "" {
		return true
	}
	exp := strings.ToLower(expected)
	lower := strings.ToLower(strings.TrimSpace(detected))
	code := LanguageCode(detected)
	return code == exp || lower == exp || strings.HasPrefix(lower, exp) || strings.HasPrefix(exp, code)
}

// FilterValidSegments keeps segments where either text is a valid sentence.
func FilterValidSegments(segments []domain.Segment) []domain.Segment {
	return lo.Filter(segments, func(s domain.Segment, _ int) bool {
		return IsValidSentence(s.OriginalText) || IsValidSentence(s.EnglishText)
	})
}

// ToSentences builds inbox sentences from the valid segments of a
// recording. Each sentence points at its span of audioURI using a media
// fragment and records the span length as its audio duration.
func ToSentences(segments []domain.Segment, languageCode, audioURI string, now time.Time, tags ...string) []domain.Sentence {
	valid := lo.Filter(FilterValidSegments(segments), func(s domain.Segment, _ int) bool {
		return strings.TrimSpace(s.EnglishText) != "" && s.Duration() > 0
	})
	return lo.Map(valid, func(seg domain.Segment, _ int) domain.Sentence {
		uri := fmt.Sprintf("%s#t=%.3f,%.3f", audioURI, seg.Start, seg.End)
		return domain.NewSentence(languageCode, strings.TrimSpace(seg.EnglishText), uri, now,
			domain.WithTargetText(strings.TrimSpace(seg.OriginalText)),
			domain.WithAudioDuration(seg.Duration()),
			domain.WithTags(tags...),
		)
	})
}
