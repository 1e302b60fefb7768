package transcript

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

func TestSplitSentences(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "single without punctuation", input: "  jó reggelt  ", want: []string{"jó reggelt"}},
		{name: "two sentences", input: "Szia! Hogy vagy?", want: []string{"Szia!", "Hogy vagy?"}},
		{name: "quoted ending", input: `He said "Go." Then left.`, want: []string{`He said "Go."`, "Then left."}},
		{name: "ellipsis", input: "Well... maybe", want: []string{"Well...", "maybe"}},
		{name: "empty", input: "   ", want: nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SplitSentences(tc.input); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("SplitSentences(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestHasMultipleSentences(t *testing.T) {
	if !HasMultipleSentences("Szia. Érted?") {
		t.Error("expected a mid-text boundary before an accented capital")
	}
	if HasMultipleSentences("Only one sentence.") {
		t.Error("terminal punctuation is not a boundary")
	}
}

func TestIsValidSentence(t *testing.T) {
	testCases := map[string]bool{
		"":        false,
		"a":       false,
		"...":     false,
		"!!":      false,
		"ok":      true,
		"Jó":      true,
		"42":      true,
		"  é.  ":  true,
		"szia":    true,
		"- -":     false,
	}
	for input, want := range testCases {
		if got := IsValidSentence(input); got != want {
			t.Errorf("IsValidSentence(%q) = %v, want %v", input, got, want)
		}
	}
}

type fakeTranscriber struct {
	out Transcription
	err error
}

func (f fakeTranscriber) Transcribe(context.Context, []byte, string, string) (Transcription, error) {
	return f.out, f.err
}

type fakeTranslator map[string]string

func (f fakeTranslator) Translate(_ context.Context, sentence, _ string) (string, error) {
	if en, ok := f[sentence]; ok {
		return en, nil
	}
	return "", errors.New("no translation")
}

func TestProcess(t *testing.T) {
	tr := fakeTranscriber{out: Transcription{
		Language: "Hungarian",
		Duration: 10,
		Segments: []RawSegment{
			{Start: 0, End: 4, Text: "Szia! Hogy vagy?"},
			{Start: 4, End: 5, Text: "   "},
			{Start: 5, End: 9, Text: "Ismeretlen"},
		},
	}}
	tl := fakeTranslator{"Szia!": "Hi!", "Hogy vagy?": "How are you?"}

	res, err := Process(context.Background(), tr, tl, nil, "clip.mp3", "hu")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.DetectedLanguage != "hu" || !res.LanguageMatch || res.Duration != 10 {
		t.Errorf("result header = %+v", res)
	}
	want := []domain.Segment{
		{ID: "segment-0", Start: 0, End: 2, OriginalText: "Szia!", EnglishText: "Hi!"},
		{ID: "segment-1", Start: 2, End: 4, OriginalText: "Hogy vagy?", EnglishText: "How are you?"},
		{ID: "segment-2", Start: 5, End: 9, OriginalText: "Ismeretlen", EnglishText: ""},
	}
	if !reflect.DeepEqual(res.Segments, want) {
		t.Errorf("segments = %+v, want %+v", res.Segments, want)
	}

	_, err = Process(context.Background(), fakeTranscriber{err: errors.New("boom")}, tl, nil, "clip.mp3", "hu")
	if err == nil {
		t.Error("expected transcriber error to propagate")
	}
}

func TestLanguageMatches(t *testing.T) {
	testCases := []struct {
		detected, expected string
		want               bool
	}{
		{"hungarian", "hu", true},
		{"hu", "hu", true},
		{"spanish", "hu", false},
		{"portuguese", "pt-BR", true},
		{"anything", "", true},
	}
	for _, tc := range testCases {
		if got := LanguageMatches(tc.detected, tc.expected); got != tc.want {
			t.Errorf("LanguageMatches(%q, %q) = %v, want %v", tc.detected, tc.expected, got, tc.want)
		}
	}
	if LanguageCode("") != "unknown" || LanguageCode("Klingon") != "klingon" {
		t.Error("LanguageCode fallback wrong")
	}
}

func TestToSentences(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	segments := []domain.Segment{
		{ID: "segment-0", Start: 0.5, End: 2.25, OriginalText: "Szia!", EnglishText: "Hi!"},
		{ID: "segment-1", Start: 2.25, End: 3, OriginalText: "...", EnglishText: "..."},
		{ID: "segment-2", Start: 3, End: 4, OriginalText: "Ismeretlen", EnglishText: ""},
	}
	got := ToSentences(segments, "hu", "inbox/p1.mp3", now, "podcast")
	if len(got) != 1 {
		t.Fatalf("got %d sentences, want 1", len(got))
	}
	s := got[0]
	if s.EnglishText != "Hi!" || s.TargetText != "Szia!" || s.IsEligible || s.Scheduling.BoxLevel != 1 {
		t.Errorf("sentence = %+v", s)
	}
	if s.TargetAudioURI != "inbox/p1.mp3#t=0.500,2.250" {
		t.Errorf("uri = %q", s.TargetAudioURI)
	}
	if math.Abs(s.AudioDurationSeconds()-1.75) > 1e-9 {
		t.Errorf("duration = %v, want 1.75", s.AudioDurationSeconds())
	}
	if !reflect.DeepEqual(s.Tags, []string{"podcast"}) {
		t.Errorf("tags = %v", s.Tags)
	}
}
