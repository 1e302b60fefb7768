package domain

import "time"

// Segment is one timed span of a transcribed recording.
type Segment struct {
	ID           string  `json:"id"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	OriginalText string  `json:"originalText"`
	EnglishText  string  `json:"englishText"`
	IsAdjusted   bool    `json:"isAdjusted,omitempty"`
}

// Duration is the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// PendingAudio describes an uploaded recording waiting in the inbox to be
// transcribed and cut into sentences.
type PendingAudio struct {
	ID               string     `json:"id"`
	Filename         string     `json:"filename"`
	LanguageCode     string     `json:"languageCode"`
	DetectedLanguage string     `json:"detectedLanguage,omitempty"`
	UploadedAt       time.Time  `json:"uploadedAt"`
	ProcessedAt      *time.Time `json:"processedAt,omitempty"`
	Segments         []Segment  `json:"segments,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
}
