package importer

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

// MaxAudioFileSize is the largest accepted recording.
const MaxAudioFileSize = 5 * 1024 * 1024

var (
	ErrInvalidAudioFormat = errors.New("importer: invalid audio format")
	ErrAudioTooLarge      = errors.New("importer: audio file too large")
)

var audioExt = regexp.MustCompile(`(?i)\.(mp3|wav|m4a)$`)

// ValidateAudioFile accepts MP3 files no larger than MaxAudioFileSize.
// Either the content type or the file extension may identify the format.
func ValidateAudioFile(name, contentType string, size int64) error {
	if !strings.Contains(contentType, "audio/mpeg") && !strings.EqualFold(filepath.Ext(name), ".mp3") {
		return fmt.Errorf("%w: %s, expected MP3", ErrInvalidAudioFormat, contentType)
	}
	if size > MaxAudioFileSize {
		return fmt.Errorf("%w: %.2fMB, maximum size is 5MB", ErrAudioTooLarge, float64(size)/1024/1024)
	}
	return nil
}

// AudioFile is an uploaded recording awaiting a sentence.
type AudioFile struct {
	Filename   string
	SentenceID string
}

// MatchAudio maps row ID to audio filename. A file matches the row named by
// its SentenceID, otherwise the first row whose ID equals the filename stem
// or whose English text contains it.
func MatchAudio(files []AudioFile, rows []ImportRow) map[string]string {
	mapping := make(map[string]string)
	for _, file := range files {
		if file.SentenceID != "" {
			if row, ok := lo.Find(rows, func(r ImportRow) bool { return r.ID == file.SentenceID }); ok {
				mapping[row.ID] = file.Filename
				continue
			}
		}

		stem := audioExt.ReplaceAllString(filepath.Base(file.Filename), "")
		if stem == "" {
			continue
		}
		row, ok := lo.Find(rows, func(r ImportRow) bool {
			return r.ID == stem || strings.Contains(strings.ToLower(r.English), strings.ToLower(stem))
		})
		if ok {
			mapping[row.ID] = file.Filename
		}
	}
	return mapping
}
