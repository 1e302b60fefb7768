// Package importer reads sentence decks from CSV, JSON and XLSX files.
package importer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"github.com/conorfennell/recall/internal/domain"
)

// DefaultLanguage is used for rows that name no language.
const DefaultLanguage = "hu"

var ErrUnsupportedFormat = errors.New("importer: unsupported file format")

// ImportRow is one sentence read from a deck file.
type ImportRow struct {
	ID       string
	English  string
	Target   string
	Language string
	Tags     []string
}

// Sentence builds an inbox sentence from the row.
func (r ImportRow) Sentence(audioURI string, now time.Time) domain.Sentence {
	opts := []domain.SentenceOption{domain.WithID(r.ID)}
	if r.Target != "" {
		opts = append(opts, domain.WithTargetText(r.Target))
	}
	if len(r.Tags) > 0 {
		opts = append(opts, domain.WithTags(r.Tags...))
	}
	return domain.NewSentence(r.Language, r.English, audioURI, now, opts...)
}

// ParseFile reads a deck from path, choosing the parser by extension.
func ParseFile(path string) ([]ImportRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ParseCSV(file)
	case ".json":
		return ParseJSON(file)
	case ".xlsx":
		return ParseXLSX(file)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
}

// IsDeckFile reports whether ParseFile understands the file's extension.
func IsDeckFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".json", ".xlsx":
		return true
	}
	return false
}

// ParseCSV reads a deck whose first record is a header row.
func ParseCSV(r io.Reader) ([]ImportRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV: %w", err)
	}
	return fromTable(records), nil
}

// ParseXLSX reads the first sheet of a workbook whose first row is a header row.
func ParseXLSX(r io.Reader) ([]ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return fromTable(rows), nil
}

type jsonRow struct {
	EnglishTranslationText string   `json:"english_translation_text"`
	English                string   `json:"english"`
	Translation            string   `json:"translation"`
	TargetText             string   `json:"target_text"`
	Target                 string   `json:"target"`
	LanguageCode           string   `json:"language_code"`
	Language               string   `json:"language"`
	Tags                   []string `json:"tags"`
	ID                     string   `json:"id"`
}

// ParseJSON reads a deck stored as a JSON array of objects. Any other
// top-level value yields no rows.
func ParseJSON(r io.Reader) ([]ImportRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid JSON format")
	}
	if len(data) == 0 || data[0] != '[' {
		return nil, nil
	}
	var items []jsonRow
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	rows := lo.Map(items, func(item jsonRow, _ int) ImportRow {
		return ImportRow{
			ID:       item.ID,
			English:  firstNonEmpty(item.EnglishTranslationText, item.English, item.Translation),
			Target:   firstNonEmpty(item.TargetText, item.Target),
			Language: firstNonEmpty(item.LanguageCode, item.Language, DefaultLanguage),
			Tags:     item.Tags,
		}
	})
	return lo.Filter(rows, func(row ImportRow, _ int) bool {
		return row.English != ""
	}), nil
}

// fromTable maps header names to fields and drops rows without English text.
func fromTable(records [][]string) []ImportRow {
	if len(records) == 0 {
		return nil
	}
	headers := lo.Map(records[0], func(h string, _ int) string {
		return strings.ToLower(strings.TrimSpace(h))
	})

	var rows []ImportRow
	for _, record := range records[1:] {
		if strings.TrimSpace(strings.Join(record, "")) == "" {
			continue
		}
		var row ImportRow
		for i, header := range headers {
			value := ""
			if i < len(record) {
				value = strings.TrimSpace(record[i])
			}
			switch header {
			case "english_translation_text", "english", "translation":
				row.English = value
			case "target_text", "target", "text":
				row.Target = value
			case "language_code", "language":
				row.Language = value
			case "tags":
				row.Tags = splitTags(value)
			case "id":
				row.ID = value
			}
		}
		if row.English == "" {
			continue
		}
		if row.Language == "" {
			row.Language = DefaultLanguage
		}
		rows = append(rows, row)
	}
	return rows
}

func splitTags(value string) []string {
	if value == "" {
		return nil
	}
	tags := lo.Map(strings.Split(value, ";"), func(t string, _ int) string {
		return strings.TrimSpace(t)
	})
	return lo.Compact(tags)
}

func firstNonEmpty(values ...string) string {
	v, _ := lo.Find(values, func(s string) bool { return s != "" })
	return v
}
