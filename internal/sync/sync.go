// Package sync reconciles deck sources with the sentence store.
package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/recall/internal/dedupe"
	"github.com/conorfennell/recall/internal/gitsource"
	"github.com/conorfennell/recall/internal/importer"
	"github.com/conorfennell/recall/internal/storage"
)

// Report summarises one reconciliation pass.
type Report struct {
	Sources  int
	Parsed   int
	Inserted int
	Restored int
	Retired  int
	Errors   int
}

func (r *Report) add(o Report) {
	r.Parsed += o.Parsed
	r.Inserted += o.Inserted
	r.Restored += o.Restored
	r.Retired += o.Retired
	r.Errors += o.Errors
}

// AddSource registers a local directory or git URL. Local paths are stored
// absolute. Adding a known source is a no-op that returns its ID.
func AddSource(ctx context.Context, db *storage.DB, path string) (int64, error) {
	typ := storage.SourceLocal
	if IsGitURL(path) {
		typ = storage.SourceGit
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve path %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return 0, fmt.Errorf("failed to stat source %s: %w", abs, err)
		}
		if !info.IsDir() {
			return 0, fmt.Errorf("source %s is not a directory", abs)
		}
		path = abs
	}

	existing, err := db.FindSourceByPath(ctx, path)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}
	id, err := db.InsertSource(ctx, path, typ)
	if err != nil {
		return 0, err
	}
	slog.Info("Added source", "id", id, "type", typ, "path", path)
	return id, nil
}

// IsGitURL reports whether path names a remote repository.
func IsGitURL(path string) bool {
	return strings.HasSuffix(path, ".git") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "http://") ||
		strings.HasPrefix(path, "git@")
}

// RunSync iterates over all sources and reconciles them. A source that
// fails to sync is logged and skipped.
func RunSync(ctx context.Context, db *storage.DB, reposDir string, now time.Time) (Report, error) {
	slog.Info("Starting sync process for all sources...")
	sources, err := db.Sources(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to get sources: %w", err)
	}

	var report Report
	if len(sources) == 0 {
		slog.Info("No sources configured. Add one with --add-source <path/or/url.git>")
		return report, nil
	}

	if err := os.MkdirAll(reposDir, os.ModePerm); err != nil {
		return Report{}, fmt.Errorf("failed to create repos directory: %w", err)
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		slog.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		dir := source.Path
		if source.Type == storage.SourceGit {
			localRepoPath, err := gitURLToLocalPath(reposDir, source.Path)
			if err != nil {
				slog.Error("Error determining local path for git repo", "url", source.Path, "error", err)
				report.Errors++
				continue
			}
			if err := gitsource.Sync(ctx, source.Path, localRepoPath); err != nil {
				slog.Error("Error syncing git repo", "url", source.Path, "error", err)
				report.Errors++
				continue
			}
			dir = localRepoPath
		}

		r, err := reconcileSource(ctx, db, source.ID, dir, now)
		if err != nil {
			slog.Error("Error reconciling source", "id", source.ID, "path", dir, "error", err)
			report.Errors++
			continue
		}
		report.Sources++
		report.add(r)
	}
	slog.Info("Sync process complete.",
		"sources", report.Sources,
		"inserted", report.Inserted,
		"restored", report.Restored,
		"retired", report.Retired,
		"errors", report.Errors,
	)
	return report, nil
}

// reconcileSource inserts sentences new to the source, restores ones that
// reappeared and retires ones no longer present. Retired sentences keep
// their history and are only made ineligible.
func reconcileSource(ctx context.Context, db *storage.DB, sourceID int64, dir string, now time.Time) (Report, error) {
	var report Report

	known, err := db.SentencesBySource(ctx, sourceID)
	if err != nil {
		return report, err
	}
	byHash := make(map[string]storage.SourcedSentence, len(known))
	for _, s := range known {
		byHash[s.ContentHash] = s
	}
	found := make(map[string]bool)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !importer.IsDeckFile(d.Name()) {
			return nil
		}
		r, err := reconcileDeck(ctx, db, sourceID, path, byHash, found, now)
		if err != nil {
			slog.Warn("Failed to import deck", "path", path, "error", err)
			report.Errors++
		}
		report.add(r)
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	for hash, s := range byHash {
		if found[hash] || !s.Sentence.IsEligible {
			continue
		}
		slog.Info("Sentence removed from source, retiring", "sentence_id", s.Sentence.ID, "hash", hash)
		s.Sentence.IsEligible = false
		if err := db.UpdateSentence(ctx, s.Sentence); err != nil {
			slog.Warn("Failed to retire sentence", "sentence_id", s.Sentence.ID, "error", err)
			report.Errors++
			continue
		}
		report.Retired++
	}

	if err := db.UpdateSourceLastScanned(ctx, sourceID, now); err != nil {
		slog.Warn("Failed to update last scanned for source", "source_id", sourceID, "error", err)
	}
	slog.Info("reconciliation complete",
		"path", dir,
		"parsed", report.Parsed,
		"inserted", report.Inserted,
		"retired", report.Retired,
		"errors", report.Errors,
	)
	return report, nil
}

func reconcileDeck(ctx context.Context, db *storage.DB, sourceID int64, path string, byHash map[string]storage.SourcedSentence, found map[string]bool, now time.Time) (Report, error) {
	var report Report
	rows, err := importer.ParseFile(path)
	if err != nil {
		return report, err
	}
	report.Parsed = len(rows)

	hashes := make([]string, len(rows))
	for i := range rows {
		hashes[i] = dedupe.Hash(rows[i].English, rows[i].Target)
		if rows[i].ID == "" {
			rows[i].ID = hashes[i]
		}
	}
	audio := importer.MatchAudio(audioFiles(filepath.Dir(path)), rows)

	for i, row := range rows {
		hash := hashes[i]
		found[hash] = true

		if existing, ok := byHash[hash]; ok {
			if !existing.Sentence.IsEligible {
				existing.Sentence.IsEligible = true
				if err := db.UpdateSentence(ctx, existing.Sentence); err != nil {
					report.Errors++
					continue
				}
				byHash[hash] = existing
				report.Restored++
			}
			continue
		}

		other, err := db.FindSentenceByHash(ctx, hash)
		if err != nil {
			report.Errors++
			continue
		}
		if other != nil {
			slog.Debug("Sentence already imported from another source", "sentence_id", other.ID, "hash", hash)
			continue
		}

		// Synced sentences are identified by content hash.
		keyed := row
		keyed.ID = hash
		s := keyed.Sentence("audio/"+hash, now)
		s.IsEligible = true
		if name, ok := audio[row.ID]; ok {
			data, err := os.ReadFile(filepath.Join(filepath.Dir(path), name))
			if err != nil {
				slog.Warn("Failed to read audio", "file", name, "error", err)
			} else if err := db.SaveAudio(ctx, storage.AudioBlob{SentenceID: s.ID, Filename: name, Data: data}); err != nil {
				slog.Warn("Failed to store audio", "file", name, "error", err)
			}
		}
		slog.Info("New sentence found, inserting...", "sentence_id", s.ID, "hash", hash)
		if err := db.SaveSourcedSentence(ctx, s, hash, sourceID); err != nil {
			report.Errors++
			continue
		}
		byHash[hash] = storage.SourcedSentence{Sentence: s, ContentHash: hash}
		report.Inserted++
	}
	return report, nil
}

// audioFiles lists the MP3 recordings next to a deck.
func audioFiles(dir string) []importer.AudioFile {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []importer.AudioFile
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".mp3") {
			files = append(files, importer.AudioFile{Filename: e.Name()})
		}
	}
	return files
}

func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}
