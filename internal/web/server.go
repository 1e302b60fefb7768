// Package web exposes the store and the practice service as a JSON API.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/conorfennell/recall/internal/dedupe"
	"github.com/conorfennell/recall/internal/digest"
	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/importer"
	"github.com/conorfennell/recall/internal/practice"
	"github.com/conorfennell/recall/internal/storage"
	"github.com/conorfennell/recall/internal/sync"
)

// maxBodySize bounds JSON and upload request bodies.
const maxBodySize = 64 << 20

// Server holds the dependencies for the HTTP server.
type Server struct {
	db       *storage.DB
	practice *practice.Service
	router   *http.ServeMux
	reposDir string
	now      func() time.Time
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, svc *practice.Service, reposDir string) *Server {
	s := &Server{
		db:       db,
		practice: svc,
		router:   http.NewServeMux(),
		reposDir: reposDir,
		now:      time.Now,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /api/sentences", s.handleListSentences())
	s.router.HandleFunc("POST /api/sentences", s.handleCreateSentence())
	s.router.HandleFunc("GET /api/sentences/{id}", s.handleGetSentence())
	s.router.HandleFunc("POST /api/sentences/{id}/approve", s.handleApproveSentence())
	s.router.HandleFunc("DELETE /api/sentences/{id}", s.handleDeleteSentence())
	s.router.HandleFunc("GET /api/sentences/{id}/audio", s.handleGetAudio())
	s.router.HandleFunc("PUT /api/sentences/{id}/audio", s.handlePutAudio())
	s.router.HandleFunc("GET /api/duplicates", s.handleFindDuplicates())

	s.router.HandleFunc("GET /api/stats", s.handleStats())
	s.router.HandleFunc("GET /api/settings", s.handleGetSettings())
	s.router.HandleFunc("PUT /api/settings", s.handlePutSettings())

	s.router.HandleFunc("POST /api/sessions", s.handleStartSession())
	s.router.HandleFunc("GET /api/sessions", s.handleListSessions())
	s.router.HandleFunc("GET /api/sessions/incomplete", s.handleIncompleteSession())
	s.router.HandleFunc("GET /api/sessions/{id}", s.handleCurrentSession())
	s.router.HandleFunc("POST /api/sessions/{id}/ratings", s.handleRate())
	s.router.HandleFunc("POST /api/sessions/{id}/checkpoint", s.handleCheckpoint())
	s.router.HandleFunc("POST /api/sessions/{id}/end", s.handleEndSession())

	s.router.HandleFunc("GET /api/export", s.handleExport())
	s.router.HandleFunc("POST /api/import", s.handleImport())

	s.router.HandleFunc("GET /api/sources", s.handleListSources())
	s.router.HandleFunc("POST /api/sources", s.handleAddSource())
	s.router.HandleFunc("POST /api/sync", s.handlePostSync())

	s.router.HandleFunc("GET /api/inbox", s.handleListInbox())
	s.router.HandleFunc("POST /api/inbox", s.handleUploadInbox())
	s.router.HandleFunc("POST /api/inbox/{id}/sentences", s.handleInboxSentences())
	s.router.HandleFunc("DELETE /api/inbox/{id}", s.handleDeleteInbox())
}

func (s *Server) handleListSentences() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sentences, err := s.db.Sentences(r.Context(), r.URL.Query().Get("language"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sentences)
	}
}

type createSentenceRequest struct {
	English  string   `json:"english"`
	Target   string   `json:"target"`
	Language string   `json:"language"`
	AudioURI string   `json:"audio_uri"`
	Tags     []string `json:"tags"`
}

type createSentenceResponse struct {
	Sentence   domain.Sentence `json:"sentence"`
	Duplicates []dedupe.Match  `json:"duplicates"`
}

// handleCreateSentence adds an inbox sentence and reports near duplicates
// already in the store.
func (s *Server) handleCreateSentence() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSentenceRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.English == "" {
			http.Error(w, "english cannot be empty", http.StatusBadRequest)
			return
		}
		row := importer.ImportRow{English: req.English, Target: req.Target, Language: req.Language, Tags: req.Tags}
		if row.Language == "" {
			row.Language = importer.DefaultLanguage
		}

		existing, err := s.db.Sentences(r.Context(), row.Language)
		if err != nil {
			writeError(w, err)
			return
		}
		sentence := row.Sentence(req.AudioURI, s.now())
		if err := s.db.SaveSentence(r.Context(), sentence); err != nil {
			writeError(w, err)
			return
		}
		slog.Info("Created sentence", "sentence_id", sentence.ID, "language", sentence.LanguageCode)
		writeJSON(w, http.StatusCreated, createSentenceResponse{
			Sentence:   sentence,
			Duplicates: dedupe.FindMatches(req.English, existing, dedupe.FieldEnglish, dedupe.DefaultThreshold),
		})
	}
}

func (s *Server) handleGetSentence() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sentence, err := s.db.Sentence(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sentence)
	}
}

// handleApproveSentence moves a sentence out of the inbox into review,
// due immediately.
func (s *Server) handleApproveSentence() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sentence, err := s.db.Sentence(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		if !sentence.IsEligible {
			sentence.IsEligible = true
			sentence.Scheduling.DueAt = s.now()
			if err := s.db.UpdateSentence(r.Context(), sentence); err != nil {
				writeError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, sentence)
	}
}

func (s *Server) handleDeleteSentence() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.DeleteSentence(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleGetAudio() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		blob, err := s.db.Audio(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
		w.Write(blob.Data)
	}
}

func (s *Server) handlePutAudio() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := s.db.Sentence(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		name, data, ok := readUpload(w, r)
		if !ok {
			return
		}
		if err := s.db.SaveAudio(r.Context(), storage.AudioBlob{SentenceID: id, Filename: name, Data: data}); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleFindDuplicates() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		text := q.Get("text")
		if text == "" {
			http.Error(w, "text cannot be empty", http.StatusBadRequest)
			return
		}
		field := dedupe.Field(q.Get("field"))
		switch field {
		case "":
			field = dedupe.FieldBoth
		case dedupe.FieldEnglish, dedupe.FieldTarget, dedupe.FieldBoth:
		default:
			http.Error(w, "field must be english, target or both", http.StatusBadRequest)
			return
		}
		threshold := dedupe.DefaultThreshold
		if v := q.Get("threshold"); v != "" {
			t, err := strconv.ParseFloat(v, 64)
			if err != nil || t < 0 || t > 1 {
				http.Error(w, "invalid threshold", http.StatusBadRequest)
				return
			}
			threshold = t
		}
		sentences, err := s.db.Sentences(r.Context(), q.Get("language"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, dedupe.FindMatches(text, sentences, field, threshold))
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := digest.Compute(r.Context(), s.db, s.now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func (s *Server) handleGetSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := s.db.Settings(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	}
}

func (s *Server) handlePutSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var settings domain.Settings
		if !decodeJSON(w, r, &settings) {
			return
		}
		if err := s.db.SaveSettings(r.Context(), settings); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	}
}

func (s *Server) handleExport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bundle, err := s.db.ExportAll(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		data, err := storage.EncodeBundle(bundle)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="recall-backup.json"`)
		w.Write(data)
	}
}

// handleImport replaces every stored record with the uploaded backup.
func (s *Server) handleImport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var raw json.RawMessage
		if !decodeJSON(w, r, &raw) {
			return
		}
		bundle, err := storage.DecodeBundle(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.db.ImportAll(r.Context(), bundle); err != nil {
			writeError(w, err)
			return
		}
		slog.Info("Imported backup", "sentences", len(bundle.Sentences), "sessions", len(bundle.Sessions))
		writeJSON(w, http.StatusOK, map[string]int{
			"sentences":    len(bundle.Sentences),
			"reviewEvents": len(bundle.ReviewEvents),
			"sessions":     len(bundle.Sessions),
			"audioFiles":   len(bundle.AudioFiles),
		})
	}
}

func (s *Server) handleListSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.db.Sources(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sources)
	}
}

func (s *Server) handleAddSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path string `json:"path"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Path == "" {
			http.Error(w, "Path cannot be empty", http.StatusBadRequest)
			return
		}
		id, err := sync.AddSource(r.Context(), s.db, req.Path)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
	}
}

// handlePostSync runs a sync in the foreground and returns its report.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := sync.RunSync(r.Context(), s.db, s.reposDir, s.now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

// writeError maps domain and storage errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, practice.ErrUnknownSession):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRating),
		errors.Is(err, domain.ErrInvalidSettings),
		errors.Is(err, domain.ErrInvalidMode),
		errors.Is(err, importer.ErrInvalidAudioFormat),
		errors.Is(err, importer.ErrAudioTooLarge):
		status = http.StatusBadRequest
	case errors.Is(err, practice.ErrRatingNotAccepted), errors.Is(err, practice.ErrSessionEnded):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
		http.Error(w, "Internal Server Error", status)
		return
	}
	http.Error(w, err.Error(), status)
}
