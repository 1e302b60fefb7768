package web

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/importer"
	"github.com/conorfennell/recall/internal/storage"
	"github.com/conorfennell/recall/internal/transcript"
)

func (s *Server) handleListInbox() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := s.db.PendingAudioList(r.Context(), r.URL.Query().Get("language"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pending)
	}
}

// handleUploadInbox stores a recording awaiting transcription. The form
// carries the file plus optional language and comma separated tags.
func (s *Server) handleUploadInbox() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, data, ok := readUpload(w, r)
		if !ok {
			return
		}
		language := r.FormValue("language")
		if language == "" {
			language = importer.DefaultLanguage
		}
		tags := lo.Compact(lo.Map(strings.Split(r.FormValue("tags"), ","), func(t string, _ int) string {
			return strings.TrimSpace(t)
		}))

		pending := domain.PendingAudio{
			ID:           uuid.NewString(),
			Filename:     name,
			LanguageCode: language,
			UploadedAt:   s.now(),
			Tags:         tags,
		}
		if err := s.db.SavePendingAudio(r.Context(), pending, data); err != nil {
			writeError(w, err)
			return
		}
		slog.Info("Uploaded recording to inbox", "pending_id", pending.ID, "filename", name, "bytes", len(data))
		writeJSON(w, http.StatusCreated, pending)
	}
}

type inboxSentencesRequest struct {
	Segments []domain.Segment `json:"segments"`
}

// handleInboxSentences cuts a transcribed recording into inbox sentences.
// Each sentence stores the whole recording and addresses its span with a
// media fragment.
func (s *Server) handleInboxSentences() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var req inboxSentencesRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		pending, data, err := s.db.PendingAudio(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}

		now := s.now()
		sentences := transcript.ToSentences(req.Segments, pending.LanguageCode, "inbox/"+pending.ID, now, pending.Tags...)
		for _, sentence := range sentences {
			if err := s.db.SaveSentence(r.Context(), sentence); err != nil {
				writeError(w, err)
				return
			}
			blob := storage.AudioBlob{SentenceID: sentence.ID, Filename: pending.Filename, Data: data}
			if err := s.db.SaveAudio(r.Context(), blob); err != nil {
				writeError(w, err)
				return
			}
		}

		pending.Segments = req.Segments
		pending.ProcessedAt = &now
		if err := s.db.UpdatePendingAudio(r.Context(), pending); err != nil {
			writeError(w, err)
			return
		}
		slog.Info("Created sentences from recording", "pending_id", id, "sentences", len(sentences))
		writeJSON(w, http.StatusCreated, sentences)
	}
}

func (s *Server) handleDeleteInbox() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.DeletePendingAudio(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// readUpload reads the multipart "file" field and validates it as an MP3.
func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file: "+err.Error(), http.StatusBadRequest)
		return "", nil, false
	}
	defer file.Close()

	if err := importer.ValidateAudioFile(header.Filename, header.Header.Get("Content-Type"), header.Size); err != nil {
		writeError(w, err)
		return "", nil, false
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Errorf("failed to read upload: %w", err))
		return "", nil, false
	}
	return header.Filename, data, true
}
