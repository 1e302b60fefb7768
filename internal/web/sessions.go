package web

import (
	"net/http"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/practice"
)

type sessionView struct {
	Session          domain.Session   `json:"session"`
	Current          *domain.Sentence `json:"current"`
	Position         int              `json:"position"`
	QueueLength      int              `json:"queueLength"`
	InExtra          bool             `json:"inExtra"`
	DueQueueComplete bool             `json:"dueQueueComplete"`
	Done             bool             `json:"done"`
}

func toSessionView(v practice.View) sessionView {
	return sessionView{
		Session:          v.Session,
		Current:          v.Current,
		Position:         v.Position,
		QueueLength:      v.QueueLength,
		InExtra:          v.InExtra,
		DueQueueComplete: v.DueQueueComplete,
		Done:             v.Done,
	}
}

type startSessionRequest struct {
	Mode          string `json:"mode"`
	TargetMinutes int    `json:"targetMinutes"`
}

// handleStartSession resumes the incomplete session or starts a new one.
func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startSessionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		mode, err := domain.ParseSessionMode(req.Mode)
		if err != nil {
			writeError(w, err)
			return
		}
		if req.TargetMinutes <= 0 {
			http.Error(w, "targetMinutes must be positive", http.StatusBadRequest)
			return
		}
		view, err := s.practice.Start(r.Context(), mode, req.TargetMinutes, s.now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionView(view))
	}
}

func (s *Server) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := s.db.Sessions(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	}
}

func (s *Server) handleIncompleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.db.IncompleteSession(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if session == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func (s *Server) handleCurrentSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := s.practice.Current(r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionView(view))
	}
}

type rateRequest struct {
	SentenceID string        `json:"sentenceId"`
	Rating     domain.Rating `json:"rating"`
}

type rateResponse struct {
	Event        domain.ReviewEvent `json:"event"`
	FrozenCue    bool               `json:"frozenCue"`
	LockConsumed bool               `json:"lockConsumed"`
	EnteredExtra bool               `json:"enteredExtra"`
	View         sessionView        `json:"view"`
}

// handleRate applies a rating to the current item. A rating for any other
// sentence, or a second rating for the same one, is a conflict.
func (s *Server) handleRate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		res, err := s.practice.Rate(r.Context(), r.PathValue("id"), req.SentenceID, req.Rating, s.now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rateResponse{
			Event:        res.Event,
			FrozenCue:    res.FrozenCue,
			LockConsumed: res.LockConsumed,
			EnteredExtra: res.EnteredExtra,
			View:         toSessionView(res.View),
		})
	}
}

func (s *Server) handleCheckpoint() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := s.practice.Checkpoint(r.Context(), r.PathValue("id"), s.now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionView(view))
	}
}

func (s *Server) handleEndSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.practice.End(r.Context(), r.PathValue("id"), s.now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}
