package api

import (
	"errors"
	"net/http"

	"github.com/goquran/tilawa/internal/session"
)

// handleGetSession returns a snapshot of the current session.
func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.machine.Snapshot())
}

// handleStartSession activates a new recitation session.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if err := s.machine.Start(); err != nil {
		if errors.Is(err, session.ErrCorpusNotReady) {
			writeError(w, http.StatusServiceUnavailable, "corpus not loaded yet")
			return
		}
		s.logger.Error("failed to start session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}
	s.metrics.SessionsStarted.Add(r.Context(), 1)
	writeJSON(w, http.StatusOK, s.machine.Snapshot())
}

// handleStopSession deactivates the current session.
func (s *Server) handleStopSession(w http.ResponseWriter, _ *http.Request) {
	s.machine.Stop()
	w.WriteHeader(http.StatusNoContent)
}

// jumpRequest is the body of POST /api/v1/session/jump.
type jumpRequest struct {
	Chapter int `json:"chapter"`
	Verse   int `json:"verse"`
}

// handleJump repositions the session at a specific verse.
func (s *Server) handleJump(w http.ResponseWriter, r *http.Request) {
	var req jumpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.machine.JumpToVerse(req.Chapter, req.Verse); err != nil {
		switch {
		case errors.Is(err, session.ErrUnknownChapter), errors.Is(err, session.ErrVerseOutOfRange):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, session.ErrNotStarted):
			writeError(w, http.StatusConflict, "no active session")
		case errors.Is(err, session.ErrCorpusNotReady):
			writeError(w, http.StatusServiceUnavailable, "corpus not loaded yet")
		default:
			s.logger.Error("jump failed", "error", err, "chapter", req.Chapter, "verse", req.Verse)
			writeError(w, http.StatusInternalServerError, "jump failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, s.machine.Snapshot())
}

// controlsRequest is the body of POST /api/v1/session/controls. Absent fields
// leave the corresponding toggle unchanged.
type controlsRequest struct {
	Muted      *bool `json:"muted"`
	AutoRecite *bool `json:"autoRecite"`
}

// handleControls updates the mute and auto-recite toggles.
func (s *Server) handleControls(w http.ResponseWriter, r *http.Request) {
	var req controlsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Muted != nil {
		s.machine.SetMuted(*req.Muted)
	}
	if req.AutoRecite != nil {
		s.machine.SetAutoRecite(*req.AutoRecite)
	}
	writeJSON(w, http.StatusOK, s.machine.Snapshot())
}
