package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goquran/tilawa/internal/transcribe"
)

// maxChunkBytes caps a single uploaded audio chunk.
const maxChunkBytes = 4 << 20

// handleUploadChunk appends an audio chunk to a transcription session.
// Multipart form: sessionId + chunk.
func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxChunkBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	sessionID := r.FormValue("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	file, header, err := r.FormFile("chunk")
	if err != nil {
		writeError(w, http.StatusBadRequest, "chunk is required")
		return
	}
	defer file.Close()

	chunk, err := io.ReadAll(io.LimitReader(file, maxChunkBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read chunk")
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	before := s.buffers.SessionCount()
	if err := s.buffers.Append(sessionID, chunk, mimeType); err != nil {
		if errors.Is(err, transcribe.ErrBufferFull) {
			writeError(w, http.StatusRequestEntityTooLarge, "session audio buffer is full")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.buffers.SessionCount() > before {
		s.metrics.BufferedAudioSessions.Add(r.Context(), 1)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "chunk received"})
}

// flushRequest is the body of POST /flush and POST /endSession.
type flushRequest struct {
	SessionID string `json:"sessionId"`
	Prompt    string `json:"prompt"`
}

// handleFlush transcribes the buffered audio and returns the new text since
// the previous flush. Provider credentials are server-side configuration;
// the legacy X-OPENAI-KEY header is accepted but not used.
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	var req flushRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	start := time.Now()
	delta, err := s.buffers.Flush(r.Context(), req.SessionID, req.Prompt)
	switch {
	case errors.Is(err, transcribe.ErrBusy):
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, transcribe.ErrNoAudio), errors.Is(err, transcribe.ErrSessionNotFound):
		w.WriteHeader(http.StatusNoContent)
	case err != nil:
		s.logger.Error("flush failed", "error", err, "transcription_session", req.SessionID)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.metrics.FlushDuration.Record(r.Context(), time.Since(start).Seconds())
		writeJSON(w, http.StatusOK, map[string]string{"delta": delta})
	}
}

// handleEndSession performs a final flush and releases the session's buffers.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req flushRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	had := s.buffers.SessionCount()
	delta, err := s.buffers.End(r.Context(), req.SessionID, req.Prompt)
	if err != nil {
		s.logger.Error("end session failed", "error", err, "transcription_session", req.SessionID)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.buffers.SessionCount() < had {
		s.metrics.BufferedAudioSessions.Add(r.Context(), -1)
	}
	writeJSON(w, http.StatusOK, map[string]string{"delta": delta})
}

// handleDeleteAudio drops a session's buffered audio without transcribing.
func (s *Server) handleDeleteAudio(w http.ResponseWriter, r *http.Request) {
	var req flushRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	if err := s.buffers.Delete(req.SessionID); err != nil {
		if errors.Is(err, transcribe.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "unknown session")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.BufferedAudioSessions.Add(r.Context(), -1)
	writeJSON(w, http.StatusOK, map[string]string{"message": "audio deleted"})
}
