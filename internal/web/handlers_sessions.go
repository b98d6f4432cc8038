package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dontbeterm/dontbeterm/internal/session"
)

type sessionResponse struct {
	session.Session
	DisplayTitle string `json:"displayTitle"`
	Active       bool   `json:"active"`
	Analyzing    bool   `json:"analyzing"`
}

type sessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
	ActiveID string            `json:"activeId,omitempty"`
}

func (s *Server) sessionView(sess session.Session, activeID string) sessionResponse {
	return sessionResponse{
		Session:      sess,
		DisplayTitle: sess.DisplayTitle(),
		Active:       sess.ID == activeID,
		Analyzing:    s.deck.Analyzing(sess.ID),
	}
}

func (s *Server) sessionsSnapshot() sessionsResponse {
	var activeID string
	if a, ok := s.deck.Active(); ok {
		activeID = a.ID
	}
	list := s.deck.Sessions()
	resp := sessionsResponse{Sessions: make([]sessionResponse, 0, len(list)), ActiveID: activeID}
	for _, sess := range list {
		resp.Sessions = append(resp.Sessions, s.sessionView(sess, activeID))
	}
	return resp
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionsSnapshot())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateOptions
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json body")
			return
		}
	}

	sess, err := s.deck.CreateSession(req)
	if err != nil {
		writeAPIError(w, http.StatusUnprocessableEntity, "CREATE_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s.sessionView(sess, sess.ID))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.deck.Get(id)
	if !ok {
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
		return
	}
	var activeID string
	if a, ok := s.deck.Active(); ok {
		activeID = a.ID
	}
	writeJSON(w, http.StatusOK, s.sessionView(sess, activeID))
}

type renameRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json body")
		return
	}
	id := r.PathValue("id")
	if err := s.deck.RenameSession(id, req.Title); err != nil {
		writeSessionError(w, err)
		return
	}
	s.handleGetSession(w, r)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deck.CloseSession(r.PathValue("id")); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionsSnapshot())
}

func (s *Server) handleActivateSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deck.SetActive(r.PathValue("id")); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inputRequest struct {
	Data    string `json:"data"`
	Command bool   `json:"command,omitempty"` // press enter after data
}

func (s *Server) handleSessionInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json body")
		return
	}
	id := r.PathValue("id")
	var err error
	if req.Command {
		err = s.deck.SendCommand(id, req.Data)
	} else {
		err = s.deck.SendInput(id, []byte(req.Data))
	}
	if err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

func (r resizeRequest) valid() bool {
	return r.Cols > 0 && r.Rows > 0 && r.Cols <= 1000 && r.Rows <= 1000
}

func (s *Server) handleSessionResize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if err := decodeBody(w, r, &req); err != nil || !req.valid() {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "cols and rows must be between 1 and 1000")
		return
	}
	if err := s.deck.Resize(r.PathValue("id"), uint16(req.Cols), uint16(req.Rows)); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const defaultPreviewBytes = 8 * 1024

func (s *Server) handleSessionPreview(w http.ResponseWriter, r *http.Request) {
	n := defaultPreviewBytes
	if raw := strings.TrimSpace(r.URL.Query().Get("bytes")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > 1<<20 {
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "bytes must be between 1 and 1048576")
			return
		}
		n = v
	}
	text, err := s.deck.Preview(r.PathValue("id"), n)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

type dropRequest struct {
	Paths []string `json:"paths"`
}

func (s *Server) handleDropPaths(w http.ResponseWriter, r *http.Request) {
	var req dropRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json body")
		return
	}
	if err := s.deck.DropPaths(req.Paths); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
	default:
		writeAPIError(w, http.StatusUnprocessableEntity, "OPERATION_FAILED", err.Error())
	}
}
