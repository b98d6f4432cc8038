package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dontbeterm/dontbeterm/internal/logging"
	"github.com/dontbeterm/dontbeterm/internal/topic"
)

// handleRefreshTopics starts a background refresh; results arrive on /events.
func (s *Server) handleRefreshTopics(w http.ResponseWriter, r *http.Request) {
	if !s.refresh.Allow() {
		now := time.Now()
		res := s.refresh.ReserveN(now, 1)
		delay := res.DelayFrom(now)
		res.CancelAt(now)
		w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
		writeAPIError(w, http.StatusTooManyRequests, "RATE_LIMITED", "refresh already requested recently")
		return
	}
	s.deck.RefreshTopicsAsync()
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

type cliStatusResponse struct {
	Command string          `json:"command"`
	Checked bool            `json:"checked"`
	Status  topic.CLIStatus `json:"status"`
}

func (s *Server) handleCLIStatus(w http.ResponseWriter, r *http.Request) {
	status, checked := s.probe.Status()
	writeJSON(w, http.StatusOK, cliStatusResponse{Command: s.probe.Command(), Checked: checked, Status: status})
}

func (s *Server) handleCLICheck(w http.ResponseWriter, r *http.Request) {
	status := s.probe.Check(r.Context())
	writeJSON(w, http.StatusOK, cliStatusResponse{Command: s.probe.Command(), Checked: true, Status: status})
}

func (s *Server) handleCLITest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.probe.Test(r.Context()))
}

func (s *Server) handleCLIGuide(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, topic.SetupGuide(s.probe.Command()))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(logging.Report("dontbeterm", s.cfg.Version)))
}
