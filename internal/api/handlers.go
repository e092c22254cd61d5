// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ManuGH/epgmerge/internal/history"
	"github.com/ManuGH/epgmerge/internal/jobs"
	"github.com/ManuGH/epgmerge/internal/log"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Version     string       `json:"version,omitempty"`
	Running     bool         `json:"running"`
	LastSuccess *time.Time   `json:"lastSuccess,omitempty"`
	Last        *jobs.Status `json:"last"`
}

func (s *Server) handleXMLTV(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")
	path := s.deps.Config().OutputPath()

	// #nosec G304 -- path comes from operator config, never from the request
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug().
				Str(log.FieldEvent, "xmltv.not_found").
				Str(log.FieldPath, path).
				Msg("guide not written yet")
			writeNotFound(w, "guide not available yet")
			return
		}
		logger.Error().Err(err).Str(log.FieldPath, path).Msg("open guide")
		writeInternalError(w)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		logger.Error().Err(err).Str(log.FieldPath, path).Msg("stat guide")
		writeInternalError(w)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	// ServeContent handles HEAD, Range and If-Modified-Since
	http.ServeContent(w, r, "xmltv.xml", info.ModTime(), f)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Version: s.deps.Version,
		Running: s.deps.Runner.Running(),
		Last:    s.deps.Runner.Last(),
	}
	if ts := s.deps.Runner.LastSuccess(); !ts.IsZero() {
		resp.LastSuccess = &ts
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.deps.History.List(r.Context(), limit)
	if err != nil {
		if errors.Is(err, history.ErrDisabled) {
			writeNotFound(w, "run history is disabled")
			return
		}
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Msg("list runs")
		writeInternalError(w)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	runID, err := s.deps.Runner.Trigger(s.deps.RunContext)
	if errors.Is(err, jobs.ErrRunInProgress) {
		logger.Warn().
			Str(log.FieldEvent, "refresh.conflict").
			Msg("refresh already in progress")
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusConflict, "conflict", "a refresh is already in progress")
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("trigger refresh")
		writeInternalError(w)
		return
	}

	logger.Info().
		Str(log.FieldEvent, "refresh.accepted").
		Str("run_id", runID).
		Str("remote_addr", r.RemoteAddr).
		Msg("manual refresh started")
	w.Header().Set("Location", "/api/status")
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}
