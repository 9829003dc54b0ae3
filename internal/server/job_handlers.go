package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/stockscan/internal/jobs"
)

const defaultHistoryLimit = 20

// handleStartScraping starts a scraping job
// POST /jobs/start-scraping
func (s *Server) handleStartScraping(w http.ResponseWriter, r *http.Request) {
	id, err := s.jobs.StartScraping(ownerID(r))
	s.writeStarted(w, id, err)
}

// handleStartChartDownload starts a chart-download job
// POST /jobs/start-chart-download?maxConcurrent=N
func (s *Server) handleStartChartDownload(w http.ResponseWriter, r *http.Request) {
	maxConcurrent := 0
	if raw := r.URL.Query().Get("maxConcurrent"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "maxConcurrent must be a positive integer")
			return
		}
		maxConcurrent = n
	}

	id, err := s.jobs.StartChartDownload(ownerID(r), maxConcurrent)
	s.writeStarted(w, id, err)
}

func (s *Server) writeStarted(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, jobs.ErrAlreadyRunning):
		s.writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.log.Error().Err(err).Msg("Failed to start job")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.writeJSON(w, http.StatusAccepted, map[string]string{"jobId": id})
	}
}

// handleCancelJob cancels a running job
// DELETE /jobs/{jobId}
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobId")
	if !s.registry.Cancel(id) {
		s.writeError(w, http.StatusNotFound, "job not found or not running")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// handleJobStatus returns a job snapshot
// GET /jobs/{jobId}
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.registry.Status(chi.URLParam(r, "jobId"))
	if !ok {
		s.writeError(w, http.StatusNotFound, jobs.ErrNotFound.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

// handleListJobs returns every job
// GET /jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.List())
}

// handleRunningJobs returns jobs still running
// GET /jobs/running
func (s *Server) handleRunningJobs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.ListRunning())
}

// handleJobHistory returns finished jobs, newest first
// GET /jobs/history?limit=N
func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	s.writeJSON(w, http.StatusOK, s.registry.History(limit))
}

// handleJobStats returns job counts by status
// GET /jobs/stats
func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.Stats())
}
