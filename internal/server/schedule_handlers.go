package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/stockscan/internal/jobs"
	"github.com/aristath/stockscan/internal/scheduler"
)

// handleListSchedules returns every scheduled task
// GET /scheduled-jobs
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.schedules.List())
}

// POST /scheduled-jobs/{name}/start
func (s *Server) handleStartSchedule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.schedules.Start(name) {
		s.writeError(w, http.StatusNotFound, scheduler.ErrUnknownSchedule.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"name": name, "isActive": true})
}

// POST /scheduled-jobs/{name}/stop
func (s *Server) handleStopSchedule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.schedules.Stop(name) {
		s.writeError(w, http.StatusNotFound, scheduler.ErrUnknownSchedule.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"name": name, "isActive": false})
}

// POST /scheduled-jobs/{name}/trigger
func (s *Server) handleTriggerSchedule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id, err := s.schedules.Trigger(name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownSchedule):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrAlreadyRunning):
		s.writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.log.Error().Err(err).Str("job", name).Msg("Failed to trigger scheduled job")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.writeJSON(w, http.StatusAccepted, map[string]string{"name": name, "jobId": id})
	}
}

// POST /scheduled-jobs/start-all
func (s *Server) handleStartAllSchedules(w http.ResponseWriter, r *http.Request) {
	s.schedules.StartAll()
	s.writeJSON(w, http.StatusOK, s.schedules.List())
}

// POST /scheduled-jobs/stop-all
func (s *Server) handleStopAllSchedules(w http.ResponseWriter, r *http.Request) {
	s.schedules.StopAll()
	s.writeJSON(w, http.StatusOK, s.schedules.List())
}
