// Package server provides the HTTP server and routing for stockscan.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/stockscan/internal/events"
	"github.com/aristath/stockscan/internal/jobs"
	"github.com/aristath/stockscan/internal/scheduler"
)

// JobStarter starts ingestion jobs
type JobStarter interface {
	StartScraping(ownerID string) (string, error)
	StartChartDownload(ownerID string, maxConcurrent int) (string, error)
}

// Schedules controls scheduled tasks
type Schedules interface {
	List() []scheduler.ScheduledJob
	Start(name string) bool
	Stop(name string) bool
	StartAll()
	StopAll()
	Trigger(name string) (string, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	QuickCheck(ctx context.Context) error
}

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	Registry  *jobs.Registry
	Bus       *events.Bus
	Jobs      JobStarter
	Schedules Schedules
	Database  HealthChecker
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	port      int
	registry  *jobs.Registry
	bus       *events.Bus
	jobs      JobStarter
	schedules Schedules
	database  HealthChecker
	started   time.Time

	heartbeat time.Duration
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		port:      cfg.Port,
		registry:  cfg.Registry,
		bus:       cfg.Bus,
		jobs:      cfg.Jobs,
		schedules: cfg.Schedules,
		database:  cfg.Database,
		started:   time.Now(),
		heartbeat: 30 * time.Second,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: job streams are long-lived
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware shared by every route
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	timeout := middleware.Timeout(60 * time.Second)

	s.router.With(timeout).Get("/health", s.handleHealth)

	s.router.Route("/jobs", func(r chi.Router) {
		// Streams are exempt from the request timeout
		r.Get("/{jobId}/stream", s.handleJobStream)
		r.Get("/{jobId}/ws", s.handleJobSocket)

		r.Group(func(r chi.Router) {
			r.Use(timeout)
			r.Post("/start-scraping", s.handleStartScraping)
			r.Post("/start-chart-download", s.handleStartChartDownload)
			r.Get("/", s.handleListJobs)
			r.Get("/running", s.handleRunningJobs)
			r.Get("/history", s.handleJobHistory)
			r.Get("/stats", s.handleJobStats)
			r.Get("/{jobId}", s.handleJobStatus)
			r.Delete("/{jobId}", s.handleCancelJob)
		})
	})

	s.router.Route("/scheduled-jobs", func(r chi.Router) {
		r.Use(timeout)
		r.Get("/", s.handleListSchedules)
		r.Post("/start-all", s.handleStartAllSchedules)
		r.Post("/stop-all", s.handleStopAllSchedules)
		r.Post("/{name}/start", s.handleStartSchedule)
		r.Post("/{name}/stop", s.handleStopSchedule)
		r.Post("/{name}/trigger", s.handleTriggerSchedule)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// ownerID identifies who started a job from the API
func ownerID(r *http.Request) string {
	return "api:" + r.RemoteAddr
}
