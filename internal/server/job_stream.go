package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/stockscan/internal/events"
	"github.com/aristath/stockscan/internal/jobs"
)

// Stream message types
const (
	msgInitial   = "initial"
	msgProgress  = "progress"
	msgCompleted = "completed"
	msgError     = "error"
	msgCancelled = "cancelled"
	msgPing      = "ping"
)

type streamError struct {
	Message string `json:"message"`
}

// streamMessage is one frame of a job stream
type streamMessage struct {
	Type      string       `json:"type"`
	JobID     string       `json:"jobId,omitempty"`
	Job       *jobs.Job    `json:"job,omitempty"`
	Message   string       `json:"message,omitempty"`
	Result    interface{}  `json:"result,omitempty"`
	Error     *streamError `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

func (m streamMessage) terminal() bool {
	return m.Type == msgCompleted || m.Type == msgError || m.Type == msgCancelled
}

// jobFeed is a per-connection subscription to one job's events
type jobFeed struct {
	initial  streamMessage
	progress chan streamMessage
	final    chan streamMessage
	stop     func()
}

// openFeed subscribes to jobID before reading its snapshot so no transition
// is missed. It returns false when the job does not exist.
func (s *Server) openFeed(jobID string) (*jobFeed, bool) {
	feed := &jobFeed{
		progress: make(chan streamMessage, 100),
		final:    make(chan streamMessage, 1),
	}

	handler := func(e *events.Event) {
		data := e.JobData()
		if data == nil || data.JobID != jobID {
			return
		}
		msg := messageFromEvent(e.Type, data)
		if msg.terminal() {
			select {
			case feed.final <- msg:
			default:
			}
			return
		}
		select {
		case feed.progress <- msg:
		default:
			s.log.Warn().Str("job_id", jobID).Msg("Stream buffer full, dropping progress")
		}
	}

	var ids []events.SubscriptionID
	for _, t := range []events.EventType{events.JobProgress, events.JobCompleted, events.JobFailed, events.JobCancelled} {
		ids = append(ids, s.bus.Subscribe(t, handler))
	}
	feed.stop = func() {
		for _, id := range ids {
			s.bus.Unsubscribe(id)
		}
	}

	job, ok := s.registry.Status(jobID)
	if !ok {
		feed.stop()
		return nil, false
	}
	feed.initial = streamMessage{Type: msgInitial, JobID: jobID, Job: &job, Timestamp: time.Now()}
	if job.Status.IsTerminal() {
		select {
		case feed.final <- messageFromJob(job):
		default:
		}
	}
	return feed, true
}

// next blocks until the feed has a frame to send. The terminal frame is held
// back until buffered progress is flushed.
func (f *jobFeed) next(ctx context.Context, heartbeat <-chan time.Time) (streamMessage, bool) {
	select {
	case <-ctx.Done():
		return streamMessage{}, false
	case msg := <-f.progress:
		return msg, true
	case msg := <-f.final:
		select {
		case p := <-f.progress:
			select {
			case f.final <- msg:
			default:
			}
			return p, true
		default:
			return msg, true
		}
	case ts := <-heartbeat:
		return streamMessage{Type: msgPing, Timestamp: ts}, true
	}
}

func messageFromEvent(t events.EventType, data *events.JobStatusData) streamMessage {
	msg := streamMessage{JobID: data.JobID, Timestamp: data.Timestamp}
	switch t {
	case events.JobProgress:
		msg.Type = msgProgress
		msg.Message = data.Message
	case events.JobCompleted:
		msg.Type = msgCompleted
		msg.Result = data.Result
	case events.JobFailed:
		msg.Type = msgError
		msg.Error = &streamError{Message: data.Error}
	case events.JobCancelled:
		msg.Type = msgCancelled
		msg.Message = data.Message
	}
	return msg
}

func messageFromJob(job jobs.Job) streamMessage {
	msg := streamMessage{JobID: job.ID, Timestamp: time.Now()}
	if job.EndTime != nil {
		msg.Timestamp = *job.EndTime
	}
	switch job.Status {
	case jobs.StatusCompleted:
		msg.Type = msgCompleted
		msg.Result = job.Result
	case jobs.StatusFailed:
		msg.Type = msgError
		if job.Error != nil {
			msg.Error = &streamError{Message: job.Error.Message}
		}
	case jobs.StatusCancelled:
		msg.Type = msgCancelled
	}
	return msg
}

// handleJobStream streams one job's lifecycle as Server-Sent Events
// GET /jobs/{jobId}/stream
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	feed, ok := s.openFeed(jobID)
	if !ok {
		s.writeError(w, http.StatusNotFound, jobs.ErrNotFound.Error())
		return
	}
	defer feed.stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	log := s.log.With().Str("job_id", jobID).Logger()
	log.Debug().Msg("Client connected to job stream")

	write := func(msg streamMessage) {
		payload, err := json.Marshal(msg)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal stream message")
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	write(feed.initial)

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		msg, ok := feed.next(r.Context(), heartbeat.C)
		if !ok {
			log.Debug().Msg("Client disconnected from job stream")
			return
		}
		write(msg)
		if msg.terminal() {
			return
		}
	}
}

// handleJobSocket mirrors the job stream over a websocket
// GET /jobs/{jobId}/ws
func (s *Server) handleJobSocket(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	feed, ok := s.openFeed(jobID)
	if !ok {
		s.writeError(w, http.StatusNotFound, jobs.ErrNotFound.Error())
		return
	}
	defer feed.stop()

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.log.Warn().Err(err).Str("job_id", jobID).Msg("Websocket upgrade failed")
		return
	}
	defer c.Close(websocket.StatusInternalError, "stream ended")

	// Client frames are ignored; reading only detects the close
	ctx := c.CloseRead(r.Context())

	write := func(msg streamMessage) bool {
		wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return wsjson.Write(wctx, c, msg) == nil
	}

	if !write(feed.initial) {
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		msg, ok := feed.next(ctx, heartbeat.C)
		if !ok || !write(msg) {
			return
		}
		if msg.terminal() {
			c.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}
