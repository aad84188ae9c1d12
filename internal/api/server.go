// Package api exposes the feed over HTTP: clip and announcement producers,
// status, the event stream, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/techoutagebot/audiofeed/internal/audio"
	"github.com/techoutagebot/audiofeed/internal/feed"
	"github.com/techoutagebot/audiofeed/internal/observability"
	"github.com/techoutagebot/audiofeed/internal/resilience"
	"github.com/techoutagebot/audiofeed/internal/speech"
)

// Source is the entry source recorded for clips queued over HTTP
const Source = "api"

// Feed is the part of *feed.Session the API uses
type Feed interface {
	Enqueue(entry feed.Entry) (feed.Entry, error)
	State() feed.State
	Stats() feed.Stats
	QueueLen() int
	Snapshot() []feed.Entry
	Running() bool
	Format() audio.Format
}

// Announcer synthesizes text and queues it
type Announcer interface {
	Announce(ctx context.Context, text string) (feed.Entry, error)
}

// Options configures the API server
type Options struct {
	SessionID      string
	RatePerMinute  float64      // Shared by clip and announcement requests
	Burst          int
	Announcer      Announcer    // Nil disables /api/announcements
	Events         http.Handler // Nil disables /api/events
	MetricsEnabled bool
	ReadyChecks    map[string]observability.HealthCheckFunc
}

// Server routes HTTP requests to the feed
type Server struct {
	feed    Feed
	opts    Options
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewServer creates the API. A non-positive rate disables limiting.
func NewServer(f Feed, opts Options, logger zerolog.Logger) *Server {
	limit := rate.Inf
	if opts.RatePerMinute > 0 {
		limit = rate.Limit(opts.RatePerMinute / 60)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Server{
		feed:    f,
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Handler returns the routed mux
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/clips", s.handleEnqueueClip)
	mux.HandleFunc("POST /api/announcements", s.handleAnnounce)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/queue", s.handleQueue)
	if s.opts.Events != nil {
		mux.Handle("GET /api/events", s.opts.Events)
	}

	mux.HandleFunc("/health", observability.HealthCheckHandler())

	checks := map[string]observability.HealthCheckFunc{
		"feed": func(ctx context.Context) (bool, error) {
			if !s.feed.Running() {
				return false, errors.New("feed writer is not running")
			}
			if state := s.feed.State(); state != feed.StateActive {
				return false, errors.New("feed writer is " + state.String())
			}
			return true, nil
		},
	}
	for name, check := range s.opts.ReadyChecks {
		checks[name] = check
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	if s.opts.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	return mux
}

// ClipRequest is the body of POST /api/clips
type ClipRequest struct {
	Path string `json:"path"`
}

// AnnouncementRequest is the body of POST /api/announcements
type AnnouncementRequest struct {
	Text string `json:"text"`
}

// EnqueueResponse is returned for accepted clips and announcements
type EnqueueResponse struct {
	ID          string `json:"id"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	QueueLength int    `json:"queue_length"`
}

// StatusResponse is returned by GET /api/status
type StatusResponse struct {
	SessionID    string `json:"session_id"`
	State        string `json:"state"`
	Running      bool   `json:"running"`
	QueueLength  int    `json:"queue_length"`
	Reconnects   int64  `json:"reconnects"`
	ClipsPlayed  int64  `json:"clips_played"`
	ClipsDropped int64  `json:"clips_dropped"`
	ClipBytes    int64  `json:"clip_bytes"`
	SilenceBytes int64  `json:"silence_bytes"`
	Format       string `json:"format"`
}

// QueuedClip is one waiting clip in GET /api/queue
type QueuedClip struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Source     string    `json:"source"`
	Size       int64     `json:"size"`
	DurationMs int64     `json:"duration_ms"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// QueueResponse is returned by GET /api/queue, in playback order
type QueueResponse struct {
	Clips []QueuedClip `json:"clips"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleEnqueueClip(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		observability.RecordEnqueueRequest(Source, "rate_limited")
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req ClipRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		observability.RecordEnqueueRequest(Source, "bad_request")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		observability.RecordEnqueueRequest(Source, "bad_request")
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	entry, err := s.feed.Enqueue(feed.Entry{Path: req.Path, Source: Source})
	if err != nil {
		if errors.Is(err, feed.ErrClipNotFound) {
			observability.RecordEnqueueRequest(Source, "not_found")
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		observability.RecordEnqueueRequest(Source, "error")
		s.logger.Error().Err(err).Str("path", req.Path).Msg("Failed to queue clip")
		writeError(w, http.StatusInternalServerError, "failed to queue clip")
		return
	}

	observability.RecordEnqueueRequest(Source, "accepted")
	s.writeAccepted(w, entry)
}

func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	if s.opts.Announcer == nil {
		writeError(w, http.StatusServiceUnavailable, "speech synthesis is not configured")
		return
	}
	if !s.limiter.Allow() {
		observability.RecordEnqueueRequest(speech.Source, "rate_limited")
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req AnnouncementRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		observability.RecordEnqueueRequest(speech.Source, "bad_request")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := s.opts.Announcer.Announce(r.Context(), req.Text)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, speech.ErrEmptyText), errors.Is(err, speech.ErrTextTooLong):
			status = http.StatusBadRequest
		case errors.Is(err, resilience.ErrCircuitOpen):
			status = http.StatusServiceUnavailable
		}
		observability.RecordEnqueueRequest(speech.Source, "error")
		s.logger.Warn().Err(err).Int("status", status).Msg("Announcement failed")
		writeError(w, status, err.Error())
		return
	}

	observability.RecordEnqueueRequest(speech.Source, "accepted")
	s.writeAccepted(w, entry)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.feed.Stats()
	writeJSON(w, http.StatusOK, StatusResponse{
		SessionID:    s.opts.SessionID,
		State:        s.feed.State().String(),
		Running:      s.feed.Running(),
		QueueLength:  s.feed.QueueLen(),
		Reconnects:   stats.Reconnects,
		ClipsPlayed:  stats.ClipsPlayed,
		ClipsDropped: stats.ClipsAborted + stats.ClipsFailed,
		ClipBytes:    stats.ClipBytes,
		SilenceBytes: stats.SilenceBytes,
		Format:       s.feed.Format().String(),
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	format := s.feed.Format()
	entries := s.feed.Snapshot()
	resp := QueueResponse{Clips: make([]QueuedClip, 0, len(entries))}
	for _, e := range entries {
		resp.Clips = append(resp.Clips, QueuedClip{
			ID:         e.ID,
			Path:       e.Path,
			Source:     e.Source,
			Size:       e.Size,
			DurationMs: format.DurationOf(e.Size).Milliseconds(),
			EnqueuedAt: e.EnqueuedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeAccepted(w http.ResponseWriter, entry feed.Entry) {
	writeJSON(w, http.StatusAccepted, EnqueueResponse{
		ID:          entry.ID,
		Path:        entry.Path,
		Size:        entry.Size,
		QueueLength: s.feed.QueueLen(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
