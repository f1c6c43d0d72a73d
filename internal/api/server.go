// Package api provides the HTTP and WebSocket surface of the Tilawa server:
// session control, the chunked transcription backend, the live socket, and
// operational endpoints.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goquran/tilawa/internal/health"
	"github.com/goquran/tilawa/internal/observe"
	"github.com/goquran/tilawa/internal/session"
	"github.com/goquran/tilawa/internal/speech/browser"
	"github.com/goquran/tilawa/internal/transcribe"
)

// TranscriptPusher receives recognizer results pushed by the client over the
// live socket. Implemented by source.Continuous.
type TranscriptPusher interface {
	Push(text string)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	machine        *session.Machine
	buffers        *transcribe.Buffers
	speaker        *browser.Speaker
	transcripts    TranscriptPusher
	healthHandler  *health.Handler
	metrics        *observe.Metrics
	allowedOrigins []string
	router         *chi.Mux
	logger         *slog.Logger

	live *liveHub
}

// Config carries the Server's collaborators.
type Config struct {
	Machine        *session.Machine
	Buffers        *transcribe.Buffers
	Speaker        *browser.Speaker
	Transcripts    TranscriptPusher
	Health         *health.Handler
	Metrics        *observe.Metrics
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	healthHandler := cfg.Health
	if healthHandler == nil {
		healthHandler = health.New()
	}

	s := &Server{
		machine:        cfg.Machine,
		buffers:        cfg.Buffers,
		speaker:        cfg.Speaker,
		transcripts:    cfg.Transcripts,
		healthHandler:  healthHandler,
		metrics:        metrics,
		allowedOrigins: cfg.AllowedOrigins,
		router:         chi.NewRouter(),
		logger:         logger,
		live:           newLiveHub(metrics),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Broadcast pushes a session notification to every connected live client.
// Safe to use as the machine's notification sink.
func (s *Server) Broadcast(n session.Notification) {
	s.live.broadcast(n)
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-OPENAI-KEY"},
		MaxAge:         300,
	}))
	s.router.Use(observe.Middleware(s.metrics))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Operational endpoints.
	s.router.Get("/healthz", s.healthHandler.Healthz)
	s.router.Get("/readyz", s.healthHandler.Readyz)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Chunked transcription backend. Paths match the uploader client's
	// expectations, so they stay at the root.
	s.router.Post("/uploadChunk", s.handleUploadChunk)
	s.router.Post("/flush", s.handleFlush)
	s.router.Post("/endSession", s.handleEndSession)
	s.router.Post("/deleteAudio", s.handleDeleteAudio)

	// Recitation session control.
	s.router.Route("/api/v1/session", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Post("/start", s.handleStartSession)
		r.Post("/stop", s.handleStopSession)
		r.Post("/jump", s.handleJump)
		r.Post("/controls", s.handleControls)
	})

	// Bidirectional live socket.
	s.router.Get("/live", s.handleLive)
}
