package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/birdseye/internal/lane"
	"github.com/MeKo-Tech/birdseye/internal/pipeline"
)

// pipelineInterface defines the methods needed by the server from a pipeline.
type pipelineInterface interface {
	NewSession(name string) *pipeline.Session
	Info() map[string]any
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline    pipelineInterface
	sessions    *sessionStore
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	upgrader    websocket.Upgrader

	stopJanitor context.CancelFunc
	janitorDone sync.WaitGroup
}

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	CORSOrigin     string
	MaxUploadMB    int64
	TimeoutSec     int
	SessionTTL     time.Duration // idle sessions are evicted after this long; 0 keeps them
	MaxSessions    int           // 0 = unlimited
	PipelineConfig pipeline.Config
}

// Response types for API endpoints.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Time     string `json:"time"`
	Sessions int    `json:"sessions"`
}

type VersionResponse struct {
	Version   string         `json:"version"`
	GitCommit string         `json:"git_commit"`
	BuildDate string         `json:"build_date"`
	GoVersion string         `json:"go_version"`
	Pipeline  map[string]any `json:"pipeline,omitempty"`
}

type CreateSessionRequest struct {
	Name string `json:"name"`
}

type SessionResponse struct {
	ID        string                `json:"id"`
	Name      string                `json:"name,omitempty"`
	CreatedAt string                `json:"created_at"`
	LastUsed  string                `json:"last_used"`
	Stats     pipeline.SessionStats `json:"stats"`
	State     lane.State            `json:"state"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewServer creates a server and the pipeline it serves.
func NewServer(config Config) (*Server, error) {
	pl, err := pipeline.NewBuilder().WithConfig(config.PipelineConfig).Build()
	if err != nil {
		return nil, err
	}
	return NewServerWithPipeline(config, pl), nil
}

// NewServerWithPipeline creates a server around an already built pipeline.
// The server takes ownership of the pipeline and closes it in Close.
func NewServerWithPipeline(config Config, pl pipelineInterface) *Server {
	s := &Server{
		pipeline:    pl,
		sessions:    newSessionStore(config.SessionTTL, config.MaxSessions),
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
	}
	if s.maxUploadMB <= 0 {
		s.maxUploadMB = 20
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	if config.SessionTTL > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopJanitor = cancel
		s.janitorDone.Add(1)
		go func() {
			defer s.janitorDone.Done()
			s.sessions.runJanitor(ctx, janitorInterval(config.SessionTTL))
		}()
	}
	return s
}

// Close stops the session janitor and releases server resources.
func (s *Server) Close() error {
	if s.stopJanitor != nil {
		s.stopJanitor()
		s.janitorDone.Wait()
	}
	s.sessions.clear()
	if s.pipeline != nil {
		return s.pipeline.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	s.handle(mux, "GET /health", s.healthHandler)
	s.handle(mux, "GET /version", s.versionHandler)
	mux.Handle("GET /metrics", metricsHandler())

	s.handle(mux, "POST /v1/sessions", s.createSessionHandler)
	s.handle(mux, "GET /v1/sessions/{id}", s.getSessionHandler)
	s.handle(mux, "DELETE /v1/sessions/{id}", s.deleteSessionHandler)
	s.handle(mux, "POST /v1/sessions/{id}/reset", s.resetSessionHandler)
	s.handle(mux, "POST /v1/sessions/{id}/frames", s.frameHandler)
	s.handle(mux, "GET /v1/sessions/{id}/stream", s.streamHandler)
}

// Handler returns the complete HTTP handler with routes and CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return s.corsHandler(mux)
}

// allowedOrigins splits the comma separated CORS origin setting.
func (s *Server) allowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(s.corsOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// checkOrigin applies the CORS origins to WebSocket upgrades.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.allowedOrigins() {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
