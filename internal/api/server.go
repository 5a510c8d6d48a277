// File path: internal/api/server.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nicodishanthj/testcase_agent/internal/agent"
	"github.com/nicodishanthj/testcase_agent/internal/attachment"
	"github.com/nicodishanthj/testcase_agent/internal/common"
	"github.com/nicodishanthj/testcase_agent/internal/common/telemetry"
	"github.com/nicodishanthj/testcase_agent/internal/session"
	"github.com/nicodishanthj/testcase_agent/internal/stream"
)

const serviceName = "testcase-agent"

type Server struct {
	router      chi.Router
	store       session.Store
	runtime     agent.Runtime
	relay       *stream.Relay
	attachments *attachment.Processor
	metrics     *telemetry.Metrics
	cfg         Config
	now         func() time.Time
}

// Config controls request parsing limits.
type Config struct {
	// MaxFormMemory is the part of a multipart body kept in memory; the rest
	// spills to temporary files.
	MaxFormMemory int64
	Version       string
}

// DefaultConfig returns the standard configuration used when no overrides are
// provided.
func DefaultConfig() Config {
	return Config{
		MaxFormMemory: 32 << 20,
		Version:       "dev",
	}
}

// Merge overlays the set fields of override onto c.
func (c Config) Merge(override Config) Config {
	result := c
	if override.MaxFormMemory > 0 {
		result.MaxFormMemory = override.MaxFormMemory
	}
	if override.Version != "" {
		result.Version = override.Version
	}
	return result
}

// Dependencies are the collaborators a Server routes requests to. Store and
// Runtime are required; the rest fall back to defaults.
type Dependencies struct {
	Store       session.Store
	Runtime     agent.Runtime
	Relay       *stream.Relay
	Attachments *attachment.Processor
	Metrics     *telemetry.Metrics
	Now         func() time.Time
}

func NewServer(deps Dependencies, cfg *Config) (*Server, error) {
	logger := common.Logger()
	if deps.Store == nil {
		return nil, fmt.Errorf("session store required")
	}
	if deps.Runtime == nil {
		return nil, fmt.Errorf("agent runtime required")
	}
	configuration := DefaultConfig()
	if cfg != nil {
		configuration = configuration.Merge(*cfg)
	}
	logger.Info("api: building server", "relay_configured", deps.Relay != nil, "metrics", deps.Metrics != nil)

	relay := deps.Relay
	if relay == nil {
		relay = stream.NewRelay(deps.Runtime, deps.Store, stream.WithMetrics(deps.Metrics))
	}
	processor := deps.Attachments
	if processor == nil {
		processor = attachment.NewProcessor(attachment.WithMetrics(deps.Metrics))
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	srv := &Server{
		router:      chi.NewRouter(),
		store:       deps.Store,
		runtime:     deps.Runtime,
		relay:       relay,
		attachments: processor,
		metrics:     deps.Metrics,
		cfg:         configuration,
		now:         now,
	}
	srv.routes()
	logger.Info("api: server ready", "routes", true)
	return srv, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := common.Logger()
	logger.Info("api: configuring routes")
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			dur := time.Since(start)
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			s.metrics.RecordHTTP(r.Method, route, status, dur)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", status, "dur", dur,
				"remote", r.RemoteAddr, "request_id", middleware.GetReqID(r.Context()))
		})
	})

	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	s.router.Get("/logs", s.handleLogs)

	s.router.Post("/chat", s.handleChat)
	s.router.Post("/agent-testcase", s.handleAgentTestCase)
	s.router.Put("/agent-testcase", s.handleAgentTestCaseEdit)

	s.router.Route("/requests", func(r chi.Router) {
		r.Post("/", s.handleCreateRequest)
		r.Get("/", s.handleListRequests)
		r.Get("/{conversationID}", s.handleGetRequest)
		r.Get("/{conversationID}/messages", s.handleRequestMessages)
		r.Delete("/{conversationID}", s.handleDeleteRequest)
	})
	s.router.Route("/testcases", func(r chi.Router) {
		r.Get("/", s.handleListTestCases)
		r.Get("/search", s.handleSearchTestCases)
		r.Get("/{id}", s.handleGetTestCase)
		r.Put("/{id}", s.handleUpdateTestCase)
		r.Delete("/{id}", s.handleDeleteTestCase)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": serviceName,
		"version": s.cfg.Version,
		"status":  "running",
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := common.LogEntries()
	if entries == nil {
		entries = []common.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": entries})
}

// statusFor maps store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
