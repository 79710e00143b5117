// Package transport exposes the project service over HTTP.
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rpggio/clusterbench/internal/domain/project"
	"github.com/rpggio/clusterbench/internal/observability"
)

// Options configures the optional parts of the router.
type Options struct {
	// MCP is mounted at /mcp when set.
	MCP http.Handler
	// Ready reports whether the server can serve requests. Nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *slog.Logger
}

// Server wires HTTP handlers.
type Server struct {
	projects *project.Service
	ready    func(ctx context.Context) error
	logger   *slog.Logger
}

// NewServer creates an HTTP server router with middleware.
func NewServer(projects *project.Service, opts Options) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		projects: projects,
		ready:    opts.Ready,
		logger:   logger.With("component", "http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(srv.requestLogger)

	r.Get("/alive", srv.handleAlive)
	r.Get("/health", srv.handleAlive)
	r.Get("/ready", srv.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	if opts.MCP != nil {
		r.Handle("/mcp", opts.MCP)
		r.Handle("/mcp/*", opts.MCP)
	}

	r.Route("/api/projects", func(r chi.Router) {
		r.Get("/", srv.listProjects)
		r.Post("/", srv.createProject)

		r.Route("/{projectID}", func(r chi.Router) {
			r.Put("/", srv.renameProject)
			r.Delete("/", srv.deleteProject)
			r.Get("/status", srv.getStatus)
			r.Get("/download", srv.downloadProject)
			r.Get("/history", srv.getHistory)

			r.Get("/settings", srv.getSettings)
			r.Put("/settings", srv.editSettings)

			r.Get("/texts", srv.getTexts)
			r.Post("/texts", srv.importTexts)
			r.Put("/texts/{textID}/{op}", srv.editText)

			r.Get("/modelization", srv.getModelization)
			r.Get("/modelization/{iteration}", srv.getModelization)
			r.Post("/modelization", srv.runModelization)
			r.Get("/sampling/{iteration}", srv.getSampling)
			r.Post("/sampling", srv.runSampling)
			r.Get("/clustering/{iteration}", srv.getClustering)
			r.Post("/clustering", srv.runClustering)

			r.Post("/iterations", srv.startIteration)
			r.Delete("/iterations/last", srv.deleteLastIteration)
			r.Post("/tasks/cancel", srv.cancelTask)

			r.Get("/constraints", srv.getConstraints)
			r.Get("/constraints/implied", srv.getImplied)
			r.Post("/constraints/approve", srv.approveConstraints)
			r.Put("/constraints/{constraintID}/{op}", srv.editConstraint)
		})
	})

	return r
}

func (s *Server) handleAlive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("not ready", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requestLogger logs each request and counts it by route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()

		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
